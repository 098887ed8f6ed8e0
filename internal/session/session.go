// Package session composes the per-browser finder state. Each Session is
// the only owner of its filter store, view store, size signal, map viewport
// and selection bridge.
package session

import (
	"context"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/cagp/internal/filter"
	"github.com/joeblew999/cagp/internal/metadata"
	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/selection"
	"github.com/joeblew999/cagp/internal/utils"
	"github.com/joeblew999/cagp/internal/view"
	"github.com/joeblew999/cagp/internal/viewport"
)

// Deps are the shared, read-only collaborators of every session.
type Deps struct {
	Source     viewport.FeatureSource
	Style      viewport.StyleLoader
	Locator    metadata.Locator
	Breakpoint int
}

// Session is one browser's finder state.
type Session struct {
	ID        string
	Filters   *filter.Store
	View      *view.Store
	Size      *viewport.SizeSignal
	Map       *viewport.Viewport
	Selection *selection.Bridge

	bus *Bus

	mu   sync.Mutex
	path string
	page int
}

// New builds a session with initial filter state and wires its parts:
// size changes resize the view, filter changes reach the map, and map
// events flow to the selection bridge and the change bus.
func New(id string, deps Deps, initial filter.State) *Session {
	s := &Session{
		ID:      id,
		Filters: filter.NewStore(initial),
		View:    view.NewStore(),
		Size:    viewport.NewSizeSignal(),
		Map:     viewport.New(deps.Source, deps.Style),
		bus:     &Bus{},
		path:    property.FindPropertiesPath,
	}
	s.Selection = selection.New(s.Map, s.View, s, deps.Locator)

	bp := deps.Breakpoint
	s.Size.Subscribe(func(width int) {
		s.View.Dispatch(view.Resize{Width: width, Breakpoint: bp})
	})
	s.Filters.Subscribe(func(st filter.State) {
		if err := s.Map.SetFilter(context.Background(), filter.Compile(st)); err != nil {
			utils.Log.WithField("session", s.ID).Warnf("apply filter: %v", err)
		}
		s.bus.Publish(Change{Kind: FiltersChanged})
	})
	s.View.Subscribe(func(view.State) {
		s.bus.Publish(Change{Kind: ViewChanged})
	})
	s.Map.OnFeaturesChanged(func([]property.Feature) {
		s.mu.Lock()
		s.page = 0
		s.mu.Unlock()
		s.bus.Publish(Change{Kind: FeaturesChanged})
	})
	s.Map.OnRecentered(func(center orb.Point, zoom float64) {
		s.bus.Publish(Change{Kind: Recentered, Center: center, Zoom: zoom})
	})
	s.Map.OnStyleLoaded(func(_ viewport.StyleInfo, err error) {
		s.bus.Publish(Change{Kind: StyleChanged, Err: err})
	})

	if len(initial) > 0 {
		if err := s.Map.SetFilter(context.Background(), filter.Compile(initial)); err != nil {
			utils.Log.WithField("session", s.ID).Warnf("apply stored filter: %v", err)
		}
	}
	return s
}

// Changes subscribes to session changes. Call Unsubscribe when done.
func (s *Session) Changes() chan Change { return s.bus.Subscribe() }

// Unsubscribe stops delivery to ch.
func (s *Session) Unsubscribe(ch chan Change) { s.bus.Unsubscribe(ch) }

// Path returns the URL path the page should show.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Replace implements selection.History.
func (s *Session) Replace(path string) {
	s.mu.Lock()
	s.path = path
	s.mu.Unlock()
	s.bus.Publish(Change{Kind: Navigated, Path: path})
}

// Redirect implements selection.History.
func (s *Session) Redirect(path string) {
	s.mu.Lock()
	s.path = path
	s.mu.Unlock()
	s.bus.Publish(Change{Kind: Redirected, Path: path})
}

// ListPage returns the 0-based property list page. It resets whenever the
// rendered features change.
func (s *Session) ListPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// SetListPage changes the property list page.
func (s *Session) SetListPage(page int) {
	s.mu.Lock()
	s.page = max(0, page)
	s.mu.Unlock()
	s.bus.Publish(Change{Kind: ListPaged})
}

// Features returns the rendered features, i.e. the property list.
func (s *Session) Features() []property.Feature {
	return s.Map.Rendered()
}
