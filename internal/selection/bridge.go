// Package selection keeps the selected property consistent between map
// clicks, list selection, deep links and the browser URL.
package selection

import (
	"context"
	"strings"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/cagp/internal/metadata"
	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/utils"
	"github.com/joeblew999/cagp/internal/view"
	"github.com/joeblew999/cagp/internal/viewport"
)

// FocusZoom is the zoom used when centering on a single property.
const FocusZoom = 17

// History is the browser history of one page.
type History interface {
	// Replace swaps the current history entry's URL without navigating.
	Replace(path string)
	// Redirect navigates to path.
	Redirect(path string)
}

// Bridge routes selection inputs into the view store and mirrors the result
// into History.
type Bridge struct {
	vp      viewport.MapViewport
	view    *view.Store
	history History
	locator metadata.Locator

	mu            sync.Mutex
	pendingID     string
	pendingSearch string
}

// New wires a bridge to vp's click and feature events.
func New(vp viewport.MapViewport, vs *view.Store, history History, locator metadata.Locator) *Bridge {
	b := &Bridge{vp: vp, view: vs, history: history, locator: locator}
	vp.OnClick(b.handleClick)
	vp.OnFeaturesChanged(b.featuresChanged)
	return b
}

// Pending returns the identifier awaiting adoption, if any.
func (b *Bridge) Pending() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pendingID
}

// HandleClick selects the first rendered feature under pt, or clears the
// selection when nothing is hit.
func (b *Bridge) HandleClick(pt orb.Point) {
	b.handleClick(pt, b.vp.QueryRenderedFeatures(pt))
}

func (b *Bridge) handleClick(_ orb.Point, hits []property.Feature) {
	if len(hits) == 0 {
		b.Deselect()
		return
	}
	b.Select(hits[0])
}

// Select makes f the selected property and replaces the URL with its path.
// It reports whether the view accepted the selection; while the street-view
// overlay is open it does not, and the URL is left alone.
func (b *Bridge) Select(f property.Feature) bool {
	next := b.view.Dispatch(view.SelectProperty{Feature: f})
	if next.SelectedID() != f.ID {
		return false
	}
	b.history.Replace(property.Path(f.ID))
	return true
}

// Deselect clears the selection and replaces the URL with the bare path.
// Like Select, it does nothing to the URL when the view kept its selection.
func (b *Bridge) Deselect() bool {
	next := b.view.Dispatch(view.Deselect{})
	if next.SelectedID() != "" {
		return false
	}
	b.history.Replace(property.FindPropertiesPath)
	return true
}

// Mount handles a page load with opaID in the path. An invalid identifier
// or a failed lookup redirects to the bare path. Otherwise the map is
// centered on the looked-up location and the feature is selected once it
// is rendered.
func (b *Bridge) Mount(ctx context.Context, opaID string) {
	if opaID == "" {
		return
	}
	if !property.ValidOPAID(opaID) {
		b.history.Redirect(property.FindPropertiesPath)
		return
	}
	if cur := b.view.State().SelectedID(); cur == opaID {
		return
	}

	pt, err := b.locator.Lookup(ctx, opaID)
	if err != nil {
		utils.Log.WithField("opa_id", opaID).Infof("deep link not found: %v", err)
		b.history.Redirect(property.FindPropertiesPath)
		return
	}

	b.mu.Lock()
	b.pendingID = opaID
	b.mu.Unlock()

	if err := b.vp.FlyTo(ctx, pt, FocusZoom); err != nil {
		utils.Log.WithField("opa_id", opaID).Warnf("center map: %v", err)
	}
}

// Search recenters the map on a geocoder result and selects the property
// whose address matches place once it is rendered.
func (b *Bridge) Search(ctx context.Context, place string, pt orb.Point) error {
	b.mu.Lock()
	b.pendingSearch = normalizeAddress(place)
	b.mu.Unlock()
	return b.vp.FlyTo(ctx, pt, FocusZoom)
}

// featuresChanged adopts a pending deep link or search result once it is
// rendered. The pending marker is only cleared when the selection commits,
// so an adoption refused by the view is retried on the next feature change.
func (b *Bridge) featuresChanged(features []property.Feature) {
	b.mu.Lock()
	pendingID, pendingSearch := b.pendingID, b.pendingSearch
	b.mu.Unlock()

	var adopt *property.Feature
	fromSearch := false
	if pendingID != "" {
		for i := range features {
			if features[i].ID == pendingID {
				adopt = &features[i]
				break
			}
		}
	}
	if adopt == nil && pendingSearch != "" {
		for i := range features {
			addr := normalizeAddress(features[i].Address())
			if addr != "" && strings.HasPrefix(pendingSearch, addr) {
				adopt = &features[i]
				fromSearch = true
				break
			}
		}
	}
	if adopt == nil || !b.Select(*adopt) {
		return
	}

	b.mu.Lock()
	switch {
	case fromSearch && b.pendingSearch == pendingSearch:
		b.pendingSearch = ""
	case !fromSearch && b.pendingID == pendingID:
		b.pendingID = ""
	}
	b.mu.Unlock()
}

func normalizeAddress(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
