// Package finder contains the Datastar SSE handlers driving the property
// finder page. One long-lived events stream per page pushes session
// changes; every user interaction is a short POST that mutates the session.
package finder

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/cagp/internal/devicestore"
	"github.com/joeblew999/cagp/internal/humastar"
	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/session"
	"github.com/joeblew999/cagp/internal/store"
	"github.com/joeblew999/cagp/internal/templates"
)

// DefaultPageSize is the number of cards per property list page.
const DefaultPageSize = 20

// Config holds the finder handler dependencies.
type Config struct {
	Sessions  *session.Registry
	Devices   *devicestore.DB
	Store     store.Store
	Schema    []property.Dimension
	PhotoBase string
	PageSize  int
}

// Handler serves the finder SSE endpoints.
type Handler struct {
	humastar.Handler
	cfg Config
}

// New creates a finder handler.
func New(cfg Config, renderer *templates.Renderer) *Handler {
	if cfg.Schema == nil {
		cfg.Schema = property.DefaultSchema
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Handler{Handler: humastar.Handler{Renderer: renderer}, cfg: cfg}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("finder")
	huma.Get(api, "/api/v1/finder/events", h.Events, tags)

	actions := []struct {
		path string
		fn   func(context.Context, *ActionInput) (*huma.StreamResponse, error)
	}{
		{"/api/v1/finder/filters", h.SetFilters},
		{"/api/v1/finder/filters/clear", h.ClearFilters},
		{"/api/v1/finder/panel", h.SelectPanel},
		{"/api/v1/finder/layout", h.ToggleLayout},
		{"/api/v1/finder/select", h.Select},
		{"/api/v1/finder/deselect", h.Deselect},
		{"/api/v1/finder/click", h.Click},
		{"/api/v1/finder/move", h.Move},
		{"/api/v1/finder/resize", h.Resize},
		{"/api/v1/finder/page", h.Page},
		{"/api/v1/finder/streetview/open", h.OpenStreetView},
		{"/api/v1/finder/streetview/close", h.CloseStreetView},
		{"/api/v1/finder/mount", h.Mount},
		{"/api/v1/finder/search", h.Search},
	}
	for _, a := range actions {
		huma.Post(api, a.path, a.fn, tags)
	}
}

// ActionInput carries the device cookie and the Datastar signals.
type ActionInput struct {
	Device  string `cookie:"cagp_device" doc:"Device id cookie"`
	RawBody []byte
}

// action parses the request and runs fn against the device's session. The
// session is held for the duration of fn only; a page with an open events
// stream keeps it alive in between.
func (h *Handler) action(ctx context.Context, input *ActionInput, fn func(*session.Session, humastar.Signals) string) (*huma.StreamResponse, error) {
	if !session.ValidDeviceID(input.Device) {
		return nil, huma.Error400BadRequest("missing or invalid device cookie")
	}
	signals := humastar.Signals{}
	if len(input.RawBody) > 0 {
		var err error
		if signals, err = humastar.ParseSignals(input.RawBody); err != nil {
			return nil, huma.Error400BadRequest("Invalid request data: " + err.Error())
		}
	}

	sess, release := h.cfg.Sessions.Acquire(ctx, input.Device)
	msg := fn(sess, signals)
	release()

	return h.Stream(func(sse humastar.SSE) {
		if msg != "" {
			sse.Error(msg)
		}
	}), nil
}
