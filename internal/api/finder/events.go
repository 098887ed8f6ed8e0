package finder

import (
	"bytes"
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/cagp/internal/humastar"
	"github.com/joeblew999/cagp/internal/session"
	"github.com/joeblew999/cagp/internal/utils"
)

// EventsInput opens the finder stream for one page.
type EventsInput struct {
	Device string `cookie:"cagp_device" doc:"Device id cookie"`
	OPAID  string `query:"opa_id" doc:"Property id from the page path"`
}

// Events holds the device session for as long as the page is open and
// streams every session change as element and signal patches.
func (h *Handler) Events(ctx context.Context, input *EventsInput) (*huma.StreamResponse, error) {
	if !session.ValidDeviceID(input.Device) {
		return nil, huma.Error400BadRequest("missing or invalid device cookie")
	}
	return h.Stream(func(sse humastar.SSE) {
		sess, release := h.cfg.Sessions.Acquire(ctx, input.Device)
		defer release()
		ch := sess.Changes()
		defer sess.Unsubscribe(ch)

		h.renderFilters(sse, sess)
		h.renderView(ctx, sse, sess)
		h.renderList(sse, sess)

		if err := sess.Map.LoadStyle(ctx); err != nil {
			utils.Log.WithField("device", sess.ID).Warnf("load map style: %v", err)
		}
		sess.Selection.Mount(ctx, input.OPAID)

		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-ch:
				if !ok {
					return
				}
				h.apply(ctx, sse, sess, c)
			}
		}
	}), nil
}

func (h *Handler) apply(ctx context.Context, sse humastar.SSE, sess *session.Session, c session.Change) {
	switch c.Kind {
	case session.FiltersChanged:
		h.renderFilters(sse, sess)
	case session.FeaturesChanged, session.ListPaged:
		h.renderList(sse, sess)
	case session.ViewChanged:
		h.renderView(ctx, sse, sess)
		h.renderList(sse, sess)
	case session.StyleChanged:
		if c.Err != nil {
			sse.Error("The map could not be loaded. Please try again later.")
		}
	case session.Recentered:
		sse.DispatchCustomEvent("map-fly-to", map[string]any{
			"center": []float64{c.Center[0], c.Center[1]},
			"zoom":   c.Zoom,
		})
	case session.Navigated:
		sse.ReplacePath(c.Path)
	case session.Redirected:
		sse.RedirectTo(c.Path)
	}
}

func (h *Handler) renderFilters(sse humastar.SSE, sess *session.Session) {
	sse.Signals(filterSignals(h.cfg.Schema, sess.Filters.State()))
	sse.Replace(h.Render("filter-badge", sess.Filters.ActiveCount()), "#filter-badge")
}

func (h *Handler) renderList(sse humastar.SSE, sess *session.Session) {
	features := sess.Features()
	if len(features) == 0 {
		empty := noResults
		if sess.Filters.ActiveCount() == 0 {
			empty = humastar.EmptyState{Title: "No properties here", Message: "Move or zoom the map to find vacant properties."}
		}
		sse.Patch(h.Render("empty-state", empty), "#panel-list")
		return
	}
	l := list(features, sess.ListPage(), h.cfg.PageSize, h.cfg.PhotoBase, sess.View.State().SelectedID())
	sse.Patch(h.Render("property-list", l), "#panel-list")
}

func (h *Handler) renderView(ctx context.Context, sse humastar.SSE, sess *session.Session) {
	st := sess.View.State()
	sse.Signals(viewSignals(st))

	if st.Selected == nil {
		sse.Patch(h.Render("empty-state", noSelection), "#panel-detail")
		return
	}
	var buf bytes.Buffer
	d := detail(*st.Selected, h.cfg.PhotoBase, h.saved(ctx, sess.ID, st.Selected.ID))
	if err := h.Renderer.RenderToBuffer(&buf, "property-detail", d); err != nil {
		utils.Log.Errorf("render property detail: %v", err)
		return
	}
	sse.Patch(buf.String(), "#panel-detail")
}

func (h *Handler) saved(ctx context.Context, device, opaID string) bool {
	if h.cfg.Devices == nil {
		return false
	}
	saved, err := h.cfg.Devices.SavedProperties(ctx, device)
	if err != nil {
		utils.Log.WithField("device", device).Warnf("read saved properties: %v", err)
		return false
	}
	for _, id := range saved.IDs {
		if id == opaID {
			return true
		}
	}
	return false
}
