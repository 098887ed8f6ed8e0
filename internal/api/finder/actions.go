package finder

import (
	"context"
	"slices"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"

	"github.com/joeblew999/cagp/internal/filter"
	"github.com/joeblew999/cagp/internal/humastar"
	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/session"
	"github.com/joeblew999/cagp/internal/utils"
	"github.com/joeblew999/cagp/internal/view"
)

// SetFilters applies the filter panel form. Only attributes whose posted
// value differs from the current selection are dispatched, so untouched
// dimensions stay unconstrained.
func (h *Handler) SetFilters(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, sig humastar.Signals) string {
		for _, a := range filterActions(h.cfg.Schema, sess.Filters.State(), sig) {
			sess.Filters.Dispatch(a)
		}
		return ""
	})
}

func (h *Handler) ClearFilters(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, _ humastar.Signals) string {
		sess.Filters.Dispatch(filter.ClearDimensions{})
		return ""
	})
}

func (h *Handler) SelectPanel(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, sig humastar.Signals) string {
		sess.View.Dispatch(view.SelectPanel{Name: sig.String("panel")})
		return ""
	})
}

func (h *Handler) ToggleLayout(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, _ humastar.Signals) string {
		sess.View.Dispatch(view.ToggleLayout{})
		return ""
	})
}

func (h *Handler) Select(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, sig humastar.Signals) string {
		id := sig.String("id")
		for _, f := range sess.Features() {
			if f.ID == id {
				sess.Selection.Select(f)
				return ""
			}
		}
		if h.cfg.Store != nil && property.ValidOPAID(id) {
			if f, err := h.cfg.Store.Get(ctx, id); err == nil {
				sess.Selection.Select(f)
				return ""
			}
		}
		return "That property is no longer available."
	})
}

func (h *Handler) Deselect(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, _ humastar.Signals) string {
		sess.Selection.Deselect()
		return ""
	})
}

func (h *Handler) Click(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, sig humastar.Signals) string {
		v, ok := floats(sig["point"], 2)
		if !ok {
			return "Invalid map position."
		}
		sess.Map.Click(orb.Point{v[0], v[1]})
		return ""
	})
}

func (h *Handler) Move(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, sig humastar.Signals) string {
		v, ok := floats(sig["bounds"], 4)
		if !ok || v[0] > v[2] || v[1] > v[3] {
			return "Invalid map bounds."
		}
		if err := sess.Map.Move(ctx, orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}); err != nil {
			utils.Log.WithField("device", sess.ID).Warnf("move map: %v", err)
			return "Properties could not be loaded for this area."
		}
		return ""
	})
}

func (h *Handler) Resize(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, sig humastar.Signals) string {
		if w := sig.Int("width"); w > 0 {
			sess.Size.Set(w)
		}
		return ""
	})
}

func (h *Handler) Page(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, sig humastar.Signals) string {
		sess.SetListPage(sig.Int("page"))
		return ""
	})
}

func (h *Handler) OpenStreetView(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, sig humastar.Signals) string {
		sess.View.Dispatch(view.OpenStreetView{Anchor: sig.String("anchor")})
		return ""
	})
}

func (h *Handler) CloseStreetView(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, _ humastar.Signals) string {
		sess.View.Dispatch(view.CloseStreetView{})
		return ""
	})
}

func (h *Handler) Mount(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, sig humastar.Signals) string {
		sess.Selection.Mount(ctx, sig.String("opa_id"))
		return ""
	})
}

// Search recenters on the first property whose address starts with the
// query and selects it once rendered.
func (h *Handler) Search(ctx context.Context, input *ActionInput) (*huma.StreamResponse, error) {
	return h.action(ctx, input, func(sess *session.Session, sig humastar.Signals) string {
		q := strings.Join(strings.Fields(strings.ToUpper(sig.String("search"))), " ")
		if q == "" || h.cfg.Store == nil {
			return ""
		}
		all, err := h.cfg.Store.All(ctx)
		if err != nil {
			utils.Log.Warnf("search properties: %v", err)
			return "Search is unavailable right now."
		}
		for _, f := range all {
			addr := strings.Join(strings.Fields(strings.ToUpper(f.Address())), " ")
			if addr != "" && strings.HasPrefix(addr, q) {
				if err := sess.Selection.Search(ctx, f.Address(), f.Centroid()); err != nil {
					utils.Log.WithField("device", sess.ID).Warnf("search: %v", err)
				}
				return ""
			}
		}
		return "No property matches that address."
	})
}

// filterActions turns the posted filter form into reducer actions.
func filterActions(schema []property.Dimension, current filter.State, sig humastar.Signals) []filter.Action {
	form, _ := sig["filters"].(map[string]any)
	var out []filter.Action
	for _, d := range schema {
		raw, ok := form[d.Attribute].(map[string]any)
		if !ok {
			continue
		}
		prev, set := current[d.Attribute]

		if d.Kind == property.KindRange {
			lo, _ := raw["min"].(string)
			hi, _ := raw["max"].(string)
			if prev.Range != nil && prev.Range.Min == lo && prev.Range.Max == hi {
				continue
			}
			if !set && lo == "" && hi == "" {
				continue
			}
			out = append(out, filter.SetDimensions{
				Attribute: d.Attribute,
				Range:     &filter.RangeUpdate{Min: &lo, Max: &hi},
			})
			continue
		}

		values := stringList(raw["values"])
		if !set && len(values) == 0 {
			continue
		}
		if set && prev.Kind == property.KindValues && slices.Equal(prev.Values, values) {
			continue
		}
		out = append(out, filter.SetDimensions{Attribute: d.Attribute, Values: values, UseIndexOf: d.UseIndexOf})
	}
	return out
}

func stringList(v any) []string {
	arr, _ := v.([]any)
	out := make([]string, 0, len(arr))
	for _, x := range arr {
		if s, ok := x.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floats(v any, n int) ([]float64, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) != n {
		return nil, false
	}
	out := make([]float64, n)
	for i, x := range arr {
		f, ok := x.(float64)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
