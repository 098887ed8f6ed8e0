package finder

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/paulmach/orb"

	"github.com/joeblew999/cagp/internal/filter"
	"github.com/joeblew999/cagp/internal/humastar"
	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/session"
	"github.com/joeblew999/cagp/internal/store"
	"github.com/joeblew999/cagp/internal/templates"
	"github.com/joeblew999/cagp/internal/view"
)

const device = "7f0c8a52-3c1e-4d6a-9a7e-1b2c3d4e5f60"

var cookie = "Cookie: " + session.CookieName + "=" + device

type staticLocator struct{ pt orb.Point }

func (l staticLocator) Lookup(context.Context, string) (orb.Point, error) { return l.pt, nil }

func fixtures() *store.Memory {
	pt := func(x float64) orb.Point { return orb.Point{-75.16 + x, 39.95} }
	return store.NewMemory(
		property.Feature{ID: "100000001", Geometry: pt(0), Attributes: property.Attributes{
			property.AttrAddress: "1 MAIN ST", property.AttrPriorityLevel: "High", property.AttrParcelType: "Land", property.AttrMarketValue: 12000.0,
		}},
		property.Feature{ID: "100000002", Geometry: pt(0.001), Attributes: property.Attributes{
			property.AttrAddress: "2 MAIN ST", property.AttrPriorityLevel: "Medium", property.AttrParcelType: "Building",
		}},
	)
}

func setup(t *testing.T) (humatest.TestAPI, *http.ServeMux, *session.Registry) {
	t.Helper()
	src := fixtures()
	reg := session.NewRegistry(session.Deps{Source: src, Locator: staticLocator{orb.Point{-75.16, 39.95}}}, nil)
	h := New(Config{Sessions: reg, Store: src}, templates.Default())

	mux := http.NewServeMux()
	api := humago.New(mux, huma.DefaultConfig("Finder Test", "1.0.0"))
	h.RegisterRoutes(api)
	return humatest.Wrap(t, api), mux, reg
}

var philly = []any{-75.2, 39.9, -75.1, 40.0}

func TestActionsMutateSession(t *testing.T) {
	api, _, reg := setup(t)
	sess, release := reg.Acquire(context.Background(), device)
	defer release()

	if resp := api.Post("/api/v1/finder/move", cookie, map[string]any{"bounds": philly}); resp.Code != http.StatusOK {
		t.Fatalf("move status=%d body=%s", resp.Code, resp.Body.String())
	}
	if n := len(sess.Features()); n != 2 {
		t.Fatalf("features=%d, want 2", n)
	}

	api.Post("/api/v1/finder/filters", cookie, map[string]any{"filters": map[string]any{
		property.AttrPriorityLevel: map[string]any{"values": []string{"High"}},
		property.AttrParcelType:    map[string]any{"values": []string{}},
		property.AttrMarketValue:   map[string]any{"min": "", "max": ""},
	}})
	st := sess.Filters.State()
	if len(st) != 1 || st[property.AttrPriorityLevel].Values[0] != "High" {
		t.Fatalf("filters=%+v", st)
	}
	if n := len(sess.Features()); n != 1 {
		t.Fatalf("filtered features=%d, want 1", n)
	}

	api.Post("/api/v1/finder/select", cookie, map[string]any{"id": "100000001"})
	if sess.View.State().SelectedID() != "100000001" || sess.Path() != "/find-properties/100000001" {
		t.Fatalf("selected=%q path=%q", sess.View.State().SelectedID(), sess.Path())
	}

	api.Post("/api/v1/finder/deselect", cookie)
	if sess.View.State().Selected != nil || sess.Path() != "/find-properties" {
		t.Fatalf("after deselect path=%q", sess.Path())
	}

	api.Post("/api/v1/finder/panel", cookie, map[string]any{"panel": "filter"})
	if sess.View.State().Panel != view.PanelFilter {
		t.Fatalf("panel=%s", sess.View.State().Panel)
	}

	api.Post("/api/v1/finder/resize", cookie, map[string]any{"width": 400})
	if !sess.View.State().SmallScreen {
		t.Fatal("resize did not reach the view")
	}

	api.Post("/api/v1/finder/filters/clear", cookie)
	if sess.Filters.ActiveCount() != 0 {
		t.Fatal("filters not cleared")
	}
}

func TestClickSelectsAndSearchAdopts(t *testing.T) {
	api, _, reg := setup(t)
	sess, release := reg.Acquire(context.Background(), device)
	defer release()

	api.Post("/api/v1/finder/move", cookie, map[string]any{"bounds": philly})
	api.Post("/api/v1/finder/click", cookie, map[string]any{"point": []any{-75.159, 39.95}})
	if got := sess.View.State().SelectedID(); got != "100000002" {
		t.Fatalf("clicked selection=%q", got)
	}

	api.Post("/api/v1/finder/search", cookie, map[string]any{"search": " 1 main"})
	if got := sess.View.State().SelectedID(); got != "100000001" {
		t.Fatalf("searched selection=%q", got)
	}

	resp := api.Post("/api/v1/finder/search", cookie, map[string]any{"search": "99 NOWHERE"})
	if !strings.Contains(resp.Body.String(), "No property matches") {
		t.Fatalf("search miss body=%s", resp.Body.String())
	}
}

func TestActionRequiresDeviceCookie(t *testing.T) {
	api, _, _ := setup(t)
	if resp := api.Post("/api/v1/finder/layout", map[string]any{}); resp.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", resp.Code)
	}
}

func TestEventsStreamDeepLink(t *testing.T) {
	_, mux, reg := setup(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/finder/events?opa_id=100000002", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: device})
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp.Body.Close()

	want := map[string]bool{
		"#panel-list":                 false,
		"property-100000002":          false,
		"map-fly-to":                  false,
		"/find-properties/100000002":  false,
		"The map could not be loaded": false,
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		for k := range want {
			if strings.Contains(line, k) {
				want[k] = true
			}
		}
		done := true
		for _, seen := range want {
			done = done && seen
		}
		if done {
			break
		}
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("stream never contained %q", k)
		}
	}

	if reg.Len() != 1 {
		t.Errorf("sessions=%d while streaming", reg.Len())
	}
	cancel()
}

func TestFilterActionsOnlyChangedDimensions(t *testing.T) {
	current := filter.State{
		property.AttrParcelType:  {Kind: property.KindValues, Values: []string{"Land"}},
		property.AttrMarketValue: {Kind: property.KindRange, Range: &filter.Range{Min: "10"}},
	}
	sig := humastar.Signals{"filters": map[string]any{
		property.AttrParcelType:    map[string]any{"values": []any{"Land"}},
		property.AttrPriorityLevel: map[string]any{"values": []any{}},
		property.AttrMarketValue:   map[string]any{"min": "10", "max": ""},
		property.AttrTotalDue:      map[string]any{"min": "", "max": "500"},
		property.AttrRCONames:      map[string]any{"values": []any{"Civic"}},
	}}

	actions := filterActions(property.DefaultSchema, current, sig)
	if len(actions) != 2 {
		t.Fatalf("actions=%+v", actions)
	}
	rco := actions[0].(filter.SetDimensions)
	if rco.Attribute != property.AttrRCONames || !rco.UseIndexOf {
		t.Errorf("first action=%+v", rco)
	}
	due := actions[1].(filter.SetDimensions)
	if due.Attribute != property.AttrTotalDue || due.Range == nil || *due.Range.Max != "500" {
		t.Errorf("second action=%+v", due)
	}
}

func TestClearingRangeDropsBadgeCount(t *testing.T) {
	st := filter.NewStore(filter.State{
		property.AttrMarketValue: {Kind: property.KindRange, Range: &filter.Range{Min: "10", Max: "900"}},
	})
	sig := humastar.Signals{"filters": map[string]any{
		property.AttrMarketValue: map[string]any{"min": "", "max": ""},
	}}
	for _, a := range filterActions(property.DefaultSchema, st.State(), sig) {
		st.Dispatch(a)
	}
	if st.ActiveCount() != 0 {
		t.Fatalf("badge=%d after clearing the range, state=%+v", st.ActiveCount(), st.State())
	}
}

func TestListPagination(t *testing.T) {
	var features []property.Feature
	for _, id := range []string{"100000001", "100000002", "100000003", "100000004", "100000005"} {
		features = append(features, property.Feature{ID: id, Geometry: orb.Point{0, 0}})
	}
	l := list(features, 9, 2, "", "100000005")
	if l.Page != 3 || l.Pages != 3 || l.HasNext || !l.HasPrev || len(l.Cards) != 1 || !l.Cards[0].Selected {
		t.Fatalf("list=%+v", l)
	}
}

func TestDollars(t *testing.T) {
	for in, want := range map[float64]string{0: "$0", 999: "$999", 12000: "$12,000", 1234567: "$1,234,567", -4500: "-$4,500"} {
		if got := dollars(in); got != want {
			t.Errorf("dollars(%v)=%q, want %q", in, got, want)
		}
	}
}
