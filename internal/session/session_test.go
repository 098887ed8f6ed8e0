package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/joeblew999/cagp/internal/devicestore"
	"github.com/joeblew999/cagp/internal/filter"
	"github.com/joeblew999/cagp/internal/metadata"
	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/store"
	"github.com/joeblew999/cagp/internal/view"
)

type noLocator struct{}

func (noLocator) Lookup(context.Context, string) (orb.Point, error) {
	return orb.Point{}, metadata.ErrNotFound
}

func testDeps() Deps {
	pt := func(x float64) orb.Point { return orb.Point{-75.16 + x, 39.95} }
	return Deps{
		Source: store.NewMemory(
			property.Feature{ID: "100000001", Geometry: pt(0), Attributes: property.Attributes{"priority_level": "High", "parcel_type": "Land"}},
			property.Feature{ID: "100000002", Geometry: pt(0.001), Attributes: property.Attributes{"priority_level": "Medium", "parcel_type": "Land"}},
			property.Feature{ID: "100000003", Geometry: pt(0.002), Attributes: property.Attributes{"priority_level": "High", "parcel_type": "Building"}},
		),
		Locator: noLocator{},
	}
}

func drain(ch chan Change) []ChangeKind {
	var kinds []ChangeKind
	for {
		select {
		case c := <-ch:
			kinds = append(kinds, c.Kind)
		default:
			return kinds
		}
	}
}

func TestFilterChangesReachTheMap(t *testing.T) {
	s := New("dev", testDeps(), nil)
	ctx := context.Background()
	s.Map.Move(ctx, orb.Bound{Min: orb.Point{-75.2, 39.9}, Max: orb.Point{-75.1, 40.0}})
	if n := len(s.Features()); n != 3 {
		t.Fatalf("features=%d, want 3", n)
	}

	ch := s.Changes()
	defer s.Unsubscribe(ch)

	s.Filters.Dispatch(filter.SetDimensions{Attribute: "priority_level", Values: []string{"High"}})
	s.Filters.Dispatch(filter.SetDimensions{Attribute: "parcel_type", Values: []string{"Land", "Building"}})

	got := s.Features()
	if len(got) != 2 || got[0].ID != "100000001" || got[1].ID != "100000003" {
		t.Fatalf("features=%v", got)
	}

	kinds := drain(ch)
	if len(kinds) != 4 || kinds[0] != FeaturesChanged || kinds[1] != FiltersChanged {
		t.Fatalf("changes=%v", kinds)
	}

	s.Filters.Dispatch(filter.SetDimensions{Attribute: "parcel_type", Values: []string{}})
	if n := len(s.Features()); n != 0 {
		t.Fatalf("empty selection features=%d", n)
	}
}

func TestSizeSignalDrivesView(t *testing.T) {
	deps := testDeps()
	deps.Breakpoint = 800
	s := New("dev", deps, nil)

	s.View.Dispatch(view.SelectPanel{Name: "filter"})
	s.Size.Set(700)
	st := s.View.State()
	if !st.SmallScreen || st.Layout != view.LayoutProperties {
		t.Fatalf("state=%+v", st)
	}
}

func TestSelectionNavigates(t *testing.T) {
	s := New("dev", testDeps(), nil)
	s.Map.Move(context.Background(), orb.Bound{Min: orb.Point{-75.2, 39.9}, Max: orb.Point{-75.1, 40.0}})
	ch := s.Changes()
	defer s.Unsubscribe(ch)

	s.Selection.Select(s.Features()[1])
	if s.Path() != "/find-properties/100000002" {
		t.Fatalf("path=%s", s.Path())
	}
	kinds := drain(ch)
	if len(kinds) != 2 || kinds[0] != ViewChanged || kinds[1] != Navigated {
		t.Fatalf("changes=%v", kinds)
	}

	s.Selection.Mount(context.Background(), "abc123")
	c := <-ch
	if c.Kind != Redirected || c.Path != "/find-properties" {
		t.Fatalf("change=%+v", c)
	}
}

func TestStyleErrorPublished(t *testing.T) {
	s := New("dev", testDeps(), nil)
	ch := s.Changes()
	defer s.Unsubscribe(ch)

	if err := s.Map.LoadStyle(context.Background()); err == nil {
		t.Fatal("expected error without a tile archive")
	}
	c := <-ch
	if c.Kind != StyleChanged || c.Err == nil {
		t.Fatalf("change=%+v", c)
	}
}

func TestRegistryPersistsWithConsent(t *testing.T) {
	devices, err := devicestore.Open(filepath.Join(t.TempDir(), "device.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer devices.Close()
	ctx := context.Background()

	r := NewRegistry(testDeps(), devices)
	devices.SetConsent(ctx, "dev-a", true)

	s, release := r.Acquire(ctx, "dev-a")
	s2, release2 := r.Acquire(ctx, "dev-a")
	if s != s2 {
		t.Fatal("same device should share a session")
	}
	s.Filters.Dispatch(filter.SetDimensions{Attribute: "priority_level", Values: []string{"High"}})

	release()
	if r.Len() != 1 {
		t.Fatal("session dropped while still in use")
	}
	release2()
	release2()
	if r.Len() != 0 {
		t.Fatalf("sessions=%d after release", r.Len())
	}

	again, releaseAgain := r.Acquire(ctx, "dev-a")
	if again == s {
		t.Fatal("expected a fresh session")
	}
	if sel, ok := again.Filters.State()["priority_level"]; !ok || sel.Values[0] != "High" {
		t.Fatalf("rehydrated=%+v", again.Filters.State())
	}
	releaseAgain()

	s3, release3 := r.Acquire(ctx, "dev-b")
	s3.Filters.Dispatch(filter.SetDimensions{Attribute: "priority_level", Values: []string{"Low"}})
	release3()
	if _, ok, _ := devices.LoadFilters(ctx, "dev-b"); ok {
		t.Fatal("filters persisted without consent")
	}
}

func TestDeviceID(t *testing.T) {
	rec := httptest.NewRecorder()
	id := DeviceID(rec, httptest.NewRequest(http.MethodGet, "/find-properties", nil))
	if !ValidDeviceID(id) {
		t.Fatalf("id=%q", id)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].Value != id {
		t.Fatalf("cookies=%v", cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/find-properties", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: id})
	rec = httptest.NewRecorder()
	if got := DeviceID(rec, req); got != id {
		t.Fatalf("got %q, want %q", got, id)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("cookie reissued")
	}
}

func TestListPageResetsOnFeatureChange(t *testing.T) {
	s := New("dev", testDeps(), nil)
	ch := s.Changes()
	defer s.Unsubscribe(ch)

	s.SetListPage(2)
	if s.ListPage() != 2 {
		t.Fatalf("page=%d", s.ListPage())
	}
	if c := <-ch; c.Kind != ListPaged {
		t.Fatalf("change=%+v", c)
	}

	s.Map.FlyTo(context.Background(), orb.Point{-75.16, 39.95}, 16)
	if s.ListPage() != 0 {
		t.Fatalf("page after move=%d", s.ListPage())
	}
	c := <-ch
	if c.Kind != Recentered || c.Zoom != 16 || c.Center != (orb.Point{-75.16, 39.95}) {
		t.Fatalf("change=%+v", c)
	}
	if c := <-ch; c.Kind != FeaturesChanged {
		t.Fatalf("change=%+v", c)
	}
}

func TestRegistryLookupDoesNotCreate(t *testing.T) {
	r := NewRegistry(testDeps(), nil)
	if _, ok := r.Lookup("dev"); ok {
		t.Fatal("Lookup created a session")
	}
	s, release := r.Acquire(context.Background(), "dev")
	if got, ok := r.Lookup("dev"); !ok || got != s {
		t.Fatal("Lookup missed the acquired session")
	}
	release()
	if _, ok := r.Lookup("dev"); ok || r.Len() != 0 {
		t.Fatal("session survived its last release")
	}
}

func TestReloadDuringReleaseKeepsLatestFilters(t *testing.T) {
	devices, err := devicestore.Open(filepath.Join(t.TempDir(), "device.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer devices.Close()
	ctx := context.Background()

	r := NewRegistry(testDeps(), devices)
	devices.SetConsent(ctx, "dev", true)

	levels := []string{"High", "Medium", "Low"}
	for i := 0; i < 30; i++ {
		want := levels[i%len(levels)]
		s, release := r.Acquire(ctx, "dev")
		s.Filters.Dispatch(filter.SetDimensions{Attribute: "priority_level", Values: []string{want}})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			release()
		}()
		next, releaseNext := r.Acquire(ctx, "dev")
		wg.Wait()

		if sel, ok := next.Filters.State()["priority_level"]; !ok || sel.Values[0] != want {
			t.Fatalf("round %d: filters=%+v, want priority_level=%s", i, next.Filters.State(), want)
		}
		releaseNext()
	}
	if st, ok, _ := devices.LoadFilters(ctx, "dev"); !ok || st["priority_level"].Values[0] != levels[29%len(levels)] {
		t.Fatalf("stored=%+v", st)
	}
}

func TestBusDeliversInOrderAndUnsubscribesOnce(t *testing.T) {
	var b Bus
	first, second := b.Subscribe(), b.Subscribe()
	b.Publish(Change{Kind: FiltersChanged})
	b.Unsubscribe(first)
	b.Unsubscribe(first)
	b.Publish(Change{Kind: ViewChanged})

	if got := drain(second); len(got) != 2 || got[0] != FiltersChanged || got[1] != ViewChanged {
		t.Fatalf("second=%v", got)
	}
	if c, ok := <-first; !ok || c.Kind != FiltersChanged {
		t.Fatalf("first=%+v ok=%v", c, ok)
	}
	if _, ok := <-first; ok {
		t.Fatal("unsubscribed channel still open")
	}
}
