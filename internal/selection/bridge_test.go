package selection

import (
	"context"
	"testing"

	"github.com/paulmach/orb"

	"github.com/joeblew999/cagp/internal/metadata"
	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/view"
	"github.com/joeblew999/cagp/internal/viewport"
)

type memSource []property.Feature

func (s memSource) InBounds(_ context.Context, b orb.Bound) ([]property.Feature, error) {
	var out []property.Feature
	for _, f := range s {
		if b.Contains(f.Geometry.(orb.Point)) {
			out = append(out, f)
		}
	}
	return out, nil
}

type recorder struct {
	replaced   []string
	redirected []string
}

func (r *recorder) Replace(path string)  { r.replaced = append(r.replaced, path) }
func (r *recorder) Redirect(path string) { r.redirected = append(r.redirected, path) }

type fakeLocator struct {
	points map[string]orb.Point
	calls  int
}

func (l *fakeLocator) Lookup(_ context.Context, id string) (orb.Point, error) {
	l.calls++
	pt, ok := l.points[id]
	if !ok {
		return orb.Point{}, metadata.ErrNotFound
	}
	return pt, nil
}

var (
	near = orb.Point{-75.1652, 39.9526}
	far  = orb.Point{-75.0100, 40.0800}
)

func feature(id string, pt orb.Point, addr string) property.Feature {
	return property.Feature{ID: id, Geometry: pt, Attributes: property.Attributes{
		property.AttrOPAID:   id,
		property.AttrAddress: addr,
	}}
}

type fixture struct {
	vp      *viewport.Viewport
	view    *view.Store
	history *recorder
	locator *fakeLocator
	bridge  *Bridge
}

func newFixture() *fixture {
	src := memSource{
		feature("100000001", near, "1400 JOHN F KENNEDY BLVD"),
		feature("100000002", orb.Point{near[0] + 0.0005, near[1]}, "1401 ARCH ST"),
		feature("100000003", orb.Point{near[0] - 0.0005, near[1]}, "15 S BROAD ST"),
		feature("200000009", far, "9 FAR AWAY RD"),
	}
	f := &fixture{
		vp:      viewport.New(src, nil),
		view:    view.NewStore(),
		history: &recorder{},
		locator: &fakeLocator{points: map[string]orb.Point{"200000009": far}},
	}
	f.bridge = New(f.vp, f.view, f.history, f.locator)
	return f
}

func TestDeepLinkRoundTrip(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	adoptions := 0
	f.view.Subscribe(func(s view.State) {
		if s.SelectedID() == "200000009" {
			adoptions++
		}
	})

	f.bridge.Mount(ctx, "200000009")

	if got := f.view.State().SelectedID(); got != "200000009" {
		t.Fatalf("selected=%q, want 200000009", got)
	}
	if f.bridge.Pending() != "" {
		t.Fatalf("pending=%q, want cleared", f.bridge.Pending())
	}
	if f.locator.calls != 1 {
		t.Fatalf("lookups=%d, want 1", f.locator.calls)
	}

	// Further viewport changes must not re-adopt.
	f.vp.Move(ctx, viewport.BoundAround(far, 15))
	f.vp.Move(ctx, viewport.BoundAround(far, 16))
	if adoptions != 1 {
		t.Fatalf("adoptions=%d, want 1", adoptions)
	}
	if len(f.history.replaced) != 1 || f.history.replaced[0] != "/find-properties/200000009" {
		t.Fatalf("replaced=%v", f.history.replaced)
	}
}

func TestDeepLinkWaitsForFeature(t *testing.T) {
	f := newFixture()
	f.locator.points["300000000"] = near

	f.bridge.Mount(context.Background(), "300000000")
	if f.bridge.Pending() != "300000000" {
		t.Fatalf("pending=%q", f.bridge.Pending())
	}
	if f.view.State().Selected != nil {
		t.Fatal("nothing should be selected before the feature renders")
	}
}

func TestInvalidDeepLinkRedirects(t *testing.T) {
	for _, id := range []string{"abc123", "1234567", "1234567890", "12345678a"} {
		f := newFixture()
		f.bridge.Mount(context.Background(), id)

		if f.locator.calls != 0 {
			t.Errorf("%s: lookup attempted", id)
		}
		if len(f.history.redirected) != 1 || f.history.redirected[0] != "/find-properties" {
			t.Errorf("%s: redirected=%v", id, f.history.redirected)
		}
	}
}

func TestLookupFailureRedirects(t *testing.T) {
	f := newFixture()
	f.bridge.Mount(context.Background(), "123456789")

	if f.locator.calls != 1 {
		t.Fatalf("lookups=%d", f.locator.calls)
	}
	if len(f.history.redirected) != 1 || f.history.redirected[0] != "/find-properties" {
		t.Fatalf("redirected=%v", f.history.redirected)
	}
	if f.bridge.Pending() != "" {
		t.Fatal("pending set after failed lookup")
	}
}

func TestEmptyDeepLinkIsNoop(t *testing.T) {
	f := newFixture()
	f.bridge.Mount(context.Background(), "")
	if f.locator.calls != 0 || len(f.history.redirected) != 0 || len(f.history.replaced) != 0 {
		t.Fatal("empty id should do nothing")
	}
}

func TestSelectionReplacesHistory(t *testing.T) {
	f := newFixture()
	f.vp.Move(context.Background(), viewport.BoundAround(near, 16))

	ids := []string{"100000001", "100000002", "100000003"}
	for _, id := range ids {
		for _, feat := range f.vp.Rendered() {
			if feat.ID == id {
				f.bridge.Select(feat)
			}
		}
	}

	want := []string{"/find-properties/100000001", "/find-properties/100000002", "/find-properties/100000003"}
	if len(f.history.replaced) != len(want) {
		t.Fatalf("replaced=%v, want %v", f.history.replaced, want)
	}
	for i := range want {
		if f.history.replaced[i] != want[i] {
			t.Errorf("replaced[%d]=%s, want %s", i, f.history.replaced[i], want[i])
		}
	}
	if len(f.history.redirected) != 0 {
		t.Errorf("redirected=%v", f.history.redirected)
	}

	f.bridge.Deselect()
	if last := f.history.replaced[len(f.history.replaced)-1]; last != "/find-properties" {
		t.Errorf("deselect replaced %s", last)
	}
	if f.view.State().Selected != nil {
		t.Error("still selected after deselect")
	}
}

func TestMapClick(t *testing.T) {
	f := newFixture()
	f.vp.Move(context.Background(), viewport.BoundAround(near, 16))

	f.vp.Click(near)
	if got := f.view.State().SelectedID(); got != "100000001" {
		t.Fatalf("selected=%q after hit", got)
	}

	f.bridge.HandleClick(orb.Point{near[0], near[1] + 0.01})
	if f.view.State().Selected != nil {
		t.Fatal("miss should clear the selection")
	}
}

func TestSmallScreenSelectionShowsProperties(t *testing.T) {
	f := newFixture()
	f.view.Dispatch(view.Resize{Width: 375})
	s := f.view.State()
	if s.Layout != view.LayoutMap || s.Panel != view.PanelDetail {
		t.Fatalf("precondition: %+v", s)
	}

	f.vp.Move(context.Background(), viewport.BoundAround(near, 16))
	f.vp.Click(near)

	if got := f.view.State().Layout; got != view.LayoutProperties {
		t.Fatalf("layout=%s, want %s", got, view.LayoutProperties)
	}
}

func TestSearchAdoptsMatchingAddress(t *testing.T) {
	f := newFixture()
	if err := f.bridge.Search(context.Background(), "1401 Arch St, Philadelphia, PA 19102", near); err != nil {
		t.Fatal(err)
	}
	if got := f.view.State().SelectedID(); got != "100000002" {
		t.Fatalf("selected=%q, want 100000002", got)
	}
}

func TestSelectionIgnoredWhileStreetViewOpen(t *testing.T) {
	f := newFixture()
	f.vp.Move(context.Background(), viewport.BoundAround(near, 16))
	rendered := map[string]property.Feature{}
	for _, feat := range f.vp.Rendered() {
		rendered[feat.ID] = feat
	}

	if !f.bridge.Select(rendered["100000001"]) {
		t.Fatal("first selection refused")
	}
	f.view.Dispatch(view.OpenStreetView{Anchor: "street-view-button"})

	if f.bridge.Select(rendered["100000002"]) {
		t.Fatal("selection accepted behind the street-view overlay")
	}
	if f.bridge.Deselect() {
		t.Fatal("deselect accepted behind the street-view overlay")
	}
	if got := f.view.State().SelectedID(); got != "100000001" {
		t.Fatalf("selected=%q, want 100000001", got)
	}
	if len(f.history.replaced) != 1 || f.history.replaced[0] != "/find-properties/100000001" {
		t.Fatalf("replaced=%v", f.history.replaced)
	}
}

func TestDeepLinkAdoptedAfterStreetViewCloses(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.view.Dispatch(view.OpenStreetView{Anchor: "street-view-button"})

	f.bridge.Mount(ctx, "200000009")
	if f.view.State().Selected != nil {
		t.Fatal("selected behind the street-view overlay")
	}
	if f.bridge.Pending() != "200000009" {
		t.Fatalf("pending=%q, want kept until adopted", f.bridge.Pending())
	}
	if len(f.history.replaced) != 0 {
		t.Fatalf("replaced=%v", f.history.replaced)
	}

	f.view.Dispatch(view.CloseStreetView{})
	f.vp.Move(ctx, viewport.BoundAround(far, 16))
	if got := f.view.State().SelectedID(); got != "200000009" {
		t.Fatalf("selected=%q, want 200000009", got)
	}
	if f.bridge.Pending() != "" {
		t.Fatalf("pending=%q after adoption", f.bridge.Pending())
	}
	if len(f.history.replaced) != 1 || f.history.replaced[0] != "/find-properties/200000009" {
		t.Fatalf("replaced=%v", f.history.replaced)
	}
}
