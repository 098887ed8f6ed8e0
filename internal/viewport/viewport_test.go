package viewport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"

	"github.com/joeblew999/cagp/internal/filter"
	"github.com/joeblew999/cagp/internal/property"
)

type fakeSource []property.Feature

func (s fakeSource) InBounds(_ context.Context, b orb.Bound) ([]property.Feature, error) {
	var out []property.Feature
	for _, f := range s {
		if b.Intersects(f.Geometry.Bound()) {
			out = append(out, f)
		}
	}
	return out, nil
}

type fakeStyle struct {
	info StyleInfo
	err  error
}

func (s fakeStyle) LoadStyle(context.Context) (StyleInfo, error) { return s.info, s.err }

func square(x, y, d float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x, y}, {x + d, y}, {x + d, y + d}, {x, y + d}, {x, y}}}
}

func source() fakeSource {
	return fakeSource{
		{ID: "100000001", Geometry: square(-75.170, 39.950, 0.001), Attributes: property.Attributes{"priority_level": "High"}},
		{ID: "100000002", Geometry: square(-75.160, 39.950, 0.001), Attributes: property.Attributes{"priority_level": "Low"}},
		{ID: "100000003", Geometry: orb.Point{-75.150, 39.955}, Attributes: property.Attributes{"priority_level": "High"}},
	}
}

var philly = orb.Bound{Min: orb.Point{-75.3, 39.8}, Max: orb.Point{-74.9, 40.1}}

func TestMoveRendersFeaturesInBounds(t *testing.T) {
	v := New(source(), nil)
	var got [][]property.Feature
	v.OnFeaturesChanged(func(fs []property.Feature) { got = append(got, fs) })

	if err := v.Move(context.Background(), philly); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || len(got[0]) != 3 {
		t.Fatalf("notifications=%v", got)
	}

	small := orb.Bound{Min: orb.Point{-75.171, 39.949}, Max: orb.Point{-75.165, 39.952}}
	v.Move(context.Background(), small)
	if n := len(v.Rendered()); n != 1 {
		t.Fatalf("rendered=%d, want 1", n)
	}
}

func TestSetFilterAppliesExpression(t *testing.T) {
	v := New(source(), nil)
	ctx := context.Background()
	v.Move(ctx, philly)

	st := filter.Reduce(filter.State{}, filter.SetDimensions{Attribute: "priority_level", Values: []string{"High"}})
	if err := v.SetFilter(ctx, filter.Compile(st)); err != nil {
		t.Fatal(err)
	}
	if n := len(v.Rendered()); n != 2 {
		t.Fatalf("rendered=%d, want 2", n)
	}

	v.SetFilter(ctx, filter.MatchNone)
	if n := len(v.Rendered()); n != 0 {
		t.Fatalf("rendered=%d, want 0", n)
	}
}

func TestClickHitTesting(t *testing.T) {
	v := New(source(), nil)
	v.Move(context.Background(), philly)

	var clicks int
	v.OnClick(func(orb.Point, []property.Feature) { clicks++ })

	if hits := v.Click(orb.Point{-75.1695, 39.9505}); len(hits) != 1 || hits[0].ID != "100000001" {
		t.Fatalf("polygon hit=%v", hits)
	}
	if hits := v.Click(orb.Point{-75.15005, 39.95505}); len(hits) != 1 || hits[0].ID != "100000003" {
		t.Fatalf("point hit=%v", hits)
	}
	if hits := v.Click(orb.Point{-75.0, 40.0}); len(hits) != 0 {
		t.Fatalf("miss hit=%v", hits)
	}
	if clicks != 3 {
		t.Fatalf("clicks=%d, want 3", clicks)
	}
}

func TestLoadStyle(t *testing.T) {
	ctx := context.Background()

	v := New(source(), fakeStyle{info: StyleInfo{Center: orb.Point{-75.1695, 39.9505}, Zoom: 14}})
	var styleErr error = errors.New("not called")
	v.OnStyleLoaded(func(_ StyleInfo, err error) { styleErr = err })
	if err := v.LoadStyle(ctx); err != nil {
		t.Fatal(err)
	}
	if styleErr != nil {
		t.Fatalf("listener err=%v", styleErr)
	}
	if !v.Bound().Contains(orb.Point{-75.1695, 39.9505}) {
		t.Fatalf("bound %v does not contain the archive center", v.Bound())
	}
	if len(v.Rendered()) == 0 {
		t.Fatal("nothing rendered after centering on the archive")
	}

	broken := New(source(), fakeStyle{err: errors.New("bad magic")})
	if err := broken.LoadStyle(ctx); err == nil {
		t.Fatal("expected error")
	}
	if broken.StyleError() == nil {
		t.Fatal("StyleError not recorded")
	}
}

// gatedSource blocks its first query until release is closed.
type gatedSource struct {
	fakeSource
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (s *gatedSource) InBounds(ctx context.Context, b orb.Bound) ([]property.Feature, error) {
	if s.calls.Add(1) == 1 {
		close(s.entered)
		<-s.release
	}
	return s.fakeSource.InBounds(ctx, b)
}

func TestSlowRefreshDoesNotOverwriteNewerFilter(t *testing.T) {
	src := &gatedSource{fakeSource: source(), entered: make(chan struct{}), release: make(chan struct{})}
	v := New(src, nil)
	ctx := context.Background()

	var notified int
	v.OnFeaturesChanged(func([]property.Feature) { notified++ })

	moved := make(chan error)
	go func() { moved <- v.Move(ctx, philly) }()
	<-src.entered

	st := filter.Reduce(filter.State{}, filter.SetDimensions{Attribute: "priority_level", Values: []string{"High"}})
	if err := v.SetFilter(ctx, filter.Compile(st)); err != nil {
		t.Fatal(err)
	}
	close(src.release)
	if err := <-moved; err != nil {
		t.Fatal(err)
	}

	got := v.Rendered()
	if len(got) != 2 {
		t.Fatalf("rendered=%d, want 2", len(got))
	}
	for _, f := range got {
		if f.Attributes["priority_level"] != "High" {
			t.Fatalf("rendered %s (priority %v) outside the active filter", f.ID, f.Attributes["priority_level"])
		}
	}
	if notified != 1 {
		t.Fatalf("notifications=%d, want 1", notified)
	}
}

func TestSizeSignal(t *testing.T) {
	s := NewSizeSignal()
	var widths []int
	s.Subscribe(func(w int) { widths = append(widths, w) })
	s.Set(1200)
	s.Set(1200)
	s.Set(500)
	if len(widths) != 2 || widths[1] != 500 || s.Width() != 500 {
		t.Fatalf("widths=%v width=%d", widths, s.Width())
	}
}

func TestBoundAround(t *testing.T) {
	c := orb.Point{-75.16, 39.95}
	near := BoundAround(c, 16)
	far := BoundAround(c, 10)
	if !near.Contains(c) || !far.Contains(c) {
		t.Fatal("bound must contain its center")
	}
	if near.Max[0]-near.Min[0] >= far.Max[0]-far.Min[0] {
		t.Fatal("higher zoom should show a smaller area")
	}
}
