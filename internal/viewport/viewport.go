// Package viewport models the map widget as an explicit capability: the
// visible bounds, the active filter expression and the set of rendered
// features, with subscriptions for feature-set changes, clicks and style
// loading.
package viewport

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/planar"

	"github.com/joeblew999/cagp/internal/filter"
	"github.com/joeblew999/cagp/internal/property"
)

// FeatureSource returns the properties inside a bounding box.
type FeatureSource interface {
	InBounds(ctx context.Context, bound orb.Bound) ([]property.Feature, error)
}

// StyleInfo is what the map needs from the tile archive to start rendering.
type StyleInfo struct {
	Bound   orb.Bound
	Center  orb.Point
	Zoom    float64
	MinZoom int
	MaxZoom int
	Layers  []string
}

// StyleLoader opens the tile archive backing the map style.
type StyleLoader interface {
	LoadStyle(ctx context.Context) (StyleInfo, error)
}

// MapViewport is the map capability the finder coordinates against.
type MapViewport interface {
	OnFeaturesChanged(fn func([]property.Feature))
	OnClick(fn func(orb.Point, []property.Feature))
	OnStyleLoaded(fn func(StyleInfo, error))

	QueryRenderedFeatures(pt orb.Point) []property.Feature
	SetFilter(ctx context.Context, expr filter.Expr) error
	Move(ctx context.Context, bound orb.Bound) error
	FlyTo(ctx context.Context, center orb.Point, zoom float64) error
}

// DefaultHitTolerance is the click radius, in degrees, for point features.
const DefaultHitTolerance = 0.0002

// Viewport is the server-side model of one browser map.
type Viewport struct {
	source    FeatureSource
	style     StyleLoader
	tolerance float64

	mu        sync.RWMutex
	gen       uint64
	bound     orb.Bound
	zoom      float64
	expr      filter.Expr
	rendered  []property.Feature
	styleInfo StyleInfo
	styleErr  error

	lmu      sync.Mutex
	onChange []func([]property.Feature)
	onClick  []func(orb.Point, []property.Feature)
	onStyle  []func(StyleInfo, error)
	onFly    []func(orb.Point, float64)
}

var _ MapViewport = (*Viewport)(nil)

// New creates a viewport over source. style may be nil when there is no
// tile archive to read.
func New(source FeatureSource, style StyleLoader) *Viewport {
	return &Viewport{
		source:    source,
		style:     style,
		tolerance: DefaultHitTolerance,
		expr:      filter.MatchAll,
	}
}

// OnFeaturesChanged registers fn for rendered feature-set changes.
func (v *Viewport) OnFeaturesChanged(fn func([]property.Feature)) {
	v.lmu.Lock()
	v.onChange = append(v.onChange, fn)
	v.lmu.Unlock()
}

// OnClick registers fn for map clicks.
func (v *Viewport) OnClick(fn func(orb.Point, []property.Feature)) {
	v.lmu.Lock()
	v.onClick = append(v.onClick, fn)
	v.lmu.Unlock()
}

// OnStyleLoaded registers fn for style load results.
func (v *Viewport) OnStyleLoaded(fn func(StyleInfo, error)) {
	v.lmu.Lock()
	v.onStyle = append(v.onStyle, fn)
	v.lmu.Unlock()
}

// OnRecentered registers fn for FlyTo calls, so the browser map can follow
// server-initiated moves.
func (v *Viewport) OnRecentered(fn func(center orb.Point, zoom float64)) {
	v.lmu.Lock()
	v.onFly = append(v.onFly, fn)
	v.lmu.Unlock()
}

// Bound returns the visible bounds.
func (v *Viewport) Bound() orb.Bound {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.bound
}

// Zoom returns the current zoom level.
func (v *Viewport) Zoom() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.zoom
}

// Filter returns the active filter expression.
func (v *Viewport) Filter() filter.Expr {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.expr
}

// Rendered returns the features currently visible and passing the filter.
func (v *Viewport) Rendered() []property.Feature {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]property.Feature(nil), v.rendered...)
}

// StyleError returns the error from the last LoadStyle, if any.
func (v *Viewport) StyleError() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.styleErr
}

// LoadStyle reads the tile archive and, when the viewport has no bounds yet,
// centers it on the archive's default view. A failure is recorded and
// reported to subscribers; it is not retried.
func (v *Viewport) LoadStyle(ctx context.Context) error {
	var (
		info StyleInfo
		err  error
	)
	if v.style == nil {
		err = fmt.Errorf("no tile archive configured")
	} else {
		info, err = v.style.LoadStyle(ctx)
	}

	v.mu.Lock()
	v.styleInfo, v.styleErr = info, err
	empty := noBound(v.bound)
	v.mu.Unlock()

	v.lmu.Lock()
	listeners := slices.Clone(v.onStyle)
	v.lmu.Unlock()
	for _, fn := range listeners {
		fn(info, err)
	}

	if err != nil {
		return err
	}
	if empty {
		return v.FlyTo(ctx, info.Center, info.Zoom)
	}
	return nil
}

// SetFilter replaces the filter expression and re-renders.
func (v *Viewport) SetFilter(ctx context.Context, expr filter.Expr) error {
	v.mu.Lock()
	v.expr = expr
	v.gen++
	v.mu.Unlock()
	return v.refresh(ctx)
}

// Move sets the visible bounds and re-renders.
func (v *Viewport) Move(ctx context.Context, bound orb.Bound) error {
	v.mu.Lock()
	v.bound = bound
	v.gen++
	v.mu.Unlock()
	return v.refresh(ctx)
}

// FlyTo centers the viewport on center at zoom and re-renders.
func (v *Viewport) FlyTo(ctx context.Context, center orb.Point, zoom float64) error {
	v.mu.Lock()
	v.zoom = zoom
	v.bound = BoundAround(center, zoom)
	v.gen++
	v.mu.Unlock()

	v.lmu.Lock()
	listeners := slices.Clone(v.onFly)
	v.lmu.Unlock()
	for _, fn := range listeners {
		fn(center, zoom)
	}
	return v.refresh(ctx)
}

// Click hit-tests pt and notifies click subscribers with the hits.
func (v *Viewport) Click(pt orb.Point) []property.Feature {
	hits := v.QueryRenderedFeatures(pt)

	v.lmu.Lock()
	listeners := slices.Clone(v.onClick)
	v.lmu.Unlock()
	for _, fn := range listeners {
		fn(pt, hits)
	}
	return hits
}

// QueryRenderedFeatures returns the rendered features under pt: polygons
// containing it, and points within the hit tolerance.
func (v *Viewport) QueryRenderedFeatures(pt orb.Point) []property.Feature {
	v.mu.RLock()
	defer v.mu.RUnlock()

	var hits []property.Feature
	for _, f := range v.rendered {
		if v.hit(f.Geometry, pt) {
			hits = append(hits, f)
		}
	}
	return hits
}

func (v *Viewport) hit(g orb.Geometry, pt orb.Point) bool {
	switch geom := g.(type) {
	case orb.Point:
		return planar.Distance(geom, pt) <= v.tolerance
	case orb.MultiPoint:
		for _, p := range geom {
			if planar.Distance(p, pt) <= v.tolerance {
				return true
			}
		}
	case orb.Polygon:
		return planar.PolygonContains(geom, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, pt)
	}
	return false
}

// refresh re-queries the rendered set for the current bounds and filter.
// A result is discarded when the bounds or filter changed while it was
// being computed; the refresh started by that change renders instead.
func (v *Viewport) refresh(ctx context.Context) error {
	v.mu.RLock()
	bound, expr, gen := v.bound, v.expr, v.gen
	v.mu.RUnlock()

	var rendered []property.Feature
	if !noBound(bound) {
		features, err := v.source.InBounds(ctx, bound)
		if err != nil {
			return fmt.Errorf("query features: %w", err)
		}
		for _, f := range features {
			if expr.Match(f.Attributes) {
				rendered = append(rendered, f)
			}
		}
	}

	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		return nil
	}
	v.rendered = rendered
	v.mu.Unlock()

	v.lmu.Lock()
	listeners := slices.Clone(v.onChange)
	v.lmu.Unlock()
	for _, fn := range listeners {
		fn(append([]property.Feature(nil), rendered...))
	}
	return nil
}

func noBound(b orb.Bound) bool {
	return b.IsZero() || b.IsEmpty()
}

// BoundAround returns the area shown when the map is centered on center at
// zoom: the tile containing center plus one tile on each side.
func BoundAround(center orb.Point, zoom float64) orb.Bound {
	z := maptile.Zoom(max(0, min(22, int(zoom))))
	t := maptile.At(center, z)
	b := t.Bound()
	w := b.Max[0] - b.Min[0]
	h := b.Max[1] - b.Min[1]
	return orb.Bound{
		Min: orb.Point{center[0] - w*1.5, center[1] - h*1.5},
		Max: orb.Point{center[0] + w*1.5, center[1] + h*1.5},
	}
}
