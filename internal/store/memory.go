package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/cagp/internal/property"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	features map[string]property.Feature
}

var _ Store = (*Memory)(nil)

// NewMemory returns a store holding features.
func NewMemory(features ...property.Feature) *Memory {
	m := &Memory{features: make(map[string]property.Feature, len(features))}
	for _, f := range features {
		m.features[f.ID] = f
	}
	return m
}

func (m *Memory) sorted(keep func(property.Feature) bool) []property.Feature {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []property.Feature
	for _, id := range slices.Sorted(maps.Keys(m.features)) {
		if f := m.features[id]; keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// InBounds returns features whose bounds intersect b, ordered by id.
func (m *Memory) InBounds(_ context.Context, b orb.Bound) ([]property.Feature, error) {
	return m.sorted(func(f property.Feature) bool {
		return f.Geometry != nil && b.Intersects(f.Geometry.Bound())
	}), nil
}

func (m *Memory) Get(_ context.Context, opaID string) (property.Feature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.features[opaID]
	if !ok {
		return property.Feature{}, ErrNotFound
	}
	return f, nil
}

func (m *Memory) All(context.Context) ([]property.Feature, error) {
	return m.sorted(func(property.Feature) bool { return true }), nil
}

func (m *Memory) Put(_ context.Context, features ...property.Feature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range features {
		m.features[f.ID] = f
	}
	return nil
}

func (m *Memory) Summary(context.Context) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Summary{ByPriority: map[string]int{}}
	seen := false
	for _, f := range m.features {
		s.Total++
		if p := f.Priority(); p != "" {
			s.ByPriority[p]++
		}
		if f.Geometry == nil {
			continue
		}
		if b := f.Geometry.Bound(); seen {
			s.Bound = s.Bound.Union(b)
		} else {
			s.Bound, seen = b, true
		}
	}
	return s, nil
}

func (m *Memory) Close() error { return nil }
