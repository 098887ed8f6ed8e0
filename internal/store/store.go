// Package store holds the imported property features and answers the
// viewport's bounding-box queries.
package store

import (
	"context"
	"errors"

	"github.com/paulmach/orb"

	"github.com/joeblew999/cagp/internal/property"
	"github.com/joeblew999/cagp/internal/viewport"
)

// ErrNotFound is returned by Get for an unknown identifier.
var ErrNotFound = errors.New("property not found")

// Store is a read-mostly property feature source.
type Store interface {
	viewport.FeatureSource

	// Get returns the feature with the given OPA id.
	Get(ctx context.Context, opaID string) (property.Feature, error)
	// All returns every feature ordered by id.
	All(ctx context.Context) ([]property.Feature, error)
	// Put inserts or replaces features.
	Put(ctx context.Context, features ...property.Feature) error
	// Summary counts features by priority level.
	Summary(ctx context.Context) (Summary, error)
	Close() error
}

// Summary is a count of stored features.
type Summary struct {
	Total      int            `json:"total"`
	ByPriority map[string]int `json:"byPriority"`
	Bound      orb.Bound      `json:"-"`
}
