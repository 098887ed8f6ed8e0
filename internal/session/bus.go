package session

import (
	"slices"
	"sync"

	"github.com/paulmach/orb"

	"github.com/joeblew999/cagp/internal/utils"
)

// ChangeKind names the part of a session that changed.
type ChangeKind string

const (
	FiltersChanged  ChangeKind = "filters"
	ViewChanged     ChangeKind = "view"
	FeaturesChanged ChangeKind = "features"
	StyleChanged    ChangeKind = "style"
	Navigated       ChangeKind = "navigate"
	Redirected      ChangeKind = "redirect"
	Recentered      ChangeKind = "recenter"
	ListPaged       ChangeKind = "page"
)

// Change is a session state notification.
type Change struct {
	Kind ChangeKind
	Path string // Navigated, Redirected
	Err  error  // StyleChanged

	Center orb.Point // Recentered
	Zoom   float64   // Recentered
}

const changeBuffer = 64

// Bus fans session changes out to subscribers in subscription order. A
// subscriber whose buffer is full misses the change.
type Bus struct {
	mu   sync.Mutex
	subs []chan Change
}

// Publish delivers c without blocking.
func (b *Bus) Publish(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		select {
		case ch <- c:
		default:
			utils.Log.WithField("subscriber", i).Debugf("dropped %s change", c.Kind)
		}
	}
}

// Subscribe returns a buffered channel that receives changes.
func (b *Bus) Subscribe() chan Change {
	ch := make(chan Change, changeBuffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it. Repeated calls are no-ops.
func (b *Bus) Unsubscribe(ch chan Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := slices.Index(b.subs, ch); i >= 0 {
		b.subs = slices.Delete(b.subs, i, i+1)
		close(ch)
	}
}
