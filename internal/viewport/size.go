package viewport

import (
	"slices"
	"sync"
)

// SizeSignal carries the browser viewport width. It is fed by a single
// resize listener and read by whoever needs to know the screen size.
type SizeSignal struct {
	mu    sync.Mutex
	width int
	subs  []func(int)
}

// NewSizeSignal returns a signal with an unknown (zero) width.
func NewSizeSignal() *SizeSignal {
	return &SizeSignal{}
}

// Width returns the last reported width.
func (s *SizeSignal) Width() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width
}

// Set records a new width and notifies subscribers when it changed.
func (s *SizeSignal) Set(width int) {
	s.mu.Lock()
	if width == s.width {
		s.mu.Unlock()
		return
	}
	s.width = width
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(width)
	}
}

// Subscribe registers fn to be called on every width change.
func (s *SizeSignal) Subscribe(fn func(int)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}
