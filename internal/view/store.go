package view

import "sync"

// Store owns a view State.
type Store struct {
	dispatchMu sync.Mutex
	mu         sync.RWMutex
	state      State
	subs       map[int]func(State)
	nextID     int
}

// NewStore returns a store in the Initial state.
func NewStore() *Store {
	return &Store{state: Initial(), subs: make(map[int]func(State))}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Dispatch applies a and notifies subscribers in registration order.
// Subscribers must not call Dispatch.
func (s *Store) Dispatch(a Action) State {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	prev := s.state
	s.state = Reduce(s.state, a)
	next := s.state
	var subs []func(State)
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	if next != prev {
		for _, fn := range subs {
			fn(next)
		}
	}
	return next
}

// Subscribe registers fn for state changes. The returned func removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
