package filter

import "sync"

// Store owns a filter State and is the only way to mutate it.
type Store struct {
	dispatchMu sync.Mutex
	mu         sync.RWMutex
	state      State
	subs       map[int]func(State)
	nextID     int
}

// NewStore creates a store seeded with initial, which may be nil.
func NewStore(initial State) *Store {
	if initial == nil {
		initial = State{}
	}
	return &Store{state: initial.Clone(), subs: make(map[int]func(State))}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// ActiveCount is the number of constrained attributes.
func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state)
}

// Dispatch applies a and notifies subscribers with the new state. Calls are
// serialized, so subscribers observe states in dispatch order. Subscribers
// may read the store but must not call Dispatch.
func (s *Store) Dispatch(a Action) State {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	s.state = Reduce(s.state, a)
	next := s.state.Clone()
	subs := make([]func(State), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next.Clone())
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
