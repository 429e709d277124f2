package session

import "sync"

// Store is the only place a session is mutated. Create one per session and
// pass it to whatever needs it.
type Store struct {
	// notifyMu orders fan-out so subscribers see states in dispatch order.
	notifyMu    sync.Mutex
	mu          sync.RWMutex
	state       State
	nextID      int
	subscribers map[int]func(State)
}

func NewStore() *Store {
	return &Store{
		state:       Initial(),
		subscribers: make(map[int]func(State)),
	}
}

func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Dispatch applies action and notifies subscribers before returning.
// Subscribers must not call Dispatch themselves.
func (s *Store) Dispatch(action Action) State {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.state = Reduce(s.state, action)
	next := s.state.clone()
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next.clone())
	}
	return next
}

func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}
