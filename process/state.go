package process

import "sync"

// State references one Config plus the ordered queue of currently-live
// Process instances spawned for it, and a stopped flag that once set
// prevents further spawns. The Manager is the only owner and mutator of
// State; it is not safe for concurrent use on its own.
type State struct {
	Config  Config
	queue   []*Process
	stopped bool
}

// NewState wraps cfg in a fresh, non-stopped State with an empty queue.
func NewState(cfg Config) *State {
	return &State{Config: cfg}
}

// Active reports whether the state's queue is non-empty.
func (s *State) Active() bool { return len(s.queue) > 0 }

// Stopped reports whether unload/shutdown has begun for this state.
func (s *State) Stopped() bool { return s.stopped }

// Stop marks the state stopped; a stopped state never spawns again.
func (s *State) Stop() { s.stopped = true }

// Enqueue adds p to the live-process queue.
func (s *State) Enqueue(p *Process) { s.queue = append(s.queue, p) }

// Remove drops p from the live-process queue, if present.
func (s *State) Remove(p *Process) {
	for i, q := range s.queue {
		if q == p {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// Drain empties and returns the live-process queue, for reaping.
func (s *State) Drain() []*Process {
	live := s.queue
	s.queue = nil
	return live
}

// Table is an insertion-ordered map of state name to *State. Go maps
// don't preserve insertion order, so Table tracks an explicit name slice
// alongside the lookup map.
type Table struct {
	mu    sync.Mutex
	names []string
	byName map[string]*State
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*State)}
}

// Insert adds a new State for name, returning false if name already
// exists (caller should surface ProcessConflict).
func (t *Table) Insert(name string, s *State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byName[name]; exists {
		return false
	}
	t.byName[name] = s
	t.names = append(t.names, name)
	return true
}

// Get looks up a State by name.
func (t *Table) Get(name string) (*State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byName[name]
	return s, ok
}

// Delete removes name from the table, returning false if it was absent.
func (t *Table) Delete(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byName[name]; !ok {
		return false
	}
	delete(t.byName, name)
	for i, n := range t.names {
		if n == name {
			t.names = append(t.names[:i], t.names[i+1:]...)
			break
		}
	}
	return true
}

// Each calls fn for every state, in insertion order.
func (t *Table) Each(fn func(name string, s *State)) {
	t.mu.Lock()
	names := append([]string(nil), t.names...)
	t.mu.Unlock()

	for _, n := range names {
		t.mu.Lock()
		s, ok := t.byName[n]
		t.mu.Unlock()
		if ok {
			fn(n, s)
		}
	}
}

// Len reports the number of states currently in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.names)
}
