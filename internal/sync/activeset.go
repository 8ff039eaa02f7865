package sync

import gosync "sync"

// ActiveSet deduplicates concurrent sync attempts on the same destination
// path. It is owned by one Walker run; membership lasts exactly as long
// as the path's session. The mutex is held only for the test-and-set,
// never across I/O.
type ActiveSet struct {
	mu    gosync.Mutex
	paths map[string]struct{}
}

// NewActiveSet creates an empty set.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{paths: make(map[string]struct{})}
}

// TryAcquire marks path active. It returns false if the path is already
// held by another session.
func (s *ActiveSet) TryAcquire(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, active := s.paths[path]; active {
		return false
	}
	s.paths[path] = struct{}{}
	return true
}

// Release removes path from the set.
func (s *ActiveSet) Release(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paths, path)
}

// Len returns the number of currently active paths.
func (s *ActiveSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}
