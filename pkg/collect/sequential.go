package collect

// SequentialTracker assigns consecutive indexes to keys in the order they are
// first put.
type SequentialTracker[K comparable] struct {
	index map[K]int
	keys  []K
}

// NewSequentialTracker returns an empty tracker.
func NewSequentialTracker[K comparable]() *SequentialTracker[K] {
	return &SequentialTracker[K]{index: make(map[K]int)}
}

// Put records k if it is new.
func (s *SequentialTracker[K]) Put(k K) {
	s.Index(k)
}

// Index returns the index of k, assigning the next one when k is new.
func (s *SequentialTracker[K]) Index(k K) int {
	if i, ok := s.index[k]; ok {
		return i
	}
	i := len(s.keys)
	s.index[k] = i
	s.keys = append(s.keys, k)
	return i
}

// Lookup returns the index of k without assigning one.
func (s *SequentialTracker[K]) Lookup(k K) (int, bool) {
	i, ok := s.index[k]
	return i, ok
}

// IfPresent returns the index of k when it is tracked and k itself otherwise.
func (s *SequentialTracker[K]) IfPresent(k K) any {
	if i, ok := s.index[k]; ok {
		return i
	}
	return k
}

// Keys returns the keys in assignment order.
func (s *SequentialTracker[K]) Keys() []K {
	out := make([]K, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of keys tracked.
func (s *SequentialTracker[K]) Len() int { return len(s.keys) }
