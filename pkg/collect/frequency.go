// Package collect holds small single-goroutine trackers used to build value
// dictionaries from record streams.
package collect

import (
	"slices"
)

// FrequencyTracker counts occurrences of keys. Keys with equal counts keep
// the order in which they were first seen.
type FrequencyTracker[K comparable] struct {
	counts map[K]int64
	order  []K
}

// NewFrequencyTracker returns an empty tracker.
func NewFrequencyTracker[K comparable]() *FrequencyTracker[K] {
	return &FrequencyTracker[K]{counts: make(map[K]int64)}
}

// Increment adds one occurrence of k and returns its new count.
func (f *FrequencyTracker[K]) Increment(k K) int64 {
	n, seen := f.counts[k]
	if !seen {
		f.order = append(f.order, k)
	}
	n++
	f.counts[k] = n
	return n
}

// Count returns the occurrences of k.
func (f *FrequencyTracker[K]) Count(k K) int64 { return f.counts[k] }

// Len returns the number of distinct keys.
func (f *FrequencyTracker[K]) Len() int { return len(f.order) }

// Keys returns every key by descending count.
func (f *FrequencyTracker[K]) Keys() []K {
	keys := slices.Clone(f.order)
	slices.SortStableFunc(keys, func(a, b K) int {
		ca, cb := f.counts[a], f.counts[b]
		switch {
		case ca > cb:
			return -1
		case ca < cb:
			return 1
		}
		return 0
	})
	return keys
}

// TopN returns at most n keys by descending count.
func (f *FrequencyTracker[K]) TopN(n int) []K {
	keys := f.Keys()
	if n < 0 {
		n = 0
	}
	if n < len(keys) {
		keys = keys[:n]
	}
	return keys
}

// Frequencies returns a copy of the counts.
func (f *FrequencyTracker[K]) Frequencies() map[K]int64 {
	out := make(map[K]int64, len(f.counts))
	for k, v := range f.counts {
		out[k] = v
	}
	return out
}
