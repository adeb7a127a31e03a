package handler

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/record"
)

// DistinctValues collects the distinct values of one field with the number
// of times each was seen. It is safe for concurrent Consume.
type DistinctValues[T comparable] struct {
	field string

	mu     sync.Mutex
	counts map[T]int64
	order  []T
}

// NewDistinctValues collects field. A value that does not convert to T (see
// record.As), or whose dynamic type cannot be a map key, fails Consume with
// a type_mismatch error.
func NewDistinctValues[T comparable](field string) *DistinctValues[T] {
	return &DistinctValues[T]{field: field, counts: make(map[T]int64)}
}

// Begin implements Handler.
func (d *DistinctValues[T]) Begin() error { return nil }

// Consume implements Handler.
func (d *DistinctValues[T]) Consume(r *record.Record) error {
	v, ok := r.GetByName(d.field)
	if !ok {
		return errors.New(errors.ErrorTypeInvalidArgument, "unknown field").
			WithDetail("field", d.field)
	}
	key, ok := record.As[T](v)
	if !ok {
		var zero T
		return errors.Newf(errors.ErrorTypeTypeMismatch, "field %s holds %T, not %T", d.field, v, zero).
			WithDetail("field", d.field)
	}
	if v != nil && !reflect.TypeOf(v).Comparable() {
		return errors.Newf(errors.ErrorTypeTypeMismatch, "field %s holds %T, which has no equality", d.field, v).
			WithDetail("field", d.field)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.counts[key]; !seen {
		d.order = append(d.order, key)
	}
	d.counts[key]++
	return nil
}

// End implements Handler.
func (d *DistinctValues[T]) End() error { return nil }

// Values returns the distinct values in first-seen order.
func (d *DistinctValues[T]) Values() []T {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]T, len(d.order))
	copy(out, d.order)
	return out
}

// Counts returns a copy of the value counts.
func (d *DistinctValues[T]) Counts() map[T]int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[T]int64, len(d.counts))
	for k, v := range d.counts {
		out[k] = v
	}
	return out
}

// Len returns the number of distinct values seen.
func (d *DistinctValues[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

// String summarizes the collector for logs.
func (d *DistinctValues[T]) String() string {
	return fmt.Sprintf("distinct(%s)=%d", d.field, d.Len())
}
