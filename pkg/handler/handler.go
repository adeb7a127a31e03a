// Package handler defines the record consumer contract and the stateful
// handlers built on it: fan-out composition, filtering, counting, distinct
// values, exact percentiles and offset indexing.
//
// A pipeline calls Begin once, Consume for each accepted record and End once
// after the last record. Consume is never called before Begin or after End.
// When Begin or Consume fails the run stops and End is not called.
package handler

import (
	"github.com/ajitpratap0/avrostream/pkg/filter"
	"github.com/ajitpratap0/avrostream/pkg/record"
)

// Handler consumes records and owns whatever state it aggregates.
type Handler interface {
	Begin() error
	Consume(r *record.Record) error
	End() error
}

// Func builds a Handler from optional callbacks.
type Func struct {
	OnBegin   func() error
	OnConsume func(r *record.Record) error
	OnEnd     func() error
}

// Begin implements Handler.
func (f Func) Begin() error {
	if f.OnBegin == nil {
		return nil
	}
	return f.OnBegin()
}

// Consume implements Handler.
func (f Func) Consume(r *record.Record) error {
	if f.OnConsume == nil {
		return nil
	}
	return f.OnConsume(r)
}

// End implements Handler.
func (f Func) End() error {
	if f.OnEnd == nil {
		return nil
	}
	return f.OnEnd()
}

// Compound forwards every call to its children in list order. The first
// child error aborts the call and is returned unchanged.
type Compound struct {
	children []Handler
}

// NewCompound returns a Compound over children.
func NewCompound(children ...Handler) *Compound {
	c := make([]Handler, len(children))
	copy(c, children)
	return &Compound{children: c}
}

// Begin implements Handler.
func (c *Compound) Begin() error {
	for _, h := range c.children {
		if err := h.Begin(); err != nil {
			return err
		}
	}
	return nil
}

// Consume implements Handler.
func (c *Compound) Consume(r *record.Record) error {
	for _, h := range c.children {
		if err := h.Consume(r); err != nil {
			return err
		}
	}
	return nil
}

// End implements Handler.
func (c *Compound) End() error {
	for _, h := range c.children {
		if err := h.End(); err != nil {
			return err
		}
	}
	return nil
}

// CompoundBuilder accumulates children for a Compound.
type CompoundBuilder struct {
	children []Handler
}

// NewCompoundBuilder returns an empty builder.
func NewCompoundBuilder() *CompoundBuilder { return &CompoundBuilder{} }

// Add appends a child.
func (b *CompoundBuilder) Add(h Handler) *CompoundBuilder {
	b.children = append(b.children, h)
	return b
}

// Build returns a Compound over the children added so far.
func (b *CompoundBuilder) Build() *Compound { return NewCompound(b.children...) }

// Filtered forwards Begin and End unconditionally and Consume only for
// records accepted by its filter.
type Filtered struct {
	filter filter.Filter
	next   Handler
}

// NewFiltered wraps next behind f. A nil f accepts every record.
func NewFiltered(f filter.Filter, next Handler) *Filtered {
	if f == nil {
		f = filter.All
	}
	return &Filtered{filter: f, next: next}
}

// Begin implements Handler.
func (h *Filtered) Begin() error { return h.next.Begin() }

// Consume implements Handler.
func (h *Filtered) Consume(r *record.Record) error {
	ok, err := h.filter.Match(r)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return h.next.Consume(r)
}

// End implements Handler.
func (h *Filtered) End() error { return h.next.End() }
