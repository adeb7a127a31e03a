// Package filter provides record predicates and the boolean combinators that
// compose them. Filters are immutable once built and may be shared by
// concurrent pipelines.
//
// A filter that cannot evaluate a record, for example because a field holds
// a value of an unexpected type, returns an error instead of a verdict.
// Combinators stop at the first error and return it unchanged.
package filter

import (
	"github.com/ajitpratap0/avrostream/pkg/record"
)

// Filter decides whether a record is accepted.
type Filter interface {
	Match(r *record.Record) (bool, error)
}

// Func adapts a function to the Filter interface.
type Func func(r *record.Record) (bool, error)

// Match implements Filter.
func (f Func) Match(r *record.Record) (bool, error) { return f(r) }

// All matches every record.
var All Filter = Func(func(*record.Record) (bool, error) { return true, nil })

// None matches no record.
var None Filter = Func(func(*record.Record) (bool, error) { return false, nil })

type and []Filter

// And matches when every child matches. Children are evaluated in order and
// evaluation stops at the first non-match. And with no children matches
// everything.
func And(children ...Filter) Filter {
	return and(clone(children))
}

func (a and) Match(r *record.Record) (bool, error) {
	for _, f := range a {
		ok, err := f.Match(r)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

type or []Filter

// Or matches when any child matches. Children are evaluated in order and
// evaluation stops at the first match. Or with no children matches nothing.
func Or(children ...Filter) Filter {
	return or(clone(children))
}

func (o or) Match(r *record.Record) (bool, error) {
	for _, f := range o {
		ok, err := f.Match(r)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type not struct{ f Filter }

// Not inverts f. Errors from f pass through.
func Not(f Filter) Filter {
	return not{f: f}
}

func (n not) Match(r *record.Record) (bool, error) {
	ok, err := n.f.Match(r)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// AndBuilder accumulates children for an And filter.
type AndBuilder struct {
	children []Filter
}

// NewAndBuilder returns an empty builder.
func NewAndBuilder() *AndBuilder { return &AndBuilder{} }

// Add appends a child.
func (b *AndBuilder) Add(f Filter) *AndBuilder {
	b.children = append(b.children, f)
	return b
}

// Build returns an And over the children added so far. Later Adds do not
// affect filters already built.
func (b *AndBuilder) Build() Filter { return And(b.children...) }

// OrBuilder accumulates children for an Or filter.
type OrBuilder struct {
	children []Filter
}

// NewOrBuilder returns an empty builder.
func NewOrBuilder() *OrBuilder { return &OrBuilder{} }

// Add appends a child.
func (b *OrBuilder) Add(f Filter) *OrBuilder {
	b.children = append(b.children, f)
	return b
}

// Build returns an Or over the children added so far.
func (b *OrBuilder) Build() Filter { return Or(b.children...) }

func clone(fs []Filter) []Filter {
	out := make([]Filter, len(fs))
	copy(out, fs)
	return out
}
