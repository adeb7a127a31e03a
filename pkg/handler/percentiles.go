package handler

import (
	"cmp"
	"math/big"
	"slices"
	"strconv"
	"sync"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/record"
)

// PercentilesExact buffers every value of one field and answers percentile
// queries by sorting them. Consume is safe for concurrent use.
type PercentilesExact[T cmp.Ordered] struct {
	field     string
	ascending bool

	mu     sync.Mutex
	values []T
	sorted bool
}

// NewPercentilesExact collects field. With ascending false the values are
// ranked from largest to smallest.
func NewPercentilesExact[T cmp.Ordered](field string, ascending bool) *PercentilesExact[T] {
	return &PercentilesExact[T]{field: field, ascending: ascending}
}

// Begin implements Handler.
func (p *PercentilesExact[T]) Begin() error { return nil }

// Consume implements Handler.
func (p *PercentilesExact[T]) Consume(r *record.Record) error {
	v, ok := r.GetByName(p.field)
	if !ok {
		return errors.New(errors.ErrorTypeInvalidArgument, "unknown field").
			WithDetail("field", p.field)
	}
	t, ok := record.As[T](v)
	if !ok {
		var zero T
		return errors.Newf(errors.ErrorTypeTypeMismatch, "field %s holds %T, not %T", p.field, v, zero).
			WithDetail("field", p.field)
	}
	p.mu.Lock()
	p.values = append(p.values, t)
	p.sorted = false
	p.mu.Unlock()
	return nil
}

// End implements Handler.
func (p *PercentilesExact[T]) End() error { return nil }

// Len returns the number of values collected.
func (p *PercentilesExact[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.values)
}

// Percentiles returns the value at each requested percentile. Each p in
// [0, 1] selects index floor(p*n) of the sorted values, computed on the
// shortest decimal form of p; p = 1 selects the last value.
func (p *PercentilesExact[T]) Percentiles(ps []float64) (map[float64]T, error) {
	out := make(map[float64]T, len(ps))
	for _, pf := range ps {
		rat, ok := new(big.Rat).SetString(strconv.FormatFloat(pf, 'f', -1, 64))
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeInvalidArgument, "percentile %v is not a number", pf)
		}
		v, err := p.At(rat)
		if err != nil {
			return nil, err
		}
		out[pf] = v
	}
	return out, nil
}

// At returns the value at percentile q.
func (p *PercentilesExact[T]) At(q *big.Rat) (T, error) {
	var zero T
	if q.Sign() < 0 || q.Cmp(big.NewRat(1, 1)) > 0 {
		return zero, errors.Newf(errors.ErrorTypeInvalidArgument,
			"percentile must be between 0 and 1, inclusive: got %s", q.FloatString(6)).
			WithDetail("field", p.field)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.values)
	if n == 0 {
		return zero, errors.New(errors.ErrorTypeInvalidArgument, "no values collected").
			WithDetail("field", p.field)
	}
	p.sort()

	// floor(q*n); Quo on big.Int truncates, which is floor for q >= 0
	scaled := new(big.Rat).Mul(q, new(big.Rat).SetInt64(int64(n)))
	idx := new(big.Int).Quo(scaled.Num(), scaled.Denom()).Int64()
	if idx >= int64(n) {
		idx = int64(n) - 1
	}
	return p.values[idx], nil
}

// ParsePercentile parses a decimal percentile such as "0.95" exactly.
func ParsePercentile(s string) (*big.Rat, error) {
	q, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInvalidArgument, "percentile is not a decimal number").
			WithDetail("percentile", s)
	}
	return q, nil
}

func (p *PercentilesExact[T]) sort() {
	if p.sorted {
		return
	}
	if p.ascending {
		slices.Sort(p.values)
	} else {
		slices.SortFunc(p.values, func(a, b T) int { return cmp.Compare(b, a) })
	}
	p.sorted = true
}
