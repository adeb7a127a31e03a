package filter

import (
	"bytes"
	"cmp"
	"reflect"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/record"
)

// EQ matches records whose field equals value. Integers compare by value
// across widths and so do floats; []byte compares by content. A nil value
// matches a null field.
func EQ(field string, value any) Filter {
	return Func(func(r *record.Record) (bool, error) {
		v, err := lookup(r, field)
		if err != nil {
			return false, err
		}
		return equal(v, value), nil
	})
}

// NE is the negation of EQ.
func NE(field string, value any) Filter {
	return Not(EQ(field, value))
}

// GT matches records whose field is greater than value.
func GT[T cmp.Ordered](field string, value T) Filter {
	return ordered(field, value, func(c int) bool { return c > 0 })
}

// GE matches records whose field is greater than or equal to value.
func GE[T cmp.Ordered](field string, value T) Filter {
	return ordered(field, value, func(c int) bool { return c >= 0 })
}

// LT matches records whose field is less than value.
func LT[T cmp.Ordered](field string, value T) Filter {
	return ordered(field, value, func(c int) bool { return c < 0 })
}

// LE matches records whose field is less than or equal to value.
func LE[T cmp.Ordered](field string, value T) Filter {
	return ordered(field, value, func(c int) bool { return c <= 0 })
}

// IsNull matches records whose field is null.
func IsNull(field string) Filter {
	return Func(func(r *record.Record) (bool, error) {
		v, err := lookup(r, field)
		if err != nil {
			return false, err
		}
		return v == nil, nil
	})
}

// NotNull matches records whose field is not null.
func NotNull(field string) Filter {
	return Not(IsNull(field))
}

func ordered[T cmp.Ordered](field string, value T, accept func(int) bool) Filter {
	return Func(func(r *record.Record) (bool, error) {
		v, err := lookup(r, field)
		if err != nil {
			return false, err
		}
		got, ok := record.As[T](v)
		if !ok {
			return false, errors.Newf(errors.ErrorTypeTypeMismatch,
				"field %s holds %T, cannot compare with %T", field, v, value).
				WithDetail("field", field)
		}
		return accept(cmp.Compare(got, value)), nil
	})
}

func lookup(r *record.Record, field string) (any, error) {
	v, ok := r.GetByName(field)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInvalidArgument, "unknown field").
			WithDetail("field", field).
			WithDetail("schema", r.Schema().Name())
	}
	return v, nil
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := toInt(a); ok {
		if y, ok := toInt(b); ok {
			return x == y
		}
	}
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x == y
		}
	}
	if x, ok := a.([]byte); ok {
		if y, ok := b.([]byte); ok {
			return bytes.Equal(x, y)
		}
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}
