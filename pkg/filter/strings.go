package filter

import (
	"strings"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/record"
)

// String filters compare the string form of a field value (see
// record.Format). With ignoreCase both sides are lower-cased first. A null
// field is a type mismatch for every string filter except Empty and
// NotEmpty, which treat it as the empty string.

// Empty matches records whose field is null or formats as "".
func Empty(field string) Filter {
	return Func(func(r *record.Record) (bool, error) {
		v, err := lookup(r, field)
		if err != nil {
			return false, err
		}
		return record.Format(v) == "", nil
	})
}

// NotEmpty is the negation of Empty.
func NotEmpty(field string) Filter {
	return Not(Empty(field))
}

// StartsWith matches records whose field begins with prefix.
func StartsWith(field, prefix string, ignoreCase bool) Filter {
	return stringOp(field, prefix, ignoreCase, strings.HasPrefix)
}

// EndsWith matches records whose field ends with suffix.
func EndsWith(field, suffix string, ignoreCase bool) Filter {
	return stringOp(field, suffix, ignoreCase, strings.HasSuffix)
}

// Contains matches records whose field contains sub.
func Contains(field, sub string, ignoreCase bool) Filter {
	return stringOp(field, sub, ignoreCase, strings.Contains)
}

// StrEQ matches records whose field equals s.
func StrEQ(field, s string, ignoreCase bool) Filter {
	return stringCompare(field, s, ignoreCase, func(c int) bool { return c == 0 })
}

// StrNE matches records whose field differs from s.
func StrNE(field, s string, ignoreCase bool) Filter {
	return stringCompare(field, s, ignoreCase, func(c int) bool { return c != 0 })
}

// StrLT matches records whose field sorts before s.
func StrLT(field, s string, ignoreCase bool) Filter {
	return stringCompare(field, s, ignoreCase, func(c int) bool { return c < 0 })
}

// StrLE matches records whose field sorts before or equal to s.
func StrLE(field, s string, ignoreCase bool) Filter {
	return stringCompare(field, s, ignoreCase, func(c int) bool { return c <= 0 })
}

// StrGT matches records whose field sorts after s.
func StrGT(field, s string, ignoreCase bool) Filter {
	return stringCompare(field, s, ignoreCase, func(c int) bool { return c > 0 })
}

// StrGE matches records whose field sorts after or equal to s.
func StrGE(field, s string, ignoreCase bool) Filter {
	return stringCompare(field, s, ignoreCase, func(c int) bool { return c >= 0 })
}

func stringCompare(field, arg string, ignoreCase bool, accept func(int) bool) Filter {
	return stringOp(field, arg, ignoreCase, func(v, arg string) bool {
		return accept(strings.Compare(v, arg))
	})
}

func stringOp(field, arg string, ignoreCase bool, op func(v, arg string) bool) Filter {
	if ignoreCase {
		arg = strings.ToLower(arg)
	}
	return Func(func(r *record.Record) (bool, error) {
		v, err := lookup(r, field)
		if err != nil {
			return false, err
		}
		if v == nil {
			return false, errors.Newf(errors.ErrorTypeTypeMismatch, "field %s is null", field).
				WithDetail("field", field)
		}
		s := record.Format(v)
		if ignoreCase {
			s = strings.ToLower(s)
		}
		return op(s, arg), nil
	})
}
