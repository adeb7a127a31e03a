// Package record provides the in-memory record model: an ordered array of
// field values bound to a schema, with positional and named access.
package record

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

// Record is a schema-bound ordered value array. Union values are stored
// unwrapped; a null branch is stored as nil.
//
// A Record is not safe for concurrent mutation.
type Record struct {
	schema *schema.Schema
	values []any
}

// New allocates an empty record for s.
func New(s *schema.Schema) *Record {
	return &Record{schema: s, values: make([]any, s.Len())}
}

// Of builds a record from values given in field order.
func Of(s *schema.Schema, values ...any) (*Record, error) {
	if len(values) != s.Len() {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
			"record %s has %d fields, got %d values", s.Name(), s.Len(), len(values))
	}
	r := New(s)
	copy(r.values, values)
	return r, nil
}

// Schema returns the schema the record is bound to.
func (r *Record) Schema() *schema.Schema { return r.schema }

// Len returns the number of fields.
func (r *Record) Len() int { return len(r.values) }

// Get returns the value at position i.
func (r *Record) Get(i int) any { return r.values[i] }

// Put sets the value at position i.
func (r *Record) Put(i int, v any) { r.values[i] = v }

// Values returns the backing value slice in field order.
func (r *Record) Values() []any { return r.values }

// GetByName returns the value of the named field. ok is false when the schema
// has no such field.
func (r *Record) GetByName(name string) (v any, ok bool) {
	pos, ok := r.schema.Position(name)
	if !ok {
		return nil, false
	}
	return r.values[pos], true
}

// PutByName sets the value of the named field.
func (r *Record) PutByName(name string, v any) error {
	pos, ok := r.schema.Position(name)
	if !ok {
		return unknownField(r.schema, name)
	}
	r.values[pos] = v
	return nil
}

// Reset clears every value so the record can be reused.
func (r *Record) Reset() {
	clear(r.values)
}

// Clone returns a shallow copy bound to the same schema.
func (r *Record) Clone() *Record {
	c := &Record{schema: r.schema, values: make([]any, len(r.values))}
	copy(c.values, r.values)
	return c
}

// Map returns the record as a field name to value map.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for i, f := range r.schema.Fields() {
		m[f.Name] = r.values[i]
	}
	return m
}

// String renders the record as name=value pairs.
func (r *Record) String() string {
	buf := make([]byte, 0, 64)
	buf = append(buf, '{')
	for i, f := range r.schema.Fields() {
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = append(buf, f.Name...)
		buf = append(buf, '=')
		buf = append(buf, fmt.Sprint(r.values[i])...)
	}
	buf = append(buf, '}')
	return string(buf)
}

// Field returns the named field's value as T. A missing field is an
// invalid_argument error; a value of another dynamic type, including nil, is
// a type_mismatch error.
func Field[T any](r *Record, name string) (T, error) {
	var zero T
	v, ok := r.GetByName(name)
	if !ok {
		return zero, unknownField(r.schema, name)
	}
	t, ok := v.(T)
	if !ok {
		return zero, mismatch(name, v, fmt.Sprintf("%T", zero))
	}
	return t, nil
}

// As converts a field value to T. Besides a direct type match it widens
// int32 to int64 and any integer or float32 to float64. nil converts only
// to interface types.
func As[T any](v any) (T, bool) {
	var zero T
	if v == nil {
		return zero, reflect.TypeOf((*T)(nil)).Elem().Kind() == reflect.Interface
	}
	if t, ok := v.(T); ok {
		return t, true
	}
	switch any(zero).(type) {
	case int64:
		switch n := v.(type) {
		case int32:
			return any(int64(n)).(T), true
		case int:
			return any(int64(n)).(T), true
		}
	case float64:
		switch n := v.(type) {
		case float32:
			return any(float64(n)).(T), true
		case int64:
			return any(float64(n)).(T), true
		case int32:
			return any(float64(n)).(T), true
		case int:
			return any(float64(n)).(T), true
		}
	}
	return zero, false
}

// String returns the named field as a string. Strings, enums and bytes
// convert directly; other scalars are formatted. nil is a type mismatch.
func String(r *Record, name string) (string, error) {
	v, ok := r.GetByName(name)
	if !ok {
		return "", unknownField(r.schema, name)
	}
	if v == nil {
		return "", mismatch(name, v, "string")
	}
	return Format(v), nil
}

// Int64 returns the named field widened to int64.
func Int64(r *Record, name string) (int64, error) {
	v, ok := r.GetByName(name)
	if !ok {
		return 0, unknownField(r.schema, name)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	}
	return 0, mismatch(name, v, "int64")
}

// Float64 returns the named field widened to float64.
func Float64(r *Record, name string) (float64, error) {
	v, ok := r.GetByName(name)
	if !ok {
		return 0, unknownField(r.schema, name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int:
		return float64(n), nil
	}
	return 0, mismatch(name, v, "float64")
}

// Bool returns the named field as a bool.
func Bool(r *Record, name string) (bool, error) {
	return Field[bool](r, name)
}

// Format returns the string form of a field value. nil formats as "".
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}

func unknownField(s *schema.Schema, name string) error {
	return errors.New(errors.ErrorTypeInvalidArgument, "unknown field").
		WithDetail("field", name).
		WithDetail("schema", s.Name())
}

func mismatch(name string, v any, want string) error {
	return errors.Newf(errors.ErrorTypeTypeMismatch, "field %s holds %T, not %s", name, v, want).
		WithDetail("field", name)
}
