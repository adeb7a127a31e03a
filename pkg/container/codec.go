package container

import (
	"bytes"
	"slices"
	"strings"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

// AvroCodec decodes and encodes records with the schema's goavro codec.
// Union values are unwrapped on decode and wrapped again on encode by
// matching the Go type of the value against the union's branches.
type AvroCodec struct {
	schema *schema.Schema
	codec  *goavro.Codec
}

var (
	_ RecordDecoder = (*AvroCodec)(nil)
	_ RecordEncoder = (*AvroCodec)(nil)
)

// NewAvroCodec returns a codec for records of s.
func NewAvroCodec(s *schema.Schema) *AvroCodec {
	return &AvroCodec{schema: s, codec: s.Codec()}
}

// DecodeRecord implements RecordDecoder.
func (c *AvroCodec) DecodeRecord(buf []byte, reuse *record.Record) (*record.Record, []byte, error) {
	native, rest, err := c.codec.NativeFromBinary(buf)
	if err != nil {
		// goavro flattens its errors to text, so the io.ErrShortBuffer cause
		// survives only in the message
		if strings.Contains(err.Error(), "short buffer") {
			return nil, buf, ErrShortBuffer
		}
		return nil, buf, err
	}
	fields, ok := native.(map[string]interface{})
	if !ok {
		return nil, buf, errors.Newf(errors.ErrorTypeInternal, "decoded %T, expected a record", native)
	}

	for k, v := range fields {
		fields[k] = detach(v)
	}
	return c.FromNative(fields, reuse), rest, nil
}

// EncodeRecord implements RecordEncoder.
func (c *AvroCodec) EncodeRecord(buf []byte, r *record.Record) ([]byte, error) {
	native, err := c.Native(r)
	if err != nil {
		return buf, err
	}
	out, err := c.codec.BinaryFromNative(buf, native)
	if err != nil {
		return buf, errors.Wrap(err, errors.ErrorTypeTypeMismatch, "failed to encode record").
			WithDetail("schema", c.schema.Name())
	}
	return out, nil
}

// Native converts r to the map form goavro encodes, wrapping union values.
func (c *AvroCodec) Native(r *record.Record) (map[string]interface{}, error) {
	native := make(map[string]interface{}, c.schema.Len())
	for i, f := range c.schema.Fields() {
		v := r.Get(i)
		if f.IsUnion() {
			w, err := wrapUnion(f, v)
			if err != nil {
				return nil, err
			}
			v = w
		}
		native[f.Name] = v
	}
	return native, nil
}

// FromNative builds a record of the codec's schema from a goavro record map.
func (c *AvroCodec) FromNative(native map[string]interface{}, reuse *record.Record) *record.Record {
	rec := reuse
	if rec == nil || rec.Schema() != c.schema {
		rec = record.New(c.schema)
	}
	for i, f := range c.schema.Fields() {
		v := native[f.Name]
		if f.IsUnion() {
			v = unwrapUnion(v)
		}
		rec.Put(i, v)
	}
	return rec
}

// detach copies byte slices that alias the decode buffer, which the reader
// overwrites as it advances.
func detach(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return bytes.Clone(t)
	case map[string]interface{}:
		for k, x := range t {
			t[k] = detach(x)
		}
	case []interface{}:
		for i, x := range t {
			t[i] = detach(x)
		}
	}
	return v
}

func unwrapUnion(v interface{}) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		return v
	}
	for _, inner := range m {
		return inner
	}
	return v
}

// wrapUnion picks the first branch of f that accepts the Go type of v.
func wrapUnion(f schema.Field, v interface{}) (interface{}, error) {
	if v == nil {
		if f.Nullable {
			return nil, nil
		}
		return nil, errors.Newf(errors.ErrorTypeTypeMismatch, "field %s is not nullable", f.Name).
			WithDetail("field", f.Name)
	}
	for _, b := range f.Branches {
		if accepts(b, v) {
			return goavro.Union(b.Name, v), nil
		}
	}
	return nil, errors.Newf(errors.ErrorTypeTypeMismatch, "no branch of field %s accepts %T", f.Name, v).
		WithDetail("field", f.Name)
}

func accepts(b schema.Branch, v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return b.Kind == schema.TypeBoolean
	case int32:
		return b.Name == schema.TypeInt
	case int64:
		return b.Name == schema.TypeLong
	case float32:
		return b.Kind == schema.TypeFloat
	case float64:
		return b.Kind == schema.TypeDouble
	case string:
		return b.Name == schema.TypeString || b.Kind == schema.TypeEnum
	case []byte:
		return b.Name == schema.TypeBytes || (b.Kind == schema.TypeFixed && b.Logical == "")
	case time.Time:
		return b.Name == "long.timestamp-millis" || b.Name == "long.timestamp-micros" || b.Name == "int.date"
	case time.Duration:
		return b.Name == "int.time-millis" || b.Name == "long.time-micros"
	case []interface{}:
		return b.Kind == schema.TypeArray
	case map[string]interface{}:
		if b.Kind == schema.TypeMap {
			return true
		}
		if b.Kind != schema.TypeRecord {
			return false
		}
		for k := range t {
			if !slices.Contains(b.Fields, k) {
				return false
			}
		}
		return true
	}
	return false
}
