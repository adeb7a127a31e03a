// Package schema describes the record layout shared by every record in a
// container stream. A Schema is built once from an Avro record schema and is
// read-only afterwards, so it may be shared by any number of readers,
// pipelines and goroutines.
package schema

import (
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/avrostream/pkg/errors"
)

// Avro type names used in Field.Type and Branch.Kind.
const (
	TypeNull    = "null"
	TypeBoolean = "boolean"
	TypeInt     = "int"
	TypeLong    = "long"
	TypeFloat   = "float"
	TypeDouble  = "double"
	TypeBytes   = "bytes"
	TypeString  = "string"
	TypeRecord  = "record"
	TypeEnum    = "enum"
	TypeFixed   = "fixed"
	TypeArray   = "array"
	TypeMap     = "map"
	TypeUnion   = "union"
)

// logical types with a dedicated codec; the union branch is "<base>.<logical>"
var knownLogical = map[string]bool{
	"long.timestamp-millis":   true,
	"long.timestamp-micros":   true,
	"int.time-millis":         true,
	"long.time-micros":        true,
	"int.date":                true,
	"bytes.decimal":           true,
	"string.validated-string": true,
}

// Branch is one member of a union.
type Branch struct {
	// Name is the key the codec uses for the branch: a primitive name, the
	// full name of a named type, or "<base>.<logicalType>".
	Name string
	// Kind is the underlying Avro type of the branch.
	Kind string
	// Logical is the logical type, if any.
	Logical string
	// Fields lists the field names of record branches.
	Fields []string
}

// Field is one field of the record schema.
type Field struct {
	Name string
	Pos  int
	// Type is the Avro type of the field. For a union with a single non-null
	// branch it is that branch's kind; for other unions it is TypeUnion.
	Type     string
	Logical  string
	Nullable bool
	// Branches is non-empty only for union fields.
	Branches []Branch

	raw map[string]interface{}
}

// IsUnion reports whether the field is declared as a union.
func (f Field) IsUnion() bool {
	return len(f.Branches) > 0
}

// Schema is an immutable record schema.
type Schema struct {
	name      string
	namespace string
	fields    []Field
	positions map[string]int
	codec     *goavro.Codec
	text      string
	doc       map[string]interface{}
	// defs holds the definition of every named type by full name
	defs map[string]namedDef
}

// Parse builds a Schema from Avro schema JSON. The top-level type must be a
// record.
func Parse(text string) (*Schema, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidArgument, "schema is not a JSON object")
	}
	if t, _ := doc["type"].(string); t != TypeRecord {
		return nil, errors.New(errors.ErrorTypeInvalidArgument, "schema must be a record").
			WithDetail("type", doc["type"])
	}

	codec, err := goavro.NewCodec(text)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidArgument, "invalid avro schema")
	}

	s := &Schema{
		codec:     codec,
		text:      text,
		doc:       doc,
		positions: make(map[string]int),
	}
	s.name, s.namespace = fullName(doc, "")

	reg := newRegistry()
	rawFields, _ := doc["fields"].([]interface{})
	// register top-level named type before walking fields so self references resolve
	reg.kinds[s.name] = named{kind: TypeRecord, fields: fieldNames(rawFields)}
	reg.defs[s.name] = namedDef{raw: doc}

	for i, rf := range rawFields {
		fm, ok := rf.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeInvalidArgument, "field %d is not an object", i)
		}
		f := Field{Pos: i, raw: fm}
		f.Name, _ = fm["name"].(string)
		reg.describe(&f, fm["type"], s.namespace)
		s.fields = append(s.fields, f)
		s.positions[f.Name] = i
	}
	s.defs = reg.defs
	return s, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) *Schema {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

// Load reads and parses a schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read schema").
			WithDetail("path", path)
	}
	s, err := Parse(string(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidArgument, "failed to parse schema").
			WithDetail("path", path)
	}
	return s, nil
}

// Name returns the full name of the record.
func (s *Schema) Name() string { return s.name }

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Fields returns the fields in declaration order. The slice must not be modified.
func (s *Schema) Fields() []Field { return s.fields }

// Field returns the field at position i.
func (s *Schema) Field(i int) Field { return s.fields[i] }

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Position returns the position of the named field.
func (s *Schema) Position(name string) (int, bool) {
	pos, ok := s.positions[name]
	return pos, ok
}

// Lookup returns the named field.
func (s *Schema) Lookup(name string) (Field, bool) {
	pos, ok := s.positions[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[pos], true
}

// Codec returns the goavro codec for the record type.
func (s *Schema) Codec() *goavro.Codec { return s.codec }

// JSON returns the schema text the Schema was parsed from.
func (s *Schema) JSON() string { return s.text }

// Project builds a new record schema named name holding the given fields of
// s in the given order. Named types a selected field refers to are defined
// in the projection even when their definition sat in a field left out.
func (s *Schema) Project(name string, fields ...string) (*Schema, error) {
	if len(fields) == 0 {
		return nil, errors.New(errors.ErrorTypeInvalidArgument, "projection needs at least one field")
	}
	p := projector{defs: s.defs, defined: make(map[string]bool)}
	out := make([]interface{}, 0, len(fields))
	for _, fn := range fields {
		f, ok := s.Lookup(fn)
		if !ok {
			return nil, errors.New(errors.ErrorTypeInvalidArgument, "unknown field").
				WithDetail("field", fn)
		}
		nf := clone(f.raw)
		nf["type"] = p.rewrite(f.raw["type"], s.namespace)
		out = append(out, nf)
	}
	doc := map[string]interface{}{
		"type":   TypeRecord,
		"name":   name,
		"fields": out,
	}
	if s.namespace != "" && !strings.Contains(name, ".") {
		doc["namespace"] = s.namespace
	}
	text, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode projected schema")
	}
	return Parse(string(text))
}

type namedDef struct {
	raw map[string]interface{}
	// ns is the namespace enclosing the definition
	ns string
}

// projector rewrites field types so every named type is defined once, at
// its first use, under its full name.
type projector struct {
	defs    map[string]namedDef
	defined map[string]bool
}

func (p *projector) rewrite(t interface{}, ns string) interface{} {
	switch v := t.(type) {
	case string:
		if isPrimitive(v) {
			return v
		}
		full := v
		if !strings.Contains(v, ".") && ns != "" {
			if _, ok := p.defs[ns+"."+v]; ok {
				full = ns + "." + v
			}
		}
		if p.defined[full] {
			return full
		}
		if d, ok := p.defs[full]; ok {
			return p.rewrite(d.raw, d.ns)
		}
		return full
	case []interface{}:
		members := make([]interface{}, len(v))
		for i, m := range v {
			members[i] = p.rewrite(m, ns)
		}
		return members
	case map[string]interface{}:
		out := clone(v)
		kind, _ := v["type"].(string)
		switch kind {
		case TypeRecord, TypeEnum, TypeFixed:
			full, childNS := fullName(v, ns)
			if p.defined[full] {
				return full
			}
			p.defined[full] = true
			out["name"] = full
			delete(out, "namespace")
			if kind == TypeRecord {
				rawFields, _ := v["fields"].([]interface{})
				nested := make([]interface{}, 0, len(rawFields))
				for _, rf := range rawFields {
					fm, ok := rf.(map[string]interface{})
					if !ok {
						nested = append(nested, rf)
						continue
					}
					nf := clone(fm)
					nf["type"] = p.rewrite(fm["type"], childNS)
					nested = append(nested, nf)
				}
				out["fields"] = nested
			}
		case TypeArray:
			out["items"] = p.rewrite(v["items"], ns)
		case TypeMap:
			out["values"] = p.rewrite(v["values"], ns)
		default:
			out["type"] = p.rewrite(v["type"], ns)
		}
		return out
	}
	return t
}

func clone(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type named struct {
	kind   string
	fields []string
}

// registry tracks named types seen while walking the schema so that
// references by name resolve to a kind.
type registry struct {
	kinds map[string]named
	defs  map[string]namedDef
}

func newRegistry() *registry {
	return &registry{kinds: make(map[string]named), defs: make(map[string]namedDef)}
}

func (reg *registry) describe(f *Field, t interface{}, ns string) {
	if members, ok := t.([]interface{}); ok {
		var nonNull []Branch
		for _, m := range members {
			b := reg.branch(m, ns)
			f.Branches = append(f.Branches, b)
			if b.Kind == TypeNull {
				f.Nullable = true
				continue
			}
			nonNull = append(nonNull, b)
		}
		f.Type = TypeUnion
		if len(nonNull) == 1 {
			f.Type = nonNull[0].Kind
			f.Logical = nonNull[0].Logical
		}
		return
	}
	b := reg.branch(t, ns)
	f.Type = b.Kind
	f.Logical = b.Logical
	f.Nullable = b.Kind == TypeNull
}

func (reg *registry) branch(t interface{}, ns string) Branch {
	switch v := t.(type) {
	case string:
		if isPrimitive(v) {
			return Branch{Name: v, Kind: v}
		}
		full := v
		if !strings.Contains(v, ".") && ns != "" {
			full = ns + "." + v
		}
		if n, ok := reg.kinds[full]; ok {
			return Branch{Name: full, Kind: n.kind, Fields: n.fields}
		}
		if n, ok := reg.kinds[v]; ok {
			return Branch{Name: v, Kind: n.kind, Fields: n.fields}
		}
		return Branch{Name: full, Kind: TypeRecord}
	case map[string]interface{}:
		kind, _ := v["type"].(string)
		if nested, ok := v["type"].(map[string]interface{}); ok {
			return reg.branch(nested, ns)
		}
		switch kind {
		case TypeRecord, TypeEnum, TypeFixed:
			full, childNS := fullName(v, ns)
			var fields []string
			rawFields, _ := v["fields"].([]interface{})
			if kind == TypeRecord {
				fields = fieldNames(rawFields)
			}
			reg.kinds[full] = named{kind: kind, fields: fields}
			reg.defs[full] = namedDef{raw: v, ns: ns}
			for _, rf := range rawFields {
				if fm, ok := rf.(map[string]interface{}); ok {
					var nested Field
					reg.describe(&nested, fm["type"], childNS)
				}
			}
			b := Branch{Name: full, Kind: kind, Fields: fields}
			if lt, ok := v["logicalType"].(string); ok && kind == TypeFixed {
				b.Logical = lt
			}
			return b
		case TypeArray:
			var item Field
			reg.describe(&item, v["items"], ns)
			return Branch{Name: TypeArray, Kind: TypeArray}
		case TypeMap:
			var value Field
			reg.describe(&value, v["values"], ns)
			return Branch{Name: TypeMap, Kind: TypeMap}
		default:
			if !isPrimitive(kind) {
				return reg.branch(kind, ns)
			}
			b := Branch{Name: kind, Kind: kind}
			if lt, ok := v["logicalType"].(string); ok {
				if knownLogical[kind+"."+lt] {
					b.Name = kind + "." + lt
				}
				b.Logical = lt
			}
			return b
		}
	}
	return Branch{Kind: TypeUnion}
}

func isPrimitive(t string) bool {
	switch t {
	case TypeNull, TypeBoolean, TypeInt, TypeLong, TypeFloat, TypeDouble, TypeBytes, TypeString:
		return true
	}
	return false
}

// fullName resolves the full name of a named type and the namespace its
// children inherit.
func fullName(m map[string]interface{}, enclosing string) (string, string) {
	n, _ := m["name"].(string)
	if i := strings.LastIndexByte(n, '.'); i >= 0 {
		return n, n[:i]
	}
	ns := enclosing
	if v, ok := m["namespace"].(string); ok {
		ns = v
	}
	if ns == "" {
		return n, ""
	}
	return ns + "." + n, ns
}

func fieldNames(raw []interface{}) []string {
	names := make([]string, 0, len(raw))
	for _, rf := range raw {
		if fm, ok := rf.(map[string]interface{}); ok {
			if n, ok := fm["name"].(string); ok {
				names = append(names, n)
			}
		}
	}
	return names
}
