// Package translate converts records of one schema into records of another.
package translate

import (
	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/handler"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

// Translation maps an input record to an output record.
type Translation interface {
	Translate(in *record.Record) (*record.Record, error)
	Schema() *schema.Schema
}

// Identity copies values positionally into a record of the output schema.
type Identity struct {
	out *schema.Schema
}

// NewIdentity returns a positional copy into out.
func NewIdentity(out *schema.Schema) *Identity {
	return &Identity{out: out}
}

// Schema returns the output schema.
func (t *Identity) Schema() *schema.Schema { return t.out }

// Translate implements Translation.
func (t *Identity) Translate(in *record.Record) (*record.Record, error) {
	if in.Len() != t.out.Len() {
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
			"identity translation from %d to %d fields", in.Len(), t.out.Len()).
			WithDetail("schema", t.out.Name())
	}
	return record.Of(t.out, in.Values()...)
}

// Mapping copies input position From to output position To.
type Mapping struct {
	From int
	To   int
}

// SelectedFields copies a subset of input fields into the output schema.
type SelectedFields struct {
	out     *schema.Schema
	mapping []Mapping
}

// NewSelectedFields copies in[m.From] to out[m.To] for each m, in mapping
// order. Output positions outside the schema are rejected.
func NewSelectedFields(out *schema.Schema, mapping []Mapping) (*SelectedFields, error) {
	for _, m := range mapping {
		if m.From < 0 || m.To < 0 || m.To >= out.Len() {
			return nil, errors.Newf(errors.ErrorTypeInvalidArgument, "bad field mapping %d:%d", m.From, m.To).
				WithDetail("schema", out.Name())
		}
	}
	return &SelectedFields{out: out, mapping: append([]Mapping(nil), mapping...)}, nil
}

// Select projects the named fields of in into a new schema named name and
// returns the translation onto it.
func Select(in *schema.Schema, name string, fields ...string) (*SelectedFields, error) {
	out, err := in.Project(name, fields...)
	if err != nil {
		return nil, err
	}
	mapping := make([]Mapping, len(fields))
	for i, f := range fields {
		pos, _ := in.Position(f)
		mapping[i] = Mapping{From: pos, To: i}
	}
	return NewSelectedFields(out, mapping)
}

// Schema returns the output schema.
func (t *SelectedFields) Schema() *schema.Schema { return t.out }

// Translate implements Translation.
func (t *SelectedFields) Translate(in *record.Record) (*record.Record, error) {
	out := record.New(t.out)
	for _, m := range t.mapping {
		if m.From >= in.Len() {
			return nil, errors.Newf(errors.ErrorTypeInvalidArgument,
				"field %d out of range for %s", m.From, in.Schema().Name())
		}
		out.Put(m.To, in.Get(m.From))
	}
	return out, nil
}

// Converter is a handler that translates each record before passing it on.
type Converter struct {
	t    Translation
	next handler.Handler
}

var _ handler.Handler = (*Converter)(nil)

// NewConverter feeds translated records to next.
func NewConverter(t Translation, next handler.Handler) *Converter {
	return &Converter{t: t, next: next}
}

// Begin implements handler.Handler.
func (c *Converter) Begin() error { return c.next.Begin() }

// Consume implements handler.Handler.
func (c *Converter) Consume(r *record.Record) error {
	out, err := c.t.Translate(r)
	if err != nil {
		return err
	}
	return c.next.Consume(out)
}

// End implements handler.Handler.
func (c *Converter) End() error { return c.next.End() }
