package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/avrostream/pkg/errors"
)

const eventSchema = `{
  "type": "record",
  "name": "Event",
  "namespace": "com.acme",
  "fields": [
    {"name": "id", "type": "long"},
    {"name": "name", "type": "string"},
    {"name": "score", "type": ["null", "double"], "default": null},
    {"name": "at", "type": {"type": "long", "logicalType": "timestamp-millis"}},
    {"name": "origin", "type": ["null", {"type": "record", "name": "Origin", "fields": [
      {"name": "host", "type": "string"},
      {"name": "port", "type": "int"}
    ]}]},
    {"name": "kind", "type": {"type": "enum", "name": "Kind", "symbols": ["A", "B"]}},
    {"name": "value", "type": ["string", "long", "Origin"]},
    {"name": "tags", "type": {"type": "array", "items": "string"}}
  ]
}`

func TestParse(t *testing.T) {
	s, err := Parse(eventSchema)
	require.NoError(t, err)

	assert.Equal(t, "com.acme.Event", s.Name())
	assert.Equal(t, 8, s.Len())
	assert.Equal(t, []string{"id", "name", "score", "at", "origin", "kind", "value", "tags"}, s.Names())
	assert.NotNil(t, s.Codec())
	assert.Equal(t, eventSchema, s.JSON())

	pos, ok := s.Position("score")
	assert.True(t, ok)
	assert.Equal(t, 2, pos)
	_, ok = s.Position("missing")
	assert.False(t, ok)
}

func TestFieldTypes(t *testing.T) {
	s := MustParse(eventSchema)

	tests := []struct {
		field    string
		typ      string
		logical  string
		nullable bool
		branches []string
	}{
		{"id", TypeLong, "", false, nil},
		{"name", TypeString, "", false, nil},
		{"score", TypeDouble, "", true, []string{"null", "double"}},
		{"at", TypeLong, "timestamp-millis", false, nil},
		{"origin", TypeRecord, "", true, []string{"null", "com.acme.Origin"}},
		{"kind", TypeEnum, "", false, nil},
		{"value", TypeUnion, "", false, []string{"string", "long", "com.acme.Origin"}},
		{"tags", TypeArray, "", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			f, ok := s.Lookup(tt.field)
			require.True(t, ok)
			assert.Equal(t, tt.typ, f.Type)
			assert.Equal(t, tt.logical, f.Logical)
			assert.Equal(t, tt.nullable, f.Nullable)
			var names []string
			for _, b := range f.Branches {
				names = append(names, b.Name)
			}
			assert.Equal(t, tt.branches, names)
		})
	}

	origin, _ := s.Lookup("value")
	assert.Equal(t, []string{"host", "port"}, origin.Branches[2].Fields)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", `{`},
		{"not a record", `{"type": "string"}`},
		{"bad field type", `{"type": "record", "name": "R", "fields": [{"name": "a", "type": "nope"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.avsc")
	require.NoError(t, os.WriteFile(path, []byte(eventSchema), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, s.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.avsc"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestProject(t *testing.T) {
	s := MustParse(eventSchema)

	p, err := s.Project("Slim", "name", "id")
	require.NoError(t, err)
	assert.Equal(t, "com.acme.Slim", p.Name())
	assert.Equal(t, []string{"name", "id"}, p.Names())

	_, err = s.Project("Slim", "nope")
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
	_, err = s.Project("Slim")
	assert.Error(t, err)
}

func TestProjectCarriesNamedTypes(t *testing.T) {
	s := MustParse(eventSchema)

	// value refers to Origin, which is defined by the origin field
	p, err := s.Project("Values", "value", "id")
	require.NoError(t, err)
	value, ok := p.Lookup("value")
	require.True(t, ok)
	require.Len(t, value.Branches, 3)
	assert.Equal(t, Branch{Name: "com.acme.Origin", Kind: TypeRecord, Fields: []string{"host", "port"}}, value.Branches[2])

	native := map[string]interface{}{
		"value": map[string]interface{}{"com.acme.Origin": map[string]interface{}{"host": "h", "port": int32(80)}},
		"id":    int64(1),
	}
	buf, err := p.Codec().BinaryFromNative(nil, native)
	require.NoError(t, err)
	_, _, err = p.Codec().NativeFromBinary(buf)
	require.NoError(t, err)

	// the reference comes first, the definition second
	both, err := s.Project("Both", "value", "origin")
	require.NoError(t, err)
	origin, _ := both.Lookup("origin")
	assert.Equal(t, "com.acme.Origin", origin.Branches[1].Name)
}

func TestProjectNamespacedTypes(t *testing.T) {
	s := MustParse(`{
	  "type": "record", "name": "Outer", "namespace": "a",
	  "fields": [
	    {"name": "first", "type": {"type": "enum", "name": "Level", "namespace": "b", "symbols": ["LOW", "HIGH"]}},
	    {"name": "second", "type": ["null", "b.Level"]}
	  ]
	}`)
	p, err := s.Project("Slim", "second")
	require.NoError(t, err)
	second, _ := p.Lookup("second")
	assert.Equal(t, TypeEnum, second.Type)
	assert.True(t, second.Nullable)
}
