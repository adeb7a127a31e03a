package json

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

var visitSchema = schema.MustParse(`{
  "type": "record", "name": "Visit",
  "fields": [
    {"name": "zeta", "type": "long"},
    {"name": "alpha", "type": ["null", "string"]},
    {"name": "raw", "type": "bytes"},
    {"name": "score", "type": "double"},
    {"name": "at", "type": {"type": "long", "logicalType": "timestamp-millis"}}
  ]
}`)

func visit(t *testing.T, alpha any, score float64) *record.Record {
	t.Helper()
	r, err := record.Of(visitSchema, int64(3), alpha, []byte("hi"), score,
		time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))
	require.NoError(t, err)
	return r
}

func TestMarshalRecordKeepsSchemaOrder(t *testing.T) {
	out, err := MarshalRecord(visit(t, `a "quoted" value`, 0.5))
	require.NoError(t, err)
	assert.Equal(t,
		`{"zeta":3,"alpha":"a \"quoted\" value","raw":"aGk=","score":0.5,"at":"2024-05-06T07:08:09Z"}`,
		string(out))

	var m map[string]any
	require.NoError(t, Unmarshal(out, &m))
	assert.Equal(t, 0.5, m["score"])
}

func TestMarshalRecordNull(t *testing.T) {
	out, err := MarshalRecord(visit(t, nil, 1))
	require.NoError(t, err)
	assert.Contains(t, string(out), `"alpha":null`)
}

func TestMarshalRecordUnencodable(t *testing.T) {
	_, err := MarshalRecord(visit(t, nil, math.NaN()))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeMismatch))
}

func TestStreamingEncoder(t *testing.T) {
	var lines bytes.Buffer
	enc := NewStreamingEncoder(&lines, false)
	require.NoError(t, enc.Encode(visit(t, "x", 1)))
	require.NoError(t, enc.Encode(visit(t, "y", 2)))
	require.NoError(t, enc.Close())
	assert.Equal(t, 2, bytes.Count(lines.Bytes(), []byte("\n")))

	var arr bytes.Buffer
	enc = NewStreamingEncoder(&arr, true)
	require.NoError(t, enc.Encode(visit(t, "x", 1)))
	require.NoError(t, enc.Encode(visit(t, "y", 2)))
	require.NoError(t, enc.Close())

	var got []map[string]any
	require.NoError(t, Unmarshal(arr.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "y", got[1]["alpha"])

	var empty bytes.Buffer
	enc = NewStreamingEncoder(&empty, true)
	require.NoError(t, enc.Close())
	assert.Equal(t, "[]\n", empty.String())
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("dirty")
	PutBuffer(buf)
	assert.Equal(t, 0, GetBuffer().Len())
}
