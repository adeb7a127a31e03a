package sink

import (
	"io"

	"github.com/ajitpratap0/avrostream/pkg/handler"
	"github.com/ajitpratap0/avrostream/pkg/json"
	"github.com/ajitpratap0/avrostream/pkg/record"
)

// JSONWriter writes one JSON object per record.
type JSONWriter struct {
	w   io.Writer
	enc *json.StreamingEncoder
}

var _ handler.Handler = (*JSONWriter)(nil)

// NewJSONWriter writes JSON lines to w, or a single JSON array when array is
// set.
func NewJSONWriter(w io.Writer, array bool) *JSONWriter {
	return &JSONWriter{w: w, enc: json.NewStreamingEncoder(w, array)}
}

// Begin implements handler.Handler.
func (j *JSONWriter) Begin() error { return nil }

// Consume implements handler.Handler.
func (j *JSONWriter) Consume(r *record.Record) error {
	return j.enc.Encode(r)
}

// End implements handler.Handler.
func (j *JSONWriter) End() error {
	if err := j.enc.Close(); err != nil {
		return err
	}
	return closeOutput(j.w, "JSON output")
}
