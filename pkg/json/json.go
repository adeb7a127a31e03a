// Package json encodes records as JSON objects with goccy/go-json, keeping
// the field order of the record's schema.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/record"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	// don't keep very large buffers
	if buf.Cap() > 1<<20 {
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// AppendRecord appends r to buf as one JSON object. Keys follow schema
// order; null union values are written as null, bytes as base64 and
// timestamps as RFC 3339 strings.
func AppendRecord(buf []byte, r *record.Record) ([]byte, error) {
	buf = append(buf, '{')
	for i, f := range r.Schema().Fields() {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := gojson.Marshal(f.Name)
		if err != nil {
			return buf, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode field name")
		}
		buf = append(buf, key...)
		buf = append(buf, ':')

		value, err := gojson.Marshal(r.Get(i))
		if err != nil {
			return buf, errors.Wrap(err, errors.ErrorTypeTypeMismatch, "failed to encode field").
				WithDetail("field", f.Name)
		}
		buf = append(buf, value...)
	}
	return append(buf, '}'), nil
}

// MarshalRecord encodes r as a JSON object.
func MarshalRecord(r *record.Record) ([]byte, error) {
	return AppendRecord(nil, r)
}

// StreamingEncoder writes records as JSON lines or as one JSON array.
type StreamingEncoder struct {
	writer      io.Writer
	buf         []byte
	firstRecord bool
	isArray     bool
	closed      bool
}

// NewStreamingEncoder creates a new streaming encoder
func NewStreamingEncoder(w io.Writer, isArray bool) *StreamingEncoder {
	return &StreamingEncoder{
		writer:      w,
		buf:         make([]byte, 0, 4096),
		firstRecord: true,
		isArray:     isArray,
	}
}

// Encode writes a single record
func (se *StreamingEncoder) Encode(r *record.Record) error {
	buf := se.buf[:0]
	if se.isArray {
		if se.firstRecord {
			buf = append(buf, '[')
		} else {
			buf = append(buf, ',')
		}
	}
	se.firstRecord = false

	buf, err := AppendRecord(buf, r)
	if err != nil {
		return err
	}
	if !se.isArray {
		buf = append(buf, '\n')
	}
	se.buf = buf

	if _, err := se.writer.Write(buf); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to write JSON")
	}
	return nil
}

// Close finalizes the encoding. It does not close the writer.
func (se *StreamingEncoder) Close() error {
	if se.closed || !se.isArray {
		se.closed = true
		return nil
	}
	se.closed = true

	tail := "]\n"
	if se.firstRecord {
		tail = "[]\n"
	}
	if _, err := io.WriteString(se.writer, tail); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to write JSON")
	}
	return nil
}
