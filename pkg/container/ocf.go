package container

import (
	"io"

	"github.com/linkedin/goavro/v2"
	"go.uber.org/zap"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

// OCFReader reads a full Object Container File, header included, and lays
// its records out by the caller's schema, matching fields by name. Fields
// missing from the file's schema read as nil.
//
// goavro buffers whole blocks, so an OCFReader cannot report record offsets
// and does not implement Tell.
type OCFReader struct {
	src    io.Reader
	ocf    *goavro.OCFReader
	codec  *AvroCodec
	log    *zap.Logger
	closed bool
	done   bool
	err    error
}

var _ RecordReader = (*OCFReader)(nil)

// NewOCFReader reads the OCF header from r.
func NewOCFReader(r io.Reader, s *schema.Schema, log *zap.Logger) (*OCFReader, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "not an object container file")
	}
	log.Debug("object container opened",
		zap.String("compression", ocf.CompressionName()),
		zap.String("file_schema", ocf.Codec().CanonicalSchema()))
	return &OCFReader{src: r, ocf: ocf, codec: NewAvroCodec(s), log: log}, nil
}

// Next returns the next record, or (nil, io.EOF) at the end of the file.
func (o *OCFReader) Next(reuse *record.Record) (*record.Record, error) {
	if o.closed {
		return nil, errors.New(errors.ErrorTypeInvalidArgument, "reader is closed")
	}
	if o.err != nil {
		return nil, o.err
	}
	if o.done {
		return nil, io.EOF
	}
	if !o.ocf.Scan() {
		if err := o.ocf.Err(); err != nil {
			o.err = errors.Wrap(err, errors.ErrorTypeFormat, "failed to read object container")
			return nil, o.err
		}
		o.done = true
		return nil, io.EOF
	}
	datum, err := o.ocf.Read()
	if err != nil {
		o.err = errors.Wrap(err, errors.ErrorTypeFormat, "corrupt record")
		return nil, o.err
	}
	native, ok := datum.(map[string]interface{})
	if !ok {
		o.err = errors.Newf(errors.ErrorTypeFormat, "container holds %T, expected records", datum)
		return nil, o.err
	}
	return o.codec.FromNative(native, reuse), nil
}

// Close closes the underlying stream when it is an io.Closer.
func (o *OCFReader) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	if c, ok := o.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
