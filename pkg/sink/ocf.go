package sink

import (
	"io"

	"github.com/linkedin/goavro/v2"

	"github.com/ajitpratap0/avrostream/pkg/container"
	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/handler"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

// OCFWriter writes records to an Avro object container file with the schema
// embedded in its header.
type OCFWriter struct {
	w            io.Writer
	ocf          *goavro.OCFWriter
	codec        *container.AvroCodec
	blockRecords int
	pending      []interface{}
}

var _ handler.Handler = (*OCFWriter)(nil)

// NewOCFWriter writes the OCF header to w. compressionName is one of "null",
// "deflate" or "snappy"; blockRecords bounds the records per block.
func NewOCFWriter(w io.Writer, s *schema.Schema, compressionName string, blockRecords int) (*OCFWriter, error) {
	if compressionName == "" {
		compressionName = goavro.CompressionNullLabel
	}
	if blockRecords <= 0 {
		blockRecords = container.DefaultBlockRecords
	}
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           s.Codec(),
		CompressionName: compressionName,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInvalidArgument, "failed to create OCF writer").
			WithDetail("compression", compressionName)
	}
	return &OCFWriter{
		w:            w,
		ocf:          ocf,
		codec:        container.NewAvroCodec(s),
		blockRecords: blockRecords,
	}, nil
}

// Begin implements handler.Handler.
func (o *OCFWriter) Begin() error { return nil }

// Consume implements handler.Handler.
func (o *OCFWriter) Consume(r *record.Record) error {
	native, err := o.codec.Native(r)
	if err != nil {
		return err
	}
	o.pending = append(o.pending, native)
	if len(o.pending) >= o.blockRecords {
		return o.flush()
	}
	return nil
}

func (o *OCFWriter) flush() error {
	if len(o.pending) == 0 {
		return nil
	}
	if err := o.ocf.Append(o.pending); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to append OCF block").
			WithDetail("records", len(o.pending))
	}
	clear(o.pending)
	o.pending = o.pending[:0]
	return nil
}

// End implements handler.Handler.
func (o *OCFWriter) End() error {
	if err := o.flush(); err != nil {
		return err
	}
	return closeOutput(o.w, "OCF output")
}
