package sink

import (
	"io"

	"github.com/ajitpratap0/avrostream/pkg/container"
	"github.com/ajitpratap0/avrostream/pkg/handler"
	"github.com/ajitpratap0/avrostream/pkg/record"
)

// ContainerWriter writes records in the reduced container format.
type ContainerWriter struct {
	w *container.Writer
}

var _ handler.Handler = (*ContainerWriter)(nil)

// NewContainerWriter writes the container magic to w and returns the sink.
// End writes the footer and closes w when it is an io.Closer.
func NewContainerWriter(w io.Writer, enc container.RecordEncoder, cfg container.WriterConfig) (*ContainerWriter, error) {
	cw, err := container.NewWriterWithConfig(w, enc, cfg)
	if err != nil {
		return nil, err
	}
	return &ContainerWriter{w: cw}, nil
}

// Begin implements handler.Handler.
func (c *ContainerWriter) Begin() error { return nil }

// Consume implements handler.Handler.
func (c *ContainerWriter) Consume(r *record.Record) error { return c.w.Write(r) }

// End implements handler.Handler.
func (c *ContainerWriter) End() error { return c.w.Close() }

// Written returns the number of records written.
func (c *ContainerWriter) Written() int64 { return c.w.Written() }
