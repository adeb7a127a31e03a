package handler

import (
	"encoding/binary"
	"io"

	"github.com/ajitpratap0/avrostream/pkg/container"
	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/record"
)

// DataIndexer writes the stream offset of every consumed record to an index
// sidecar as a fixed-width 8 byte integer. It is not safe for concurrent
// Consume.
type DataIndexer struct {
	tell  container.Tell
	w     io.Writer
	order binary.ByteOrder
	buf   [8]byte
	count int64
}

// NewDataIndexer indexes the records of tell into w. A nil order means big
// endian. End closes w when it is an io.Closer.
func NewDataIndexer(tell container.Tell, w io.Writer, order binary.ByteOrder) *DataIndexer {
	if order == nil {
		order = binary.BigEndian
	}
	return &DataIndexer{tell: tell, w: w, order: order}
}

// Begin implements Handler.
func (d *DataIndexer) Begin() error { return nil }

// Consume implements Handler.
func (d *DataIndexer) Consume(*record.Record) error {
	d.order.PutUint64(d.buf[:], uint64(d.tell.LastPos()))
	if _, err := d.w.Write(d.buf[:]); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProcessing, "error while writing index").
			WithDetail("entry", d.count)
	}
	d.count++
	return nil
}

// End implements Handler.
func (d *DataIndexer) End() error {
	if c, ok := d.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to close index")
		}
	}
	return nil
}

// Entries returns the number of offsets written.
func (d *DataIndexer) Entries() int64 { return d.count }

// ReadIndex decodes an index sidecar into offsets.
func ReadIndex(r io.Reader, order binary.ByteOrder) ([]int64, error) {
	if order == nil {
		order = binary.BigEndian
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read index")
	}
	if len(data)%8 != 0 {
		return nil, errors.Newf(errors.ErrorTypeFormat, "index length %d is not a multiple of 8", len(data))
	}
	out := make([]int64, 0, len(data)/8)
	for i := 0; i < len(data); i += 8 {
		out = append(out, int64(order.Uint64(data[i:i+8])))
	}
	return out, nil
}
