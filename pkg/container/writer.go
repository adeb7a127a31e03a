package container

import (
	"encoding/binary"
	"io"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/record"
)

// WriterConfig tunes a Writer.
type WriterConfig struct {
	// BlockRecords is the number of records per block.
	BlockRecords int
	// Marker is the session sync marker. A random one is drawn when empty.
	Marker []byte
	Logger *zap.Logger
}

// DefaultWriterConfig returns the default writer settings.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BlockRecords: DefaultBlockRecords,
		Logger:       zap.NewNop(),
	}
}

// Writer writes records in the reduced container format. Records are
// buffered into blocks; Close writes the pending block and the footer.
type Writer struct {
	w      io.Writer
	enc    RecordEncoder
	cfg    WriterConfig
	marker [SyncSize]byte

	block   []byte
	pending int64
	written int64
	blocks  int64
	closed  bool
}

// NewWriter writes the magic to w and returns a Writer using enc.
func NewWriter(w io.Writer, enc RecordEncoder) (*Writer, error) {
	return NewWriterWithConfig(w, enc, DefaultWriterConfig())
}

// NewWriterWithConfig is NewWriter with explicit settings.
func NewWriterWithConfig(w io.Writer, enc RecordEncoder, cfg WriterConfig) (*Writer, error) {
	if cfg.BlockRecords <= 0 {
		cfg.BlockRecords = DefaultBlockRecords
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	wr := &Writer{w: w, enc: enc, cfg: cfg}
	switch len(cfg.Marker) {
	case 0:
		// the ksuid payload is 16 random bytes
		copy(wr.marker[:], ksuid.New().Payload())
	case SyncSize:
		copy(wr.marker[:], cfg.Marker)
	default:
		return nil, errors.Newf(errors.ErrorTypeInvalidArgument, "sync marker must be %d bytes", SyncSize).
			WithDetail("length", len(cfg.Marker))
	}

	if _, err := io.WriteString(w, Magic); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProcessing, "failed to write magic")
	}
	return wr, nil
}

// Marker returns the session sync marker.
func (wr *Writer) Marker() []byte {
	m := wr.marker
	return m[:]
}

// Write appends r to the current block, flushing it when full.
func (wr *Writer) Write(r *record.Record) error {
	if wr.closed {
		return errors.New(errors.ErrorTypeInvalidArgument, "writer is closed")
	}
	buf, err := wr.enc.EncodeRecord(wr.block, r)
	if err != nil {
		return err
	}
	wr.block = buf
	wr.pending++
	wr.written++
	if wr.pending >= int64(wr.cfg.BlockRecords) {
		return wr.Flush()
	}
	return nil
}

// Flush writes the pending records as one block.
func (wr *Writer) Flush() error {
	if wr.pending == 0 {
		return nil
	}
	if err := wr.writeHeader(wr.pending); err != nil {
		return err
	}
	if _, err := wr.w.Write(wr.block); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to write block")
	}
	wr.blocks++
	wr.block = wr.block[:0]
	wr.pending = 0
	return nil
}

// Close flushes, writes the footer and closes the destination when it is an
// io.Closer.
func (wr *Writer) Close() error {
	if wr.closed {
		return nil
	}
	if err := wr.Flush(); err != nil {
		return err
	}
	wr.closed = true
	if err := wr.writeHeader(FooterBlock); err != nil {
		return err
	}
	wr.cfg.Logger.Debug("container written",
		zap.Int64("records", wr.written),
		zap.Int64("blocks", wr.blocks))
	if c, ok := wr.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to close container output")
		}
	}
	return nil
}

// Written returns the number of records accepted so far.
func (wr *Writer) Written() int64 { return wr.written }

func (wr *Writer) writeHeader(count int64) error {
	hdr := make([]byte, 0, SyncSize+binary.MaxVarintLen64)
	hdr = append(hdr, wr.marker[:]...)
	hdr = binary.AppendVarint(hdr, count)
	if _, err := wr.w.Write(hdr); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to write block header")
	}
	return nil
}
