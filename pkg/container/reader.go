package container

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

// ReaderConfig tunes a Reader.
type ReaderConfig struct {
	// WindowSize is the initial size of the read window.
	WindowSize int
	// MaxRecordSize caps the window when a single record does not fit.
	MaxRecordSize int
	Logger        *zap.Logger
}

// DefaultReaderConfig returns the default reader settings.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		WindowSize:    DefaultWindowSize,
		MaxRecordSize: DefaultMaxRecordSize,
		Logger:        zap.NewNop(),
	}
}

// Reader is a forward-only reader for the reduced container format. It keeps
// state only about the current block.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	src    io.Reader
	schema *schema.Schema
	dec    RecordDecoder
	cfg    ReaderConfig
	log    *zap.Logger

	// buf[start:end] holds bytes read from src but not yet consumed; pos is
	// the stream offset of buf[start].
	buf        []byte
	start, end int
	pos        int64
	srcDone    bool

	marker     [SyncSize]byte
	haveMarker bool
	remaining  int64
	lastPos    int64
	blocks     int64
	records    int64

	done   bool
	closed bool
	err    error
}

var _ RecordReader = (*Reader)(nil)
var _ Tell = (*Reader)(nil)

// NewReader reads and checks the magic of r. No metadata header follows the
// magic; records are laid out by s and decoded by dec.
func NewReader(r io.Reader, s *schema.Schema, dec RecordDecoder) (*Reader, error) {
	return NewReaderWithConfig(r, s, dec, DefaultReaderConfig())
}

// NewReaderWithConfig is NewReader with explicit settings.
func NewReaderWithConfig(r io.Reader, s *schema.Schema, dec RecordDecoder, cfg ReaderConfig) (*Reader, error) {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.MaxRecordSize < cfg.WindowSize {
		cfg.MaxRecordSize = max(cfg.WindowSize, DefaultMaxRecordSize)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	rd := &Reader{
		src:    r,
		schema: s,
		dec:    dec,
		cfg:    cfg,
		log:    cfg.Logger,
		buf:    make([]byte, cfg.WindowSize),
	}

	if err := rd.fill(len(Magic)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "not a data file")
	}
	if string(rd.buf[rd.start:rd.start+len(Magic)]) != Magic {
		return nil, errors.New(errors.ErrorTypeFormat, "not a data file").
			WithDetail("magic", rd.buf[rd.start:rd.start+len(Magic)])
	}
	rd.consume(len(Magic))
	return rd, nil
}

// Schema returns the schema records are laid out by.
func (rd *Reader) Schema() *schema.Schema { return rd.schema }

// Next returns the next record, or (nil, io.EOF) after the footer block.
// Errors are sticky.
func (rd *Reader) Next(reuse *record.Record) (*record.Record, error) {
	if rd.closed {
		return nil, errors.New(errors.ErrorTypeInvalidArgument, "reader is closed")
	}
	if rd.err != nil {
		return nil, rd.err
	}
	if rd.done {
		return nil, io.EOF
	}

	for rd.remaining == 0 {
		if err := rd.skipSync(); err != nil {
			return nil, rd.fail(err)
		}
		count, err := rd.readLong()
		if err != nil {
			return nil, rd.fail(err)
		}
		if count == FooterBlock {
			rd.done = true
			rd.log.Debug("footer reached",
				zap.Int64("blocks", rd.blocks),
				zap.Int64("records", rd.records),
				zap.Int64("offset", rd.pos))
			return nil, io.EOF
		}
		if count < 0 {
			return nil, rd.fail(errors.New(errors.ErrorTypeFormat, "invalid block count").
				WithDetail("count", count).
				WithDetail("offset", rd.pos))
		}
		if count > 0 {
			rd.blocks++
		}
		rd.remaining = count
	}

	rd.remaining--
	rd.lastPos = rd.pos
	rec, err := rd.decode(reuse)
	if err != nil {
		return nil, rd.fail(err)
	}
	rd.records++
	return rec, nil
}

// LastPos returns the offset of the start of the most recently returned record.
func (rd *Reader) LastPos() int64 { return rd.lastPos }

// Blocks returns the number of non-empty data blocks entered so far.
func (rd *Reader) Blocks() int64 { return rd.blocks }

// Offset returns the number of stream bytes consumed so far.
func (rd *Reader) Offset() int64 { return rd.pos }

// Close closes the underlying stream when it is an io.Closer.
func (rd *Reader) Close() error {
	if rd.closed {
		return nil
	}
	rd.closed = true
	if c, ok := rd.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (rd *Reader) fail(err error) error {
	rd.err = err
	return err
}

// skipSync reads a marker, memoizing the first one seen.
func (rd *Reader) skipSync() error {
	if err := rd.fill(SyncSize); err != nil {
		return truncated(err, rd.pos, "sync marker")
	}
	got := rd.buf[rd.start : rd.start+SyncSize]
	if !rd.haveMarker {
		copy(rd.marker[:], got)
		rd.haveMarker = true
	} else if !bytes.Equal(got, rd.marker[:]) {
		return errors.New(errors.ErrorTypeFormat, "invalid sync").
			WithDetail("offset", rd.pos).
			WithDetail("block", rd.blocks+1)
	}
	rd.consume(SyncSize)
	return nil
}

func (rd *Reader) readLong() (int64, error) {
	for {
		v, n := binary.Varint(rd.buf[rd.start:rd.end])
		if n > 0 {
			rd.consume(n)
			return v, nil
		}
		if n < 0 {
			return 0, errors.New(errors.ErrorTypeFormat, "block count overflows int64").
				WithDetail("offset", rd.pos)
		}
		if err := rd.more(); err != nil {
			return 0, truncated(err, rd.pos, "block count")
		}
	}
}

func (rd *Reader) decode(reuse *record.Record) (*record.Record, error) {
	for {
		avail := rd.buf[rd.start:rd.end]
		rec, rest, err := rd.dec.DecodeRecord(avail, reuse)
		if err == nil {
			rd.consume(len(avail) - len(rest))
			return rec, nil
		}
		if !stderrors.Is(err, ErrShortBuffer) {
			return nil, errors.Wrap(err, errors.ErrorTypeFormat, "corrupt record").
				WithDetail("offset", rd.pos)
		}
		if err := rd.more(); err != nil {
			return nil, truncated(err, rd.pos, "record")
		}
	}
}

// consume advances past n buffered bytes.
func (rd *Reader) consume(n int) {
	rd.start += n
	rd.pos += int64(n)
}

// fill ensures at least n unconsumed bytes are buffered.
func (rd *Reader) fill(n int) error {
	for rd.end-rd.start < n {
		if err := rd.more(); err != nil {
			return err
		}
	}
	return nil
}

// more buffers at least one additional byte, compacting the window first and
// doubling it when it is full.
func (rd *Reader) more() error {
	if rd.srcDone {
		return io.ErrUnexpectedEOF
	}
	if rd.start > 0 {
		n := copy(rd.buf, rd.buf[rd.start:rd.end])
		rd.start, rd.end = 0, n
	}
	if rd.end == len(rd.buf) {
		if len(rd.buf) >= rd.cfg.MaxRecordSize {
			return errors.New(errors.ErrorTypeFormat, "record exceeds maximum size").
				WithDetail("max_record_size", rd.cfg.MaxRecordSize).
				WithDetail("offset", rd.pos)
		}
		grown := make([]byte, min(2*len(rd.buf), rd.cfg.MaxRecordSize))
		copy(grown, rd.buf[:rd.end])
		rd.buf = grown
		rd.log.Debug("read window grown", zap.Int("size", len(grown)))
	}

	n, err := io.ReadAtLeast(rd.src, rd.buf[rd.end:], 1)
	rd.end += n
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, io.EOF):
		rd.srcDone = true
		if n > 0 {
			return nil
		}
		return io.ErrUnexpectedEOF
	default:
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to read stream")
	}
}

func truncated(err error, offset int64, what string) error {
	if errors.IsType(err, errors.ErrorTypeFormat) || errors.IsType(err, errors.ErrorTypeFile) {
		return err
	}
	return errors.Wrap(err, errors.ErrorTypeFormat, "truncated block").
		WithDetail("offset", offset).
		WithDetail("reading", what)
}
