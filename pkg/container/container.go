// Package container reads and writes the reduced block container format: a
// four byte magic followed by blocks of records, with no metadata header.
// The record schema is supplied by the caller, which lets a reader consume
// streams that were compressed or re-framed outside the container.
//
// Stream layout:
//
//	magic   "Obj\x00"
//	block*  [16 byte sync marker][zig-zag varint count][count records]
//	footer  [16 byte sync marker][zig-zag varint -1]
//
// Every marker in a stream is identical to the first one.
package container

import (
	"errors"

	"github.com/ajitpratap0/avrostream/pkg/record"
)

const (
	// Magic starts every container stream.
	Magic = "Obj\x00"
	// SyncSize is the width of a block marker.
	SyncSize = 16
	// FooterBlock is the block count that ends a stream.
	FooterBlock = -1

	// DefaultWindowSize is the initial read window.
	DefaultWindowSize = 64 * 1024
	// DefaultMaxRecordSize bounds how far the window grows for a single record.
	DefaultMaxRecordSize = 64 * 1024 * 1024
	// DefaultBlockRecords is how many records the Writer puts in a block.
	DefaultBlockRecords = 4000
)

// ErrShortBuffer is returned by a RecordDecoder when the buffer holds only
// part of a record.
var ErrShortBuffer = errors.New("container: short buffer")

// Tell reports the stream offset of the start of the most recently returned
// record. Offsets count from the first byte of the stream, magic included.
type Tell interface {
	LastPos() int64
}

// RecordReader yields records one at a time. Next returns (nil, io.EOF) once
// the stream is exhausted.
type RecordReader interface {
	Next(reuse *record.Record) (*record.Record, error)
	Close() error
}

// RecordDecoder decodes one record from the head of buf and returns the
// remaining bytes. When reuse is non-nil the decoder fills and returns it.
type RecordDecoder interface {
	DecodeRecord(buf []byte, reuse *record.Record) (*record.Record, []byte, error)
}

// RecordEncoder appends the binary encoding of r to buf.
type RecordEncoder interface {
	EncodeRecord(buf []byte, r *record.Record) ([]byte, error)
}
