package handler

import (
	"sync/atomic"

	"github.com/ajitpratap0/avrostream/pkg/record"
)

// RecordCounter counts consumed records. It is safe for concurrent Consume.
type RecordCounter struct {
	count atomic.Int64
}

// NewRecordCounter returns a zeroed counter.
func NewRecordCounter() *RecordCounter { return &RecordCounter{} }

// Begin implements Handler.
func (c *RecordCounter) Begin() error { return nil }

// Consume implements Handler.
func (c *RecordCounter) Consume(*record.Record) error {
	c.count.Add(1)
	return nil
}

// End implements Handler.
func (c *RecordCounter) End() error { return nil }

// Count returns the number of records consumed so far.
func (c *RecordCounter) Count() int64 { return c.count.Load() }
