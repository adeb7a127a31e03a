package pipeline

import (
	"sync"

	"github.com/ajitpratap0/avrostream/pkg/container"
)

// Cursor is a container.Tell that delegates to the reader a Processor is
// currently driving. LastPos is -1 between readers and for readers that do
// not report offsets.
type Cursor struct {
	mu   sync.RWMutex
	tell container.Tell
}

var _ container.Tell = (*Cursor)(nil)

// NewCursor returns a cursor attached to no reader.
func NewCursor() *Cursor { return &Cursor{} }

// LastPos implements container.Tell.
func (c *Cursor) LastPos() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tell == nil {
		return -1
	}
	return c.tell.LastPos()
}

// Attached reports whether the cursor follows a reader with offsets.
func (c *Cursor) Attached() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tell != nil
}

func (c *Cursor) set(t container.Tell) {
	c.mu.Lock()
	c.tell = t
	c.mu.Unlock()
}
