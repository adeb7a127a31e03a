// Package testutil provides testing utilities for avrostream
package testutil

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/avrostream/pkg/container"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout, cancelled
// when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Records builds one record of s per row, values in field order.
func Records(t *testing.T, s *schema.Schema, rows ...[]any) []*record.Record {
	t.Helper()
	out := make([]*record.Record, len(rows))
	for i, row := range rows {
		r, err := record.Of(s, row...)
		if err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
		out[i] = r
	}
	return out
}

// EncodeContainer returns recs as a reduced container stream.
func EncodeContainer(t *testing.T, s *schema.Schema, recs []*record.Record, cfg container.WriterConfig) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := container.NewWriterWithConfig(&buf, container.NewAvroCodec(s), cfg)
	if err != nil {
		t.Fatalf("create container writer: %v", err)
	}
	for i, r := range recs {
		if err := w.Write(r); err != nil {
			t.Fatalf("write record %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close container writer: %v", err)
	}
	return buf.Bytes()
}

// WriteContainer writes recs as a reduced container file at path.
func WriteContainer(t *testing.T, path string, s *schema.Schema, recs []*record.Record, cfg container.WriterConfig) {
	t.Helper()
	if err := os.WriteFile(path, EncodeContainer(t, s, recs, cfg), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
