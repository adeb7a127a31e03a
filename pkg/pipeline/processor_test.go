package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/avrostream/pkg/container"
	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/filter"
	"github.com/ajitpratap0/avrostream/pkg/handler"
	"github.com/ajitpratap0/avrostream/pkg/metrics"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
	"github.com/ajitpratap0/avrostream/pkg/testutil"
)

var eventSchema = schema.MustParse(`{
  "type": "record", "name": "Event",
  "fields": [
    {"name": "id", "type": "long"},
    {"name": "host", "type": "string"},
    {"name": "status", "type": "int"}
  ]
}`)

var hosts = []string{"A", "B", "A", "A", "C"}

// encode writes n events, cycling through hosts, in blocks of 2.
func encode(t *testing.T, n int) []byte {
	t.Helper()
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{int64(i), hosts[i%len(hosts)], int32(200 + 100*(i%4))}
	}
	return testutil.EncodeContainer(t, eventSchema, testutil.Records(t, eventSchema, rows...), container.WriterConfig{
		BlockRecords: 2,
		Marker:       []byte("fedcba9876543210"),
	})
}

func reader(t *testing.T, data []byte) *container.Reader {
	t.Helper()
	r, err := container.NewReader(bytes.NewReader(data), eventSchema, container.NewAvroCodec(eventSchema))
	require.NoError(t, err)
	return r
}

// opener serves in-memory streams by name.
func opener(streams map[string][]byte) OpenFunc {
	return func(_ context.Context, source string) (container.RecordReader, error) {
		data, ok := streams[source]
		if !ok {
			return nil, errors.New(errors.ErrorTypeFile, "no such source").WithDetail("source", source)
		}
		return container.NewReader(io.NopCloser(bytes.NewReader(data)), eventSchema, container.NewAvroCodec(eventSchema))
	}
}

// lifecycle counts handler calls and fails Consume number failAt.
type lifecycle struct {
	begins, consumes, ends int
	failAt                 int
	kept                   []*record.Record
}

func (l *lifecycle) Begin() error { l.begins++; return nil }

func (l *lifecycle) Consume(r *record.Record) error {
	l.consumes++
	if l.consumes == l.failAt {
		return errors.New(errors.ErrorTypeProcessing, "sink is full")
	}
	l.kept = append(l.kept, r)
	return nil
}

func (l *lifecycle) End() error { l.ends++; return nil }

func TestRunDistinct(t *testing.T) {
	d := handler.NewDistinctValues[string]("host")
	p := New(eventSchema, nil, d, WithLogger(testutil.TestLogger(t)))

	require.NoError(t, p.Run(testutil.TestContext(t), reader(t, encode(t, 5))))
	assert.Equal(t, map[string]int64{"A": 3, "B": 1, "C": 1}, d.Counts())
	assert.Equal(t, Stats{Read: 5, Matched: 5}, p.Stats())
	assert.NotEmpty(t, p.RunID())
}

func TestRunFailFast(t *testing.T) {
	h := &lifecycle{failAt: 2}
	p := New(eventSchema, nil, h)

	err := p.Run(context.Background(), reader(t, encode(t, 5)))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeProcessing))
	assert.Equal(t, 1, h.begins)
	assert.Equal(t, 2, h.consumes)
	assert.Equal(t, 0, h.ends)
}

func TestRunReaderFailureSkipsEnd(t *testing.T) {
	data := encode(t, 6)
	// corrupt the marker of the second block
	second := bytes.Index(data[4+16:], []byte("fedcba9876543210")) + 4 + 16
	data[second] ^= 0xff

	h := &lifecycle{}
	err := New(eventSchema, nil, h).Run(context.Background(), reader(t, data))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFormat))
	assert.Equal(t, 2, h.consumes, "the first block is delivered")
	assert.Equal(t, 0, h.ends)
}

func TestRunFilterAndRetention(t *testing.T) {
	h := &lifecycle{}
	p := New(eventSchema, filter.StrEQ("host", "A", false), h)

	require.NoError(t, p.Run(context.Background(), reader(t, encode(t, 10))))
	assert.Equal(t, 1, h.ends)
	assert.Equal(t, Stats{Read: 10, Matched: 6}, p.Stats())

	// retained records are distinct allocations holding their own values
	var ids []int64
	for _, r := range h.kept {
		ids = append(ids, r.Get(0).(int64))
	}
	assert.Equal(t, []int64{0, 2, 3, 5, 7, 8}, ids)
}

func TestRunFilterError(t *testing.T) {
	h := &lifecycle{}
	err := New(eventSchema, filter.GT("host", int64(1)), h).Run(context.Background(), reader(t, encode(t, 3)))
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeMismatch))
	assert.Equal(t, 0, h.consumes)
	assert.Equal(t, 0, h.ends)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := handler.Func{OnConsume: func(r *record.Record) error {
		if r.Get(0).(int64) == 2 {
			cancel()
		}
		return nil
	}}
	c := handler.NewRecordCounter()
	err := New(eventSchema, nil, handler.NewCompound(h, c)).Run(ctx, reader(t, encode(t, 10)))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(3), c.Count())
}

func TestRunSources(t *testing.T) {
	streams := map[string][]byte{"one": encode(t, 5), "two": encode(t, 5), "empty": encode(t, 0)}
	d := handler.NewDistinctValues[string]("host")
	h := &lifecycle{}
	p := New(eventSchema, nil, handler.NewCompound(d, h))

	require.NoError(t, p.RunSources(context.Background(), []string{"one", "empty", "two"}, opener(streams)))
	assert.Equal(t, map[string]int64{"A": 6, "B": 2, "C": 2}, d.Counts(), "state spans sources")
	assert.Equal(t, 1, h.begins)
	assert.Equal(t, 1, h.ends)

	h = &lifecycle{}
	err := New(eventSchema, nil, h).RunSources(context.Background(), []string{"one", "missing", "two"}, opener(streams))
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
	assert.Equal(t, 5, h.consumes)
	assert.Equal(t, 0, h.ends)
}

func TestRunConcurrent(t *testing.T) {
	streams := map[string][]byte{}
	var sources []string
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("part-%d", i)
		streams[name] = encode(t, 25)
		sources = append(sources, name)
	}

	counter := handler.NewRecordCounter()
	hostCounts := handler.NewDistinctValues[string]("host")
	p := New(eventSchema, nil, handler.NewCompound(counter, hostCounts))
	require.NoError(t, p.RunConcurrent(context.Background(), sources, 3, opener(streams)))

	assert.Equal(t, int64(200), counter.Count())
	assert.Equal(t, int64(120), hostCounts.Counts()["A"])
	assert.Equal(t, Stats{Read: 200, Matched: 200}, p.Stats())

	err := p.RunConcurrent(context.Background(), append(sources, "missing"), 3, opener(streams))
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))

	withCursor := New(eventSchema, nil, counter, WithCursor(NewCursor()))
	err = withCursor.RunConcurrent(context.Background(), sources, 2, opener(streams))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestCursorIndexesEachSource(t *testing.T) {
	data := encode(t, 5)

	// reference offsets straight from the reader
	var want []int64
	ref := reader(t, data)
	for {
		_, err := ref.Next(nil)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		want = append(want, ref.LastPos())
	}

	cursor := NewCursor()
	assert.Equal(t, int64(-1), cursor.LastPos())

	idxPath := filepath.Join(t.TempDir(), "events.idx")
	out, err := os.Create(idxPath)
	require.NoError(t, err)
	indexer := handler.NewDataIndexer(cursor, out, nil)

	p := New(eventSchema, nil, indexer, WithCursor(cursor))
	require.NoError(t, p.Run(context.Background(), reader(t, data)))
	assert.False(t, cursor.Attached())

	f, err := os.Open(idxPath)
	require.NoError(t, err)
	defer f.Close()
	got, err := handler.ReadIndex(f, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, int64(4+16+1), got[0], "first record follows magic, marker and count")
}

func TestMetricsAndSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	collector := metrics.NewCollector("count", nil)

	streams := map[string][]byte{"a": encode(t, 4), "b": encode(t, 3)}
	p := New(eventSchema, filter.GE("status", int64(300)), handler.NewRecordCounter(),
		WithMetrics(collector), WithTracer(tp.Tracer("test")))
	require.NoError(t, p.RunSources(context.Background(), []string{"a", "b"}, opener(streams)))

	path := filepath.Join(t.TempDir(), "run.prom")
	require.NoError(t, collector.WriteTextfile(path))
	text, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(text), `avrostream_records_read_total{command="count"} 7`)
	assert.Contains(t, string(text), `avrostream_records_matched_total{command="count"} 5`)
	assert.Contains(t, string(text), `avrostream_blocks_read_total{command="count"} 4`)

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"pipeline.source", "pipeline.source", "pipeline.run_sources"}, names)
}
