package handler

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/filter"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

var metricSchema = schema.MustParse(`{
  "type": "record", "name": "Metric",
  "fields": [
    {"name": "host", "type": ["null", "string"]},
    {"name": "value", "type": "int"},
    {"name": "raw", "type": "bytes"}
  ]
}`)

func metric(t *testing.T, host any, value int32) *record.Record {
	t.Helper()
	r, err := record.Of(metricSchema, host, value, []byte{1})
	require.NoError(t, err)
	return r
}

func feed(t *testing.T, h Handler, recs ...*record.Record) {
	t.Helper()
	require.NoError(t, h.Begin())
	for _, r := range recs {
		require.NoError(t, h.Consume(r))
	}
	require.NoError(t, h.End())
}

// recorder logs lifecycle calls and can fail on a chosen Consume.
type recorder struct {
	name     string
	log      *[]string
	failAt   int
	consumed int
}

func (r *recorder) Begin() error {
	*r.log = append(*r.log, r.name+".begin")
	return nil
}

func (r *recorder) Consume(*record.Record) error {
	r.consumed++
	*r.log = append(*r.log, r.name+".consume")
	if r.consumed == r.failAt {
		return errors.New(errors.ErrorTypeProcessing, "sink failed")
	}
	return nil
}

func (r *recorder) End() error {
	*r.log = append(*r.log, r.name+".end")
	return nil
}

func TestCompoundOrderAndAbort(t *testing.T) {
	var log []string
	a := &recorder{name: "a", log: &log}
	b := &recorder{name: "b", log: &log, failAt: 2}
	c := &recorder{name: "c", log: &log}
	h := NewCompoundBuilder().Add(a).Add(b).Add(c).Build()

	require.NoError(t, h.Begin())
	require.NoError(t, h.Consume(metric(t, "x", 1)))
	err := h.Consume(metric(t, "x", 2))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeProcessing))

	assert.Equal(t, []string{
		"a.begin", "b.begin", "c.begin",
		"a.consume", "b.consume", "c.consume",
		"a.consume", "b.consume",
	}, log)
}

func TestFiltered(t *testing.T) {
	var log []string
	inner := &recorder{name: "in", log: &log}
	h := NewFiltered(filter.GT("value", int64(5)), inner)

	feed(t, h, metric(t, "a", 3), metric(t, "b", 9), metric(t, "c", 1))
	assert.Equal(t, []string{"in.begin", "in.consume", "in.end"}, log)

	err := NewFiltered(filter.GT("host", int64(1)), inner).Consume(metric(t, "a", 1))
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeMismatch))
}

func TestFunc(t *testing.T) {
	var seen []int32
	h := Func{OnConsume: func(r *record.Record) error {
		seen = append(seen, r.Get(1).(int32))
		return nil
	}}
	feed(t, h, metric(t, "a", 1), metric(t, "a", 2))
	assert.Equal(t, []int32{1, 2}, seen)
}

func TestRecordCounter(t *testing.T) {
	c := NewRecordCounter()
	require.NoError(t, c.Begin())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Consume(nil)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, c.End())
	assert.Equal(t, int64(800), c.Count())
}

func TestDistinctValues(t *testing.T) {
	d := NewDistinctValues[string]("host")
	var recs []*record.Record
	for _, h := range []string{"A", "B", "A", "A", "C"} {
		recs = append(recs, metric(t, h, 0))
	}
	feed(t, d, recs...)

	assert.Equal(t, map[string]int64{"A": 3, "B": 1, "C": 1}, d.Counts())
	assert.ElementsMatch(t, []string{"A", "B", "C"}, d.Values())
	assert.Equal(t, []string{"A", "B", "C"}, d.Values(), "first-seen order")
	assert.Equal(t, "distinct(host)=3", d.String())
}

func TestDistinctValuesConcurrent(t *testing.T) {
	d := NewDistinctValues[int32]("value")
	var recs []*record.Record
	for i := int32(0); i < 50; i++ {
		recs = append(recs, metric(t, "h", i%5))
	}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, r := range recs {
				assert.NoError(t, d.Consume(r))
			}
		}()
	}
	wg.Wait()

	counts := d.Counts()
	assert.Len(t, counts, 5)
	for _, n := range counts {
		assert.Equal(t, int64(40), n)
	}
}

func TestDistinctValuesMismatch(t *testing.T) {
	err := NewDistinctValues[string]("host").Consume(metric(t, nil, 1))
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeMismatch), "null is not a string")

	err = NewDistinctValues[any]("raw").Consume(metric(t, "a", 1))
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeMismatch), "bytes cannot be a key")

	anyHosts := NewDistinctValues[any]("host")
	require.NoError(t, anyHosts.Consume(metric(t, nil, 1)))
	require.NoError(t, anyHosts.Consume(metric(t, "a", 1)))
	assert.Equal(t, []any{nil, "a"}, anyHosts.Values())

	err = NewDistinctValues[string]("nope").Consume(metric(t, "a", 1))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestPercentilesExact(t *testing.T) {
	p := NewPercentilesExact[int64]("value", true)
	var recs []*record.Record
	for _, v := range []int32{30, 10, 50, 20, 40} {
		recs = append(recs, metric(t, "h", v))
	}
	feed(t, p, recs...)

	got, err := p.Percentiles([]float64{0, 0.5, 0.9, 1})
	require.NoError(t, err)
	assert.Equal(t, map[float64]int64{0: 10, 0.5: 30, 0.9: 50, 1: 50}, got)

	_, err = p.Percentiles([]float64{1.1})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))

	_, err = p.Percentiles([]float64{-0.1})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestPercentilesExactDecimal(t *testing.T) {
	// 0.7 * 10 must be 7 exactly, not 6.999...
	p := NewPercentilesExact[int64]("value", true)
	for i := int32(0); i < 10; i++ {
		require.NoError(t, p.Consume(metric(t, "h", i)))
	}
	got, err := p.Percentiles([]float64{0.7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got[0.7])

	q, err := ParsePercentile("0.30")
	require.NoError(t, err)
	v, err := p.At(q)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	_, err = ParsePercentile("half")
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestPercentilesDescendingAndEmpty(t *testing.T) {
	p := NewPercentilesExact[float64]("value", false)
	_, err := p.Percentiles([]float64{0.5})
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument), "no values")

	for _, v := range []int32{1, 2, 3, 4} {
		require.NoError(t, p.Consume(metric(t, "h", v)))
	}
	got, err := p.Percentiles([]float64{0, 0.25})
	require.NoError(t, err)
	assert.Equal(t, 4.0, got[0])
	assert.Equal(t, 3.0, got[0.25])
	assert.Equal(t, 4, p.Len())
}

type fixedTell struct{ pos int64 }

func (f *fixedTell) LastPos() int64 { return f.pos }

type closingBuffer struct {
	bytes.Buffer
	closed bool
}

func (c *closingBuffer) Close() error {
	c.closed = true
	return nil
}

func TestDataIndexer(t *testing.T) {
	tell := &fixedTell{}
	out := &closingBuffer{}
	idx := NewDataIndexer(tell, out, nil)

	require.NoError(t, idx.Begin())
	for _, pos := range []int64{0, 37, 91} {
		tell.pos = pos
		require.NoError(t, idx.Consume(nil))
	}
	assert.False(t, out.closed)
	require.NoError(t, idx.End())
	assert.True(t, out.closed)

	assert.Equal(t, 24, out.Len())
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 37}, out.Bytes()[8:16])

	offsets, err := ReadIndex(bytes.NewReader(out.Bytes()), binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 37, 91}, offsets)
	assert.Equal(t, int64(3), idx.Entries())
}

func TestDataIndexerLittleEndian(t *testing.T) {
	var out bytes.Buffer
	idx := NewDataIndexer(&fixedTell{pos: 258}, &out, binary.LittleEndian)
	feed(t, idx, metric(t, "h", 1))
	assert.Equal(t, []byte{2, 1, 0, 0, 0, 0, 0, 0}, out.Bytes())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestDataIndexerWriteFailure(t *testing.T) {
	idx := NewDataIndexer(&fixedTell{}, failingWriter{}, nil)
	err := idx.Consume(nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeProcessing))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestReadIndexRejectsPartialEntry(t *testing.T) {
	_, err := ReadIndex(bytes.NewReader(make([]byte, 12)), nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFormat))
}
