package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/avrostream/pkg/errors"
)

func TestCollector(t *testing.T) {
	c := NewCollector("count", nil)
	c.RecordsRead(10)
	c.RecordsRead(5)
	c.RecordsMatched(4)
	c.BlocksRead(2)

	assert.Equal(t, 15.0, testutil.ToFloat64(c.recordsRead))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.recordsMatched))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.blocksRead))

	c.ObserveRun(time.Second, nil)
	c.ObserveRun(time.Millisecond, errors.New(errors.ErrorTypeFormat, "invalid sync"))
	c.ObserveRun(time.Millisecond, errors.New(errors.ErrorTypeFormat, "truncated block"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runFailures.WithLabelValues("format")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.runDuration))
}

func TestSeparateRegistries(t *testing.T) {
	// two collectors must not collide on registration
	a := NewCollector("count", nil)
	b := NewCollector("count", nil)
	a.RecordsRead(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.recordsRead))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector("distinct", nil)
	c.RecordsRead(3)
	c.ObserveRun(time.Second, nil)

	path := filepath.Join(t.TempDir(), "avrostream.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `avrostream_records_read_total{command="distinct"} 3`)
	assert.True(t, strings.Contains(text, "avrostream_run_duration_seconds_bucket"))

	err = c.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestThroughputTracker(t *testing.T) {
	tr := NewThroughputTracker(nil)
	tr.Increment(100)
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, tr.GetAndReset(), 0.0)
	assert.Less(t, NewTimer().Stop(), time.Second)
}
