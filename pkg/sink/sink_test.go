package sink

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/avrostream/pkg/container"
	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/handler"
	"github.com/ajitpratap0/avrostream/pkg/json"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

var orderSchema = schema.MustParse(`{
  "type": "record", "name": "Order", "namespace": "shop",
  "fields": [
    {"name": "id", "type": "long"},
    {"name": "customer", "type": ["null", "string"]},
    {"name": "total", "type": "double"}
  ]
}`)

func orders(t *testing.T, n int) []*record.Record {
	t.Helper()
	out := make([]*record.Record, n)
	for i := range out {
		var customer any
		if i != 1 {
			customer = fmt.Sprintf("c%d", i)
		}
		r, err := record.Of(orderSchema, int64(i), customer, float64(i)+0.5)
		require.NoError(t, err)
		out[i] = r
	}
	return out
}

func run(t *testing.T, h handler.Handler, recs []*record.Record) {
	t.Helper()
	require.NoError(t, h.Begin())
	for _, r := range recs {
		require.NoError(t, h.Consume(r))
	}
	require.NoError(t, h.End())
}

type closingBuffer struct {
	bytes.Buffer
	closed int
}

func (c *closingBuffer) Close() error {
	c.closed++
	return nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrShortWrite }

func TestJSONWriter(t *testing.T) {
	out := &closingBuffer{}
	run(t, NewJSONWriter(out, false), orders(t, 3))

	assert.Equal(t, 1, out.closed)
	assert.Equal(t,
		`{"id":0,"customer":"c0","total":0.5}`+"\n"+
			`{"id":1,"customer":null,"total":1.5}`+"\n"+
			`{"id":2,"customer":"c2","total":2.5}`+"\n",
		out.String())
}

func TestJSONWriterFailure(t *testing.T) {
	w := NewJSONWriter(failingWriter{}, false)
	err := w.Consume(orders(t, 1)[0])
	assert.True(t, errors.IsType(err, errors.ErrorTypeProcessing))
}

func TestDelimitedWriter(t *testing.T) {
	out := &closingBuffer{}
	run(t, NewDelimitedWriter(out, "|", true), orders(t, 2))

	assert.Equal(t, "id|customer|total\n0|c0|0.5\n1||1.5\n", out.String())
	assert.Equal(t, 1, out.closed)

	var plain bytes.Buffer
	run(t, NewDelimitedWriter(&plain, "", false), orders(t, 1))
	assert.Equal(t, "0,c0,0.5\n", plain.String())
}

func TestDelimitedWriterQuoting(t *testing.T) {
	rows := [][]any{
		{int64(0), "Smith, Jane", 1.5},
		{int64(1), "two\nlines", 2.0},
		{int64(2), `say "hi"`, 3.0},
	}
	var recs []*record.Record
	for _, row := range rows {
		r, err := record.Of(orderSchema, row...)
		require.NoError(t, err)
		recs = append(recs, r)
	}

	var out bytes.Buffer
	run(t, NewDelimitedWriter(&out, ",", false), recs)
	assert.Equal(t, "0,\"Smith, Jane\",1.5\n1,\"two\nlines\",2\n2,\"say \"\"hi\"\"\",3\n", out.String())

	var multi bytes.Buffer
	run(t, NewDelimitedWriter(&multi, "::", false), recs[:1])
	assert.Equal(t, "0::Smith, Jane::1.5\n", multi.String())
}

func TestContainerWriter(t *testing.T) {
	out := &closingBuffer{}
	cw, err := NewContainerWriter(out, container.NewAvroCodec(orderSchema), container.WriterConfig{BlockRecords: 2})
	require.NoError(t, err)
	recs := orders(t, 5)
	run(t, cw, recs)
	assert.Equal(t, int64(5), cw.Written())
	assert.Equal(t, 1, out.closed)

	rd, err := container.NewReader(bytes.NewReader(out.Bytes()), orderSchema, container.NewAvroCodec(orderSchema))
	require.NoError(t, err)
	for i := range recs {
		got, err := rd.Next(nil)
		require.NoError(t, err)
		assert.Equal(t, recs[i].Values(), got.Values())
	}
	_, err = rd.Next(nil)
	assert.Equal(t, io.EOF, err)
}

func TestOCFWriter(t *testing.T) {
	for _, compression := range []string{goavro.CompressionNullLabel, goavro.CompressionDeflateLabel, goavro.CompressionSnappyLabel} {
		t.Run(compression, func(t *testing.T) {
			var out bytes.Buffer
			w, err := NewOCFWriter(&out, orderSchema, compression, 2)
			require.NoError(t, err)
			recs := orders(t, 5)
			run(t, w, recs)

			rd, err := container.NewOCFReader(bytes.NewReader(out.Bytes()), orderSchema, nil)
			require.NoError(t, err)
			for i := range recs {
				got, err := rd.Next(nil)
				require.NoError(t, err)
				assert.Equal(t, recs[i].Values(), got.Values())
			}
			_, err = rd.Next(nil)
			assert.Equal(t, io.EOF, err)
		})
	}

	_, err := NewOCFWriter(&bytes.Buffer{}, orderSchema, "brotli", 0)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestKafkaWriter(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	for i := 0; i < 3; i++ {
		i := i
		producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != "orders" {
				return fmt.Errorf("topic %q", msg.Topic)
			}
			value, err := msg.Value.Encode()
			if err != nil {
				return err
			}
			var m map[string]any
			if err := json.Unmarshal(value, &m); err != nil {
				return err
			}
			if m["id"] != float64(i) {
				return fmt.Errorf("id %v, want %d", m["id"], i)
			}
			if i == 1 && msg.Key != nil {
				return fmt.Errorf("null customer should leave the message unkeyed")
			}
			if i != 1 {
				key, _ := msg.Key.Encode()
				if string(key) != fmt.Sprintf("c%d", i) {
					return fmt.Errorf("key %q", key)
				}
			}
			return nil
		})
	}

	cfg := DefaultKafkaConfig()
	cfg.Topic = "orders"
	cfg.KeyField = "customer"
	cfg.BatchSize = 2
	w := NewKafkaWriterWithProducer(producer, cfg, nil)
	run(t, w, orders(t, 3))
	assert.Equal(t, int64(3), w.Sent())
}

func TestKafkaWriterFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	cfg := DefaultKafkaConfig()
	cfg.Topic = "orders"
	cfg.BatchSize = 1
	w := NewKafkaWriterWithProducer(producer, cfg, nil)

	require.NoError(t, w.Begin())
	err := w.Consume(orders(t, 1)[0])
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeProcessing))
	assert.ErrorIs(t, err, sarama.ErrNotLeaderForPartition)
	assert.Equal(t, int64(0), w.Sent())
}

func TestKafkaWriterUnknownKey(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	cfg := DefaultKafkaConfig()
	cfg.Topic = "orders"
	cfg.KeyField = "missing"
	w := NewKafkaWriterWithProducer(producer, cfg, nil)
	err := w.Consume(orders(t, 1)[0])
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
}

func TestKafkaConfigValidation(t *testing.T) {
	_, err := NewKafkaWriter(KafkaConfig{Topic: "orders"}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	cfg := DefaultKafkaConfig()
	cfg.Compression = "zstd"
	cfg.Acks = "1"
	sc := cfg.SaramaConfig()
	assert.Equal(t, sarama.CompressionZSTD, sc.Producer.Compression)
	assert.Equal(t, sarama.WaitForLocal, sc.Producer.RequiredAcks)
	require.NoError(t, sc.Validate())
}

type countingProducer struct {
	sarama.SyncProducer
	closes int
}

func (c *countingProducer) Close() error {
	c.closes++
	return c.SyncProducer.Close()
}

func TestKafkaWriterCloseAfterFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer := &countingProducer{SyncProducer: mock}

	cfg := DefaultKafkaConfig()
	cfg.Topic = "orders"
	cfg.BatchSize = 1
	w := NewKafkaWriterWithProducer(producer, cfg, nil)

	require.NoError(t, w.Begin())
	require.Error(t, w.Consume(orders(t, 1)[0]))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, 1, producer.closes)
}
