package sink

import (
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/handler"
	"github.com/ajitpratap0/avrostream/pkg/json"
	"github.com/ajitpratap0/avrostream/pkg/record"
)

// KafkaConfig configures a KafkaWriter.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	// KeyField names the field whose string form keys each message. Empty
	// means unkeyed messages.
	KeyField string `yaml:"key_field"`
	// Acks is "all", "1" or "0".
	Acks string `yaml:"acks"`
	// Compression is "none", "gzip", "snappy", "lz4" or "zstd".
	Compression string `yaml:"compression"`
	// BatchSize is the number of messages sent per request.
	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DefaultKafkaConfig returns the producer defaults.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Acks:        "all",
		Compression: "none",
		BatchSize:   100,
		Timeout:     10 * time.Second,
	}
}

// SaramaConfig builds the producer configuration.
func (c KafkaConfig) SaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = "avrostream"

	switch c.Acks {
	case "1":
		config.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		config.Producer.RequiredAcks = sarama.NoResponse
	default:
		config.Producer.RequiredAcks = sarama.WaitForAll
	}

	switch strings.ToLower(c.Compression) {
	case "gzip":
		config.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		config.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		config.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		config.Producer.Compression = sarama.CompressionZSTD
		config.Version = sarama.V2_1_0_0
	default:
		config.Producer.Compression = sarama.CompressionNone
	}

	if c.Timeout > 0 {
		config.Producer.Timeout = c.Timeout
	}
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	return config
}

// KafkaWriter publishes every record as a JSON message.
type KafkaWriter struct {
	producer sarama.SyncProducer
	cfg      KafkaConfig
	logger   *zap.Logger

	batch  []*sarama.ProducerMessage
	sent   int64
	closed bool
}

var _ handler.Handler = (*KafkaWriter)(nil)

// NewKafkaWriter connects a sync producer to cfg.Brokers.
func NewKafkaWriter(cfg KafkaConfig, logger *zap.Logger) (*KafkaWriter, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "kafka output needs brokers and a topic")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, cfg.SaramaConfig())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create Kafka producer").
			WithDetail("brokers", cfg.Brokers)
	}
	return NewKafkaWriterWithProducer(producer, cfg, logger), nil
}

// NewKafkaWriterWithProducer publishes through an existing producer, which
// End or Close closes.
func NewKafkaWriterWithProducer(producer sarama.SyncProducer, cfg KafkaConfig, logger *zap.Logger) *KafkaWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaWriter{
		producer: producer,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "kafka_writer"), zap.String("topic", cfg.Topic)),
	}
}

// Begin implements handler.Handler.
func (k *KafkaWriter) Begin() error { return nil }

// Consume implements handler.Handler.
func (k *KafkaWriter) Consume(r *record.Record) error {
	msg, err := k.message(r)
	if err != nil {
		return err
	}
	k.batch = append(k.batch, msg)
	if len(k.batch) >= k.cfg.BatchSize {
		return k.flush()
	}
	return nil
}

func (k *KafkaWriter) message(r *record.Record) (*sarama.ProducerMessage, error) {
	buf := json.GetBuffer()
	defer json.PutBuffer(buf)

	value, err := json.AppendRecord(buf.Bytes(), r)
	if err != nil {
		return nil, err
	}
	msg := &sarama.ProducerMessage{
		Topic: k.cfg.Topic,
		Value: sarama.ByteEncoder(append([]byte(nil), value...)),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte("application/json")},
			{Key: []byte("schema"), Value: []byte(r.Schema().Name())},
		},
	}
	if k.cfg.KeyField != "" {
		v, ok := r.GetByName(k.cfg.KeyField)
		if !ok {
			return nil, errors.New(errors.ErrorTypeInvalidArgument, "unknown key field").
				WithDetail("field", k.cfg.KeyField)
		}
		if v != nil {
			msg.Key = sarama.StringEncoder(record.Format(v))
		}
	}
	return msg, nil
}

func (k *KafkaWriter) flush() error {
	if len(k.batch) == 0 {
		return nil
	}
	var err error
	if len(k.batch) == 1 {
		_, _, err = k.producer.SendMessage(k.batch[0])
	} else {
		err = k.producer.SendMessages(k.batch)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to publish records").
			WithDetail("topic", k.cfg.Topic).
			WithDetail("batch", len(k.batch))
	}
	k.sent += int64(len(k.batch))
	k.batch = k.batch[:0]
	return nil
}

// End implements handler.Handler.
func (k *KafkaWriter) End() error {
	if err := k.flush(); err != nil {
		return err
	}
	k.logger.Info("published records", zap.Int64("messages", k.sent))
	return k.Close()
}

// Close releases the producer without publishing buffered records. End
// calls it; a failed run must call it since End is skipped. Close is
// idempotent.
func (k *KafkaWriter) Close() error {
	if k.closed {
		return nil
	}
	k.closed = true
	k.batch = k.batch[:0]
	if err := k.producer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProcessing, "failed to close Kafka producer")
	}
	return nil
}

// Sent returns the number of messages acknowledged.
func (k *KafkaWriter) Sent() int64 { return k.sent }
