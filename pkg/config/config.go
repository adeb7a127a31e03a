package config

import (
	"runtime"
	"slices"

	"github.com/ajitpratap0/avrostream/pkg/compression"
	"github.com/ajitpratap0/avrostream/pkg/container"
	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/sink"
)

// Read modes.
const (
	ModeReduced = "reduced"
	ModeOCF     = "ocf"
)

// Export formats.
var Formats = []string{"json", "csv", "avro", "ocf", "kafka"}

// Config is the root configuration. Flags and AVROSTREAM_* variables
// override values loaded from a file.
type Config struct {
	// Schema is the path of the Avro schema describing input records.
	Schema string `yaml:"schema" json:"schema"`
	// Where is a filter expression applied to every record.
	Where string `yaml:"where" json:"where"`

	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Reader        ReaderConfig        `yaml:"reader" json:"reader"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Export        ExportConfig        `yaml:"export" json:"export"`
	Kafka         sink.KafkaConfig    `yaml:"kafka" json:"kafka"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level       string   `yaml:"level" json:"level"`
	Encoding    string   `yaml:"encoding" json:"encoding"`
	Development bool     `yaml:"development" json:"development"`
	OutputPaths []string `yaml:"output_paths" json:"output_paths"`
}

// ReaderConfig selects how inputs are decoded.
type ReaderConfig struct {
	// Mode is "reduced" (no header, schema supplied) or "ocf" (full
	// object container files).
	Mode          string `yaml:"mode" json:"mode"`
	WindowSize    int    `yaml:"window_size" json:"window_size"`
	MaxRecordSize int    `yaml:"max_record_size" json:"max_record_size"`
	// Workers bounds the sources read concurrently. 1 reads sources in
	// order through a single pipeline.
	Workers int `yaml:"workers" json:"workers"`
}

// StorageConfig configures object storage and output compression.
type StorageConfig struct {
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// CompressionLevel is fastest, default, better or best.
	CompressionLevel string `yaml:"compression_level" json:"compression_level"`
}

// ExportConfig configures the export command.
type ExportConfig struct {
	Format    string `yaml:"format" json:"format"`
	Delimiter string `yaml:"delimiter" json:"delimiter"`
	Header    bool   `yaml:"header" json:"header"`
	// Codec is the block codec of ocf output: null, deflate or snappy.
	Codec        string `yaml:"codec" json:"codec"`
	BlockRecords int    `yaml:"block_records" json:"block_records"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// MetricsFile receives run metrics in the Prometheus text format.
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`
	// Trace exports run spans to stderr.
	Trace        bool    `yaml:"trace" json:"trace"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
}

// Default returns a configuration with every section filled in.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:       "info",
			Encoding:    "console",
			OutputPaths: []string{"stderr"},
		},
		Reader: ReaderConfig{
			Mode:          ModeReduced,
			WindowSize:    container.DefaultWindowSize,
			MaxRecordSize: container.DefaultMaxRecordSize,
			Workers:       1,
		},
		Storage: StorageConfig{
			CompressionLevel: compression.Default.String(),
		},
		Export: ExportConfig{
			Format:       "json",
			Delimiter:    ",",
			Codec:        "null",
			BlockRecords: container.DefaultBlockRecords,
		},
		Kafka: sink.DefaultKafkaConfig(),
		Observability: ObservabilityConfig{
			SamplingRate: 1.0,
		},
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Reader.Mode != ModeReduced && c.Reader.Mode != ModeOCF {
		return invalid("reader.mode", c.Reader.Mode)
	}
	if c.Reader.WindowSize <= 0 {
		return invalid("reader.window_size", c.Reader.WindowSize)
	}
	if c.Reader.MaxRecordSize < c.Reader.WindowSize {
		return invalid("reader.max_record_size", c.Reader.MaxRecordSize)
	}
	if c.Reader.Workers < 0 {
		return invalid("reader.workers", c.Reader.Workers)
	}
	if _, err := c.Storage.Level(); err != nil {
		return err
	}
	if !slices.Contains(Formats, c.Export.Format) {
		return invalid("export.format", c.Export.Format)
	}
	if c.Export.BlockRecords <= 0 {
		return invalid("export.block_records", c.Export.BlockRecords)
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		return invalid("observability.sampling_rate", c.Observability.SamplingRate)
	}
	return nil
}

// GetWorkers returns the number of workers, ensuring it's at least 1
func (r *ReaderConfig) GetWorkers() int {
	if r.Workers <= 0 {
		return runtime.NumCPU()
	}
	return r.Workers
}

// Level parses CompressionLevel.
func (s *StorageConfig) Level() (compression.Level, error) {
	for _, l := range []compression.Level{compression.Fastest, compression.Default, compression.Better, compression.Best} {
		if l.String() == s.CompressionLevel {
			return l, nil
		}
	}
	if s.CompressionLevel == "" {
		return compression.Default, nil
	}
	return compression.Default, invalid("storage.compression_level", s.CompressionLevel)
}

// ContainerReader returns the reader settings for the container package.
func (r *ReaderConfig) ContainerReader() container.ReaderConfig {
	cfg := container.DefaultReaderConfig()
	if r.WindowSize > 0 {
		cfg.WindowSize = r.WindowSize
	}
	if r.MaxRecordSize > 0 {
		cfg.MaxRecordSize = r.MaxRecordSize
	}
	return cfg
}

func invalid(key string, value interface{}) error {
	return errors.Newf(errors.ErrorTypeConfig, "invalid %s: %v", key, value).
		WithDetail("key", key)
}
