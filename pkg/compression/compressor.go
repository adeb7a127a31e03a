// Package compression wraps data streams with the compression algorithms a
// record file may be stored with.
//
// # Overview
//
// Inputs are decompressed transparently by file extension:
//
//	.gz       gzip
//	.zst      zstandard
//	.sz       snappy (framed)
//	.s2       s2
//	.lz4      lz4 (frame)
//	.deflate  raw deflate
//
// # Basic Usage
//
//	alg, base := compression.ByExtension("events.avro.zst")
//	r, err := compression.NewReader(f, alg)
//	defer r.Close()
//
//	w, err := compression.NewWriter(out, &compression.Config{
//	    Algorithm: compression.Zstd,
//	    Level:     compression.Better,
//	})
//	defer w.Close()
package compression

import (
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/avrostream/pkg/errors"
)

// Algorithm names a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
	// Deflate represents raw deflate compression
	Deflate Algorithm = "deflate"
)

var extensions = map[string]Algorithm{
	".gz":      Gzip,
	".gzip":    Gzip,
	".zst":     Zstd,
	".zstd":    Zstd,
	".sz":      Snappy,
	".s2":      S2,
	".lz4":     LZ4,
	".deflate": Deflate,
}

// Algorithms lists every supported algorithm except None.
func Algorithms() []Algorithm {
	return []Algorithm{Gzip, Snappy, LZ4, Zstd, S2, Deflate}
}

// Parse returns the algorithm with the given name. The empty string is None.
func Parse(name string) (Algorithm, error) {
	if name == "" {
		return None, nil
	}
	a := Algorithm(strings.ToLower(name))
	if a == None {
		return None, nil
	}
	for _, known := range Algorithms() {
		if a == known {
			return a, nil
		}
	}
	return None, errors.New(errors.ErrorTypeInvalidArgument, "unsupported compression algorithm").
		WithDetail("algorithm", name)
}

// Extension returns the file suffix written for a.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Zstd:
		return ".zst"
	case Snappy:
		return ".sz"
	case S2:
		return ".s2"
	case LZ4:
		return ".lz4"
	case Deflate:
		return ".deflate"
	}
	return ""
}

// ByExtension picks the algorithm from the suffix of name and returns name
// without that suffix. Unknown suffixes mean None.
func ByExtension(name string) (Algorithm, string) {
	ext := strings.ToLower(path.Ext(name))
	if a, ok := extensions[ext]; ok {
		return a, name[:len(name)-len(ext)]
	}
	return None, name
}

// Level represents compression level, trading speed for ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Better improves compression at cost of speed.
	Better Level = 7
	// Best maximizes compression ratio.
	Best Level = 9
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case Fastest:
		return "fastest"
	case Default:
		return "default"
	case Better:
		return "better"
	case Best:
		return "best"
	default:
		return "unknown"
	}
}

// Config configures a compressing writer.
type Config struct {
	Algorithm Algorithm
	Level     Level
}

// DefaultConfig returns uncompressed output at the default level.
func DefaultConfig() *Config {
	return &Config{
		Algorithm: None,
		Level:     Default,
	}
}

// NewReader returns a reader that decompresses src with alg. Closing it
// releases decoder state but does not close src.
func NewReader(src io.Reader, alg Algorithm) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(src), nil
	case Gzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFormat, "invalid gzip stream")
		}
		return r, nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(src)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	case Zstd:
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFormat, "invalid zstd stream")
		}
		return zstdReader{dec}, nil
	case S2:
		return io.NopCloser(s2.NewReader(src)), nil
	case Deflate:
		return flate.NewReader(src), nil
	default:
		return nil, errors.New(errors.ErrorTypeInvalidArgument, "unsupported compression algorithm").
			WithDetail("algorithm", string(alg))
	}
}

// NewWriter returns a writer that compresses into dst. Close flushes the
// compressed stream but does not close dst. A nil config writes through.
func NewWriter(dst io.Writer, config *Config) (io.WriteCloser, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Algorithm {
	case None, "":
		return nopWriteCloser{dst}, nil
	case Gzip:
		w, err := gzip.NewWriterLevel(dst, mapGzipLevel(config.Level))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid gzip level")
		}
		return w, nil
	case Snappy:
		return snappy.NewBufferedWriter(dst), nil
	case LZ4:
		w := lz4.NewWriter(dst)
		if err := w.Apply(lz4.CompressionLevelOption(mapLZ4Level(config.Level))); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid lz4 level")
		}
		return w, nil
	case Zstd:
		enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(mapZstdLevel(config.Level)))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid zstd settings")
		}
		return enc, nil
	case S2:
		return s2.NewWriter(dst, s2WriterOptions(config.Level)...), nil
	case Deflate:
		w, err := flate.NewWriter(dst, mapDeflateLevel(config.Level))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid deflate level")
		}
		return w, nil
	default:
		return nil, errors.New(errors.ErrorTypeInvalidArgument, "unsupported compression algorithm").
			WithDetail("algorithm", string(config.Algorithm))
	}
}

// Compress compresses data in memory.
func Compress(data []byte, config *Config) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, config)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProcessing, "compression failed")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeProcessing, "compression failed")
	}
	return buf.Bytes(), nil
}

// Decompress decompresses data in memory.
func Decompress(data []byte, alg Algorithm) ([]byte, error) {
	r, err := NewReader(bytes.NewReader(data), alg)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFormat, "decompression failed").
			WithDetail("algorithm", string(alg))
	}
	return out, nil
}

type zstdReader struct {
	*zstd.Decoder
}

func (z zstdReader) Close() error {
	z.Decoder.Close()
	return nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Helper functions to map compression levels

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func mapDeflateLevel(level Level) int {
	switch level {
	case Fastest:
		return flate.BestSpeed
	case Best:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}

func s2WriterOptions(level Level) []s2.WriterOption {
	switch level {
	case Better:
		return []s2.WriterOption{s2.WriterBetterCompression()}
	case Best:
		return []s2.WriterOption{s2.WriterBestCompression()}
	}
	return nil
}
