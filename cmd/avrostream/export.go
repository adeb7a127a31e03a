package main

import (
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/avrostream/pkg/container"
	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/handler"
	"github.com/ajitpratap0/avrostream/pkg/schema"
	"github.com/ajitpratap0/avrostream/pkg/sink"
	"github.com/ajitpratap0/avrostream/pkg/stream"
	"github.com/ajitpratap0/avrostream/pkg/translate"
)

type exportFlags struct {
	format       string
	out          string
	delimiter    string
	header       bool
	array        bool
	fields       []string
	codec        string
	blockRecords int
	brokers      []string
	topic        string
	key          string
}

func (a *app) exportCmd() *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "export --format json|csv|avro|ocf|kafka [FILES...]",
		Short: "Write the matching records to a file, object or Kafka topic",
		Long: `export writes every matching record in the chosen format:

  json   one object per line (or one array with --array)
  csv    delimiter separated values, optional --header
  avro   the reduced block container, readable by every avrostream command
  ocf    an Avro object container file with --codec null, deflate or snappy
  kafka  one JSON message per record to --topic, keyed by --key

--select keeps only the named fields, in the given order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.applyExportFlags(cmd, &f)
			return a.export(cmd, f, sources(args))
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.format, "format", "json", "Output format: json, csv, avro, ocf or kafka")
	flags.StringVar(&f.out, "out", "-", "Output location; a compression suffix compresses it")
	flags.StringVar(&f.delimiter, "delimiter", ",", "Field delimiter of csv output")
	flags.BoolVar(&f.header, "header", false, "Write a header line to csv output")
	flags.BoolVar(&f.array, "array", false, "Wrap json output in one array")
	flags.StringSliceVar(&f.fields, "select", nil, "Fields to export, in order")
	flags.StringVar(&f.codec, "codec", "null", "Block codec of ocf output")
	flags.IntVar(&f.blockRecords, "block-records", container.DefaultBlockRecords, "Records per block of avro and ocf output")
	flags.StringSliceVar(&f.brokers, "brokers", nil, "Kafka brokers")
	flags.StringVar(&f.topic, "topic", "", "Kafka topic")
	flags.StringVar(&f.key, "key", "", "Field keying Kafka messages")
	return cmd
}

// applyExportFlags fills flags left unset from the config file and copies
// the result back into it.
func (a *app) applyExportFlags(cmd *cobra.Command, f *exportFlags) {
	changed := cmd.Flags().Changed
	e, k := &a.cfg.Export, &a.cfg.Kafka
	if !changed("format") {
		f.format = e.Format
	}
	if !changed("delimiter") {
		f.delimiter = e.Delimiter
	}
	if !changed("header") {
		f.header = e.Header
	}
	if !changed("codec") {
		f.codec = e.Codec
	}
	if !changed("block-records") {
		f.blockRecords = e.BlockRecords
	}
	if changed("brokers") {
		k.Brokers = f.brokers
	}
	if changed("topic") {
		k.Topic = f.topic
	}
	if changed("key") {
		k.KeyField = f.key
	}
	e.Format, e.Delimiter, e.Header, e.Codec, e.BlockRecords = f.format, f.delimiter, f.header, f.codec, f.blockRecords
}

func (a *app) export(cmd *cobra.Command, f exportFlags, srcs []string) error {
	ctx := cmd.Context()
	out := a.schema
	var tr translate.Translation
	if len(f.fields) > 0 {
		sel, err := translate.Select(a.schema, a.schema.Name(), f.fields...)
		if err != nil {
			return err
		}
		tr, out = sel, sel.Schema()
	}

	var (
		h  handler.Handler
		w  *countingWriter
		kw *sink.KafkaWriter
	)
	if f.format == "kafka" {
		if len(f.fields) > 0 && a.cfg.Kafka.KeyField != "" {
			if _, ok := out.Position(a.cfg.Kafka.KeyField); !ok {
				return errors.New(errors.ErrorTypeInvalidArgument, "key field is not selected").
					WithDetail("field", a.cfg.Kafka.KeyField)
			}
		}
		var err error
		if kw, err = sink.NewKafkaWriter(a.cfg.Kafka, a.log); err != nil {
			return err
		}
		h = kw
	} else {
		dst, err := a.opener.Create(ctx, f.out)
		if err != nil {
			return err
		}
		w = &countingWriter{w: dst}
		if h, err = newFileSink(f, w, out); err != nil {
			_ = w.Abort(err)
			return err
		}
	}
	if tr != nil {
		h = translate.NewConverter(tr, h)
	}

	p, err := a.process(ctx, h, srcs, false)
	if err != nil {
		// End was not called; discard the output instead of publishing it
		if w != nil {
			if aerr := w.Abort(err); aerr != nil {
				a.log.Warn("failed to discard export output", zap.String("out", f.out), zap.Error(aerr))
			}
		}
		if kw != nil {
			_ = kw.Close()
		}
		return err
	}

	fields := []zap.Field{
		zap.String("format", f.format),
		zap.String("records", humanize.Comma(p.Stats().Matched)),
	}
	if w != nil {
		fields = append(fields, zap.String("out", f.out), zap.String("bytes", humanize.Bytes(uint64(w.n))))
	}
	if kw != nil {
		fields = append(fields, zap.String("topic", a.cfg.Kafka.Topic), zap.Int64("sent", kw.Sent()))
	}
	a.log.Info("export finished", fields...)
	return nil
}

func newFileSink(f exportFlags, w io.WriteCloser, s *schema.Schema) (handler.Handler, error) {
	switch strings.ToLower(f.format) {
	case "json":
		return sink.NewJSONWriter(w, f.array), nil
	case "csv":
		return sink.NewDelimitedWriter(w, f.delimiter, f.header), nil
	case "avro":
		return sink.NewContainerWriter(w, container.NewAvroCodec(s), container.WriterConfig{
			BlockRecords: f.blockRecords,
		})
	case "ocf":
		return sink.NewOCFWriter(w, s, f.codec, f.blockRecords)
	}
	return nil, errors.New(errors.ErrorTypeInvalidArgument, "unknown export format").
		WithDetail("format", f.format)
}

// countingWriter counts the bytes written before compression.
type countingWriter struct {
	w stream.Output
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriter) Close() error { return c.w.Close() }

func (c *countingWriter) Abort(cause error) error { return c.w.Abort(cause) }
