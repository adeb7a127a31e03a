package main

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/avrostream/pkg/config"
	"github.com/ajitpratap0/avrostream/pkg/container"
	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/filter"
	"github.com/ajitpratap0/avrostream/pkg/filter/expr"
	"github.com/ajitpratap0/avrostream/pkg/handler"
	"github.com/ajitpratap0/avrostream/pkg/logger"
	"github.com/ajitpratap0/avrostream/pkg/metrics"
	"github.com/ajitpratap0/avrostream/pkg/observability"
	"github.com/ajitpratap0/avrostream/pkg/pipeline"
	"github.com/ajitpratap0/avrostream/pkg/schema"
	"github.com/ajitpratap0/avrostream/pkg/stream"
)

// app holds what every command shares once flags are parsed.
type app struct {
	in  io.Reader
	out io.Writer
	v   *viper.Viper

	cfg      *config.Config
	log      *zap.Logger
	schema   *schema.Schema
	filter   filter.Filter
	opener   *stream.Opener
	metrics  *metrics.Collector
	shutdown func(context.Context) error
}

func newApp(in io.Reader, out io.Writer) *app {
	v := viper.New()
	v.SetEnvPrefix("AVROSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &app{in: in, out: out, v: v}
}

// execute runs the command line args and releases what setup acquired.
func (a *app) execute(ctx context.Context, args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(a.in)
	root.SetOut(a.out)
	err := root.ExecuteContext(ctx)
	if cerr := a.close(ctx); err == nil {
		err = cerr
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "avrostream",
		Short: "Stream, filter and aggregate Avro container files",
		Long: `avrostream reads block container files of Avro records, applies a filter
expression to every record and feeds the matches to a command: counting,
distinct values, percentiles, offset indexes, dictionaries or export.

Inputs are local paths, - for stdin, s3://bucket/key or gs://bucket/object.
Files ending in .gz, .zst, .sz, .s2, .lz4 or .deflate are decompressed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("schema", "", "Path to the Avro schema of the input records")
	flags.String("where", "", `Filter expression, e.g. 'status >= 500 AND NOT path PREFIX "/health"'`)
	flags.String("mode", config.ModeReduced, "Container read mode: reduced or ocf")
	flags.Int("workers", 1, "Sources read concurrently by count, distinct and percentiles (0 = one per CPU)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log encoding (console, json)")
	flags.String("metrics-file", "", "Write run metrics to this file in the Prometheus text format")
	flags.Bool("trace", false, "Export run spans to stderr")
	flags.String("region", "", "AWS region for s3:// locations")
	flags.String("endpoint", "", "Custom S3 endpoint, switches to path-style addressing")
	flags.String("credentials-file", "", "GCS service account file for gs:// locations")
	_ = a.v.BindPFlags(flags)

	root.AddCommand(
		a.countCmd(),
		a.distinctCmd(),
		a.percentilesCmd(),
		a.indexCmd(),
		a.dictCmd(),
		a.exportCmd(),
		versionCmd(),
	)
	return root
}

// loadConfig merges the config file, AVROSTREAM_* variables and flags.
func (a *app) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := a.v.GetString("config"); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, err
		}
	}

	overrides := []struct {
		key string
		set func()
	}{
		{"schema", func() { cfg.Schema = a.v.GetString("schema") }},
		{"where", func() { cfg.Where = a.v.GetString("where") }},
		{"mode", func() { cfg.Reader.Mode = a.v.GetString("mode") }},
		{"workers", func() { cfg.Reader.Workers = a.v.GetInt("workers") }},
		{"log-level", func() { cfg.Logging.Level = a.v.GetString("log-level") }},
		{"log-format", func() { cfg.Logging.Encoding = a.v.GetString("log-format") }},
		{"metrics-file", func() { cfg.Observability.MetricsFile = a.v.GetString("metrics-file") }},
		{"trace", func() { cfg.Observability.Trace = a.v.GetBool("trace") }},
		{"region", func() { cfg.Storage.Region = a.v.GetString("region") }},
		{"endpoint", func() { cfg.Storage.Endpoint = a.v.GetString("endpoint") }},
		{"credentials-file", func() { cfg.Storage.CredentialsFile = a.v.GetString("credentials-file") }},
	}
	for _, o := range overrides {
		if a.v.IsSet(o.key) {
			o.set()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Schema == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "a schema is required (--schema or AVROSTREAM_SCHEMA)")
	}
	return cfg, nil
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
		OutputPaths: cfg.Logging.OutputPaths,
	}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}
	a.log = logger.Get().With(zap.String("command", cmd.Name()))

	if a.schema, err = schema.Load(cfg.Schema); err != nil {
		return err
	}
	if cfg.Where != "" {
		if a.filter, err = expr.Parse(cfg.Where, a.schema); err != nil {
			return err
		}
	}

	level, err := cfg.Storage.Level()
	if err != nil {
		return err
	}
	a.opener = stream.NewOpener(stream.Config{
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		CredentialsFile: cfg.Storage.CredentialsFile,
		Level:           level,
		Logger:          a.log,
		Stdin:           a.in,
		Stdout:          a.out,
	})
	a.metrics = metrics.NewCollector(cmd.Name(), nil)

	if cfg.Observability.Trace {
		tc := observability.DefaultTracingConfig()
		tc.ServiceVersion = version
		tc.SamplingRate = cfg.Observability.SamplingRate
		tc.Writer = cmd.ErrOrStderr()
		if a.shutdown, err = observability.Initialize(tc); err != nil {
			return err
		}
	}

	a.log.Debug("configured",
		zap.String("schema", a.schema.Name()),
		zap.String("mode", cfg.Reader.Mode),
		zap.String("where", cfg.Where))
	return nil
}

// close writes the metrics file and releases clients. Metrics are written
// for failed runs too.
func (a *app) close(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if a.metrics != nil && a.cfg.Observability.MetricsFile != "" {
		keep(a.metrics.WriteTextfile(a.cfg.Observability.MetricsFile))
	}
	if a.shutdown != nil {
		keep(a.shutdown(context.WithoutCancel(ctx)))
	}
	if a.opener != nil {
		keep(a.opener.Close())
	}
	return first
}

// open turns a location into a record reader of the configured mode.
func (a *app) open(ctx context.Context, source string) (container.RecordReader, error) {
	rc, err := a.opener.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	log := a.log.With(zap.String("source", source))

	var r container.RecordReader
	switch a.cfg.Reader.Mode {
	case config.ModeOCF:
		r, err = container.NewOCFReader(rc, a.schema, log)
	default:
		rcfg := a.cfg.Reader.ContainerReader()
		rcfg.Logger = log
		r, err = container.NewReaderWithConfig(rc, a.schema, container.NewAvroCodec(a.schema), rcfg)
	}
	if err != nil {
		_ = rc.Close()
		return nil, errors.Wrap(err, errors.TypeOf(err), "failed to open container").
			WithDetail("source", source)
	}
	return r, nil
}

// process runs h over sources. Concurrent-safe handlers may spread
// sources over the configured workers.
func (a *app) process(ctx context.Context, h handler.Handler, sources []string, concurrent bool, opts ...pipeline.Option) (*pipeline.Processor, error) {
	opts = append([]pipeline.Option{
		pipeline.WithLogger(a.log),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithTracer(observability.Tracer()),
	}, opts...)
	p := pipeline.New(a.schema, a.filter, h, opts...)

	if concurrent && a.cfg.Reader.Workers != 1 && len(sources) > 1 {
		return p, p.RunConcurrent(ctx, sources, a.cfg.Reader.GetWorkers(), a.open)
	}
	return p, p.RunSources(ctx, sources, a.open)
}

// sources defaults to stdin.
func sources(args []string) []string {
	if len(args) == 0 {
		return []string{"-"}
	}
	return args
}

// field checks that name is a field of the input schema.
func (a *app) field(name string) (schema.Field, error) {
	if name == "" {
		return schema.Field{}, errors.New(errors.ErrorTypeInvalidArgument, "--field is required")
	}
	f, ok := a.schema.Lookup(name)
	if !ok {
		return schema.Field{}, errors.New(errors.ErrorTypeInvalidArgument, "unknown field").
			WithDetail("field", name).
			WithDetail("schema", a.schema.Name())
	}
	return f, nil
}
