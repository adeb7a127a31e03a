package pipeline

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/avrostream/pkg/container"
	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/filter"
	"github.com/ajitpratap0/avrostream/pkg/handler"
	"github.com/ajitpratap0/avrostream/pkg/logger"
	"github.com/ajitpratap0/avrostream/pkg/metrics"
	"github.com/ajitpratap0/avrostream/pkg/observability"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

// OpenFunc opens source as a record reader. The processor closes it.
type OpenFunc func(ctx context.Context, source string) (container.RecordReader, error)

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithCursor points c at every reader the processor drives.
func WithCursor(c *Cursor) Option {
	return func(p *Processor) { p.cursor = c }
}

// WithMetrics records run metrics in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithTracer creates spans for runs and sources with t.
func WithTracer(t trace.Tracer) Option {
	return func(p *Processor) { p.tracer = t }
}

// Stats are the record counts of a run.
type Stats struct {
	Read    int64
	Matched int64
}

// Processor drives readers through a filter and a handler.
type Processor struct {
	schema  *schema.Schema
	filter  filter.Filter
	handler handler.Handler

	logger  *zap.Logger
	cursor  *Cursor
	metrics *metrics.Collector
	tracer  trace.Tracer

	runID   string
	read    atomic.Int64
	matched atomic.Int64
}

// New creates a processor for records of s. A nil filter matches every
// record.
func New(s *schema.Schema, f filter.Filter, h handler.Handler, opts ...Option) *Processor {
	if f == nil {
		f = filter.And()
	}
	p := &Processor{
		schema:  s,
		filter:  f,
		handler: h,
		logger:  zap.NewNop(),
		runID:   ksuid.New().String(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunID identifies the processor's runs in logs and spans.
func (p *Processor) RunID() string { return p.runID }

// Stats returns the counts accumulated so far.
func (p *Processor) Stats() Stats {
	return Stats{Read: p.read.Load(), Matched: p.matched.Load()}
}

// Run processes every record of r between one Begin and one End. r is not
// closed.
func (p *Processor) Run(ctx context.Context, r container.RecordReader) error {
	return p.run(ctx, "run", 1, func(ctx context.Context) error {
		return p.process(ctx, "", r)
	})
}

// RunSources processes sources in order between one Begin and one End.
// Each source is opened with open and closed before the next is opened.
func (p *Processor) RunSources(ctx context.Context, sources []string, open OpenFunc) error {
	return p.run(ctx, "run_sources", len(sources), func(ctx context.Context) error {
		for _, src := range sources {
			if err := p.source(ctx, src, open); err != nil {
				return err
			}
		}
		return nil
	})
}

// RunConcurrent processes sources on up to workers goroutines sharing the
// handler, which must be safe for concurrent Consume. The first failure
// cancels the remaining sources; End is called only when all succeed.
// Cursors follow one reader at a time, so a processor with a cursor is
// rejected.
func (p *Processor) RunConcurrent(ctx context.Context, sources []string, workers int, open OpenFunc) error {
	if p.cursor != nil {
		return errors.New(errors.ErrorTypeInvalidArgument, "offset cursors need a sequential run")
	}
	if workers <= 0 {
		workers = 1
	}
	return p.run(ctx, "run_concurrent", len(sources), func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, src := range sources {
			g.Go(func() error {
				return p.source(gctx, src, open)
			})
		}
		return g.Wait()
	})
}

// run wraps body in the handler lifecycle, logging, metrics and a span.
func (p *Processor) run(ctx context.Context, name string, sources int, body func(context.Context) error) (err error) {
	ctx = context.WithValue(ctx, logger.RunIDKey, p.runID)
	log := logger.FromContext(ctx, p.logger)
	ctx, span := observability.StartSpan(ctx, p.tracer, "pipeline."+name)
	span.SetAttribute("run_id", p.runID)
	span.SetAttribute("sources", sources)

	timer := metrics.NewTimer()
	before := p.Stats()
	log.Debug("run started", zap.String("schema", p.schema.Name()), zap.Int("sources", sources))

	defer func() {
		d := timer.Stop()
		after := p.Stats()
		read, matched := after.Read-before.Read, after.Matched-before.Matched
		span.SetAttribute("records_read", read)
		span.SetAttribute("records_matched", matched)
		span.End(err)
		if p.metrics != nil {
			p.metrics.ObserveRun(d, err)
		}
		fields := []zap.Field{
			zap.Int64("records_read", read),
			zap.Int64("records_matched", matched),
			zap.Duration("duration", d),
		}
		if err != nil {
			log.Error("run failed", append(fields, zap.Error(err))...)
			return
		}
		log.Info("run completed", fields...)
	}()

	if err = p.handler.Begin(); err != nil {
		return err
	}
	if err = body(ctx); err != nil {
		return err
	}
	return p.handler.End()
}

// source opens, processes and closes one input.
func (p *Processor) source(ctx context.Context, src string, open OpenFunc) (err error) {
	ctx = context.WithValue(ctx, logger.SourceKey, src)
	ctx, span := observability.StartSpan(ctx, p.tracer, "pipeline.source")
	span.SetAttribute("source", src)
	defer func() { span.End(err) }()

	r, err := open(ctx, src)
	if err != nil {
		return err
	}
	err = p.process(ctx, src, r)
	if cerr := r.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close input").
			WithDetail("source", src)
	}
	return err
}

// blockCounter is implemented by readers that count container blocks.
type blockCounter interface {
	Blocks() int64
}

// process is the record loop. It neither begins nor ends the handler.
func (p *Processor) process(ctx context.Context, src string, r container.RecordReader) error {
	if p.cursor != nil {
		tell, _ := r.(container.Tell)
		p.cursor.set(tell)
		defer p.cursor.set(nil)
	}

	var read, matched int64
	start := time.Now()
	defer func() {
		p.read.Add(read)
		p.matched.Add(matched)
		if p.metrics != nil {
			p.metrics.RecordsRead(read)
			p.metrics.RecordsMatched(matched)
			if bc, ok := r.(blockCounter); ok {
				p.metrics.BlocksRead(bc.Blocks())
			}
		}
		if src != "" {
			logger.FromContext(ctx, p.logger).Debug("source processed",
				zap.Int64("records_read", read),
				zap.Int64("records_matched", matched),
				zap.Duration("duration", time.Since(start)))
		}
	}()

	rec := record.New(p.schema)
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeProcessing, "run cancelled").
				WithDetail("records_read", read)
		}
		next, err := r.Next(rec)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		read++

		ok, err := p.filter.Match(next)
		if err != nil {
			return err
		}
		if !ok {
			rec = next
			continue
		}
		if err := p.handler.Consume(next); err != nil {
			return err
		}
		matched++
		rec = record.New(p.schema)
	}
}
