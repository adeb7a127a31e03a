// Package avrostream streams records out of Avro data files and feeds them,
// one at a time, through filters and handlers.
//
// Files written in the reduced container layout (magic, 16 byte sync marker,
// then blocks of records terminated by a footer block) are read by a
// sequential reader that reports the byte offset of every record. Standard
// Avro object container files are read through goavro. Either reader can sit
// on top of gzip, zstd, snappy, lz4, s2 or deflate compressed input, and on
// local files, stdin, S3 or GCS objects.
//
// # Architecture
//
// A run is a single pass over one or more inputs:
//
//	stream.Opener -> container.Reader -> filter.Filter -> handler.Handler
//
// The pipeline.Processor drives the pass. It reuses one record.Record while
// the filter rejects and stops at the first error from the reader, the
// filter or the handler.
//
// # Quick Start
//
// Count the records of a file matching an expression:
//
//	s, _ := schema.Load("event.avsc")
//	f, _ := expr.Parse("status >= 500 and host prefix 'api'", s)
//	c := handler.NewRecordCounter()
//
//	p := pipeline.New(s, f, c, pipeline.WithLogger(logger.Get()))
//	opener := stream.NewOpener(stream.Config{})
//	err := p.RunSources(ctx, []string{"events.avro.gz"}, func(ctx context.Context, src string) (container.RecordReader, error) {
//	    rc, err := opener.Open(ctx, src)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return container.NewReader(rc, s, container.NewAvroCodec(s))
//	})
//
// # Key Packages
//
//	pkg/container    - Reduced container reader/writer and the OCF reader
//	pkg/filter       - Field comparisons, string matchers and combinators
//	pkg/filter/expr  - WHERE expression parser compiled into filters
//	pkg/handler      - Counting, distinct values, percentiles, indexing
//	pkg/translate    - Record translations and the converting handler
//	pkg/sink         - JSON, delimited text, container, OCF and Kafka writers
//	pkg/collect      - Frequency and sequential id trackers
//	pkg/pipeline     - The record processor
//	pkg/stream       - Local, S3 and GCS inputs with transparent decompression
//	pkg/config       - YAML configuration with ${VAR} substitution
//	pkg/errors       - Typed errors
//	pkg/logger       - Structured logging
//	pkg/metrics      - Run metrics
//
// The avrostream command in cmd/avrostream exposes the handlers as
// subcommands (count, distinct, percentiles, index, dict and export).
package avrostream
