// Package pipeline drives container readers through a filter and a handler.
//
// # Overview
//
// A Processor reads records one at a time, evaluates its filter and hands
// every match to its handler:
//
//	Begin -> (Next -> Match -> Consume)* -> End
//
// A run is fail-fast. The first error from the reader, the filter or the
// handler ends the run and is returned as is; End is not called, so a
// handler never finalizes output for a partial run. Context cancellation
// is checked between records.
//
// Records passed to Consume belong to the handler. The processor allocates
// a fresh record after every match and reuses the buffer of rejected ones,
// so handlers may retain what they receive.
//
// # Basic Usage
//
//	counter := handler.NewRecordCounter()
//	p := pipeline.New(s, expr.MustParse(`status >= 500`, s), counter,
//	    pipeline.WithLogger(logger))
//	if err := p.Run(ctx, reader); err != nil {
//	    return err
//	}
//
// # Multiple Sources
//
// RunSources feeds several inputs through one Begin/End lifecycle, so
// handler state spans every source. RunConcurrent does the same with one
// goroutine per source; its handler must accept concurrent Consume calls.
//
// # Offsets
//
// A Cursor is a container.Tell that follows whichever reader the processor
// is currently driving. It lets a DataIndexer be built before the readers
// it indexes exist.
package pipeline
