package main

import (
	"cmp"
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/avrostream/pkg/collect"
	"github.com/ajitpratap0/avrostream/pkg/config"
	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/handler"
	"github.com/ajitpratap0/avrostream/pkg/pipeline"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "avrostream v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func (a *app) countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count [FILES...]",
		Short: "Count the records matching --where",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := handler.NewRecordCounter()
			p, err := a.process(cmd.Context(), c, sources(args), true)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.Count())
			a.log.Info("count finished",
				zap.String("matched", humanize.Comma(c.Count())),
				zap.String("read", humanize.Comma(p.Stats().Read)))
			return nil
		},
	}
}

func (a *app) distinctCmd() *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   "distinct --field F [FILES...]",
		Short: "List the distinct values of a field with their counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.field(field); err != nil {
				return err
			}
			d := handler.NewDistinctValues[any](field)
			if _, err := a.process(cmd.Context(), d, sources(args), true); err != nil {
				return err
			}
			counts := d.Counts()
			out := cmd.OutOrStdout()
			for _, v := range d.Values() {
				fmt.Fprintf(out, "%s\t%d\n", record.Format(v), counts[v])
			}
			a.log.Info("distinct finished", zap.String("field", field), zap.Int("values", d.Len()))
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "Field to collect (required)")
	return cmd
}

func (a *app) percentilesCmd() *cobra.Command {
	var (
		field      string
		ps         []string
		descending bool
	)
	cmd := &cobra.Command{
		Use:   "percentiles --field F --p 0.5,0.9 [FILES...]",
		Short: "Compute exact percentiles of a numeric or string field",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.field(field)
			if err != nil {
				return err
			}
			qs := make([]*big.Rat, len(ps))
			for i, s := range ps {
				if qs[i], err = handler.ParsePercentile(s); err != nil {
					return err
				}
				if qs[i].Sign() < 0 || qs[i].Cmp(big.NewRat(1, 1)) > 0 {
					return errors.Newf(errors.ErrorTypeInvalidArgument,
						"percentile must be between 0 and 1, inclusive: got %s", s)
				}
			}
			if f.Logical != "" {
				return errors.Newf(errors.ErrorTypeInvalidArgument, "field %s has logical type %s", field, f.Logical)
			}

			q := percentileQuery{field: field, raw: ps, qs: qs, ascending: !descending}
			switch f.Type {
			case schema.TypeInt, schema.TypeLong:
				return runPercentiles[int64](cmd, a, q, args)
			case schema.TypeFloat, schema.TypeDouble:
				return runPercentiles[float64](cmd, a, q, args)
			case schema.TypeString, schema.TypeEnum:
				return runPercentiles[string](cmd, a, q, args)
			}
			return errors.Newf(errors.ErrorTypeInvalidArgument, "field %s of type %s has no order", field, f.Type)
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "Field to rank (required)")
	cmd.Flags().StringSliceVar(&ps, "p", []string{"0.5", "0.9", "0.99"}, "Percentiles in [0, 1]")
	cmd.Flags().BoolVar(&descending, "descending", false, "Rank from the largest value")
	return cmd
}

type percentileQuery struct {
	field     string
	raw       []string
	qs        []*big.Rat
	ascending bool
}

func runPercentiles[T cmp.Ordered](cmd *cobra.Command, a *app, q percentileQuery, args []string) error {
	h := handler.NewPercentilesExact[T](q.field, q.ascending)
	if _, err := a.process(cmd.Context(), h, sources(args), true); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, rat := range q.qs {
		v, err := h.At(rat)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\n", q.raw[i], record.Format(v))
	}
	a.log.Info("percentiles finished", zap.String("field", q.field), zap.Int("values", h.Len()))
	return nil
}

func (a *app) indexCmd() *cobra.Command {
	var (
		suffix       string
		littleEndian bool
	)
	cmd := &cobra.Command{
		Use:   "index [--suffix .idx] FILES...",
		Short: "Write the offset of every matching record to a sidecar per input",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Reader.Mode != config.ModeReduced {
				return errors.New(errors.ErrorTypeInvalidArgument, "indexing needs the reduced read mode")
			}
			var order binary.ByteOrder = binary.BigEndian
			if littleEndian {
				order = binary.LittleEndian
			}
			for _, src := range args {
				if err := a.index(cmd.Context(), cmd, src, src+suffix, order); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&suffix, "suffix", ".idx", "Sidecar suffix appended to each input location")
	cmd.Flags().BoolVar(&littleEndian, "little-endian", false, "Write offsets little endian")
	return cmd
}

func (a *app) index(ctx context.Context, cmd *cobra.Command, src, dst string, order binary.ByteOrder) error {
	if src == "-" {
		return errors.New(errors.ErrorTypeInvalidArgument, "stdin has no location for a sidecar")
	}
	out, err := a.opener.Create(ctx, dst)
	if err != nil {
		return err
	}
	cursor := pipeline.NewCursor()
	idx := handler.NewDataIndexer(cursor, out, order)
	if _, err := a.process(ctx, idx, []string{src}, false, pipeline.WithCursor(cursor)); err != nil {
		// a partial sidecar would index only some records
		_ = out.Abort(err)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", dst, idx.Entries())
	return nil
}

func (a *app) dictCmd() *cobra.Command {
	var (
		field string
		top   int
	)
	cmd := &cobra.Command{
		Use:   "dict --field F [--top N] [FILES...]",
		Short: "Build a dictionary of a field's values, most frequent first",
		Long: `dict counts the values of a field and assigns dense ids in order of
descending frequency. Ties keep the order in which values were first seen.
Each output line is: id, value, count.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.field(field); err != nil {
				return err
			}
			freq := collect.NewFrequencyTracker[string]()
			h := handler.Func{OnConsume: func(r *record.Record) error {
				v, _ := r.GetByName(field)
				freq.Increment(record.Format(v))
				return nil
			}}
			if _, err := a.process(cmd.Context(), h, sources(args), false); err != nil {
				return err
			}

			keys := freq.Keys()
			if top > 0 {
				keys = freq.TopN(top)
			}
			ids := collect.NewSequentialTracker[string]()
			out := cmd.OutOrStdout()
			for _, k := range keys {
				fmt.Fprintf(out, "%d\t%s\t%d\n", ids.Index(k), k, freq.Count(k))
			}
			a.log.Info("dict finished",
				zap.String("field", field),
				zap.Int("values", freq.Len()),
				zap.Int("written", ids.Len()))
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "Field to collect (required)")
	cmd.Flags().IntVar(&top, "top", 0, "Keep only the N most frequent values (0 = all)")
	return cmd
}
