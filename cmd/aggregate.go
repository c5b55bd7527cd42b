package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/propmap/internal/config"
	"github.com/sells-group/propmap/internal/fetcher"
	"github.com/sells-group/propmap/internal/pricepaid"
	"github.com/sells-group/propmap/internal/runlog"
	"github.com/sells-group/propmap/internal/summary"
)

// Aggregation stages named in failures.
const (
	stageOpen  = "open"
	stageRead  = "read"
	stageWrite = "write"
)

// stageError ties a failure to the stage that produced it.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func failedStage(err error) string {
	var se *stageError
	if errors.As(err, &se) {
		return se.stage
	}
	return ""
}

// aggregateReport is the YAML document written by --report.
type aggregateReport struct {
	RunID     string           `yaml:"run_id"`
	Input     string           `yaml:"input"`
	Field     string           `yaml:"field"`
	Cutoff    string           `yaml:"cutoff"`
	Shards    int              `yaml:"shards"`
	Status    string           `yaml:"status"`
	Stage     string           `yaml:"stage,omitempty"`
	Error     string           `yaml:"error,omitempty"`
	Districts int              `yaml:"districts"`
	Written   int              `yaml:"written"`
	Counters  map[string]int64 `yaml:"counters"`
	StartedAt time.Time        `yaml:"started_at"`
	Duration  string           `yaml:"duration"`
}

var (
	aggregateShards     int
	aggregateCutoff     string
	aggregateReportPath string
	aggregateHeader     bool
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate <csv-path|url|->",
	Short: "Compute per-district median prices from a price-paid extract",
	Long: `Streams a price-paid CSV once, groups accepted sales by postcode district
and upserts the median price into the configured summary store. Skipped
records are counted by reason and always reported. If any stage fails the
summary store is left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if aggregateShards > 0 {
			cfg.Aggregate.Shards = aggregateShards
		}
		if aggregateCutoff != "" {
			cfg.Aggregate.Cutoff = aggregateCutoff
		}
		if err := cfg.Validate("aggregate"); err != nil {
			return err
		}

		opts, err := aggregateOptions(cfg.Aggregate, time.Now())
		if err != nil {
			return err
		}

		sink, pool, err := openSink(ctx)
		if err != nil {
			return eris.Wrap(err, "aggregate: open summary store")
		}
		defer sink.Close() //nolint:errcheck
		if pool != nil {
			defer pool.Close()
		}

		var runs *runlog.Log
		var runID uuid.UUID
		if pool != nil {
			runs = runlog.New(pool)
			if runID, err = runs.Start(ctx, "aggregate"); err != nil {
				zap.L().Warn("aggregate: run log unavailable", zap.Error(err))
				runs = nil
			}
		}
		if runID == uuid.Nil {
			runID = uuid.New()
		}

		report, runErr := runAggregate(ctx, aggregateJob{
			input:  args[0],
			opts:   opts,
			shards: cfg.Aggregate.Shards,
			field:  cfg.Aggregate.Field,
			header: aggregateHeader,
			sink:   sink,
			out:    cmd.OutOrStdout(),
		})
		report.RunID = runID.String()

		if runs != nil {
			var logErr error
			if runErr != nil {
				logErr = runs.Fail(ctx, runID, report.Stage, runErr, report.Counters)
			} else {
				logErr = runs.Complete(ctx, runID, report.Counters)
			}
			if logErr != nil {
				zap.L().Warn("aggregate: update run log", zap.Error(logErr))
			}
		}

		if aggregateReportPath != "" {
			if err := writeReport(aggregateReportPath, report); err != nil {
				zap.L().Error("aggregate: write report", zap.Error(err))
			}
		}

		return runErr
	},
}

func init() {
	aggregateCmd.Flags().IntVar(&aggregateShards, "shards", 0, "parallel shards (default from config)")
	aggregateCmd.Flags().StringVar(&aggregateCutoff, "cutoff", "", "drop sales before this date, YYYY-MM-DD (default: aggregate.cutoff_years ago)")
	aggregateCmd.Flags().StringVar(&aggregateReportPath, "report", "", "write a YAML run report to this path")
	aggregateCmd.Flags().BoolVar(&aggregateHeader, "header", false, "input has a header line")
	rootCmd.AddCommand(aggregateCmd)
}

// aggregateOptions maps config onto pricepaid options, resolving the cutoff
// against now.
func aggregateOptions(ac config.AggregateConfig, now time.Time) (pricepaid.Options, error) {
	cutoff := pricepaid.CutoffYears(now, ac.CutoffYears)
	if ac.Cutoff != "" {
		t, err := time.Parse("2006-01-02", ac.Cutoff)
		if err != nil {
			return pricepaid.Options{}, eris.Wrapf(err, "aggregate: parse cutoff %q", ac.Cutoff)
		}
		cutoff = t
	}
	opts := pricepaid.Options{
		ValueField: ac.ValueField,
		DateField:  ac.DateField,
		KeyField:   ac.KeyField,
		MinFields:  ac.MinFields,
		Cutoff:     cutoff,
	}
	return opts, opts.Validate()
}

type aggregateJob struct {
	input  string
	opts   pricepaid.Options
	shards int
	field  string
	header bool
	sink   summary.Sink
	out    io.Writer
}

// runAggregate executes open, read and write in order. The counters are
// printed and reported whatever the outcome; the sink is only written after
// the whole input has been read.
func runAggregate(ctx context.Context, job aggregateJob) (*aggregateReport, error) {
	log := zap.L().With(zap.String("component", "aggregate"), zap.String("input", job.input))
	start := time.Now()

	report := &aggregateReport{
		Input:     job.input,
		Field:     job.field,
		Cutoff:    job.opts.Cutoff.Format("2006-01-02"),
		Shards:    job.shards,
		Status:    runlog.StatusFailed,
		StartedAt: start.UTC(),
	}
	finish := func(res *pricepaid.Result, err error) (*aggregateReport, error) {
		if res != nil {
			report.Counters = res.Counters.Map()
			report.Districts = len(res.Medians)
			printCounters(job.out, res.Counters)
			log.Info("aggregate counters",
				zap.Int64("accepted", res.Counters.Accepted),
				zap.Int64("skipped", res.Counters.Skipped()),
				zap.Any("by_reason", report.Counters),
			)
		}
		report.Duration = time.Since(start).Round(time.Millisecond).String()
		if err != nil {
			report.Stage = failedStage(err)
			report.Error = err.Error()
			log.Error("aggregate failed", zap.String("stage", report.Stage), zap.Error(err))
			return report, err
		}
		report.Status = runlog.StatusComplete
		return report, nil
	}

	in, err := openInput(ctx, job.input)
	if err != nil {
		return finish(nil, &stageError{stage: stageOpen, err: err})
	}
	defer in.Close() //nolint:errcheck

	records, errs := fetcher.StreamRecords(ctx, in, fetcher.RecordOptions{HasHeader: job.header})
	res, err := pricepaid.ParallelRun(ctx, job.opts, records, errs, job.shards)
	if err != nil {
		return finish(res, &stageError{stage: stageRead, err: err})
	}

	n, err := job.sink.Upsert(ctx, job.field, res.Medians)
	if err != nil {
		return finish(res, &stageError{stage: stageWrite, err: err})
	}
	report.Written = n
	fmt.Fprintf(job.out, "wrote %s for %d districts\n", job.field, n)

	return finish(res, nil)
}

// openInput opens a local file, stdin ("-"), or an http(s) URL.
func openInput(ctx context.Context, input string) (io.ReadCloser, error) {
	switch {
	case input == "-":
		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(input, "http://"), strings.HasPrefix(input, "https://"):
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Fetch.MaxRetries,
		})
		return f.Download(ctx, input)
	default:
		file, err := os.Open(input)
		if err != nil {
			return nil, eris.Wrapf(err, "open %s", input)
		}
		return file, nil
	}
}

func printCounters(w io.Writer, c pricepaid.Counters) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tRECORDS")
	for _, r := range []pricepaid.SkipReason{
		pricepaid.Accepted,
		pricepaid.TooFewFields,
		pricepaid.BadValue,
		pricepaid.BadDate,
		pricepaid.StaleDate,
		pricepaid.BadKey,
		pricepaid.Malformed,
	} {
		fmt.Fprintf(tw, "%s\t%d\n", r, c.Map()[r.String()])
	}
	fmt.Fprintf(tw, "skipped\t%d\n", c.Skipped())
	_ = tw.Flush()
}

func writeReport(path string, report *aggregateReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "encode report")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "create %s", dir)
		}
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}
