package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/propmap/internal/runlog"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent aggregation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		entries, err := runlog.New(pool).ListRecent(ctx, runsLimit)
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRuns(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func formatRuns(w io.Writer, entries []runlog.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMMAND\tSTATUS\tSTARTED\tDURATION\tDETAIL")
	for _, e := range entries {
		duration := "-"
		if e.CompletedAt != nil {
			duration = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID.String()[:8],
			e.Command,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			duration,
			runDetail(e),
		)
	}
	_ = tw.Flush()
}

// runDetail is the failure stage and message, or the non-zero counters.
func runDetail(e runlog.Entry) string {
	if e.Status == runlog.StatusFailed {
		msg := e.Error
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		if e.Stage != "" {
			return e.Stage + ": " + msg
		}
		return msg
	}

	keys := make([]string, 0, len(e.Counters))
	for k, v := range e.Counters {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, e.Counters[k]))
	}
	return strings.Join(parts, " ")
}
