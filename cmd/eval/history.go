package main

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/convo-eval/internal/store"
)

type historyCmdOptions struct {
	provider string
	model    string
	limit    int
}

func newHistoryCmd(st *cliState) *cobra.Command {
	var opts historyCmdOptions

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show stored run history",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.provider, "provider", "", "filter by provider")
	cmd.Flags().StringVar(&opts.model, "model", "", "filter by model")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "max runs to list")

	cmd.AddCommand(newHistoryShowCmd(st))
	return cmd
}

func newHistoryShowCmd(st *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show details for a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd, st, args[0])
		},
	}
}

func runHistoryList(cmd *cobra.Command, st *cliState, opts *historyCmdOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("history: missing config (internal error)")
	}
	if opts == nil {
		return fmt.Errorf("history: nil options")
	}

	stor, err := store.Open(st.cfg)
	if err != nil {
		return err
	}
	defer stor.Close()

	runs, err := stor.ListRuns(cmd.Context(), store.RunFilter{
		Provider: opts.provider,
		Model:    opts.model,
		Limit:    opts.limit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No runs found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN_ID\tFINISHED\tPROVIDER\tMODEL\tTOTAL\tPASS_RATE\tMEAN")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.1f%%\t%.3f\n",
			r.ID,
			formatTime(r.FinishedAt),
			r.Provider,
			r.Model,
			r.Summary.Total,
			r.Summary.PassRate*100,
			r.Summary.MeanScore,
		)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, st *cliState, runID string) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("history: missing config (internal error)")
	}

	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("history: missing run id")
	}

	stor, err := store.Open(st.cfg)
	if err != nil {
		return err
	}
	defer stor.Close()

	run, err := stor.GetRun(cmd.Context(), runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("history: run %q not found", runID)
		}
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Run: %s\n", run.ID)
	_, _ = fmt.Fprintf(out, "Finished: %s\n", formatTime(run.FinishedAt))
	_, _ = fmt.Fprintf(out, "Provider: %s  Model: %s\n", run.Provider, run.Model)

	sum := run.Summary
	_, _ = fmt.Fprintf(out, "Results: %d total, %d pass, %d fail, %d error, %d skipped\n\n",
		sum.Total, sum.Pass, sum.Fail, sum.Error, sum.Skipped)

	names := make([]string, 0, len(sum.ByMetric))
	for name := range sum.ByMetric {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tCOUNT\tPASS\tFAIL\tERROR\tMEAN\tSTDDEV")
	for _, name := range names {
		ms := sum.ByMetric[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.3f\t%.3f\n",
			name, ms.Count, ms.Pass, ms.Fail, ms.Error, ms.Mean, ms.StdDev)
	}
	return tw.Flush()
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.UTC().Format(time.RFC3339)
}
