package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/convo-eval/internal/app"
	"github.com/stellarlinkco/convo-eval/internal/store"
	"github.com/stellarlinkco/convo-eval/internal/summary"
)

var errEvalFailed = errors.New("convo-eval: evaluation failures")

type runCmdOptions struct {
	dataPath  string
	outputDir string
	provider  string
	model     string
	noStore   bool
}

func newRunCmd(st *cliState) *cobra.Command {
	var opts runCmdOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an evaluation over a conversation dataset",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.dataPath, "data", "", "path to the conversation dataset YAML")
	cmd.Flags().StringVar(&opts.outputDir, "output", "", "output directory (overrides config)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "agent provider (overrides config)")
	cmd.Flags().StringVar(&opts.model, "model", "", "agent model (overrides config)")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "skip persisting the run summary")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runEvaluation(cmd *cobra.Command, st *cliState, opts *runCmdOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("run: missing config (internal error)")
	}
	if opts == nil {
		return fmt.Errorf("run: nil options")
	}

	var writer store.RunWriter
	if !opts.noStore {
		stor, err := store.Open(st.cfg)
		if err != nil {
			return err
		}
		defer stor.Close()
		writer = stor
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rep, err := app.Run(ctx, st.cfg, app.RunOptions{
		DatasetPath: opts.dataPath,
		OutputDir:   opts.outputDir,
		Provider:    opts.provider,
		Model:       opts.model,
	}, writer, st.logger)
	if err != nil {
		return err
	}

	printSummary(cmd, rep.RunID, rep.Summary)

	if rep.Summary.Fail > 0 || rep.Summary.Error > 0 {
		return errEvalFailed
	}
	return nil
}

func printSummary(cmd *cobra.Command, runID string, sum *summary.Summary) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Run: %s\n", runID)
	_, _ = fmt.Fprintf(out, "Results: %d total, %d pass, %d fail, %d error, %d skipped\n",
		sum.Total, sum.Pass, sum.Fail, sum.Error, sum.Skipped)
	_, _ = fmt.Fprintf(out, "Pass rate: %.1f%%  Mean score: %.3f\n\n", sum.PassRate*100, sum.MeanScore)

	names := make([]string, 0, len(sum.ByMetric))
	for name := range sum.ByMetric {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tCOUNT\tPASS\tFAIL\tERROR\tSKIPPED\tMEAN\tMEDIAN")
	for _, name := range names {
		ms := sum.ByMetric[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%.3f\t%.3f\n",
			name, ms.Count, ms.Pass, ms.Fail, ms.Error, ms.Skipped, ms.Mean, ms.Median)
	}
	_ = tw.Flush()
}
