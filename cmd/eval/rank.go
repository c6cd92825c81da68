package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/convo-eval/internal/compare"
	"github.com/stellarlinkco/convo-eval/internal/summary"
)

type rankCmdOptions struct {
	jsonOut bool
}

func newRankCmd(st *cliState) *cobra.Command {
	var opts rankCmdOptions

	cmd := &cobra.Command{
		Use:   "rank <summary.json> [summary.json...]",
		Short: "Rank run summaries by composite score",
		Args:  cobra.MinimumNArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRank(cmd, st, &opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "emit the ranking as JSON")
	return cmd
}

func runRank(cmd *cobra.Command, st *cliState, opts *rankCmdOptions, paths []string) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("rank: missing config (internal error)")
	}

	summaries := make([]*summary.Summary, 0, len(paths))
	for _, p := range paths {
		s, err := summary.LoadFile(p)
		if err != nil {
			return err
		}
		summaries = append(summaries, s)
	}

	weights := compare.DefaultWeights
	if w := st.cfg.Comparison.Weights; w != nil {
		weights = compare.Weights{PassRate: w.PassRate, MeanScore: w.MeanScore, ErrorPenalty: w.ErrorPenalty}
	}

	entries := compare.Rank(summaries, weights, st.cfg.Comparison.MinSamples)

	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tRUN\tPROVIDER\tMODEL\tCOMPOSITE\tPASS_RATE\tMEAN\tCI_95")
	for i, e := range entries {
		ci := "-"
		if e.CI != nil {
			ci = fmt.Sprintf("[%.3f, %.3f]", e.CI.Low, e.CI.High)
		} else if e.InsufficientData {
			ci = "insufficient data"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.3f\t%.1f%%\t%.3f\t%s\n",
			i+1, e.RunID, e.Provider, e.Model, e.Composite, e.PassRate*100, e.MeanScore, ci)
	}
	return tw.Flush()
}
