package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/convo-eval/internal/compare"
	"github.com/stellarlinkco/convo-eval/internal/summary"
)

type compareCmdOptions struct {
	alpha   float64
	jsonOut bool
}

func newCompareCmd(st *cliState) *cobra.Command {
	var opts compareCmdOptions

	cmd := &cobra.Command{
		Use:   "compare <summary-a.json> <summary-b.json>",
		Short: "Statistically compare two run summaries",
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompareSummaries(cmd, st, &opts, args[0], args[1])
		},
	}

	cmd.Flags().Float64Var(&opts.alpha, "alpha", 0, "significance level (overrides config)")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "emit the report as JSON")

	return cmd
}

func runCompareSummaries(cmd *cobra.Command, st *cliState, opts *compareCmdOptions, pathA, pathB string) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("compare: missing config (internal error)")
	}

	a, err := summary.LoadFile(pathA)
	if err != nil {
		return err
	}
	b, err := summary.LoadFile(pathB)
	if err != nil {
		return err
	}

	alpha := opts.alpha
	if alpha <= 0 {
		alpha = st.cfg.Comparison.Alpha
	}

	report, err := compare.Compare(a, b, alpha)
	if err != nil {
		return err
	}

	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printCompareReport(cmd, report)
	return nil
}

func printCompareReport(cmd *cobra.Command, report *compare.Report) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Comparing %s vs %s (alpha=%.3f)\n\n", report.RunA, report.RunB, report.Alpha)

	if len(report.Metrics) == 0 {
		_, _ = fmt.Fprintln(out, "No shared metrics between the two runs.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "METRIC\tMEAN_A\tMEAN_B\tDIFF\tTEST\tP\tSIGNIFICANT")
	for _, m := range report.Metrics {
		for _, t := range []*compare.TestResult{m.TTest, m.MannWhitney, m.Contingency} {
			if t == nil {
				continue
			}
			fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%+.3f\t%s\t%.4f\t%s\n",
				m.Metric, m.MeanA, m.MeanB, m.MeanDiff, t.Name, t.PValue, yesNo(t.Significant))
		}
	}
	_ = tw.Flush()

	if report.Significant() {
		_, _ = fmt.Fprintln(out, "\nAt least one metric differs significantly.")
	} else {
		_, _ = fmt.Fprintln(out, "\nNo significant differences found.")
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
