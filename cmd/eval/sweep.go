package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/convo-eval/internal/app"
	"github.com/stellarlinkco/convo-eval/internal/store"
)

type sweepCmdOptions struct {
	dataPath string
	combos   []string
	noStore  bool
}

func newSweepCmd(st *cliState) *cobra.Command {
	var opts sweepCmdOptions

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one dataset against multiple provider/model combinations",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadState(st)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, st, &opts)
		},
	}

	cmd.Flags().StringVar(&opts.dataPath, "data", "", "path to the conversation dataset YAML")
	cmd.Flags().StringArrayVar(&opts.combos, "combo", nil, "provider/model pair (repeatable)")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "skip persisting run summaries")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("combo")

	return cmd
}

func runSweep(cmd *cobra.Command, st *cliState, opts *sweepCmdOptions) error {
	if st == nil || st.cfg == nil {
		return fmt.Errorf("sweep: missing config (internal error)")
	}
	if opts == nil {
		return fmt.Errorf("sweep: nil options")
	}

	combos := make([]app.Combo, 0, len(opts.combos))
	for _, raw := range opts.combos {
		c, err := app.ParseCombo(raw)
		if err != nil {
			return err
		}
		combos = append(combos, c)
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

	statuses, err := app.Sweep(ctx, st.cfg, opts.dataPath, combos, writer, st.logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tMODEL\tSTATUS\tPASS_RATE\tMEAN\tOUTPUT")
	anyFailed := false
	for _, s := range statuses {
		if s.Err != "" {
			anyFailed = true
			fmt.Fprintf(tw, "%s\t%s\tFAILED: %s\t-\t-\t%s\n", s.Provider, s.Model, s.Err, s.OutputDir)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\tOK\t%.1f%%\t%.3f\t%s\n",
			s.Provider, s.Model, s.Summary.PassRate*100, s.Summary.MeanScore, s.OutputDir)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if anyFailed {
		return errEvalFailed
	}
	return nil
}
