package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stellarlinkco/convo-eval/internal/config"
)

type cliState struct {
	configPath string
	verbose    bool
	cfg        *config.Config
	logger     *zap.SugaredLogger
}

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, errEvalFailed) {
			osExit(1)
			return
		}
		fmt.Fprintln(stderrWriter, err)
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &cliState{configPath: config.DefaultPath}

	root := &cobra.Command{
		Use:           "convo-eval",
		Short:         "Evaluate conversational GenAI systems",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", st.configPath, "path to config file")
	root.PersistentFlags().BoolVar(&st.verbose, "verbose", false, "debug logging")

	root.AddCommand(newRunCmd(st))
	root.AddCommand(newSweepCmd(st))
	root.AddCommand(newCompareCmd(st))
	root.AddCommand(newRankCmd(st))
	root.AddCommand(newHistoryCmd(st))
	return root
}

// loadState populates the CLI state; used as PreRunE on commands needing
// configuration.
func loadState(st *cliState) error {
	cfg, err := config.Load(st.configPath)
	if err != nil {
		return err
	}
	st.cfg = cfg
	st.logger, err = newLogger(st.verbose)
	return err
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return logger.Sugar(), nil
}
