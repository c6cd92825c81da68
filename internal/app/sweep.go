package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/stellarlinkco/convo-eval/internal/config"
	"github.com/stellarlinkco/convo-eval/internal/sched"
	"github.com/stellarlinkco/convo-eval/internal/store"
	"github.com/stellarlinkco/convo-eval/internal/summary"
)

// Combo names one provider/model pair for a sweep.
type Combo struct {
	Provider string
	Model    string
}

// ParseCombo parses "provider/model".
func ParseCombo(s string) (Combo, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return Combo{}, fmt.Errorf("app: invalid combination %q, want provider/model", s)
	}
	return Combo{Provider: strings.TrimSpace(parts[0]), Model: strings.TrimSpace(parts[1])}, nil
}

// Sweep runs the same dataset against every combination on a bounded worker
// pool, each run writing into its own subdirectory of the output directory.
func Sweep(ctx context.Context, cfg *config.Config, datasetPath string, combos []Combo, st store.RunWriter, logger *zap.SugaredLogger) ([]sched.WorkerStatus, error) {
	if cfg == nil {
		return nil, errors.New("app: missing config")
	}
	if len(combos) == 0 {
		return nil, errors.New("app: no provider/model combinations")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	tasks := make([]sched.Task, 0, len(combos))
	for _, c := range combos {
		combo := c
		tasks = append(tasks, sched.Task{
			Provider: combo.Provider,
			Model:    combo.Model,
			Threads:  cfg.Evaluation.Threads,
			Run: func(ctx context.Context, outputDir string) (*summary.Summary, error) {
				rep, err := Run(ctx, cfg, RunOptions{
					DatasetPath: datasetPath,
					OutputDir:   outputDir,
					Provider:    combo.Provider,
					Model:       combo.Model,
				}, st, logger)
				if err != nil {
					return nil, err
				}
				return rep.Summary, nil
			},
		})
	}

	sweep := &sched.Sweep{
		Workers: cfg.Evaluation.Workers,
		BaseDir: cfg.Output.Dir,
		Logger:  logger,
	}
	return sweep.Run(ctx, tasks)
}
