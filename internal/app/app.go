// Package app wires configuration, dataset, judge, scripts, and the
// orchestrator into complete evaluation runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stellarlinkco/convo-eval/internal/agent"
	"github.com/stellarlinkco/convo-eval/internal/config"
	"github.com/stellarlinkco/convo-eval/internal/dataset"
	"github.com/stellarlinkco/convo-eval/internal/llm"
	"github.com/stellarlinkco/convo-eval/internal/metric"
	"github.com/stellarlinkco/convo-eval/internal/report"
	"github.com/stellarlinkco/convo-eval/internal/result"
	"github.com/stellarlinkco/convo-eval/internal/runner"
	"github.com/stellarlinkco/convo-eval/internal/scoring"
	"github.com/stellarlinkco/convo-eval/internal/script"
	"github.com/stellarlinkco/convo-eval/internal/store"
	"github.com/stellarlinkco/convo-eval/internal/summary"
)

// RunOptions parameterizes one evaluation run. Provider and Model override
// the agent configuration, so a sweep can reuse one config for many
// combinations. OutputDir overrides the configured output directory.
type RunOptions struct {
	DatasetPath string
	OutputDir   string
	Provider    string
	Model       string
}

// RunReport is the outcome of one completed run.
type RunReport struct {
	RunID     string               `json:"run_id"`
	Summary   *summary.Summary     `json:"summary"`
	Statuses  []runner.GroupStatus `json:"group_statuses"`
	Artifacts *report.Artifacts    `json:"artifacts"`
}

// Run executes one full evaluation: load, orchestrate, summarize, report,
// and persist. The store may be nil when history is disabled.
func Run(ctx context.Context, cfg *config.Config, opts RunOptions, st store.RunWriter, logger *zap.SugaredLogger) (*RunReport, error) {
	if cfg == nil {
		return nil, errors.New("app: missing config")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	groups, err := dataset.Load(opts.DatasetPath)
	if err != nil {
		return nil, err
	}

	reg, scripts, err := buildRegistry(cfg, opts.DatasetPath, logger)
	if err != nil {
		return nil, err
	}

	provider, model, agentClient, err := buildAgent(cfg, opts)
	if err != nil {
		return nil, err
	}

	orch, err := runner.New(reg, scripts, agentClient, logger, runner.Config{
		SkipOnFailure:          cfg.Evaluation.SkipOnFailure,
		Threads:                cfg.Evaluation.Threads,
		TurnThresholds:         config.SystemThresholds(cfg.Evaluation.TurnMetrics),
		ConversationThresholds: config.SystemThresholds(cfg.Evaluation.ConversationMetrics),
	})
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := logger.With("run_id", runID)
	log.Infow("starting evaluation run", "groups", len(groups), "provider", provider, "model", model)

	col, statuses, err := orch.Run(ctx, groups)
	if err != nil {
		return nil, fmt.Errorf("app: run aborted: %w", err)
	}

	results := col.All()
	sum := summary.Build(runID, provider, model, results)

	outDir := strings.TrimSpace(opts.OutputDir)
	if outDir == "" {
		outDir = cfg.Output.Dir
	}
	arts, err := writeArtifacts(outDir, cfg.Output.Formats, results, sum)
	if err != nil {
		return nil, err
	}

	if st != nil {
		rec := &store.RunRecord{
			ID:         runID,
			Provider:   provider,
			Model:      model,
			FinishedAt: time.Now().UTC(),
			Summary:    sum,
		}
		if err := st.SaveRun(ctx, rec); err != nil {
			log.Errorw("persisting run summary failed", "error", err)
		}
	}

	log.Infow("evaluation run complete",
		"total", sum.Total, "pass", sum.Pass, "fail", sum.Fail,
		"error", sum.Error, "skipped", sum.Skipped)

	return &RunReport{
		RunID:     runID,
		Summary:   sum,
		Statuses:  statuses,
		Artifacts: arts,
	}, nil
}

// buildRegistry assembles the metric registry from the configured judge and
// a script runner rooted at the dataset's directory.
func buildRegistry(cfg *config.Config, datasetPath string, logger *zap.SugaredLogger) (*metric.Registry, *script.Runner, error) {
	judge, err := llm.DefaultProviderFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	scripts := &script.Runner{
		BaseDir: filepath.Dir(datasetPath),
		Timeout: cfg.Evaluation.ScriptTimeout.Std(),
		Logger:  logger,
	}

	reg := scoring.BuildRegistry(judge, scripts)
	if err := scoring.ApplySettings(reg, metric.ScopeTurn, cfg.Evaluation.TurnMetrics); err != nil {
		return nil, nil, err
	}
	if err := scoring.ApplySettings(reg, metric.ScopeConversation, cfg.Evaluation.ConversationMetrics); err != nil {
		return nil, nil, err
	}
	return reg, scripts, nil
}

func buildAgent(cfg *config.Config, opts RunOptions) (provider, model string, client agent.Client, err error) {
	provider = strings.TrimSpace(opts.Provider)
	if provider == "" {
		provider = cfg.Agent.Provider
	}
	model = strings.TrimSpace(opts.Model)
	if model == "" {
		model = cfg.Agent.Model
	}

	if !cfg.Agent.Enabled {
		return provider, model, nil, nil
	}
	httpClient, err := agent.NewHTTPClient(cfg.Agent.APIBase, provider, model, cfg.Agent.Timeout.Std())
	if err != nil {
		return "", "", nil, err
	}
	return provider, model, httpClient, nil
}

func writeArtifacts(dir string, formats []string, results []result.Result, sum *summary.Summary) (*report.Artifacts, error) {
	w := &report.Writer{Dir: dir, Formats: formats}
	return w.Write(results, sum)
}
