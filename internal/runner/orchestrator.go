package runner

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stellarlinkco/convo-eval/internal/agent"
	"github.com/stellarlinkco/convo-eval/internal/dataset"
	"github.com/stellarlinkco/convo-eval/internal/metric"
	"github.com/stellarlinkco/convo-eval/internal/resolve"
	"github.com/stellarlinkco/convo-eval/internal/result"
	"github.com/stellarlinkco/convo-eval/internal/script"
)

// Orchestrator drives the setup, turns, cleanup lifecycle for conversation
// groups and owns the run's result collection.
type Orchestrator struct {
	registry *metric.Registry
	scripts  *script.Runner
	agent    agent.Client // nil unless live-data mode
	logger   *zap.SugaredLogger
	cfg      Config
	eval     *Evaluator
	sem      chan struct{} // bounds concurrent metric evaluations run-wide
}

func New(reg *metric.Registry, scripts *script.Runner, agentClient agent.Client, logger *zap.SugaredLogger, cfg Config) (*Orchestrator, error) {
	if reg == nil {
		return nil, errors.New("runner: nil metric registry")
	}
	if scripts == nil {
		return nil, errors.New("runner: nil script runner")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	return &Orchestrator{
		registry: reg,
		scripts:  scripts,
		agent:    agentClient,
		logger:   logger,
		cfg:      cfg,
		eval:     &Evaluator{Registry: reg},
		sem:      make(chan struct{}, cfg.Threads),
	}, nil
}

// Run evaluates every group and returns the completed result collection
// plus per-group lifecycle status. A group's failure never aborts its
// siblings; the returned error is reserved for context cancellation.
func (o *Orchestrator) Run(ctx context.Context, groups []dataset.Group) (*result.Collection, []GroupStatus, error) {
	if o == nil {
		return nil, nil, errors.New("runner: nil orchestrator")
	}
	if ctx == nil {
		return nil, nil, errors.New("runner: nil context")
	}

	col := result.NewCollection()
	statuses := make([]GroupStatus, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Threads)

	for i := range groups {
		grp := &groups[i]
		idx := i
		g.Go(func() error {
			gcol := result.NewCollection()
			state := o.runGroup(gctx, grp, gcol)
			rs := gcol.All()
			col.Append(rs...)
			statuses[idx] = GroupStatus{
				GroupID: grp.ID,
				State:   state,
				Results: len(rs),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return col, statuses, err
	}
	return col, statuses, ctx.Err()
}

func (o *Orchestrator) runGroup(ctx context.Context, g *dataset.Group, col *result.Collection) GroupState {
	log := o.logger.With("group", g.ID)
	log.Infow("evaluating conversation group", "turns", len(g.Turns))

	if strings.TrimSpace(g.SetupScript) != "" {
		if !o.runLifecycleScript(ctx, g.SetupScript, log, "setup") {
			log.Errorw("setup failed, recording error sweep")
			o.sweepError(g, col, "setup failed")
			o.runCleanup(ctx, g, log)
			return StateSetupFailed
		}
	}

	o.runTurns(ctx, g, col)
	o.runConversation(ctx, g, col)
	o.runCleanup(ctx, g, log)

	log.Debugw("conversation group done")
	return StateDone
}

// runTurns evaluates turn-level metrics. Turns run sequentially when the
// effective skip-on-failure flag is set (each turn depends on the prior
// turn's status) or when an agent threads conversation state; otherwise
// they are dispatched concurrently. The run-wide evaluation budget is
// enforced by the orchestrator's semaphore, not per group, so nested
// dispatch never multiplies the configured thread count.
func (o *Orchestrator) runTurns(ctx context.Context, g *dataset.Group, col *result.Collection) {
	skip := o.skipOnFailure(g)

	if !skip && o.agent == nil {
		var eg errgroup.Group
		for i := range g.Turns {
			turn := &g.Turns[i]
			eg.Go(func() error {
				col.Append(o.evaluateTurn(ctx, g, turn)...)
				return nil
			})
		}
		_ = eg.Wait()
		return
	}

	conversationID := ""
	failed := false
	for i := range g.Turns {
		turn := &g.Turns[i]

		if failed && skip {
			col.Append(o.skipTurn(g, turn)...)
			continue
		}

		if o.agent != nil {
			conversationID = o.amendTurn(ctx, g, turn, conversationID)
		}

		rs := o.evaluateTurn(ctx, g, turn)
		col.Append(rs...)
		for _, r := range rs {
			if r.Status == result.StatusFail || r.Status == result.StatusError {
				failed = true
				break
			}
		}
	}
}

// amendTurn queries the live agent for this turn's response, threading the
// conversation identifier across the group. On error the turn is left
// without a response; metrics then surface the missing input.
func (o *Orchestrator) amendTurn(ctx context.Context, g *dataset.Group, turn *dataset.Turn, conversationID string) string {
	reply, err := o.agent.Query(ctx, turn.Query, conversationID)
	if err != nil {
		o.logger.Errorw("agent query failed", "group", g.ID, "turn", turn.ID, "error", err)
		return conversationID
	}
	turn.Response = reply.Response
	if len(reply.ToolCalls) > 0 {
		turn.ToolCalls = reply.ToolCalls
	}
	if reply.ConversationID != "" {
		return reply.ConversationID
	}
	return conversationID
}

func (o *Orchestrator) evaluateTurn(ctx context.Context, g *dataset.Group, turn *dataset.Turn) []result.Result {
	resolved := o.resolveTurn(g, turn)
	unit := &dataset.Unit{GroupID: g.ID, Turn: turn}

	out := make([]result.Result, 0, len(resolved))
	for _, r := range resolved {
		out = append(out, o.evaluate(ctx, unit, r))
	}
	return out
}

func (o *Orchestrator) runConversation(ctx context.Context, g *dataset.Group, col *result.Collection) {
	resolved := o.resolveConversation(g)
	if len(resolved) == 0 {
		return
	}
	unit := &dataset.Unit{GroupID: g.ID, Turns: g.Turns}
	for _, r := range resolved {
		col.Append(o.evaluate(ctx, unit, r))
	}
}

// evaluate runs one scoring call under the run-wide thread budget. At
// most cfg.Threads evaluations are in flight at any moment, no matter
// how many groups or turns are dispatched above.
func (o *Orchestrator) evaluate(ctx context.Context, unit *dataset.Unit, r resolve.Resolved) result.Result {
	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return result.Result{
			GroupID:   unit.GroupID,
			UnitID:    unit.UnitID(),
			Metric:    metricName(r),
			Status:    result.StatusError,
			Threshold: r.Threshold,
			Reason:    ctx.Err().Error(),
		}
	}
	defer func() { <-o.sem }()
	return o.eval.Evaluate(ctx, unit, r)
}

// sweepError records an ERROR placeholder for every metric that would have
// been evaluated, so setup failure still yields a complete result set.
func (o *Orchestrator) sweepError(g *dataset.Group, col *result.Collection, reason string) {
	for i := range g.Turns {
		turn := &g.Turns[i]
		for _, r := range o.resolveTurn(g, turn) {
			col.Append(result.Result{
				GroupID:   g.ID,
				UnitID:    turn.ID,
				Metric:    metricName(r),
				Status:    result.StatusError,
				Threshold: r.Threshold,
				Reason:    reason,
			})
		}
	}
	for _, r := range o.resolveConversation(g) {
		col.Append(result.Result{
			GroupID:   g.ID,
			UnitID:    "conversation",
			Metric:    metricName(r),
			Status:    result.StatusError,
			Threshold: r.Threshold,
			Reason:    reason,
		})
	}
}

// skipTurn records SKIPPED placeholders without making any external call.
func (o *Orchestrator) skipTurn(g *dataset.Group, turn *dataset.Turn) []result.Result {
	resolved := o.resolveTurn(g, turn)
	out := make([]result.Result, 0, len(resolved))
	for _, r := range resolved {
		out = append(out, result.Result{
			GroupID:   g.ID,
			UnitID:    turn.ID,
			Metric:    metricName(r),
			Status:    result.StatusSkipped,
			Threshold: r.Threshold,
			Reason:    "previous turn failed",
		})
	}
	return out
}

func (o *Orchestrator) resolveTurn(g *dataset.Group, turn *dataset.Turn) []resolve.Resolved {
	return resolve.Metrics(o.registry, resolve.Request{
		Scope:            metric.ScopeTurn,
		SystemThresholds: o.cfg.TurnThresholds,
		GroupOverride:    g.TurnMetrics,
		GroupThresholds:  g.TurnThresholds,
		UnitOverride:     turn.Metrics,
		UnitThresholds:   turn.Thresholds,
	})
}

func (o *Orchestrator) resolveConversation(g *dataset.Group) []resolve.Resolved {
	return resolve.Metrics(o.registry, resolve.Request{
		Scope:            metric.ScopeConversation,
		SystemThresholds: o.cfg.ConversationThresholds,
		UnitOverride:     g.ConversationMetrics,
		UnitThresholds:   g.ConversationThresholds,
	})
}

func (o *Orchestrator) skipOnFailure(g *dataset.Group) bool {
	if g.SkipOnFailure != nil {
		return *g.SkipOnFailure
	}
	return o.cfg.SkipOnFailure
}

// runLifecycleScript reports whether the script succeeded. Execution
// failures are treated like non-zero exits for setup purposes.
func (o *Orchestrator) runLifecycleScript(ctx context.Context, path string, log *zap.SugaredLogger, phase string) bool {
	out, err := o.scripts.Run(ctx, path)
	if err != nil {
		log.Errorw(phase+" script could not run", "script", path, "error", err)
		return false
	}
	if out.ExitCode != 0 {
		log.Warnw(phase+" script exited non-zero", "script", path, "exit_code", out.ExitCode, "stderr", out.Stderr)
		return false
	}
	return true
}

// runCleanup always runs when a cleanup script exists; failure is logged
// and never changes any evaluation status.
func (o *Orchestrator) runCleanup(ctx context.Context, g *dataset.Group, log *zap.SugaredLogger) {
	if strings.TrimSpace(g.CleanupScript) == "" {
		return
	}
	if !o.runLifecycleScript(ctx, g.CleanupScript, log, "cleanup") {
		log.Warnw("cleanup failed; evaluation results unaffected")
	}
}
