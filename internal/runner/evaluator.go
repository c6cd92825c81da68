package runner

import (
	"context"
	"time"

	"github.com/stellarlinkco/convo-eval/internal/dataset"
	"github.com/stellarlinkco/convo-eval/internal/metric"
	"github.com/stellarlinkco/convo-eval/internal/resolve"
	"github.com/stellarlinkco/convo-eval/internal/result"
)

// Evaluator runs one resolved metric against one unit.
type Evaluator struct {
	Registry *metric.Registry
}

// Evaluate produces exactly one result for the (unit, metric) pair. All
// failure modes are folded into the result status; it never returns an
// error and never mutates the unit.
func (e *Evaluator) Evaluate(ctx context.Context, u *dataset.Unit, r resolve.Resolved) result.Result {
	out := result.Result{
		GroupID:   u.GroupID,
		UnitID:    u.UnitID(),
		Metric:    metricName(r),
		Threshold: r.Threshold,
	}

	if r.Err != nil {
		out.Status = result.StatusError
		out.Reason = r.Err.Error()
		return out
	}

	spec, ok := e.Registry.Get(r.ID)
	if !ok {
		out.Status = result.StatusError
		out.Reason = "metric not registered: " + r.ID.String()
		return out
	}

	if spec.Requires != nil {
		if err := spec.Requires(u); err != nil {
			out.Status = result.StatusError
			out.Reason = err.Error()
			return out
		}
	}

	start := time.Now()
	score, err := spec.Score(ctx, u)
	out.Duration = time.Since(start)

	if err != nil {
		out.Status = result.StatusError
		out.Reason = err.Error()
		return out
	}
	if score == nil {
		out.Status = result.StatusError
		out.Reason = "scorer returned no score"
		return out
	}

	out.Score = result.Float(score.Value)
	out.Reason = score.Reason
	if passed(spec, score.Value, r.Threshold) {
		out.Status = result.StatusPass
	} else {
		out.Status = result.StatusFail
	}
	return out
}

// passed applies the threshold: binary metrics require an exact match,
// continuous metrics meet-or-exceed.
func passed(spec *metric.Spec, score, threshold float64) bool {
	if spec.Binary {
		return score == threshold
	}
	return score >= threshold
}

func metricName(r resolve.Resolved) string {
	if r.Raw != "" {
		return r.Raw
	}
	return r.ID.String()
}
