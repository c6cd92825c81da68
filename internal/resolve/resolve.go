// Package resolve computes the effective metric set and thresholds for a
// turn or conversation from layered overrides.
package resolve

import (
	"fmt"

	"github.com/stellarlinkco/convo-eval/internal/dataset"
	"github.com/stellarlinkco/convo-eval/internal/metric"
)

// Resolved is one entry of the effective metric set. Err is set when the
// identifier cannot be evaluated (unknown, wrong scope, unparseable); the
// evaluator records it as an ERROR result instead of failing the unit.
type Resolved struct {
	ID        metric.ID
	Raw       string
	Threshold float64
	Err       error
}

// Request carries the override layers for one unit. Later layers fully
// replace earlier ones; they never merge.
type Request struct {
	Scope            metric.Scope
	SystemThresholds map[string]float64 // system-wide per-metric threshold overrides
	GroupOverride    dataset.Override
	GroupThresholds  map[string]float64
	UnitOverride     dataset.Override
	UnitThresholds   map[string]float64
}

// Metrics resolves the ordered effective metric set for a unit.
//
// Precedence: a set unit override wins outright (empty means evaluate
// nothing), then a set group override, then every default-eligible metric
// registered for the scope. The effective threshold per metric is the unit
// override, else group, else system, else the registry built-in.
func Metrics(reg *metric.Registry, req Request) []Resolved {
	if reg == nil {
		return nil
	}

	switch {
	case !req.UnitOverride.Unset():
		if req.UnitOverride.Empty() {
			return []Resolved{}
		}
		return fromList(reg, req, req.UnitOverride.Metrics())
	case !req.GroupOverride.Unset():
		if req.GroupOverride.Empty() {
			return []Resolved{}
		}
		return fromList(reg, req, req.GroupOverride.Metrics())
	default:
		ids := reg.Defaults(req.Scope)
		out := make([]Resolved, 0, len(ids))
		for _, id := range ids {
			out = append(out, resolved(reg, req, id, id.String()))
		}
		return out
	}
}

func fromList(reg *metric.Registry, req Request, raw []string) []Resolved {
	out := make([]Resolved, 0, len(raw))
	for _, s := range raw {
		id, err := metric.ParseID(s)
		if err != nil {
			out = append(out, Resolved{Raw: s, Err: err})
			continue
		}
		out = append(out, resolved(reg, req, id, s))
	}
	return out
}

func resolved(reg *metric.Registry, req Request, id metric.ID, raw string) Resolved {
	spec, ok := reg.Get(id)
	if !ok {
		return Resolved{ID: id, Raw: raw, Err: fmt.Errorf("resolve: unknown metric %q", raw)}
	}
	if spec.Scope != req.Scope {
		return Resolved{ID: id, Raw: raw, Err: fmt.Errorf("resolve: metric %q is %s-scope, not %s-scope", raw, spec.Scope, req.Scope)}
	}
	return Resolved{ID: id, Raw: raw, Threshold: threshold(spec, req, raw)}
}

func threshold(spec *metric.Spec, req Request, key string) float64 {
	if v, ok := req.UnitThresholds[key]; ok {
		return v
	}
	if v, ok := req.GroupThresholds[key]; ok {
		return v
	}
	if v, ok := req.SystemThresholds[key]; ok {
		return v
	}
	return spec.Threshold
}
