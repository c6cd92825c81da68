package resolve

import (
	"strings"
	"testing"

	"github.com/stellarlinkco/convo-eval/internal/dataset"
	"github.com/stellarlinkco/convo-eval/internal/metric"
)

func testRegistry() *metric.Registry {
	reg := metric.NewRegistry()
	reg.Register(&metric.Spec{
		ID: metric.ID{Framework: "ragas", Name: "faithfulness"}, Scope: metric.ScopeTurn,
		Default: true, Threshold: 0.8,
	})
	reg.Register(&metric.Spec{
		ID: metric.ID{Framework: "ragas", Name: "response_relevancy"}, Scope: metric.ScopeTurn,
		Default: true, Threshold: 0.7,
	})
	reg.Register(&metric.Spec{
		ID: metric.ID{Framework: "custom", Name: "keywords"}, Scope: metric.ScopeTurn,
		Threshold: 1,
	})
	reg.Register(&metric.Spec{
		ID: metric.ID{Framework: "deepeval", Name: "conversation_completeness"}, Scope: metric.ScopeConversation,
		Default: true, Threshold: 0.7,
	})
	return reg
}

func names(rs []Resolved) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Raw)
	}
	return out
}

func TestMetricsDefaults(t *testing.T) {
	t.Parallel()

	got := Metrics(testRegistry(), Request{Scope: metric.ScopeTurn})
	if len(got) != 2 {
		t.Fatalf("resolved: got %d want 2: %v", len(got), names(got))
	}
	if got[0].ID.String() != "ragas:faithfulness" || got[1].ID.String() != "ragas:response_relevancy" {
		t.Fatalf("defaults: got %v", names(got))
	}
	if got[0].Threshold != 0.8 {
		t.Fatalf("threshold: got %v want 0.8", got[0].Threshold)
	}
}

func TestMetricsPrecedence(t *testing.T) {
	t.Parallel()

	reg := testRegistry()

	{
		// Group override replaces defaults.
		got := Metrics(reg, Request{
			Scope:         metric.ScopeTurn,
			GroupOverride: dataset.ExplicitOverride("custom:keywords"),
		})
		if len(got) != 1 || got[0].ID.String() != "custom:keywords" {
			t.Fatalf("group override: got %v", names(got))
		}
	}
	{
		// Unit override wins over group override; no merging.
		got := Metrics(reg, Request{
			Scope:         metric.ScopeTurn,
			GroupOverride: dataset.ExplicitOverride("custom:keywords"),
			UnitOverride:  dataset.ExplicitOverride("ragas:faithfulness"),
		})
		if len(got) != 1 || got[0].ID.String() != "ragas:faithfulness" {
			t.Fatalf("unit override: got %v", names(got))
		}
	}
	{
		// Empty unit override evaluates nothing even with group override set.
		got := Metrics(reg, Request{
			Scope:         metric.ScopeTurn,
			GroupOverride: dataset.ExplicitOverride("custom:keywords"),
			UnitOverride:  dataset.ExplicitOverride(),
		})
		if len(got) != 0 {
			t.Fatalf("empty unit override: got %v", names(got))
		}
	}
	{
		// Empty group override with unset unit override also skips.
		got := Metrics(reg, Request{
			Scope:         metric.ScopeTurn,
			GroupOverride: dataset.ExplicitOverride(),
		})
		if len(got) != 0 {
			t.Fatalf("empty group override: got %v", names(got))
		}
	}
}

func TestMetricsIdempotent(t *testing.T) {
	t.Parallel()

	reg := testRegistry()
	req := Request{
		Scope:          metric.ScopeTurn,
		GroupOverride:  dataset.ExplicitOverride("ragas:faithfulness", "custom:keywords"),
		UnitThresholds: map[string]float64{"custom:keywords": 0.5},
	}

	first := Metrics(reg, req)
	second := Metrics(reg, req)
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Threshold != second[i].Threshold {
			t.Fatalf("entry %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestMetricsErrors(t *testing.T) {
	t.Parallel()

	reg := testRegistry()

	{
		// Unknown metric resolves with Err, never drops silently.
		got := Metrics(reg, Request{
			Scope:        metric.ScopeTurn,
			UnitOverride: dataset.ExplicitOverride("nope:missing"),
		})
		if len(got) != 1 {
			t.Fatalf("resolved: got %d want 1", len(got))
		}
		if got[0].Err == nil || !strings.Contains(got[0].Err.Error(), "unknown metric") {
			t.Fatalf("err: got %v", got[0].Err)
		}
	}
	{
		// Wrong scope.
		got := Metrics(reg, Request{
			Scope:        metric.ScopeTurn,
			UnitOverride: dataset.ExplicitOverride("deepeval:conversation_completeness"),
		})
		if got[0].Err == nil || !strings.Contains(got[0].Err.Error(), "conversation-scope") {
			t.Fatalf("err: got %v", got[0].Err)
		}
	}
	{
		// Unparseable identifier.
		got := Metrics(reg, Request{
			Scope:        metric.ScopeTurn,
			UnitOverride: dataset.ExplicitOverride("faithfulness"),
		})
		if got[0].Err == nil {
			t.Fatalf("expected parse error")
		}
		if got[0].Raw != "faithfulness" {
			t.Fatalf("raw: got %q", got[0].Raw)
		}
	}
}

func TestThresholdChain(t *testing.T) {
	t.Parallel()

	reg := testRegistry()
	base := Request{
		Scope:        metric.ScopeTurn,
		UnitOverride: dataset.ExplicitOverride("ragas:faithfulness"),
	}

	{
		req := base
		req.SystemThresholds = map[string]float64{"ragas:faithfulness": 0.6}
		got := Metrics(reg, req)
		if got[0].Threshold != 0.6 {
			t.Fatalf("system threshold: got %v want 0.6", got[0].Threshold)
		}
	}
	{
		req := base
		req.SystemThresholds = map[string]float64{"ragas:faithfulness": 0.6}
		req.GroupThresholds = map[string]float64{"ragas:faithfulness": 0.65}
		got := Metrics(reg, req)
		if got[0].Threshold != 0.65 {
			t.Fatalf("group threshold: got %v want 0.65", got[0].Threshold)
		}
	}
	{
		req := base
		req.SystemThresholds = map[string]float64{"ragas:faithfulness": 0.6}
		req.GroupThresholds = map[string]float64{"ragas:faithfulness": 0.65}
		req.UnitThresholds = map[string]float64{"ragas:faithfulness": 0.9}
		got := Metrics(reg, req)
		if got[0].Threshold != 0.9 {
			t.Fatalf("unit threshold: got %v want 0.9", got[0].Threshold)
		}
	}
}

func TestMetricsNilRegistry(t *testing.T) {
	t.Parallel()

	if got := Metrics(nil, Request{Scope: metric.ScopeTurn}); got != nil {
		t.Fatalf("nil registry: got %v", got)
	}
}
