package scoring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stellarlinkco/convo-eval/internal/config"
	"github.com/stellarlinkco/convo-eval/internal/dataset"
	"github.com/stellarlinkco/convo-eval/internal/llm"
	"github.com/stellarlinkco/convo-eval/internal/metric"
	"github.com/stellarlinkco/convo-eval/internal/script"
)

// BuildRegistry registers the built-in metric surface against a judge
// provider and script runner.
func BuildRegistry(judge llm.Provider, scripts *script.Runner) *metric.Registry {
	reg := metric.NewRegistry()

	reg.Register(&metric.Spec{
		ID:        metric.ID{Framework: "ragas", Name: "faithfulness"},
		Scope:     metric.ScopeTurn,
		Default:   true,
		Threshold: 0.8,
		Requires:  requireFields(needResponse, needContexts),
		Score:     Faithfulness(judge),
	})
	reg.Register(&metric.Spec{
		ID:        metric.ID{Framework: "ragas", Name: "response_relevancy"},
		Scope:     metric.ScopeTurn,
		Default:   true,
		Threshold: 0.7,
		Requires:  requireFields(needQuery, needResponse),
		Score:     ResponseRelevancy(judge),
	})
	reg.Register(&metric.Spec{
		ID:        metric.ID{Framework: "ragas", Name: "context_precision"},
		Scope:     metric.ScopeTurn,
		Threshold: 0.7,
		Requires:  requireFields(needQuery, needContexts),
		Score:     ContextPrecision(judge),
	})
	reg.Register(&metric.Spec{
		ID:        metric.ID{Framework: "custom", Name: "answer_correctness"},
		Scope:     metric.ScopeTurn,
		Threshold: 1,
		Binary:    true,
		Requires:  requireFields(needQuery, needResponse, needExpectedResponse),
		Score:     AnswerCorrectness(judge),
	})
	reg.Register(&metric.Spec{
		ID:        metric.ID{Framework: "custom", Name: "keywords"},
		Scope:     metric.ScopeTurn,
		Threshold: 1,
		Requires:  requireFields(needResponse, needExpectedKeywords),
		Score:     Keywords(),
	})
	reg.Register(&metric.Spec{
		ID:        metric.ID{Framework: "custom", Name: "tool_calls"},
		Scope:     metric.ScopeTurn,
		Threshold: 1,
		Binary:    true,
		Requires:  requireFields(needExpectedToolCalls),
		Score:     ToolCalls(),
	})
	reg.Register(&metric.Spec{
		ID:        metric.ID{Framework: "script", Name: "verify"},
		Scope:     metric.ScopeTurn,
		Threshold: 1,
		Binary:    true,
		Requires:  requireFields(needVerifyScript),
		Score:     ScriptVerify(scripts),
	})

	reg.Register(&metric.Spec{
		ID:        metric.ID{Framework: "deepeval", Name: "conversation_completeness"},
		Scope:     metric.ScopeConversation,
		Default:   true,
		Threshold: 0.7,
		Requires:  requireHistory,
		Score:     ConversationCompleteness(judge),
	})
	reg.Register(&metric.Spec{
		ID:        metric.ID{Framework: "deepeval", Name: "knowledge_retention"},
		Scope:     metric.ScopeConversation,
		Threshold: 0.7,
		Requires:  requireHistory,
		Score:     KnowledgeRetention(judge),
	})

	return reg
}

// ApplySettings overrides registry default-eligibility and thresholds from
// the system configuration. Unknown identifiers are reported rather than
// ignored so typos fail fast.
func ApplySettings(reg *metric.Registry, scope metric.Scope, settings map[string]config.MetricSetting) error {
	for raw, s := range settings {
		id, err := metric.ParseID(raw)
		if err != nil {
			return err
		}
		spec, ok := reg.Get(id)
		if !ok {
			return fmt.Errorf("scoring: config references unknown metric %q", raw)
		}
		if spec.Scope != scope {
			return fmt.Errorf("scoring: config lists %q under %s metrics but it is %s-scope", raw, scope, spec.Scope)
		}
		spec.Default = s.Default
		if s.Threshold != nil {
			spec.Threshold = *s.Threshold
		}
	}
	return nil
}

type fieldCheck struct {
	name  string
	check func(t *dataset.Turn) bool
}

var (
	needQuery             = fieldCheck{"query", func(t *dataset.Turn) bool { return strings.TrimSpace(t.Query) != "" }}
	needResponse          = fieldCheck{"response", func(t *dataset.Turn) bool { return strings.TrimSpace(t.Response) != "" }}
	needContexts          = fieldCheck{"contexts", func(t *dataset.Turn) bool { return len(t.Contexts) > 0 }}
	needExpectedResponse  = fieldCheck{"expected_response", func(t *dataset.Turn) bool { return strings.TrimSpace(t.ExpectedResponse) != "" }}
	needExpectedKeywords  = fieldCheck{"expected_keywords", func(t *dataset.Turn) bool { return len(t.ExpectedKeywords) > 0 }}
	needExpectedToolCalls = fieldCheck{"expected_tool_calls", func(t *dataset.Turn) bool { return len(t.ExpectedToolCalls) > 0 }}
	needVerifyScript      = fieldCheck{"verify_script", func(t *dataset.Turn) bool { return strings.TrimSpace(t.VerifyScript) != "" }}
)

func requireFields(checks ...fieldCheck) func(u *dataset.Unit) error {
	return func(u *dataset.Unit) error {
		if u == nil || u.Turn == nil {
			return errors.New("missing turn data")
		}
		var missing []string
		for _, c := range checks {
			if !c.check(u.Turn) {
				missing = append(missing, c.name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
		}
		return nil
	}
}

func requireHistory(u *dataset.Unit) error {
	if u == nil || len(u.Turns) == 0 {
		return errors.New("missing turn history")
	}
	for i := range u.Turns {
		if strings.TrimSpace(u.Turns[i].Response) == "" {
			return fmt.Errorf("turn %s has no response", u.Turns[i].ID)
		}
	}
	return nil
}
