package dataset

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Override is the tri-state metric selection for a turn or conversation:
// unset (inherit), empty (evaluate nothing, never inherit), or an explicit
// list of metric identifiers. The zero value is unset; a YAML null is also
// unset, while an empty sequence is the explicit skip.
type Override struct {
	set bool
	ids []string
}

// ExplicitOverride builds a set override from a list of identifiers. An
// empty (or nil) list is the explicit skip.
func ExplicitOverride(ids ...string) Override {
	return Override{set: true, ids: ids}
}

// Unset reports whether no override was given.
func (o Override) Unset() bool { return !o.set }

// Empty reports whether the override is the explicit empty set.
func (o Override) Empty() bool { return o.set && len(o.ids) == 0 }

// Metrics returns the explicit identifier list. Nil when unset or empty.
func (o Override) Metrics() []string {
	if !o.set || len(o.ids) == 0 {
		return nil
	}
	out := make([]string, len(o.ids))
	copy(out, o.ids)
	return out
}

func (o *Override) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!null" {
		*o = Override{}
		return nil
	}
	var ids []string
	if err := value.Decode(&ids); err != nil {
		return fmt.Errorf("dataset: metric override must be a list: %w", err)
	}
	*o = Override{set: true, ids: ids}
	return nil
}

func (o Override) MarshalYAML() (any, error) {
	if !o.set {
		return nil, nil
	}
	if o.ids == nil {
		return []string{}, nil
	}
	return o.ids, nil
}

// ToolCall is one tool invocation, expected or observed. Expected argument
// values may be literals or regex patterns wrapped in slashes ("/.../").
type ToolCall struct {
	Name      string         `yaml:"tool_name" json:"tool_name"`
	Arguments map[string]any `yaml:"arguments,omitempty" json:"arguments,omitempty"`
}

// Turn is one query/response exchange within a conversation group.
type Turn struct {
	ID                string             `yaml:"turn_id"`
	Query             string             `yaml:"query"`
	Response          string             `yaml:"response,omitempty"`
	Contexts          []string           `yaml:"contexts,omitempty"`
	Attachments       []string           `yaml:"attachments,omitempty"`
	ExpectedResponse  string             `yaml:"expected_response,omitempty"`
	ExpectedKeywords  []string           `yaml:"expected_keywords,omitempty"`
	ExpectedToolCalls []ToolCall         `yaml:"expected_tool_calls,omitempty"`
	ToolCalls         []ToolCall         `yaml:"tool_calls,omitempty"`
	VerifyScript      string             `yaml:"verify_script,omitempty"`
	Metrics           Override           `yaml:"turn_metrics,omitempty"`
	Thresholds        map[string]float64 `yaml:"turn_thresholds,omitempty"`
}

// Group is an ordered sequence of turns sharing a setup/cleanup lifecycle
// and conversation-level metrics. TurnMetrics applies to every turn that
// does not carry its own override; ConversationMetrics selects the metrics
// evaluated once over the full turn history.
type Group struct {
	ID                     string             `yaml:"conversation_group_id"`
	Description            string             `yaml:"description,omitempty"`
	SetupScript            string             `yaml:"setup_script,omitempty"`
	CleanupScript          string             `yaml:"cleanup_script,omitempty"`
	TurnMetrics            Override           `yaml:"turn_metrics,omitempty"`
	TurnThresholds         map[string]float64 `yaml:"turn_thresholds,omitempty"`
	ConversationMetrics    Override           `yaml:"conversation_metrics,omitempty"`
	ConversationThresholds map[string]float64 `yaml:"conversation_thresholds,omitempty"`
	Turns                  []Turn             `yaml:"turns"`
	SkipOnFailure          *bool              `yaml:"skip_on_failure,omitempty"`
}

// Unit is the read-only view handed to scorers: either a single turn or the
// full ordered turn history of a group.
type Unit struct {
	GroupID string
	Turn    *Turn  // set for turn-scope evaluation
	Turns   []Turn // set for conversation-scope evaluation
}

// UnitID identifies the unit within its group: the turn ID, or "conversation"
// for conversation-scope units.
func (u *Unit) UnitID() string {
	if u.Turn != nil {
		return u.Turn.ID
	}
	return "conversation"
}
