package dataset

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError marks unrecoverable evaluation-data problems. A run aborts
// before any evaluation starts when loading returns one.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "dataset: " + e.Msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// Load reads and validates a list of conversation groups from a YAML file.
func Load(path string) ([]Group, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read %q: %w", path, err)
	}

	var groups []Group
	if err := yaml.Unmarshal(b, &groups); err != nil {
		return nil, fmt.Errorf("dataset: parse %q: %w", path, err)
	}
	if err := Validate(groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// Validate checks group and turn identifiers and metric override syntax.
// Unknown metric identifiers are left to resolution, which records them as
// per-metric ERROR results rather than aborting the run.
func Validate(groups []Group) error {
	if len(groups) == 0 {
		return configErrorf("no conversation groups")
	}

	seenGroups := make(map[string]struct{}, len(groups))
	for gi := range groups {
		g := &groups[gi]
		id := strings.TrimSpace(g.ID)
		if id == "" {
			return configErrorf("groups[%d]: missing conversation_group_id", gi)
		}
		if _, ok := seenGroups[id]; ok {
			return configErrorf("groups[%d] (%s): duplicate conversation_group_id", gi, id)
		}
		seenGroups[id] = struct{}{}

		if len(g.Turns) == 0 {
			return configErrorf("group %s: no turns", id)
		}
		if err := validateOverride(g.TurnMetrics, "group "+id); err != nil {
			return err
		}
		if err := validateOverride(g.ConversationMetrics, "group "+id); err != nil {
			return err
		}

		seenTurns := make(map[string]struct{}, len(g.Turns))
		for ti := range g.Turns {
			t := &g.Turns[ti]
			tid := strings.TrimSpace(t.ID)
			if tid == "" {
				return configErrorf("group %s: turns[%d]: missing turn_id", id, ti)
			}
			if _, ok := seenTurns[tid]; ok {
				return configErrorf("group %s: turns[%d] (%s): duplicate turn_id", id, ti, tid)
			}
			seenTurns[tid] = struct{}{}

			if strings.TrimSpace(t.Query) == "" {
				return configErrorf("group %s: turn %s: missing query", id, tid)
			}
			if err := validateOverride(t.Metrics, fmt.Sprintf("group %s: turn %s", id, tid)); err != nil {
				return err
			}
			for ci, tc := range t.ExpectedToolCalls {
				if strings.TrimSpace(tc.Name) == "" {
					return configErrorf("group %s: turn %s: expected_tool_calls[%d]: missing tool_name", id, tid, ci)
				}
			}
		}
	}
	return nil
}

func validateOverride(o Override, where string) error {
	for _, m := range o.Metrics() {
		if strings.TrimSpace(m) == "" {
			return configErrorf("%s: empty metric identifier in override", where)
		}
		if !strings.Contains(m, ":") {
			return configErrorf("%s: metric %q missing framework prefix", where, m)
		}
	}
	return nil
}
