package metric

import (
	"context"
	"fmt"
	"strings"

	"github.com/stellarlinkco/convo-eval/internal/dataset"
)

// Scope says whether a metric evaluates a single turn or the full
// conversation history.
type Scope string

const (
	ScopeTurn         Scope = "turn"
	ScopeConversation Scope = "conversation"
)

// ID is a namespaced metric identifier, e.g. (ragas, faithfulness).
// The zero value is invalid.
type ID struct {
	Framework string
	Name      string
}

// ParseID parses "framework:name" into an ID.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	framework, name, ok := strings.Cut(s, ":")
	if !ok {
		return ID{}, fmt.Errorf("metric: identifier %q missing framework prefix", s)
	}
	framework = strings.TrimSpace(framework)
	name = strings.TrimSpace(name)
	if framework == "" || name == "" {
		return ID{}, fmt.Errorf("metric: malformed identifier %q", s)
	}
	return ID{Framework: framework, Name: name}, nil
}

func (id ID) String() string {
	return id.Framework + ":" + id.Name
}

// Score is the outcome of one scoring call.
type Score struct {
	Value  float64
	Reason string
}

// Scorer computes a score for a read-only unit view. Implementations are
// external collaborators (judge LLMs, scripts, pattern matchers).
type Scorer func(ctx context.Context, u *dataset.Unit) (*Score, error)

// Spec describes a registered metric.
type Spec struct {
	ID        ID
	Scope     Scope
	Default   bool    // eligible when no override names metrics explicitly
	Threshold float64 // built-in pass threshold
	Binary    bool    // pass requires exact match with threshold, not >=
	Requires  func(u *dataset.Unit) error
	Score     Scorer
}

// Registry maps metric identifiers to their specs. Registration order is
// preserved so resolution output is deterministic.
type Registry struct {
	specs map[ID]*Spec
	order []ID
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[ID]*Spec)}
}

// Register adds a spec, replacing any previous registration of the same ID.
func (r *Registry) Register(s *Spec) {
	if r == nil {
		panic("metric: register on nil registry")
	}
	if s == nil {
		panic("metric: register nil spec")
	}
	if s.ID.Framework == "" || s.ID.Name == "" {
		panic("metric: register spec with empty identifier")
	}
	if r.specs == nil {
		r.specs = make(map[ID]*Spec)
	}
	if _, exists := r.specs[s.ID]; !exists {
		r.order = append(r.order, s.ID)
	}
	r.specs[s.ID] = s
}

// Get returns the spec for id if registered.
func (r *Registry) Get(id ID) (*Spec, bool) {
	if r == nil || r.specs == nil {
		return nil, false
	}
	s, ok := r.specs[id]
	return s, ok
}

// Defaults returns the default-eligible metric IDs for a scope, in
// registration order.
func (r *Registry) Defaults(scope Scope) []ID {
	if r == nil {
		return nil
	}
	var out []ID
	for _, id := range r.order {
		s := r.specs[id]
		if s.Default && s.Scope == scope {
			out = append(out, id)
		}
	}
	return out
}

// IDs returns every registered identifier in registration order.
func (r *Registry) IDs() []ID {
	if r == nil {
		return nil
	}
	out := make([]ID, len(r.order))
	copy(out, r.order)
	return out
}
