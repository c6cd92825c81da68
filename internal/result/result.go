// Package result holds immutable evaluation outcomes and the append-only
// collection they accumulate in during a run.
package result

import (
	"sync"
	"time"
)

// Status classifies one (unit, metric) evaluation.
type Status string

const (
	StatusPass    Status = "PASS"
	StatusFail    Status = "FAIL"
	StatusError   Status = "ERROR"
	StatusSkipped Status = "SKIPPED"
)

// Result is created exactly once per resolved (unit, metric) pair and never
// mutated afterwards. Score is nil for ERROR and SKIPPED.
type Result struct {
	GroupID   string        `json:"conversation_group_id"`
	UnitID    string        `json:"unit_id"`
	Metric    string        `json:"metric_identifier"`
	Status    Status        `json:"status"`
	Score     *float64      `json:"score,omitempty"`
	Threshold float64       `json:"threshold"`
	Reason    string        `json:"reason,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Collection is a concurrency-safe, append-only result sequence. Only the
// orchestrator writes to it.
type Collection struct {
	mu      sync.Mutex
	results []Result
}

func NewCollection() *Collection {
	return &Collection{}
}

// Append adds results in order. Safe for concurrent use.
func (c *Collection) Append(rs ...Result) {
	if c == nil || len(rs) == 0 {
		return
	}
	c.mu.Lock()
	c.results = append(c.results, rs...)
	c.mu.Unlock()
}

// All returns a snapshot copy of every appended result.
func (c *Collection) All() []Result {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.results))
	copy(out, c.results)
	return out
}

// Len returns the number of appended results.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Float returns a pointer to v, for populating Result.Score.
func Float(v float64) *float64 { return &v }
