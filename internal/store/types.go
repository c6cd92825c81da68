package store

import (
	"context"
	"time"

	"github.com/stellarlinkco/convo-eval/internal/summary"
)

// RunWriter defines persistence for completed run summaries.
type RunWriter interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
}

// RunReader defines read access to stored runs.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)
	// ModelHistory returns the most recent runs of one provider/model pair,
	// newest first.
	ModelHistory(ctx context.Context, provider, model string, limit int) ([]*RunRecord, error)
}

// Store defines persistence for run summaries.
type Store interface {
	RunWriter
	RunReader
	Close() error
}

// RunRecord stores one run's summary together with its identity.
type RunRecord struct {
	ID         string           `json:"id"`
	Provider   string           `json:"provider,omitempty"`
	Model      string           `json:"model,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
	Summary    *summary.Summary `json:"summary"`
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Provider string
	Model    string
	Limit    int
}
