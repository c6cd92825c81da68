package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stellarlinkco/convo-eval/internal/config"
	"github.com/stellarlinkco/convo-eval/internal/summary"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testRecord(id, provider, model string, finishedAt time.Time, passRate float64) *RunRecord {
	return &RunRecord{
		ID:         id,
		Provider:   provider,
		Model:      model,
		FinishedAt: finishedAt,
		Summary: &summary.Summary{
			RunID:    id,
			Provider: provider,
			Model:    model,
			Total:    10,
			Pass:     int(passRate * 10),
			PassRate: passRate,
			ByMetric: map[string]*summary.MetricStats{
				"ragas:faithfulness": {
					Count:  10,
					Scores: []float64{0.8, 0.9, passRate},
					Mean:   0.85,
				},
			},
		},
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	finished := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rec := testRecord("run-1", "anthropic", "claude-sonnet", finished, 0.8)
	if err := st.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := st.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ID != "run-1" || got.Provider != "anthropic" || got.Model != "claude-sonnet" {
		t.Fatalf("record: got %+v", got)
	}
	if !got.FinishedAt.Equal(finished) {
		t.Fatalf("finished at: got %v want %v", got.FinishedAt, finished)
	}
	if got.Summary == nil || got.Summary.PassRate != 0.8 {
		t.Fatalf("summary: got %+v", got.Summary)
	}

	// The per-metric score vector survives the round trip; comparison
	// depends on it.
	ms := got.Summary.ByMetric["ragas:faithfulness"]
	if ms == nil || len(ms.Scores) != 3 {
		t.Fatalf("metric stats: got %+v", ms)
	}
}

func TestSaveRunValidation(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SaveRun(ctx, nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
	if err := st.SaveRun(ctx, &RunRecord{ID: "x"}); err == nil {
		t.Fatalf("expected error for nil summary")
	}
	if err := st.SaveRun(ctx, &RunRecord{Summary: &summary.Summary{}}); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if err := st.SaveRun(nil, testRecord("x", "p", "m", time.Now(), 1)); err == nil { //nolint:staticcheck
		t.Fatalf("expected error for nil context")
	}

	var nilStore *SQLiteStore
	if err := nilStore.SaveRun(ctx, testRecord("x", "p", "m", time.Now(), 1)); err == nil {
		t.Fatalf("expected error for nil store")
	}
}

func TestSaveRunDuplicateID(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("dup", "p", "m", time.Now().UTC(), 0.5)
	if err := st.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := st.SaveRun(ctx, rec); err == nil {
		t.Fatalf("expected primary key violation on duplicate id")
	}
}

func TestGetRunNotFound(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	_, err := st.GetRun(context.Background(), "nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("error: got %v want sql.ErrNoRows", err)
	}
}

func TestListRunsFilters(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seed := []*RunRecord{
		testRecord("a1", "anthropic", "claude-sonnet", base.Add(1*time.Hour), 0.9),
		testRecord("a2", "anthropic", "claude-haiku", base.Add(2*time.Hour), 0.8),
		testRecord("o1", "openai", "gpt-4o", base.Add(3*time.Hour), 0.7),
	}
	for _, rec := range seed {
		if err := st.SaveRun(ctx, rec); err != nil {
			t.Fatalf("SaveRun(%s): %v", rec.ID, err)
		}
	}

	all, err := st.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all runs: got %d want 3", len(all))
	}
	// Newest first.
	if all[0].ID != "o1" || all[2].ID != "a1" {
		t.Fatalf("order: got %s..%s want o1..a1", all[0].ID, all[2].ID)
	}

	anth, err := st.ListRuns(ctx, RunFilter{Provider: "anthropic"})
	if err != nil {
		t.Fatalf("ListRuns(provider): %v", err)
	}
	if len(anth) != 2 || anth[0].ID != "a2" {
		t.Fatalf("provider filter: got %+v", ids(anth))
	}

	sonnet, err := st.ListRuns(ctx, RunFilter{Provider: "anthropic", Model: "claude-sonnet"})
	if err != nil {
		t.Fatalf("ListRuns(model): %v", err)
	}
	if len(sonnet) != 1 || sonnet[0].ID != "a1" {
		t.Fatalf("model filter: got %+v", ids(sonnet))
	}

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListRuns(limit): %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "o1" {
		t.Fatalf("limit: got %+v", ids(limited))
	}
}

func TestModelHistory(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"h1", "h2", "h3"} {
		rec := testRecord(id, "anthropic", "claude-sonnet", base.Add(time.Duration(i)*time.Hour), 0.5)
		if err := st.SaveRun(ctx, rec); err != nil {
			t.Fatalf("SaveRun(%s): %v", id, err)
		}
	}
	other := testRecord("x1", "openai", "gpt-4o", base, 0.5)
	if err := st.SaveRun(ctx, other); err != nil {
		t.Fatalf("SaveRun(x1): %v", err)
	}

	hist, err := st.ModelHistory(ctx, "anthropic", "claude-sonnet", 2)
	if err != nil {
		t.Fatalf("ModelHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("history: got %d want 2", len(hist))
	}
	if hist[0].ID != "h3" || hist[1].ID != "h2" {
		t.Fatalf("history order: got %+v", ids(hist))
	}
}

func TestNewSQLiteStoreCreatesDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "deep", "runs.db")
	st, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer st.Close()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("store dir not created: %v", err)
	}
}

func TestNewSQLiteStoreEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewSQLiteStore("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	{
		cfg := &config.Config{}
		cfg.Storage.Type = "memory"
		st, err := Open(cfg)
		if err != nil {
			t.Fatalf("Open(memory): %v", err)
		}
		defer st.Close()
		rec := testRecord("m1", "p", "m", time.Now().UTC(), 1)
		if err := st.SaveRun(context.Background(), rec); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	{
		cfg := &config.Config{}
		cfg.Storage.Type = "sqlite"
		cfg.Storage.Path = filepath.Join(t.TempDir(), "runs.db")
		st, err := Open(cfg)
		if err != nil {
			t.Fatalf("Open(sqlite): %v", err)
		}
		defer st.Close()
	}
	{
		cfg := &config.Config{}
		cfg.Storage.Type = "postgres"
		if _, err := Open(cfg); err == nil {
			t.Fatalf("expected error for unsupported type")
		}
	}
	if _, err := Open(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func ids(recs []*RunRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
