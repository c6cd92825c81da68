package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stellarlinkco/convo-eval/internal/config"
	"github.com/stellarlinkco/convo-eval/internal/store"
	"github.com/stellarlinkco/convo-eval/internal/summary"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func seedStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	seed := []struct {
		id       string
		provider string
		model    string
		offset   time.Duration
		passRate float64
		scores   []float64
	}{
		{"run-a", "anthropic", "claude-sonnet", 1 * time.Hour, 0.9, []float64{0.9, 1.0, 0.9, 1.0, 0.9, 1.0}},
		{"run-b", "openai", "gpt-4o", 2 * time.Hour, 0.5, []float64{0.4, 0.6, 0.5, 0.4, 0.6, 0.5}},
	}
	for _, s := range seed {
		rec := &store.RunRecord{
			ID:         s.id,
			Provider:   s.provider,
			Model:      s.model,
			FinishedAt: base.Add(s.offset),
			Summary: &summary.Summary{
				RunID:    s.id,
				Provider: s.provider,
				Model:    s.model,
				Total:    len(s.scores),
				Pass:     int(s.passRate * float64(len(s.scores))),
				PassRate: s.passRate,
				ByMetric: map[string]*summary.MetricStats{
					"ragas:faithfulness": {
						Count:  len(s.scores),
						Pass:   int(s.passRate * float64(len(s.scores))),
						Scores: s.scores,
						Mean:   summary.Mean(s.scores),
					},
				},
			},
		}
		if err := st.SaveRun(context.Background(), rec); err != nil {
			t.Fatalf("SaveRun(%s): %v", s.id, err)
		}
	}
	return st
}

func newTestServer(t *testing.T, st store.Store) *Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.Comparison.Alpha = config.DefaultAlpha
	cfg.Comparison.MinSamples = config.DefaultMinSamples
	srv, err := NewServer(cfg, st, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func doRequest(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestNewServerRequiresAuthConfig(t *testing.T) {
	t.Setenv("CONVO_EVAL_API_KEY", "")
	t.Setenv("CONVO_EVAL_DISABLE_AUTH", "")

	if _, err := NewServer(&config.Config{}, nil, nil); err == nil {
		t.Fatalf("expected error without auth configuration")
	}
}

func TestAPIKeyAuth(t *testing.T) {
	t.Setenv("CONVO_EVAL_API_KEY", "secret")
	t.Setenv("CONVO_EVAL_DISABLE_AUTH", "")

	srv := newTestServer(t, seedStore(t))

	rec := doRequest(srv, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: got %d want 401", rec.Code)
	}

	rec = doRequest(srv, http.MethodGet, "/api/health", "", map[string]string{"X-API-Key": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: got %d want 401", rec.Code)
	}

	rec = doRequest(srv, http.MethodGet, "/api/health", "", map[string]string{"X-API-Key": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid key: got %d want 200", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Setenv("CONVO_EVAL_API_KEY", "")
	t.Setenv("CONVO_EVAL_DISABLE_AUTH", "true")

	srv := newTestServer(t, nil)
	rec := doRequest(srv, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body: got %v", body)
	}
}

func TestListRuns(t *testing.T) {
	t.Setenv("CONVO_EVAL_API_KEY", "")
	t.Setenv("CONVO_EVAL_DISABLE_AUTH", "true")

	srv := newTestServer(t, seedStore(t))

	rec := doRequest(srv, http.MethodGet, "/api/runs", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Runs []*store.RunRecord `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Runs) != 2 {
		t.Fatalf("runs: got %d want 2", len(body.Runs))
	}
	// Newest first.
	if body.Runs[0].ID != "run-b" {
		t.Fatalf("order: got %q first", body.Runs[0].ID)
	}

	rec = doRequest(srv, http.MethodGet, "/api/runs?provider=anthropic", "", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Runs) != 1 || body.Runs[0].ID != "run-a" {
		t.Fatalf("provider filter: got %+v", body.Runs)
	}

	rec = doRequest(srv, http.MethodGet, "/api/runs?limit=bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: got %d want 400", rec.Code)
	}
}

func TestGetRun(t *testing.T) {
	t.Setenv("CONVO_EVAL_API_KEY", "")
	t.Setenv("CONVO_EVAL_DISABLE_AUTH", "true")

	srv := newTestServer(t, seedStore(t))

	rec := doRequest(srv, http.MethodGet, "/api/runs/run-a", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200: %s", rec.Code, rec.Body.String())
	}
	var run store.RunRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.ID != "run-a" || run.Summary == nil || run.Summary.PassRate != 0.9 {
		t.Fatalf("run: got %+v", run)
	}

	rec = doRequest(srv, http.MethodGet, "/api/runs/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing run: got %d want 404", rec.Code)
	}
}

func TestModelHistory(t *testing.T) {
	t.Setenv("CONVO_EVAL_API_KEY", "")
	t.Setenv("CONVO_EVAL_DISABLE_AUTH", "true")

	srv := newTestServer(t, seedStore(t))

	rec := doRequest(srv, http.MethodGet, "/api/history/anthropic/claude-sonnet", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Runs []*store.RunRecord `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Runs) != 1 || body.Runs[0].ID != "run-a" {
		t.Fatalf("history: got %+v", body.Runs)
	}

	rec = doRequest(srv, http.MethodGet, "/api/history/openai/unknown-model", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Runs == nil || len(body.Runs) != 0 {
		t.Fatalf("unknown model: got %+v, want empty list", body.Runs)
	}
}

func TestCompareRuns(t *testing.T) {
	t.Setenv("CONVO_EVAL_API_KEY", "")
	t.Setenv("CONVO_EVAL_DISABLE_AUTH", "true")

	srv := newTestServer(t, seedStore(t))

	rec := doRequest(srv, http.MethodPost, "/api/compare", `{"run_a":"run-a","run_b":"run-b"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200: %s", rec.Code, rec.Body.String())
	}
	var report struct {
		Alpha   float64 `json:"alpha"`
		RunA    string  `json:"run_a"`
		RunB    string  `json:"run_b"`
		Metrics []struct {
			Metric string `json:"metric"`
			TTest  *struct {
				Significant bool `json:"significant"`
			} `json:"t_test"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Alpha != config.DefaultAlpha || report.RunA != "run-a" || report.RunB != "run-b" {
		t.Fatalf("report header: got %+v", report)
	}
	if len(report.Metrics) != 1 || report.Metrics[0].Metric != "ragas:faithfulness" {
		t.Fatalf("metrics: got %+v", report.Metrics)
	}
	if report.Metrics[0].TTest == nil || !report.Metrics[0].TTest.Significant {
		t.Fatalf("t-test: got %+v, want significant", report.Metrics[0].TTest)
	}

	rec = doRequest(srv, http.MethodPost, "/api/compare", `{"run_a":"run-a"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing run_b: got %d want 400", rec.Code)
	}

	rec = doRequest(srv, http.MethodPost, "/api/compare", `{"run_a":"run-a","run_b":"nope"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run: got %d want 404", rec.Code)
	}

	rec = doRequest(srv, http.MethodPost, "/api/compare", `{bad json`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad body: got %d want 400", rec.Code)
	}
}

func TestRank(t *testing.T) {
	t.Setenv("CONVO_EVAL_API_KEY", "")
	t.Setenv("CONVO_EVAL_DISABLE_AUTH", "true")

	srv := newTestServer(t, seedStore(t))

	rec := doRequest(srv, http.MethodGet, "/api/rank", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want 200: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Ranking []struct {
			RunID     string  `json:"run_id"`
			Composite float64 `json:"composite_score"`
		} `json:"ranking"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Ranking) != 2 {
		t.Fatalf("ranking: got %d entries want 2", len(body.Ranking))
	}
	if body.Ranking[0].RunID != "run-a" {
		t.Fatalf("top rank: got %q want run-a", body.Ranking[0].RunID)
	}
	if body.Ranking[0].Composite <= body.Ranking[1].Composite {
		t.Fatalf("composite order: %v <= %v", body.Ranking[0].Composite, body.Ranking[1].Composite)
	}
}

func TestStorageDisabled(t *testing.T) {
	t.Setenv("CONVO_EVAL_API_KEY", "")
	t.Setenv("CONVO_EVAL_DISABLE_AUTH", "true")

	srv := newTestServer(t, nil)
	for _, path := range []string{"/api/runs", "/api/runs/x", "/api/history/p/m", "/api/rank"} {
		rec := doRequest(srv, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: got %d want 503", path, rec.Code)
		}
	}
}
