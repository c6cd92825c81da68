package summary

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stellarlinkco/convo-eval/internal/result"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	results := []result.Result{
		{GroupID: "g", UnitID: "t1", Metric: "a:x", Status: result.StatusPass, Score: result.Float(0.9)},
		{GroupID: "g", UnitID: "t2", Metric: "a:x", Status: result.StatusFail, Score: result.Float(0.4)},
		{GroupID: "g", UnitID: "t3", Metric: "a:x", Status: result.StatusError},
		{GroupID: "g", UnitID: "t1", Metric: "b:y", Status: result.StatusPass, Score: result.Float(1)},
		{GroupID: "g", UnitID: "t2", Metric: "b:y", Status: result.StatusSkipped},
	}

	s := Build("run-1", "openai", "gpt-4o-mini", results)

	if s.RunID != "run-1" || s.Provider != "openai" || s.Model != "gpt-4o-mini" {
		t.Fatalf("identity: %+v", s)
	}
	if s.GeneratedAt.IsZero() || time.Since(s.GeneratedAt) < 0 {
		t.Fatalf("GeneratedAt: %v", s.GeneratedAt)
	}
	if s.Total != 5 || s.Pass != 2 || s.Fail != 1 || s.Error != 1 || s.Skipped != 1 {
		t.Fatalf("counts: %+v", s)
	}
	if got := s.PassRate; got != 0.4 {
		t.Fatalf("PassRate: got %v want 0.4", got)
	}
	if got := s.ErrorRate; got != 0.2 {
		t.Fatalf("ErrorRate: got %v want 0.2", got)
	}

	ax := s.ByMetric["a:x"]
	if ax == nil || ax.Count != 3 || ax.Pass != 1 || ax.Fail != 1 || ax.Error != 1 {
		t.Fatalf("a:x: %+v", ax)
	}
	if len(ax.Scores) != 2 {
		t.Fatalf("a:x scores: %v (ERROR results carry no score)", ax.Scores)
	}
	if math.Abs(ax.Mean-0.65) > 1e-9 {
		t.Fatalf("a:x mean: got %v want 0.65", ax.Mean)
	}
	if math.Abs(ax.Median-0.65) > 1e-9 {
		t.Fatalf("a:x median: got %v", ax.Median)
	}

	// Overall mean covers every scored result.
	want := (0.9 + 0.4 + 1.0) / 3
	if math.Abs(s.MeanScore-want) > 1e-9 {
		t.Fatalf("MeanScore: got %v want %v", s.MeanScore, want)
	}
}

func TestBuildEmpty(t *testing.T) {
	t.Parallel()

	s := Build("run-1", "", "", nil)
	if s.Total != 0 || s.PassRate != 0 || s.MeanScore != 0 {
		t.Fatalf("empty build: %+v", s)
	}
}

func TestScoresDeterministic(t *testing.T) {
	t.Parallel()

	s := Build("r", "", "", []result.Result{
		{Metric: "b:y", Status: result.StatusPass, Score: result.Float(0.2)},
		{Metric: "a:x", Status: result.StatusPass, Score: result.Float(0.8)},
	})

	got := s.Scores()
	if len(got) != 2 || got[0] != 0.8 || got[1] != 0.2 {
		t.Fatalf("Scores: got %v, want metric-name order", got)
	}
}

func TestWriteLoadRoundTrip(t *testing.T) {
	t.Parallel()

	s := Build("run-42", "anthropic", "claude-sonnet-4-20250514", []result.Result{
		{GroupID: "g", UnitID: "t1", Metric: "a:x", Status: result.StatusPass, Score: result.Float(0.88)},
	})

	path := filepath.Join(t.TempDir(), "summary.json")
	if err := s.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.RunID != "run-42" || loaded.Total != 1 {
		t.Fatalf("loaded: %+v", loaded)
	}
	ms := loaded.ByMetric["a:x"]
	if ms == nil || len(ms.Scores) != 1 || ms.Scores[0] != 0.88 {
		t.Fatalf("loaded scores: %+v", ms)
	}
}

func TestLoadFileErrors(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("LoadFile: expected error")
	}
}

func TestDescriptiveHelpers(t *testing.T) {
	t.Parallel()

	if got := Mean(nil); got != 0 {
		t.Fatalf("Mean(nil): got %v", got)
	}
	if got := Median([]float64{3, 1, 2}); got != 2 {
		t.Fatalf("Median odd: got %v want 2", got)
	}
	if got := Median([]float64{4, 1, 2, 3}); got != 2.5 {
		t.Fatalf("Median even: got %v want 2.5", got)
	}
	if got := StdDev([]float64{1}); got != 0 {
		t.Fatalf("StdDev single: got %v", got)
	}
	// Sample std dev of {2, 4, 4, 4, 5, 5, 7, 9} is ~2.138.
	got := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(got-2.138089935) > 1e-6 {
		t.Fatalf("StdDev: got %v", got)
	}
}
