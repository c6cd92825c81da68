package sched

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stellarlinkco/convo-eval/internal/summary"
)

func TestSanitizeName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "anthropic_claude-sonnet", "anthropic_claude-sonnet"},
		{"slash", "openai/gpt-4o", "openai_gpt-4o"},
		{"backslash", `a\b`, "a_b"},
		{"colon and wildcard", "a:b*c?d", "a_b_c_d"},
		{"quotes", `a"b'c`, "a_b_c"},
		{"spaces collapse", "a   b\t\tc", "a_b_c"},
		{"underscore runs", "a___b", "a_b"},
		{"trims edges", "  _a_  ", "a"},
		{"traversal dots", "../../etc/passwd", "etc_passwd"},
		{"interior traversal", "a/../b", "a_b"},
		{"empty", "", ""},
		{"only unsafe", `///\\\`, ""},
		{"long name bounded", strings.Repeat("x", 100), strings.Repeat("x", MaxNameLength)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeName(tc.in); got != tc.want {
				t.Fatalf("SanitizeName(%q): got %q want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeNameNeverTraverses(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"..", "../x", "a/../b", "..\\x", "./.."} {
		got := SanitizeName(in)
		if strings.Contains(got, "..") || strings.ContainsAny(got, `/\`) {
			t.Fatalf("SanitizeName(%q): got %q, contains path syntax", in, got)
		}
	}
}

func TestSweepRun(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	s := &Sweep{Workers: 2, BaseDir: base}

	var calls int32
	mkTask := func(provider, model string) Task {
		return Task{
			Provider: provider,
			Model:    model,
			Run: func(ctx context.Context, outputDir string) (*summary.Summary, error) {
				atomic.AddInt32(&calls, 1)
				return &summary.Summary{RunID: provider + "/" + model}, nil
			},
		}
	}

	statuses, err := s.Run(context.Background(), []Task{
		mkTask("anthropic", "claude-sonnet"),
		mkTask("openai", "gpt-4o"),
		mkTask("anthropic", "claude-haiku"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("task calls: got %d want 3", got)
	}
	if len(statuses) != 3 {
		t.Fatalf("statuses: got %d want 3", len(statuses))
	}

	// Statuses keep input order regardless of completion order.
	if statuses[1].Provider != "openai" || statuses[1].Model != "gpt-4o" {
		t.Fatalf("status order: got %+v", statuses[1])
	}

	for _, st := range statuses {
		if st.Err != "" {
			t.Fatalf("%s/%s: unexpected error %q", st.Provider, st.Model, st.Err)
		}
		if st.Summary == nil {
			t.Fatalf("%s/%s: nil summary", st.Provider, st.Model)
		}
		info, err := os.Stat(st.OutputDir)
		if err != nil || !info.IsDir() {
			t.Fatalf("%s/%s: output dir %q not created: %v", st.Provider, st.Model, st.OutputDir, err)
		}
		if filepath.Dir(st.OutputDir) != base {
			t.Fatalf("output dir %q not under base %q", st.OutputDir, base)
		}
	}
}

func TestSweepFailureIsolation(t *testing.T) {
	t.Parallel()

	s := &Sweep{Workers: 1, BaseDir: t.TempDir()}

	statuses, err := s.Run(context.Background(), []Task{
		{
			Provider: "a", Model: "m1",
			Run: func(ctx context.Context, outputDir string) (*summary.Summary, error) {
				return nil, errors.New("provider quota exhausted")
			},
		},
		{
			Provider: "a", Model: "m2",
			Run: func(ctx context.Context, outputDir string) (*summary.Summary, error) {
				return &summary.Summary{RunID: "ok"}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if statuses[0].Err != "provider quota exhausted" {
		t.Fatalf("first status err: got %q", statuses[0].Err)
	}
	if statuses[0].Summary != nil {
		t.Fatalf("first status summary: got %+v want nil", statuses[0].Summary)
	}
	if statuses[1].Err != "" || statuses[1].Summary == nil {
		t.Fatalf("second status: got %+v, want success", statuses[1])
	}
}

func TestSweepUnusableName(t *testing.T) {
	t.Parallel()

	s := &Sweep{Workers: 1, BaseDir: t.TempDir()}

	ran := false
	statuses, err := s.Run(context.Background(), []Task{
		{
			Provider: "///", Model: `\\\`,
			Run: func(ctx context.Context, outputDir string) (*summary.Summary, error) {
				ran = true
				return nil, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ran {
		t.Fatalf("task with unusable name was executed")
	}
	if statuses[0].Err == "" {
		t.Fatalf("expected name error in status")
	}
}

func TestSweepValidation(t *testing.T) {
	t.Parallel()

	var nilSweep *Sweep
	if _, err := nilSweep.Run(context.Background(), []Task{{}}); err == nil {
		t.Fatalf("expected error for nil sweep")
	}

	s := &Sweep{Workers: 1, BaseDir: t.TempDir()}
	if _, err := s.Run(context.Background(), nil); err == nil {
		t.Fatalf("expected error for no tasks")
	}
	if _, err := s.Run(nil, []Task{{}}); err == nil { //nolint:staticcheck
		t.Fatalf("expected error for nil context")
	}
}
