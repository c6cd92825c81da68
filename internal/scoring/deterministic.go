package scoring

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/stellarlinkco/convo-eval/internal/dataset"
	"github.com/stellarlinkco/convo-eval/internal/metric"
	"github.com/stellarlinkco/convo-eval/internal/script"
)

// Keywords scores the fraction of expected keywords present in the response
// (case-insensitive substring match).
func Keywords() metric.Scorer {
	return func(_ context.Context, u *dataset.Unit) (*metric.Score, error) {
		expected := u.Turn.ExpectedKeywords
		response := strings.ToLower(u.Turn.Response)

		var missing []string
		matched := 0
		for _, kw := range expected {
			if strings.Contains(response, strings.ToLower(kw)) {
				matched++
			} else {
				missing = append(missing, kw)
			}
		}

		score := float64(matched) / float64(len(expected))
		reason := fmt.Sprintf("%d/%d keywords present", matched, len(expected))
		if len(missing) > 0 {
			reason += ": missing " + strings.Join(missing, ", ")
		}
		return &metric.Score{Value: score, Reason: reason}, nil
	}
}

// ToolCalls compares the turn's observed tool calls to the expected
// sequence: same names in order, with each expected argument matching
// literally or, for "/.../" values, as a regex. Binary outcome.
func ToolCalls() metric.Scorer {
	return func(_ context.Context, u *dataset.Unit) (*metric.Score, error) {
		expected := u.Turn.ExpectedToolCalls
		got := u.Turn.ToolCalls

		if len(got) != len(expected) {
			return &metric.Score{
				Value:  0,
				Reason: fmt.Sprintf("expected %d tool calls, got %d", len(expected), len(got)),
			}, nil
		}

		for i, exp := range expected {
			if got[i].Name != exp.Name {
				return &metric.Score{
					Value:  0,
					Reason: fmt.Sprintf("call %d: expected tool %q, got %q", i, exp.Name, got[i].Name),
				}, nil
			}
			if reason := matchArguments(exp.Arguments, got[i].Arguments); reason != "" {
				return &metric.Score{
					Value:  0,
					Reason: fmt.Sprintf("call %d (%s): %s", i, exp.Name, reason),
				}, nil
			}
		}
		return &metric.Score{Value: 1, Reason: "all tool calls matched"}, nil
	}
}

// matchArguments returns an empty string on match, otherwise the first
// mismatch description.
func matchArguments(expected, actual map[string]any) string {
	for k, ev := range expected {
		av, ok := actual[k]
		if !ok {
			return fmt.Sprintf("missing argument %q", k)
		}
		if !matchValue(ev, av) {
			return fmt.Sprintf("argument %q: expected %v, got %v", k, ev, av)
		}
	}
	return ""
}

func matchValue(expected, actual any) bool {
	if expected == nil {
		return actual == nil
	}

	if s, ok := expected.(string); ok {
		if pat, ok := asPattern(s); ok {
			as, ok := actual.(string)
			if !ok {
				return false
			}
			re, err := regexp.Compile(pat)
			if err != nil {
				return false
			}
			return re.MatchString(as)
		}
	}

	if ef, ok := asNumber(expected); ok {
		af, ok := asNumber(actual)
		return ok && ef == af
	}

	switch e := expected.(type) {
	case map[string]any:
		a, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		return matchArguments(e, a) == ""
	case []any:
		a, ok := actual.([]any)
		if !ok || len(e) != len(a) {
			return false
		}
		for i := range e {
			if !matchValue(e[i], a[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(expected, actual)
	}
}

func asPattern(s string) (string, bool) {
	if len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		return s[1 : len(s)-1], true
	}
	return "", false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ScriptVerify runs the turn's verify script; exit 0 scores 1, anything
// else scores 0.
func ScriptVerify(runner *script.Runner) metric.Scorer {
	return func(ctx context.Context, u *dataset.Unit) (*metric.Score, error) {
		out, err := runner.Run(ctx, u.Turn.VerifyScript)
		if err != nil {
			return nil, err
		}
		if out.ExitCode == 0 {
			return &metric.Score{Value: 1, Reason: "verify script succeeded"}, nil
		}
		reason := fmt.Sprintf("verify script exited %d", out.ExitCode)
		if s := strings.TrimSpace(out.Stderr); s != "" {
			reason += ": " + s
		}
		return &metric.Score{Value: 0, Reason: reason}, nil
	}
}
