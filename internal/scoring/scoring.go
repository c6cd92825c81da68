// Package scoring implements the scoring entrypoints behind the metric
// registry: judge-LLM metrics, deterministic matchers, and script
// verification. Each scorer receives a read-only unit view and returns a
// score with a reason; it never mutates the unit.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stellarlinkco/convo-eval/internal/llm"
	"github.com/stellarlinkco/convo-eval/internal/metric"
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type judgeOutput struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// askJudge sends a prompt expecting {"score": ..., "reasoning": ...} JSON.
func askJudge(ctx context.Context, provider llm.Provider, prompt string) (*metric.Score, error) {
	if provider == nil {
		return nil, errors.New("scoring: nil judge provider")
	}

	resp, err := provider.Complete(ctx, &llm.Request{
		Prompt:    prompt,
		MaxTokens: 512,
	})
	if err != nil {
		return nil, fmt.Errorf("scoring: judge: %w", err)
	}
	if resp == nil {
		return nil, errors.New("scoring: nil judge response")
	}

	var out judgeOutput
	if err := llm.ParseJSON(resp.Text, &out); err != nil {
		return nil, fmt.Errorf("scoring: invalid judge output: %w", err)
	}

	reason := strings.TrimSpace(out.Reasoning)
	if reason == "" {
		reason = "no reasoning provided"
	}
	return &metric.Score{Value: clamp01(out.Score), Reason: reason}, nil
}

func joinContexts(contexts []string) string {
	var sb strings.Builder
	for i, c := range contexts {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(c)
	}
	return sb.String()
}
