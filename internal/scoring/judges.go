package scoring

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stellarlinkco/convo-eval/internal/dataset"
	"github.com/stellarlinkco/convo-eval/internal/llm"
	"github.com/stellarlinkco/convo-eval/internal/metric"
)

// Faithfulness checks whether the turn response is grounded in its
// retrieval contexts.
func Faithfulness(provider llm.Provider) metric.Scorer {
	return func(ctx context.Context, u *dataset.Unit) (*metric.Score, error) {
		var prompt bytes.Buffer
		prompt.WriteString("You are an expert RAG evaluator. Determine whether the AI response is strictly grounded in the provided retrieval context.\n\n")
		prompt.WriteString("## Retrieval Context\n")
		prompt.WriteString(joinContexts(u.Turn.Contexts))
		prompt.WriteString("\n\n## AI Response\n")
		prompt.WriteString(u.Turn.Response)
		prompt.WriteString("\n\n## Instructions\n")
		prompt.WriteString("Score faithfulness from 0.0 to 1.0.\n")
		prompt.WriteString("- 0.0: Response is mostly unsupported / hallucinatory\n")
		prompt.WriteString("- 1.0: Every factual claim is supported by the context\n\n")
		prompt.WriteString("Output ONLY valid JSON: {\"score\": <number 0.0-1.0>, \"reasoning\": \"<brief explanation>\"}")
		return askJudge(ctx, provider, prompt.String())
	}
}

// ResponseRelevancy checks whether the response addresses the query.
func ResponseRelevancy(provider llm.Provider) metric.Scorer {
	return func(ctx context.Context, u *dataset.Unit) (*metric.Score, error) {
		var prompt bytes.Buffer
		prompt.WriteString("You are an expert evaluator. Judge how directly the AI response addresses the user question.\n\n")
		prompt.WriteString("## Question\n")
		prompt.WriteString(u.Turn.Query)
		prompt.WriteString("\n\n## AI Response\n")
		prompt.WriteString(u.Turn.Response)
		prompt.WriteString("\n\n## Instructions\n")
		prompt.WriteString("Score relevancy from 0.0 (off-topic) to 1.0 (fully on-topic and complete).\n\n")
		prompt.WriteString("Output ONLY valid JSON: {\"score\": <number 0.0-1.0>, \"reasoning\": \"<brief explanation>\"}")
		return askJudge(ctx, provider, prompt.String())
	}
}

// ContextPrecision checks whether the retrieved contexts were needed to
// answer the query.
func ContextPrecision(provider llm.Provider) metric.Scorer {
	return func(ctx context.Context, u *dataset.Unit) (*metric.Score, error) {
		var prompt bytes.Buffer
		prompt.WriteString("You are an expert RAG evaluator. Judge how much of the retrieved context is actually relevant to answering the question.\n\n")
		prompt.WriteString("## Question\n")
		prompt.WriteString(u.Turn.Query)
		prompt.WriteString("\n\n## Retrieved Context\n")
		prompt.WriteString(joinContexts(u.Turn.Contexts))
		prompt.WriteString("\n\n## Instructions\n")
		prompt.WriteString("Score precision from 0.0 (nothing relevant) to 1.0 (everything relevant).\n\n")
		prompt.WriteString("Output ONLY valid JSON: {\"score\": <number 0.0-1.0>, \"reasoning\": \"<brief explanation>\"}")
		return askJudge(ctx, provider, prompt.String())
	}
}

// AnswerCorrectness is a binary judge: the response either matches the
// expected answer (1) or it does not (0).
func AnswerCorrectness(provider llm.Provider) metric.Scorer {
	return func(ctx context.Context, u *dataset.Unit) (*metric.Score, error) {
		if provider == nil {
			return nil, errors.New("scoring: nil judge provider")
		}

		var prompt bytes.Buffer
		prompt.WriteString("You are an expert answer checker.\n\n")
		prompt.WriteString("## Question\n")
		prompt.WriteString(u.Turn.Query)
		prompt.WriteString("\n\n## Expected Answer\n")
		prompt.WriteString(u.Turn.ExpectedResponse)
		prompt.WriteString("\n\n## Actual Response\n")
		prompt.WriteString(u.Turn.Response)
		prompt.WriteString("\n\n## Instructions\n")
		prompt.WriteString("Answer with a single character: 1 if the actual response conveys the expected answer, 0 otherwise. No other output.")

		resp, err := provider.Complete(ctx, &llm.Request{Prompt: prompt.String(), MaxTokens: 4})
		if err != nil {
			return nil, fmt.Errorf("scoring: judge: %w", err)
		}
		if resp == nil {
			return nil, errors.New("scoring: nil judge response")
		}

		switch strings.TrimSpace(resp.Text) {
		case "1":
			return &metric.Score{Value: 1, Reason: "judge marked response correct"}, nil
		case "0":
			return &metric.Score{Value: 0, Reason: "judge marked response incorrect"}, nil
		default:
			return nil, fmt.Errorf("scoring: judge returned %q, expected 0 or 1", strings.TrimSpace(resp.Text))
		}
	}
}

// ConversationCompleteness judges whether the conversation as a whole
// resolved the user's goals.
func ConversationCompleteness(provider llm.Provider) metric.Scorer {
	return func(ctx context.Context, u *dataset.Unit) (*metric.Score, error) {
		var prompt bytes.Buffer
		prompt.WriteString("You are an expert conversation evaluator. Judge whether the assistant resolved everything the user asked for across the whole conversation.\n\n")
		writeHistory(&prompt, u.Turns)
		prompt.WriteString("\n## Instructions\n")
		prompt.WriteString("Score completeness from 0.0 (goals unaddressed) to 1.0 (every goal resolved).\n\n")
		prompt.WriteString("Output ONLY valid JSON: {\"score\": <number 0.0-1.0>, \"reasoning\": \"<brief explanation>\"}")
		return askJudge(ctx, provider, prompt.String())
	}
}

// KnowledgeRetention judges whether later turns honor facts established in
// earlier turns.
func KnowledgeRetention(provider llm.Provider) metric.Scorer {
	return func(ctx context.Context, u *dataset.Unit) (*metric.Score, error) {
		var prompt bytes.Buffer
		prompt.WriteString("You are an expert conversation evaluator. Judge whether the assistant retains and reuses information the user provided in earlier turns, without asking for it again or contradicting it.\n\n")
		writeHistory(&prompt, u.Turns)
		prompt.WriteString("\n## Instructions\n")
		prompt.WriteString("Score retention from 0.0 (forgets or contradicts) to 1.0 (perfect recall).\n\n")
		prompt.WriteString("Output ONLY valid JSON: {\"score\": <number 0.0-1.0>, \"reasoning\": \"<brief explanation>\"}")
		return askJudge(ctx, provider, prompt.String())
	}
}

func writeHistory(sb *bytes.Buffer, turns []dataset.Turn) {
	sb.WriteString("## Conversation\n")
	for _, t := range turns {
		sb.WriteString("User: ")
		sb.WriteString(t.Query)
		sb.WriteString("\nAssistant: ")
		sb.WriteString(t.Response)
		sb.WriteString("\n")
	}
}
