package compare

import (
	"math"
	"sort"

	"github.com/stellarlinkco/convo-eval/internal/summary"
)

// Weights configures the composite ranking score. Pass rate dominates and
// errors are penalized through the non-error share.
type Weights struct {
	PassRate     float64
	MeanScore    float64
	ErrorPenalty float64
}

// DefaultWeights is the documented default composite weighting.
var DefaultWeights = Weights{PassRate: 0.5, MeanScore: 0.3, ErrorPenalty: 0.2}

// DefaultMinSamples is the minimum per-run sample count below which the
// confidence interval is omitted.
const DefaultMinSamples = 5

// Interval is a normal-approximation confidence interval on a mean score.
type Interval struct {
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
	Confidence float64 `json:"confidence"`
}

// RankEntry is one run's position in a composite ranking.
type RankEntry struct {
	RunID            string    `json:"run_id"`
	Provider         string    `json:"provider,omitempty"`
	Model            string    `json:"model,omitempty"`
	Composite        float64   `json:"composite_score"`
	PassRate         float64   `json:"pass_rate"`
	MeanScore        float64   `json:"mean_score"`
	ErrorRate        float64   `json:"error_rate"`
	CI               *Interval `json:"confidence_interval,omitempty"`
	InsufficientData bool      `json:"insufficient_data,omitempty"`
}

// Composite combines pass rate, mean score, and the non-error share into a
// single ranking number in [0, 1].
func (w Weights) Composite(s *summary.Summary) float64 {
	total := w.PassRate + w.MeanScore + w.ErrorPenalty
	if total <= 0 {
		return 0
	}
	raw := w.PassRate*s.PassRate + w.MeanScore*s.MeanScore + w.ErrorPenalty*(1-s.ErrorRate)
	return raw / total
}

// Rank orders runs by composite score descending, breaking ties by pass
// rate descending then error rate ascending. Equal-ranked runs keep their
// input order (stable sort). minSamples <= 0 uses DefaultMinSamples.
func Rank(summaries []*summary.Summary, w Weights, minSamples int) []RankEntry {
	if w == (Weights{}) {
		w = DefaultWeights
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}

	entries := make([]RankEntry, 0, len(summaries))
	for _, s := range summaries {
		if s == nil {
			continue
		}
		e := RankEntry{
			RunID:     s.RunID,
			Provider:  s.Provider,
			Model:     s.Model,
			Composite: w.Composite(s),
			PassRate:  s.PassRate,
			MeanScore: s.MeanScore,
			ErrorRate: s.ErrorRate,
		}

		scores := s.Scores()
		if len(scores) < minSamples {
			e.InsufficientData = true
		} else {
			e.CI = confidenceInterval(scores, 0.95)
		}
		entries = append(entries, e)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Composite != b.Composite {
			return a.Composite > b.Composite
		}
		if a.PassRate != b.PassRate {
			return a.PassRate > b.PassRate
		}
		return a.ErrorRate < b.ErrorRate
	})
	return entries
}

// confidenceInterval is the normal approximation mean ± z * s/sqrt(n).
func confidenceInterval(scores []float64, confidence float64) *Interval {
	n := float64(len(scores))
	if n == 0 {
		return nil
	}
	m := mean(scores)
	sd := math.Sqrt(variance(scores, m))

	// z for the two-sided confidence level.
	z := normalQuantile(1 - (1-confidence)/2)
	half := z * sd / math.Sqrt(n)
	return &Interval{Low: m - half, High: m + half, Confidence: confidence}
}

// normalQuantile inverts the standard normal CDF by bisection; precision is
// ample for interval construction.
func normalQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}
	lo, hi := -10.0, 10.0
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		if normalCDF(mid) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}
