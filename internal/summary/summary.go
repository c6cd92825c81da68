// Package summary aggregates a completed run's immutable results into
// descriptive statistics, and round-trips summaries for comparison.
package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/stellarlinkco/convo-eval/internal/result"
)

// MetricStats holds the per-metric breakdown of one run.
type MetricStats struct {
	Count   int `json:"count"`
	Pass    int `json:"pass"`
	Fail    int `json:"fail"`
	Error   int `json:"error"`
	Skipped int `json:"skipped"`

	PassRate  float64 `json:"pass_rate"`
	ErrorRate float64 `json:"error_rate"`
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
	StdDev    float64 `json:"std_dev"`

	// Scores are the individual numeric scores, kept for significance
	// testing across runs.
	Scores []float64 `json:"scores,omitempty"`
}

// Summary is built once, at the end of a run, from the immutable result
// collection.
type Summary struct {
	RunID       string    `json:"run_id"`
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`

	Total   int `json:"total"`
	Pass    int `json:"pass"`
	Fail    int `json:"fail"`
	Error   int `json:"error"`
	Skipped int `json:"skipped"`

	PassRate  float64 `json:"pass_rate"`
	ErrorRate float64 `json:"error_rate"`
	MeanScore float64 `json:"mean_score"`

	ByMetric map[string]*MetricStats `json:"by_metric"`
}

// Build computes descriptive statistics over a run's results.
func Build(runID, provider, model string, results []result.Result) *Summary {
	s := &Summary{
		RunID:       runID,
		Provider:    provider,
		Model:       model,
		GeneratedAt: time.Now().UTC(),
		ByMetric:    make(map[string]*MetricStats),
	}

	var allScores []float64
	for _, r := range results {
		ms := s.ByMetric[r.Metric]
		if ms == nil {
			ms = &MetricStats{}
			s.ByMetric[r.Metric] = ms
		}
		ms.Count++
		s.Total++

		switch r.Status {
		case result.StatusPass:
			ms.Pass++
			s.Pass++
		case result.StatusFail:
			ms.Fail++
			s.Fail++
		case result.StatusError:
			ms.Error++
			s.Error++
		case result.StatusSkipped:
			ms.Skipped++
			s.Skipped++
		}

		if r.Score != nil {
			ms.Scores = append(ms.Scores, *r.Score)
			allScores = append(allScores, *r.Score)
		}
	}

	for _, ms := range s.ByMetric {
		if ms.Count > 0 {
			ms.PassRate = float64(ms.Pass) / float64(ms.Count)
			ms.ErrorRate = float64(ms.Error) / float64(ms.Count)
		}
		ms.Mean = Mean(ms.Scores)
		ms.Median = Median(ms.Scores)
		ms.StdDev = StdDev(ms.Scores)
	}

	if s.Total > 0 {
		s.PassRate = float64(s.Pass) / float64(s.Total)
		s.ErrorRate = float64(s.Error) / float64(s.Total)
	}
	s.MeanScore = Mean(allScores)
	return s
}

// Scores returns every numeric score in the run, across metrics.
func (s *Summary) Scores() []float64 {
	var out []float64
	keys := make([]string, 0, len(s.ByMetric))
	for k := range s.ByMetric {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, s.ByMetric[k].Scores...)
	}
	return out
}

// WriteFile serializes the summary as indented JSON.
func (s *Summary) WriteFile(path string) error {
	if s == nil {
		return errors.New("summary: nil summary")
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("summary: marshal: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("summary: write %q: %w", path, err)
	}
	return nil
}

// LoadFile reads a summary previously written with WriteFile.
func LoadFile(path string) (*Summary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("summary: read %q: %w", path, err)
	}
	var s Summary
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("summary: parse %q: %w", path, err)
	}
	return &s, nil
}

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// StdDev is the sample standard deviation.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
