// Package compare computes significance tests, confidence intervals, and a
// composite ranking across completed evaluation runs.
package compare

import (
	"errors"
	"math"
	"sort"

	"github.com/stellarlinkco/convo-eval/internal/summary"
)

// DefaultAlpha is the significance level used when none is configured.
const DefaultAlpha = 0.05

// TestResult is one statistical test outcome.
type TestResult struct {
	Name        string  `json:"name"`
	Statistic   float64 `json:"statistic"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
}

// MetricComparison compares one shared metric between two runs.
type MetricComparison struct {
	Metric string `json:"metric"`

	MeanA    float64 `json:"mean_a"`
	MeanB    float64 `json:"mean_b"`
	MeanDiff float64 `json:"mean_diff"`

	// Score-distribution tests; nil when either side lacks enough samples.
	TTest       *TestResult `json:"t_test,omitempty"`
	MannWhitney *TestResult `json:"mann_whitney_u,omitempty"`

	PassRateA float64 `json:"pass_rate_a"`
	PassRateB float64 `json:"pass_rate_b"`

	// Contingency is chi-square, replaced by Fisher's exact test when any
	// expected cell count is below 5.
	Contingency *TestResult `json:"contingency,omitempty"`
}

// Report is the output of a two-run comparison or an N-way ranking.
type Report struct {
	Alpha   float64            `json:"alpha"`
	RunA    string             `json:"run_a,omitempty"`
	RunB    string             `json:"run_b,omitempty"`
	Metrics []MetricComparison `json:"metrics,omitempty"`
	Ranking []RankEntry        `json:"ranking,omitempty"`
}

// Significant reports whether any computed test was significant.
func (r *Report) Significant() bool {
	for _, m := range r.Metrics {
		for _, t := range []*TestResult{m.TTest, m.MannWhitney, m.Contingency} {
			if t != nil && t.Significant {
				return true
			}
		}
	}
	return false
}

// Compare runs pairwise statistical tests for every metric identifier
// present in both summaries. Swapping a and b flips statistic signs where
// applicable but never changes p-values or significance flags.
func Compare(a, b *summary.Summary, alpha float64) (*Report, error) {
	if a == nil || b == nil {
		return nil, errors.New("compare: nil summary")
	}
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}

	report := &Report{Alpha: alpha, RunA: a.RunID, RunB: b.RunID}

	shared := make([]string, 0, len(a.ByMetric))
	for name := range a.ByMetric {
		if _, ok := b.ByMetric[name]; ok {
			shared = append(shared, name)
		}
	}
	sort.Strings(shared)

	for _, name := range shared {
		ma, mb := a.ByMetric[name], b.ByMetric[name]
		mc := MetricComparison{
			Metric:    name,
			MeanA:     ma.Mean,
			MeanB:     mb.Mean,
			MeanDiff:  mb.Mean - ma.Mean,
			PassRateA: ma.PassRate,
			PassRateB: mb.PassRate,
		}

		if t, p, ok := welchTTest(ma.Scores, mb.Scores); ok {
			mc.TTest = &TestResult{Name: "welch_t", Statistic: t, PValue: p, Significant: p < alpha}
		}
		if u, p, ok := mannWhitneyU(ma.Scores, mb.Scores); ok {
			mc.MannWhitney = &TestResult{Name: "mann_whitney_u", Statistic: u, PValue: p, Significant: p < alpha}
		}

		mc.Contingency = contingencyTest(ma, mb, alpha)
		report.Metrics = append(report.Metrics, mc)
	}

	return report, nil
}

// contingencyTest compares pass/fail counts, choosing Fisher's exact test
// over chi-square when expected cell counts are small. ERROR results are
// infrastructure noise, not verdicts, and stay out of the table.
func contingencyTest(a, b *summary.MetricStats, alpha float64) *TestResult {
	passA, failA := a.Pass, a.Fail
	passB, failB := b.Pass, b.Fail

	chi2, p, lowExpected, ok := chiSquare2x2(passA, failA, passB, failB)
	if !ok {
		return nil
	}
	if lowExpected {
		odds, fp, fok := fisherExact(passA, failA, passB, failB)
		if fok {
			stat := odds
			if math.IsNaN(stat) || math.IsInf(stat, 0) {
				stat = 0
			}
			return &TestResult{Name: "fisher_exact", Statistic: stat, PValue: fp, Significant: fp < alpha}
		}
	}
	return &TestResult{Name: "chi_square", Statistic: chi2, PValue: p, Significant: p < alpha}
}
