// Package report writes run artifacts (per-result CSV and JSON files plus
// the summary JSON) into a run's output directory.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/stellarlinkco/convo-eval/internal/result"
	"github.com/stellarlinkco/convo-eval/internal/summary"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Writer emits run artifacts into Dir. Formats selects which result files
// are written; the summary JSON is always written.
type Writer struct {
	Dir     string
	Formats []string
}

// Artifacts names the files produced by Write.
type Artifacts struct {
	ResultsCSV  string `json:"results_csv,omitempty"`
	ResultsJSON string `json:"results_json,omitempty"`
	SummaryJSON string `json:"summary_json"`
}

// Write persists the run's results and summary. The output directory is
// created if needed.
func (w *Writer) Write(results []result.Result, sum *summary.Summary) (*Artifacts, error) {
	if w == nil {
		return nil, errors.New("report: nil writer")
	}
	if sum == nil {
		return nil, errors.New("report: nil summary")
	}
	dir := strings.TrimSpace(w.Dir)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create output dir: %w", err)
	}

	art := &Artifacts{}
	for _, f := range w.Formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case FormatCSV:
			path := filepath.Join(dir, "results.csv")
			if err := writeCSV(path, results); err != nil {
				return nil, err
			}
			art.ResultsCSV = path
		case FormatJSON:
			path := filepath.Join(dir, "results.json")
			if err := writeJSON(path, results); err != nil {
				return nil, err
			}
			art.ResultsJSON = path
		case "":
		default:
			return nil, fmt.Errorf("report: unsupported format %q", f)
		}
	}

	sumPath := filepath.Join(dir, "summary.json")
	if err := sum.WriteFile(sumPath); err != nil {
		return nil, err
	}
	art.SummaryJSON = sumPath
	return art, nil
}

func writeCSV(path string, results []result.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %q: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	header := []string{
		"conversation_group_id", "unit_id", "metric_identifier",
		"status", "score", "threshold", "reason", "duration_ms",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for _, r := range results {
		score := ""
		if r.Score != nil {
			score = strconv.FormatFloat(*r.Score, 'f', -1, 64)
		}
		row := []string{
			r.GroupID,
			r.UnitID,
			r.Metric,
			string(r.Status),
			score,
			strconv.FormatFloat(r.Threshold, 'f', -1, 64),
			r.Reason,
			strconv.FormatInt(r.Duration.Milliseconds(), 10),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

func writeJSON(path string, results []result.Result) error {
	if results == nil {
		results = []result.Result{}
	}
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal results: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("report: write %q: %w", path, err)
	}
	return nil
}
