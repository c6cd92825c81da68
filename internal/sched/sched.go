// Package sched fans independent provider/model evaluation runs out over a
// bounded worker pool, each with an isolated output directory.
package sched

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/stellarlinkco/convo-eval/internal/summary"
)

// Task is one full evaluation run for a provider/model combination. Run
// receives the task's exclusive output directory.
type Task struct {
	Provider string
	Model    string
	Threads  int // intra-run evaluation budget
	Run      func(ctx context.Context, outputDir string) (*summary.Summary, error)
}

// WorkerStatus reports one task's outcome. A failed worker never affects
// its siblings.
type WorkerStatus struct {
	Provider  string           `json:"provider"`
	Model     string           `json:"model"`
	OutputDir string           `json:"output_dir"`
	Err       string           `json:"error,omitempty"`
	Summary   *summary.Summary `json:"summary,omitempty"`
}

// Sweep bounds cross-run parallelism.
type Sweep struct {
	Workers int
	BaseDir string
	Logger  *zap.SugaredLogger
}

// Run executes every task on the pool and blocks until all finish. There is
// no mid-run cancellation: a submitted task either completes or reports
// failure in its status.
func (s *Sweep) Run(ctx context.Context, tasks []Task) ([]WorkerStatus, error) {
	if s == nil {
		return nil, errors.New("sched: nil sweep")
	}
	if ctx == nil {
		return nil, errors.New("sched: nil context")
	}
	if len(tasks) == 0 {
		return nil, errors.New("sched: no tasks")
	}

	log := s.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}

	s.warnOversubscription(log, workers, tasks)

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("sched: create pool: %w", err)
	}
	defer pool.Release()

	statuses := make([]WorkerStatus, len(tasks))
	var wg sync.WaitGroup

	for i := range tasks {
		task := tasks[i]
		idx := i

		dir, err := s.outputDir(task)
		if err != nil {
			statuses[idx] = WorkerStatus{Provider: task.Provider, Model: task.Model, Err: err.Error()}
			continue
		}

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			st := WorkerStatus{Provider: task.Provider, Model: task.Model, OutputDir: dir}

			sum, err := task.Run(ctx, dir)
			if err != nil {
				log.Errorw("worker failed", "provider", task.Provider, "model", task.Model, "error", err)
				st.Err = err.Error()
			} else {
				st.Summary = sum
			}
			statuses[idx] = st
		})
		if submitErr != nil {
			wg.Done()
			statuses[idx] = WorkerStatus{Provider: task.Provider, Model: task.Model, OutputDir: dir, Err: submitErr.Error()}
		}
	}

	wg.Wait()
	return statuses, nil
}

// outputDir builds the task's exclusive, name-sanitized output directory.
func (s *Sweep) outputDir(t Task) (string, error) {
	name := SanitizeName(t.Provider + "_" + t.Model)
	if name == "" {
		return "", fmt.Errorf("sched: task %q/%q has no usable name", t.Provider, t.Model)
	}
	dir := filepath.Join(s.BaseDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sched: create output dir: %w", err)
	}
	return dir, nil
}

// warnOversubscription flags configurations whose combined thread budget
// exceeds twice the host parallelism. Both layers issue external network
// calls, so oversubscription tends to exhaust rate limits before CPUs.
func (s *Sweep) warnOversubscription(log *zap.SugaredLogger, workers int, tasks []Task) {
	maxThreads := 1
	for _, t := range tasks {
		if t.Threads > maxThreads {
			maxThreads = t.Threads
		}
	}
	total := workers * maxThreads
	if limit := 2 * runtime.NumCPU(); total > limit {
		log.Warnw("total concurrency exceeds host parallelism",
			"workers", workers,
			"threads_per_worker", maxThreads,
			"total", total,
			"recommended_max", limit)
	}
}
