package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stellarlinkco/convo-eval/internal/summary"
)

const defaultListLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	insertRunStmt   *sql.Stmt
	getRunStmt      *sql.Stmt
	historyStmt     *sql.Stmt
	listAllStmt     *sql.Stmt
	listByProvStmt  *sql.Stmt
	listByModelStmt *sql.Stmt
}

// NewSQLiteStore opens or creates a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := st.prepareStatements(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			finished_at INTEGER NOT NULL,
			pass_rate REAL NOT NULL,
			error_rate REAL NOT NULL,
			mean_score REAL NOT NULL,
			total INTEGER NOT NULL,
			summary_json BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_model ON runs(provider, model, finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

const runColumns = `id, provider, model, finished_at, summary_json`

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}

	ctx := context.Background()
	type stmtSpec struct {
		dst    **sql.Stmt
		query  string
		errFmt string
	}

	specs := []stmtSpec{
		{
			dst: &s.insertRunStmt,
			query: `
				INSERT INTO runs (
					id, provider, model, finished_at, pass_rate, error_rate, mean_score, total, summary_json
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
			errFmt: "store: prepare insert run: %w",
		},
		{
			dst:    &s.getRunStmt,
			query:  `SELECT ` + runColumns + ` FROM runs WHERE id = ?`,
			errFmt: "store: prepare get run: %w",
		},
		{
			dst: &s.historyStmt,
			query: `
				SELECT ` + runColumns + ` FROM runs
				WHERE provider = ? AND model = ?
				ORDER BY finished_at DESC
				LIMIT ?
			`,
			errFmt: "store: prepare model history: %w",
		},
		{
			dst: &s.listAllStmt,
			query: `
				SELECT ` + runColumns + ` FROM runs
				ORDER BY finished_at DESC
				LIMIT ?
			`,
			errFmt: "store: prepare list runs: %w",
		},
		{
			dst: &s.listByProvStmt,
			query: `
				SELECT ` + runColumns + ` FROM runs
				WHERE provider = ?
				ORDER BY finished_at DESC
				LIMIT ?
			`,
			errFmt: "store: prepare list by provider: %w",
		},
		{
			dst: &s.listByModelStmt,
			query: `
				SELECT ` + runColumns + ` FROM runs
				WHERE provider = ? AND model = ?
				ORDER BY finished_at DESC
				LIMIT ?
			`,
			errFmt: "store: prepare list by model: %w",
		},
	}

	for _, spec := range specs {
		stmt, err := s.db.PrepareContext(ctx, spec.query)
		if err != nil {
			return fmt.Errorf(spec.errFmt, err)
		}
		*spec.dst = stmt
	}
	return nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	stmts := []*sql.Stmt{
		s.insertRunStmt,
		s.getRunStmt,
		s.historyStmt,
		s.listAllStmt,
		s.listByProvStmt,
		s.listByModelStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun persists a completed run's summary.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if rec == nil || rec.Summary == nil {
		return errors.New("store: nil run record")
	}

	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return errors.New("store: empty run id")
	}
	finishedAt := rec.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = rec.Summary.GeneratedAt
	}
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}

	sumJSON, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("store: marshal summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin run tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt := tx.StmtContext(ctx, s.insertRunStmt)
	defer stmt.Close()

	_, err = stmt.ExecContext(
		ctx,
		id,
		rec.Provider,
		rec.Model,
		finishedAt.UTC().UnixMilli(),
		rec.Summary.PassRate,
		rec.Summary.ErrorRate,
		rec.Summary.MeanScore,
		rec.Summary.Total,
		sumJSON,
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit run: %w", err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("store: empty run id")
	}

	rec, err := scanRun(s.getRunStmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return rec, nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	provider := strings.TrimSpace(filter.Provider)
	model := strings.TrimSpace(filter.Model)

	var rows *sql.Rows
	var err error
	switch {
	case provider != "" && model != "":
		rows, err = s.listByModelStmt.QueryContext(ctx, provider, model, limit)
	case provider != "":
		rows, err = s.listByProvStmt.QueryContext(ctx, provider, limit)
	default:
		rows, err = s.listAllStmt.QueryContext(ctx, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

// ModelHistory returns the most recent runs of one provider/model pair.
func (s *SQLiteStore) ModelHistory(ctx context.Context, provider, model string, limit int) ([]*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.historyStmt.QueryContext(ctx, provider, model, limit)
	if err != nil {
		return nil, fmt.Errorf("store: model history: %w", err)
	}
	defer rows.Close()

	return collectRuns(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		id           string
		provider     string
		model        string
		finishedAtMS int64
		sumJSON      []byte
	)
	if err := row.Scan(&id, &provider, &model, &finishedAtMS, &sumJSON); err != nil {
		return nil, err
	}

	var sum summary.Summary
	if err := json.Unmarshal(sumJSON, &sum); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}

	return &RunRecord{
		ID:         id,
		Provider:   provider,
		Model:      model,
		FinishedAt: time.UnixMilli(finishedAtMS).UTC(),
		Summary:    &sum,
	}, nil
}

func collectRuns(rows *sql.Rows) ([]*RunRecord, error) {
	var out []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate runs: %w", err)
	}
	return out, nil
}
