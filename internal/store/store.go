// Package store handles SQLite persistence of scoring runs.
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

	"github.com/google/uuid"

	"github.com/verte-zerg/tripscore/internal/evaluator"
	"github.com/verte-zerg/tripscore/internal/model"
	"github.com/verte-zerg/tripscore/internal/stats"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Run kinds.
const (
	KindEval       = "eval"
	KindOrdering   = "ordering"
	KindSpatial    = "spatial"
	KindMitigation = "mitigation"
)

// Lookup errors.
var (
	ErrNotFound  = errors.New("run not found")
	ErrAmbiguous = errors.New("run id prefix matches several runs")
)

// Run is one stored scoring run.
type Run struct {
	ID        string
	Kind      string
	CreatedAt time.Time
	SetType   string
	Source    string
	Metrics   map[string]float64
}

// Store wraps SQLite access for run history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			created_at TEXT NOT NULL,
			set_type TEXT NOT NULL,
			source TEXT NOT NULL,
			metrics TEXT NOT NULL,
			counters TEXT NOT NULL DEFAULT '{}'
		);`,
		`CREATE TABLE IF NOT EXISTS run_cells (
			run_id TEXT NOT NULL,
			tier TEXT NOT NULL,
			constraint_key TEXT NOT NULL,
			label TEXT NOT NULL,
			level TEXT NOT NULL,
			days INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			eligible INTEGER NOT NULL,
			PRIMARY KEY (run_id, tier, constraint_key, level, days)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertEvaluation stores a finalized evaluation and its breakdown cells.
func (s *Store) InsertEvaluation(ctx context.Context, res stats.Result, source string) (string, error) {
	metrics, err := json.Marshal(res.Rates)
	if err != nil {
		return "", err
	}
	counters, err := json.Marshal(res.Counters)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	id := uuid.NewString()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, kind, created_at, set_type, source, metrics, counters)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, KindEval, s.now().UTC().Format(time.RFC3339Nano), res.Partition.Name, source, string(metrics), string(counters),
	); err != nil {
		return "", err
	}

	if len(res.Cells) > 0 {
		var stmt *sql.Stmt
		stmt, err = tx.PrepareContext(ctx,
			`INSERT INTO run_cells (run_id, tier, constraint_key, label, level, days, passed, eligible)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return "", err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, c := range res.Cells {
			if _, err = stmt.ExecContext(ctx, id, string(c.Tier), c.Key, c.Label, string(c.Level), c.Days, c.Passed, c.Eligible); err != nil {
				return "", err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// InsertScore stores a scalar scoring run such as ordering or spatial.
func (s *Store) InsertScore(ctx context.Context, kind, source string, metrics map[string]float64) (string, error) {
	encoded, err := json.Marshal(metrics)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, created_at, set_type, source, metrics)
		 VALUES (?, ?, ?, '', ?, ?)`,
		id, kind, s.now().UTC().Format(time.RFC3339Nano), source, string(encoded),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListRuns returns the most recent runs first. An empty kind lists every
// kind; a non-positive limit lists everything.
func (s *Store) ListRuns(ctx context.Context, kind string, limit int) ([]Run, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, kind)
	}
	query := fmt.Sprintf(`SELECT id, kind, created_at, set_type, source, metrics
		FROM runs
		WHERE %s
		ORDER BY created_at DESC, rowid DESC`, strings.Join(clauses, " AND "))
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []Run
	for rows.Next() {
		run, _, err := scanRun(rows, false)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner, withCounters bool) (Run, stats.Counters, error) {
	var run Run
	var createdAt, metrics, counters string
	dest := []any{&run.ID, &run.Kind, &createdAt, &run.SetType, &run.Source, &metrics}
	if withCounters {
		dest = append(dest, &counters)
	}
	if err := row.Scan(dest...); err != nil {
		return Run{}, stats.Counters{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Run{}, stats.Counters{}, err
	}
	run.CreatedAt = parsed
	if err := json.Unmarshal([]byte(metrics), &run.Metrics); err != nil {
		return Run{}, stats.Counters{}, fmt.Errorf("run %s metrics: %w", run.ID, err)
	}
	var c stats.Counters
	if withCounters && counters != "" {
		if err := json.Unmarshal([]byte(counters), &c); err != nil {
			return Run{}, stats.Counters{}, fmt.Errorf("run %s counters: %w", run.ID, err)
		}
	}
	return run, c, nil
}

// GetEvaluation loads an evaluation run by id or unique id prefix.
func (s *Store) GetEvaluation(ctx context.Context, idOrPrefix string) (Run, stats.Result, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return Run{}, stats.Result{}, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, created_at, set_type, source, metrics, counters
		 FROM runs
		 WHERE kind = ? AND substr(id, 1, ?) = ?
		 LIMIT 2`,
		KindEval, len(idOrPrefix), idOrPrefix)
	if err != nil {
		return Run{}, stats.Result{}, err
	}
	var matches []Run
	var counters stats.Counters
	for rows.Next() {
		run, c, err := scanRun(rows, true)
		if err != nil {
			_ = rows.Close()
			return Run{}, stats.Result{}, err
		}
		matches = append(matches, run)
		counters = c
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return Run{}, stats.Result{}, err
	}
	if cerr := rows.Close(); cerr != nil {
		// Best-effort rows close.
		_ = cerr
	}
	switch len(matches) {
	case 0:
		return Run{}, stats.Result{}, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	case 1:
	default:
		return Run{}, stats.Result{}, fmt.Errorf("%w: %s", ErrAmbiguous, idOrPrefix)
	}

	run := matches[0]
	cells, err := s.listCells(ctx, run.ID)
	if err != nil {
		return Run{}, stats.Result{}, err
	}
	if counters.FinalByLevel == nil {
		counters.FinalByLevel = map[model.Level]int{}
	}
	res := stats.Result{
		Partition: stats.Partition{Name: run.SetType},
		Rates:     run.Metrics,
		Counters:  counters,
		Cells:     cells,
	}
	return run, res, nil
}

func (s *Store) listCells(ctx context.Context, runID string) ([]stats.Cell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tier, constraint_key, label, level, days, passed, eligible
		 FROM run_cells
		 WHERE run_id = ?
		 ORDER BY rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var cells []stats.Cell
	for rows.Next() {
		var c stats.Cell
		var tier, level string
		if err := rows.Scan(&tier, &c.Key, &c.Label, &level, &c.Days, &c.Passed, &c.Eligible); err != nil {
			return nil, err
		}
		c.Tier = evaluator.Tier(tier)
		c.Level = model.Level(level)
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cells, nil
}
