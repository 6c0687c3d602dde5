// internal/store/store.go

// Package store keeps a PostgreSQL ledger of mass push runs and the outcome of
// every file pushed in them.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/kbase/jgipush/internal/runner"
)

// ErrRunNotFound is returned for run ids the ledger does not know.
var ErrRunNotFound = errors.New("push run not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS push_runs (
    id          UUID PRIMARY KEY,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ,
    workers     INTEGER NOT NULL,
    files       INTEGER NOT NULL,
    passed      INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS push_results (
    id          UUID PRIMARY KEY,
    run_id      UUID NOT NULL REFERENCES push_runs (id) ON DELETE CASCADE,
    worker      INTEGER NOT NULL,
    organism    TEXT,
    file_group  TEXT,
    file_name   TEXT,
    workspace   TEXT,
    passed      BOOLEAN NOT NULL,
    error       TEXT,
    load_ms     BIGINT NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS push_results_run_id_idx ON push_results (run_id);
`

const (
	sqlStartRun = `
        INSERT INTO push_runs (id, started_at, workers, files)
        VALUES ($1, $2, $3, $4)`
	sqlFinishRun = `
        UPDATE push_runs SET finished_at = $2, passed = $3, failed = $4
        WHERE id = $1`
	sqlGetRun = `
        SELECT id, started_at, finished_at, workers, files, passed, failed
        FROM push_runs WHERE id = $1`
	sqlRunSummary = `
        SELECT count(*) FILTER (WHERE passed), count(*) FILTER (WHERE NOT passed)
        FROM push_results WHERE run_id = $1`
	sqlFailedResults = `
        SELECT worker, organism, file_group, file_name, error, recorded_at
        FROM push_results
        WHERE run_id = $1 AND NOT passed
        ORDER BY recorded_at, worker`
)

var resultColumns = []string{"id", "run_id", "worker", "organism", "file_group", "file_name", "workspace", "passed", "error", "load_ms", "recorded_at"}

// Store is the push run ledger.
type Store struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
		now:  time.Now,
	}, nil
}

// EnsureSchema creates the ledger tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// StartRun registers a new run and returns its id.
func (s *Store) StartRun(ctx context.Context, workers, files int) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := s.pool.Exec(ctx, sqlStartRun, id, s.now().UTC(), workers, files); err != nil {
		return uuid.Nil, fmt.Errorf("failed to start run: %w", err)
	}
	s.log.Info("Started push run.", zap.Stringer("run_id", id), zap.Int("workers", workers), zap.Int("files", files))
	return id, nil
}

// FinishRun stamps the run as finished with its final counts.
func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID, passed, failed int) error {
	tag, err := s.pool.Exec(ctx, sqlFinishRun, runID, s.now().UTC(), passed, failed)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// RecordResults copies results into the ledger in one transaction.
func (s *Store) RecordResults(ctx context.Context, runID uuid.UUID, results []runner.Result) error {
	if len(results) == 0 {
		return nil
	}
	rows := make([][]any, len(results))
	for i, r := range results {
		var org, group, name, ws, errText any
		if r.File != nil {
			org, group, name, ws = r.File.Organism, r.File.Group, r.File.Name, r.File.Workspace
		}
		if r.Err != nil {
			errText = r.Err.Error()
		}
		rows[i] = []any{
			uuid.New(), runID, r.Worker,
			org, group, name, ws,
			r.Passed(), errText,
			r.LoadDuration.Milliseconds(),
			r.Timestamp.UTC(),
		}
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"push_results"}, resultColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("failed to copy results: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("mismatch in copied results count: expected %d, got %d", len(rows), n)
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction.", zap.Error(rollbackErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Run is one row of push_runs.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Workers    int
	Files      int
	Passed     int
	Failed     int
}

// GetRun loads a run.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (Run, error) {
	var r Run
	err := s.pool.QueryRow(ctx, sqlGetRun, runID).
		Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Workers, &r.Files, &r.Passed, &r.Failed)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return r, nil
}

// RunSummary counts the recorded results of a run.
func (s *Store) RunSummary(ctx context.Context, runID uuid.UUID) (passed, failed int, err error) {
	if err := s.pool.QueryRow(ctx, sqlRunSummary, runID).Scan(&passed, &failed); err != nil {
		return 0, 0, fmt.Errorf("failed to summarize run %s: %w", runID, err)
	}
	return passed, failed, nil
}

// FailedPush is a failed row of push_results.
type FailedPush struct {
	Worker     int
	Organism   *string
	Group      *string
	File       *string
	Error      string
	RecordedAt time.Time
}

// FailedResults lists the failures of a run, oldest first.
func (s *Store) FailedResults(ctx context.Context, runID uuid.UUID) ([]FailedPush, error) {
	rows, err := s.pool.Query(ctx, sqlFailedResults, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results of run %s: %w", runID, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (FailedPush, error) {
		var f FailedPush
		var errText *string
		if err := row.Scan(&f.Worker, &f.Organism, &f.Group, &f.File, &errText, &f.RecordedAt); err != nil {
			return f, err
		}
		if errText != nil {
			f.Error = *errText
		}
		return f, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read results of run %s: %w", runID, err)
	}
	return out, nil
}
