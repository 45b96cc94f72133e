package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/daylight/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, engine.NewConfigurationError("database path is required", nil).
			WithCode(engine.ErrCodeInvalidPath)
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if s.cfg.Path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	log.Debug().Str("path", s.cfg.Path).Msg("Run store opened")
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return errNotInitialized()
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Open creates, initializes and migrates a store in one call.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

const runColumns = `id, plan_id, project, status, started_at, completed_at, duration_ns,
	total, succeeded, failed, skipped, pending, error`

// CreateRun creates a new run record
func (s *SQLiteStore) CreateRun(ctx context.Context, run *engine.Run) error {
	if err := run.Status.Validate(); err != nil {
		return engine.NewValidationError("cannot store run", err).WithCode(engine.ErrCodeOutOfRange).WithResource(run.ID)
	}
	query := `
		INSERT INTO runs (` + runColumns + `, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.PlanID,
		run.Project,
		string(run.Status),
		run.StartedAt.UTC(),
		utcPtr(run.CompletedAt),
		int64(run.Duration),
		run.Summary.Total,
		run.Summary.Succeeded,
		run.Summary.Failed,
		run.Summary.Skipped,
		run.Summary.Pending,
		run.Error,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// UpdateRun saves the status, timing and summary of a run
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *engine.Run) error {
	if err := run.Status.Validate(); err != nil {
		return engine.NewValidationError("cannot store run", err).WithCode(engine.ErrCodeOutOfRange).WithResource(run.ID)
	}
	query := `
		UPDATE runs
		SET status = ?, completed_at = ?, duration_ns = ?,
			total = ?, succeeded = ?, failed = ?, skipped = ?, pending = ?,
			error = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		string(run.Status),
		utcPtr(run.CompletedAt),
		int64(run.Duration),
		run.Summary.Total,
		run.Summary.Succeeded,
		run.Summary.Failed,
		run.Summary.Skipped,
		run.Summary.Pending,
		run.Error,
		time.Now().UTC(),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return expectRow(result, "run", run.ID)
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*engine.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recently started run of a plan
func (s *SQLiteStore) LatestRun(ctx context.Context, planID string) (*engine.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE plan_id = ? ORDER BY started_at DESC, created_at DESC LIMIT 1`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, planID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run for plan", planID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// LatestProjectRun returns the most recently started run of a project
func (s *SQLiteStore) LatestProjectRun(ctx context.Context, project string) (*engine.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE project = ? ORDER BY started_at DESC, created_at DESC LIMIT 1`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, project))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("run for project", project)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs with pagination, newest first. An empty project
// lists every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, project string, limit, offset int) ([]*engine.Run, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + runColumns + ` FROM runs`)
	args := []interface{}{}
	if project != "" {
		b.WriteString(` WHERE project = ?`)
		args = append(args, project)
	}
	b.WriteString(` ORDER BY started_at DESC, created_at DESC LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run and its steps
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return expectRow(result, "run", id)
}

// RecordStep upserts the state of a step within a run
func (s *SQLiteStore) RecordStep(ctx context.Context, runID string, step *engine.CommandStep) error {
	if err := step.Status.Validate(); err != nil {
		return engine.NewValidationError("cannot record step", err).WithCode(engine.ErrCodeOutOfRange).WithResource(step.ID)
	}
	query := `
		INSERT INTO steps (
			run_id, step_id, stage, program, command_line, output, status, execution_order,
			started_at, completed_at, duration_ns, stderr, error, error_code, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, step_id) DO UPDATE SET
			status = excluded.status,
			execution_order = excluded.execution_order,
			started_at = COALESCE(excluded.started_at, steps.started_at),
			completed_at = excluded.completed_at,
			duration_ns = excluded.duration_ns,
			stderr = excluded.stderr,
			error = excluded.error,
			error_code = excluded.error_code,
			updated_at = excluded.updated_at
	`

	var (
		startedAt, completedAt *time.Time
		duration               time.Duration
		stderr, errMsg, code   string
	)
	if r := step.Result; r != nil {
		startedAt = nonZero(r.StartedAt)
		completedAt = nonZero(r.CompletedAt)
		duration = r.Duration
		stderr = r.Stderr
		if r.Error != nil {
			errMsg = r.Error.Error()
			code = r.Error.Code
		}
	} else if step.Status == engine.StepStatusRunning {
		startedAt = nonZero(time.Now())
	}

	_, err := s.db.ExecContext(ctx, query,
		runID,
		step.ID,
		string(step.Stage),
		step.Program,
		step.CommandLine(),
		step.Output,
		string(step.Status),
		step.ExecutionOrder,
		startedAt,
		completedAt,
		int64(duration),
		stderr,
		errMsg,
		code,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}
	return nil
}

// ListSteps lists the steps of a run in execution order
func (s *SQLiteStore) ListSteps(ctx context.Context, runID string) ([]*StepRecord, error) {
	query := `
		SELECT run_id, step_id, stage, program, command_line, output, status, execution_order,
			   started_at, completed_at, duration_ns, stderr, error, error_code, updated_at
		FROM steps
		WHERE run_id = ?
		ORDER BY execution_order ASC, started_at ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	steps := []*StepRecord{}
	for rows.Next() {
		rec := &StepRecord{}
		var stage, status string
		var duration int64
		err := rows.Scan(
			&rec.RunID,
			&rec.StepID,
			&stage,
			&rec.Program,
			&rec.CommandLine,
			&rec.Output,
			&status,
			&rec.ExecutionOrder,
			&rec.StartedAt,
			&rec.CompletedAt,
			&duration,
			&rec.Stderr,
			&rec.Error,
			&rec.ErrorCode,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		rec.Stage = engine.Stage(stage)
		rec.Status = engine.StepStatus(status)
		rec.Duration = time.Duration(duration)
		steps = append(steps, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return errNotInitialized()
	}

	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*engine.Run, error) {
	run := &engine.Run{}
	var status string
	var duration int64
	err := row.Scan(
		&run.ID,
		&run.PlanID,
		&run.Project,
		&status,
		&run.StartedAt,
		&run.CompletedAt,
		&duration,
		&run.Summary.Total,
		&run.Summary.Succeeded,
		&run.Summary.Failed,
		&run.Summary.Skipped,
		&run.Summary.Pending,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}
	run.Status = engine.RunStatus(status)
	run.Duration = time.Duration(duration)
	return run, nil
}

func expectRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound(kind, id)
	}
	return nil
}

func notFound(kind, id string) error {
	return engine.NewStateError(kind+" not found", nil).
		WithCode(engine.ErrCodeNotFound).
		WithResource(id)
}

func errNotInitialized() error {
	return engine.NewStateError("database not initialized", nil)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func nonZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
