package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/cronverge/cronverge/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

var _ Store = (*SQLiteStore)(nil)

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
		return nil, fmt.Errorf("database path is required")
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

	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must not
	// grow past one or later queries land on empty databases.
	if isMemoryPath(s.cfg.Path) {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(s.cfg.MaxOpenConns)
		db.SetMaxIdleConns(s.cfg.MaxIdleConns)
		db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

func isMemoryPath(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
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
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveReport persists a convergence report: one runs row plus one actions
// row per result, atomically. Implements engine.ReportSink.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *engine.ConvergenceReport) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}

	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var failureReason *string
	if report.FailureReason != "" {
		failureReason = &report.FailureReason
	}

	runQuery := `
		INSERT INTO runs (
			id, deployment, status, started_at, completed_at, duration_ms,
			total, applied, skipped, failed, noop, failure_reason, report, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, runQuery,
		report.RunID,
		report.Deployment,
		string(report.Status),
		report.StartedAt.UTC(),
		report.CompletedAt.UTC(),
		report.Duration.Milliseconds(),
		report.Summary.Total,
		report.Summary.Applied,
		report.Summary.Skipped,
		report.Summary.Failed,
		report.Summary.Noop,
		failureReason,
		string(blob),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	actionQuery := `
		INSERT INTO actions (
			run_id, position, kind, facet, reason, outcome, attempts, error, started_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i, result := range report.Results {
		var errMsg *string
		if result.Error != nil {
			msg := result.Error.Error()
			errMsg = &msg
		}

		var startedAt *time.Time
		if !result.StartedAt.IsZero() {
			ts := result.StartedAt.UTC()
			startedAt = &ts
		}

		_, err = tx.ExecContext(ctx, actionQuery,
			report.RunID,
			i,
			string(result.Action.Kind),
			string(result.Action.Facet),
			result.Action.Reason,
			string(result.Outcome),
			result.Attempts,
			errMsg,
			startedAt,
			result.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert action at position %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}

	return nil
}

// Publish appends a run timeline event. Implements engine.EventPublisher.
func (s *SQLiteStore) Publish(ctx context.Context, event *engine.Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}

	query := `
		INSERT INTO events (id, run_id, deployment, type, action, level, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.RunID,
		event.Deployment,
		string(event.Type),
		string(event.Action),
		event.Level,
		event.Message,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

const runColumns = `id, deployment, status, started_at, completed_at, duration_ms,
	total, applied, skipped, failed, noop, failure_reason, report, created_at`

func scanRun(row interface{ Scan(...interface{}) error }) (*RunRecord, error) {
	run := &RunRecord{}
	err := row.Scan(
		&run.ID,
		&run.Deployment,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.DurationMS,
		&run.Total,
		&run.Applied,
		&run.Skipped,
		&run.Failed,
		&run.Noop,
		&run.FailureReason,
		&run.Report,
		&run.CreatedAt,
	)
	return run, err
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// GetReport decodes the stored convergence report for a run.
func (s *SQLiteStore) GetReport(ctx context.Context, runID string) (*engine.ConvergenceReport, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	report := &engine.ConvergenceReport{}
	if err := json.Unmarshal([]byte(run.Report), report); err != nil {
		return nil, fmt.Errorf("failed to decode stored report: %w", err)
	}

	return report, nil
}

// ListRuns lists runs newest first, optionally filtered by deployment name.
// An empty deployment matches every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, deployment string, limit, offset int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE (? = '' OR deployment = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, deployment, deployment, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
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

// LatestRun retrieves the most recent run for a deployment.
func (s *SQLiteStore) LatestRun(ctx context.Context, deployment string) (*RunRecord, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE deployment = ?
		ORDER BY started_at DESC
		LIMIT 1
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, deployment))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no runs recorded for deployment: %s", deployment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return run, nil
}

// ListActionsByRun lists all action records for a run in plan order.
func (s *SQLiteStore) ListActionsByRun(ctx context.Context, runID string) ([]*ActionRecord, error) {
	query := `
		SELECT id, run_id, position, kind, facet, reason, outcome, attempts, error, started_at, duration_ms
		FROM actions
		WHERE run_id = ?
		ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	actions := []*ActionRecord{}
	for rows.Next() {
		action := &ActionRecord{}
		err := rows.Scan(
			&action.ID,
			&action.RunID,
			&action.Position,
			&action.Kind,
			&action.Facet,
			&action.Reason,
			&action.Outcome,
			&action.Attempts,
			&action.Error,
			&action.StartedAt,
			&action.DurationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, action)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return actions, nil
}

// ListEventsByRun lists all timeline events for a run in emission order.
func (s *SQLiteStore) ListEventsByRun(ctx context.Context, runID string) ([]*EventRecord, error) {
	query := `
		SELECT id, run_id, deployment, type, action, level, message, timestamp
		FROM events
		WHERE run_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*EventRecord{}
	for rows.Next() {
		event := &EventRecord{}
		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.Deployment,
			&event.Type,
			&event.Action,
			&event.Level,
			&event.Message,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
