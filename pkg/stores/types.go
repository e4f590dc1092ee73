package stores

import (
	"context"
	"time"

	"github.com/cronverge/cronverge/pkg/engine"
)

// RunRecord is one persisted convergence run. The summary columns are
// denormalized from the report for cheap history listings; the full report
// is kept as a JSON blob for exact replay.
type RunRecord struct {
	ID            string    `json:"id"`
	Deployment    string    `json:"deployment"`
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	DurationMS    int64     `json:"duration_ms"`
	Total         int       `json:"total"`
	Applied       int       `json:"applied"`
	Skipped       int       `json:"skipped"`
	Failed        int       `json:"failed"`
	Noop          int       `json:"noop"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	Report        string    `json:"report"` // JSON blob
	CreatedAt     time.Time `json:"created_at"`
}

// ActionRecord is one persisted action outcome within a run, in plan order.
type ActionRecord struct {
	ID         int64      `json:"id"`
	RunID      string     `json:"run_id"`
	Position   int        `json:"position"`
	Kind       string     `json:"kind"`
	Facet      string     `json:"facet"`
	Reason     string     `json:"reason"`
	Outcome    string     `json:"outcome"`
	Attempts   int        `json:"attempts"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

// EventRecord is one persisted run timeline event.
type EventRecord struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Deployment string    `json:"deployment,omitempty"`
	Type       string    `json:"type"`
	Action     string    `json:"action,omitempty"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// Store defines the persistence layer for the audit trail. It is write-only
// from the engine's point of view; reads serve the history command. Nothing
// here feeds back into convergence decisions.
type Store interface {
	engine.ReportSink
	engine.EventPublisher

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run history
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	GetReport(ctx context.Context, runID string) (*engine.ConvergenceReport, error)
	ListRuns(ctx context.Context, deployment string, limit, offset int) ([]*RunRecord, error)
	LatestRun(ctx context.Context, deployment string) (*RunRecord, error)

	// Action and event detail
	ListActionsByRun(ctx context.Context, runID string) ([]*ActionRecord, error)
	ListEventsByRun(ctx context.Context, runID string) ([]*EventRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
