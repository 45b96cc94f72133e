package stores

import (
	"context"
	"database/sql"
	"time"

	"github.com/openfroyo/daylight/pkg/engine"
)

// StepRecord is the persisted state of one command step within a run.
type StepRecord struct {
	RunID          string            `json:"run_id"`
	StepID         string            `json:"step_id"`
	Stage          engine.Stage      `json:"stage"`
	Program        string            `json:"program"`
	CommandLine    string            `json:"command_line"`
	Output         string            `json:"output"`
	Status         engine.StepStatus `json:"status"`
	ExecutionOrder int               `json:"execution_order"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	Duration       time.Duration     `json:"duration"`
	Stderr         string            `json:"stderr,omitempty"`
	Error          string            `json:"error,omitempty"`
	ErrorCode      string            `json:"error_code,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Store defines the interface for the persistence layer
type Store interface {
	engine.RunStore

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Run queries
	GetRun(ctx context.Context, id string) (*engine.Run, error)
	LatestProjectRun(ctx context.Context, project string) (*engine.Run, error)
	ListRuns(ctx context.Context, project string, limit, offset int) ([]*engine.Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Step queries
	ListSteps(ctx context.Context, runID string) ([]*StepRecord, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
