package engine

import (
	"context"
)

// Executor runs a single command step inside a work dir and blocks until
// the external process exits.
type Executor interface {
	// Execute runs the step. A non-nil error means the process could not be
	// started or exited unsuccessfully.
	Execute(ctx context.Context, workDir string, step *CommandStep) (*StepResult, error)

	// Exists reports whether a relative artifact exists after execution.
	Exists(ctx context.Context, workDir, artifact string) (bool, error)
}

// Stager moves a project folder to and from the place an Executor runs.
// Executors that run on the local filesystem do not implement it.
type Stager interface {
	// Push copies the local work dir to the execution location.
	Push(ctx context.Context, workDir string) error

	// Pull copies the named artifacts back into the local work dir.
	Pull(ctx context.Context, workDir string, artifacts []string) error
}

// RunStore persists runs and step outcomes.
type RunStore interface {
	// CreateRun records a new run.
	CreateRun(ctx context.Context, run *Run) error

	// UpdateRun saves the current state of a run.
	UpdateRun(ctx context.Context, run *Run) error

	// RecordStep saves the state of a step within a run.
	RecordStep(ctx context.Context, runID string, step *CommandStep) error

	// LatestRun returns the most recent run of a plan.
	LatestRun(ctx context.Context, planID string) (*Run, error)
}

// Observer receives step lifecycle notifications.
type Observer interface {
	// StepStarted is called before a step runs. The returned context is used
	// for the step's execution.
	StepStarted(ctx context.Context, run *Run, step *CommandStep) context.Context

	// StepFinished is called after a step ends, successfully or not.
	StepFinished(ctx context.Context, run *Run, step *CommandStep, err error)

	// RunFinished is called once the run reaches a terminal status.
	RunFinished(ctx context.Context, run *Run)
}
