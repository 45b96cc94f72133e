package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Runner executes a plan's steps one at a time in dependency order.
// Each step blocks until its external process exits; a failed step stops the
// run and every later step is marked skipped. There are no retries.
type Runner struct {
	executor Executor
	store    RunStore
	observer Observer
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunStore records runs and steps into store.
func WithRunStore(store RunStore) RunnerOption {
	return func(r *Runner) { r.store = store }
}

// WithObserver attaches a step lifecycle observer.
func WithObserver(observer Observer) RunnerOption {
	return func(r *Runner) { r.observer = observer }
}

// NewRunner creates a runner backed by executor.
func NewRunner(executor Executor, opts ...RunnerOption) *Runner {
	r := &Runner{executor: executor}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes plan and returns the finished run. The returned run is
// non-nil whenever it was created, even if execution failed.
func (r *Runner) Run(ctx context.Context, plan *Plan) (*Run, error) {
	if r.executor == nil {
		return nil, NewConfigurationError("runner has no executor", nil)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	builder, err := plan.BuildDAG()
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.New().String(),
		PlanID:    plan.ID,
		Project:   plan.Project,
		Status:    RunStatusPending,
		StartedAt: time.Now(),
		Summary: RunSummary{
			Total:   len(plan.Steps),
			Pending: len(plan.Steps),
		},
	}
	if r.store != nil {
		if err := r.store.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to save run: %w", err)
		}
	}

	logger := log.With().Str("run_id", run.ID).Str("project", plan.Project).Logger()
	logger.Info().Int("steps", len(plan.Steps)).Int("reused", len(plan.Reused)).Msg("Run started")

	run.Status = RunStatusRunning
	if err := r.save(ctx, run); err != nil {
		return run, err
	}

	runErr := r.execute(ctx, run, plan, builder.Ordered())
	return run, r.finish(ctx, run, plan, runErr)
}

func (r *Runner) execute(ctx context.Context, run *Run, plan *Plan, order []string) error {
	if stager, ok := r.executor.(Stager); ok {
		if err := stager.Push(ctx, plan.WorkDir); err != nil {
			return NewArtifactError("failed to stage project", err).WithCode(ErrCodeExternalFailed)
		}
	}

	for i, id := range order {
		step, _ := plan.Step(id)
		if err := r.executeStep(ctx, run, plan, step); err != nil {
			for _, rest := range order[i+1:] {
				skipped, _ := plan.Step(rest)
				skipped.Status = StepStatusSkipped
				run.Summary.Pending--
				run.Summary.Skipped++
				r.record(ctx, run, skipped)
			}
			return err
		}
	}

	if stager, ok := r.executor.(Stager); ok {
		if err := stager.Pull(ctx, plan.WorkDir, plan.ResultFiles); err != nil {
			return NewArtifactError("failed to collect results", err).WithCode(ErrCodeExternalFailed)
		}
	}
	return nil
}

func (r *Runner) executeStep(ctx context.Context, run *Run, plan *Plan, step *CommandStep) error {
	stepCtx := ctx
	if r.observer != nil {
		stepCtx = r.observer.StepStarted(ctx, run, step)
	}
	step.Status = StepStatusRunning
	r.record(ctx, run, step)

	log.Debug().Str("step_id", step.ID).Str("stage", string(step.Stage)).
		Str("program", step.Program).Str("output", step.Output).Msg("Executing step")

	result, err := r.executor.Execute(stepCtx, plan.WorkDir, step)
	if err == nil {
		err = r.verifyOutput(stepCtx, plan.WorkDir, step)
	}
	if result == nil {
		result = &StepResult{StepID: step.ID, StartedAt: time.Now(), CompletedAt: time.Now()}
	}

	run.Summary.Pending--
	if err != nil {
		classified := classify(err, step)
		err = classified
		step.Status = StepStatusFailed
		result.Status = StepStatusFailed
		result.Error = classified
		run.Summary.Failed++
	} else {
		step.Status = StepStatusSucceeded
		result.Status = StepStatusSucceeded
		run.Summary.Succeeded++
	}
	step.Result = result
	r.record(ctx, run, step)

	if r.observer != nil {
		r.observer.StepFinished(stepCtx, run, step, err)
	}
	if err != nil {
		log.Error().Err(err).Str("step_id", step.ID).Str("stage", string(step.Stage)).Msg("Step failed")
		return fmt.Errorf("step %s (%s) failed: %w", step.Stage, step.Program, err)
	}
	log.Info().Str("stage", string(step.Stage)).Str("output", step.Output).
		Dur("duration", result.Duration).Msg("Step completed")
	return nil
}

// verifyOutput turns a claimed success without its output into an artifact error.
func (r *Runner) verifyOutput(ctx context.Context, workDir string, step *CommandStep) error {
	ok, err := r.executor.Exists(ctx, workDir, step.Output)
	if err != nil {
		return NewArtifactError("failed to check step output", err).WithResource(step.Output)
	}
	if !ok {
		return NewArtifactError("step reported success but produced no output", nil).
			WithCode(ErrCodeMissingArtifact).WithResource(step.Output)
	}
	return nil
}

func (r *Runner) finish(ctx context.Context, run *Run, plan *Plan, runErr error) error {
	completedAt := time.Now()
	run.CompletedAt = &completedAt
	run.Duration = completedAt.Sub(run.StartedAt)

	if runErr != nil {
		run.Status = RunStatusFailed
		run.Error = runErr.Error()
	} else {
		run.Status = RunStatusSucceeded
	}
	if plan.Metadata == nil {
		plan.Metadata = make(map[string]interface{})
	}
	plan.Metadata["run_id"] = run.ID

	if err := r.save(ctx, run); err != nil && runErr == nil {
		runErr = err
	}
	if r.observer != nil {
		r.observer.RunFinished(ctx, run)
	}

	log.Info().Str("run_id", run.ID).Str("status", string(run.Status)).
		Int("succeeded", run.Summary.Succeeded).Int("failed", run.Summary.Failed).
		Dur("duration", run.Duration).Msg("Run finished")
	return runErr
}

func (r *Runner) save(ctx context.Context, run *Run) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

func (r *Runner) record(ctx context.Context, run *Run, step *CommandStep) {
	if r.store == nil {
		return
	}
	if err := r.store.RecordStep(ctx, run.ID, step); err != nil {
		log.Warn().Err(err).Str("step_id", step.ID).Msg("Failed to record step")
	}
}

// classify wraps unclassified failures as artifact errors.
func classify(err error, step *CommandStep) *EngineError {
	var e *EngineError
	if errors.As(err, &e) {
		return e
	}
	return NewArtifactError("external stage failed", err).
		WithCode(ErrCodeExternalFailed).WithResource(step.Output)
}
