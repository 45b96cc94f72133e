package engine

import (
	"time"
)

// Stage identifies the position of a command step in the recipe pipeline.
type Stage string

const (
	// StagePoints materializes the concatenated analysis-points file.
	StagePoints Stage = "points"

	// StageSky materializes a sky description (sky file, sky matrix or sun matrix).
	StageSky Stage = "sky"

	// StageOctree compiles the scene and sky into an octree.
	StageOctree Stage = "octree"

	// StageMatrix computes the expensive intermediate matrix (daylight or sun coefficients).
	StageMatrix Stage = "matrix"

	// StageRaytrace traces the analysis points directly against an octree.
	StageRaytrace Stage = "raytrace"

	// StageCombine multiplies the intermediate matrix with the sky matrix.
	StageCombine Stage = "combine"

	// StageConvert turns tri-component radiometric samples into one photometric scalar.
	StageConvert Stage = "convert"
)

// Rank returns the position of the stage in strict dependency order.
// Unknown stages rank after every known stage.
func (s Stage) Rank() int {
	switch s {
	case StagePoints:
		return 0
	case StageSky:
		return 1
	case StageOctree:
		return 2
	case StageMatrix:
		return 3
	case StageRaytrace:
		return 4
	case StageCombine:
		return 5
	case StageConvert:
		return 6
	default:
		return 99
	}
}

// Validate checks if the stage is known.
func (s Stage) Validate() error {
	if s.Rank() == 99 {
		return NewValidationError("invalid stage: "+string(s), nil).WithCode(ErrCodeOutOfRange)
	}
	return nil
}

// CommandStep is one external tool invocation in a plan.
type CommandStep struct {
	// ID is the unique identifier for this step.
	ID string `json:"id"`

	// Stage is the pipeline stage this step belongs to.
	Stage Stage `json:"stage"`

	// Description is written as the comment line above the command in the script.
	Description string `json:"description"`

	// Program is the executable identifier (e.g. "rfluxmtx").
	Program string `json:"program"`

	// Args are the program arguments. Paths are relative to the plan work dir.
	Args []string `json:"args,omitempty"`

	// Stdin is an optional relative path redirected to standard input.
	Stdin string `json:"stdin,omitempty"`

	// Inputs are the artifacts that must exist before the step starts.
	Inputs []string `json:"inputs,omitempty"`

	// Output is the artifact produced by the step. When Stdout is true the
	// program's standard output is redirected into it.
	Output string `json:"output"`

	// Stdout reports whether Output is captured from standard output.
	Stdout bool `json:"stdout"`

	// Manifest is an optional sidecar path written with ManifestLine once
	// the step succeeds.
	Manifest string `json:"manifest,omitempty"`

	// ManifestLine is the encoded manifest content, without newline.
	ManifestLine string `json:"manifest_line,omitempty"`

	// Parameters is the serialized parameter set snapshot used by the step.
	Parameters string `json:"parameters,omitempty"`

	// Status is the current execution status of this step.
	Status StepStatus `json:"status"`

	// Dependencies lists step IDs that produce this step's inputs.
	Dependencies []string `json:"dependencies,omitempty"`

	// ExecutionOrder is the topological level assigned by the DAG builder.
	ExecutionOrder int `json:"execution_order"`

	// Result is the execution result once the step completes.
	Result *StepResult `json:"result,omitempty"`
}

// StepResult represents the outcome of executing a command step.
type StepResult struct {
	// StepID is the ID of the step this result belongs to.
	StepID string `json:"step_id"`

	// Status indicates whether the execution succeeded or failed.
	Status StepStatus `json:"status"`

	// StartedAt is when the execution started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the execution completed.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total execution time.
	Duration time.Duration `json:"duration"`

	// Stderr holds the tail of the external process diagnostics.
	Stderr string `json:"stderr,omitempty"`

	// Error is the error that occurred, if any.
	Error *EngineError `json:"error,omitempty"`
}

// Plan is the ordered, relative-path command list produced by a recipe.
type Plan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`

	// Project is the project name the plan was written for.
	Project string `json:"project"`

	// Recipe names the recipe that produced the plan.
	Recipe string `json:"recipe"`

	// WorkDir is the absolute folder the plan's relative paths resolve against.
	// It is never written into the script.
	WorkDir string `json:"work_dir"`

	// CreatedAt is when the plan was created.
	CreatedAt time.Time `json:"created_at"`

	// Artifacts are files materialized or reused before any step runs.
	Artifacts []string `json:"artifacts,omitempty"`

	// Reused lists intermediate artifacts whose producing step was skipped.
	Reused []string `json:"reused,omitempty"`

	// Steps are the command steps in emission order.
	Steps []CommandStep `json:"steps"`

	// ResultFiles are the artifacts read back by the results assembler.
	ResultFiles []string `json:"result_files"`

	// Graph is the DAG representation of the plan.
	Graph *ExecutionGraph `json:"graph,omitempty"`

	// Metadata contains additional plan metadata (sky name, hours, grid sizes).
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ExecutionGraph represents the DAG of command steps.
type ExecutionGraph struct {
	// Nodes maps step IDs to their graph nodes.
	Nodes map[string]*GraphNode `json:"nodes"`

	// Edges lists all dependency edges in the graph.
	Edges []GraphEdge `json:"edges"`

	// Roots are the step IDs with no dependencies.
	Roots []string `json:"roots"`

	// Depth is the maximum depth of the graph.
	Depth int `json:"depth"`
}

// GraphNode represents a node in the execution graph.
type GraphNode struct {
	// ID is the step ID.
	ID string `json:"id"`

	// Level is the topological level (depth from roots).
	Level int `json:"level"`

	// Dependencies are the incoming edges (steps this depends on).
	Dependencies []string `json:"dependencies"`

	// Dependents are the outgoing edges (steps that depend on this).
	Dependents []string `json:"dependents"`
}

// GraphEdge represents an edge in the execution graph.
type GraphEdge struct {
	// From is the producing step ID.
	From string `json:"from"`

	// To is the consuming step ID.
	To string `json:"to"`

	// Artifact is the relative path that links the two steps.
	Artifact string `json:"artifact"`
}

// Run represents an execution run of a plan.
type Run struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`

	// PlanID is the ID of the plan being executed.
	PlanID string `json:"plan_id"`

	// Project is the project name of the plan.
	Project string `json:"project"`

	// Status is the current status of the run.
	Status RunStatus `json:"status"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run completed.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Duration is the total run duration.
	Duration time.Duration `json:"duration"`

	// Summary provides statistics about the run.
	Summary RunSummary `json:"summary"`

	// Error holds the failure message of a failed run.
	Error string `json:"error,omitempty"`
}

// Completed reports whether the run finished successfully.
func (r *Run) Completed() bool {
	return r != nil && r.Status == RunStatusSucceeded
}

// RunSummary provides statistics about a run.
type RunSummary struct {
	// Total is the total number of steps.
	Total int `json:"total"`

	// Succeeded is the number of steps that succeeded.
	Succeeded int `json:"succeeded"`

	// Failed is the number of steps that failed.
	Failed int `json:"failed"`

	// Skipped is the number of steps never started after a failure.
	Skipped int `json:"skipped"`

	// Pending is the number of steps still pending.
	Pending int `json:"pending"`
}
