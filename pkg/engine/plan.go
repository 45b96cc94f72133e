package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScriptName is the file name of the generated execution script.
const ScriptName = "commands.sh"

// NewPlan creates an empty plan rooted at workDir.
func NewPlan(project, recipe, workDir string) *Plan {
	return &Plan{
		ID:        uuid.New().String(),
		Project:   project,
		Recipe:    recipe,
		WorkDir:   workDir,
		CreatedAt: time.Now(),
		Steps:     make([]CommandStep, 0),
		Metadata:  make(map[string]interface{}),
	}
}

// AddArtifact records a file materialized before any step runs.
func (p *Plan) AddArtifact(rel string) {
	p.Artifacts = appendUnique(p.Artifacts, rel)
}

// AddReused records an intermediate artifact whose producing step was skipped.
// The artifact is available to later steps like any materialized file.
func (p *Plan) AddReused(rel string) {
	p.Reused = appendUnique(p.Reused, rel)
	p.AddArtifact(rel)
}

// AddStep appends a command step, assigning an ID and pending status.
func (p *Plan) AddStep(step CommandStep) *CommandStep {
	if step.ID == "" {
		step.ID = uuid.New().String()
	}
	step.Status = StepStatusPending
	p.Steps = append(p.Steps, step)
	return &p.Steps[len(p.Steps)-1]
}

// Step returns the step with the given ID.
func (p *Plan) Step(id string) (*CommandStep, bool) {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// Validate checks the plan for portability and ordering.
// Every path must be relative and stay inside the work dir, stages must
// appear in dependency order, and every input must be a materialized
// artifact or the output of an earlier step.
func (p *Plan) Validate() error {
	if p == nil {
		return NewConfigurationError("plan is nil", nil)
	}

	available := make(map[string]bool)
	for _, a := range p.Artifacts {
		if err := checkRelative(a); err != nil {
			return err
		}
		available[a] = true
	}
	for _, r := range p.ResultFiles {
		if err := checkRelative(r); err != nil {
			return err
		}
	}

	lastRank := -1
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Program == "" {
			return NewConfigurationError("command step has no program", nil).WithResource(step.ID)
		}
		if err := step.Stage.Validate(); err != nil {
			return err
		}
		if rank := step.Stage.Rank(); rank < lastRank {
			return NewValidationError(
				fmt.Sprintf("stage %s emitted after a later stage", step.Stage), nil,
			).WithCode(ErrCodeOutOfRange).WithResource(step.ID)
		} else {
			lastRank = rank
		}

		for _, in := range step.Inputs {
			if err := checkRelative(in); err != nil {
				return err
			}
			if !available[in] {
				return NewStateError(
					fmt.Sprintf("input %s is read before any step produces it", in), nil,
				).WithCode(ErrCodeMissingArtifact).WithResource(step.ID)
			}
		}
		if step.Stdin != "" {
			if err := checkRelative(step.Stdin); err != nil {
				return err
			}
		}
		if step.Output == "" {
			return NewConfigurationError("command step declares no output", nil).WithResource(step.ID)
		}
		if err := checkRelative(step.Output); err != nil {
			return err
		}
		if step.Manifest != "" {
			if err := checkRelative(step.Manifest); err != nil {
				return err
			}
		}
		available[step.Output] = true
	}

	return nil
}

// BuildDAG creates the dependency graph for plan execution and attaches it.
func (p *Plan) BuildDAG() (*DAGBuilder, error) {
	builder := NewDAGBuilder()
	graph, err := builder.BuildGraph(p.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to build DAG: %w", err)
	}

	if err := builder.ValidateGraph(graph); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}

	p.Graph = graph
	return builder, nil
}

// WriteScript writes the plan as a portable shell script. Each command line
// is preceded by a comment describing its stage; paths are relative to the
// script's own folder.
func (p *Plan) WriteScript(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "#!/bin/sh")
	fmt.Fprintf(bw, "# %s recipe for %s\n", p.Recipe, p.Project)
	fmt.Fprintln(bw, "set -e")
	fmt.Fprintln(bw, `cd "$(dirname "$0")"`)
	for _, r := range p.Reused {
		fmt.Fprintf(bw, "# reusing %s\n", r)
	}
	for i := range p.Steps {
		step := &p.Steps[i]
		fmt.Fprintln(bw)
		fmt.Fprintf(bw, "# %s: %s\n", step.Stage, step.Description)
		fmt.Fprintln(bw, step.CommandLine())
	}
	return bw.Flush()
}

// SaveScript writes the script into the plan's work dir and returns its path.
func (p *Plan) SaveScript() (string, error) {
	scriptPath := filepath.Join(p.WorkDir, ScriptName)
	f, err := os.OpenFile(scriptPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return "", fmt.Errorf("failed to create script: %w", err)
	}
	defer f.Close()

	if err := p.WriteScript(f); err != nil {
		return "", fmt.Errorf("failed to write script: %w", err)
	}
	return scriptPath, nil
}

// CommandLine renders the step as a single shell command line.
func (s *CommandStep) CommandLine() string {
	parts := make([]string, 0, len(s.Args)+5)
	parts = append(parts, s.Program)
	for _, a := range s.Args {
		parts = append(parts, shellQuote(a))
	}
	if s.Stdin != "" {
		parts = append(parts, "<", shellQuote(s.Stdin))
	}
	if s.Stdout {
		parts = append(parts, ">", shellQuote(s.Output))
	}
	if s.Manifest != "" {
		parts = append(parts, "&&", "printf", `'%s\n'`, shellQuote(s.ManifestLine), ">", shellQuote(s.Manifest))
	}
	return strings.Join(parts, " ")
}

func checkRelative(p string) error {
	if p == "" {
		return NewConfigurationError("empty artifact path", nil).WithCode(ErrCodeInvalidPath)
	}
	if filepath.IsAbs(p) || path.IsAbs(p) {
		return NewConfigurationError("artifact path must be relative", nil).
			WithCode(ErrCodeInvalidPath).WithResource(p)
	}
	if clean := path.Clean(filepath.ToSlash(p)); clean == ".." || strings.HasPrefix(clean, "../") {
		return NewConfigurationError("artifact path escapes the work dir", nil).
			WithCode(ErrCodeInvalidPath).WithResource(p)
	}
	return nil
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_./=+:,@%", r):
		default:
			safe = false
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
