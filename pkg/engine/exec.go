package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// maxStderr bounds the diagnostics kept on a step result.
const maxStderr = 4096

// LocalExecutor runs command steps through the local shell.
type LocalExecutor struct {
	// Shell is the interpreter used for command lines. Defaults to /bin/sh.
	Shell string

	// Env is appended to the current process environment.
	Env []string
}

// NewLocalExecutor creates an executor using /bin/sh.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{Shell: "/bin/sh"}
}

// Execute runs the step's command line in workDir.
func (e *LocalExecutor) Execute(ctx context.Context, workDir string, step *CommandStep) (*StepResult, error) {
	if step.Program == "" {
		return nil, NewConfigurationError("command is required", nil).WithResource(step.ID)
	}

	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", step.CommandLine())
	cmd.Dir = workDir
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	result := &StepResult{
		StepID:    step.ID,
		StartedAt: time.Now(),
	}
	err := cmd.Run()
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	result.Stderr = tail(stderr.String(), maxStderr)

	if err != nil {
		result.Status = StepStatusFailed
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return result, NewArtifactError(
				fmt.Sprintf("%s exited with code %d", step.Program, exitErr.ExitCode()), err,
			).WithCode(ErrCodeExternalFailed).WithResource(step.Output).WithDetail("stderr", result.Stderr)
		}
		return result, NewArtifactError(fmt.Sprintf("failed to execute %s", step.Program), err).
			WithCode(ErrCodeExternalFailed).WithResource(step.Output)
	}

	result.Status = StepStatusSucceeded
	return result, nil
}

// Exists reports whether the artifact exists under workDir.
func (e *LocalExecutor) Exists(_ context.Context, workDir, artifact string) (bool, error) {
	_, err := os.Stat(filepath.Join(workDir, filepath.FromSlash(artifact)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
