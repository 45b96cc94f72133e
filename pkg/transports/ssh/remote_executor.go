package ssh

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/daylight/pkg/engine"
)

// maxStderr bounds the diagnostics kept on a step result.
const maxStderr = 4096

// DefaultSyncDirs are the cache folders pulled back after a run so the next
// plan can reuse matrices built on the host.
var DefaultSyncDirs = []string{"skies", "results/matrix"}

// RemoteExecutor runs plan steps on a render host. A local work dir maps to
// a folder of the same base name under Root on the host.
type RemoteExecutor struct {
	transport Transport

	// Root is the host folder project folders are staged under.
	Root string

	// SyncDirs are pulled back after the result files when they exist.
	SyncDirs []string
}

// NewRemoteExecutor creates an executor staging projects under root.
func NewRemoteExecutor(transport Transport, root string) *RemoteExecutor {
	return &RemoteExecutor{
		transport: transport,
		Root:      root,
		SyncDirs:  DefaultSyncDirs,
	}
}

// RemoteDir returns the host folder of a local work dir.
func (e *RemoteExecutor) RemoteDir(workDir string) string {
	return path.Join(e.Root, filepath.Base(filepath.Clean(workDir)))
}

// Execute runs the step's command line inside the remote work dir.
func (e *RemoteExecutor) Execute(ctx context.Context, workDir string, step *engine.CommandStep) (*engine.StepResult, error) {
	if step.Program == "" {
		return nil, engine.NewConfigurationError("command is required", nil).WithResource(step.ID)
	}

	res, err := e.transport.Run(ctx, e.RemoteDir(workDir), step.CommandLine())
	if res == nil {
		return nil, engine.NewArtifactError(fmt.Sprintf("failed to execute %s remotely", step.Program), err).
			WithCode(engine.ErrCodeExternalFailed).WithResource(step.Output)
	}

	result := &engine.StepResult{
		StepID:      step.ID,
		StartedAt:   res.StartedAt,
		CompletedAt: res.FinishedAt,
		Duration:    res.Duration,
		Stderr:      tail(res.Stderr, maxStderr),
		Status:      engine.StepStatusSucceeded,
	}
	if err != nil {
		result.Status = engine.StepStatusFailed
		return result, engine.NewArtifactError(fmt.Sprintf("failed to execute %s remotely", step.Program), err).
			WithCode(engine.ErrCodeExternalFailed).WithResource(step.Output)
	}
	if res.ExitCode != 0 {
		result.Status = engine.StepStatusFailed
		return result, engine.NewArtifactError(
			fmt.Sprintf("%s exited with code %d", step.Program, res.ExitCode), nil,
		).WithCode(engine.ErrCodeExternalFailed).WithResource(step.Output).WithDetail("stderr", result.Stderr)
	}
	return result, nil
}

// Exists reports whether the artifact exists in the remote work dir.
func (e *RemoteExecutor) Exists(ctx context.Context, workDir, artifact string) (bool, error) {
	return e.transport.Exists(ctx, path.Join(e.RemoteDir(workDir), filepath.ToSlash(artifact)))
}

// Push uploads the project folder.
func (e *RemoteExecutor) Push(ctx context.Context, workDir string) error {
	remote := e.RemoteDir(workDir)
	log.Info().Str("local", workDir).Str("remote", remote).Msg("Staging project on render host")
	return e.transport.UploadDirectory(ctx, workDir, remote)
}

// Pull downloads the result files, then the cache folders.
func (e *RemoteExecutor) Pull(ctx context.Context, workDir string, artifacts []string) error {
	remote := e.RemoteDir(workDir)
	for _, a := range artifacts {
		rel := filepath.ToSlash(a)
		if err := e.transport.DownloadFile(ctx, path.Join(remote, rel), filepath.Join(workDir, filepath.FromSlash(rel))); err != nil {
			return err
		}
	}
	for _, dir := range e.SyncDirs {
		src := path.Join(remote, dir)
		ok, err := e.transport.Exists(ctx, src)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := e.transport.DownloadDirectory(ctx, src, filepath.Join(workDir, filepath.FromSlash(dir))); err != nil {
			return err
		}
	}
	log.Info().Str("remote", remote).Int("files", len(artifacts)).Msg("Results collected from render host")
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
