package ssh

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/openfroyo/daylight/pkg/engine"
)

// fakeTransport records calls and returns canned results.
type fakeTransport struct {
	result   *ExecResult
	err      error
	existing map[string]bool

	commands  []string
	dirs      []string
	uploads   []string
	files     []string
	downloads []string
}

func (f *fakeTransport) Run(_ context.Context, dir string, command string) (*ExecResult, error) {
	f.dirs = append(f.dirs, dir)
	f.commands = append(f.commands, command)
	return f.result, f.err
}

func (f *fakeTransport) UploadDirectory(_ context.Context, localPath string, remotePath string) error {
	f.uploads = append(f.uploads, localPath+" -> "+remotePath)
	return nil
}

func (f *fakeTransport) DownloadFile(_ context.Context, remotePath string, localPath string) error {
	f.files = append(f.files, remotePath+" -> "+localPath)
	return nil
}

func (f *fakeTransport) DownloadDirectory(_ context.Context, remotePath string, localPath string) error {
	f.downloads = append(f.downloads, remotePath+" -> "+localPath)
	return nil
}

func (f *fakeTransport) Exists(_ context.Context, remotePath string) (bool, error) {
	return f.existing[remotePath], nil
}

func TestRemoteExecutor_Execute(t *testing.T) {
	started := time.Now()
	step := &engine.CommandStep{
		ID:      "rtrace",
		Program: "rtrace",
		Args:    []string{"-I", "scene.oct"},
		Stdin:   "office.pts",
		Output:  "results/office.res",
		Stdout:  true,
	}

	tests := []struct {
		name       string
		step       *engine.CommandStep
		result     *ExecResult
		err        error
		wantStatus engine.StepStatus
		wantCode   string
		wantClass  func(error) bool
	}{
		{
			name:       "success",
			step:       step,
			result:     &ExecResult{StartedAt: started, FinishedAt: started.Add(time.Second), Duration: time.Second},
			wantStatus: engine.StepStatusSucceeded,
		},
		{
			name:       "non-zero exit",
			step:       step,
			result:     &ExecResult{ExitCode: 2, Stderr: "rtrace: fatal - cannot open octree"},
			wantStatus: engine.StepStatusFailed,
			wantCode:   engine.ErrCodeExternalFailed,
			wantClass:  engine.IsArtifact,
		},
		{
			name:       "transport failure after start",
			step:       step,
			result:     &ExecResult{StartedAt: started},
			err:        &TransportError{Op: "execute", Err: context.DeadlineExceeded},
			wantStatus: engine.StepStatusFailed,
			wantCode:   engine.ErrCodeExternalFailed,
			wantClass:  engine.IsArtifact,
		},
		{
			name:      "no session",
			step:      step,
			err:       &TransportError{Op: "get-client", Err: errors.New("not connected")},
			wantCode:  engine.ErrCodeExternalFailed,
			wantClass: engine.IsArtifact,
		},
		{
			name:      "no program",
			step:      &engine.CommandStep{ID: "empty", Output: "x"},
			wantClass: engine.IsConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{result: tt.result, err: tt.err}
			exec := NewRemoteExecutor(transport, "/srv/daylight")

			res, err := exec.Execute(context.Background(), "/home/me/projects/office", tt.step)
			if tt.wantClass == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			} else if !tt.wantClass(err) {
				t.Fatalf("unexpected error class: %v", err)
			}
			if tt.wantCode != "" && engine.ErrorCode(err) != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, engine.ErrorCode(err))
			}
			if tt.wantStatus != "" {
				if res == nil || res.Status != tt.wantStatus {
					t.Fatalf("expected status %s, got %+v", tt.wantStatus, res)
				}
				if res.StepID != tt.step.ID {
					t.Errorf("expected step id %s, got %s", tt.step.ID, res.StepID)
				}
			}
			if tt.step.Program != "" {
				if len(transport.dirs) != 1 || transport.dirs[0] != "/srv/daylight/office" {
					t.Errorf("unexpected remote dir %v", transport.dirs)
				}
				if transport.commands[0] != tt.step.CommandLine() {
					t.Errorf("expected command %q, got %q", tt.step.CommandLine(), transport.commands[0])
				}
			}
		})
	}
}

func TestRemoteExecutor_StderrDetail(t *testing.T) {
	long := make([]byte, maxStderr+100)
	for i := range long {
		long[i] = 'e'
	}
	transport := &fakeTransport{result: &ExecResult{ExitCode: 1, Stderr: string(long)}}
	exec := NewRemoteExecutor(transport, "root")

	res, err := exec.Execute(context.Background(), "office", &engine.CommandStep{ID: "s", Program: "rcollate", Output: "out"})
	var ee *engine.EngineError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EngineError, got %v", err)
	}
	if ee.Resource != "out" {
		t.Errorf("expected resource out, got %s", ee.Resource)
	}
	if len(res.Stderr) != maxStderr || ee.Details["stderr"] != res.Stderr {
		t.Errorf("expected stderr tail of %d bytes, got %d", maxStderr, len(res.Stderr))
	}
}

func TestRemoteExecutor_Staging(t *testing.T) {
	workDir := filepath.Join(t.TempDir(), "office")
	transport := &fakeTransport{existing: map[string]bool{
		"/srv/daylight/office/results/office.ill": true,
		"/srv/daylight/office/skies":              true,
	}}
	exec := NewRemoteExecutor(transport, "/srv/daylight")
	ctx := context.Background()

	if err := exec.Push(ctx, workDir); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if want := []string{workDir + " -> /srv/daylight/office"}; !reflect.DeepEqual(transport.uploads, want) {
		t.Errorf("expected uploads %v, got %v", want, transport.uploads)
	}

	ok, err := exec.Exists(ctx, workDir, "results/office.ill")
	if err != nil || !ok {
		t.Errorf("expected artifact to exist, got %v, %v", ok, err)
	}

	if err := exec.Pull(ctx, workDir, []string{"results/office.ill"}); err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	wantFiles := []string{"/srv/daylight/office/results/office.ill -> " + filepath.Join(workDir, "results", "office.ill")}
	if !reflect.DeepEqual(transport.files, wantFiles) {
		t.Errorf("expected files %v, got %v", wantFiles, transport.files)
	}
	// results/matrix does not exist on the host and is skipped.
	wantDirs := []string{"/srv/daylight/office/skies -> " + filepath.Join(workDir, "skies")}
	if !reflect.DeepEqual(transport.downloads, wantDirs) {
		t.Errorf("expected directories %v, got %v", wantDirs, transport.downloads)
	}
}

func TestRemoteExecutor_RunsPlanOverSSH(t *testing.T) {
	client := connectedClient(t)
	ctx := context.Background()

	workDir := filepath.Join(t.TempDir(), "office")
	writeTree(t, workDir, map[string]string{"office.pts": "0 0 0.8 0 0 1\n1 0 0.8 0 0 1\n"})

	plan := engine.NewPlan("office", "daylight_coefficient", workDir)
	plan.AddArtifact("office.pts")
	plan.AddStep(engine.CommandStep{
		Stage:        engine.StageMatrix,
		Program:      "cat",
		Stdin:        "office.pts",
		Inputs:       []string{"office.pts"},
		Output:       "results/matrix/office.dc",
		Stdout:       true,
		Manifest:     "results/matrix/office.key",
		ManifestLine: "v1:office",
	})
	plan.AddStep(engine.CommandStep{
		Stage:   engine.StageConvert,
		Program: "wc",
		Args:    []string{"-l"},
		Stdin:   "results/matrix/office.dc",
		Inputs:  []string{"results/matrix/office.dc"},
		Output:  "results/office.ill",
		Stdout:  true,
	})
	plan.ResultFiles = []string{"results/office.ill"}

	// The steps write into results/, which must exist on the host.
	if err := os.MkdirAll(filepath.Join(workDir, "results", "matrix"), 0755); err != nil {
		t.Fatal(err)
	}

	exec := NewRemoteExecutor(client, client.config.RemoteRoot)
	run, err := engine.NewRunner(exec).Run(ctx, plan)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if run.Status != engine.RunStatusSucceeded || run.Summary.Succeeded != 2 {
		t.Fatalf("unexpected run %+v", run.Summary)
	}

	remote := filepath.Join(client.config.RemoteRoot, "office")
	if _, err := os.Stat(filepath.Join(remote, "results", "office.ill")); err != nil {
		t.Errorf("result missing on host: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(workDir, "results", "office.ill"))
	if err != nil {
		t.Fatalf("result not pulled: %v", err)
	}
	if string(data) != "2\n" && string(data) != "       2\n" {
		t.Errorf("unexpected result %q", data)
	}
	key, err := os.ReadFile(filepath.Join(workDir, "results", "matrix", "office.key"))
	if err != nil || string(key) != "v1:office\n" {
		t.Errorf("manifest not synced back: %q, %v", key, err)
	}
}
