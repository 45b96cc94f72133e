package stores

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/daylight/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), MemoryPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newRun(id, planID, project string, started time.Time) *engine.Run {
	return &engine.Run{
		ID:        id,
		PlanID:    planID,
		Project:   project,
		Status:    engine.RunStatusPending,
		StartedAt: started,
		Summary:   engine.RunSummary{Total: 2, Pending: 2},
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	// Migrating twice is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected database file: %v", err)
	}

	if _, err := NewSQLiteStore(Config{}); !engine.IsConfiguration(err) {
		t.Errorf("expected configuration error for empty path, got %v", err)
	}
}

func TestRunOperations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	run := newRun("run-1", "plan-1", "office", started)
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != engine.RunStatusPending || got.Project != "office" || got.PlanID != "plan-1" {
		t.Errorf("unexpected run %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("Expected started_at %v, got %v", started, got.StartedAt)
	}
	if got.CompletedAt != nil {
		t.Errorf("expected no completion time, got %v", got.CompletedAt)
	}

	completed := started.Add(90 * time.Second)
	run.Status = engine.RunStatusFailed
	run.CompletedAt = &completed
	run.Duration = 90 * time.Second
	run.Summary = engine.RunSummary{Total: 2, Succeeded: 1, Failed: 1}
	run.Error = "rfluxmtx exited with status 1"
	if err := store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun failed: %v", err)
	}

	got, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != engine.RunStatusFailed || got.Error != run.Error {
		t.Errorf("unexpected run after update %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Errorf("Expected completed_at %v, got %v", completed, got.CompletedAt)
	}
	if got.Duration != 90*time.Second || got.Summary.Failed != 1 || got.Summary.Succeeded != 1 {
		t.Errorf("unexpected summary %+v duration %v", got.Summary, got.Duration)
	}

	invalid := newRun("run-2", "plan-1", "office", started)
	invalid.Status = "cancelled"
	if err := store.CreateRun(ctx, invalid); !engine.IsValidation(err) {
		t.Errorf("expected validation error for unknown status, got %v", err)
	}
}

func TestRunNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["GetRun"] = store.GetRun(ctx, "missing")
	_, checks["LatestRun"] = store.LatestRun(ctx, "missing")
	_, checks["LatestProjectRun"] = store.LatestProjectRun(ctx, "missing")
	checks["UpdateRun"] = store.UpdateRun(ctx, newRun("missing", "p", "x", time.Now()))
	checks["DeleteRun"] = store.DeleteRun(ctx, "missing")

	for name, err := range checks {
		if !engine.IsState(err) {
			t.Errorf("%s: expected state error, got %v", name, err)
			continue
		}
		if ee, ok := err.(*engine.EngineError); !ok || ee.Code != engine.ErrCodeNotFound {
			t.Errorf("%s: expected NOT_FOUND code, got %v", name, err)
		}
	}
}

func TestLatestRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	runs := []*engine.Run{
		newRun("a", "plan-1", "office", base),
		newRun("b", "plan-1", "office", base.Add(time.Hour)),
		newRun("c", "plan-2", "office", base.Add(2*time.Hour)),
		newRun("d", "plan-3", "lobby", base.Add(3*time.Hour)),
	}
	for _, r := range runs {
		if err := store.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun %s failed: %v", r.ID, err)
		}
	}

	tests := []struct {
		name  string
		query func() (*engine.Run, error)
		want  string
	}{
		{"by plan", func() (*engine.Run, error) { return store.LatestRun(ctx, "plan-1") }, "b"},
		{"by project", func() (*engine.Run, error) { return store.LatestProjectRun(ctx, "office") }, "c"},
		{"other project", func() (*engine.Run, error) { return store.LatestProjectRun(ctx, "lobby") }, "d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.query()
			if err != nil {
				t.Fatalf("query failed: %v", err)
			}
			if got.ID != tt.want {
				t.Errorf("Expected run %s, got %s", tt.want, got.ID)
			}
		})
	}

	all, err := store.ListRuns(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(all) != 4 || all[0].ID != "d" {
		t.Errorf("expected 4 runs newest first, got %d", len(all))
	}
	page, err := store.ListRuns(ctx, "office", 2, 1)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(page) != 2 || page[0].ID != "b" || page[1].ID != "a" {
		t.Errorf("unexpected page %v", page)
	}
}

func TestStepOperations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, newRun("run-1", "plan-1", "office", time.Now())); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	sky := &engine.CommandStep{
		ID: "s1", Stage: engine.StageSky, Program: "gendaymtx",
		Args: []string{"-m", "1", "skies/a.wea"}, Output: "skies/a.smx", Stdout: true,
		Status: engine.StepStatusRunning,
	}
	if err := store.RecordStep(ctx, "run-1", sky); err != nil {
		t.Fatalf("RecordStep failed: %v", err)
	}

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sky.Status = engine.StepStatusSucceeded
	sky.ExecutionOrder = 0
	sky.Result = &engine.StepResult{
		StepID: "s1", Status: engine.StepStatusSucceeded,
		StartedAt: start, CompletedAt: start.Add(2 * time.Second), Duration: 2 * time.Second,
	}
	if err := store.RecordStep(ctx, "run-1", sky); err != nil {
		t.Fatalf("RecordStep update failed: %v", err)
	}

	rflux := &engine.CommandStep{
		ID: "s2", Stage: engine.StageMatrix, Program: "rfluxmtx", Output: "results/matrix/office_1_3.dc",
		Status: engine.StepStatusFailed, ExecutionOrder: 1,
		Result: &engine.StepResult{
			StepID: "s2", Status: engine.StepStatusFailed, Stderr: "fatal - cannot open octree",
			Error: engine.NewArtifactError("step failed", nil).WithCode(engine.ErrCodeExternalFailed),
		},
	}
	if err := store.RecordStep(ctx, "run-1", rflux); err != nil {
		t.Fatalf("RecordStep failed: %v", err)
	}

	steps, err := store.ListSteps(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("Expected 2 steps, got %d", len(steps))
	}
	if steps[0].StepID != "s1" || steps[0].Status != engine.StepStatusSucceeded {
		t.Errorf("unexpected first step %+v", steps[0])
	}
	if steps[0].CommandLine != "gendaymtx -m 1 skies/a.wea > skies/a.smx" {
		t.Errorf("unexpected command line %q", steps[0].CommandLine)
	}
	if steps[0].Duration != 2*time.Second || steps[0].StartedAt == nil || !steps[0].StartedAt.Equal(start) {
		t.Errorf("unexpected timing %+v", steps[0])
	}
	if steps[1].ErrorCode != engine.ErrCodeExternalFailed || steps[1].Stderr == "" {
		t.Errorf("expected failure details, got %+v", steps[1])
	}

	if err := store.RecordStep(ctx, "run-1", &engine.CommandStep{ID: "s3", Status: "lost"}); !engine.IsValidation(err) {
		t.Errorf("expected validation error for unknown step status, got %v", err)
	}

	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	steps, err = store.ListSteps(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("expected steps to be deleted with their run, got %d", len(steps))
	}
}

type touchExecutor struct{}

func (touchExecutor) Execute(_ context.Context, workDir string, step *engine.CommandStep) (*engine.StepResult, error) {
	now := time.Now()
	if err := os.WriteFile(filepath.Join(workDir, step.Output), []byte("ok\n"), 0o644); err != nil {
		return nil, err
	}
	return &engine.StepResult{StepID: step.ID, StartedAt: now, CompletedAt: time.Now()}, nil
}

func (touchExecutor) Exists(_ context.Context, workDir, artifact string) (bool, error) {
	_, err := os.Stat(filepath.Join(workDir, artifact))
	return err == nil, nil
}

func TestRunnerRecordsIntoStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "sky.rad"), []byte("void glow g 0 0 4 1 1 1 0\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	plan := engine.NewPlan("office", "GridBased", dir)
	plan.AddArtifact("sky.rad")
	plan.AddStep(engine.CommandStep{Stage: engine.StageOctree, Program: "oconv", Args: []string{"sky.rad"},
		Inputs: []string{"sky.rad"}, Output: "office.oct", Stdout: true})
	plan.AddStep(engine.CommandStep{Stage: engine.StageRaytrace, Program: "rtrace", Args: []string{"office.oct"},
		Inputs: []string{"office.oct"}, Output: "office.res", Stdout: true})

	run, err := engine.NewRunner(touchExecutor{}, engine.WithRunStore(store)).Run(ctx, plan)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	stored, err := store.LatestRun(ctx, plan.ID)
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if stored.ID != run.ID || stored.Status != engine.RunStatusSucceeded || stored.Summary.Succeeded != 2 {
		t.Errorf("unexpected stored run %+v", stored)
	}
	steps, err := store.ListSteps(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}
	if len(steps) != 2 || steps[0].Program != "oconv" || steps[1].Program != "rtrace" {
		t.Errorf("unexpected stored steps %+v", steps)
	}
}
