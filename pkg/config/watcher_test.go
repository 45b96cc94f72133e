package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRecipeFile_Inputs(t *testing.T) {
	dir := writeProject(t, map[string]string{"recipe.yaml": baseRecipe})
	f, err := NewLoader().Load(context.Background(), filepath.Join(dir, "recipe.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := []string{
		filepath.Join(dir, "boston.wea"),
		filepath.Join(dir, "desk.pts"),
		filepath.Join(dir, "materials.mat"),
		filepath.Join(dir, "room.rad"),
	}
	got := f.Inputs()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("input %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := writeProject(t, map[string]string{"recipe.yaml": baseRecipe})
	path := filepath.Join(dir, "recipe.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loads := make(chan *RecipeFile, 8)
	done := make(chan error, 1)
	w := NewWatcher(NewLoader(), path, zerolog.Nop()).WithDelay(20 * time.Millisecond)
	go func() {
		done <- w.Watch(ctx, func(_ context.Context, f *RecipeFile) error {
			loads <- f
			return nil
		})
	}()

	first := waitLoad(t, loads)
	if first.Project != "office" {
		t.Fatalf("unexpected first load %+v", first)
	}

	// Unrelated files in watched folders are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case f := <-loads:
		t.Fatalf("unexpected reload for an unrelated file: %+v", f)
	case <-time.After(200 * time.Millisecond):
	}

	if err := os.WriteFile(filepath.Join(dir, "desk.pts"), []byte("0.5 0.5 0.75\n1 1 0.75\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitLoad(t, loads)

	changed := baseRecipe + "reuse: false\n"
	if err := os.WriteFile(path, []byte(changed), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	second := waitLoad(t, loads)
	if second.ReuseEnabled() {
		t.Error("expected the reloaded recipe to disable reuse")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestWatcher_InitialLoadError(t *testing.T) {
	w := NewWatcher(NewLoader(), filepath.Join(t.TempDir(), "missing.yaml"), zerolog.Nop())
	err := w.Watch(context.Background(), func(context.Context, *RecipeFile) error {
		t.Error("handler must not run")
		return nil
	})
	if err == nil {
		t.Fatal("expected an error for a missing recipe")
	}
}

func waitLoad(t *testing.T, loads <-chan *RecipeFile) *RecipeFile {
	t.Helper()
	select {
	case f := <-loads:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a recipe load")
		return nil
	}
}
