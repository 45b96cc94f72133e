package cache

import (
	"os"
	"path/filepath"
	"testing"
)

type countingRecorder struct {
	hits, misses int
}

func (c *countingRecorder) RecordCacheLookup(_ string, hit bool) {
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("data\n"), 0o644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}
	return path
}

func TestPolicy_ExactMatch(t *testing.T) {
	dir := t.TempDir()
	artifact := writeArtifact(t, dir, "sky.smx")
	policy := NewPolicy(true)

	key := HoursKey([]int{10, 11, 12})
	if err := policy.Commit(artifact, key); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	tests := []struct {
		name  string
		hours []int
		want  bool
	}{
		{"same hours", []int{10, 11, 12}, true},
		{"permutation", []int{12, 11, 10}, false},
		{"subset", []int{10, 11}, false},
		{"superset", []int{10, 11, 12, 13}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.IsReusable(artifact, HoursKey(tt.hours)); got != tt.want {
				t.Errorf("IsReusable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_Disabled(t *testing.T) {
	dir := t.TempDir()
	artifact := writeArtifact(t, dir, "a.dc")
	if err := NewPolicy(true).Commit(artifact, "k"); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	if NewPolicy(false).IsReusable(artifact, "k") {
		t.Error("Disabled policy must never reuse")
	}
}

func TestPolicy_MissingArtifactOrManifest(t *testing.T) {
	dir := t.TempDir()
	policy := NewPolicy(true)

	missing := filepath.Join(dir, "missing.dc")
	if err := WriteManifest(ManifestPath(missing), "k"); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	if policy.IsReusable(missing, "k") {
		t.Error("Artifact without file must not be reusable")
	}

	bare := writeArtifact(t, dir, "bare.dc")
	if policy.IsReusable(bare, "k") {
		t.Error("Artifact without manifest must not be reusable")
	}
}

func TestPolicy_VersionMismatch(t *testing.T) {
	dir := t.TempDir()
	artifact := writeArtifact(t, dir, "sun.mtx")
	old := Manifest{Version: ManifestVersion + 1, Key: "1,2,3"}
	if err := os.WriteFile(ManifestPath(artifact), old.Encode(), 0o644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	if NewPolicy(true).IsReusable(artifact, "1,2,3") {
		t.Error("Manifest of another format version must not match")
	}

	if err := os.WriteFile(ManifestPath(artifact), []byte("1,2,3\n"), 0o644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	if NewPolicy(true).IsReusable(artifact, "1,2,3") {
		t.Error("Unversioned manifest must not match")
	}
}

func TestPolicy_CheckSharedManifest(t *testing.T) {
	dir := t.TempDir()
	ann := writeArtifact(t, dir, "s.ann")
	sun := writeArtifact(t, dir, "s.sun")
	mtx := filepath.Join(dir, "s.mtx")
	manifest := filepath.Join(dir, "s.hrs")
	if err := WriteManifest(manifest, "5,6"); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	rec := &countingRecorder{}
	policy := &Policy{Recorder: rec}
	if policy.Check(manifest, "5,6", ann, sun, mtx) {
		t.Error("Missing member artifact must force regeneration")
	}
	writeArtifact(t, dir, "s.mtx")
	if !policy.Check(manifest, "5,6", ann, sun, mtx) {
		t.Error("Expected reuse once all artifacts exist")
	}
	if rec.hits != 1 || rec.misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", rec.hits, rec.misses)
	}
}

func TestManifest_Encode(t *testing.T) {
	m := Manifest{Version: 1, Key: HoursKey([]int{10, 11, 12})}
	if string(m.Encode()) != "v1:10,11,12\n" {
		t.Errorf("Unexpected encoding %q", m.Encode())
	}
	decoded, err := DecodeManifest(m.Encode())
	if err != nil || decoded != m {
		t.Errorf("Expected %+v, got %+v (%v)", m, decoded, err)
	}
}

func TestDecodeManifest_ExactLine(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{name: "newline terminated", data: "v1:10,11\n"},
		{name: "no trailing newline", data: "v1:10,11", wantErr: true},
		{name: "crlf", data: "v1:10,11\r\n", wantErr: true},
		{name: "two newlines", data: "v1:10,11\n\n", wantErr: true},
		{name: "second line", data: "v1:10,11\nv1:12\n", wantErr: true},
		{name: "empty", data: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeManifest([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q, got %+v", tt.data, m)
				}
				return
			}
			if err != nil || m.Key != "10,11" || m.Version != 1 {
				t.Errorf("Unexpected result %+v (%v)", m, err)
			}
		})
	}
}

func TestPolicy_RejectsUnterminatedManifest(t *testing.T) {
	dir := t.TempDir()
	artifact := writeArtifact(t, dir, "sky.smx")
	if err := os.WriteFile(ManifestPath(artifact), []byte(Line("1,2")), 0o644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	if NewPolicy(true).IsReusable(artifact, "1,2") {
		t.Error("Expected a manifest without its newline to miss")
	}
}

func TestMatrixKey(t *testing.T) {
	if got := MatrixKey("office", 2, 120, "-I+ -ab 6"); got != "office_2_120;-I+ -ab 6" {
		t.Errorf("Unexpected key %q", got)
	}
	if MatrixKey("office", 2, 120, "-I+ -ab 6") == MatrixKey("office", 2, 120, "-I- -ab 6") {
		t.Error("Expected the irradiance switch to change the key")
	}
}

func TestCoefficientKey(t *testing.T) {
	key := CoefficientKey([]int{10, 11}, 4, "-I+ -ab 0")
	if key != "10,11:4;-I+ -ab 0" {
		t.Errorf("Unexpected key %q", key)
	}
	m, err := DecodeManifest([]byte(Line(key) + "\n"))
	if err != nil || m.Key != key || m.Version != ManifestVersion {
		t.Errorf("Expected key %q to survive the manifest line, got %+v (%v)", key, m, err)
	}
}

func TestPolicy_Forget(t *testing.T) {
	dir := t.TempDir()
	artifact := writeArtifact(t, dir, "sky.smx")
	p := NewPolicy(true)
	if err := p.Commit(artifact, "1,2"); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if !p.IsReusable(artifact, "1,2") {
		t.Fatal("Expected committed artifact to be reusable")
	}
	if err := p.Forget(artifact); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if p.IsReusable(artifact, "1,2") {
		t.Error("Forgotten artifact must not be reusable")
	}
	if err := p.Forget(artifact); err != nil {
		t.Errorf("Forget of a missing manifest should succeed, got %v", err)
	}
}
