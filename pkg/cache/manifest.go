// Package cache decides whether a previously produced artifact can be reused.
//
// Validity is structural: a sidecar manifest next to the artifact records the
// exact request (hour set, density, point count, tracing parameters) that
// produced it. Content is never hashed. Reuse requires an exact key match; any
// difference, including a reordered hour list, forces regeneration.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ManifestVersion is the current manifest format version. Manifests written
// with another version never match.
const ManifestVersion = 1

// ManifestSuffix is appended to an artifact path to locate its sidecar.
const ManifestSuffix = ".manifest"

// ErrNoManifest is returned when an artifact has no sidecar manifest.
var ErrNoManifest = errors.New("manifest not found")

// Manifest is a parsed sidecar manifest.
type Manifest struct {
	Version int
	Key     string
}

// Encode renders the manifest as its single newline-terminated line.
func (m Manifest) Encode() []byte {
	return []byte(fmt.Sprintf("v%d:%s\n", m.Version, m.Key))
}

// Line returns the current-version manifest line for key, without the
// trailing newline.
func Line(key string) string {
	return strings.TrimSuffix(string(Manifest{Version: ManifestVersion, Key: key}.Encode()), "\n")
}

// DecodeManifest parses a sidecar manifest. The data must be exactly one
// line terminated by a single newline.
func DecodeManifest(data []byte) (Manifest, error) {
	body, ok := bytes.CutSuffix(data, []byte("\n"))
	if !ok {
		return Manifest{}, fmt.Errorf("manifest is not newline-terminated")
	}
	if bytes.ContainsAny(body, "\r\n") {
		return Manifest{}, fmt.Errorf("manifest is not a single line")
	}
	line := string(body)
	if !strings.HasPrefix(line, "v") {
		return Manifest{}, fmt.Errorf("manifest has no version field")
	}
	version, key, ok := strings.Cut(line[1:], ":")
	if !ok {
		return Manifest{}, fmt.Errorf("manifest has no key separator")
	}
	n, err := strconv.Atoi(version)
	if err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest version %q: %w", version, err)
	}
	return Manifest{Version: n, Key: key}, nil
}

// ManifestPath returns the default sidecar path of an artifact.
func ManifestPath(artifact string) string {
	return artifact + ManifestSuffix
}

// WriteManifest writes a current-version manifest for key at path.
func WriteManifest(path, key string) error {
	m := Manifest{Version: ManifestVersion, Key: key}
	if err := os.WriteFile(path, m.Encode(), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest reads the manifest at path.
func ReadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, ErrNoManifest
		}
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	return DecodeManifest(data)
}
