package cache

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Recorder observes cache decisions.
type Recorder interface {
	RecordCacheLookup(kind string, hit bool)
}

// Policy is a conservative, exact-match reuse policy.
type Policy struct {
	// Disabled turns off reuse for this run; every lookup misses.
	Disabled bool

	// Recorder, if set, is told about every lookup.
	Recorder Recorder
}

// NewPolicy returns a policy with reuse enabled or disabled.
func NewPolicy(reuse bool) *Policy {
	return &Policy{Disabled: !reuse}
}

// IsReusable reports whether artifactPath can be served for key. The
// artifact and its sidecar must exist, the sidecar must be the current
// format version, and its key must equal key exactly.
func (p *Policy) IsReusable(artifactPath, key string) bool {
	return p.Check(ManifestPath(artifactPath), key, artifactPath)
}

// Check is IsReusable for artifacts sharing one explicit manifest path.
// Every listed artifact must exist.
func (p *Policy) Check(manifestPath, key string, artifacts ...string) bool {
	hit := p.check(manifestPath, key, artifacts)
	if p != nil && p.Recorder != nil {
		p.Recorder.RecordCacheLookup(kindOf(artifacts), hit)
	}
	log.Debug().Str("manifest", manifestPath).Bool("hit", hit).Msg("Cache lookup")
	return hit
}

func (p *Policy) check(manifestPath, key string, artifacts []string) bool {
	if p == nil || p.Disabled {
		return false
	}
	for _, a := range artifacts {
		if !fileExists(a) {
			return false
		}
	}
	m, err := ReadManifest(manifestPath)
	if err != nil {
		if !errors.Is(err, ErrNoManifest) {
			log.Warn().Err(err).Str("manifest", manifestPath).Msg("Ignoring unreadable manifest")
		}
		return false
	}
	return m.Version == ManifestVersion && m.Key == key
}

// Commit records key as the producer of artifactPath.
func (p *Policy) Commit(artifactPath, key string) error {
	return WriteManifest(ManifestPath(artifactPath), key)
}

// Forget removes the sidecar of artifactPath so a partially regenerated
// artifact is never served.
func (p *Policy) Forget(artifactPath string) error {
	if err := os.Remove(ManifestPath(artifactPath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	return nil
}

// HoursKey is the manifest key of an hour set: comma-joined decimal hours in
// request order.
func HoursKey(hours []int) string {
	parts := make([]string, len(hours))
	for i, h := range hours {
		parts[i] = strconv.Itoa(h)
	}
	return strings.Join(parts, ",")
}

// MatrixKey is the manifest key of an intermediate matrix traced with the
// serialized tracing parameters.
func MatrixKey(project string, density, points int, parameters string) string {
	return fmt.Sprintf("%s_%d_%d;%s", project, density, points, parameters)
}

// CoefficientKey is the manifest key of a coefficient matrix computed for an
// hour set and point count with the serialized tracing parameters.
func CoefficientKey(hours []int, points int, parameters string) string {
	return fmt.Sprintf("%s:%d;%s", HoursKey(hours), points, parameters)
}

func kindOf(artifacts []string) string {
	if len(artifacts) == 0 {
		return "unknown"
	}
	a := artifacts[len(artifacts)-1]
	if i := strings.LastIndexByte(a, '.'); i >= 0 && i < len(a)-1 {
		return a[i+1:]
	}
	return "unknown"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
