package sky

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/openfroyo/daylight/pkg/engine"
)

// SunRequest describes one hour for the sun generator. Longitude and
// Meridian are east-positive degrees, as stored on the weather location.
type SunRequest struct {
	Month     int
	Day       int
	Hour      float64
	Direct    float64
	Diffuse   float64
	Latitude  float64
	Longitude float64
	Meridian  float64
	Rotation  float64
}

// GendaylitArgs returns the generator arguments. The generator expects
// west-positive longitude and meridian.
func (r SunRequest) GendaylitArgs() []string {
	return []string{
		fmt.Sprint(r.Month), fmt.Sprint(r.Day), ftoa(r.Hour),
		"-a", ftoa(r.Latitude),
		"-o", ftoa(-r.Longitude),
		"-m", ftoa(-r.Meridian),
		"-W", ftoa(r.Direct), ftoa(r.Diffuse),
	}
}

// SunGenerator produces the textual sun description for one hour.
type SunGenerator interface {
	Generate(ctx context.Context, req SunRequest) ([]string, error)
}

// GendaylitGenerator runs gendaylit, piped through xform when the scene is
// rotated.
type GendaylitGenerator struct {
	Gendaylit string
	Xform     string
}

// NewGendaylitGenerator returns a generator using the tools found on PATH.
func NewGendaylitGenerator() *GendaylitGenerator {
	return &GendaylitGenerator{Gendaylit: "gendaylit", Xform: "xform"}
}

// Generate runs the generator for req and returns its output lines.
func (g *GendaylitGenerator) Generate(ctx context.Context, req SunRequest) ([]string, error) {
	out, err := g.run(ctx, exec.CommandContext(ctx, g.Gendaylit, req.GendaylitArgs()...), nil)
	if err != nil {
		return nil, err
	}
	if req.Rotation != 0 {
		out, err = g.run(ctx, exec.CommandContext(ctx, g.Xform, "-rz", ftoa(req.Rotation)), out)
		if err != nil {
			return nil, err
		}
	}
	return strings.Split(strings.TrimRight(string(out), "\n"), "\n"), nil
}

func (g *GendaylitGenerator) run(ctx context.Context, cmd *exec.Cmd, stdin []byte) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, engine.NewArtifactError("sun generator failed", err).
			WithCode(engine.ErrCodeExternalFailed).
			WithResource(cmd.Path).
			WithDetail("stderr", strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
