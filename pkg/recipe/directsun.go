package recipe

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/daylight/pkg/cache"
	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/grid"
	"github.com/openfroyo/daylight/pkg/params"
	"github.com/openfroyo/daylight/pkg/radiance"
	"github.com/openfroyo/daylight/pkg/results"
	"github.com/openfroyo/daylight/pkg/sky"
)

// DirectSun computes the direct sun contribution from a discrete sun
// matrix: one coefficient per sun, multiplied with the sun matrix.
type DirectSun struct {
	base
	sky *sky.SunMatrix

	// Parameters are the rcontrib parameters.
	Parameters *params.Set

	// Reuse serves the sun matrix and sun coefficients from earlier plans
	// when their manifests match.
	Reuse bool

	// Recorder observes cache lookups.
	Recorder cache.Recorder
}

// NewDirectSun validates the inputs. The sky must be a sun matrix.
func NewDirectSun(s sky.Sky, grids []*grid.AnalysisGrid, scene Scene, t SimulationType) (*DirectSun, error) {
	b, err := newBase(s, grids, scene, t)
	if err != nil {
		return nil, err
	}
	m, ok := s.(*sky.SunMatrix)
	if !ok {
		return nil, engine.NewConfigurationError("direct sun recipe needs a sun matrix", nil).
			WithCode(engine.ErrCodeInvalidSky).
			WithResource(s.Name())
	}
	return &DirectSun{base: b, sky: m, Parameters: params.Rcontrib(), Reuse: true}, nil
}

// Name returns "DirectSun".
func (r *DirectSun) Name() string { return "DirectSun" }

// Write builds the sun matrix, then plans the octree of scene and suns, the
// sun coefficients, their product with the sun matrix and the conversion.
// Building the sun matrix runs the sun generator and blocks until done.
func (r *DirectSun) Write(ctx context.Context, target, project string) (*Output, error) {
	plan, layout, scene, err := r.begin(r.Name(), target, project)
	if err != nil {
		return nil, err
	}

	art, err := r.sky.Build(ctx, layout.Path(SkiesDir), r.Reuse)
	if err != nil {
		return nil, err
	}
	ann, sun, mtx := skyRel(art.Analemma), skyRel(art.SunList), skyRel(art.Matrix)
	for _, rel := range []string{ann, sun, mtx} {
		plan.AddArtifact(rel)
	}
	hours := r.sky.Hours.Hours()
	plan.Metadata["sky"] = r.sky.Name()
	plan.Metadata["hours"] = len(hours)
	plan.Metadata["suns"] = art.Suns

	final := path.Join(ResultsDir, "direct_"+r.simType.String()+".ill")
	plan.ResultFiles = []string{final}

	if art.Suns == 0 {
		// No sun is above the horizon in any requested hour.
		log.Info().Str("project", project).Msg("No sun retained, writing zero results")
		if err := writeArtifact(layout, final, func(w io.Writer) error {
			return writeZeros(w, r.points(), len(hours))
		}); err != nil {
			return nil, err
		}
		plan.AddArtifact(final)
		return r.finish(plan, layout, hours, results.Combined)
	}

	octree := path.Join(ObjectsDir, project+"_sun.oct")
	plan.AddStep(radiance.Oconv(octree, append(append([]string(nil), scene...), ann)...))

	p, err := irradiance(r.Parameters, r.simType)
	if err != nil {
		return nil, err
	}
	// Coefficients are only reusable against the very suns they were traced for.
	policy := cache.NewPolicy(r.Reuse && art.Reused)
	policy.Recorder = r.Recorder
	dc := path.Join(MatrixDir, fmt.Sprintf("%s_sun_%d.dc", project, r.points()))
	if err := addCached(plan, policy, layout, dc, cache.CoefficientKey(hours, r.points(), p.String()),
		radiance.Rcontrib(p, r.points(), project+".pts", sun, octree, dc)); err != nil {
		return nil, err
	}

	tmp := path.Join(TmpDir, "direct_"+r.simType.String()+".tmp")
	plan.AddStep(radiance.Dctimestep(dc, mtx, tmp))
	plan.AddStep(radiance.Rmtxop(r.simType.Factor(), tmp, final))

	return r.finish(plan, layout, hours, results.Combined)
}

func skyRel(abs string) string {
	return path.Join(SkiesDir, filepath.Base(abs))
}

func writeZeros(w io.Writer, rows, cols int) error {
	line := strings.TrimSpace(strings.Repeat("0 ", cols)) + "\n"
	for i := 0; i < rows; i++ {
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}
