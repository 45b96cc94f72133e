package recipe

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/openfroyo/daylight/pkg/cache"
	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/grid"
	"github.com/openfroyo/daylight/pkg/params"
	"github.com/openfroyo/daylight/pkg/radiance"
	"github.com/openfroyo/daylight/pkg/results"
	"github.com/openfroyo/daylight/pkg/sky"
)

// ReceiverName is the sky receiver file used for daylight coefficients.
const ReceiverName = "rfluxSky.rad"

// DaylightCoefficient computes a daylight coefficient matrix once and
// multiplies it with a sky matrix for every requested hour.
type DaylightCoefficient struct {
	base
	sky *sky.SkyMatrix

	// Parameters are the rfluxmtx parameters.
	Parameters *params.Set

	// Reuse serves the sky matrix and daylight matrix from earlier plans
	// when their manifests match.
	Reuse bool

	// Recorder observes cache lookups.
	Recorder cache.Recorder
}

// NewDaylightCoefficient validates the inputs. The sky must be a sky matrix.
func NewDaylightCoefficient(s sky.Sky, grids []*grid.AnalysisGrid, scene Scene, t SimulationType) (*DaylightCoefficient, error) {
	b, err := newBase(s, grids, scene, t)
	if err != nil {
		return nil, err
	}
	m, ok := s.(*sky.SkyMatrix)
	if !ok {
		return nil, engine.NewConfigurationError("daylight coefficient recipe needs a sky matrix", nil).
			WithCode(engine.ErrCodeInvalidSky).
			WithResource(s.Name())
	}
	return &DaylightCoefficient{base: b, sky: m, Parameters: params.Rfluxmtx(), Reuse: true}, nil
}

// Name returns "DaylightCoefficient".
func (r *DaylightCoefficient) Name() string { return "DaylightCoefficient" }

// MatrixPath returns the relative path of the daylight matrix. The name
// encodes the project, sky density and total point count.
func (r *DaylightCoefficient) MatrixPath(project string) string {
	return path.Join(MatrixDir, fmt.Sprintf("%s_%d_%d.dc", project, r.sky.Density, r.points()))
}

// Write plans the sky matrix, the daylight matrix, their product and the
// conversion. Matrices with a matching manifest are reused instead of
// regenerated.
func (r *DaylightCoefficient) Write(_ context.Context, target, project string) (*Output, error) {
	plan, layout, scene, err := r.begin(r.Name(), target, project)
	if err != nil {
		return nil, err
	}
	policy := cache.NewPolicy(r.Reuse)
	policy.Recorder = r.Recorder

	smx := *r.sky
	smx.Solar = r.simType == Radiation
	hours := smx.Hours.Hours()
	plan.Metadata["sky"] = smx.Name()
	plan.Metadata["hours"] = len(hours)

	weaAbs, err := smx.WriteWea(layout.Path(SkiesDir))
	if err != nil {
		return nil, err
	}
	weaRel := path.Join(SkiesDir, filepath.Base(weaAbs))
	plan.AddArtifact(weaRel)

	smxRel := path.Join(SkiesDir, smx.Name()+".smx")
	if err := addCached(plan, policy, layout, smxRel, smx.Hours.Key(),
		radiance.Gendaymtx(smx.GendaymtxArgs(weaRel), weaRel, smxRel)); err != nil {
		return nil, err
	}

	receiver := path.Join(SkiesDir, ReceiverName)
	if err := writeArtifact(layout, receiver, func(w io.Writer) error { return smx.WriteReceiver(w) }); err != nil {
		return nil, err
	}
	plan.AddArtifact(receiver)

	p, err := irradiance(r.Parameters, r.simType)
	if err != nil {
		return nil, err
	}
	dc := r.MatrixPath(project)
	key := cache.MatrixKey(project, smx.Density, r.points(), p.String())
	if err := addCached(plan, policy, layout, dc, key,
		radiance.Rfluxmtx(p, r.points(), project+".pts", receiver, scene, dc)); err != nil {
		return nil, err
	}

	tmp := path.Join(TmpDir, r.simType.String()+".tmp")
	final := path.Join(ResultsDir, r.simType.String()+".ill")
	plan.AddStep(radiance.Dctimestep(dc, smxRel, tmp))
	plan.AddStep(radiance.Rmtxop(r.simType.Factor(), tmp, final))
	plan.ResultFiles = []string{final}

	return r.finish(plan, layout, hours, results.Combined)
}

// addCached adds step unless the artifact at rel is reusable for key. A step
// that runs records its manifest only after it succeeds; any stale manifest
// is removed now.
func addCached(plan *engine.Plan, policy *cache.Policy, layout Layout, rel, key string, step engine.CommandStep) error {
	abs := layout.Path(rel)
	if policy.IsReusable(abs, key) {
		plan.AddReused(rel)
		return nil
	}
	if err := policy.Forget(abs); err != nil {
		return engine.NewArtifactError("failed to invalidate cache", err).WithResource(rel)
	}
	step.Manifest = cache.ManifestPath(rel)
	step.ManifestLine = cache.Line(key)
	plan.AddStep(step)
	return nil
}
