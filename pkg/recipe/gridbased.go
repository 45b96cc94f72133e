package recipe

import (
	"context"
	"io"
	"path"

	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/grid"
	"github.com/openfroyo/daylight/pkg/params"
	"github.com/openfroyo/daylight/pkg/radiance"
	"github.com/openfroyo/daylight/pkg/results"
	"github.com/openfroyo/daylight/pkg/sky"
)

// GridBased traces the grids directly against a single static sky.
type GridBased struct {
	base
	sky sky.StaticSky

	// Parameters are the rtrace parameters. Irradiance calculation is set
	// from the simulation type when the plan is written.
	Parameters *params.Set
}

// NewGridBased validates the inputs of a grid-based recipe. The sky must be
// a static sky, written once as a scene file.
func NewGridBased(s sky.Sky, grids []*grid.AnalysisGrid, scene Scene, t SimulationType) (*GridBased, error) {
	b, err := newBase(s, grids, scene, t)
	if err != nil {
		return nil, err
	}
	static, ok := s.(sky.StaticSky)
	if !ok {
		return nil, engine.NewConfigurationError("grid-based recipe needs a static sky", nil).
			WithCode(engine.ErrCodeInvalidSky).
			WithResource(s.Name())
	}
	p, err := params.GridBased(params.QualityLow)
	if err != nil {
		return nil, err
	}
	return &GridBased{base: b, sky: static, Parameters: p}, nil
}

// Name returns "GridBased".
func (r *GridBased) Name() string { return "GridBased" }

// Hours returns the hour the results are reported at.
func (r *GridBased) Hours() []int {
	if pit, ok := r.sky.(*sky.PointInTime); ok {
		return []int{pit.Hour}
	}
	return []int{0}
}

// Write plans sky file, octree, point tracing and conversion.
func (r *GridBased) Write(_ context.Context, target, project string) (*Output, error) {
	plan, layout, scene, err := r.begin(r.Name(), target, project)
	if err != nil {
		return nil, err
	}

	skyRel := path.Join(SkiesDir, r.sky.Name()+".rad")
	if err := writeArtifact(layout, skyRel, func(w io.Writer) error { return r.sky.Render(w) }); err != nil {
		return nil, err
	}
	plan.AddArtifact(skyRel)
	plan.Metadata["sky"] = r.sky.Name()

	p, err := irradiance(r.Parameters, r.simType)
	if err != nil {
		return nil, err
	}

	octree := path.Join(ObjectsDir, project+".oct")
	raw := path.Join(ResultsDir, project+".res")
	final := path.Join(ResultsDir, project+".ill")

	plan.AddStep(radiance.Oconv(octree, append([]string{skyRel}, scene...)...))
	plan.AddStep(radiance.Rtrace(p, octree, project+".pts", raw))
	plan.AddStep(radiance.Rcalc(r.simType.Factor(), raw, final))
	plan.ResultFiles = []string{final}

	return r.finish(plan, layout, r.Hours(), results.Combined)
}
