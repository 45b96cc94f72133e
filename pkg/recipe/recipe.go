// Package recipe turns a sky, analysis grids and a scene into an ordered plan
// of external commands, written as a portable script under a project folder.
package recipe

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/grid"
	"github.com/openfroyo/daylight/pkg/params"
	"github.com/openfroyo/daylight/pkg/radiance"
	"github.com/openfroyo/daylight/pkg/results"
	"github.com/openfroyo/daylight/pkg/sky"
)

var validate = validator.New()

// Recipe plans a simulation and reads its results back.
type Recipe interface {
	// Name identifies the recipe in plans and logs.
	Name() string

	// Write materializes inputs under target/project and writes the script.
	Write(ctx context.Context, target, project string) (*Output, error)

	// Results loads the output files of the last written plan into the grids.
	Results(run *engine.Run) ([]*grid.AnalysisGrid, error)
}

// SimulationType selects the quantity computed at the sensor points.
type SimulationType int

const (
	// Illuminance in lux.
	Illuminance SimulationType = 0

	// Radiation in W/m2. Needs a climate-based sky.
	Radiation SimulationType = 1

	// Luminance in cd/m2.
	Luminance SimulationType = 2
)

// Validate checks the type is one of the known codes.
func (t SimulationType) Validate() error {
	if err := validate.Var(int(t), "oneof=0 1 2"); err != nil {
		return engine.NewValidationError(fmt.Sprintf("unknown simulation type %d", int(t)), err).
			WithCode(engine.ErrCodeOutOfRange)
	}
	return nil
}

// String returns the quantity name.
func (t SimulationType) String() string {
	switch t {
	case Illuminance:
		return "illuminance"
	case Radiation:
		return "radiation"
	case Luminance:
		return "luminance"
	default:
		return fmt.Sprintf("type%d", int(t))
	}
}

// Factor is the scale applied after photometric weighting.
func (t SimulationType) Factor() float64 {
	if t == Radiation {
		return 1
	}
	return radiance.LuminousEfficacy
}

// Scene references the material and geometry files of the model. Files are
// copied into the objects folder when a plan is written.
type Scene struct {
	Materials []string `json:"materials,omitempty" yaml:"materials,omitempty"`
	Geometry  []string `json:"geometry,omitempty" yaml:"geometry,omitempty"`
}

// Files returns materials then geometry.
func (s Scene) Files() []string {
	return append(append([]string(nil), s.Materials...), s.Geometry...)
}

// Project folder layout, relative to the project root.
const (
	TmpDir     = ".tmp"
	ObjectsDir = "objects"
	SkiesDir   = "skies"
	ResultsDir = "results"
	MatrixDir  = "results/matrix"
)

// Layout is the folder tree of one project.
type Layout struct {
	Root string
}

// NewLayout returns the layout of project under target.
func NewLayout(target, project string) Layout {
	return Layout{Root: filepath.Join(target, project)}
}

// Create makes every folder of the layout.
func (l Layout) Create() error {
	for _, dir := range []string{TmpDir, ObjectsDir, SkiesDir, ResultsDir, MatrixDir} {
		if err := os.MkdirAll(l.Path(dir), 0o755); err != nil {
			return engine.NewArtifactError("failed to create project folder", err).WithResource(dir)
		}
	}
	return nil
}

// Path resolves a slash-separated relative path against the root.
func (l Layout) Path(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// Output is a written plan plus what is needed to read its results.
type Output struct {
	Plan        *engine.Plan   `json:"plan"`
	ScriptPath  string         `json:"script_path"`
	ResultFiles []string       `json:"result_files"`
	Hours       []int          `json:"hours"`
	Layout      results.Layout `json:"layout"`
	Factor      float64        `json:"factor"`
}

// Collect reads the result files into grids. It fails with a state error
// until run has succeeded.
func (o *Output) Collect(run *engine.Run, grids []*grid.AnalysisGrid) error {
	if o == nil {
		return engine.NewStateError("no plan has been written", nil).WithCode(engine.ErrCodeNotExecuted)
	}
	return results.NewAssembler(o.Factor).Collect(run, grids, o.ResultFiles, o.Hours, o.Layout)
}

// base carries the inputs and plan plumbing shared by every recipe.
type base struct {
	grids   []*grid.AnalysisGrid
	scene   Scene
	simType SimulationType
	output  *Output
}

func newBase(s sky.Sky, grids []*grid.AnalysisGrid, scene Scene, t SimulationType) (base, error) {
	if s == nil {
		return base{}, engine.NewConfigurationError("recipe needs a sky", nil).WithCode(engine.ErrCodeInvalidSky)
	}
	if len(grids) == 0 {
		return base{}, engine.NewConfigurationError("recipe needs at least one analysis grid", nil).
			WithCode(engine.ErrCodeInvalidGrid)
	}
	for i, g := range grids {
		if g == nil || g.Len() == 0 {
			return base{}, engine.NewConfigurationError(fmt.Sprintf("analysis grid %d is empty", i), nil).
				WithCode(engine.ErrCodeInvalidGrid)
		}
	}
	if err := t.Validate(); err != nil {
		return base{}, err
	}
	if t == Radiation && !s.IsClimateBased() {
		return base{}, engine.NewValidationError("radiation needs a climate-based sky", nil).
			WithCode(engine.ErrCodeInvalidSky).
			WithResource(s.Name())
	}
	return base{grids: grids, scene: scene, simType: t}, nil
}

// Results loads the last written plan's output files into the grids.
func (b *base) Results(run *engine.Run) ([]*grid.AnalysisGrid, error) {
	if b.output == nil {
		return nil, engine.NewStateError("results requested before the recipe was written", nil).
			WithCode(engine.ErrCodeNotExecuted)
	}
	if err := b.output.Collect(run, b.grids); err != nil {
		return nil, err
	}
	return b.grids, nil
}

func (b *base) points() int {
	return grid.TotalPoints(b.grids)
}

// begin creates the project folders and the plan, and materializes the
// points file and scene files.
func (b *base) begin(recipe, target, project string) (*engine.Plan, Layout, []string, error) {
	if project == "" || strings.ContainsAny(project, `/\`) || project == "." || project == ".." {
		return nil, Layout{}, nil, engine.NewConfigurationError(fmt.Sprintf("invalid project name %q", project), nil).
			WithCode(engine.ErrCodeInvalidPath)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, Layout{}, nil, engine.NewConfigurationError("invalid target folder", err).
			WithCode(engine.ErrCodeInvalidPath)
	}
	layout := NewLayout(abs, project)
	if err := layout.Create(); err != nil {
		return nil, Layout{}, nil, err
	}
	plan := engine.NewPlan(project, recipe, layout.Root)

	pts := project + ".pts"
	if err := writeArtifact(layout, pts, func(w io.Writer) error {
		return grid.WritePoints(w, b.grids...)
	}); err != nil {
		return nil, Layout{}, nil, err
	}
	plan.AddArtifact(pts)

	sizes := make([]int, len(b.grids))
	for i, g := range b.grids {
		sizes[i] = g.Len()
	}
	plan.Metadata["points"] = b.points()
	plan.Metadata["grid_sizes"] = sizes
	plan.Metadata["simulation_type"] = b.simType.String()

	scene, err := copyScene(layout, b.scene)
	if err != nil {
		return nil, Layout{}, nil, err
	}
	for _, rel := range scene {
		plan.AddArtifact(rel)
	}
	return plan, layout, scene, nil
}

// finish validates the plan, writes the script and records the output.
func (b *base) finish(plan *engine.Plan, layout Layout, hours []int, kind results.Layout) (*Output, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if _, err := plan.BuildDAG(); err != nil {
		return nil, err
	}
	scriptPath, err := plan.SaveScript()
	if err != nil {
		return nil, engine.NewArtifactError("failed to save script", err).WithResource(engine.ScriptName)
	}

	files := make([]string, len(plan.ResultFiles))
	for i, rel := range plan.ResultFiles {
		files[i] = layout.Path(rel)
	}
	out := &Output{
		Plan:        plan,
		ScriptPath:  scriptPath,
		ResultFiles: files,
		Hours:       append([]int(nil), hours...),
		Layout:      kind,
		Factor:      b.simType.Factor(),
	}
	b.output = out

	log.Info().
		Str("recipe", plan.Recipe).
		Str("project", plan.Project).
		Int("steps", len(plan.Steps)).
		Int("reused", len(plan.Reused)).
		Str("script", scriptPath).
		Msg("Recipe written")
	return out, nil
}

// irradiance returns p with irradiance calculation matching the type.
func irradiance(p *params.Set, t SimulationType) (*params.Set, error) {
	if !p.Registered(params.IrradianceCalculation) {
		return p, nil
	}
	return p.With(params.IrradianceCalculation, params.Bool(t != Luminance))
}

func copyScene(layout Layout, scene Scene) ([]string, error) {
	var rels []string
	seen := map[string]string{}
	for _, src := range scene.Files() {
		name := filepath.Base(src)
		if prev, ok := seen[name]; ok {
			return nil, engine.NewConfigurationError(
				fmt.Sprintf("scene files %s and %s share a name", prev, src), nil,
			).WithCode(engine.ErrCodeInvalidPath)
		}
		seen[name] = src

		data, err := os.ReadFile(src)
		if err != nil {
			return nil, engine.NewConfigurationError("failed to read scene file", err).
				WithCode(engine.ErrCodeInvalidPath).WithResource(src)
		}
		rel := path.Join(ObjectsDir, name)
		if err := os.WriteFile(layout.Path(rel), data, 0o644); err != nil {
			return nil, engine.NewArtifactError("failed to copy scene file", err).WithResource(rel)
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

func writeArtifact(layout Layout, rel string, fill func(w io.Writer) error) error {
	f, err := os.Create(layout.Path(rel))
	if err != nil {
		return engine.NewArtifactError("failed to create artifact", err).WithResource(rel)
	}
	if err := fill(f); err != nil {
		f.Close()
		return engine.NewArtifactError("failed to write artifact", err).WithResource(rel)
	}
	if err := f.Close(); err != nil {
		return engine.NewArtifactError("failed to close artifact", err).WithResource(rel)
	}
	return nil
}
