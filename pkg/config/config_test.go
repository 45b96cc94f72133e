package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/params"
	"github.com/openfroyo/daylight/pkg/recipe"
	"github.com/openfroyo/daylight/pkg/sky"
)

const testWea = `place Boston
latitude 42.37
longitude 71.03
time_zone 75
site_elevation 5.0
weather_data_file_units 1
1 1 11.500 800 100
1 1 12.500 700 90
`

const baseRecipe = `
project: office
target: out
recipe: daylight-coefficient
sky:
  kind: sky-matrix
  weather: boston.wea
  hours: [11, 12]
  density: 1
grids:
  - name: floor
    points:
      - [0, 0, 0.8]
      - [1, 0, 0.8, 0, 0, 1]
  - name: desk
    file: desk.pts
scene:
  materials: [materials.mat]
  geometry: [room.rad]
`

// writeProject writes the files a recipe refers to and returns the folder.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	defaults := map[string]string{
		"boston.wea":    testWea,
		"desk.pts":      "0.5 0.5 0.75\n",
		"materials.mat": "void plastic white 0 0 5 0.5 0.5 0.5 0 0\n",
		"room.rad":      "white polygon floor 0 0 12 0 0 0 1 0 0 1 1 0 0 1 0\n",
	}
	for name, content := range files {
		defaults[name] = content
	}
	for name, content := range defaults {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoader_LoadYAML(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  bool
		wantCode string
	}{
		{name: "valid", content: baseRecipe},
		{
			name:     "unknown field",
			content:  baseRecipe + "colour: blue\n",
			wantErr:  true,
			wantCode: engine.ErrCodeInvalidRecipe,
		},
		{
			name:     "sky does not fit recipe",
			content:  strings.Replace(baseRecipe, "recipe: daylight-coefficient", "recipe: direct-sun", 1),
			wantErr:  true,
			wantCode: engine.ErrCodeInvalidRecipe,
		},
		{
			name:     "unknown simulation type",
			content:  baseRecipe + "type: 4\n",
			wantErr:  true,
			wantCode: engine.ErrCodeInvalidRecipe,
		},
		{
			name:     "hour outside the year",
			content:  strings.Replace(baseRecipe, "hours: [11, 12]", "hours: [11, 8760]", 1),
			wantErr:  true,
			wantCode: engine.ErrCodeInvalidRecipe,
		},
		{
			name:     "point with two values",
			content:  strings.Replace(baseRecipe, "[0, 0, 0.8]", "[0, 0]", 1),
			wantErr:  true,
			wantCode: engine.ErrCodeInvalidRecipe,
		},
		{
			name: "no grids",
			content: `
project: office
target: out
recipe: grid-based
sky: {kind: certain-illuminance, illuminance: 10000}
`,
			wantErr:  true,
			wantCode: engine.ErrCodeInvalidRecipe,
		},
		{
			name: "point in time without hour",
			content: `
project: office
target: out
recipe: grid-based
sky: {kind: point-in-time, weather: boston.wea}
grids: [{name: floor, points: [[0, 0, 1]]}]
`,
			wantErr:  true,
			wantCode: engine.ErrCodeInvalidRecipe,
		},
		{
			name:     "duplicate grid names",
			content:  strings.Replace(baseRecipe, "name: desk", "name: floor", 1),
			wantErr:  true,
			wantCode: engine.ErrCodeInvalidRecipe,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeProject(t, map[string]string{"recipe.yaml": tt.content})
			f, err := NewLoader().Load(context.Background(), filepath.Join(dir, "recipe.yaml"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !engine.IsConfiguration(err) {
					t.Errorf("expected a configuration error, got %v", err)
				}
				if code := engine.ErrorCode(err); code != tt.wantCode {
					t.Errorf("expected code %s, got %s", tt.wantCode, code)
				}
				return
			}
			if f.Project != "office" || f.Sky.Density != 1 || len(f.Grids) != 2 {
				t.Errorf("unexpected recipe %+v", f)
			}
		})
	}
}

func TestLoader_ResolvesPaths(t *testing.T) {
	dir := writeProject(t, map[string]string{"recipe.yml": baseRecipe})
	f, err := NewLoader().Load(context.Background(), filepath.Join(dir, "recipe.yml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := map[string]string{
		"target":  filepath.Join(dir, "out"),
		"weather": filepath.Join(dir, "boston.wea"),
		"grid":    filepath.Join(dir, "desk.pts"),
		"scene":   filepath.Join(dir, "room.rad"),
	}
	got := map[string]string{
		"target":  f.Target,
		"weather": f.Sky.Weather,
		"grid":    f.Grids[1].File,
		"scene":   f.Scene.Geometry[0],
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if f.BaseDir() != dir {
		t.Errorf("expected base dir %s, got %s", dir, f.BaseDir())
	}
	if !f.ReuseEnabled() {
		t.Error("expected reuse by default")
	}
}

func TestLoader_LoadCUE(t *testing.T) {
	content := `
project: "office"
target:  "out"
recipe:  "grid-based"
type:    2

_lux: 10000
sky: {
	kind:        "certain-illuminance"
	illuminance: _lux
}

grids: [{
	name: "floor"
	points: [ for x in [0, 1, 2] {[x, 0, 0.8]}]
}]

parameters: {
	quality: 1
	values: ab: 4
}
reuse: false
`
	dir := writeProject(t, map[string]string{"recipe.cue": content})
	f, err := NewLoader().Load(context.Background(), filepath.Join(dir, "recipe.cue"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Recipe != KindGridBased || f.SimulationType() != recipe.Luminance {
		t.Errorf("unexpected recipe %s type %v", f.Recipe, f.SimulationType())
	}
	if f.Sky.Illuminance != 10000 {
		t.Errorf("expected illuminance 10000, got %v", f.Sky.Illuminance)
	}
	if len(f.Grids[0].Points) != 3 || f.Grids[0].Points[2][0] != 2 {
		t.Errorf("unexpected points %v", f.Grids[0].Points)
	}
	if f.Parameters == nil || f.Parameters.Quality == nil || *f.Parameters.Quality != 1 {
		t.Errorf("unexpected parameters %+v", f.Parameters)
	}
	if f.ReuseEnabled() {
		t.Error("expected reuse to be disabled")
	}
}

func TestCUEParser_Errors(t *testing.T) {
	parser := NewCUEParser(nil)
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `project: "office`},
		{"closed", `project: "office", target: "out", recipe: "grid-based", sky: {kind: "certain-illuminance", illuminance: 1}, extra: 1`},
		{"incomplete", `project: "office", target: "out", recipe: "grid-based", sky: {kind: "certain-illuminance"}`},
		{"bad project", `project: "a/b", target: "out", recipe: "grid-based", sky: {kind: "certain-illuminance", illuminance: 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.ParseInline(context.Background(), tt.content)
			if err == nil {
				t.Fatal("expected an error")
			}
			verrs, ok := err.(ValidationErrors)
			if !ok || len(verrs) == 0 {
				t.Fatalf("expected validation errors, got %T %v", err, err)
			}
		})
	}
}

func TestCUEParser_ExportJSON(t *testing.T) {
	parser := NewCUEParser(nil)
	f, err := parser.ParseInline(context.Background(), `
project: "office"
target: "out"
recipe: "daylight-coefficient"
sky: {kind: "sky-matrix", weather: "boston.wea", density: 2}
grids: [{name: "floor", file: "floor.pts"}]
`)
	if err != nil {
		t.Fatalf("ParseInline failed: %v", err)
	}
	data, err := parser.ExportJSON(f)
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}
	for _, want := range []string{`"recipe": "daylight-coefficient"`, `"density": 2`, `"file": "floor.pts"`} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("expected %s in %s", want, data)
		}
	}
}

func TestSchemaRegistry(t *testing.T) {
	sr := NewSchemaRegistry()
	if got := sr.ListSchemas(); !reflect.DeepEqual(got, []string{"Grid", "Recipe", "Sky"}) {
		t.Errorf("unexpected schemas %v", got)
	}

	ctx := context.Background()
	if err := sr.ValidateAgainstSchema(ctx, "Sky", SkyConfig{Kind: SkyMatrix}); err == nil {
		t.Error("expected a sky matrix without weather to fail")
	}
	if err := sr.ValidateAgainstSchema(ctx, "Sky", SkyConfig{Kind: SkyMatrix, Weather: "a.wea"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := sr.ValidateAgainstSchema(ctx, "Grid", GridConfig{Name: "g", Points: [][]float64{{1, 2, 3, 4}}}); err == nil {
		t.Error("expected a four-value point to fail")
	}
	if err := sr.ValidateAgainstSchema(ctx, "Missing", nil); err == nil {
		t.Error("expected an unknown schema to fail")
	}
	if err := sr.RegisterSchema("Broken", "#Broken: {"); err == nil {
		t.Error("expected a syntax error")
	}
	if err := sr.RegisterSchema("Other", "#Something: int"); err == nil {
		t.Error("expected a schema without its definition to fail")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := writeProject(t, map[string]string{"recipe.yaml": baseRecipe})
	loader := NewLoader()
	f, err := loader.Load(context.Background(), filepath.Join(dir, "recipe.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var buf bytes.Buffer
	if err := Save(&buf, f); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	again, err := loader.LoadYAML(context.Background(), &buf, dir)
	if err != nil {
		t.Fatalf("LoadYAML failed: %v\n%s", err, buf.String())
	}
	if !reflect.DeepEqual(again.Grids, f.Grids) || again.Sky.Weather != f.Sky.Weather {
		t.Errorf("round trip changed the recipe: %+v", again)
	}
}

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]interface{}
		checkFunc func(*testing.T, *StarlarkResult)
		wantErr   bool
	}{
		{
			name:   "simple arithmetic",
			script: "result = 2 + 2\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["result"] != int64(4) {
					t.Errorf("expected result=4, got %v", sr.Output["result"])
				}
			},
		},
		{
			name:   "use input variables",
			script: "doubled = count * 2\n",
			input:  map[string]interface{}{"count": 5},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["doubled"] != int64(10) {
					t.Errorf("expected doubled=10, got %v", sr.Output["doubled"])
				}
			},
		},
		{
			name: "functions and private names are skipped",
			script: `
def half(x):
    return x / 2

_hidden = 1
value = half(3)
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if len(sr.Output) != 1 || sr.Output["value"] != 1.5 {
					t.Errorf("unexpected output %v", sr.Output)
				}
			},
		},
		{
			name:    "syntax error",
			script:  "value = (",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, tt.script, tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if result == nil || result.Error == "" {
					t.Error("expected the error to be reported in the result")
				}
				return
			}
			tt.checkFunc(t, result)
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(50 * time.Millisecond)
	script := `
def spin():
    total = 0
    for i in range(1000000000):
        total += i
    return total

value = spin()
`
	start := time.Now()
	if _, err := evaluator.Evaluate(context.Background(), script, nil); err == nil {
		t.Fatal("expected a timeout")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout took too long")
	}
}

func TestStarlarkEvaluator_EvaluateGrids(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	script := `
def ring(n, r):
    pts = []
    for i in range(n):
        a = 2 * math.pi * i / n
        pts.append([r * math.cos(a), r * math.sin(a), 0.8, 0, 0, 1])
    return pts

grids = [
    struct(name = project + "_ring", points = ring(4, 2.0)),
    {"name": "line", "points": [(x, 0, 1) for x in range(3)]},
    [[0, 0, 0]],
]
`
	grids, err := evaluator.EvaluateGrids(ctx, script, map[string]interface{}{"project": "office"})
	if err != nil {
		t.Fatalf("EvaluateGrids failed: %v", err)
	}
	if len(grids) != 3 {
		t.Fatalf("expected 3 grids, got %d", len(grids))
	}
	names := []string{grids[0].Name, grids[1].Name, grids[2].Name}
	if !reflect.DeepEqual(names, []string{"office_ring", "line", "grid_2"}) {
		t.Errorf("unexpected names %v", names)
	}
	if grids[0].Len() != 4 || grids[1].Len() != 3 {
		t.Errorf("unexpected sizes %d %d", grids[0].Len(), grids[1].Len())
	}
	if p := grids[0].Points[0].Position; p[0] != 2 || p[2] != 0.8 {
		t.Errorf("unexpected first ring point %v", p)
	}
	if d := grids[1].Points[2].Direction; d != [3]float64{0, 0, 1} {
		t.Errorf("expected default direction, got %v", d)
	}

	bad := []struct {
		name   string
		script string
	}{
		{"no grids", "x = 1\n"},
		{"not a list", "grids = 1\n"},
		{"mixed widths", "grids = [[[0, 0, 0], [0, 0, 0, 0, 0, 1]]]\n"},
		{"empty grid", "grids = [[]]\n"},
		{"string coordinate", `grids = [[["a", 0, 0]]]` + "\n"},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evaluator.EvaluateGrids(ctx, tt.script, nil)
			if err == nil {
				t.Fatal("expected an error")
			}
			if engine.ErrorCode(err) != engine.ErrCodeInvalidGrid {
				t.Errorf("expected INVALID_GRID, got %v", err)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	script := "grids = [struct(name = 'scripted', points = [[2, 2, 0.8]])]\n"

	tests := []struct {
		name   string
		recipe string
		check  func(t *testing.T, b *Built)
	}{
		{
			name:   "daylight coefficient",
			recipe: baseRecipe + "reuse: false\n",
			check: func(t *testing.T, b *Built) {
				dc, ok := b.Recipe.(*recipe.DaylightCoefficient)
				if !ok {
					t.Fatalf("expected a daylight coefficient recipe, got %T", b.Recipe)
				}
				if dc.Reuse {
					t.Error("expected reuse to follow the recipe file")
				}
				if m := b.Sky.(*sky.SkyMatrix); m.Density != 1 || m.Hours.Len() != 2 {
					t.Errorf("unexpected sky matrix %+v", m)
				}
				if len(b.Grids) != 2 || b.Grids[1].Len() != 1 {
					t.Errorf("unexpected grids %v", b.Grids)
				}
			},
		},
		{
			name: "grid based with quality and overrides",
			recipe: `
project: office
target: out
recipe: grid-based
sky: {kind: point-in-time, weather: boston.wea, hour: 11, north: 10}
grids: [{name: desk, file: desk.pts}]
grid_script: grids.star
parameters:
  quality: 2
  values: {ab: 5, I: true}
`,
			check: func(t *testing.T, b *Built) {
				gb, ok := b.Recipe.(*recipe.GridBased)
				if !ok {
					t.Fatalf("expected a grid-based recipe, got %T", b.Recipe)
				}
				if v, _ := gb.Parameters.Get(params.AmbientBounces); !v.Equal(params.Int(5)) {
					t.Errorf("expected ab 5, got %v", v)
				}
				if v, _ := gb.Parameters.Get(params.AmbientDivisions); !v.Equal(params.Int(4096)) {
					t.Errorf("expected high quality ad 4096, got %v", v)
				}
				if len(b.Grids) != 2 || b.Grids[1].Name != "scripted" {
					t.Errorf("expected the scripted grid after the file grid, got %v", b.Grids)
				}
				if pit := b.Sky.(*sky.PointInTime); pit.Hour != 11 {
					t.Errorf("expected hour 11, got %d", pit.Hour)
				}
			},
		},
		{
			name: "direct sun over every hour",
			recipe: `
project: office
target: out
recipe: direct-sun
type: 1
sky: {kind: sun-matrix, weather: boston.wea}
grids: [{name: desk, file: desk.pts}]
`,
			check: func(t *testing.T, b *Built) {
				if _, ok := b.Recipe.(*recipe.DirectSun); !ok {
					t.Fatalf("expected a direct sun recipe, got %T", b.Recipe)
				}
				m := b.Sky.(*sky.SunMatrix)
				if m.Hours.Len() != sky.AllHours().Len() {
					t.Errorf("expected every hour, got %d", m.Hours.Len())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeProject(t, map[string]string{"recipe.yaml": tt.recipe, "grids.star": script})
			f, err := NewLoader().Load(ctx, filepath.Join(dir, "recipe.yaml"))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			b, err := Build(ctx, f, BuildOptions{})
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			tt.check(t, b)
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		mutate   func(f *RecipeFile)
		wantCode string
	}{
		{
			name:     "unknown parameter",
			mutate:   func(f *RecipeFile) { f.Parameters = &ParameterConfig{Values: map[string]interface{}{"zz": 1}} },
			wantCode: engine.ErrCodeUnknownParameter,
		},
		{
			name:     "parameter kind",
			mutate:   func(f *RecipeFile) { f.Parameters = &ParameterConfig{Values: map[string]interface{}{"ab": "many"}} },
			wantCode: engine.ErrCodeTypeMismatch,
		},
		{
			name:     "missing weather",
			mutate:   func(f *RecipeFile) { f.Sky.Weather = filepath.Join(f.BaseDir(), "nowhere.wea") },
			wantCode: engine.ErrCodeInvalidPath,
		},
		{
			name:     "missing points file",
			mutate:   func(f *RecipeFile) { f.Grids[1].File = filepath.Join(f.BaseDir(), "nowhere.pts") },
			wantCode: engine.ErrCodeInvalidPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeProject(t, map[string]string{"recipe.yaml": baseRecipe})
			f, err := NewLoader().Load(ctx, filepath.Join(dir, "recipe.yaml"))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(f)
			_, err = Build(ctx, f, BuildOptions{})
			if err == nil {
				t.Fatal("expected an error")
			}
			if !engine.IsConfiguration(err) {
				t.Errorf("expected a configuration error, got %v", err)
			}
			if code := engine.ErrorCode(err); code != tt.wantCode {
				t.Errorf("expected code %s, got %s (%v)", tt.wantCode, code, err)
			}
		})
	}
}
