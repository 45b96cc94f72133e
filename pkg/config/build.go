package config

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/grid"
	"github.com/openfroyo/daylight/pkg/params"
	"github.com/openfroyo/daylight/pkg/recipe"
	"github.com/openfroyo/daylight/pkg/sky"
	"github.com/openfroyo/daylight/pkg/weather"
)

// BuildOptions are the collaborators handed to the built recipe.
type BuildOptions struct {
	// Recorder observes cache lookups and sun matrix builds. May be nil.
	Recorder sky.Recorder

	// Generator replaces gendaylit as the sun generator of sun matrices.
	Generator sky.SunGenerator

	// Starlark runs grid scripts. Defaults to a 30 second limit.
	Starlark *StarlarkEvaluator
}

// Built is a recipe file turned into a recipe ready to be written.
type Built struct {
	File       *RecipeFile
	Recipe     recipe.Recipe
	Sky        sky.Sky
	Grids      []*grid.AnalysisGrid
	Parameters *params.Set
}

// Build loads the grids, weather and sky of a validated recipe file and
// constructs its recipe. Constructor errors surface here, before any plan
// is written.
func Build(ctx context.Context, f *RecipeFile, opts BuildOptions) (*Built, error) {
	grids, err := loadGrids(ctx, f, opts.Starlark)
	if err != nil {
		return nil, err
	}
	s, err := buildSky(f.Sky, opts)
	if err != nil {
		return nil, err
	}

	var r recipe.Recipe
	var p *params.Set
	switch f.Recipe {
	case KindGridBased:
		gb, err := recipe.NewGridBased(s, grids, f.Scene, f.SimulationType())
		if err != nil {
			return nil, err
		}
		if gb.Parameters, err = applyParameters(gb.Parameters, f.Parameters); err != nil {
			return nil, err
		}
		r, p = gb, gb.Parameters
	case KindDaylightCoefficient:
		dc, err := recipe.NewDaylightCoefficient(s, grids, f.Scene, f.SimulationType())
		if err != nil {
			return nil, err
		}
		if dc.Parameters, err = applyParameters(dc.Parameters, f.Parameters); err != nil {
			return nil, err
		}
		dc.Reuse = f.ReuseEnabled()
		if opts.Recorder != nil {
			dc.Recorder = opts.Recorder
		}
		r, p = dc, dc.Parameters
	case KindDirectSun:
		ds, err := recipe.NewDirectSun(s, grids, f.Scene, f.SimulationType())
		if err != nil {
			return nil, err
		}
		if ds.Parameters, err = applyParameters(ds.Parameters, f.Parameters); err != nil {
			return nil, err
		}
		ds.Reuse = f.ReuseEnabled()
		if opts.Recorder != nil {
			ds.Recorder = opts.Recorder
		}
		r, p = ds, ds.Parameters
	default:
		return nil, engine.NewConfigurationError(fmt.Sprintf("unknown recipe %q", f.Recipe), nil).
			WithCode(engine.ErrCodeInvalidRecipe)
	}

	log.Info().
		Str("project", f.Project).
		Str("recipe", r.Name()).
		Str("sky", s.Name()).
		Int("grids", len(grids)).
		Int("points", grid.TotalPoints(grids)).
		Msg("Recipe built")
	return &Built{File: f, Recipe: r, Sky: s, Grids: grids, Parameters: p}, nil
}

// LoadWeather reads a .wea file.
func LoadWeather(path string) (*weather.Wea, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to open weather file", err).
			WithCode(engine.ErrCodeInvalidPath).WithResource(path)
	}
	defer file.Close()
	return weather.ReadWea(file)
}

// HourSet returns the hours of a sky, every hour of the year when empty.
func (c SkyConfig) HourSet() (sky.HourSet, error) {
	if len(c.Hours) == 0 {
		return sky.AllHours(), nil
	}
	return sky.NewHourSet(c.Hours)
}

func buildSky(c SkyConfig, opts BuildOptions) (sky.Sky, error) {
	if c.Kind == SkyCertainIlluminance {
		return sky.NewCertainIlluminance(c.Illuminance)
	}

	wea, err := LoadWeather(c.Weather)
	if err != nil {
		return nil, err
	}

	switch c.Kind {
	case SkyPointInTime:
		if c.Hour == nil {
			return nil, engine.NewConfigurationError("point-in-time sky needs an hour", nil).
				WithCode(engine.ErrCodeInvalidHours)
		}
		return sky.NewPointInTime(wea, *c.Hour, c.North)
	case SkyMatrix:
		hours, err := c.HourSet()
		if err != nil {
			return nil, err
		}
		density := c.Density
		if density == 0 {
			density = 1
		}
		return sky.NewSkyMatrix(wea, density, c.North, hours)
	case SkySunMatrix:
		hours, err := c.HourSet()
		if err != nil {
			return nil, err
		}
		m, err := sky.NewSunMatrix(wea, c.North, hours)
		if err != nil {
			return nil, err
		}
		if opts.Generator != nil {
			m.Generator = opts.Generator
		}
		m.Recorder = opts.Recorder
		return m, nil
	default:
		return nil, engine.NewConfigurationError(fmt.Sprintf("unknown sky kind %q", c.Kind), nil).
			WithCode(engine.ErrCodeInvalidSky)
	}
}

func loadGrids(ctx context.Context, f *RecipeFile, evaluator *StarlarkEvaluator) ([]*grid.AnalysisGrid, error) {
	var grids []*grid.AnalysisGrid
	for _, c := range f.Grids {
		g, err := c.load()
		if err != nil {
			return nil, err
		}
		grids = append(grids, g)
	}

	if f.GridScript != "" {
		if evaluator == nil {
			evaluator = NewStarlarkEvaluator(0)
		}
		scripted, err := evaluator.EvaluateGridFile(ctx, f.GridScript, map[string]interface{}{
			"project": f.Project,
		})
		if err != nil {
			return nil, err
		}
		grids = append(grids, scripted...)
	}

	seen := make(map[string]bool, len(grids))
	for _, g := range grids {
		if seen[g.Name] {
			return nil, engine.NewConfigurationError(fmt.Sprintf("duplicate grid name %q", g.Name), nil).
				WithCode(engine.ErrCodeInvalidGrid).WithResource(g.Name)
		}
		seen[g.Name] = true
	}
	return grids, nil
}

func (c GridConfig) load() (*grid.AnalysisGrid, error) {
	if c.File == "" {
		return gridFromValues(c.Name, c.Points)
	}
	file, err := os.Open(c.File)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to open points file", err).
			WithCode(engine.ErrCodeInvalidPath).WithResource(c.File)
	}
	defer file.Close()
	return grid.ReadPoints(c.Name, file)
}

// applyParameters sets the quality tier, then single values in key order.
func applyParameters(p *params.Set, c *ParameterConfig) (*params.Set, error) {
	if c == nil {
		return p, nil
	}
	b := p.Builder()
	if c.Quality != nil {
		if err := b.SetQuality(*c.Quality); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(c.Values))
	for k := range c.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := params.FromAny(params.Key(k), c.Values[k])
		if err != nil {
			return nil, err
		}
		if err := b.Set(params.Key(k), v); err != nil {
			return nil, err
		}
	}
	return b.Build()
}
