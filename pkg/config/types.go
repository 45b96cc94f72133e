package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/openfroyo/daylight/pkg/recipe"
)

// Recipe kinds accepted in recipe files.
const (
	KindGridBased           = "grid-based"
	KindDaylightCoefficient = "daylight-coefficient"
	KindDirectSun           = "direct-sun"
)

// Sky kinds accepted in recipe files.
const (
	SkyCertainIlluminance = "certain-illuminance"
	SkyPointInTime        = "point-in-time"
	SkyMatrix             = "sky-matrix"
	SkySunMatrix          = "sun-matrix"
)

// RecipeFile is a simulation recipe as written in a YAML or CUE file.
type RecipeFile struct {
	// Version is the recipe file format version.
	Version string `json:"version,omitempty" yaml:"version,omitempty" validate:"omitempty,eq=v1"`

	// Project is the project folder name.
	Project string `json:"project" yaml:"project" validate:"required,excludesall=/\\"`

	// Target is the folder the project folder is created in.
	Target string `json:"target" yaml:"target" validate:"required"`

	// Recipe selects the command chain.
	Recipe string `json:"recipe" yaml:"recipe" validate:"required,oneof=grid-based daylight-coefficient direct-sun"`

	// Type is the simulation type: 0 illuminance, 1 radiation, 2 luminance.
	Type int `json:"type,omitempty" yaml:"type,omitempty" validate:"oneof=0 1 2"`

	Sky SkyConfig `json:"sky" yaml:"sky"`

	// Grids are analysis grids read from points files or listed inline.
	Grids []GridConfig `json:"grids,omitempty" yaml:"grids,omitempty" validate:"dive"`

	// GridScript is a Starlark file whose global grids adds more grids.
	GridScript string `json:"grid_script,omitempty" yaml:"grid_script,omitempty"`

	Scene recipe.Scene `json:"scene,omitempty" yaml:"scene,omitempty"`

	Parameters *ParameterConfig `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	// Reuse serves cached matrices from earlier plans. Defaults to true.
	Reuse *bool `json:"reuse,omitempty" yaml:"reuse,omitempty"`

	// Remote is an optional render host the plan is executed on.
	Remote *RemoteConfig `json:"remote,omitempty" yaml:"remote,omitempty"`

	// baseDir is the folder relative paths are resolved against.
	baseDir string
}

// SkyConfig describes the sky of a recipe.
type SkyConfig struct {
	Kind string `json:"kind" yaml:"kind" validate:"required,oneof=certain-illuminance point-in-time sky-matrix sun-matrix"`

	// Illuminance is the horizontal illuminance of a certain-illuminance sky.
	Illuminance float64 `json:"illuminance,omitempty" yaml:"illuminance,omitempty" validate:"omitempty,gt=0"`

	// Weather is the .wea file of climate-based skies.
	Weather string `json:"weather,omitempty" yaml:"weather,omitempty"`

	// Hour is the hour of year of a point-in-time sky.
	Hour *int `json:"hour,omitempty" yaml:"hour,omitempty" validate:"omitempty,min=0,max=8759"`

	// Hours of a sky or sun matrix. Empty means every hour of the year.
	Hours []int `json:"hours,omitempty" yaml:"hours,omitempty" validate:"dive,min=0,max=8759"`

	// Density is the sky subdivision of a sky matrix.
	Density int `json:"density,omitempty" yaml:"density,omitempty" validate:"omitempty,min=1"`

	// North is the rotation of north in degrees, counterclockwise.
	North float64 `json:"north,omitempty" yaml:"north,omitempty"`
}

// GridConfig is one analysis grid. Either File or Points is set.
type GridConfig struct {
	Name string `json:"name" yaml:"name" validate:"required"`

	// File is a points file with one "x y z dx dy dz" line per sensor.
	File string `json:"file,omitempty" yaml:"file,omitempty" validate:"required_without=Points"`

	// Points lists positions, or positions followed by directions.
	Points [][]float64 `json:"points,omitempty" yaml:"points,omitempty" validate:"required_without=File,dive,min=3,max=6"`
}

// ParameterConfig adjusts the simulation parameters of the recipe.
type ParameterConfig struct {
	// Quality is the tier 0 low, 1 medium or 2 high.
	Quality *int `json:"quality,omitempty" yaml:"quality,omitempty" validate:"omitempty,min=0,max=2"`

	// Values overrides single parameters by key, e.g. ab: 5.
	Values map[string]interface{} `json:"values,omitempty" yaml:"values,omitempty"`
}

// RemoteConfig is the render host of a recipe.
type RemoteConfig struct {
	Host           string        `json:"host" yaml:"host" validate:"required"`
	Port           int           `json:"port,omitempty" yaml:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	User           string        `json:"user" yaml:"user" validate:"required"`
	PrivateKeyPath string        `json:"private_key,omitempty" yaml:"private_key,omitempty"`
	KnownHostsPath string        `json:"known_hosts,omitempty" yaml:"known_hosts,omitempty"`
	Root           string        `json:"root,omitempty" yaml:"root,omitempty"`
	CommandTimeout time.Duration `json:"command_timeout,omitempty" yaml:"command_timeout,omitempty"`
}

// BaseDir returns the folder relative paths in the file resolve against.
func (f *RecipeFile) BaseDir() string {
	return f.baseDir
}

// ReuseEnabled reports whether cached matrices may be reused.
func (f *RecipeFile) ReuseEnabled() bool {
	return f.Reuse == nil || *f.Reuse
}

// SimulationType returns the recipe simulation type.
func (f *RecipeFile) SimulationType() recipe.SimulationType {
	return recipe.SimulationType(f.Type)
}

// ValidationError is a single problem found in a recipe file.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	var loc string
	switch {
	case e.File != "" && e.Line > 0:
		loc = fmt.Sprintf("%s:%d:%d: ", e.File, e.Line, e.Column)
	case e.File != "":
		loc = e.File + ": "
	}
	if e.Path != "" {
		loc += e.Path + ": "
	}
	return loc + e.Message
}

// ValidationErrors collects the problems of one recipe file.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.String()
	}
	return strings.Join(msgs, "; ")
}

// StarlarkResult is the outcome of a Starlark script.
type StarlarkResult struct {
	// Output holds the script globals, except names starting with "_".
	Output map[string]interface{}

	ExecutionTime time.Duration

	Error string
}
