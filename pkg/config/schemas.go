package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation. Each schema is a CUE
// source declaring a definition named after the schema, e.g. #Recipe.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	sr.registerBuiltInSchemas()
	return sr
}

func (sr *SchemaRegistry) registerBuiltInSchemas() {
	for _, name := range []string{"Recipe", "Sky", "Grid"} {
		if err := sr.RegisterSchema(name, builtinSchemas); err != nil {
			panic(err)
		}
	}
}

// RegisterSchema compiles a CUE source and registers its #name definition.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	def := val.LookupPath(cue.MakePath(cue.Def(name)))
	if !def.Exists() {
		return fmt.Errorf("schema %s does not declare #%s", name, name)
	}

	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema. The data is
// encoded through its json tags.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}
	return nil
}

// ValidateRecipe validates a recipe file against the #Recipe schema.
func (sr *SchemaRegistry) ValidateRecipe(ctx context.Context, f *RecipeFile) error {
	return sr.ValidateAgainstSchema(ctx, "Recipe", f)
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Built-in schema definitions

const builtinSchemas = `
#HOY: int & >=0 & <=8759

#Sky: {
	kind: "certain-illuminance" | "point-in-time" | "sky-matrix" | "sun-matrix"

	// Horizontal illuminance in lux of a uniform overcast sky
	illuminance?: number & >0

	// Hourly weather file of climate-based skies
	weather?: string & !=""

	hour?:    #HOY
	hours?:   [...#HOY]
	density?: int & >=1
	north?:   number

	if kind == "certain-illuminance" {
		illuminance: number & >0
	}
	if kind != "certain-illuminance" {
		weather: string & !=""
	}
	if kind == "point-in-time" {
		hour: #HOY
	}
}

#Grid: {
	name: string & !=""

	// Points file or inline [x, y, z] / [x, y, z, dx, dy, dz] rows
	file?:   string & !=""
	points?: [...([number, number, number] | [number, number, number, number, number, number])]
}

#Recipe: {
	version?: "v1"

	project: string & =~"^[A-Za-z0-9_.-]+$" & !="." & !=".."
	target:  string & !=""
	recipe:  "grid-based" | "daylight-coefficient" | "direct-sun"

	// 0 illuminance, 1 radiation, 2 luminance
	type?: 0 | 1 | 2

	sky:          #Sky
	grids?:       [...#Grid]
	grid_script?: string & !=""

	scene?: {
		materials?: [...string]
		geometry?:  [...string]
	}

	parameters?: {
		quality?: 0 | 1 | 2
		values?: {[string]: number | bool | [...number]}
	}

	reuse?: bool

	remote?: {
		host:             string & !=""
		port?:            int & >=1 & <=65535
		user:             string & !=""
		private_key?:     string
		known_hosts?:     string
		root?:            string
		command_timeout?: int & >=0
	}

	if recipe == "grid-based" {
		sky: kind: "certain-illuminance" | "point-in-time"
	}
	if recipe == "daylight-coefficient" {
		sky: kind: "sky-matrix"
	}
	if recipe == "direct-sun" {
		sky: kind: "sun-matrix"
	}
}
`

