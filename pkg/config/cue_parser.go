package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// CUEParser parses recipe files written in CUE. A recipe may be a single
// file, or a directory holding one CUE package whose files unify into the
// recipe.
type CUEParser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
}

// NewCUEParser creates a new CUE parser. Recipe values are built in the
// registry's context so they unify with its schemas.
func NewCUEParser(schemas *SchemaRegistry) *CUEParser {
	if schemas == nil {
		schemas = NewSchemaRegistry()
	}
	return &CUEParser{
		ctx:            schemas.ctx,
		schemaRegistry: schemas,
	}
}

// Parse loads and unifies the sources and decodes the result into a recipe
// file. Sources may be files or directories.
func (cp *CUEParser) Parse(ctx context.Context, sources []string) (*RecipeFile, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var value cue.Value
	var parseErrors ValidationErrors
	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		var val cue.Value
		var errs ValidationErrors
		if info.IsDir() {
			val, errs = cp.loadDirectory(source)
		} else {
			val, errs = cp.loadFile(source)
		}
		parseErrors = append(parseErrors, errs...)
		if !val.Exists() {
			continue
		}
		if value.Exists() {
			value = value.Unify(val)
		} else {
			value = val
		}
	}
	if len(parseErrors) > 0 {
		return nil, parseErrors
	}
	return cp.decode(value)
}

// ParseInline parses CUE content held in memory.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*RecipeFile, error) {
	val := cp.ctx.CompileString(content, cue.Filename("inline.cue"))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}
	return cp.decode(val)
}

// loadDirectory loads a directory as a CUE package.
func (cp *CUEParser) loadDirectory(dir string) (cue.Value, ValidationErrors) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, ValidationErrors{{File: dir, Message: "no CUE files found"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, convertCUEErrors(inst.Err)
	}

	val := cp.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}
	return val, nil
}

// loadFile loads a single CUE file.
func (cp *CUEParser) loadFile(path string) (cue.Value, ValidationErrors) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, ValidationErrors{{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}}
	}

	val := cp.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}
	return val, nil
}

// decode checks the value against #Recipe before decoding it, so errors
// carry the positions of the recipe source.
func (cp *CUEParser) decode(val cue.Value) (*RecipeFile, error) {
	schema, ok := cp.schemaRegistry.GetSchema("Recipe")
	if !ok {
		return nil, fmt.Errorf("schema Recipe not found")
	}
	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEErrors(err)
	}

	var f RecipeFile
	if err := unified.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode recipe: %w", err)
	}
	return &f, nil
}

// ExportJSON exports a recipe as indented JSON, the form CUE files
// evaluate to.
func (cp *CUEParser) ExportJSON(f *RecipeFile) ([]byte, error) {
	val := cp.ctx.Encode(f)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to encode recipe: %w", err)
	}
	var data interface{}
	if err := val.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return json.MarshalIndent(data, "", "  ")
}

// convertCUEErrors converts CUE errors to validation errors with positions.
func convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range errors.Errors(err) {
		ve := ValidationError{Message: errors.Details(e, nil)}
		if pos := errors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		if path := e.Path(); len(path) > 0 {
			ve.Path = strings.Join(path, ".")
		}
		out = append(out, ve)
	}
	return out
}
