package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/daylight/pkg/engine"
)

// Loader reads recipe files. YAML files are decoded strictly, CUE files and
// directories go through the CUE parser. Every recipe is then checked with
// struct tags and the #Recipe schema.
type Loader struct {
	schemas   *SchemaRegistry
	parser    *CUEParser
	validator *validator.Validate
}

// NewLoader creates a loader with the built-in schemas.
func NewLoader() *Loader {
	schemas := NewSchemaRegistry()
	return &Loader{
		schemas:   schemas,
		parser:    NewCUEParser(schemas),
		validator: validator.New(),
	}
}

// Load reads, validates and resolves the recipe at path. Relative paths in
// the recipe resolve against the folder holding it.
func (l *Loader) Load(ctx context.Context, path string) (*RecipeFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to read recipe", err).
			WithCode(engine.ErrCodeInvalidPath).WithResource(path)
	}

	var f *RecipeFile
	var baseDir string
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case info.IsDir():
		baseDir = path
		f, err = l.parser.Parse(ctx, []string{path})
	case ext == ".cue":
		baseDir = filepath.Dir(path)
		f, err = l.parser.Parse(ctx, []string{path})
	case ext == ".yaml" || ext == ".yml" || ext == ".json":
		baseDir = filepath.Dir(path)
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			f, err = l.decodeYAML(bytes.NewReader(data))
		}
	default:
		return nil, engine.NewConfigurationError(fmt.Sprintf("unsupported recipe file %s", path), nil).
			WithCode(engine.ErrCodeInvalidPath).WithResource(path)
	}
	if err != nil {
		return nil, recipeError(path, err)
	}

	if err := l.Validate(ctx, f); err != nil {
		return nil, recipeError(path, err)
	}
	if err := f.resolve(baseDir); err != nil {
		return nil, err
	}

	log.Debug().
		Str("recipe_file", path).
		Str("project", f.Project).
		Str("recipe", f.Recipe).
		Str("sky", f.Sky.Kind).
		Msg("Recipe file loaded")
	return f, nil
}

// LoadYAML decodes and validates a YAML recipe. Relative paths resolve
// against baseDir.
func (l *Loader) LoadYAML(ctx context.Context, r io.Reader, baseDir string) (*RecipeFile, error) {
	f, err := l.decodeYAML(r)
	if err != nil {
		return nil, recipeError("yaml", err)
	}
	if err := l.Validate(ctx, f); err != nil {
		return nil, recipeError("yaml", err)
	}
	if err := f.resolve(baseDir); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks struct tags, then the #Recipe schema, then the rules
// spanning several fields.
func (l *Loader) Validate(ctx context.Context, f *RecipeFile) error {
	if err := l.validator.Struct(f); err != nil {
		return tagErrors(err)
	}
	if err := l.schemas.ValidateRecipe(ctx, f); err != nil {
		return err
	}
	if len(f.Grids) == 0 && f.GridScript == "" {
		return ValidationErrors{{Path: "grids", Message: "recipe needs grids or a grid_script"}}
	}
	seen := make(map[string]bool)
	for i, g := range f.Grids {
		if g.File != "" && len(g.Points) > 0 {
			return ValidationErrors{{Path: fmt.Sprintf("grids.%d", i), Message: "grid sets both file and points"}}
		}
		if seen[g.Name] {
			return ValidationErrors{{Path: fmt.Sprintf("grids.%d.name", i), Message: fmt.Sprintf("duplicate grid name %q", g.Name)}}
		}
		seen[g.Name] = true
	}
	return nil
}

// Save writes the recipe as YAML.
func Save(w io.Writer, f *RecipeFile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode recipe: %w", err)
	}
	return enc.Close()
}

func (l *Loader) decodeYAML(r io.Reader) (*RecipeFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f RecipeFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ValidationErrors{{Message: "recipe file is empty"}}
		}
		return nil, fmt.Errorf("failed to decode recipe: %w", err)
	}
	return &f, nil
}

// resolve makes every file reference absolute.
func (f *RecipeFile) resolve(baseDir string) error {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return engine.NewConfigurationError("invalid recipe folder", err).
			WithCode(engine.ErrCodeInvalidPath).WithResource(baseDir)
	}
	f.baseDir = abs

	join := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(abs, p)
	}
	f.Target = join(f.Target)
	f.Sky.Weather = join(f.Sky.Weather)
	f.GridScript = join(f.GridScript)
	for i := range f.Grids {
		f.Grids[i].File = join(f.Grids[i].File)
	}
	for i := range f.Scene.Materials {
		f.Scene.Materials[i] = join(f.Scene.Materials[i])
	}
	for i := range f.Scene.Geometry {
		f.Scene.Geometry[i] = join(f.Scene.Geometry[i])
	}
	return nil
}

func tagErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(ValidationErrors, len(verrs))
	for i, fe := range verrs {
		out[i] = ValidationError{
			Path:    fe.Namespace(),
			Message: fmt.Sprintf("failed %q rule (value %v)", fe.ActualTag(), fe.Value()),
		}
	}
	return out
}

func recipeError(source string, err error) error {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return err
	}
	out := engine.NewConfigurationError("invalid recipe file", err).
		WithCode(engine.ErrCodeInvalidRecipe).WithResource(source)
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		out = out.WithDetail("problems", len(verrs))
	}
	return out
}
