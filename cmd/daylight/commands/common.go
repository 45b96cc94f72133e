package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/daylight/pkg/config"
	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/policy"
	"github.com/openfroyo/daylight/pkg/recipe"
	"github.com/openfroyo/daylight/pkg/stores"
)

const (
	workspaceDir  = ".daylight"
	defaultDBPath = ".daylight/daylight.db"
	planFileName  = "plan.json"
	policiesDir   = "policies"
)

// loadRecipe reads, validates and builds the recipe at path.
func loadRecipe(ctx context.Context, path string, opts config.BuildOptions) (*config.Built, error) {
	f, err := config.NewLoader().Load(ctx, path)
	if err != nil {
		return nil, err
	}
	return config.Build(ctx, f, opts)
}

// planPath is where the written plan of a recipe is kept.
func planPath(f *config.RecipeFile) string {
	return filepath.Join(recipe.NewLayout(f.Target, f.Project).Root, planFileName)
}

func savePlan(path string, out *recipe.Output) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return engine.NewArtifactError("failed to write plan", err).WithResource(path)
	}
	return nil
}

func loadPlan(path string) (*recipe.Output, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, engine.NewStateError("no plan has been written, run plan or run first", err).
			WithCode(engine.ErrCodeNotExecuted).WithResource(path)
	}
	if err != nil {
		return nil, engine.NewArtifactError("failed to read plan", err).WithResource(path)
	}
	var out recipe.Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, engine.NewArtifactError("failed to decode plan", err).
			WithCode(engine.ErrCodeMalformedArtifact).WithResource(path)
	}
	return &out, nil
}

// openStore opens the run ledger, creating its folder when needed.
func openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return stores.Open(ctx, dbPath)
}

// policyPaths adds the recipe's policies folder, when present, to paths.
func policyPaths(f *config.RecipeFile, paths []string) []string {
	dir := filepath.Join(f.BaseDir(), policiesDir)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return append([]string{dir}, paths...)
	}
	return paths
}

// checkPolicies evaluates the guardrails. Warnings are logged; blocking
// violations come back as a policy denied error.
func checkPolicies(ctx context.Context, b *config.Built, plan *engine.Plan, remote bool, paths []string) (*policy.Result, error) {
	eng, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, err
	}
	if paths = policyPaths(b.File, paths); len(paths) > 0 {
		if err := eng.LoadPolicies(ctx, paths); err != nil {
			return nil, err
		}
	}

	result, err := eng.Evaluate(ctx, policy.NewInput(b, plan, remote))
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		log.Warn().Str("policy", w.Policy).Str("resource", w.Resource).Msg(w.Message)
	}
	for _, f := range result.Failures {
		log.Error().Str("failure", f).Msg("Policy could not be evaluated")
	}
	return result, result.Err()
}

// parseOverrides turns key=value pairs into decoded values. Values are
// read as YAML, so 5 is an int, 0.1 a float, true a bool and [1, 2] a list.
func parseOverrides(pairs []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, engine.NewValidationError(fmt.Sprintf("invalid parameter %q, expected key=value", pair), nil).
				WithCode(engine.ErrCodeUnknownParameter)
		}
		var v interface{}
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("invalid value for %s", key), err).
				WithCode(engine.ErrCodeTypeMismatch).WithResource(key)
		}
		out[key] = v
	}
	return out, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
