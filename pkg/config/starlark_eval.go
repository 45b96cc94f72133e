package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/grid"
)

// StarlarkEvaluator executes Starlark scripts with a time limit.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// Evaluate executes a Starlark script with the given input and returns its
// globals.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, input map[string]interface{}) (*StarlarkResult, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "daylight",
		Print: func(_ *starlark.Thread, msg string) {
			log.Debug().Str("source", "starlark").Msg(msg)
		},
	}

	resultCh := make(chan *StarlarkResult, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := se.evaluateSync(thread, script, input)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- result
		}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel(evalCtx.Err().Error())
		return &StarlarkResult{
			ExecutionTime: time.Since(startTime),
			Error:         fmt.Sprintf("execution timeout after %v", se.timeout),
		}, fmt.Errorf("starlark execution timeout: %w", evalCtx.Err())
	case err := <-errCh:
		return &StarlarkResult{
			ExecutionTime: time.Since(startTime),
			Error:         err.Error(),
		}, err
	case result := <-resultCh:
		result.ExecutionTime = time.Since(startTime)
		return result, nil
	}
}

func (se *StarlarkEvaluator) evaluateSync(thread *starlark.Thread, script string, input map[string]interface{}) (*StarlarkResult, error) {
	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"math":   starlarkmath.Module,
	}

	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, "grids.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	output := make(map[string]interface{})
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		if _, ok := val.(starlark.Callable); ok {
			continue
		}
		goVal, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		output[name] = goVal
	}

	return &StarlarkResult{
		Output: output,
	}, nil
}

// EvaluateGridFile runs a grid script read from path. See EvaluateGrids.
func (se *StarlarkEvaluator) EvaluateGridFile(ctx context.Context, path string, input map[string]interface{}) ([]*grid.AnalysisGrid, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to read grid script", err).
			WithCode(engine.ErrCodeInvalidPath).WithResource(path)
	}
	return se.EvaluateGrids(ctx, string(script), input)
}

// EvaluateGrids runs a grid script and converts its global grids into
// analysis grids. Each entry of grids is either a list of points, named
// grid_<index>, or a struct or dict with name and points fields. A point is
// [x, y, z] or [x, y, z, dx, dy, dz].
func (se *StarlarkEvaluator) EvaluateGrids(ctx context.Context, script string, input map[string]interface{}) ([]*grid.AnalysisGrid, error) {
	result, err := se.Evaluate(ctx, script, input)
	if err != nil {
		return nil, engine.NewConfigurationError("grid script failed", err).WithCode(engine.ErrCodeInvalidGrid)
	}

	raw, ok := result.Output["grids"]
	if !ok {
		return nil, badScript("grid script does not define grids")
	}
	entries, ok := raw.([]interface{})
	if !ok {
		return nil, badScript(fmt.Sprintf("grids must be a list, got %T", raw))
	}

	grids := make([]*grid.AnalysisGrid, 0, len(entries))
	for i, entry := range entries {
		name := fmt.Sprintf("grid_%d", i)
		points := entry
		if m, ok := entry.(map[string]interface{}); ok {
			if n, ok := m["name"].(string); ok && n != "" {
				name = n
			}
			points = m["points"]
		}
		rows, ok := points.([]interface{})
		if !ok {
			return nil, badScript(fmt.Sprintf("grid %s has no point list", name))
		}
		g, err := gridFromRows(name, rows)
		if err != nil {
			return nil, err
		}
		grids = append(grids, g)
	}

	log.Debug().Int("grids", len(grids)).Dur("elapsed", result.ExecutionTime).Msg("Grid script evaluated")
	return grids, nil
}

func gridFromRows(name string, rows []interface{}) (*grid.AnalysisGrid, error) {
	values := make([][]float64, len(rows))
	for i, row := range rows {
		items, ok := row.([]interface{})
		if !ok {
			return nil, badScript(fmt.Sprintf("grid %s point %d is not a list", name, i))
		}
		values[i] = make([]float64, len(items))
		for j, item := range items {
			switch n := item.(type) {
			case int64:
				values[i][j] = float64(n)
			case float64:
				values[i][j] = n
			default:
				return nil, badScript(fmt.Sprintf("grid %s point %d has a %T coordinate", name, i, item))
			}
		}
	}
	return gridFromValues(name, values)
}

// gridFromValues builds a grid from rows of 3 or 6 numbers. Every row must
// have the width of the first.
func gridFromValues(name string, rows [][]float64) (*grid.AnalysisGrid, error) {
	if len(rows) == 0 {
		return grid.FromPointsAndVectors(name, nil, nil)
	}
	width := len(rows[0])
	positions := make([][3]float64, len(rows))
	var directions [][3]float64
	if width == 6 {
		directions = make([][3]float64, len(rows))
	}
	for i, row := range rows {
		if len(row) != width || (width != 3 && width != 6) {
			return nil, engine.NewConfigurationError(
				fmt.Sprintf("point %d of grid %s has %d values, want %s", i, name, len(row), widthName(width)), nil,
			).WithCode(engine.ErrCodeInvalidGrid).WithResource(name)
		}
		copy(positions[i][:], row[:3])
		if directions != nil {
			copy(directions[i][:], row[3:])
		}
	}
	return grid.FromPointsAndVectors(name, positions, directions)
}

func widthName(width int) string {
	if width == 3 || width == 6 {
		return fmt.Sprintf("%d like the first point", width)
	}
	return "3 or 6"
}

func badScript(msg string) error {
	return engine.NewConfigurationError(msg, nil).WithCode(engine.ErrCodeInvalidGrid)
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value. Tuples become
// lists.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		return fromSequence(val)
	case starlark.Tuple:
		return fromSequence(val)
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

func fromSequence(seq starlark.Indexable) ([]interface{}, error) {
	list := make([]interface{}, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		item, err := fromStarlarkValue(seq.Index(i))
		if err != nil {
			return nil, err
		}
		list[i] = item
	}
	return list, nil
}
