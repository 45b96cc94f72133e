// Package results reads simulation output files back into analysis grids.
package results

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/grid"
)

// Layout describes how result files map onto grids.
type Layout int

const (
	// Combined is one file holding every grid's rows back to back.
	Combined Layout = iota

	// PerGrid is one file per grid, in grid order.
	PerGrid
)

// String returns the layout name.
func (l Layout) String() string {
	switch l {
	case Combined:
		return "combined"
	case PerGrid:
		return "per-grid"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// Photometric weights applied to red, green and blue samples.
const (
	WeightRed   = 0.265
	WeightGreen = 0.67
	WeightBlue  = 0.065
)

// Range is a half-open row range [Start, End).
type Range struct {
	Start int
	End   int
}

// Offsets returns the row range of each grid inside a combined file.
func Offsets(grids []*grid.AnalysisGrid) []Range {
	out := make([]Range, len(grids))
	offset := 0
	for i, g := range grids {
		out[i] = Range{Start: offset, End: offset + g.Len()}
		offset += g.Len()
	}
	return out
}

// Assembler scatters result rows into grids.
type Assembler struct {
	// Factor scales three-component samples after photometric weighting.
	Factor float64
}

// NewAssembler returns an assembler reducing triplets with factor.
func NewAssembler(factor float64) *Assembler {
	return &Assembler{Factor: factor}
}

// Collect loads files into grids for the requested hours. The run must have
// completed successfully. Rows are points and columns are hours in request
// order; a combined file is split by running point offsets.
func (a *Assembler) Collect(run *engine.Run, grids []*grid.AnalysisGrid, files []string, hours []int, layout Layout) error {
	if !run.Completed() {
		status := "none"
		if run != nil {
			status = string(run.Status)
		}
		return engine.NewStateError("results requested before the simulation was executed", nil).
			WithCode(engine.ErrCodeNotExecuted).
			WithDetail("run_status", status)
	}
	if len(grids) == 0 {
		return engine.NewConfigurationError("no analysis grids to collect", nil).WithCode(engine.ErrCodeInvalidGrid)
	}
	if len(hours) == 0 {
		return engine.NewConfigurationError("no hours to collect", nil).WithCode(engine.ErrCodeInvalidHours)
	}

	switch layout {
	case Combined:
		if len(files) != 1 {
			return engine.NewConfigurationError(fmt.Sprintf("combined layout needs 1 file, got %d", len(files)), nil)
		}
		rows, err := a.readFile(files[0], grid.TotalPoints(grids), len(hours))
		if err != nil {
			return err
		}
		for i, r := range Offsets(grids) {
			if err := grids[i].SetValues(hours, rows[r.Start:r.End]); err != nil {
				return err
			}
		}
	case PerGrid:
		if len(files) != len(grids) {
			return engine.NewConfigurationError(
				fmt.Sprintf("per-grid layout needs %d files, got %d", len(grids), len(files)), nil)
		}
		for i, g := range grids {
			rows, err := a.readFile(files[i], g.Len(), len(hours))
			if err != nil {
				return err
			}
			if err := g.SetValues(hours, rows); err != nil {
				return err
			}
		}
	default:
		return engine.NewValidationError("unknown result layout: "+layout.String(), nil).
			WithCode(engine.ErrCodeOutOfRange)
	}

	log.Info().
		Str("run_id", run.ID).
		Int("grids", len(grids)).
		Int("hours", len(hours)).
		Str("layout", layout.String()).
		Msg("Results collected")
	return nil
}

func (a *Assembler) readFile(path string, points, hours int) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, engine.NewArtifactError("result file missing", err).
			WithCode(engine.ErrCodeMissingArtifact).
			WithResource(path)
	}
	defer f.Close()

	rows, err := ReadMatrix(f, hours, a.Factor)
	if err != nil {
		return nil, withResource(err, path)
	}
	if len(rows) != points {
		return nil, engine.NewArtifactError(
			fmt.Sprintf("result file has %d rows, expected %d", len(rows), points), nil,
		).WithCode(engine.ErrCodeMalformedArtifact).WithResource(path)
	}
	return rows, nil
}

func withResource(err error, path string) error {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return ee.WithResource(path)
	}
	return err
}
