// Package grid provides analysis grids: named groups of sensor points whose
// per-hour results are filled in after a simulation.
package grid

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/openfroyo/daylight/pkg/engine"
)

// DefaultDirection is the sensor direction used when none is given.
var DefaultDirection = [3]float64{0, 0, 1}

// Point is a sensor location and the direction it faces.
type Point struct {
	Position  [3]float64 `json:"position" yaml:"position"`
	Direction [3]float64 `json:"direction" yaml:"direction"`
}

// AnalysisGrid is an ordered set of sensor points. Values holds one row per
// point and one column per entry of Hours once results are loaded.
type AnalysisGrid struct {
	Name   string      `json:"name" yaml:"name"`
	Points []Point     `json:"points" yaml:"points"`
	Hours  []int       `json:"hours,omitempty" yaml:"hours,omitempty"`
	Values [][]float64 `json:"values,omitempty" yaml:"values,omitempty"`
}

// New creates a grid from points. A grid needs at least one point.
func New(name string, points []Point) (*AnalysisGrid, error) {
	if len(points) == 0 {
		return nil, engine.NewConfigurationError("analysis grid has no points", nil).
			WithCode(engine.ErrCodeInvalidGrid).WithResource(name)
	}
	return &AnalysisGrid{Name: name, Points: points}, nil
}

// FromPointsAndVectors creates a grid from positions and optional directions.
// With no directions every point faces DefaultDirection; otherwise there
// must be one direction per position.
func FromPointsAndVectors(name string, positions, directions [][3]float64) (*AnalysisGrid, error) {
	if len(directions) != 0 && len(directions) != len(positions) {
		return nil, engine.NewConfigurationError(
			fmt.Sprintf("%d directions for %d points", len(directions), len(positions)), nil,
		).WithCode(engine.ErrCodeInvalidGrid).WithResource(name)
	}
	points := make([]Point, len(positions))
	for i, p := range positions {
		points[i] = Point{Position: p, Direction: DefaultDirection}
		if len(directions) != 0 {
			points[i].Direction = directions[i]
		}
	}
	return New(name, points)
}

// Len returns the number of points.
func (g *AnalysisGrid) Len() int { return len(g.Points) }

// WritePoints writes the points of grids, in order, one "x y z dx dy dz" line
// per point.
func WritePoints(w io.Writer, grids ...*AnalysisGrid) error {
	bw := bufio.NewWriter(w)
	for _, g := range grids {
		for _, p := range g.Points {
			fmt.Fprintf(bw, "%s %s %s %s %s %s\n",
				ftoa(p.Position[0]), ftoa(p.Position[1]), ftoa(p.Position[2]),
				ftoa(p.Direction[0]), ftoa(p.Direction[1]), ftoa(p.Direction[2]))
		}
	}
	return bw.Flush()
}

// ReadPoints reads a points file. Lines with three values get the default
// direction; blank lines and "#" comments are skipped.
func ReadPoints(name string, r io.Reader) (*AnalysisGrid, error) {
	var points []Point
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 && len(fields) != 6 {
			return nil, badPoints(name, lineNo, fmt.Sprintf("expected 3 or 6 values, got %d", len(fields)))
		}
		var v [6]float64
		for i, f := range fields {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, badPoints(name, lineNo, fmt.Sprintf("invalid number %q", f))
			}
			v[i] = x
		}
		p := Point{Position: [3]float64{v[0], v[1], v[2]}, Direction: DefaultDirection}
		if len(fields) == 6 {
			p.Direction = [3]float64{v[3], v[4], v[5]}
		}
		points = append(points, p)
	}
	if err := sc.Err(); err != nil {
		return nil, engine.NewArtifactError("failed to read points", err).WithResource(name)
	}
	return New(name, points)
}

// SetValues stores one row of values per point, one column per hour.
func (g *AnalysisGrid) SetValues(hours []int, rows [][]float64) error {
	if len(rows) != len(g.Points) {
		return engine.NewArtifactError(
			fmt.Sprintf("grid %s has %d points, got %d rows", g.Name, len(g.Points), len(rows)), nil,
		).WithCode(engine.ErrCodeMalformedArtifact).WithResource(g.Name)
	}
	for i, row := range rows {
		if len(row) != len(hours) {
			return engine.NewArtifactError(
				fmt.Sprintf("row %d has %d values for %d hours", i, len(row), len(hours)), nil,
			).WithCode(engine.ErrCodeMalformedArtifact).WithResource(g.Name)
		}
	}
	g.Hours = append([]int(nil), hours...)
	g.Values = rows
	return nil
}

// Value returns the result of point at hour of year hoy.
func (g *AnalysisGrid) Value(point, hoy int) (float64, error) {
	if point < 0 || point >= len(g.Values) {
		return 0, engine.NewValidationError(fmt.Sprintf("point %d outside grid %s", point, g.Name), nil).
			WithCode(engine.ErrCodeOutOfRange)
	}
	col := g.column(hoy)
	if col < 0 {
		return 0, engine.NewValidationError(fmt.Sprintf("hour %d has no result in grid %s", hoy, g.Name), nil).
			WithCode(engine.ErrCodeInvalidHours)
	}
	return g.Values[point][col], nil
}

// Series returns the values of point for every loaded hour.
func (g *AnalysisGrid) Series(point int) ([]float64, error) {
	if point < 0 || point >= len(g.Values) {
		return nil, engine.NewValidationError(fmt.Sprintf("point %d outside grid %s", point, g.Name), nil).
			WithCode(engine.ErrCodeOutOfRange)
	}
	return append([]float64(nil), g.Values[point]...), nil
}

// Average returns the mean over all points at hour of year hoy.
func (g *AnalysisGrid) Average(hoy int) (float64, error) {
	col := g.column(hoy)
	if col < 0 || len(g.Values) == 0 {
		return 0, engine.NewValidationError(fmt.Sprintf("hour %d has no result in grid %s", hoy, g.Name), nil).
			WithCode(engine.ErrCodeInvalidHours)
	}
	var sum float64
	for _, row := range g.Values {
		sum += row[col]
	}
	return sum / float64(len(g.Values)), nil
}

func (g *AnalysisGrid) column(hoy int) int {
	for i, h := range g.Hours {
		if h == hoy {
			return i
		}
	}
	return -1
}

// TotalPoints returns the number of points across grids.
func TotalPoints(grids []*AnalysisGrid) int {
	n := 0
	for _, g := range grids {
		n += g.Len()
	}
	return n
}

func badPoints(name string, line int, msg string) error {
	return engine.NewArtifactError(msg, nil).
		WithCode(engine.ErrCodeMalformedArtifact).
		WithResource(name).
		WithDetail("line", line)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
