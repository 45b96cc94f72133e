package results

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/daylight/pkg/grid"
)

// WriteCSV writes one row per point: grid name, point index, then one value
// per hour.
func WriteCSV(w io.Writer, grids []*grid.AnalysisGrid) error {
	cw := csv.NewWriter(w)
	var hours []int
	if len(grids) > 0 {
		hours = grids[0].Hours
	}
	header := []string{"grid", "point"}
	for _, h := range hours {
		header = append(header, strconv.Itoa(h))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, g := range grids {
		if len(g.Hours) != len(hours) {
			return fmt.Errorf("grid %s has %d hours, expected %d", g.Name, len(g.Hours), len(hours))
		}
		for i, row := range g.Values {
			record := []string{g.Name, strconv.Itoa(i)}
			for _, v := range row {
				record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// GridSummary is the exported form of one grid's results.
type GridSummary struct {
	Name    string      `yaml:"name"`
	Points  int         `yaml:"points"`
	Hours   []int       `yaml:"hours"`
	Average []float64   `yaml:"average"`
	Values  [][]float64 `yaml:"values"`
}

// Summarize returns the exported form of grids.
func Summarize(grids []*grid.AnalysisGrid) []GridSummary {
	out := make([]GridSummary, 0, len(grids))
	for _, g := range grids {
		s := GridSummary{Name: g.Name, Points: g.Len(), Hours: g.Hours, Values: g.Values}
		for _, h := range g.Hours {
			avg, err := g.Average(h)
			if err != nil {
				continue
			}
			s.Average = append(s.Average, avg)
		}
		out = append(out, s)
	}
	return out
}

// WriteYAML writes the grid summaries as a YAML document.
func WriteYAML(w io.Writer, grids []*grid.AnalysisGrid) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]interface{}{"grids": Summarize(grids)}); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return enc.Close()
}
