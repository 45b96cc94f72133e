package grid

import (
	"bytes"
	"strings"
	"testing"

	"github.com/openfroyo/daylight/pkg/engine"
)

func TestFromPointsAndVectors(t *testing.T) {
	g, err := FromPointsAndVectors("floor", [][3]float64{{0, 0, 0.8}, {1, 0, 0.8}}, nil)
	if err != nil {
		t.Fatalf("FromPointsAndVectors failed: %v", err)
	}
	if g.Len() != 2 {
		t.Fatalf("expected 2 points, got %d", g.Len())
	}
	for _, p := range g.Points {
		if p.Direction != DefaultDirection {
			t.Errorf("expected default direction, got %v", p.Direction)
		}
	}

	g, err = FromPointsAndVectors("wall", [][3]float64{{0, 0, 1}}, [][3]float64{{1, 0, 0}})
	if err != nil {
		t.Fatalf("FromPointsAndVectors failed: %v", err)
	}
	if g.Points[0].Direction != [3]float64{1, 0, 0} {
		t.Errorf("expected explicit direction, got %v", g.Points[0].Direction)
	}
}

func TestFromPointsAndVectors_Errors(t *testing.T) {
	tests := []struct {
		name       string
		positions  [][3]float64
		directions [][3]float64
	}{
		{"no points", nil, nil},
		{"direction count mismatch", [][3]float64{{0, 0, 0}, {1, 1, 1}}, [][3]float64{{0, 0, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromPointsAndVectors("g", tt.positions, tt.directions)
			if !engine.IsConfiguration(err) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if engine.ErrorCode(err) != engine.ErrCodeInvalidGrid {
				t.Errorf("expected code %s, got %s", engine.ErrCodeInvalidGrid, engine.ErrorCode(err))
			}
		})
	}
}

func TestWriteAndReadPoints(t *testing.T) {
	a, _ := FromPointsAndVectors("a", [][3]float64{{0, 0, 0.8}, {0.5, 0, 0.8}}, nil)
	b, _ := FromPointsAndVectors("b", [][3]float64{{2, 3, 1.5}}, [][3]float64{{0, -1, 0}})

	var buf bytes.Buffer
	if err := WritePoints(&buf, a, b); err != nil {
		t.Fatalf("WritePoints failed: %v", err)
	}
	want := "0 0 0.8 0 0 1\n0.5 0 0.8 0 0 1\n2 3 1.5 0 -1 0\n"
	if buf.String() != want {
		t.Errorf("unexpected points file:\n got %q\nwant %q", buf.String(), want)
	}

	g, err := ReadPoints("all", &buf)
	if err != nil {
		t.Fatalf("ReadPoints failed: %v", err)
	}
	if g.Len() != 3 || g.Points[2].Direction != [3]float64{0, -1, 0} {
		t.Errorf("unexpected grid %+v", g.Points)
	}
	if TotalPoints([]*AnalysisGrid{a, b}) != 3 {
		t.Errorf("expected 3 total points")
	}
}

func TestReadPoints_Formats(t *testing.T) {
	g, err := ReadPoints("p", strings.NewReader("# sensors\n1 2 3\n\n4 5 6 0 1 0\n"))
	if err != nil {
		t.Fatalf("ReadPoints failed: %v", err)
	}
	if g.Points[0].Direction != DefaultDirection || g.Points[1].Direction != [3]float64{0, 1, 0} {
		t.Errorf("unexpected directions %+v", g.Points)
	}

	for _, input := range []string{"1 2\n", "1 2 x\n", ""} {
		if _, err := ReadPoints("p", strings.NewReader(input)); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestAnalysisGrid_Values(t *testing.T) {
	g, _ := FromPointsAndVectors("g", [][3]float64{{0, 0, 0}, {1, 0, 0}}, nil)
	if err := g.SetValues([]int{10, 11}, [][]float64{{100, 200}, {300, 400}}); err != nil {
		t.Fatalf("SetValues failed: %v", err)
	}

	v, err := g.Value(1, 11)
	if err != nil || v != 400 {
		t.Errorf("expected 400, got %v (%v)", v, err)
	}
	avg, err := g.Average(10)
	if err != nil || avg != 200 {
		t.Errorf("expected average 200, got %v (%v)", avg, err)
	}
	series, err := g.Series(0)
	if err != nil || len(series) != 2 || series[1] != 200 {
		t.Errorf("unexpected series %v (%v)", series, err)
	}

	if _, err := g.Value(0, 12); !engine.IsValidation(err) {
		t.Errorf("expected validation error for unknown hour, got %v", err)
	}
	if _, err := g.Value(5, 10); !engine.IsValidation(err) {
		t.Errorf("expected validation error for unknown point, got %v", err)
	}
}

func TestAnalysisGrid_SetValuesShape(t *testing.T) {
	g, _ := FromPointsAndVectors("g", [][3]float64{{0, 0, 0}, {1, 0, 0}}, nil)
	if err := g.SetValues([]int{1}, [][]float64{{1}}); !engine.IsArtifact(err) {
		t.Errorf("expected artifact error for missing row, got %v", err)
	}
	if err := g.SetValues([]int{1, 2}, [][]float64{{1, 2}, {3}}); !engine.IsArtifact(err) {
		t.Errorf("expected artifact error for short row, got %v", err)
	}
}
