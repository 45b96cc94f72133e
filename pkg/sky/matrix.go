package sky

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/openfroyo/daylight/pkg/engine"
)

// MatrixMagic is the first line of every matrix file.
const MatrixMagic = "#?RADIANCE"

// MatrixHeader is the self-describing header of a matrix file.
type MatrixHeader struct {
	Comment   string
	Latitude  float64
	// Longitude is east-positive, as in the weather file.
	Longitude float64
	NRows     int
	NCols     int
	NComp     int
	Format    string
}

// Matrix is a parsed ascii matrix. Rows hold NRows rows of NCols triplets;
// Ground holds the optional trailing ground row.
type Matrix struct {
	Header MatrixHeader
	Rows   [][][3]float64
	Ground [][3]float64
}

// WriteMatrix writes header and rows. Each row is written as NCols lines of
// one triplet followed by a blank line. An all-zero ground row closes the
// body when ground is true.
func WriteMatrix(w io.Writer, h MatrixHeader, rows [][][3]float64, ground bool) error {
	if len(rows) != h.NRows {
		return engine.NewArtifactError(fmt.Sprintf("matrix has %d rows, header declares %d", len(rows), h.NRows), nil).
			WithCode(engine.ErrCodeMalformedArtifact)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, MatrixMagic)
	if h.Comment != "" {
		fmt.Fprintln(bw, h.Comment)
	}
	fmt.Fprintf(bw, "LATLONG= %s %s\n", ftoa(h.Latitude), ftoa(h.Longitude))
	fmt.Fprintf(bw, "NROWS=%d\n", h.NRows)
	fmt.Fprintf(bw, "NCOLS=%d\n", h.NCols)
	fmt.Fprintf(bw, "NCOMP=%d\n", h.NComp)
	fmt.Fprintf(bw, "FORMAT=%s\n", h.Format)
	fmt.Fprintln(bw)

	for i, row := range rows {
		if len(row) != h.NCols {
			return engine.NewArtifactError(fmt.Sprintf("matrix row %d has %d columns, header declares %d", i, len(row), h.NCols), nil).
				WithCode(engine.ErrCodeMalformedArtifact)
		}
		for _, v := range row {
			fmt.Fprintf(bw, "%s %s %s\n", gtoa(v[0]), gtoa(v[1]), gtoa(v[2]))
		}
		fmt.Fprintln(bw)
	}
	if ground {
		for j := 0; j < h.NCols; j++ {
			fmt.Fprintln(bw, "0 0 0")
		}
	}
	return bw.Flush()
}

// ReadMatrixHeader reads the header up to and including the blank line that
// ends it.
func ReadMatrixHeader(r io.Reader) (MatrixHeader, error) {
	return readHeader(bufio.NewScanner(r))
}

// ReadMatrix reads a three-component ascii matrix with an optional ground row.
func ReadMatrix(r io.Reader) (*Matrix, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	h, err := readHeader(sc)
	if err != nil {
		return nil, err
	}
	if h.NComp != 3 {
		return nil, badMatrix(fmt.Sprintf("NCOMP=%d, want 3", h.NComp))
	}

	var values []float64
	for sc.Scan() {
		for _, tok := range strings.Fields(sc.Text()) {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, badMatrix(fmt.Sprintf("invalid value %q", tok))
			}
			values = append(values, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, engine.NewArtifactError("failed to read matrix", err)
	}

	rowLen := h.NCols * 3
	body := h.NRows * rowLen
	if len(values) != body && len(values) != body+rowLen {
		return nil, badMatrix(fmt.Sprintf("matrix body has %d values, want %d", len(values), body))
	}

	m := &Matrix{Header: h, Rows: make([][][3]float64, h.NRows)}
	for i := 0; i < h.NRows; i++ {
		m.Rows[i] = triplets(values[i*rowLen : (i+1)*rowLen])
	}
	if len(values) > body {
		m.Ground = triplets(values[body:])
	}
	return m, nil
}

func readHeader(sc *bufio.Scanner) (MatrixHeader, error) {
	var h MatrixHeader
	if !sc.Scan() {
		return h, badMatrix("empty matrix")
	}
	if strings.TrimSpace(sc.Text()) != MatrixMagic {
		return h, badMatrix("missing " + MatrixMagic + " line")
	}

	seen := map[string]bool{}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			if h.Comment == "" {
				h.Comment = line
			}
			continue
		}
		value = strings.TrimSpace(value)
		var err error
		switch key {
		case "NROWS":
			h.NRows, err = strconv.Atoi(value)
		case "NCOLS":
			h.NCols, err = strconv.Atoi(value)
		case "NCOMP":
			h.NComp, err = strconv.Atoi(value)
		case "FORMAT":
			h.Format = value
		case "LATLONG":
			fields := strings.Fields(value)
			if len(fields) != 2 {
				return h, badMatrix("LATLONG needs two values")
			}
			if h.Latitude, err = strconv.ParseFloat(fields[0], 64); err == nil {
				h.Longitude, err = strconv.ParseFloat(fields[1], 64)
			}
		}
		if err != nil {
			return h, badMatrix(fmt.Sprintf("invalid %s value %q", key, value))
		}
		seen[key] = true
	}
	if err := sc.Err(); err != nil {
		return h, engine.NewArtifactError("failed to read matrix header", err)
	}
	for _, key := range []string{"NROWS", "NCOLS", "NCOMP"} {
		if !seen[key] {
			return h, badMatrix("missing " + key)
		}
	}
	return h, nil
}

func triplets(values []float64) [][3]float64 {
	out := make([][3]float64, len(values)/3)
	for j := range out {
		out[j] = [3]float64{values[3*j], values[3*j+1], values[3*j+2]}
	}
	return out
}

func badMatrix(msg string) error {
	return engine.NewArtifactError(msg, nil).
		WithCode(engine.ErrCodeMalformedArtifact).
		WithOperation("read matrix")
}
