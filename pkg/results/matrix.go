package results

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/openfroyo/daylight/pkg/engine"
)

// ReadMatrix reads whitespace-delimited rows of cols samples. A leading
// "#?RADIANCE" header, terminated by a blank line, is skipped; its NCOMP
// entry decides the sample width. Without a header each row may hold cols
// scalars or cols triplets. Triplets are reduced with the photometric
// weights and factor.
func ReadMatrix(r io.Reader, cols int, factor float64) ([][]float64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)

	ncomp := 0
	lineNo := 0
	var rows [][]float64
	first := true
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if first {
			first = false
			if strings.HasPrefix(line, "#?RADIANCE") {
				n, err := skipHeader(sc, &lineNo)
				if err != nil {
					return nil, err
				}
				ncomp = n
				continue
			}
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		width := ncomp
		if width == 0 {
			switch len(fields) {
			case cols:
				width = 1
			case 3 * cols:
				width = 3
			}
		}
		if width == 0 || len(fields) != width*cols {
			return nil, malformed(lineNo, fmt.Sprintf("row has %d values, expected %d samples", len(fields), cols))
		}

		values := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, malformed(lineNo, fmt.Sprintf("invalid number %q", f))
			}
			values[i] = v
		}
		rows = append(rows, reduce(values, width, factor))
	}
	if err := sc.Err(); err != nil {
		return nil, engine.NewArtifactError("failed to read results", err)
	}
	return rows, nil
}

// skipHeader consumes header lines up to the blank separator and returns the
// declared NCOMP, or 0 when absent.
func skipHeader(sc *bufio.Scanner, lineNo *int) (int, error) {
	ncomp := 0
	for sc.Scan() {
		*lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			return ncomp, nil
		}
		if v, ok := strings.CutPrefix(line, "NCOMP="); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || (n != 1 && n != 3) {
				return 0, malformed(*lineNo, fmt.Sprintf("unsupported NCOMP %q", v))
			}
			ncomp = n
		}
	}
	return 0, malformed(*lineNo, "header is not terminated")
}

func reduce(values []float64, width int, factor float64) []float64 {
	if width == 1 {
		return values
	}
	out := make([]float64, len(values)/3)
	for i := range out {
		r, g, b := values[3*i], values[3*i+1], values[3*i+2]
		out[i] = (WeightRed*r + WeightGreen*g + WeightBlue*b) * factor
	}
	return out
}

func malformed(line int, msg string) error {
	return engine.NewArtifactError(msg, nil).
		WithCode(engine.ErrCodeMalformedArtifact).
		WithOperation("read results").
		WithDetail("line", line)
}
