package sky

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/daylight/pkg/cache"
	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/weather"
)

// Recorder observes sky matrix builds.
type Recorder interface {
	cache.Recorder
	RecordSunMatrix(retained, skipped int, reused bool)
}

// SunArtifacts are the three files of a sun matrix.
type SunArtifacts struct {
	// Analemma holds one sun description per line.
	Analemma string

	// SunList holds the modifier name of each sun, one per line.
	SunList string

	// Matrix is the suns-by-hours radiance matrix.
	Matrix string

	// Suns is the number of retained suns.
	Suns int

	// Reused reports whether the files were served from a previous build.
	Reused bool
}

// SunMatrix is a discrete sun source per sunny hour of an hour set.
type SunMatrix struct {
	Weather   weather.Series
	North     float64
	Hours     HourSet
	Generator SunGenerator
	Recorder  Recorder
}

// NewSunMatrix creates a sun matrix using gendaylit as its generator.
func NewSunMatrix(series weather.Series, north float64, hours HourSet) (*SunMatrix, error) {
	if series == nil {
		return nil, engine.NewConfigurationError("sun matrix needs a weather series", nil).
			WithCode(engine.ErrCodeInvalidSky)
	}
	if hours.Len() == 0 {
		return nil, engine.NewValidationError("sun matrix needs at least one hour", nil).
			WithCode(engine.ErrCodeInvalidHours)
	}
	return &SunMatrix{
		Weather:   series,
		North:     north,
		Hours:     hours,
		Generator: NewGendaylitGenerator(),
	}, nil
}

// Name returns the deterministic base name of the sun matrix files.
func (s *SunMatrix) Name() string {
	return "sunmtx_" + locationKey(s.Weather.Location(), s.North)
}

// IsClimateBased returns true.
func (s *SunMatrix) IsClimateBased() bool { return true }

// Paths returns the artifact and manifest paths inside dir.
func (s *SunMatrix) Paths(dir string) (analemma, sunList, matrix, manifest string) {
	base := filepath.Join(dir, s.Name())
	return base + ".ann", base + ".sun", base + ".mtx", base + ".hrs"
}

// Build writes the analemma, sun list and matrix into dir. With reuse set,
// files built earlier for exactly the same hour list are returned untouched.
func (s *SunMatrix) Build(ctx context.Context, dir string, reuse bool) (*SunArtifacts, error) {
	ann, sun, mtx, hrs := s.Paths(dir)
	art := &SunArtifacts{Analemma: ann, SunList: sun, Matrix: mtx}
	key := s.Hours.Key()

	policy := cache.NewPolicy(reuse)
	if s.Recorder != nil {
		policy.Recorder = s.Recorder
	}
	if policy.Check(hrs, key, ann, sun, mtx) {
		h, err := readHeaderFile(mtx)
		if err == nil {
			art.Suns = h.NRows
			art.Reused = true
			s.record(art.Suns, 0, true)
			log.Info().Str("matrix", mtx).Int("suns", art.Suns).Msg("Reusing sun matrix")
			return art, nil
		}
		log.Warn().Err(err).Str("matrix", mtx).Msg("Cached sun matrix unreadable, rebuilding")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, engine.NewArtifactError("failed to create sky folder", err).WithResource(dir)
	}
	if err := os.Remove(hrs); err != nil && !os.IsNotExist(err) {
		return nil, engine.NewArtifactError("failed to remove stale manifest", err).WithResource(hrs)
	}

	suns, columns, skipped, err := s.generate(ctx)
	if err != nil {
		return nil, err
	}

	if err := writeLines(ann, len(suns), func(i int) string { return suns[i].String() }); err != nil {
		return nil, err
	}
	if err := writeLines(sun, len(suns), func(i int) string { return suns[i].Light.Name }); err != nil {
		return nil, err
	}

	loc := s.Weather.Location()
	rows := make([][][3]float64, len(suns))
	for i, d := range suns {
		rows[i] = make([][3]float64, s.Hours.Len())
		rows[i][columns[i]] = d.Radiance()
	}
	header := MatrixHeader{
		Comment:   "Sun matrix created by daylight",
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		NRows:     len(suns),
		NCols:     s.Hours.Len(),
		NComp:     3,
		Format:    "ascii",
	}
	if err := writeFile(mtx, func(w *bufio.Writer) error { return WriteMatrix(w, header, rows, true) }); err != nil {
		return nil, err
	}

	if err := cache.WriteManifest(hrs, key); err != nil {
		return nil, engine.NewArtifactError("failed to write manifest", err).WithResource(hrs)
	}

	art.Suns = len(suns)
	s.record(len(suns), skipped, false)
	log.Info().
		Str("matrix", mtx).
		Int("hours", s.Hours.Len()).
		Int("suns", len(suns)).
		Int("skipped", skipped).
		Msg("Sun matrix built")
	return art, nil
}

// generate asks the generator for every hour with irradiance and keeps the
// suns with non-zero radiance. columns[i] is the position of sun i in the
// requested hour list.
func (s *SunMatrix) generate(ctx context.Context) ([]*SunDescription, []int, int, error) {
	gen := s.Generator
	if gen == nil {
		gen = NewGendaylitGenerator()
	}
	loc := s.Weather.Location()

	var suns []*SunDescription
	var columns []int
	skipped := 0
	for col, hoy := range s.Hours.hours {
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, err
		}
		direct, diffuse, err := s.Weather.Irradiance(hoy)
		if err != nil {
			return nil, nil, 0, engine.NewConfigurationError("failed to read irradiance", err).
				WithCode(engine.ErrCodeInvalidSky).WithDetail("hour", hoy)
		}
		if direct+diffuse == 0 {
			skipped++
			continue
		}

		month, day, hour := weather.HOYToDate(hoy)
		lines, err := gen.Generate(ctx, SunRequest{
			Month:     month,
			Day:       day,
			Hour:      float64(hour) + 0.5,
			Direct:    direct,
			Diffuse:   diffuse,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Meridian:  loc.Meridian(),
			Rotation:  s.North,
		})
		if err != nil {
			return nil, nil, 0, fmt.Errorf("hour %d: %w", hoy, err)
		}
		desc, err := ParseSunDescription(lines)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("hour %d: %w", hoy, err)
		}
		if desc == nil || !desc.HasRadiance() {
			skipped++
			continue
		}

		suns = append(suns, desc.Renamed(fmt.Sprintf("solar%d", len(suns)+1)))
		columns = append(columns, col)
	}
	return suns, columns, skipped, nil
}

func (s *SunMatrix) record(retained, skipped int, reused bool) {
	if s.Recorder != nil {
		s.Recorder.RecordSunMatrix(retained, skipped, reused)
	}
}

func readHeaderFile(path string) (MatrixHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return MatrixHeader{}, err
	}
	defer f.Close()
	return ReadMatrixHeader(f)
}

func writeLines(path string, n int, line func(int) string) error {
	return writeFile(path, func(w *bufio.Writer) error {
		for i := 0; i < n; i++ {
			if _, err := fmt.Fprintln(w, line(i)); err != nil {
				return err
			}
		}
		if n == 0 {
			_, err := fmt.Fprintln(w)
			return err
		}
		return nil
	})
}

func writeFile(path string, fill func(w *bufio.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return engine.NewArtifactError("failed to create file", err).WithResource(path)
	}
	w := bufio.NewWriter(f)
	if err := fill(w); err != nil {
		f.Close()
		return engine.NewArtifactError("failed to write file", err).WithResource(path)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return engine.NewArtifactError("failed to write file", err).WithResource(path)
	}
	if err := f.Close(); err != nil {
		return engine.NewArtifactError("failed to close file", err).WithResource(path)
	}
	return nil
}
