package sky

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/weather"
)

// SkyComponent selects which part of the sky a matrix carries.
type SkyComponent int

const (
	// ComponentTotal includes sun and sky.
	ComponentTotal SkyComponent = iota

	// ComponentSkyOnly excludes the sun.
	ComponentSkyOnly

	// ComponentSunOnly excludes the sky.
	ComponentSunOnly
)

// SkyMatrix is a climate-based sky discretized into patches for an hour set.
type SkyMatrix struct {
	Weather   weather.Series
	Density   int
	North     float64
	Hours     HourSet
	Component SkyComponent

	// Solar switches the matrix from visible to solar radiance.
	Solar bool
}

// NewSkyMatrix creates a sky matrix. Density is the sky subdivision and must
// be at least 1.
func NewSkyMatrix(series weather.Series, density int, north float64, hours HourSet) (*SkyMatrix, error) {
	if series == nil {
		return nil, engine.NewConfigurationError("sky matrix needs a weather series", nil).
			WithCode(engine.ErrCodeInvalidSky)
	}
	if density < 1 {
		return nil, engine.NewValidationError(fmt.Sprintf("sky density must be at least 1, got %d", density), nil).
			WithCode(engine.ErrCodeOutOfRange)
	}
	if hours.Len() == 0 {
		return nil, engine.NewValidationError("sky matrix needs at least one hour", nil).
			WithCode(engine.ErrCodeInvalidHours)
	}
	return &SkyMatrix{Weather: series, Density: density, North: north, Hours: hours}, nil
}

// Name returns the deterministic base name of the matrix files.
func (m *SkyMatrix) Name() string {
	name := fmt.Sprintf("skymtx_r%d_%s", m.Density, locationKey(m.Weather.Location(), m.North))
	switch m.Component {
	case ComponentSkyOnly:
		name += "_sky"
	case ComponentSunOnly:
		name += "_sun"
	}
	if m.Solar {
		name += "_solar"
	}
	return name
}

// IsClimateBased returns true.
func (m *SkyMatrix) IsClimateBased() bool { return true }

// Patches returns the number of matrix rows: ground plus the subdivided
// Tregenza sky.
func (m *SkyMatrix) Patches() int {
	return 1 + 144*m.Density*m.Density + 1
}

// WriteWea writes the requested hours of the weather series, in order, to
// dir/<name>.wea and returns the path.
func (m *SkyMatrix) WriteWea(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", engine.NewArtifactError("failed to create sky folder", err).WithResource(dir)
	}
	path := filepath.Join(dir, m.Name()+".wea")
	err := writeFile(path, func(w *bufio.Writer) error {
		return weather.WriteWea(w, m.Weather, m.Hours.hours)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// GendaymtxArgs returns the matrix generator arguments for the weather file.
func (m *SkyMatrix) GendaymtxArgs(wea string) []string {
	args := []string{"-m", strconv.Itoa(m.Density)}
	if m.North != 0 {
		args = append(args, "-r", ftoa(m.North))
	}
	switch m.Component {
	case ComponentSkyOnly:
		args = append(args, "-s")
	case ComponentSunOnly:
		args = append(args, "-d")
	}
	if m.Solar {
		args = append(args, "-O1")
	} else {
		args = append(args, "-O0")
	}
	return append(args, wea)
}

// WriteReceiver writes the sky and ground receiver used to compute daylight
// coefficients for this density.
func (m *SkyMatrix) WriteReceiver(w io.Writer) error {
	_, err := fmt.Fprintf(w, `#@rfluxmtx h=u u=Y
void glow ground_glow
0
0
4 1 1 1 0

ground_glow source ground
0
0
4 0 0 -1 180

#@rfluxmtx h=r%d u=Y
void glow sky_glow
0
0
4 1 1 1 0

sky_glow source sky
0
0
4 0 0 1 180
`, m.Density)
	return err
}
