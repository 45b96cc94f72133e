// Package sky provides the illumination sources of a simulation: static skies,
// climate-based sky matrices and discrete sun matrices.
package sky

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/weather"
)

// Sky is any illumination source description.
type Sky interface {
	// Name is a deterministic identifier used as the cache and file key.
	Name() string

	// IsClimateBased reports whether the sky is derived from weather data.
	IsClimateBased() bool
}

// StaticSky is a sky written once as a scene description file.
type StaticSky interface {
	Sky

	// Render writes the sky description.
	Render(w io.Writer) error
}

// glowHemispheres closes a generated sky with sky and ground glow sources.
const glowHemispheres = `skyfunc glow sky_mat 0 0 4 1 1 1 0
sky_mat source sky 0 0 4 0 0 1 180
skyfunc glow ground_glow 0 0 4 1 1 1 0
ground_glow source ground 0 0 4 0 0 -1 180
`

// CertainIlluminance is a uniform overcast sky producing a fixed horizontal
// illuminance. It is not climate based.
type CertainIlluminance struct {
	Illuminance float64
}

// NewCertainIlluminance creates an overcast sky of the given illuminance in lux.
func NewCertainIlluminance(lux float64) (*CertainIlluminance, error) {
	if lux <= 0 {
		return nil, engine.NewValidationError(fmt.Sprintf("illuminance must be positive, got %v", lux), nil).
			WithCode(engine.ErrCodeOutOfRange)
	}
	return &CertainIlluminance{Illuminance: lux}, nil
}

// Name returns the sky name.
func (c *CertainIlluminance) Name() string {
	return "CertainIlluminance_" + ftoa(c.Illuminance)
}

// IsClimateBased returns false.
func (c *CertainIlluminance) IsClimateBased() bool { return false }

// Render writes a gensky overcast sky with zenith brightness illuminance/179.
func (c *CertainIlluminance) Render(w io.Writer) error {
	_, err := fmt.Fprintf(w, "# certain illuminance sky: %s lux\n!gensky -ang 45 0 -c -B %s\n%s",
		ftoa(c.Illuminance), strconv.FormatFloat(c.Illuminance/179, 'f', 6, 64), glowHemispheres)
	return err
}

// PointInTime is a climate-based sky for a single hour of the year.
type PointInTime struct {
	Location weather.Location
	Hour     int
	Direct   float64
	Diffuse  float64
	North    float64
}

// NewPointInTime creates a sky from the weather series at hour hoy.
func NewPointInTime(series weather.Series, hoy int, north float64) (*PointInTime, error) {
	if series == nil {
		return nil, engine.NewConfigurationError("point-in-time sky needs a weather series", nil).
			WithCode(engine.ErrCodeInvalidSky)
	}
	if _, err := NewHourSet([]int{hoy}); err != nil {
		return nil, err
	}
	direct, diffuse, err := series.Irradiance(hoy)
	if err != nil {
		return nil, engine.NewConfigurationError("failed to read irradiance", err).WithCode(engine.ErrCodeInvalidSky)
	}
	return &PointInTime{
		Location: series.Location(),
		Hour:     hoy,
		Direct:   direct,
		Diffuse:  diffuse,
		North:    north,
	}, nil
}

// Name returns the sky name.
func (p *PointInTime) Name() string {
	month, day, hour := weather.HOYToDate(p.Hour)
	return fmt.Sprintf("pit_%s_%d_%d_%d", locationKey(p.Location, p.North), month, day, hour)
}

// IsClimateBased returns true.
func (p *PointInTime) IsClimateBased() bool { return true }

// Render writes an inline gendaylit generator for the hour.
func (p *PointInTime) Render(w io.Writer) error {
	month, day, hour := weather.HOYToDate(p.Hour)
	req := SunRequest{
		Month: month, Day: day, Hour: float64(hour) + 0.5,
		Direct: p.Direct, Diffuse: p.Diffuse,
		Latitude: p.Location.Latitude, Longitude: p.Location.Longitude,
		Meridian: p.Location.Meridian(), Rotation: p.North,
	}
	line := "!gendaylit " + strings.Join(req.GendaylitArgs(), " ")
	if p.North != 0 {
		line += " | xform -rz " + ftoa(p.North)
	}
	_, err := fmt.Fprintf(w, "# point in time sky\n%s\n%s", line, glowHemispheres)
	return err
}

// locationKey renders the location-and-rotation part of sky names.
func locationKey(l weather.Location, north float64) string {
	station := l.StationID
	if station == "" {
		station = "0"
	}
	return strings.Join([]string{sanitize(station), ftoa(l.Latitude), ftoa(l.Longitude), ftoa(north)}, "_")
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
