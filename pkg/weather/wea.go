// Package weather provides the hourly irradiance time series consumed by sky providers.
package weather

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// HoursPerYear is the number of hours in a non-leap year.
const HoursPerYear = 8760

var daysInMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// Location is a site on the globe. Longitude is east-positive and TimeZone
// is in hours east of UTC.
type Location struct {
	City      string  `json:"city" yaml:"city"`
	StationID string  `json:"station_id,omitempty" yaml:"station_id,omitempty"`
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`
	TimeZone  float64 `json:"time_zone" yaml:"time_zone" validate:"gte=-12,lte=14"`
	Elevation float64 `json:"elevation" yaml:"elevation"`
}

// Meridian returns the standard meridian of the time zone in degrees east.
func (l Location) Meridian() float64 {
	return 15 * l.TimeZone
}

// Series is an hourly irradiance time series with location metadata.
type Series interface {
	// Location returns the site the series was recorded at.
	Location() Location

	// Irradiance returns direct normal and diffuse horizontal irradiance in
	// W/m2 for an hour of the year.
	Irradiance(hoy int) (direct, diffuse float64, err error)
}

// Wea is a full-year hourly series in the .wea text format.
type Wea struct {
	location Location
	direct   []float64
	diffuse  []float64
}

// NewWea creates an empty (all-dark) year for location.
func NewWea(location Location) *Wea {
	return &Wea{
		location: location,
		direct:   make([]float64, HoursPerYear),
		diffuse:  make([]float64, HoursPerYear),
	}
}

// Location returns the site of the series.
func (w *Wea) Location() Location { return w.location }

// Irradiance returns direct normal and diffuse horizontal irradiance at hoy.
func (w *Wea) Irradiance(hoy int) (float64, float64, error) {
	if hoy < 0 || hoy >= HoursPerYear {
		return 0, 0, fmt.Errorf("hour of year %d outside 0..%d", hoy, HoursPerYear-1)
	}
	return w.direct[hoy], w.diffuse[hoy], nil
}

// SetIrradiance sets the values at hoy.
func (w *Wea) SetIrradiance(hoy int, direct, diffuse float64) error {
	if hoy < 0 || hoy >= HoursPerYear {
		return fmt.Errorf("hour of year %d outside 0..%d", hoy, HoursPerYear-1)
	}
	w.direct[hoy] = direct
	w.diffuse[hoy] = diffuse
	return nil
}

// ReadWea parses a .wea file. The header stores longitude and meridian
// west-positive; they are converted to east-positive on read.
func ReadWea(r io.Reader) (*Wea, error) {
	w := NewWea(Location{})
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)

		if len(fields) >= 5 && isNumber(fields[0]) {
			if err := w.readRow(fields); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			continue
		}
		if err := w.readHeader(fields); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wea: %w", err)
	}
	return w, nil
}

func (w *Wea) readHeader(fields []string) error {
	key := fields[0]
	value := strings.Join(fields[1:], " ")
	parse := func() (float64, error) {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q", key, value)
		}
		return v, nil
	}

	switch key {
	case "place":
		w.location.City = value
	case "latitude":
		v, err := parse()
		if err != nil {
			return err
		}
		w.location.Latitude = v
	case "longitude":
		v, err := parse()
		if err != nil {
			return err
		}
		w.location.Longitude = -v
	case "time_zone":
		v, err := parse()
		if err != nil {
			return err
		}
		w.location.TimeZone = -v / 15
	case "site_elevation":
		v, err := parse()
		if err != nil {
			return err
		}
		w.location.Elevation = v
	case "weather_data_file_units":
	default:
		return fmt.Errorf("unknown wea header %q", key)
	}
	return nil
}

func (w *Wea) readRow(fields []string) error {
	values := make([]float64, 5)
	for i := range values {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", fields[i])
		}
		values[i] = v
	}
	hoy, err := DateToHOY(int(values[0]), int(values[1]), int(math.Floor(values[2])))
	if err != nil {
		return err
	}
	return w.SetIrradiance(hoy, values[3], values[4])
}

// WriteWea writes the header and one row per requested hour. The hour
// column carries the half-hour convention (hour + 0.5).
func WriteWea(out io.Writer, s Series, hours []int) error {
	bw := bufio.NewWriter(out)
	loc := s.Location()
	fmt.Fprintf(bw, "place %s\n", placeName(loc))
	fmt.Fprintf(bw, "latitude %s\n", ftoa(loc.Latitude))
	fmt.Fprintf(bw, "longitude %s\n", ftoa(-loc.Longitude))
	fmt.Fprintf(bw, "time_zone %s\n", ftoa(-loc.Meridian()))
	fmt.Fprintf(bw, "site_elevation %s\n", ftoa(loc.Elevation))
	fmt.Fprintln(bw, "weather_data_file_units 1")

	for _, hoy := range hours {
		direct, diffuse, err := s.Irradiance(hoy)
		if err != nil {
			return err
		}
		month, day, hour := HOYToDate(hoy)
		fmt.Fprintf(bw, "%d %d %.3f %s %s\n", month, day, float64(hour)+0.5, ftoa(direct), ftoa(diffuse))
	}
	return bw.Flush()
}

// HOYToDate converts an hour of a non-leap year to month (1-12), day (1-31)
// and whole hour (0-23).
func HOYToDate(hoy int) (month, day, hour int) {
	doy := hoy / 24
	hour = hoy % 24
	for m, n := range daysInMonth {
		if doy < n {
			return m + 1, doy + 1, hour
		}
		doy -= n
	}
	return 12, 31, hour
}

// DateToHOY converts month (1-12), day and whole hour (0-23) to an hour of year.
func DateToHOY(month, day, hour int) (int, error) {
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("invalid month %d", month)
	}
	if day < 1 || day > daysInMonth[month-1] {
		return 0, fmt.Errorf("invalid day %d for month %d", day, month)
	}
	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour %d", hour)
	}
	doy := day - 1
	for m := 0; m < month-1; m++ {
		doy += daysInMonth[m]
	}
	return doy*24 + hour, nil
}

func placeName(l Location) string {
	name := l.City
	if name == "" {
		name = "unknown"
	}
	return strings.ReplaceAll(name, " ", "_")
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
