package weather

import (
	"bytes"
	"strings"
	"testing"
)

const sampleWea = `place San_Francisco
latitude 37.62
longitude 122.4
time_zone 120
site_elevation 2.0
weather_data_file_units 1
1 1 0.500 0 0
1 1 11.500 512.5 88
12 31 23.500 0 0
`

func TestReadWea(t *testing.T) {
	w, err := ReadWea(strings.NewReader(sampleWea))
	if err != nil {
		t.Fatalf("Failed to read wea: %v", err)
	}

	loc := w.Location()
	if loc.City != "San_Francisco" || loc.Latitude != 37.62 {
		t.Errorf("Unexpected location %+v", loc)
	}
	if loc.Longitude != -122.4 {
		t.Errorf("Expected east-positive longitude -122.4, got %v", loc.Longitude)
	}
	if loc.TimeZone != -8 {
		t.Errorf("Expected time zone -8, got %v", loc.TimeZone)
	}

	direct, diffuse, err := w.Irradiance(11)
	if err != nil || direct != 512.5 || diffuse != 88 {
		t.Errorf("Expected 512.5/88 at hour 11, got %v/%v (%v)", direct, diffuse, err)
	}
	if _, _, err := w.Irradiance(HoursPerYear); err == nil {
		t.Error("Expected error for hour outside the year")
	}
}

func TestReadWea_BadHeader(t *testing.T) {
	if _, err := ReadWea(strings.NewReader("latitude north\n")); err == nil {
		t.Fatal("Expected error for non-numeric latitude")
	}
}

func TestWriteWea_RoundTrip(t *testing.T) {
	w, err := ReadWea(strings.NewReader(sampleWea))
	if err != nil {
		t.Fatalf("Failed to read wea: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteWea(&buf, w, []int{11}); err != nil {
		t.Fatalf("Failed to write wea: %v", err)
	}
	if !strings.Contains(buf.String(), "longitude 122.4\n") || !strings.Contains(buf.String(), "time_zone 120\n") {
		t.Errorf("Expected west-positive header, got:\n%s", buf.String())
	}
	if !strings.HasSuffix(buf.String(), "1 1 11.500 512.5 88\n") {
		t.Errorf("Unexpected rows:\n%s", buf.String())
	}

	back, err := ReadWea(&buf)
	if err != nil {
		t.Fatalf("Failed to re-read wea: %v", err)
	}
	if back.Location() != w.Location() {
		t.Errorf("Location changed on round trip: %+v vs %+v", back.Location(), w.Location())
	}
}

func TestHOYConversion(t *testing.T) {
	tests := []struct {
		hoy              int
		month, day, hour int
	}{
		{0, 1, 1, 0},
		{11, 1, 1, 11},
		{24 * 31, 2, 1, 0},
		{24*59 + 12, 3, 1, 12},
		{8759, 12, 31, 23},
	}
	for _, tt := range tests {
		m, d, h := HOYToDate(tt.hoy)
		if m != tt.month || d != tt.day || h != tt.hour {
			t.Errorf("HOYToDate(%d) = %d/%d %d, want %d/%d %d", tt.hoy, m, d, h, tt.month, tt.day, tt.hour)
		}
		back, err := DateToHOY(m, d, h)
		if err != nil || back != tt.hoy {
			t.Errorf("DateToHOY(%d, %d, %d) = %d (%v), want %d", m, d, h, back, err, tt.hoy)
		}
	}

	if _, err := DateToHOY(2, 30, 0); err == nil {
		t.Error("Expected error for February 30")
	}
}
