package sky

import (
	"fmt"

	"github.com/openfroyo/daylight/pkg/cache"
	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/weather"
)

// HourSet is an ordered, duplicate-free list of hours of the year. The order
// is significant: it fixes the column order of every matrix built from it.
type HourSet struct {
	hours []int
}

// NewHourSet validates hours and keeps their order.
func NewHourSet(hours []int) (HourSet, error) {
	if len(hours) == 0 {
		return HourSet{}, engine.NewValidationError("hour set is empty", nil).
			WithCode(engine.ErrCodeInvalidHours)
	}
	seen := make(map[int]bool, len(hours))
	out := make([]int, len(hours))
	for i, h := range hours {
		if h < 0 || h >= weather.HoursPerYear {
			return HourSet{}, engine.NewValidationError(
				fmt.Sprintf("hour %d outside 0..%d", h, weather.HoursPerYear-1), nil,
			).WithCode(engine.ErrCodeInvalidHours).WithDetail("index", i)
		}
		if seen[h] {
			return HourSet{}, engine.NewValidationError(fmt.Sprintf("duplicate hour %d", h), nil).
				WithCode(engine.ErrCodeInvalidHours).WithDetail("index", i)
		}
		seen[h] = true
		out[i] = h
	}
	return HourSet{hours: out}, nil
}

// AllHours returns 0..8759.
func AllHours() HourSet {
	hours := make([]int, weather.HoursPerYear)
	for i := range hours {
		hours[i] = i
	}
	return HourSet{hours: hours}
}

// Hours returns a copy of the hours in request order.
func (h HourSet) Hours() []int {
	out := make([]int, len(h.hours))
	copy(out, h.hours)
	return out
}

// Len returns the number of requested hours.
func (h HourSet) Len() int { return len(h.hours) }

// At returns the hour at position i.
func (h HourSet) At(i int) int { return h.hours[i] }

// Key returns the manifest key of the set.
func (h HourSet) Key() string { return cache.HoursKey(h.hours) }
