package policy

import (
	"github.com/openfroyo/daylight/pkg/config"
	"github.com/openfroyo/daylight/pkg/engine"
	"github.com/openfroyo/daylight/pkg/grid"
	"github.com/openfroyo/daylight/pkg/sky"
)

// NewInput describes a built recipe. plan may be nil before the recipe is
// written.
func NewInput(b *config.Built, plan *engine.Plan, remote bool) *Input {
	in := &Input{
		Project:     b.File.Project,
		Recipe:      b.File.Recipe,
		Type:        b.File.Type,
		Parameters:  make(map[string]string),
		TotalPoints: grid.TotalPoints(b.Grids),
		Reuse:       b.File.ReuseEnabled(),
		Remote:      remote,
		Sky: SkyInput{
			Kind:         b.File.Sky.Kind,
			Name:         b.Sky.Name(),
			ClimateBased: b.Sky.IsClimateBased(),
			Hours:        1,
		},
	}

	switch s := b.Sky.(type) {
	case *sky.SkyMatrix:
		in.Sky.Density = s.Density
		in.Sky.Hours = s.Hours.Len()
	case *sky.SunMatrix:
		in.Sky.Hours = s.Hours.Len()
	}

	if b.Parameters != nil {
		if q, ok := b.Parameters.Quality(); ok {
			in.Quality = &q
		}
		for _, k := range b.Parameters.Keys() {
			if v, err := b.Parameters.Get(k); err == nil && v.IsSet() {
				in.Parameters[string(k)] = v.String()
			}
		}
	}

	for _, g := range b.Grids {
		in.Grids = append(in.Grids, GridInput{Name: g.Name, Points: g.Len()})
	}

	if plan != nil {
		in.Plan = &PlanInput{
			Steps:  len(plan.Steps),
			Reused: len(plan.Reused),
			Stages: make(map[string]int),
		}
		for _, s := range plan.Steps {
			in.Plan.Stages[string(s.Stage)]++
		}
	}
	return in
}
