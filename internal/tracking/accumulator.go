package tracking

import (
	"math"

	"backend-triptracker/internal/shared/geo"
)

// Accumulator folds accepted fixes into running trip totals. Its state
// depends only on the ordered fixes applied to it.
type Accumulator struct {
	// DistanceKm is rounded to 2 decimals after every step.
	DistanceKm  float64
	MaxSpeedMps float64
	LastFix     *Fix
}

func (a *Accumulator) Apply(o Outcome) {
	fix := o.Fix

	if o.Kind == UseForDistance && a.LastFix != nil {
		delta := geo.DistanceKm(a.LastFix.Coords, fix.Coords)
		if !math.IsNaN(delta) {
			a.DistanceKm = geo.Round2(a.DistanceKm + delta)
		}
	}

	if fix.HasSpeed() && fix.SpeedMps > a.MaxSpeedMps {
		a.MaxSpeedMps = fix.SpeedMps
	}

	a.LastFix = &fix
}

// Replay runs fixes through the filter and a fresh accumulator. It returns
// the resulting totals and the fixes that were accepted, in order.
func Replay(fixes []Fix, thresholdM float64) (Accumulator, []Fix) {
	var acc Accumulator
	accepted := make([]Fix, 0, len(fixes))
	for _, f := range fixes {
		outcome, err := Accept(f, thresholdM)
		if err != nil {
			continue
		}
		acc.Apply(outcome)
		accepted = append(accepted, outcome.Fix)
	}
	return acc, accepted
}
