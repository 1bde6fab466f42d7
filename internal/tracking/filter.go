package tracking

import (
	"fmt"
	"math"
	"time"

	"backend-triptracker/internal/shared/geo"
)

// DefaultAccuracyThresholdM is the largest reported uncertainty that still
// counts toward distance.
const DefaultAccuracyThresholdM = 40.0

type OutcomeKind int

const (
	UseForDistance OutcomeKind = iota
	RecordOnly
)

func (k OutcomeKind) String() string {
	if k == UseForDistance {
		return "use_for_distance"
	}
	return "record_only"
}

type Outcome struct {
	Kind OutcomeKind
	Fix  Fix
}

// RawFix is a fix as delivered over the wire, before validation.
type RawFix struct {
	Coords    *geo.Coordinate `json:"coords"`
	AccuracyM *float64        `json:"accuracy_m"`
	SpeedMps  *float64        `json:"speed_mps"`
	Timestamp time.Time       `json:"timestamp"`
}

// ToFix validates presence of the coordinate and accuracy and fills
// defaults. A missing speed becomes UnknownSpeed and a missing timestamp
// becomes now. A fix without accuracy cannot pass the distance gate, so it
// is rejected.
func (r RawFix) ToFix(now time.Time) (Fix, error) {
	if r.Coords == nil {
		return Fix{}, fmt.Errorf("%w: missing coordinate", ErrFixRejected)
	}
	if r.AccuracyM == nil {
		return Fix{}, fmt.Errorf("%w: missing accuracy", ErrFixRejected)
	}
	fix := Fix{
		Coords:    *r.Coords,
		AccuracyM: *r.AccuracyM,
		SpeedMps:  UnknownSpeed,
		Timestamp: r.Timestamp,
	}
	if r.SpeedMps != nil {
		fix.SpeedMps = *r.SpeedMps
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = now
	}
	return fix, nil
}

// Accept classifies a fix. Every valid fix is recorded; only fixes whose
// accuracy is within the threshold are credited toward distance.
func Accept(raw Fix, thresholdM float64) (Outcome, error) {
	if !raw.Coords.Valid() {
		return Outcome{}, fmt.Errorf("%w: coordinate out of range (%v, %v)", ErrFixRejected, raw.Coords.Lat, raw.Coords.Lng)
	}
	if math.IsNaN(raw.AccuracyM) || raw.AccuracyM < 0 {
		return Outcome{}, fmt.Errorf("%w: invalid accuracy %v", ErrFixRejected, raw.AccuracyM)
	}

	if raw.AccuracyM <= thresholdM {
		return Outcome{Kind: UseForDistance, Fix: raw}, nil
	}
	return Outcome{Kind: RecordOnly, Fix: raw}, nil
}
