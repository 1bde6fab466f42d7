package tracking

import (
	"time"

	"backend-triptracker/internal/shared/geo"
)

// UnknownSpeed marks a fix whose device did not report a speed.
const UnknownSpeed = -1.0

// Fix is one accepted device position sample.
type Fix struct {
	Coords    geo.Coordinate `json:"coords"`
	AccuracyM float64        `json:"accuracy_m"`
	SpeedMps  float64        `json:"speed_mps"`
	Timestamp time.Time      `json:"timestamp"`
}

// HasSpeed reports whether the fix carries a usable speed reading.
func (f Fix) HasSpeed() bool {
	return f.SpeedMps >= 0
}

type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusFinished  Status = "finished"
)

// Snapshot is an immutable view of the trip. History shares its backing
// array with the engine but is capped, so appends never leak into it.
type Snapshot struct {
	Status                 Status    `json:"status"`
	StartTime              time.Time `json:"start_time"`
	EndTime                time.Time `json:"end_time"`
	DistanceKm             float64   `json:"distance_km"`
	MaxSpeedMps            float64   `json:"max_speed_mps"`
	DurationSec            int64     `json:"duration_sec"`
	LastFix                *Fix      `json:"last_fix,omitempty"`
	History                []Fix     `json:"history"`
	LocationServiceEnabled bool      `json:"location_service_enabled"`
	AccuracyThresholdM     float64   `json:"accuracy_threshold_m"`
}

type SaveStatus string

const (
	SavePending   SaveStatus = "pending"
	SaveSucceeded SaveStatus = "success"
	SaveFailed    SaveStatus = "failed"
)

type SaveResult struct {
	RecordID    string     `json:"record_id"`
	Status      SaveStatus `json:"status"`
	ErrorDetail string     `json:"error,omitempty"`
}

// SubscribeOptions is what the engine asks of the location collaborator.
type SubscribeOptions struct {
	DesiredAccuracyM float64 `json:"desired_accuracy_m"`
	MinIntervalM     float64 `json:"min_interval_m"`
	MinIntervalMs    int64   `json:"min_interval_ms"`
}
