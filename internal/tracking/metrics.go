package tracking

import (
	"fmt"
	"math"
	"time"

	"backend-triptracker/internal/shared/geo"
)

const (
	minute = 60
	hour   = 60 * minute

	kmhPerMps = 3.6
	mphPerMps = 2.23

	metersPerDegree = 40075000.0 / 360
)

// SpeedKmh converts meters per second to km/h rounded to 2 decimals.
func SpeedKmh(mps float64) float64 {
	return geo.Round2(mps * kmhPerMps)
}

func SpeedMph(mps float64) float64 {
	return geo.Round2(mps * mphPerMps)
}

// CurrentSpeedKmh is the live speed of the latest fix, 0 when there is no
// fix or the device did not report a speed.
func CurrentSpeedKmh(fix *Fix) float64 {
	if fix == nil || !fix.HasSpeed() {
		return 0
	}
	return SpeedKmh(fix.SpeedMps)
}

func AverageSpeedKmh(distanceKm float64, durationSec int64) float64 {
	if distanceKm == 0 || durationSec == 0 {
		return 0
	}
	return geo.Round2(distanceKm / (float64(durationSec) / hour))
}

// FormatDuration renders seconds as "S s", "M m S s" from one minute, or
// "H h M m S s" from one hour.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	switch {
	case seconds < minute:
		return fmt.Sprintf("%d s", seconds)
	case seconds < hour:
		return formatMinutes(seconds)
	default:
		return fmt.Sprintf("%d h %s", seconds/hour, formatMinutes(seconds%hour))
	}
}

func formatMinutes(seconds int64) string {
	return fmt.Sprintf("%d m %d s", seconds/minute, seconds%minute)
}

func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

// Region is a map viewport around a fix sized by its reported accuracy.
type Region struct {
	Lat      float64 `json:"latitude"`
	Lng      float64 `json:"longitude"`
	LatDelta float64 `json:"latitude_delta"`
	LngDelta float64 `json:"longitude_delta"`
}

func RegionFrom(fix Fix) Region {
	latDelta := fix.AccuracyM / metersPerDegree

	lngDelta := 360.0
	if c := math.Cos(fix.Coords.Lat * math.Pi / 180); c > 1e-9 {
		lngDelta = math.Min(360, fix.AccuracyM/(metersPerDegree*c))
	}

	return Region{
		Lat:      fix.Coords.Lat,
		Lng:      fix.Coords.Lng,
		LatDelta: math.Max(0, latDelta),
		LngDelta: math.Max(0, lngDelta),
	}
}

func Polyline(history []Fix) []geo.Coordinate {
	coords := make([]geo.Coordinate, len(history))
	for i, f := range history {
		coords[i] = f.Coords
	}
	return coords
}

type Summary struct {
	Status          Status  `json:"status"`
	StartedAt       string  `json:"started_at"`
	EndedAt         string  `json:"ended_at"`
	PointCount      int     `json:"point_count"`
	DistanceKm      float64 `json:"distance_km"`
	DurationSec     int64   `json:"duration_sec"`
	Duration        string  `json:"duration"`
	CurrentSpeedKmh float64 `json:"current_speed_kmh"`
	CurrentSpeedMph float64 `json:"current_speed_mph"`
	AverageSpeedKmh float64 `json:"average_speed_kmh"`
	MaxSpeedKmh     float64 `json:"max_speed_kmh"`
}

func Summarize(s Snapshot) Summary {
	sum := Summary{
		Status:          s.Status,
		StartedAt:       FormatDate(s.StartTime),
		EndedAt:         FormatDate(s.EndTime),
		PointCount:      len(s.History),
		DistanceKm:      s.DistanceKm,
		DurationSec:     s.DurationSec,
		Duration:        FormatDuration(s.DurationSec),
		CurrentSpeedKmh: CurrentSpeedKmh(s.LastFix),
		AverageSpeedKmh: AverageSpeedKmh(s.DistanceKm, s.DurationSec),
		MaxSpeedKmh:     SpeedKmh(s.MaxSpeedMps),
	}
	if s.LastFix != nil && s.LastFix.HasSpeed() {
		sum.CurrentSpeedMph = SpeedMph(s.LastFix.SpeedMps)
	}
	return sum
}
