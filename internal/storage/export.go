package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"backend-triptracker/internal/tracking"

	"github.com/tkrajina/gpxgo/gpx"
)

const exportNameLayout = "Mon-Jan-02-2006-15-04-05"

// Exporter writes a saved trip as JSON and GPX files into dir.
type Exporter struct {
	dir string
	now func() time.Time
}

func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir, now: time.Now}
}

// ExportName derives the export file base name from the save time.
func ExportName(t time.Time) string {
	return t.Format(exportNameLayout)
}

// Export writes both files and returns their paths.
func (e *Exporter) Export(name string, history []tracking.Fix) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, err
	}
	// second resolution alone lets two saves in the same second collide
	base := filepath.Join(e.dir, ExportName(e.now())+"-"+shortID(name))

	data, err := EncodeJSON(history)
	if err != nil {
		return nil, err
	}
	jsonPath := base + ".json"
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return nil, err
	}

	data, err = EncodeGPX(name, history)
	if err != nil {
		return []string{jsonPath}, err
	}
	gpxPath := base + ".gpx"
	if err := os.WriteFile(gpxPath, data, 0o644); err != nil {
		return []string{jsonPath}, err
	}
	return []string{jsonPath, gpxPath}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// EncodeJSON renders the history as a JSON array of fixes.
func EncodeJSON(history []tracking.Fix) ([]byte, error) {
	if history == nil {
		history = []tracking.Fix{}
	}
	return json.Marshal(history)
}

// EncodeGPX renders the history as a single-segment GPX 1.1 track.
func EncodeGPX(name string, history []tracking.Fix) ([]byte, error) {
	segment := gpx.GPXTrackSegment{}
	for _, f := range history {
		segment.Points = append(segment.Points, gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  f.Coords.Lat,
				Longitude: f.Coords.Lng,
			},
			Timestamp: f.Timestamp,
		})
	}

	doc := &gpx.GPX{
		Version: "1.1",
		Creator: "backend-triptracker",
		Tracks: []gpx.GPXTrack{{
			Name:     name,
			Segments: []gpx.GPXTrackSegment{segment},
		}},
	}

	data, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("encode gpx: %w", err)
	}
	return data, nil
}
