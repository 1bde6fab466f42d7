package storage

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"backend-triptracker/internal/tracking"

	"github.com/gofiber/fiber/v2"
)

type staticSource struct {
	snap tracking.Snapshot
}

func (s staticSource) Snapshot() tracking.Snapshot { return s.snap }

func TestStorageExportHandlers(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/storage"), staticSource{snap: tracking.Snapshot{
		Status:  tracking.StatusFinished,
		History: sampleHistory(),
	}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/storage/export.json", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("json export status: %v", err)
	}
	var fixes []tracking.Fix
	if err := json.NewDecoder(resp.Body).Decode(&fixes); err != nil || len(fixes) != 2 {
		t.Fatalf("unexpected json export: %v", err)
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), ".json") {
		t.Fatalf("expected attachment filename")
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/storage/export.gpx", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("gpx export status: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "<trkpt") {
		t.Fatalf("expected gpx track points")
	}
}
