package storage

import (
	"time"

	"backend-triptracker/internal/tracking"

	"github.com/gofiber/fiber/v2"
)

type snapshotSource interface {
	Snapshot() tracking.Snapshot
}

func RegisterRoutes(r fiber.Router, src snapshotSource) {
	r.Get("/export.json", func(c *fiber.Ctx) error {
		data, err := EncodeJSON(src.Snapshot().History)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Attachment(ExportName(time.Now()) + ".json")
		c.Type("json")
		return c.Send(data)
	})

	r.Get("/export.gpx", func(c *fiber.Ctx) error {
		snap := src.Snapshot()
		data, err := EncodeGPX(tracking.RecordID(snap.StartTime), snap.History)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		c.Attachment(ExportName(time.Now()) + ".gpx")
		c.Set(fiber.HeaderContentType, "application/gpx+xml")
		return c.Send(data)
	})
}
