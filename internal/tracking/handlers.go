package tracking

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, engine *Engine, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := engine.Start()
		if err != nil {
			return commandError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := engine.Stop()
		if err != nil {
			return commandError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/save", authMiddleware, func(c *fiber.Ctx) error {
		result, err := engine.Save()
		if err != nil {
			return commandError(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(result)
	})

	r.Get("/save", func(c *fiber.Ctx) error {
		return c.JSON(engine.LastSaveResult())
	})

	r.Post("/fixes", authMiddleware, func(c *fiber.Ctx) error {
		var req RawFix
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		fix, err := req.ToFix(time.Now())
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := engine.OnFixReceived(fix); err != nil {
			return commandError(err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/location-service", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"enabled": engine.CheckLocationService()})
	})

	r.Get("/snapshot", func(c *fiber.Ctx) error {
		return c.JSON(engine.Snapshot())
	})

	r.Get("/summary", func(c *fiber.Ctx) error {
		return c.JSON(Summarize(engine.Snapshot()))
	})

	r.Get("/polyline", func(c *fiber.Ctx) error {
		return c.JSON(Polyline(engine.Snapshot().History))
	})

	r.Get("/region", func(c *fiber.Ctx) error {
		last := engine.Snapshot().LastFix
		if last == nil {
			return fiber.NewError(fiber.StatusNotFound, "no fix received yet")
		}
		return c.JSON(RegionFrom(*last))
	})
}

func commandError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrSaveInFlight):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrFixRejected):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrEngineClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
