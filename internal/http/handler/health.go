package handler

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"bookintake/internal/storage"
)

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// LivenessCheck godoc
// @Summary      Liveness check
// @Tags         health
// @Produce      json
// @Success      200  {object}  healthResponse
// @Router       /health [get]
func LivenessCheck() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(healthResponse{Status: "ok", Message: "service is running"})
	}
}

// ReadinessCheck godoc
// @Summary      Readiness check
// @Description  Pings the database and checks the storage bucket.
// @Tags         health
// @Produce      json
// @Success      200  {object}  readinessResponse
// @Failure      503  {object}  readinessResponse
// @Router       /ready [get]
func ReadinessCheck(db *sql.DB, store storage.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"database": "ok", "storage": "ok"}
		ready := true

		switch {
		case db == nil:
			checks["database"] = "not configured"
			ready = false
		default:
			if err := db.PingContext(ctx); err != nil {
				checks["database"] = "unavailable"
				ready = false
			}
		}

		if err := store.CheckBucket(ctx); err != nil {
			ready = false
			switch {
			case errors.Is(err, storage.ErrNotConfigured):
				checks["storage"] = "not configured"
			case errors.Is(err, storage.ErrBucketNotFound):
				checks["storage"] = "bucket not found"
			default:
				checks["storage"] = "unavailable"
			}
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(readinessResponse{Status: "unavailable", Checks: checks})
		}
		return c.JSON(readinessResponse{Status: "ready", Checks: checks})
	}
}
