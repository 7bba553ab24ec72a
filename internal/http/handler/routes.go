package handler

import (
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"bookintake/internal/export"
	"bookintake/internal/service"
	"bookintake/internal/storage"
	"bookintake/internal/validation"
)

// Deps are the collaborators the HTTP surface needs. DB may be nil when the
// database is not configured.
type Deps struct {
	DB        *sql.DB
	Store     storage.Storage
	Service   service.SubmissionService
	Validator *validation.Validator
	Location  *time.Location
	// SubmitLimiter guards POST /submit when set.
	SubmitLimiter fiber.Handler
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Every route is served both at the root and under /api.
func RegisterRoutes(app *fiber.App, d Deps) {
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}

	for _, r := range []fiber.Router{app, app.Group("/api")} {
		r.Get("/health", LivenessCheck())
		r.Get("/ready", ReadinessCheck(d.DB, d.Store))

		submit := []fiber.Handler{Submit(d.Service)}
		if d.SubmitLimiter != nil {
			submit = append([]fiber.Handler{d.SubmitLimiter}, submit...)
		}
		r.Post("/submit", submit...)
		r.Post("/validate", ValidateField(d.Validator))

		r.Get("/submissions", ListSubmissions(d.Service))
		r.Get("/export-excel", ExportSubmissions(d.Service, export.FormatXLSX, d.Location))
		r.Get("/export-parquet", ExportSubmissions(d.Service, export.FormatParquet, d.Location))
	}
}
