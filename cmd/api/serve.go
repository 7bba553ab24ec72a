package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"bookintake/docs"
	"bookintake/internal/config"
	handlers "bookintake/internal/http/handler"
	"bookintake/internal/http/middleware"
	"bookintake/internal/logging"
	"bookintake/internal/normalize"
	"bookintake/internal/otel"
	"bookintake/internal/repository"
	"bookintake/internal/service"
	"bookintake/internal/storage"
	"bookintake/internal/validation"
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Example: `  # Listen on $PORT (default 3000)
  bookintake serve

  # Listen on a custom port
  bookintake serve --port 8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}
			return serve(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")

	return cmd
}

func serve(cmd *cobra.Command, cfg *config.AppConfig) error {
	ctx := cmd.Context()
	loc := cfg.Location()
	logger := logging.New(os.Stdout, loc)
	slog.SetDefault(logger)

	shutdownTracing, err := otel.Init(ctx, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("tracing shutdown failed", "error", err.Error())
		}
	}()

	db, repo, err := openRepository(cmd, cfg, logger, cfg.AutoMigrate)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}
	if !cfg.Storage.Configured() {
		logger.Warn("object storage not configured; uploads will be rejected")
	}

	reg := newRegistry()

	svc, err := newSubmissionService(cfg, logger, store, repo, reg)
	if err != nil {
		return err
	}

	app, err := newApp(cfg, logger, reg, handlers.Deps{
		DB:            db,
		Store:         store,
		Service:       svc,
		Validator:     validation.New(),
		Location:      loc,
		SubmitLimiter: middleware.SubmitRateLimit(cfg.SubmitRateLimitPerMin),
	})
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "bucket", store.Bucket())
		serverErr <- app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err.Error())
			return err
		}
		logger.Info("server stopped")
		return nil
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	}
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func newSubmissionService(cfg *config.AppConfig, logger *slog.Logger, store storage.Storage, repo repository.SubmissionRepository, reg prometheus.Registerer) (service.SubmissionService, error) {
	metrics, err := service.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register submission metrics: %w", err)
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithMetrics(metrics),
		service.WithLocation(cfg.Location()),
	}
	if cfg.Image.Normalize {
		opts = append(opts, service.WithNormalizer(normalize.New(normalize.OptionsFromConfig(cfg.Image))))
	}

	return service.NewSubmissionService(store, repo, opts...), nil
}

func newApp(cfg *config.AppConfig, logger *slog.Logger, reg *prometheus.Registry, deps handlers.Deps) (*fiber.App, error) {
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    cfg.BodyLimitMB * 1024 * 1024,
	})

	prom, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}

	app.Use(otelfiber.Middleware())
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowMethods: "GET,POST,OPTIONS",
	}))
	// RequestID adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(logger))
	app.Use(prom.Handler())

	handlers.RegisterRoutes(app, deps)

	metricsHandler := adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	app.Get("/metrics", metricsHandler)
	app.Get("/api/metrics", metricsHandler)

	app.Get("/swagger/doc.json", swaggerDoc)
	app.Get("/swagger/*", swagger.HandlerDefault)

	return app, nil
}

// swaggerDoc renders the registered document with the caller's host and scheme.
// docs.SwaggerInfo is shared; only a copy is modified.
func swaggerDoc(c *fiber.Ctx) error {
	scheme := c.Protocol()
	if proto := c.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}

	spec := *docs.SwaggerInfo
	spec.Host = c.Get("Host")
	spec.Schemes = []string{scheme}

	c.Type("json")
	return c.SendString(spec.ReadDoc())
}
