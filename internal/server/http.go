// Package server exposes the daemon's operational endpoints: liveness,
// readiness and metrics over HTTP, and the standard gRPC health service.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueStats is implemented by the processing queue.
type QueueStats interface {
	Depth() int
}

type OpsConfig struct {
	Addr         string
	PingTimeout  time.Duration
	Gatherer     prometheus.Gatherer
	Store        Pinger
	Queue        QueueStats
	Logger       *slog.Logger
	ReadyChecker func() bool
}

// Ops is the operational HTTP server.
type Ops struct {
	app    *fiber.App
	cfg    OpsConfig
	logger *slog.Logger
}

func NewOps(cfg OpsConfig) *Ops {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(cfg.Logger),
	})
	o := &Ops{app: app, cfg: cfg, logger: cfg.Logger}
	o.routes()
	return o
}

func (o *Ops) routes() {
	// Liveness: the process is up.
	o.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	// Readiness: the record store answers.
	o.app.Get("/readyz", func(c *fiber.Ctx) error {
		if o.cfg.ReadyChecker != nil && !o.cfg.ReadyChecker() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "starting"})
		}
		body := fiber.Map{"status": "ready"}
		if o.cfg.Queue != nil {
			body["queue_depth"] = o.cfg.Queue.Depth()
		}
		if o.cfg.Store != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), o.cfg.PingTimeout)
			defer cancel()
			if err := o.cfg.Store.Ping(ctx); err != nil {
				o.logger.Warn("server.readyz.store_unavailable", "error", err)
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "unavailable",
					"error":  "store unavailable",
				})
			}
		}
		return c.JSON(body)
	})

	o.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(o.cfg.Gatherer, promhttp.HandlerOpts{})))
}

func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			logger.Error("server.http.error", "path", c.Path(), "error", err)
		}
		return c.Status(code).JSON(fiber.Map{"error": fiber.Map{"code": code, "message": err.Error()}})
	}
}

// App exposes the fiber app for tests.
func (o *Ops) App() *fiber.App { return o.app }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (o *Ops) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		o.logger.Info("server.http.listen", "addr", o.cfg.Addr)
		errCh <- o.app.Listen(o.cfg.Addr)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return o.app.ShutdownWithContext(shutdownCtx)
	}
}
