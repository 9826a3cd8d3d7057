// Package web is the HTTP and websocket surface: catalog reads, refresh
// triggers, the clip-job endpoints and the event push channel.
package web

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"clipcast.systems/clipcast/internal/catalog"
	"clipcast.systems/clipcast/internal/config"
	"clipcast.systems/clipcast/internal/events"
	"clipcast.systems/clipcast/internal/jobs"
)

// CatalogSource reads the current published snapshot.
type CatalogSource interface {
	Current() *catalog.Snapshot
}

// Refresher triggers poll cycles. The aggregator satisfies it.
type Refresher interface {
	Refresh(ctx context.Context) (*catalog.Snapshot, error)
	RefreshPlatform(ctx context.Context, platform catalog.Platform) (*catalog.Snapshot, error)
}

// JobRunner drives job stages. The pipeline satisfies it.
type JobRunner interface {
	Capture(ctx context.Context, jobID string, maxDuration time.Duration)
	ExtractClip(ctx context.Context, jobID string, start, duration time.Duration) error
	GeneratePreviews(ctx context.Context, jobID string, numFrames int) ([]string, error)
	Upload(ctx context.Context, jobID string) error
	Cancel(jobID string)
}

// Server is the webserver plus its service dependencies.
type Server struct {
	*echo.Echo

	cfg       *config.Config
	catalog   CatalogSource
	refresher Refresher
	registry  *jobs.Registry
	runner    JobRunner
	bus       *events.Bus
	log       *slog.Logger

	// Background stage work (capture spawned from a request) must outlive
	// the request context; it is tied to the process lifecycle instead.
	baseCtx context.Context

	accepting atomic.Bool
}

// NewServer assembles routes and middleware. ctx bounds all background job
// work the server spawns.
func NewServer(ctx context.Context, cfg *config.Config, source CatalogSource, refresher Refresher, registry *jobs.Registry, runner JobRunner, bus *events.Bus, log *slog.Logger) *Server {
	s := &Server{
		Echo:      echo.New(),
		cfg:       cfg,
		catalog:   source,
		refresher: refresher,
		registry:  registry,
		runner:    runner,
		bus:       bus,
		log:       log,
		baseCtx:   ctx,
	}
	s.accepting.Store(true)

	s.setupMiddleware()
	s.registerRoutes()
	return s
}

// StopAccepting makes job-creating endpoints return 503, for graceful
// shutdown.
func (s *Server) StopAccepting() {
	s.accepting.Store(false)
}

func (s *Server) setupMiddleware() {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.BodyLimit("2M"))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz" || c.Path() == "/ws"
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			s.log.Info("request", fields...)
			return nil
		},
	}))
}

// apiKeyMiddleware rejects /api requests without the configured key.
func (s *Server) apiKeyMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get("X-API-Key") != s.cfg.APIKey {
			return echo.NewHTTPError(401, "invalid or missing API key")
		}
		return next(c)
	}
}

func (s *Server) registerRoutes() {
	s.GET("/healthz", func(c echo.Context) error {
		return c.String(200, "ok")
	})

	s.GET("/ws", s.handleWebsocket())

	api := s.Group("/api")
	api.Use(s.apiKeyMiddleware)

	api.GET("/streamers", s.handleStreamers)
	api.GET("/streamers/live", s.handleLiveStreamers)
	api.GET("/streamers/:platform", s.handlePlatformStreamers)
	api.POST("/refresh", s.handleRefresh)
	api.POST("/refresh/:platform", s.handleRefreshPlatform)

	api.POST("/capture", s.handleCapture)
	api.GET("/jobs", s.handleListJobs)
	api.GET("/jobs/:id", s.handleGetJob)
	api.POST("/jobs/:id/cancel", s.handleCancelJob)
	api.POST("/clip", s.handleClip)
	api.POST("/preview", s.handlePreview)
	api.POST("/upload", s.handleUpload)

	api.GET("/clips", s.handleListClips)
	api.DELETE("/clips/:id", s.handleDeleteClip)
}
