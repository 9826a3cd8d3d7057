package web

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"clipcast.systems/clipcast/internal/catalog"
	"clipcast.systems/clipcast/internal/jobs"
	"clipcast.systems/clipcast/internal/pipeline"
)

type captureRequest struct {
	Platform    string  `json:"platform"`
	StreamerID  string  `json:"streamerId"`
	MaxDuration float64 `json:"maxDuration,omitempty"` // seconds
}

type clipRequest struct {
	ClipID    string  `json:"clipId"`
	StartTime float64 `json:"startTime"` // seconds into the buffer
	Duration  float64 `json:"duration"`  // seconds
	Title     string  `json:"title,omitempty"`
}

type previewRequest struct {
	ClipID    string `json:"clipId"`
	NumFrames int    `json:"numFrames,omitempty"`
}

type uploadRequest struct {
	ClipID string `json:"clipId"`
}

const defaultPreviewFrames = 10

// handleCapture creates a job and starts the resolve+capture work in the
// background; the job id comes back immediately.
func (s *Server) handleCapture(c echo.Context) error {
	if !s.accepting.Load() {
		return echo.NewHTTPError(503, "shutting down, not accepting new jobs")
	}

	var req captureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "malformed request body")
	}
	platform := catalog.Platform(req.Platform)
	if !platform.Valid() {
		return echo.NewHTTPError(400, "unknown platform")
	}
	if req.StreamerID == "" {
		return echo.NewHTTPError(400, "streamerId is required")
	}

	job := s.registry.Create(platform, req.StreamerID)
	go s.runner.Capture(s.baseCtx, job.ID, time.Duration(req.MaxDuration*float64(time.Second)))

	return c.JSON(201, job)
}

func (s *Server) handleListJobs(c echo.Context) error {
	return c.JSON(200, s.registry.List())
}

func (s *Server) handleGetJob(c echo.Context) error {
	job, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(404, "job not found")
	}
	return c.JSON(200, job)
}

func (s *Server) handleCancelJob(c echo.Context) error {
	if _, err := s.registry.Get(c.Param("id")); err != nil {
		return echo.NewHTTPError(404, "job not found")
	}
	s.runner.Cancel(c.Param("id"))
	job, err := s.registry.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(404, "job not found")
	}
	return c.JSON(200, job)
}

// handleClip cuts a sub-range out of a captured buffer. Runs synchronously;
// progress streams over the push channel while the encode runs.
func (s *Server) handleClip(c echo.Context) error {
	var req clipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "malformed request body")
	}

	if req.Title != "" {
		if _, err := s.registry.Amend(req.ClipID, jobs.Patch{Title: jobs.String(req.Title)}); err != nil {
			return echo.NewHTTPError(404, "job not found")
		}
	}

	err := s.runner.ExtractClip(c.Request().Context(), req.ClipID,
		time.Duration(req.StartTime*float64(time.Second)),
		time.Duration(req.Duration*float64(time.Second)))
	if err != nil {
		return jobError(err)
	}

	job, err := s.registry.Get(req.ClipID)
	if err != nil {
		return echo.NewHTTPError(404, "job not found")
	}
	return c.JSON(200, job)
}

func (s *Server) handlePreview(c echo.Context) error {
	var req previewRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "malformed request body")
	}
	if req.NumFrames <= 0 {
		req.NumFrames = defaultPreviewFrames
	}

	frames, err := s.runner.GeneratePreviews(c.Request().Context(), req.ClipID, req.NumFrames)
	if err != nil {
		return jobError(err)
	}
	return c.JSON(200, map[string]any{"frames": frames})
}

func (s *Server) handleUpload(c echo.Context) error {
	var req uploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(400, "malformed request body")
	}

	if err := s.runner.Upload(c.Request().Context(), req.ClipID); err != nil {
		return jobError(err)
	}

	job, err := s.registry.Get(req.ClipID)
	if err != nil {
		return echo.NewHTTPError(404, "job not found")
	}
	return c.JSON(200, job)
}

// jobError maps pipeline/registry errors onto HTTP status codes.
func jobError(err error) error {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return echo.NewHTTPError(404, "job not found")
	case errors.Is(err, pipeline.ErrInvalidRange):
		return echo.NewHTTPError(400, err.Error())
	case errors.Is(err, jobs.ErrInvalidTransition):
		return echo.NewHTTPError(409, err.Error())
	default:
		return echo.NewHTTPError(500, err.Error())
	}
}
