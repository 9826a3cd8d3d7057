package web

import (
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"

	"clipcast.systems/clipcast/internal/catalog"
	"clipcast.systems/clipcast/internal/events"
	"clipcast.systems/clipcast/internal/jobs"
)

// wsCommand is a client request on the push channel. The payload fields
// mirror the HTTP bodies of the equivalent endpoints.
type wsCommand struct {
	Type string `json:"type"`

	Platform    string  `json:"platform,omitempty"`
	StreamerID  string  `json:"streamerId,omitempty"`
	MaxDuration float64 `json:"maxDuration,omitempty"`

	ClipID    string  `json:"clipId,omitempty"`
	StartTime float64 `json:"startTime,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Title     string  `json:"title,omitempty"`
	NumFrames int     `json:"numFrames,omitempty"`
}

// handleWebsocket upgrades to the duplex push channel. The api key is taken
// from the header or, for browser clients, the query string.
func (s *Server) handleWebsocket() echo.HandlerFunc {
	h := websocket.Handler(func(conn *websocket.Conn) {
		defer conn.Close()
		s.serveWS(conn)
	})
	return func(c echo.Context) error {
		key := c.Request().Header.Get("X-API-Key")
		if key == "" {
			key = c.QueryParam("api_key")
		}
		if key != s.cfg.APIKey {
			return echo.NewHTTPError(401, "invalid or missing API key")
		}
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

func (s *Server) serveWS(conn *websocket.Conn) {
	ch, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	// A late subscriber gets the current catalog immediately, then only
	// future events.
	if snap := s.catalog.Current(); snap != nil {
		if err := websocket.JSON.Send(conn, events.Event{Kind: events.KindCatalogSnapshot, Payload: snap}); err != nil {
			return
		}
	}

	// Reader: dispatch client commands until the connection drops.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var cmd wsCommand
			if err := websocket.JSON.Receive(conn, &cmd); err != nil {
				return
			}
			s.dispatchCommand(conn, cmd)
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-s.baseCtx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(conn, evt); err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatchCommand(conn *websocket.Conn, cmd wsCommand) {
	switch cmd.Type {
	case "start_capture":
		platform := catalog.Platform(cmd.Platform)
		if !s.accepting.Load() || !platform.Valid() || cmd.StreamerID == "" {
			return
		}
		job := s.registry.Create(platform, cmd.StreamerID)
		go s.runner.Capture(s.baseCtx, job.ID, time.Duration(cmd.MaxDuration*float64(time.Second)))

	case "create_clip":
		if cmd.Title != "" {
			s.registry.Amend(cmd.ClipID, jobs.Patch{Title: jobs.String(cmd.Title)})
		}
		go func() {
			err := s.runner.ExtractClip(s.baseCtx, cmd.ClipID,
				time.Duration(cmd.StartTime*float64(time.Second)),
				time.Duration(cmd.Duration*float64(time.Second)))
			if err != nil {
				s.log.Warn("Clip command rejected", "job_id", cmd.ClipID, "error", err)
			}
		}()

	case "generate_preview":
		frames := cmd.NumFrames
		if frames <= 0 {
			frames = defaultPreviewFrames
		}
		go func() {
			if _, err := s.runner.GeneratePreviews(s.baseCtx, cmd.ClipID, frames); err != nil {
				s.log.Warn("Preview command rejected", "job_id", cmd.ClipID, "error", err)
			}
		}()

	case "upload_clip":
		go func() {
			if err := s.runner.Upload(s.baseCtx, cmd.ClipID); err != nil {
				s.log.Warn("Upload command rejected", "job_id", cmd.ClipID, "error", err)
			}
		}()

	case "refresh_streamers":
		go func() {
			if _, err := s.refresher.Refresh(s.baseCtx); err != nil {
				s.log.Warn("Refresh command dropped", "error", err)
			}
		}()

	case "get_job_status":
		job, err := s.registry.Get(cmd.ClipID)
		if err != nil {
			return
		}
		// Point reply to this subscriber only.
		websocket.JSON.Send(conn, events.Event{Kind: events.KindJobUpdated, Payload: job})

	default:
		s.log.Debug("Unknown websocket command", "type", cmd.Type)
	}
}
