package web

import (
	"time"

	"github.com/labstack/echo/v4"

	"clipcast.systems/clipcast/internal/catalog"
)

type catalogResponse struct {
	GeneratedAt time.Time                                    `json:"generatedAt"`
	Platforms   map[catalog.Platform][]catalog.StreamerRecord `json:"platforms"`
	PollErrors  map[catalog.Platform]string                   `json:"pollErrors,omitempty"`
}

// handleStreamers returns the current catalog partitioned by platform.
func (s *Server) handleStreamers(c echo.Context) error {
	snap := s.catalog.Current()
	if snap == nil {
		snap = &catalog.Snapshot{}
	}

	byPlatform := make(map[catalog.Platform][]catalog.StreamerRecord, len(catalog.Platforms))
	for _, p := range catalog.Platforms {
		if records := snap.ByPlatform(p); records != nil {
			byPlatform[p] = records
		}
	}
	return c.JSON(200, catalogResponse{
		GeneratedAt: snap.GeneratedAt,
		Platforms:   byPlatform,
		PollErrors:  snap.PollErrors,
	})
}

// handleLiveStreamers returns the live subset, viewer count descending.
func (s *Server) handleLiveStreamers(c echo.Context) error {
	snap := s.catalog.Current()
	if snap == nil {
		return c.JSON(200, []catalog.StreamerRecord{})
	}
	live := snap.LiveRecords()
	if live == nil {
		live = []catalog.StreamerRecord{}
	}
	return c.JSON(200, live)
}

func (s *Server) handlePlatformStreamers(c echo.Context) error {
	platform := catalog.Platform(c.Param("platform"))
	if !platform.Valid() {
		return echo.NewHTTPError(404, "unknown platform")
	}

	snap := s.catalog.Current()
	if snap == nil {
		return c.JSON(200, []catalog.StreamerRecord{})
	}
	records := snap.ByPlatform(platform)
	if records == nil {
		records = []catalog.StreamerRecord{}
	}
	return c.JSON(200, records)
}

// handleRefresh kicks off a full poll cycle in the background. A cycle
// already in flight means the trigger is simply dropped.
func (s *Server) handleRefresh(c echo.Context) error {
	go func() {
		if _, err := s.refresher.Refresh(s.baseCtx); err != nil {
			s.log.Warn("Manual refresh not started", "error", err)
		}
	}()
	return c.JSON(202, map[string]string{"status": "refresh triggered"})
}

func (s *Server) handleRefreshPlatform(c echo.Context) error {
	platform := catalog.Platform(c.Param("platform"))
	if !platform.Valid() {
		return echo.NewHTTPError(404, "unknown platform")
	}

	go func() {
		if _, err := s.refresher.RefreshPlatform(s.baseCtx, platform); err != nil {
			s.log.Warn("Manual platform refresh not started", "platform", platform, "error", err)
		}
	}()
	return c.JSON(202, map[string]string{"status": "refresh triggered", "platform": string(platform)})
}
