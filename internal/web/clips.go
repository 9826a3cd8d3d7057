package web

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"clipcast.systems/clipcast/internal/jobs"
)

type clipInfo struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"sizeBytes"`
	Size      string    `json:"size"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// handleListClips lists the finished clip files on disk, with human-readable
// sizes and their thumbnails when present.
func (s *Server) handleListClips(c echo.Context) error {
	entries, err := os.ReadDir(s.cfg.ClipsDir())
	if err != nil && !os.IsNotExist(err) {
		return echo.NewHTTPError(500, "reading clips directory")
	}

	clips := []clipInfo{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".mp4") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		id := strings.TrimSuffix(strings.TrimPrefix(name, "clip_"), ".mp4")
		clip := clipInfo{
			ID:        id,
			Filename:  name,
			SizeBytes: info.Size(),
			Size:      humanize.Bytes(uint64(info.Size())),
			CreatedAt: info.ModTime(),
		}
		thumb := filepath.Join(s.cfg.ThumbnailsDir(), "thumb_"+id+".jpg")
		if _, err := os.Stat(thumb); err == nil {
			clip.Thumbnail = thumb
		}
		clips = append(clips, clip)
	}
	return c.JSON(200, clips)
}

// handleDeleteClip removes the clip file, its thumbnail, and the registry
// entry. In-flight jobs cannot be deleted.
func (s *Server) handleDeleteClip(c echo.Context) error {
	id := c.Param("id")

	if err := s.registry.Delete(id); err != nil {
		if errors.Is(err, jobs.ErrNotTerminal) {
			return echo.NewHTTPError(409, "job is still in flight")
		}
		// A clip may outlive its registry entry (daily sweep); fall through
		// and remove the files anyway.
	}

	clipPath := filepath.Join(s.cfg.ClipsDir(), "clip_"+id+".mp4")
	if err := os.Remove(clipPath); err != nil {
		if os.IsNotExist(err) {
			return echo.NewHTTPError(404, "clip not found")
		}
		return echo.NewHTTPError(500, "removing clip")
	}
	os.Remove(filepath.Join(s.cfg.ThumbnailsDir(), "thumb_"+id+".jpg"))

	return c.NoContent(204)
}
