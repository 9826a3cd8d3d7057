// Package sweeper is the garbage collector: ages out temp artifacts and
// finished jobs, force-fails stalled jobs, and evicts old clips under disk
// pressure.
package sweeper

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"clipcast.systems/clipcast/internal/config"
	"clipcast.systems/clipcast/internal/jobs"
)

const (
	// Retention for temp buffers, preview directories and terminal jobs.
	retention = 24 * time.Hour

	// Disk usage fraction that triggers clip eviction, and the share of
	// clips evicted per pass.
	diskHighWater = 0.90
	evictFraction = 0.10
)

// JobStore is the slice of the job registry the sweeper needs.
type JobStore interface {
	Stalled(olderThan time.Duration) []jobs.Job
	TerminalOlderThan(retention time.Duration) []jobs.Job
	Fail(id, reason string)
	Delete(id string) error
}

// Sweeper runs the periodic cleanups. The clock and the disk-usage probe
// are injectable for tests.
type Sweeper struct {
	registry JobStore
	log      *slog.Logger

	tempDir       string
	clipsDir      string
	thumbnailsDir string

	now    func() time.Time
	usage  func(path string) (float64, error)
	remove func(path string) error
}

// New builds a sweeper over the service's data directories.
func New(cfg *config.Config, registry JobStore, log *slog.Logger) *Sweeper {
	return &Sweeper{
		registry:      registry,
		log:           log,
		tempDir:       cfg.TempDir(),
		clipsDir:      cfg.ClipsDir(),
		thumbnailsDir: cfg.ThumbnailsDir(),
		now:           time.Now,
		usage:         diskUsage,
		remove:        os.Remove,
	}
}

// diskUsage returns the used fraction of the filesystem holding path.
func diskUsage(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	total := st.Blocks * uint64(st.Bsize)
	if total == 0 {
		return 0, nil
	}
	avail := st.Bavail * uint64(st.Bsize)
	return 1 - float64(avail)/float64(total), nil
}

// Daily removes temp buffers and preview directories older than the
// retention window, then drops terminal jobs past retention from the
// registry.
func (s *Sweeper) Daily() {
	cutoff := s.now().Add(-retention)

	entries, err := os.ReadDir(s.tempDir)
	if err != nil && !os.IsNotExist(err) {
		s.log.Error("Daily sweep: reading temp dir", "error", err)
	}
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.tempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			s.log.Error("Daily sweep: removing temp artifact", "path", path, "error", err)
			continue
		}
		removed++
	}

	dropped := 0
	for _, j := range s.registry.TerminalOlderThan(retention) {
		if err := s.registry.Delete(j.ID); err == nil {
			dropped++
		}
	}

	if removed > 0 || dropped > 0 {
		s.log.Info("Daily sweep finished", "artifacts_removed", removed, "jobs_dropped", dropped)
	}
}

// Stall force-fails every non-terminal job that has not been updated within
// the watchdog window.
func (s *Sweeper) Stall() {
	for _, j := range s.registry.Stalled(jobs.StallAfter) {
		s.log.Warn("Failing stalled job", "job_id", j.ID, "state", j.State, "updated_at", j.UpdatedAt)
		s.registry.Fail(j.ID, "stalled")
	}
}

// DiskPressure evicts the oldest clips (and their thumbnails) while the
// filesystem holding the clips directory is over the high-water mark.
func (s *Sweeper) DiskPressure() {
	for {
		used, err := s.usage(s.clipsDir)
		if err != nil {
			s.log.Error("Disk sweep: usage probe", "error", err)
			return
		}
		if used <= diskHighWater {
			return
		}

		clips, err := clipsByAge(s.clipsDir)
		if err != nil {
			s.log.Error("Disk sweep: listing clips", "error", err)
			return
		}
		if len(clips) == 0 {
			s.log.Warn("Disk over high-water mark but no clips to evict", "used", used)
			return
		}

		evict := int(float64(len(clips)) * evictFraction)
		if evict < 1 {
			evict = 1
		}
		removed := 0
		for _, clip := range clips[:evict] {
			s.log.Info("Evicting clip under disk pressure", "path", clip)
			if err := s.remove(clip); err != nil {
				s.log.Error("Disk sweep: removing clip", "path", clip, "error", err)
				continue
			}
			s.remove(s.thumbnailFor(clip))
			removed++
		}
		// A pass that freed nothing (read-only filesystem, permissions)
		// would otherwise spin here forever and starve the other sweeps.
		if removed == 0 {
			s.log.Warn("Disk sweep made no progress, giving up", "used", used)
			return
		}
	}
}

// thumbnailFor maps clip_<id>.mp4 onto its thumb_<id>.jpg sibling.
func (s *Sweeper) thumbnailFor(clipPath string) string {
	base := strings.TrimSuffix(filepath.Base(clipPath), ".mp4")
	base = strings.TrimPrefix(base, "clip_")
	return filepath.Join(s.thumbnailsDir, "thumb_"+base+".jpg")
}

// clipsByAge lists clip files oldest first.
func clipsByAge(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type aged struct {
		path string
		mod  time.Time
	}
	var files []aged
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, aged{filepath.Join(dir, entry.Name()), info.ModTime()})
	}
	sort.Slice(files, func(i, k int) bool { return files[i].mod.Before(files[k].mod) })

	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out, nil
}
