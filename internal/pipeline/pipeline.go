// Package pipeline runs the per-job work: stream-URL resolution, bounded
// live capture, clip extraction with thumbnail and preview frames, and the
// final upload. Every state change goes through the job registry.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"clipcast.systems/clipcast/internal/catalog"
	"clipcast.systems/clipcast/internal/config"
	"clipcast.systems/clipcast/internal/events"
	"clipcast.systems/clipcast/internal/jobs"
	"clipcast.systems/clipcast/pkg/ffmpeg"
)

// ErrInvalidRange is returned when a clip request falls outside the buffer.
var ErrInvalidRange = errors.New("invalid clip range")

// Resolver turns a roster entry into a playable media-playlist URL.
type Resolver interface {
	Resolve(ctx context.Context, platform catalog.Platform, ref string) (string, error)
}

// Pipeline coordinates job stages. One instance serves all jobs.
type Pipeline struct {
	registry  *jobs.Registry
	resolver  Resolver
	runner    ffmpeg.Runner
	prober    ffmpeg.Prober
	publisher jobs.Publisher
	client    *http.Client
	log       *slog.Logger

	tempDir         string
	clipsDir        string
	thumbnailsDir   string
	maxClipDuration time.Duration
	userAgent       string
	uploadEndpoint  string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New wires a pipeline from the service configuration.
func New(cfg *config.Config, registry *jobs.Registry, resolver Resolver, publisher jobs.Publisher, log *slog.Logger) *Pipeline {
	return &Pipeline{
		registry:  registry,
		resolver:  resolver,
		runner:    ffmpeg.Runner{Path: cfg.FFmpegPath},
		prober:    ffmpeg.Prober{Path: cfg.FFprobePath},
		publisher: publisher,
		client:    &http.Client{Timeout: 5 * time.Minute},
		log:       log,

		tempDir:         cfg.TempDir(),
		clipsDir:        cfg.ClipsDir(),
		thumbnailsDir:   cfg.ThumbnailsDir(),
		maxClipDuration: cfg.MaxClipDuration(),
		userAgent:       cfg.UserAgent,
		uploadEndpoint:  cfg.UploadEndpoint,

		cancels: make(map[string]context.CancelFunc),
	}
}

// register installs a cancel func for the job's current stage and returns
// the stage context plus a release func.
func (p *Pipeline) register(ctx context.Context, jobID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancels[jobID] = cancel
	p.mu.Unlock()

	release := func() {
		p.mu.Lock()
		if p.cancels[jobID] != nil {
			p.cancels[jobID]()
			delete(p.cancels, jobID)
		}
		p.mu.Unlock()
	}
	return ctx, release
}

// Cancel aborts the job's in-flight stage, if any, and fails the job.
// Cancelling a job with no active stage is a no-op.
func (p *Pipeline) Cancel(jobID string) {
	p.mu.Lock()
	cancel, ok := p.cancels[jobID]
	if ok {
		delete(p.cancels, jobID)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	cancel()
	p.registry.Fail(jobID, "cancelled")
}

// failStage records a stage failure, mapping context cancellation onto the
// "cancelled" reason. The Fail call is a no-op if Cancel got there first.
func (p *Pipeline) failStage(ctx context.Context, jobID, stage string, err error) {
	reason := fmt.Sprintf("%s: %v", stage, err)
	if ctx.Err() != nil {
		reason = "cancelled"
	}
	p.log.Error("Job stage failed", "job_id", jobID, "stage", stage, "error", err)
	p.registry.Fail(jobID, reason)
}

// Capture runs resolve + capture for a freshly created job. maxDuration
// bounds the buffer length; zero or anything above the configured cap means
// the cap. It blocks until the buffer is written or the job fails; callers
// run it on its own goroutine.
func (p *Pipeline) Capture(ctx context.Context, jobID string, maxDuration time.Duration) {
	if maxDuration <= 0 || maxDuration > p.maxClipDuration {
		maxDuration = p.maxClipDuration
	}

	ctx, release := p.register(ctx, jobID)
	defer release()

	job, err := p.registry.Transition(jobID, jobs.StateResolving, jobs.Patch{})
	if err != nil {
		p.log.Error("Capture refused", "job_id", jobID, "error", err)
		return
	}

	streamURL, err := p.resolver.Resolve(ctx, job.Platform, job.StreamerRef)
	if err != nil {
		p.failStage(ctx, jobID, "resolve", err)
		return
	}

	if err := ensureDir(p.tempDir); err != nil {
		p.failStage(ctx, jobID, "capture", err)
		return
	}
	bufferPath := filepath.Join(p.tempDir, fmt.Sprintf("buffer_%s.mp4", jobID))
	if _, err := p.registry.Transition(jobID, jobs.StateCapturing, jobs.Patch{
		StreamURL:  jobs.String(streamURL),
		BufferPath: jobs.String(bufferPath),
	}); err != nil {
		return
	}

	args := ffmpeg.CaptureArgs(streamURL, bufferPath, maxDuration, p.userAgent)
	if err := p.runWithProgress(ctx, jobID, args, maxDuration); err != nil {
		p.failStage(ctx, jobID, "capture", err)
		return
	}

	// Effective buffer length, best effort: ffprobe failure just leaves the
	// field unset.
	patch := jobs.Patch{}
	if d, err := p.prober.Duration(ctx, bufferPath); err == nil {
		patch.BufferSeconds = jobs.Float(d.Seconds())
	}
	if _, err := p.registry.Transition(jobID, jobs.StateCaptured, patch); err != nil {
		return
	}
	p.publisher.Publish(events.Event{Kind: events.KindCaptureComplete, Payload: map[string]string{
		"job_id": jobID, "buffer_path": bufferPath,
	}})
	p.log.Info("Capture complete", "job_id", jobID, "buffer", bufferPath)
}

// runWithProgress starts the transcoder and forwards parsed progress into
// the job record, scaled against target.
func (p *Pipeline) runWithProgress(ctx context.Context, jobID string, args []string, target time.Duration) error {
	progress := make(chan ffmpeg.Progress, 8)
	proc, err := p.runner.Start(ctx, args, progress)
	if err != nil {
		return err
	}
	for update := range progress {
		p.registry.SetProgress(jobID, update.Percent(target))
	}
	return proc.Wait()
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
