package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"clipcast.systems/clipcast/internal/events"
	"clipcast.systems/clipcast/internal/jobs"
	"clipcast.systems/clipcast/pkg/ffmpeg"
)

// ExtractClip cuts [start, start+duration) out of the captured buffer,
// re-encodes it for the web, and produces a best-effort mid-point thumbnail.
// Range violations return ErrInvalidRange without touching job state.
func (p *Pipeline) ExtractClip(ctx context.Context, jobID string, start, duration time.Duration) error {
	if start < 0 || duration <= 0 || start+duration > p.maxClipDuration {
		return fmt.Errorf("%w: start=%s duration=%s max=%s", ErrInvalidRange, start, duration, p.maxClipDuration)
	}

	job, err := p.registry.Get(jobID)
	if err != nil {
		return err
	}
	if _, err := p.registry.Transition(jobID, jobs.StateProcessing, jobs.Patch{}); err != nil {
		return err
	}

	ctx, release := p.register(ctx, jobID)
	defer release()

	if err := ensureDir(p.clipsDir); err != nil {
		p.failStage(ctx, jobID, "clip", err)
		return nil
	}
	clipPath := filepath.Join(p.clipsDir, fmt.Sprintf("clip_%s.mp4", jobID))
	args := ffmpeg.ClipArgs(job.BufferPath, clipPath, start, duration)
	if err := p.runWithProgress(ctx, jobID, args, duration); err != nil {
		p.failStage(ctx, jobID, "clip", err)
		return nil
	}

	// Thumbnail is a side effect; a failure is logged, never fatal.
	thumbnailPath := ""
	if err := ensureDir(p.thumbnailsDir); err == nil {
		candidate := filepath.Join(p.thumbnailsDir, fmt.Sprintf("thumb_%s.jpg", jobID))
		if err := p.runner.Run(ctx, ffmpeg.ThumbnailArgs(job.BufferPath, candidate, start+duration/2)); err != nil {
			p.log.Warn("Thumbnail generation failed", "job_id", jobID, "error", err)
		} else {
			thumbnailPath = candidate
		}
	}

	patch := jobs.Patch{ClipPath: jobs.String(clipPath)}
	if thumbnailPath != "" {
		patch.ThumbnailPath = jobs.String(thumbnailPath)
	}
	if _, err := p.registry.Transition(jobID, jobs.StateCompleted, patch); err != nil {
		return nil
	}
	p.publisher.Publish(events.Event{Kind: events.KindClipComplete, Payload: map[string]string{
		"job_id": jobID, "clip_path": clipPath, "thumbnail_path": thumbnailPath,
	}})
	p.log.Info("Clip complete", "job_id", jobID, "clip", clipPath)
	return nil
}

// GeneratePreviews samples numFrames evenly spaced frames across the whole
// buffer into the job's preview directory and returns them in order. Job
// state is unchanged; the frame paths are recorded on the job.
func (p *Pipeline) GeneratePreviews(ctx context.Context, jobID string, numFrames int) ([]string, error) {
	if numFrames < 1 {
		return nil, fmt.Errorf("%w: num_frames=%d", ErrInvalidRange, numFrames)
	}
	job, err := p.registry.Get(jobID)
	if err != nil {
		return nil, err
	}
	// The buffer path is already set while capture is still writing; only a
	// captured job has a complete buffer to sample.
	if job.State != jobs.StateCaptured {
		return nil, fmt.Errorf("%w: preview requires captured, job is %s", jobs.ErrInvalidTransition, job.State)
	}
	if job.BufferPath == "" {
		return nil, fmt.Errorf("job %s has no capture buffer", jobID)
	}

	previewDir := filepath.Join(p.tempDir, "preview_"+jobID)
	if err := ensureDir(previewDir); err != nil {
		return nil, fmt.Errorf("preview dir: %w", err)
	}

	interval := int(p.maxClipDuration.Seconds()) / numFrames
	if interval < 1 {
		interval = 1
	}
	pattern := filepath.Join(previewDir, "preview_%02d.jpg")
	if err := p.runner.Run(ctx, ffmpeg.PreviewArgs(job.BufferPath, pattern, interval)); err != nil {
		return nil, fmt.Errorf("preview frames: %w", err)
	}

	frames, err := filepath.Glob(filepath.Join(previewDir, "preview_*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(frames)
	if len(frames) > numFrames {
		frames = frames[:numFrames]
	}

	if _, err := p.registry.Amend(jobID, jobs.Patch{PreviewFramePaths: frames}); err != nil {
		return nil, err
	}
	p.publisher.Publish(events.Event{Kind: events.KindPreviewComplete, Payload: map[string]any{
		"job_id": jobID, "frames": frames,
	}})
	return frames, nil
}
