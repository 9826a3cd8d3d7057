package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipcast.systems/clipcast/internal/catalog"
	"clipcast.systems/clipcast/internal/config"
	"clipcast.systems/clipcast/internal/events"
	"clipcast.systems/clipcast/internal/jobs"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(evt events.Event) {
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
}

func (p *recordingPublisher) has(kind events.Kind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

type fakeResolver struct {
	url string
	err error
}

func (f *fakeResolver) Resolve(context.Context, catalog.Platform, string) (string, error) {
	return f.url, f.err
}

// stubTranscoder writes a shell script that touches its final path argument,
// emits a complete progress stream, and exits 0.
func stubTranscoder(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg-stub")
	script := `#!/bin/sh
for last; do :; done
case "$last" in
  *%*) ;;
  *.mp4|*.jpg) : > "$last";;
esac
printf 'out_time_us=120000000\nprogress=end\n'
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestPipeline(t *testing.T, resolver Resolver, uploadURL string) (*Pipeline, *jobs.Registry, *recordingPublisher) {
	t.Helper()
	if uploadURL == "" {
		uploadURL = "http://127.0.0.1:1/upload"
	}
	cfg := &config.Config{
		DataDir:                t.TempDir(),
		MaxClipDurationSeconds: 240,
		FFmpegPath:             stubTranscoder(t),
		UploadEndpoint:         uploadURL,
		UserAgent:              "test-agent",
	}
	pub := &recordingPublisher{}
	reg := jobs.NewRegistry(pub)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, reg, resolver, pub, log), reg, pub
}

func capturedJob(t *testing.T, p *Pipeline, reg *jobs.Registry) jobs.Job {
	t.Helper()
	j := reg.Create(catalog.Kick, "waxiest")
	p.Capture(context.Background(), j.ID, 0)
	got, err := reg.Get(j.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.StateCaptured, got.State)
	return got
}

func TestCaptureProducesBuffer(t *testing.T) {
	p, reg, pub := newTestPipeline(t, &fakeResolver{url: "https://edge/live.m3u8"}, "")

	job := capturedJob(t, p, reg)
	assert.Equal(t, "https://edge/live.m3u8", job.StreamURL)
	assert.FileExists(t, job.BufferPath)
	assert.True(t, pub.has(events.KindCaptureComplete))
}

func TestCaptureResolveFailureFailsJob(t *testing.T) {
	p, reg, pub := newTestPipeline(t, &fakeResolver{err: errors.New("no playlist observed")}, "")

	j := reg.Create(catalog.Twitch, "alpha")
	p.Capture(context.Background(), j.ID, 0)

	got, err := reg.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateError, got.State)
	assert.Contains(t, got.ErrorReason, "resolve")
	assert.True(t, pub.has(events.KindJobError))
}

func TestExtractClipValidatesRange(t *testing.T) {
	p, reg, _ := newTestPipeline(t, &fakeResolver{url: "https://edge/live.m3u8"}, "")
	job := capturedJob(t, p, reg)

	for _, tc := range []struct {
		name            string
		start, duration time.Duration
	}{
		{"negative start", -time.Second, 10 * time.Second},
		{"zero duration", 0, 0},
		{"past buffer end", 230 * time.Second, 20 * time.Second},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := p.ExtractClip(context.Background(), job.ID, tc.start, tc.duration)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}

	// Range rejections leave the job untouched.
	got, _ := reg.Get(job.ID)
	assert.Equal(t, jobs.StateCaptured, got.State)
}

func TestExtractClipCompletesWithThumbnail(t *testing.T) {
	p, reg, pub := newTestPipeline(t, &fakeResolver{url: "https://edge/live.m3u8"}, "")
	job := capturedJob(t, p, reg)

	require.NoError(t, p.ExtractClip(context.Background(), job.ID, 10*time.Second, 30*time.Second))

	got, _ := reg.Get(job.ID)
	assert.Equal(t, jobs.StateCompleted, got.State)
	assert.FileExists(t, got.ClipPath)
	assert.FileExists(t, got.ThumbnailPath)
	assert.True(t, pub.has(events.KindClipComplete))
}

func TestGeneratePreviewsReturnsOrderedFrames(t *testing.T) {
	p, reg, pub := newTestPipeline(t, &fakeResolver{url: "https://edge/live.m3u8"}, "")
	job := capturedJob(t, p, reg)

	// The stub only touches its last argument, so pre-seed the frames the
	// real transcoder would emit from the fps filter.
	previewDir := filepath.Join(p.tempDir, "preview_"+job.ID)
	require.NoError(t, os.MkdirAll(previewDir, 0o755))
	for _, name := range []string{"preview_02.jpg", "preview_01.jpg", "preview_03.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(previewDir, name), nil, 0o644))
	}

	frames, err := p.GeneratePreviews(context.Background(), job.ID, 3)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, "preview_01.jpg", filepath.Base(frames[0]))
	assert.Equal(t, "preview_03.jpg", filepath.Base(frames[2]))
	assert.True(t, pub.has(events.KindPreviewComplete))

	got, _ := reg.Get(job.ID)
	assert.Equal(t, jobs.StateCaptured, got.State, "previews must not change job state")
	assert.Equal(t, frames, got.PreviewFramePaths)
}

func TestGeneratePreviewsRequiresCapturedState(t *testing.T) {
	p, reg, _ := newTestPipeline(t, &fakeResolver{url: "https://edge/live.m3u8"}, "")

	// A capturing job already has a buffer path, but the buffer is still
	// being written; previews must refuse it.
	j := reg.Create(catalog.Kick, "waxiest")
	_, err := reg.Transition(j.ID, jobs.StateResolving, jobs.Patch{})
	require.NoError(t, err)
	_, err = reg.Transition(j.ID, jobs.StateCapturing, jobs.Patch{
		BufferPath: jobs.String(filepath.Join(p.tempDir, "buffer_partial.mp4")),
	})
	require.NoError(t, err)

	_, err = p.GeneratePreviews(context.Background(), j.ID, 3)
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)

	got, _ := reg.Get(j.ID)
	assert.Equal(t, jobs.StateCapturing, got.State)
	assert.Empty(t, got.PreviewFramePaths)
}

func TestUploadSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Contains(t, header.Filename, "clip_")
		w.Write([]byte(`{"success":true,"url":"https://files.example/abc.mp4"}`))
	}))
	defer srv.Close()

	p, reg, pub := newTestPipeline(t, &fakeResolver{url: "https://edge/live.m3u8"}, srv.URL)
	job := capturedJob(t, p, reg)
	require.NoError(t, p.ExtractClip(context.Background(), job.ID, 0, 30*time.Second))

	require.NoError(t, p.Upload(context.Background(), job.ID))

	got, _ := reg.Get(job.ID)
	assert.Equal(t, jobs.StateUploaded, got.State)
	assert.Equal(t, "https://files.example/abc.mp4", got.UploadedURL)
	assert.True(t, pub.has(events.KindUploadComplete))
}

func TestUploadRejectionKeepsClip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		w.Write([]byte(`{"success":false,"reason":"file too large"}`))
	}))
	defer srv.Close()

	p, reg, _ := newTestPipeline(t, &fakeResolver{url: "https://edge/live.m3u8"}, srv.URL)
	job := capturedJob(t, p, reg)
	require.NoError(t, p.ExtractClip(context.Background(), job.ID, 0, 30*time.Second))

	require.NoError(t, p.Upload(context.Background(), job.ID))

	got, _ := reg.Get(job.ID)
	assert.Equal(t, jobs.StateError, got.State)
	assert.Contains(t, got.ErrorReason, "file too large")
	assert.FileExists(t, got.ClipPath, "a rejected upload must not destroy the clip")
}

func TestCancelMidCaptureFailsJobQuickly(t *testing.T) {
	p, reg, _ := newTestPipeline(t, &fakeResolver{url: "https://edge/live.m3u8"}, "")

	slow := filepath.Join(t.TempDir(), "slow-stub")
	require.NoError(t, os.WriteFile(slow, []byte("#!/bin/sh\nsleep 5\n"), 0o755))
	p.runner.Path = slow

	j := reg.Create(catalog.Kick, "waxiest")
	done := make(chan struct{})
	go func() { p.Capture(context.Background(), j.ID, 0); close(done) }()

	require.Eventually(t, func() bool {
		got, err := reg.Get(j.ID)
		return err == nil && got.State == jobs.StateCapturing
	}, time.Second, 5*time.Millisecond)

	p.Cancel(j.ID)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not abort after cancel")
	}
	got, _ := reg.Get(j.ID)
	assert.Equal(t, jobs.StateError, got.State)
	assert.Equal(t, "cancelled", got.ErrorReason)
}

func TestUploadRequiresCompletedState(t *testing.T) {
	p, reg, _ := newTestPipeline(t, &fakeResolver{url: "https://edge/live.m3u8"}, "")
	job := capturedJob(t, p, reg)

	err := p.Upload(context.Background(), job.ID)
	assert.ErrorIs(t, err, jobs.ErrInvalidTransition)
}
