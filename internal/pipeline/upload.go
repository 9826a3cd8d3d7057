package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	"clipcast.systems/clipcast/internal/events"
	"clipcast.systems/clipcast/internal/jobs"
)

type uploadResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Reason  string `json:"reason"`
}

// progressReader counts bytes as the HTTP client drains the multipart body.
type progressReader struct {
	r      io.Reader
	read   atomic.Int64
	total  int64
	report func(pct int)
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 && pr.total > 0 {
		done := pr.read.Add(int64(n))
		pr.report(int(done * 100 / pr.total))
	}
	return n, err
}

// Upload POSTs the finished clip to the external host as multipart form
// data. Requires the completed state. The clip file is kept regardless of
// the outcome, so a failed upload can be retried by the user.
func (p *Pipeline) Upload(ctx context.Context, jobID string) error {
	job, err := p.registry.Get(jobID)
	if err != nil {
		return err
	}
	if _, err := p.registry.Transition(jobID, jobs.StateUploading, jobs.Patch{}); err != nil {
		return err
	}

	ctx, release := p.register(ctx, jobID)
	defer release()

	url, err := p.postClip(ctx, jobID, job.ClipPath)
	if err != nil {
		p.failStage(ctx, jobID, "upload", err)
		return nil
	}

	if _, err := p.registry.Transition(jobID, jobs.StateUploaded, jobs.Patch{
		UploadedURL: jobs.String(url),
	}); err != nil {
		return nil
	}
	p.publisher.Publish(events.Event{Kind: events.KindUploadComplete, Payload: map[string]string{
		"job_id": jobID, "url": url,
	}})
	p.log.Info("Upload complete", "job_id", jobID, "url", url)
	return nil
}

func (p *Pipeline) postClip(ctx context.Context, jobID, clipPath string) (string, error) {
	f, err := os.Open(clipPath)
	if err != nil {
		return "", fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat clip: %w", err)
	}

	counted := &progressReader{
		r:      f,
		total:  info.Size(),
		report: func(pct int) { p.registry.SetProgress(jobID, pct) },
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(clipPath))
		if err == nil {
			_, err = io.Copy(part, counted)
		}
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadEndpoint, pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post clip: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read upload response: %w", err)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("upload host returned status %d with unparsable body", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !parsed.Success {
		reason := parsed.Reason
		if reason == "" {
			reason = fmt.Sprintf("upload host returned status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("upload rejected: %s", reason)
	}
	return parsed.URL, nil
}
