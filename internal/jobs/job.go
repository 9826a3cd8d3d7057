// Package jobs owns the in-memory job registry and the clip-job state
// machine. All mutation goes through the Registry so transitions stay
// serialized and observable in order.
package jobs

import (
	"errors"
	"time"

	"clipcast.systems/clipcast/internal/catalog"
)

// State is a job lifecycle stage.
type State string

const (
	StateInitializing State = "initializing"
	StateResolving    State = "resolving"
	StateCapturing    State = "capturing"
	StateCaptured     State = "captured"
	StateProcessing   State = "processing"
	StateCompleted    State = "completed"
	StateUploading    State = "uploading"
	StateUploaded     State = "uploaded"
	StateError        State = "error"
)

// ErrInvalidTransition is returned when a requested state change is not an
// edge of the lifecycle graph.
var ErrInvalidTransition = errors.New("invalid job transition")

// ErrNotFound is returned for an unknown job id.
var ErrNotFound = errors.New("job not found")

// ErrNotTerminal is returned when deleting a job that is still in flight.
var ErrNotTerminal = errors.New("job is not in a terminal state")

// next holds the forward edges of the lifecycle graph. Every non-terminal
// state may additionally move to StateError.
var next = map[State]State{
	StateInitializing: StateResolving,
	StateResolving:    StateCapturing,
	StateCapturing:    StateCaptured,
	StateCaptured:     StateProcessing,
	StateProcessing:   StateCompleted,
	StateCompleted:    StateUploading,
	StateUploading:    StateUploaded,
}

// Terminal reports whether no further transitions can occur. A completed job
// counts as terminal for retention purposes but may still move to uploading.
func (s State) Terminal() bool {
	return s == StateUploaded || s == StateCompleted || s == StateError
}

func legalTransition(from, to State) bool {
	if to == StateError {
		return from != StateUploaded && from != StateError
	}
	return next[from] == to
}

// Job is one capture/clip/upload lifecycle. Instances returned by the
// Registry are copies; callers never hold a shared pointer.
type Job struct {
	ID          string           `json:"id"`
	Platform    catalog.Platform `json:"platform"`
	StreamerRef string           `json:"streamer_ref"`
	State       State            `json:"state"`
	Progress    int              `json:"progress"`
	Title       string           `json:"title,omitempty"`

	StreamURL         string   `json:"stream_url,omitempty"`
	BufferPath        string   `json:"buffer_path,omitempty"`
	BufferSeconds     float64  `json:"buffer_seconds,omitempty"`
	ClipPath          string   `json:"clip_path,omitempty"`
	ThumbnailPath     string   `json:"thumbnail_path,omitempty"`
	PreviewFramePaths []string `json:"preview_frame_paths,omitempty"`
	UploadedURL       string   `json:"uploaded_url,omitempty"`
	ErrorReason       string   `json:"error_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Patch carries optional field updates applied atomically with a transition.
type Patch struct {
	Title             *string
	StreamURL         *string
	BufferPath        *string
	BufferSeconds     *float64
	ClipPath          *string
	ThumbnailPath     *string
	PreviewFramePaths []string
	UploadedURL       *string
	ErrorReason       *string
}

func (p Patch) apply(j *Job) {
	if p.Title != nil {
		j.Title = *p.Title
	}
	if p.StreamURL != nil {
		j.StreamURL = *p.StreamURL
	}
	if p.BufferPath != nil {
		j.BufferPath = *p.BufferPath
	}
	if p.BufferSeconds != nil {
		j.BufferSeconds = *p.BufferSeconds
	}
	if p.ClipPath != nil {
		j.ClipPath = *p.ClipPath
	}
	if p.ThumbnailPath != nil {
		j.ThumbnailPath = *p.ThumbnailPath
	}
	if p.PreviewFramePaths != nil {
		j.PreviewFramePaths = p.PreviewFramePaths
	}
	if p.UploadedURL != nil {
		j.UploadedURL = *p.UploadedURL
	}
	if p.ErrorReason != nil {
		j.ErrorReason = *p.ErrorReason
	}
}

// String is a convenience for building Patch pointers inline.
func String(s string) *string { return &s }

// Float is a convenience for building Patch pointers inline.
func Float(f float64) *float64 { return &f }
