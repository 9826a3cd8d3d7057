package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipcast.systems/clipcast/internal/catalog"
	"clipcast.systems/clipcast/internal/events"
)

// StallAfter is how long a non-terminal job may sit without an update before
// the stall sweep force-fails it.
const StallAfter = 30 * time.Minute

// Publisher receives job lifecycle events. The events bus satisfies it.
type Publisher interface {
	Publish(events.Event)
}

// Registry is the single owner of job state. All reads return copies.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job

	publisher Publisher
	now       func() time.Time
}

// NewRegistry creates an empty registry publishing to p.
func NewRegistry(p Publisher) *Registry {
	return &Registry{
		jobs:      make(map[string]*Job),
		publisher: p,
		now:       time.Now,
	}
}

// Create mints a new job in the initializing state and publishes job_created.
func (r *Registry) Create(platform catalog.Platform, ref string) Job {
	now := r.now()
	j := &Job{
		ID:          uuid.NewString(),
		Platform:    platform,
		StreamerRef: ref,
		State:       StateInitializing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.mu.Lock()
	r.jobs[j.ID] = j
	snapshot := *j
	r.mu.Unlock()

	r.publisher.Publish(events.Event{Kind: events.KindJobCreated, Payload: snapshot})
	return snapshot
}

// Get returns a copy of the job, or ErrNotFound.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

// List returns copies of all jobs, newest first.
func (r *Registry) List() []Job {
	r.mu.Lock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, k int) bool {
		if !out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].CreatedAt.After(out[k].CreatedAt)
		}
		return out[i].ID < out[k].ID
	})
	return out
}

// Transition moves the job to a new state, applying the patch atomically.
// Progress resets to zero on entry to the new state unless the target is
// terminal, where it jumps to 100. Publishes job_updated (and job_error when
// the target is the error state).
func (r *Registry) Transition(id string, to State, patch Patch) (Job, error) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return Job{}, ErrNotFound
	}
	if !legalTransition(j.State, to) {
		from := j.State
		r.mu.Unlock()
		return Job{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	j.State = to
	j.UpdatedAt = r.now()
	if to.Terminal() {
		j.Progress = 100
	} else {
		j.Progress = 0
	}
	patch.apply(j)
	snapshot := *j
	r.mu.Unlock()

	r.publisher.Publish(events.Event{Kind: events.KindJobUpdated, Payload: snapshot})
	if to == StateError {
		r.publisher.Publish(events.Event{Kind: events.KindJobError, Payload: snapshot})
	}
	return snapshot, nil
}

// Amend applies a patch without changing state, for side artifacts like
// preview frames. Publishes job_updated.
func (r *Registry) Amend(id string, patch Patch) (Job, error) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return Job{}, ErrNotFound
	}
	patch.apply(j)
	j.UpdatedAt = r.now()
	snapshot := *j
	r.mu.Unlock()

	r.publisher.Publish(events.Event{Kind: events.KindJobUpdated, Payload: snapshot})
	return snapshot, nil
}

// SetProgress records stage progress. Values are clamped to [0,100] and may
// never decrease within the current state; regressions are ignored.
func (r *Registry) SetProgress(id string, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok || j.State.Terminal() || pct <= j.Progress {
		r.mu.Unlock()
		return
	}
	j.Progress = pct
	j.UpdatedAt = r.now()
	snapshot := *j
	r.mu.Unlock()

	r.publisher.Publish(events.Event{Kind: events.KindJobUpdated, Payload: snapshot})
}

// Fail moves the job to the error state with the given reason. Failing an
// already-terminal job is a no-op so that cancellation and stage errors
// racing each other settle on whichever lands first.
func (r *Registry) Fail(id, reason string) {
	_, _ = r.Transition(id, StateError, Patch{ErrorReason: String(reason)})
}

// Delete removes a job; only terminal jobs may be deleted.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if !j.State.Terminal() {
		return ErrNotTerminal
	}
	delete(r.jobs, id)
	return nil
}

// Stalled returns copies of non-terminal jobs whose last update is older
// than the cutoff.
func (r *Registry) Stalled(olderThan time.Duration) []Job {
	cutoff := r.now().Add(-olderThan)

	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Job
	for _, j := range r.jobs {
		if !j.State.Terminal() && j.UpdatedAt.Before(cutoff) {
			out = append(out, *j)
		}
	}
	return out
}

// TerminalOlderThan returns copies of terminal jobs past the retention
// window, for the daily sweep.
func (r *Registry) TerminalOlderThan(retention time.Duration) []Job {
	cutoff := r.now().Add(-retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Job
	for _, j := range r.jobs {
		if j.State.Terminal() && j.UpdatedAt.Before(cutoff) {
			out = append(out, *j)
		}
	}
	return out
}
