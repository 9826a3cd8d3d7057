// Package catalog holds the normalized streamer model, the published snapshot
// and the aggregator that produces it from the per-platform adapters.
package catalog

import (
	"time"
)

// Platform identifies one of the polled streaming services.
type Platform string

const (
	Twitch  Platform = "twitch"
	Parti   Platform = "parti"
	Dlive   Platform = "dlive"
	Trovo   Platform = "trovo"
	Kick    Platform = "kick"
	Youtube Platform = "youtube"
)

// Platforms lists every supported platform in canonical order.
var Platforms = []Platform{Twitch, Parti, Dlive, Trovo, Kick, Youtube}

// Valid reports whether p names a supported platform.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// Status is the tagged live/offline state of a streamer record.
type Status string

const (
	StatusLive     Status = "live"
	StatusOffline  Status = "offline"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// StreamerRecord is one roster entry's state as of a single poll cycle.
// Records are value types: each cycle produces fresh ones, never mutating
// records from the prior cycle.
type StreamerRecord struct {
	Platform    Platform `json:"platform"`
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName,omitempty"`
	AvatarURL   string   `json:"avatarUrl,omitempty"`
	ChannelURL  string   `json:"channelUrl,omitempty"`

	Status Status `json:"status"`

	// Live-only fields
	Title       string     `json:"title,omitempty"`
	ViewerCount int        `json:"viewerCount,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`

	// Cached media playlist URL when the poll surfaced one; lets the
	// resolver skip the browser probe entirely.
	StreamURL string `json:"streamUrl,omitempty"`

	// Offline-only: nil when no historical broadcast could be determined.
	LastBroadcastAt *time.Time `json:"lastBroadcastAt,omitempty"`

	// Partial-failure annotation. A record can be usable and still carry
	// error details (e.g. profile endpoint failed but livestream succeeded).
	ErrorDetails string `json:"errorDetails,omitempty"`

	LastChecked time.Time `json:"lastChecked"`
}

// Live reports whether the record's status is live.
func (r StreamerRecord) Live() bool { return r.Status == StatusLive }

// Key returns the record identity used for tie-breaking and lookups.
func (r StreamerRecord) Key() string { return string(r.Platform) + "/" + r.ID }

// ErrorRecord builds a minimal Error-status record for a ref that could not
// be polled at all.
func ErrorRecord(platform Platform, ref string, reason string) StreamerRecord {
	return StreamerRecord{
		Platform:     platform,
		ID:           ref,
		DisplayName:  ref,
		Status:       StatusError,
		ErrorDetails: reason,
		LastChecked:  time.Now().UTC(),
	}
}

// Snapshot is one atomically-published catalog: every roster entry's record,
// totally ordered by the four-key sort, plus per-platform poll failures.
type Snapshot struct {
	GeneratedAt time.Time           `json:"generatedAt"`
	Records     []StreamerRecord    `json:"records"`
	PollErrors  map[Platform]string `json:"pollErrors,omitempty"`
}

// ByPlatform returns the slice of records belonging to one platform,
// preserving snapshot order.
func (s *Snapshot) ByPlatform(p Platform) []StreamerRecord {
	var out []StreamerRecord
	for _, r := range s.Records {
		if r.Platform == p {
			out = append(out, r)
		}
	}
	return out
}

// LiveRecords returns the live subset in snapshot order (which is already
// viewer-count descending for live records).
func (s *Snapshot) LiveRecords() []StreamerRecord {
	var out []StreamerRecord
	for _, r := range s.Records {
		if r.Live() {
			out = append(out, r)
		}
	}
	return out
}

// Find looks up a record by platform and ref.
func (s *Snapshot) Find(p Platform, ref string) (StreamerRecord, bool) {
	for _, r := range s.Records {
		if r.Platform == p && r.ID == ref {
			return r, true
		}
	}
	return StreamerRecord{}, false
}
