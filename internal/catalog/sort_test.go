package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", value, err)
	}
	return &parsed
}

func TestSortLiveBeforeOffline(t *testing.T) {
	records := []StreamerRecord{
		{Platform: Parti, ID: "2", Status: StatusOffline, LastBroadcastAt: ts(t, "2025-06-01T11:00:00Z")},
		{Platform: Parti, ID: "1", Status: StatusLive, ViewerCount: 500},
		{Platform: Kick, ID: "x", Status: StatusNotFound},
	}
	Sort(records)

	assert.Equal(t, "1", records[0].ID)
	assert.Equal(t, "2", records[1].ID)
	assert.Equal(t, "x", records[2].ID)
	assert.Equal(t, StatusNotFound, records[2].Status)
}

func TestSortLiveByViewersAcrossPlatforms(t *testing.T) {
	records := []StreamerRecord{
		{Platform: Kick, ID: "b", Status: StatusLive, ViewerCount: 999},
		{Platform: Twitch, ID: "a", Status: StatusLive, ViewerCount: 1000},
	}
	Sort(records)

	assert.Equal(t, 1000, records[0].ViewerCount)
	assert.Equal(t, 999, records[1].ViewerCount)
}

func TestSortOfflineByLastBroadcast(t *testing.T) {
	records := []StreamerRecord{
		{Platform: Twitch, ID: "stale", Status: StatusOffline, LastBroadcastAt: ts(t, "2025-01-01T00:00:00Z")},
		{Platform: Twitch, ID: "recent", Status: StatusOffline, LastBroadcastAt: ts(t, "2025-06-01T00:00:00Z")},
		{Platform: Twitch, ID: "unknown", Status: StatusOffline},
	}
	Sort(records)

	assert.Equal(t, "recent", records[0].ID)
	assert.Equal(t, "stale", records[1].ID)
	// Absent last broadcast sorts as epoch: last.
	assert.Equal(t, "unknown", records[2].ID)
}

func TestSortTieBreakByPlatformThenID(t *testing.T) {
	records := []StreamerRecord{
		{Platform: Twitch, ID: "zed", Status: StatusLive, ViewerCount: 100},
		{Platform: Kick, ID: "abe", Status: StatusLive, ViewerCount: 100},
		{Platform: Kick, ID: "aaa", Status: StatusLive, ViewerCount: 100},
	}
	Sort(records)

	assert.Equal(t, "aaa", records[0].ID)
	assert.Equal(t, "abe", records[1].ID)
	assert.Equal(t, "zed", records[2].ID)
}

func TestSortInputOrderIrrelevantForDistinctKeys(t *testing.T) {
	build := func() []StreamerRecord {
		return []StreamerRecord{
			{Platform: Twitch, ID: "a", Status: StatusLive, ViewerCount: 10},
			{Platform: Kick, ID: "b", Status: StatusLive, ViewerCount: 20},
			{Platform: Parti, ID: "c", Status: StatusOffline, LastBroadcastAt: ts(t, "2025-03-01T00:00:00Z")},
			{Platform: Dlive, ID: "d", Status: StatusOffline},
		}
	}

	forward := build()
	Sort(forward)

	reversed := build()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	Sort(reversed)

	assert.Equal(t, forward, reversed)
}
