package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	platform Platform
	fetch    func(ctx context.Context, ref string) StreamerRecord

	mu    sync.Mutex
	calls []string
}

func (f *fakeAdapter) Platform() Platform { return f.platform }

func (f *fakeAdapter) Fetch(ctx context.Context, ref string) StreamerRecord {
	f.mu.Lock()
	f.calls = append(f.calls, ref)
	f.mu.Unlock()
	if f.fetch != nil {
		return f.fetch(ctx, ref)
	}
	return StreamerRecord{Platform: f.platform, ID: ref, Status: StatusOffline, LastChecked: time.Now()}
}

type serialFakeAdapter struct{ fakeAdapter }

func (s *serialFakeAdapter) Sequential() {}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "catalog.json"))
	require.NoError(t, store.Open())
	return store
}

func TestRefreshMergesAndSorts(t *testing.T) {
	live := &fakeAdapter{platform: Parti, fetch: func(_ context.Context, ref string) StreamerRecord {
		if ref == "1" {
			return StreamerRecord{Platform: Parti, ID: ref, Status: StatusLive, ViewerCount: 500}
		}
		at := time.Now().Add(-time.Hour)
		return StreamerRecord{Platform: Parti, ID: ref, Status: StatusOffline, LastBroadcastAt: &at}
	}}
	scrape := &serialFakeAdapter{fakeAdapter{platform: Kick, fetch: func(_ context.Context, ref string) StreamerRecord {
		return StreamerRecord{Platform: Kick, ID: ref, Status: StatusNotFound}
	}}}

	var published *Snapshot
	agg := NewAggregator(newTestStore(t), []Adapter{live, scrape}, map[Platform][]string{
		Parti: {"1", "2"},
		Kick:  {"x"},
	}, func(s *Snapshot) { published = s })

	snap, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Records, 3)

	assert.Equal(t, "1", snap.Records[0].ID)
	assert.Equal(t, "2", snap.Records[1].ID)
	assert.Equal(t, "x", snap.Records[2].ID)
	assert.Equal(t, StatusNotFound, snap.Records[2].Status)
	assert.Same(t, snap, published)
}

func TestRefreshFailedPlatformKeepsPriorEntries(t *testing.T) {
	store := newTestStore(t)
	prior := &Snapshot{
		GeneratedAt: time.Now(),
		Records: []StreamerRecord{
			{Platform: Kick, ID: "x", Status: StatusLive, ViewerCount: 7},
		},
	}
	require.NoError(t, store.Publish(prior))

	healthy := &fakeAdapter{platform: Parti}
	broken := &fakeAdapter{platform: Kick, fetch: func(_ context.Context, ref string) StreamerRecord {
		return ErrorRecord(Kick, ref, "browser launch failed")
	}}

	agg := NewAggregator(store, []Adapter{healthy, broken}, map[Platform][]string{
		Parti: {"1"},
		Kick:  {"x"},
	}, nil)

	snap, err := agg.Refresh(context.Background())
	require.NoError(t, err)

	got, ok := snap.Find(Kick, "x")
	require.True(t, ok)
	assert.Equal(t, StatusLive, got.Status, "prior record should survive the failed poll")
	assert.Contains(t, snap.PollErrors[Kick], "browser launch failed")

	_, ok = snap.Find(Parti, "1")
	assert.True(t, ok)
}

func TestRefreshOverlapDropped(t *testing.T) {
	release := make(chan struct{})
	slow := &fakeAdapter{platform: Parti, fetch: func(ctx context.Context, ref string) StreamerRecord {
		<-release
		return StreamerRecord{Platform: Parti, ID: ref, Status: StatusOffline}
	}}

	agg := NewAggregator(newTestStore(t), []Adapter{slow}, map[Platform][]string{Parti: {"1"}}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := agg.Refresh(context.Background())
		done <- err
	}()

	// Wait until the first refresh is inside the adapter.
	require.Eventually(t, func() bool {
		slow.mu.Lock()
		defer slow.mu.Unlock()
		return len(slow.calls) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := agg.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestRefreshPlatformLeavesOthersUntouched(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Publish(&Snapshot{
		GeneratedAt: time.Now(),
		Records: []StreamerRecord{
			{Platform: Parti, ID: "1", Status: StatusOffline},
			{Platform: Kick, ID: "x", Status: StatusLive, ViewerCount: 3},
		},
	}))

	parti := &fakeAdapter{platform: Parti, fetch: func(_ context.Context, ref string) StreamerRecord {
		return StreamerRecord{Platform: Parti, ID: ref, Status: StatusLive, ViewerCount: 42}
	}}

	agg := NewAggregator(store, []Adapter{parti}, map[Platform][]string{Parti: {"1"}}, nil)

	snap, err := agg.RefreshPlatform(context.Background(), Parti)
	require.NoError(t, err)
	require.Len(t, snap.Records, 2)

	p, _ := snap.Find(Parti, "1")
	assert.Equal(t, 42, p.ViewerCount)
	k, ok := snap.Find(Kick, "x")
	require.True(t, ok)
	assert.Equal(t, 3, k.ViewerCount)
}
