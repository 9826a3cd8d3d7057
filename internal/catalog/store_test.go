package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	store := NewStore(path)
	require.NoError(t, store.Open())
	assert.Nil(t, store.Current())

	snap := &Snapshot{
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Records: []StreamerRecord{
			{Platform: Twitch, ID: "a", Status: StatusLive, ViewerCount: 12},
		},
	}
	require.NoError(t, store.Publish(snap))

	reopened := NewStore(path)
	require.NoError(t, reopened.Open())
	got := reopened.Current()
	require.NotNil(t, got)
	assert.Equal(t, snap.Records, got.Records)
}

func TestStoreConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	store := NewStore(path)

	records := make([]StreamerRecord, 50)
	for i := range records {
		records[i] = StreamerRecord{Platform: Parti, ID: string(rune('a' + i%26)), Status: StatusOffline}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			snap := &Snapshot{GeneratedAt: time.Now(), Records: records}
			if err := store.Publish(snap); err != nil {
				t.Error(err)
				return
			}
		}
		close(stop)
	}()

	// Re-read the file while the writer replaces it; every read must parse.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			data, err := os.ReadFile(path)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				t.Error(err)
				return
			}
			var snap Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				t.Errorf("observed torn snapshot: %v", err)
				return
			}
		}
	}()

	wg.Wait()
}
