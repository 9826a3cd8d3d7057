package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"clipcast.systems/clipcast/internal/catalog"
)

func newPartiAdapter(t *testing.T, handler http.Handler) *PartiAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := NewPartiAdapter(NewClient("test-agent"))
	a.baseURL = srv.URL
	return a
}

func TestPartiFetchLive(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/parti_v2/profile/get_livestream_channel_info/348242", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"is_streaming_live_now": true,
			"channel_info": {
				"stream": {"viewer_count": 321, "playback_url": "https://cdn.example/live.m3u8"},
				"livestream_event_info": {"event_name": "IRL stream"}
			}
		}`)
	})
	mux.HandleFunc("/parti_v2/profile/user_profile/348242", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"user_name": "SomeStreamer", "avatar_link": "https://cdn.example/a.png"}`)
	})

	record := newPartiAdapter(t, mux).Fetch(context.Background(), "348242")

	assert.Equal(t, catalog.StatusLive, record.Status)
	assert.Equal(t, "SomeStreamer", record.DisplayName)
	assert.Equal(t, 321, record.ViewerCount)
	assert.Equal(t, "IRL stream", record.Title)
	assert.Equal(t, "https://cdn.example/live.m3u8", record.StreamURL)
	assert.Empty(t, record.ErrorDetails)
}

func TestPartiFetchPartialFailureKeepsCoreFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/parti_v2/profile/get_livestream_channel_info/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"is_streaming_live_now": false}`)
	})
	mux.HandleFunc("/parti_v2/profile/user_profile/1", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	record := newPartiAdapter(t, mux).Fetch(context.Background(), "1")

	assert.Equal(t, catalog.StatusOffline, record.Status)
	assert.Contains(t, record.ErrorDetails, "profile")
	assert.Equal(t, "1", record.DisplayName)
}

func TestPartiFetchBothEndpointsDownIsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	record := newPartiAdapter(t, mux).Fetch(context.Background(), "9")

	assert.Equal(t, catalog.StatusError, record.Status)
	assert.Contains(t, record.ErrorDetails, "livestream")
	assert.Contains(t, record.ErrorDetails, "profile")
}
