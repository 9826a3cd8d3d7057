package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipcast.systems/clipcast/internal/catalog"
)

type fakeCatalog struct{ snap *catalog.Snapshot }

func (f *fakeCatalog) Current() *catalog.Snapshot { return f.snap }

type fakePage struct {
	playlistURL string
	navigated   []string
	evaluated   int
	stopped     bool
	closed      bool
}

func (p *fakePage) Navigate(url string, _ time.Duration) error {
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) Evaluate(js string, out any) error {
	p.evaluated++
	if b, ok := out.(*bool); ok {
		*b = true
	}
	return nil
}

func (p *fakePage) ListenResponses(match func(string) bool) (func(time.Duration) (string, error), func()) {
	await := func(budget time.Duration) (string, error) {
		if p.playlistURL != "" && match(p.playlistURL) {
			return p.playlistURL, nil
		}
		return "", context.DeadlineExceeded
	}
	return await, func() { p.stopped = true }
}

func (p *fakePage) Close() { p.closed = true }

type fakeOpener struct {
	page  *fakePage
	opens int
}

func (o *fakeOpener) AcquirePage(ctx context.Context) (Page, error) {
	o.opens++
	return o.page, nil
}

func TestResolvePrefersCachedCatalogURL(t *testing.T) {
	snap := &catalog.Snapshot{Records: []catalog.StreamerRecord{{
		Platform:  catalog.Parti,
		ID:        "348242",
		Status:    catalog.StatusLive,
		StreamURL: "https://cdn.example/live.m3u8",
	}}}
	opener := &fakeOpener{page: &fakePage{}}
	r := New(&fakeCatalog{snap: snap}, opener)

	url, err := r.Resolve(context.Background(), catalog.Parti, "348242")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/live.m3u8", url)
	assert.Zero(t, opener.opens, "no browser page should be opened for a cached URL")
}

func TestResolveProbesBrowserWhenNotCached(t *testing.T) {
	page := &fakePage{playlistURL: "https://edge.example/hls/chunklist.m3u8?token=x"}
	opener := &fakeOpener{page: page}
	r := New(&fakeCatalog{}, opener)

	url, err := r.Resolve(context.Background(), catalog.Kick, "waxiest")
	require.NoError(t, err)
	assert.Equal(t, page.playlistURL, url)
	assert.Equal(t, []string{"https://kick.com/waxiest"}, page.navigated)
	assert.True(t, page.stopped, "response subscription must be removed")
	assert.True(t, page.closed)
}

func TestResolveNoPlaylistWithinBudget(t *testing.T) {
	page := &fakePage{} // never yields a playlist
	r := New(&fakeCatalog{}, &fakeOpener{page: page})

	_, err := r.Resolve(context.Background(), catalog.Twitch, "alpha")
	assert.ErrorIs(t, err, ErrNoPlaylist)
	assert.True(t, page.closed)
}

func TestIsMediaPlaylist(t *testing.T) {
	assert.True(t, isMediaPlaylist("https://x/playlist.m3u8"))
	assert.True(t, isMediaPlaylist("https://x/chunklist.M3U8?sig=abc"))
	assert.False(t, isMediaPlaylist("https://x/segment.ts"))
	assert.False(t, isMediaPlaylist("https://x/m3u8/segment.ts"))
}

func TestWatchURL(t *testing.T) {
	assert.Equal(t, "https://www.twitch.tv/a", WatchURL(catalog.Twitch, "a"))
	assert.Equal(t, "https://www.youtube.com/channel/UC1/live", WatchURL(catalog.Youtube, "UC1"))
	assert.Empty(t, WatchURL(catalog.Platform("nope"), "a"))
}
