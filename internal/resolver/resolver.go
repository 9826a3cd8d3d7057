// Package resolver turns (platform, streamer) into a playable media
// playlist URL: catalog first, live browser probe second.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clipcast.systems/clipcast/internal/catalog"
)

// ErrNoPlaylist means no media playlist URL could be obtained within budget.
// The surrounding job fails with this reason; there is no silent retry — the
// catalog freshens every minute and the user can simply try again.
var ErrNoPlaylist = errors.New("no media playlist URL found")

const (
	navigateTimeout = 60 * time.Second

	// How long we poll for the <video> element after navigation.
	videoReadyBudget = 10 * time.Second

	// Response-interception budget after the video interaction.
	playlistBudget = 10 * time.Second
)

// Page is the slice of a browser tab the probe needs.
type Page interface {
	Navigate(url string, timeout time.Duration) error
	Evaluate(js string, out any) error
	ListenResponses(match func(url string) bool) (await func(budget time.Duration) (string, error), stop func())
	Close()
}

// PageOpener lends pages of the shared headless browser.
type PageOpener interface {
	AcquirePage(ctx context.Context) (Page, error)
}

// CatalogSource supplies the latest published snapshot.
type CatalogSource interface {
	Current() *catalog.Snapshot
}

type Resolver struct {
	catalog CatalogSource
	pages   PageOpener
}

func New(catalogSource CatalogSource, pages PageOpener) *Resolver {
	return &Resolver{catalog: catalogSource, pages: pages}
}

// Resolve returns a current media playlist URL for the streamer. The cached
// catalog URL wins when the record is live and carries one; otherwise the
// watch page is probed through the browser.
func (r *Resolver) Resolve(ctx context.Context, platform catalog.Platform, ref string) (string, error) {
	if snap := r.catalog.Current(); snap != nil {
		if record, ok := snap.Find(platform, ref); ok && record.Live() && record.StreamURL != "" {
			slog.Debug("resolved stream URL from catalog", "platform", platform, "ref", ref)
			return record.StreamURL, nil
		}
	}
	return r.probe(ctx, platform, ref)
}

// videoInteractJS nudges the player into requesting its playlist: seek to
// the start and play, muted so autoplay policy does not block it.
const videoInteractJS = `(() => {
	const v = document.querySelector('video');
	if (!v) return false;
	v.muted = true;
	try { v.currentTime = 0; } catch (e) {}
	const p = v.play();
	if (p && p.catch) p.catch(() => {});
	return true;
})()`

func (r *Resolver) probe(ctx context.Context, platform catalog.Platform, ref string) (string, error) {
	page, err := r.pages.AcquirePage(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve %s/%s: %w", platform, ref, err)
	}
	defer page.Close()

	watchURL := WatchURL(platform, ref)
	if err := page.Navigate(watchURL, navigateTimeout); err != nil {
		return "", fmt.Errorf("resolve %s/%s: navigate: %w", platform, ref, err)
	}

	await, stop := page.ListenResponses(isMediaPlaylist)
	defer stop()

	if err := waitVideoReady(ctx, page); err != nil {
		return "", fmt.Errorf("resolve %s/%s: %w: %v", platform, ref, ErrNoPlaylist, err)
	}

	url, err := await(playlistBudget)
	if err != nil {
		return "", fmt.Errorf("resolve %s/%s: %w", platform, ref, ErrNoPlaylist)
	}
	slog.Info("resolved stream URL via browser probe", "platform", platform, "ref", ref)
	return url, nil
}

func waitVideoReady(ctx context.Context, page Page) error {
	deadline := time.Now().Add(videoReadyBudget)
	for {
		var ready bool
		if err := page.Evaluate(videoInteractJS, &ready); err == nil && ready {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("video element never became ready")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// isMediaPlaylist matches HLS playlist responses by URL path.
func isMediaPlaylist(url string) bool {
	base := url
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	return strings.HasSuffix(strings.ToLower(base), ".m3u8")
}

// WatchURL builds the public watch page for a streamer.
func WatchURL(platform catalog.Platform, ref string) string {
	switch platform {
	case catalog.Twitch:
		return "https://www.twitch.tv/" + ref
	case catalog.Kick:
		return "https://kick.com/" + ref
	case catalog.Youtube:
		return "https://www.youtube.com/channel/" + ref + "/live"
	case catalog.Parti:
		return "https://parti.com/creator/parti/" + ref
	case catalog.Dlive:
		return "https://dlive.tv/" + ref
	case catalog.Trovo:
		return "https://trovo.live/s/" + ref
	default:
		return ""
	}
}
