package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clipcast.systems/clipcast/internal/catalog"
)

const (
	ytSelViewerCount   = "#view-count yt-animated-rolling-number"
	ytSelLiveUsername  = "#text > a"
	ytSelLiveAvatar    = "#img"
	ytSelLiveTitle     = "#title > h1 yt-formatted-string"
	ytSelChanUsername  = "#page-header h1 span"
	ytSelChanAvatar    = "#page-header img"
	ytSelLastBroadcast = "#metadata-line > span:nth-child(4)"
)

// YoutubeAdapter scrapes youtube channel /live pages. Refs are channel ids.
// If the live watch page yields no viewer counter the adapter falls back to
// the channel page for offline metadata.
type YoutubeAdapter struct {
	pages PageOpener
}

func NewYoutubeAdapter(pages PageOpener) *YoutubeAdapter {
	return &YoutubeAdapter{pages: pages}
}

func (a *YoutubeAdapter) Platform() catalog.Platform { return catalog.Youtube }

func (a *YoutubeAdapter) Sequential() {}

func (a *YoutubeAdapter) Fetch(ctx context.Context, ref string) catalog.StreamerRecord {
	ctx, cancel := fetchCtx(ctx)
	defer cancel()

	page, err := a.pages.AcquirePage(ctx)
	if err != nil {
		return catalog.ErrorRecord(catalog.Youtube, ref, fmt.Sprintf("browser: %v", err))
	}
	defer page.Close()

	if err := page.BlockRequests(blockedPatterns...); err != nil {
		return catalog.ErrorRecord(catalog.Youtube, ref, fmt.Sprintf("request blocking: %v", err))
	}

	channelURL := "https://www.youtube.com/channel/" + ref
	if err := page.Navigate(channelURL+"/live", navigateTimeout); err != nil {
		return catalog.ErrorRecord(catalog.Youtube, ref, fmt.Sprintf("navigate: %v", err))
	}

	now := time.Now().UTC()
	if notFoundPage(page, "") {
		return catalog.StreamerRecord{
			Platform:    catalog.Youtube,
			ID:          ref,
			DisplayName: ref,
			ChannelURL:  channelURL,
			Status:      catalog.StatusNotFound,
			LastChecked: now,
		}
	}

	record := catalog.StreamerRecord{
		Platform:    catalog.Youtube,
		ID:          ref,
		DisplayName: ref,
		ChannelURL:  channelURL,
		LastChecked: now,
	}

	// A rolling viewer counter only renders on an actual live watch page.
	if viewers, ok := page.Text(ytSelViewerCount, selectorWait); ok {
		record.Status = catalog.StatusLive
		record.ViewerCount = ParseViewerCount(firstField(viewers))
		if name, ok := page.Text(ytSelLiveUsername, selectorWait); ok && name != "" {
			record.DisplayName = name
		}
		if src, ok := page.Attr(ytSelLiveAvatar, "src", selectorWait); ok {
			record.AvatarURL = src
		}
		if title, ok := page.Text(ytSelLiveTitle, selectorWait); ok {
			record.Title = title
		}
		return record
	}

	// Offline: the /live URL renders the channel itself or an upcoming
	// placeholder. Re-navigate to the channel page for profile fields.
	record.Status = catalog.StatusOffline
	if err := page.Navigate(channelURL, navigateTimeout); err != nil {
		record.ErrorDetails = fmt.Sprintf("channel page: %v", err)
		return record
	}
	if name, ok := page.Text(ytSelChanUsername, selectorWait); ok && name != "" {
		record.DisplayName = name
	}
	if src, ok := page.Attr(ytSelChanAvatar, "src", selectorWait); ok {
		record.AvatarURL = src
	}
	if text, ok := page.Text(ytSelLastBroadcast, selectorWait); ok {
		if at, parsed := ParseRelativeTime(text, now); parsed {
			record.LastBroadcastAt = &at
		}
	}
	return record
}

// firstField trims a counter like "1,234 watching" down to the number.
func firstField(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
