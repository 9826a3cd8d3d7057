package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clipcast.systems/clipcast/internal/catalog"
)

// Kick channel page selectors. These track the site's markup and are the
// part of this adapter most likely to rot.
const (
	kickSelUsername      = "#channel-username"
	kickSelLiveBadge     = "#channel-content button > div > span"
	kickSelAvatarLive    = "#channel-avatar img"
	kickSelAvatarOffline = "#channel-content img.rounded-full"
	kickSelTitle         = "#channel-content span[data-stream-title], #channel-content div.overflow-hidden > span"
	kickSelViewers       = "#channel-content span.tabular-nums"
	kickSelLastBroadcast = "#channel-content span.text-subtle > span"
)

// KickAdapter scrapes kick.com channel pages through the shared headless
// browser. Polling is sequential within the platform; the aggregator runs it
// concurrently with the other scrape platform, each on its own page.
type KickAdapter struct {
	pages PageOpener
}

func NewKickAdapter(pages PageOpener) *KickAdapter {
	return &KickAdapter{pages: pages}
}

func (a *KickAdapter) Platform() catalog.Platform { return catalog.Kick }

func (a *KickAdapter) Sequential() {}

func (a *KickAdapter) Fetch(ctx context.Context, ref string) catalog.StreamerRecord {
	ctx, cancel := fetchCtx(ctx)
	defer cancel()

	page, err := a.pages.AcquirePage(ctx)
	if err != nil {
		return catalog.ErrorRecord(catalog.Kick, ref, fmt.Sprintf("browser: %v", err))
	}
	defer page.Close()

	if err := page.BlockRequests(blockedPatterns...); err != nil {
		return catalog.ErrorRecord(catalog.Kick, ref, fmt.Sprintf("request blocking: %v", err))
	}

	channelURL := "https://kick.com/" + ref
	if err := page.Navigate(channelURL, navigateTimeout); err != nil {
		return catalog.ErrorRecord(catalog.Kick, ref, fmt.Sprintf("navigate: %v", err))
	}

	now := time.Now().UTC()
	if notFoundPage(page, "/"+ref) {
		return catalog.StreamerRecord{
			Platform:    catalog.Kick,
			ID:          ref,
			DisplayName: ref,
			ChannelURL:  channelURL,
			Status:      catalog.StatusNotFound,
			LastChecked: now,
		}
	}

	record := catalog.StreamerRecord{
		Platform:    catalog.Kick,
		ID:          ref,
		DisplayName: ref,
		ChannelURL:  channelURL,
		Status:      catalog.StatusOffline,
		LastChecked: now,
	}

	if name, ok := page.Text(kickSelUsername, selectorWait); ok && name != "" {
		record.DisplayName = name
	}

	isLive := false
	if badge, ok := page.Text(kickSelLiveBadge, selectorWait); ok {
		isLive = strings.Contains(strings.ToLower(badge), "live")
	}

	avatarSel := kickSelAvatarOffline
	if isLive {
		avatarSel = kickSelAvatarLive
	}
	if src, ok := page.Attr(avatarSel, "src", selectorWait); ok {
		record.AvatarURL = src
	}

	if isLive {
		record.Status = catalog.StatusLive
		if title, ok := page.Text(kickSelTitle, selectorWait); ok {
			record.Title = title
		}
		if viewers, ok := page.Text(kickSelViewers, selectorWait); ok {
			record.ViewerCount = ParseViewerCount(viewers)
		}
		return record
	}

	if text, ok := page.Text(kickSelLastBroadcast, selectorWait); ok {
		if at, parsed := ParseRelativeTime(text, now); parsed {
			record.LastBroadcastAt = &at
		}
	}
	return record
}
