package adapters

import (
	"context"
	"fmt"
	"time"

	"clipcast.systems/clipcast/internal/catalog"
)

const partiDefaultBaseURL = "https://api-backend.parti.com"

// PartiAdapter polls parti.com. Two endpoints per streamer: the livestream
// channel info (live state, viewers, event name) and the user profile
// (display name, avatar). Either call may fail independently; the record
// keeps whatever core fields were obtained and annotates the rest.
type PartiAdapter struct {
	client  *Client
	baseURL string
}

func NewPartiAdapter(client *Client) *PartiAdapter {
	return &PartiAdapter{client: client, baseURL: partiDefaultBaseURL}
}

func (a *PartiAdapter) Platform() catalog.Platform { return catalog.Parti }

type partiLivestreamPayload struct {
	IsStreamingLiveNow bool `json:"is_streaming_live_now"`
	ChannelInfo        *struct {
		Stream *struct {
			ViewerCount int    `json:"viewer_count"`
			PlaybackURL string `json:"playback_url"`
		} `json:"stream"`
		LivestreamEventInfo *struct {
			EventName string `json:"event_name"`
		} `json:"livestream_event_info"`
	} `json:"channel_info"`
}

type partiProfilePayload struct {
	UserName   string `json:"user_name"`
	AvatarLink string `json:"avatar_link"`
}

func (a *PartiAdapter) Fetch(ctx context.Context, ref string) catalog.StreamerRecord {
	ctx, cancel := fetchCtx(ctx)
	defer cancel()

	record := catalog.StreamerRecord{
		Platform:    catalog.Parti,
		ID:          ref,
		DisplayName: ref,
		ChannelURL:  fmt.Sprintf("https://parti.com/creator/parti/%s", ref),
		Status:      catalog.StatusOffline,
		LastChecked: time.Now().UTC(),
	}

	var liveErr, profileErr string

	var live partiLivestreamPayload
	if err := a.client.GetJSON(ctx, fmt.Sprintf("%s/parti_v2/profile/get_livestream_channel_info/%s", a.baseURL, ref), nil, &live); err != nil {
		liveErr = fmt.Sprintf("livestream: %v", err)
	} else if live.IsStreamingLiveNow {
		record.Status = catalog.StatusLive
		if ci := live.ChannelInfo; ci != nil {
			if ci.Stream != nil {
				record.ViewerCount = max(ci.Stream.ViewerCount, 0)
				record.StreamURL = ci.Stream.PlaybackURL
			}
			if ci.LivestreamEventInfo != nil {
				record.Title = ci.LivestreamEventInfo.EventName
			}
		}
	}

	var profile partiProfilePayload
	if err := a.client.GetJSON(ctx, fmt.Sprintf("%s/parti_v2/profile/user_profile/%s", a.baseURL, ref), nil, &profile); err != nil {
		profileErr = fmt.Sprintf("profile: %v", err)
	} else {
		if profile.UserName != "" {
			record.DisplayName = profile.UserName
		}
		record.AvatarURL = profile.AvatarLink
	}

	record.ErrorDetails = combineErrors(liveErr, profileErr)
	if liveErr != "" && profileErr != "" {
		record.Status = catalog.StatusError
	}
	return record
}
