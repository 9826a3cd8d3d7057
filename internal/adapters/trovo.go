package adapters

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"clipcast.systems/clipcast/internal/catalog"
)

const trovoDefaultAPIURL = "https://open-api.trovo.live"

// TrovoAdapter polls trovo's open platform API: a user lookup to resolve the
// channel id, then the channel info call for live state. Both calls need the
// application client id header but no OAuth flow.
type TrovoAdapter struct {
	client   *Client
	clientID string
	apiURL   string
}

func NewTrovoAdapter(client *Client, clientID string) *TrovoAdapter {
	return &TrovoAdapter{client: client, clientID: clientID, apiURL: trovoDefaultAPIURL}
}

func (a *TrovoAdapter) Platform() catalog.Platform { return catalog.Trovo }

type trovoUsersPayload struct {
	Users []struct {
		Username  string `json:"username"`
		ChannelID string `json:"channel_id"`
	} `json:"users"`
}

type trovoChannelPayload struct {
	IsLive         bool   `json:"is_live"`
	Title          string `json:"live_title"`
	CurrentViewers int    `json:"current_viewers"`
	Username       string `json:"username"`
	ProfilePic     string `json:"profile_pic"`
	ChannelURL     string `json:"channel_url"`
	StartedAt      string `json:"started_at"`
	EndedAt        string `json:"ended_at"`
}

func (a *TrovoAdapter) Fetch(ctx context.Context, ref string) catalog.StreamerRecord {
	ctx, cancel := fetchCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	header := http.Header{"Client-ID": {a.clientID}}

	var users trovoUsersPayload
	if err := a.client.PostJSON(ctx, a.apiURL+"/openplatform/getusers", header,
		map[string]any{"user": []string{ref}}, &users); err != nil {
		return catalog.ErrorRecord(catalog.Trovo, ref, fmt.Sprintf("getusers: %v", err))
	}
	if len(users.Users) == 0 || users.Users[0].ChannelID == "" {
		return catalog.StreamerRecord{
			Platform:    catalog.Trovo,
			ID:          ref,
			DisplayName: ref,
			Status:      catalog.StatusNotFound,
			LastChecked: now,
		}
	}

	var channel trovoChannelPayload
	if err := a.client.PostJSON(ctx, a.apiURL+"/openplatform/channels/id", header,
		map[string]any{"channel_id": users.Users[0].ChannelID}, &channel); err != nil {
		// User lookup succeeded; keep the identity usable.
		record := catalog.ErrorRecord(catalog.Trovo, ref, fmt.Sprintf("channel: %v", err))
		record.DisplayName = users.Users[0].Username
		return record
	}

	record := catalog.StreamerRecord{
		Platform:    catalog.Trovo,
		ID:          ref,
		DisplayName: channel.Username,
		AvatarURL:   channel.ProfilePic,
		ChannelURL:  channel.ChannelURL,
		Status:      catalog.StatusOffline,
		LastChecked: now,
	}
	if record.DisplayName == "" {
		record.DisplayName = ref
	}
	if record.ChannelURL == "" {
		record.ChannelURL = "https://trovo.live/s/" + ref
	}

	if channel.IsLive {
		record.Status = catalog.StatusLive
		record.Title = channel.Title
		record.ViewerCount = max(channel.CurrentViewers, 0)
		if at, err := time.Parse(time.RFC3339, channel.StartedAt); err == nil {
			record.StartedAt = &at
		}
		return record
	}

	if at, err := time.Parse(time.RFC3339, channel.EndedAt); err == nil {
		record.LastBroadcastAt = &at
	}
	return record
}
