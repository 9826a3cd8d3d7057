package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"clipcast.systems/clipcast/internal/catalog"
)

const (
	twitchDefaultAuthURL = "https://id.twitch.tv"
	twitchDefaultAPIURL  = "https://api.twitch.tv"

	// Helix accepts up to 100 identities per users/streams request.
	twitchBatchSize = 100

	// Refresh the app token this long before it actually expires.
	twitchTokenMargin = 60 * time.Second
)

// TwitchAdapter polls twitch via helix with an app (client-credentials)
// token. The token is cached until shortly before expiry. Rosters larger
// than the batch size are chunked; a failed chunk yields Error records for
// its identities only.
type TwitchAdapter struct {
	client       *Client
	clientID     string
	clientSecret string
	authURL      string
	apiURL       string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewTwitchAdapter(client *Client, clientID, clientSecret string) *TwitchAdapter {
	return &TwitchAdapter{
		client:       client,
		clientID:     clientID,
		clientSecret: clientSecret,
		authURL:      twitchDefaultAuthURL,
		apiURL:       twitchDefaultAPIURL,
	}
}

func (a *TwitchAdapter) Platform() catalog.Platform { return catalog.Twitch }

func (a *TwitchAdapter) Fetch(ctx context.Context, ref string) catalog.StreamerRecord {
	return a.FetchBatch(ctx, []string{ref})[0]
}

// FetchBatch polls all refs, chunked to the helix batch size.
func (a *TwitchAdapter) FetchBatch(ctx context.Context, refs []string) []catalog.StreamerRecord {
	token, err := a.appToken(ctx)
	if err != nil {
		records := make([]catalog.StreamerRecord, len(refs))
		for i, ref := range refs {
			records[i] = catalog.ErrorRecord(catalog.Twitch, ref, fmt.Sprintf("token: %v", err))
		}
		return records
	}

	var records []catalog.StreamerRecord
	for start := 0; start < len(refs); start += twitchBatchSize {
		end := min(start+twitchBatchSize, len(refs))
		records = append(records, a.fetchChunk(ctx, token, refs[start:end])...)
	}
	return records
}

type twitchTokenPayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (a *TwitchAdapter) appToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.tokenExpiry) {
		return a.token, nil
	}
	if a.clientID == "" || a.clientSecret == "" {
		return "", fmt.Errorf("twitch credentials not configured")
	}

	form := url.Values{
		"client_id":     {a.clientID},
		"client_secret": {a.clientSecret},
		"grant_type":    {"client_credentials"},
	}
	var payload twitchTokenPayload
	if err := a.client.PostForm(ctx, a.authURL+"/oauth2/token", form.Encode(), &payload); err != nil {
		return "", err
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response")
	}

	a.token = payload.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn)*time.Second - twitchTokenMargin)
	return a.token, nil
}

type twitchUsersPayload struct {
	Data []struct {
		ID              string `json:"id"`
		Login           string `json:"login"`
		DisplayName     string `json:"display_name"`
		ProfileImageURL string `json:"profile_image_url"`
	} `json:"data"`
}

type twitchStreamsPayload struct {
	Data []struct {
		UserID      string `json:"user_id"`
		Title       string `json:"title"`
		ViewerCount int    `json:"viewer_count"`
		StartedAt   string `json:"started_at"`
	} `json:"data"`
}

type twitchVideosPayload struct {
	Data []struct {
		CreatedAt string `json:"created_at"`
	} `json:"data"`
}

func (a *TwitchAdapter) fetchChunk(ctx context.Context, token string, logins []string) []catalog.StreamerRecord {
	header := http.Header{
		"Authorization": {"Bearer " + token},
		"Client-Id":     {a.clientID},
	}

	var users twitchUsersPayload
	usersQuery := url.Values{"login": logins}
	if err := a.client.GetJSON(ctx, a.apiURL+"/helix/users?"+usersQuery.Encode(), header, &users); err != nil {
		records := make([]catalog.StreamerRecord, len(logins))
		for i, login := range logins {
			records[i] = catalog.ErrorRecord(catalog.Twitch, login, fmt.Sprintf("users: %v", err))
		}
		return records
	}

	type userInfo struct {
		id, display, avatar string
	}
	byLogin := make(map[string]userInfo, len(users.Data))
	var ids []string
	for _, u := range users.Data {
		byLogin[strings.ToLower(u.Login)] = userInfo{id: u.ID, display: u.DisplayName, avatar: u.ProfileImageURL}
		ids = append(ids, u.ID)
	}

	// One streams call covers the whole chunk; only live users appear.
	type liveInfo struct {
		title     string
		viewers   int
		startedAt string
	}
	liveByID := make(map[string]liveInfo)
	var streamsErr string
	if len(ids) > 0 {
		var streams twitchStreamsPayload
		streamsQuery := url.Values{"user_id": ids}
		if err := a.client.GetJSON(ctx, a.apiURL+"/helix/streams?"+streamsQuery.Encode(), header, &streams); err != nil {
			streamsErr = fmt.Sprintf("streams: %v", err)
		} else {
			for _, s := range streams.Data {
				liveByID[s.UserID] = liveInfo{title: s.Title, viewers: s.ViewerCount, startedAt: s.StartedAt}
			}
		}
	}

	records := make([]catalog.StreamerRecord, 0, len(logins))
	for _, login := range logins {
		now := time.Now().UTC()
		info, known := byLogin[strings.ToLower(login)]
		if !known {
			// Helix omits unknown logins from the users response.
			records = append(records, catalog.StreamerRecord{
				Platform:    catalog.Twitch,
				ID:          login,
				DisplayName: login,
				Status:      catalog.StatusNotFound,
				LastChecked: now,
			})
			continue
		}

		record := catalog.StreamerRecord{
			Platform:    catalog.Twitch,
			ID:          login,
			DisplayName: info.display,
			AvatarURL:   info.avatar,
			ChannelURL:  "https://www.twitch.tv/" + login,
			LastChecked: now,
		}

		if live, ok := liveByID[info.id]; ok {
			record.Status = catalog.StatusLive
			record.Title = live.title
			record.ViewerCount = max(live.viewers, 0)
			if started, err := time.Parse(time.RFC3339, live.startedAt); err == nil {
				record.StartedAt = &started
			}
			record.ErrorDetails = streamsErr
			records = append(records, record)
			continue
		}

		record.Status = catalog.StatusOffline
		var videosErr string
		var videos twitchVideosPayload
		videosQuery := url.Values{"user_id": {info.id}, "first": {"1"}, "type": {"archive"}}
		if err := a.client.GetJSON(ctx, a.apiURL+"/helix/videos?"+videosQuery.Encode(), header, &videos); err != nil {
			videosErr = fmt.Sprintf("videos: %v", err)
		} else if len(videos.Data) > 0 {
			if at, err := time.Parse(time.RFC3339, videos.Data[0].CreatedAt); err == nil {
				record.LastBroadcastAt = &at
			}
		}
		record.ErrorDetails = combineErrors(streamsErr, videosErr)
		records = append(records, record)
	}
	return records
}
