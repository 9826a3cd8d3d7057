package adapters

import (
	"context"
	"strconv"
	"time"

	"clipcast.systems/clipcast/internal/catalog"
)

const dliveDefaultURL = "https://graphigo.prd.dlive.tv/"

// DliveAdapter polls dlive through its public GraphQL endpoint. One query
// returns profile, live state and the last-streamed timestamp together.
type DliveAdapter struct {
	client *Client
	apiURL string
}

func NewDliveAdapter(client *Client) *DliveAdapter {
	return &DliveAdapter{client: client, apiURL: dliveDefaultURL}
}

func (a *DliveAdapter) Platform() catalog.Platform { return catalog.Dlive }

const dliveUserQuery = `query($displayname: String!) {
  userByDisplayName(displayname: $displayname) {
    displayname
    avatar
    lastStreamedAt
    livestream {
      title
      watchingCount
      createdAt
    }
  }
}`

type dliveResponse struct {
	Data struct {
		UserByDisplayName *struct {
			Displayname    string `json:"displayname"`
			Avatar         string `json:"avatar"`
			LastStreamedAt string `json:"lastStreamedAt"`
			Livestream     *struct {
				Title         string `json:"title"`
				WatchingCount string `json:"watchingCount"`
				CreatedAt     string `json:"createdAt"`
			} `json:"livestream"`
		} `json:"userByDisplayName"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (a *DliveAdapter) Fetch(ctx context.Context, ref string) catalog.StreamerRecord {
	ctx, cancel := fetchCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	body := map[string]any{
		"query":     dliveUserQuery,
		"variables": map[string]string{"displayname": ref},
	}

	var resp dliveResponse
	if err := a.client.PostJSON(ctx, a.apiURL, nil, body, &resp); err != nil {
		return catalog.ErrorRecord(catalog.Dlive, ref, err.Error())
	}
	if len(resp.Errors) > 0 {
		return catalog.ErrorRecord(catalog.Dlive, ref, resp.Errors[0].Message)
	}

	user := resp.Data.UserByDisplayName
	if user == nil {
		return catalog.StreamerRecord{
			Platform:    catalog.Dlive,
			ID:          ref,
			DisplayName: ref,
			Status:      catalog.StatusNotFound,
			LastChecked: now,
		}
	}

	record := catalog.StreamerRecord{
		Platform:    catalog.Dlive,
		ID:          ref,
		DisplayName: user.Displayname,
		AvatarURL:   user.Avatar,
		ChannelURL:  "https://dlive.tv/" + ref,
		Status:      catalog.StatusOffline,
		LastChecked: now,
	}

	if user.Livestream != nil {
		record.Status = catalog.StatusLive
		record.Title = user.Livestream.Title
		record.ViewerCount = ParseViewerCount(user.Livestream.WatchingCount)
		if at, ok := dliveTimestamp(user.Livestream.CreatedAt); ok {
			record.StartedAt = &at
		}
		return record
	}

	if at, ok := dliveTimestamp(user.LastStreamedAt); ok {
		record.LastBroadcastAt = &at
	}
	return record
}

// dlive timestamps are millisecond epoch strings.
func dliveTimestamp(raw string) (time.Time, bool) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}
