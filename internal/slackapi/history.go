// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package slackapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kudos/praisebridge/internal/apperr"
	"github.com/kudos/praisebridge/internal/models"
)

// historyPageSize is the number of messages requested per page.
const historyPageSize = 100

// HistoryPage is one page of channel history, newest first.
type HistoryPage struct {
	Messages   []models.InboundEvent
	NextCursor string
}

// historyResponse decodes messages with the same wire structs the Events API
// path uses, so nested attachment files and previews survive a replay.
type historyResponse struct {
	OK               bool                  `json:"ok"`
	Error            string                `json:"error"`
	Messages         []models.InboundEvent `json:"messages"`
	HasMore          bool                  `json:"has_more"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

// History returns one page of messages posted to channelID after oldest.
// Rate limiting and server errors wrap apperr.ErrTransient; an unknown
// channel wraps apperr.ErrNotFound.
func (c *Client) History(ctx context.Context, channelID string, oldest time.Time, cursor string) (*HistoryPage, error) {
	form := url.Values{}
	form.Set("channel", channelID)
	form.Set("limit", strconv.Itoa(historyPageSize))
	if cursor != "" {
		form.Set("cursor", cursor)
	}
	if !oldest.IsZero() {
		form.Set("oldest", fmt.Sprintf("%d.000000", oldest.Unix()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"conversations.history", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.apiClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("conversations.history %s: %w", channelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("conversations.history %s: HTTP %d (retry after %q): %w",
			channelID, resp.StatusCode, resp.Header.Get("Retry-After"), apperr.ErrTransient)
	}

	var body historyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDownloadBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode conversations.history: %w", err)
	}
	if !body.OK {
		if body.Error == "channel_not_found" {
			return nil, fmt.Errorf("conversations.history %s: %w", channelID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("conversations.history %s: %s", channelID, body.Error)
	}

	page := &HistoryPage{Messages: body.Messages}
	for i := range page.Messages {
		m := &page.Messages[i]
		if m.Channel == "" {
			m.Channel = channelID
		}
		if m.Type == "" {
			m.Type = "message"
		}
	}
	if body.HasMore {
		page.NextCursor = strings.TrimSpace(body.ResponseMetadata.NextCursor)
	}
	return page, nil
}
