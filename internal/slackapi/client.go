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

// Package slackapi wraps the Slack Web API calls the bridge depends on:
// directory lookups, channel names, history, direct messages and file
// downloads.
package slackapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/oauth2"

	"github.com/kudos/praisebridge/internal/apperr"
)

// DefaultAPIURL is the Slack Web API base.
const DefaultAPIURL = "https://slack.com/api/"

// Default timeouts for outbound calls.
const (
	DefaultAPITimeout      = 10 * time.Second
	DefaultDownloadTimeout = 30 * time.Second
)

// Channel is a conversation visible to the bot.
type Channel struct {
	ID        string
	Name      string
	IsPrivate bool
}

// Client is a Slack Web API client for the bridge.
type Client struct {
	api        *slack.Client
	apiURL     string
	apiClient  *http.Client
	fileClient *http.Client
}

// Options configures a Client.
type Options struct {
	Token           string
	APIURL          string
	HTTPClient      *http.Client
	DownloadTimeout time.Duration
}

// NewClient creates a Slack client. File downloads and raw Web API calls
// present the bot token as a bearer credential.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultAPITimeout}
	}
	base := strings.TrimSpace(opts.APIURL)
	if base == "" {
		base = DefaultAPIURL
	}
	base = strings.TrimRight(base, "/") + "/"

	timeout := opts.DownloadTimeout
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	baseTransport := httpClient.Transport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	bearer := &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}),
		Base:   baseTransport,
	}

	return &Client{
		api:        slack.New(opts.Token, slack.OptionHTTPClient(httpClient), slack.OptionAPIURL(base)),
		apiURL:     base,
		apiClient:  &http.Client{Timeout: httpClient.Timeout, Transport: bearer},
		fileClient: &http.Client{Timeout: timeout, Transport: bearer},
	}
}

// UserDisplayName returns the profile display name for userID, falling back
// to the real name and then the account name.
func (c *Client) UserDisplayName(ctx context.Context, userID string) (string, error) {
	u, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("users.info %s: %w", userID, err)
	}
	return displayName(u), nil
}

// UserGroupHandle returns the handle of the user group groupID.
func (c *Client) UserGroupHandle(ctx context.Context, groupID string) (string, error) {
	groups, err := c.api.GetUserGroupsContext(ctx)
	if err != nil {
		return "", fmt.Errorf("usergroups.list: %w", err)
	}
	for _, g := range groups {
		if g.ID == groupID {
			return g.Handle, nil
		}
	}
	return "", fmt.Errorf("user group %s: %w", groupID, apperr.ErrNotFound)
}

// ChannelName returns the name of channelID without a leading '#'.
func (c *Client) ChannelName(ctx context.Context, channelID string) (string, error) {
	ch, err := c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: channelID})
	if err != nil {
		return "", fmt.Errorf("conversations.info %s: %w", channelID, err)
	}
	return ch.Name, nil
}

// SendMessage posts text to a channel or, given a user id, to that user's DM.
func (c *Client) SendMessage(ctx context.Context, channel, text string) error {
	_, ts, err := c.api.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("chat.postMessage %s: %w", channel, err)
	}
	slog.Debug("slack message sent", "channel", channel, "ts", ts)
	return nil
}

// FindUserIDByUsername resolves a username to a user id by comparing it
// case-insensitively with account names and display names. An unknown
// username returns "", nil.
func (c *Client) FindUserIDByUsername(ctx context.Context, username string) (string, error) {
	want := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
	if want == "" {
		return "", nil
	}

	users, err := c.api.GetUsersContext(ctx, slack.GetUsersOptionLimit(200))
	if err != nil {
		return "", fmt.Errorf("users.list: %w", err)
	}

	// Account names are unique; display names are only used when no
	// account name matches.
	var byDisplay string
	for _, u := range users {
		if u.Deleted {
			continue
		}
		if strings.ToLower(u.Name) == want {
			return u.ID, nil
		}
		if byDisplay == "" && strings.ToLower(u.Profile.DisplayName) == want {
			byDisplay = u.ID
		}
	}
	return byDisplay, nil
}

// ListChannels pages through all public and private channels visible to the bot.
func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	var out []Channel
	cursor := ""
	for {
		chs, next, err := c.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Cursor:          cursor,
			Limit:           200,
			Types:           []string{"public_channel", "private_channel"},
			ExcludeArchived: true,
		})
		if err != nil {
			return nil, fmt.Errorf("conversations.list: %w", err)
		}
		for _, ch := range chs {
			out = append(out, Channel{ID: ch.ID, Name: ch.Name, IsPrivate: ch.IsPrivate})
		}
		cursor = strings.TrimSpace(next)
		if cursor == "" {
			break
		}
	}
	return out, nil
}

func displayName(u *slack.User) string {
	for _, s := range []string{u.Profile.DisplayName, u.Profile.RealName, u.RealName, u.Name} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return u.ID
}
