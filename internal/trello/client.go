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

// Package trello provides a minimal client for the Trello REST API covering
// card creation and file attachments.
package trello

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/kudos/praisebridge/internal/apperr"
)

// DefaultBaseURL is the public Trello API endpoint.
const DefaultBaseURL = "https://api.trello.com"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// Card is the subset of a created card the bridge needs.
type Card struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	ShortURL string `json:"shortUrl"`
}

// Attachment is the subset of a created attachment the bridge needs.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client talks to the Trello API with key/token authentication.
type Client struct {
	httpClient *http.Client
	baseURL    string
	key        string
	token      string
}

// NewClient creates a Trello API client. An empty baseURL uses DefaultBaseURL.
func NewClient(httpClient *http.Client, baseURL, key, token string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		key:        key,
		token:      token,
	}
}

// CreateCard creates a card on listID. A response without a card id is
// returned as an *apperr.IntegrationError carrying the raw payload.
func (c *Client) CreateCard(ctx context.Context, listID, name, desc string) (*Card, error) {
	form := url.Values{}
	form.Set("idList", listID)
	form.Set("name", name)
	form.Set("desc", desc)
	form.Set("pos", "top")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/1/cards"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var card Card
	status, payload, err := c.do(req, &card)
	if err != nil {
		return nil, fmt.Errorf("create card: %w", err)
	}
	if card.ID == "" {
		return nil, &apperr.IntegrationError{Op: "create card", Status: status, Payload: payload}
	}
	return &card, nil
}

// AttachFile uploads data as a file attachment on cardID.
func (c *Client) AttachFile(ctx context.Context, cardID string, data []byte, name, mimeType string) (*Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("name", name); err != nil {
		return nil, fmt.Errorf("write name field: %w", err)
	}
	if err := mw.WriteField("mimeType", mimeType); err != nil {
		return nil, fmt.Errorf("write mime field: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	path := "/1/cards/" + url.PathEscape(cardID) + "/attachments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var att Attachment
	status, payload, err := c.do(req, &att)
	if err != nil {
		return nil, fmt.Errorf("attach file: %w", err)
	}
	if att.ID == "" {
		return nil, &apperr.IntegrationError{Op: "attach file", Status: status, Payload: payload}
	}
	return &att, nil
}

// endpoint builds an authenticated URL for path.
func (c *Client) endpoint(path string) string {
	q := url.Values{}
	q.Set("key", c.key)
	q.Set("token", c.token)
	return c.baseURL + path + "?" + q.Encode()
}

// do executes req and decodes a JSON body into out. Non-JSON bodies are not
// an error; out is left zero and the payload is returned for reporting.
func (c *Client) do(req *http.Request, out any) (int, string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, string(body), fmt.Errorf("trello API returned HTTP %d: %w", resp.StatusCode, apperr.ErrAuth)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_ = json.Unmarshal(body, out)
	}
	return resp.StatusCode, string(body), nil
}
