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

// Package models defines the data structures shared across the bridge.
package models

import "strings"

// SlackFile is a file reference carried on a Slack message event.
type SlackFile struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Title              string `json:"title,omitempty"`
	Mimetype           string `json:"mimetype"`
	URLPrivate         string `json:"url_private"`
	URLPrivateDownload string `json:"url_private_download"`
	Preview            string `json:"preview,omitempty"`
}

// DownloadURL returns the best URL for fetching the file contents.
func (f SlackFile) DownloadURL() string {
	if f.URLPrivateDownload != "" {
		return f.URLPrivateDownload
	}
	return f.URLPrivate
}

// IsImage reports whether the file has an image MIME type.
func (f SlackFile) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(f.Mimetype), "image/")
}

// SlackAttachment is a legacy attachment object. Forwarded messages arrive
// as attachments with their own text, author, permalink and images.
type SlackAttachment struct {
	Text        string      `json:"text,omitempty"`
	Fallback    string      `json:"fallback,omitempty"`
	Pretext     string      `json:"pretext,omitempty"`
	AuthorName  string      `json:"author_name,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	FromURL     string      `json:"from_url,omitempty"`
	Files       []SlackFile `json:"files,omitempty"`
}

// ForwardedText returns the attachment body, preferring text over fallback.
func (a SlackAttachment) ForwardedText() string {
	if t := strings.TrimSpace(a.Text); t != "" {
		return t
	}
	return strings.TrimSpace(a.Fallback)
}

// InboundEvent is a single message event received from the Events API.
// It is immutable once decoded and lives for one request.
type InboundEvent struct {
	EventID     string            `json:"-"`
	Type        string            `json:"type"`
	Subtype     string            `json:"subtype,omitempty"`
	BotID       string            `json:"bot_id,omitempty"`
	Channel     string            `json:"channel"`
	User        string            `json:"user"`
	Text        string            `json:"text"`
	TS          string            `json:"ts"`
	ThreadTS    string            `json:"thread_ts,omitempty"`
	Files       []SlackFile       `json:"files,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// Image provenance values.
const (
	ProvenanceFile      = "file"
	ProvenanceForwarded = "forwarded"
)

// ImageAttachment is an image to be copied from Slack to a card.
type ImageAttachment struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	MimeType   string `json:"mime_type"`
	Provenance string `json:"provenance"`
}

// CardRequest describes a card to create on the board.
type CardRequest struct {
	ListID      string            `json:"list_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Images      []ImageAttachment `json:"images"`
}

// PraiseCommand is a parsed /praise invocation.
type PraiseCommand struct {
	InvokerID string
	// Username is set for "@name" mentions, MentionID for escaped "<@U123|name>" mentions.
	Username  string
	MentionID string
	Message   string
	ValueText string
}
