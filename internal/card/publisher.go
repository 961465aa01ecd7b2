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

// Package card turns classified Slack messages into board cards.
package card

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kudos/praisebridge/internal/models"
	"github.com/kudos/praisebridge/internal/trello"
)

// TitleLimit is the number of runes kept in a card title before truncation.
const TitleLimit = 50

// Creator creates cards on the board.
type Creator interface {
	CreateCard(ctx context.Context, listID, name, desc string) (*trello.Card, error)
}

// Message is the source material for a card.
type Message struct {
	KindLabel   string
	Author      string
	ChannelName string
	ChannelID   string
	TS          string
	Text        string
}

// Publisher builds card requests and creates them on the board.
type Publisher struct {
	creator Creator
	domain  string
}

// NewPublisher creates a publisher. domain is the Slack workspace subdomain
// used for backlinks.
func NewPublisher(creator Creator, domain string) *Publisher {
	return &Publisher{creator: creator, domain: domain}
}

// Build assembles the card request for msg on listID.
func (p *Publisher) Build(listID string, msg Message, images []models.ImageAttachment) models.CardRequest {
	return models.CardRequest{
		ListID:      listID,
		Title:       Title(msg.Text),
		Description: p.description(msg),
		Images:      images,
	}
}

// Publish creates the card. Errors from the board (including a response
// without a card id) are returned for the caller to log.
func (p *Publisher) Publish(ctx context.Context, req models.CardRequest) (*trello.Card, error) {
	card, err := p.creator.CreateCard(ctx, req.ListID, req.Title, req.Description)
	if err != nil {
		return nil, fmt.Errorf("publish card: %w", err)
	}

	slog.Info("card created",
		"card_id", card.ID,
		"list_id", req.ListID,
		"images", len(req.Images),
	)
	return card, nil
}

func (p *Publisher) description(msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Type:** %s\n", msg.KindLabel)
	fmt.Fprintf(&b, "**Author:** %s\n", msg.Author)
	fmt.Fprintf(&b, "**Channel:** #%s\n\n", msg.ChannelName)
	b.WriteString("**Message:**\n")
	b.WriteString(msg.Text)
	if link := DeepLink(p.domain, msg.ChannelID, msg.TS); link != "" {
		fmt.Fprintf(&b, "\n\n[View in Slack](%s)", link)
	}
	return b.String()
}

var titleNewlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Title returns the first TitleLimit runes of text, with "..." appended when
// anything was cut. Line breaks become single spaces; other whitespace is
// kept so the count matches the message as written.
func Title(text string) string {
	flat := titleNewlines.Replace(text)
	if utf8.RuneCountInString(flat) <= TitleLimit {
		return flat
	}
	return string([]rune(flat)[:TitleLimit]) + "..."
}

// DeepLink builds the permalink for a message. domain may be a bare
// subdomain ("acme") or a full host ("acme.slack.com").
func DeepLink(domain, channelID, ts string) string {
	if domain == "" || channelID == "" || ts == "" {
		return ""
	}
	host := domain
	if !strings.Contains(host, ".slack.com") {
		host += ".slack.com"
	}
	return fmt.Sprintf("https://%s/archives/%s/p%s", host, channelID, strings.ReplaceAll(ts, ".", ""))
}
