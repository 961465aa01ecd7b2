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

// Package bridge turns Slack message events into board cards: it filters
// noise, builds the effective content, classifies and routes the message,
// publishes the card and hands images to attachment delivery.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kudos/praisebridge/internal/card"
	"github.com/kudos/praisebridge/internal/delivery"
	"github.com/kudos/praisebridge/internal/events"
	"github.com/kudos/praisebridge/internal/models"
	"github.com/kudos/praisebridge/internal/route"
)

// Extractor builds the effective text and image list of an event.
type Extractor interface {
	Extract(ctx context.Context, ev *models.InboundEvent) (string, []models.ImageAttachment)
}

// Directory resolves channel and user ids to names.
type Directory interface {
	ChannelName(ctx context.Context, channelID string) (string, error)
	UserDisplayName(ctx context.Context, userID string) (string, error)
}

// Deliverer copies images onto a card.
type Deliverer interface {
	DeliverAll(ctx context.Context, cardID string, images []models.ImageAttachment) []delivery.Result
}

// Outcome summarises what happened to one event.
type Outcome struct {
	Kind     route.Kind
	Skipped  string
	CardID   string
	Images   int
	Uploaded int
}

// Processor runs the message-to-card pipeline.
type Processor struct {
	extractor Extractor
	directory Directory
	routes    route.ChannelRouteMap
	publisher *card.Publisher
	deliverer Deliverer
	sink      events.Sink
}

// NewProcessor wires a pipeline.
func NewProcessor(
	extractor Extractor,
	directory Directory,
	routes route.ChannelRouteMap,
	publisher *card.Publisher,
	deliverer Deliverer,
	sink events.Sink,
) *Processor {
	if sink == nil {
		sink = events.SlogSink{}
	}
	return &Processor{
		extractor: extractor,
		directory: directory,
		routes:    routes,
		publisher: publisher,
		deliverer: deliverer,
		sink:      sink,
	}
}

// allowedSubtypes are message subtypes that carry user content.
var allowedSubtypes = map[string]bool{
	"":                 true,
	"file_share":       true,
	"thread_broadcast": true,
}

// Process handles one message event. Dropped messages are not errors; the
// returned error is only set when card creation failed.
func (p *Processor) Process(ctx context.Context, ev *models.InboundEvent) (Outcome, error) {
	if reason := skipReason(ev); reason != "" {
		return p.skip(ctx, ev, route.KindIgnore, reason), nil
	}

	text, images := p.extractor.Extract(ctx, ev)
	kind := route.Classify(strings.ToUpper(text))
	if kind == route.KindIgnore {
		return p.skip(ctx, ev, kind, "unclassified"), nil
	}

	channelName := ev.Channel
	if name, err := p.directory.ChannelName(ctx, ev.Channel); err != nil {
		slog.Warn("channel name lookup failed, routing by id",
			"channel", ev.Channel,
			"error", err,
		)
	} else if name != "" {
		channelName = name
	}

	listID, ok := p.routes.Resolve(channelName, kind)
	if !ok {
		slog.Info("no destination configured",
			"event_id", ev.EventID,
			"channel", channelName,
			"kind", kind,
		)
		p.sink.Emit(ctx, events.New(events.TypeRouteMissing,
			"event_id", ev.EventID, "channel", channelName, "kind", string(kind)))
		return Outcome{Kind: kind, Skipped: "no_route"}, nil
	}

	author := ev.User
	if name, err := p.directory.UserDisplayName(ctx, ev.User); err == nil && name != "" {
		author = name
	}

	req := p.publisher.Build(listID, card.Message{
		KindLabel:   kind.Label(),
		Author:      author,
		ChannelName: channelName,
		ChannelID:   ev.Channel,
		TS:          ev.TS,
		Text:        text,
	}, images)

	created, err := p.publisher.Publish(ctx, req)
	if err != nil {
		slog.Error("card creation failed",
			"event_id", ev.EventID,
			"channel", channelName,
			"list_id", listID,
			"error", err,
		)
		p.sink.Emit(ctx, events.New(events.TypeCardFailed,
			"event_id", ev.EventID, "channel", channelName, "list_id", listID, "error", err.Error()))
		return Outcome{Kind: kind}, fmt.Errorf("create card: %w", err)
	}

	p.sink.Emit(ctx, events.New(events.TypeCardCreated,
		"event_id", ev.EventID,
		"card_id", created.ID,
		"channel", channelName,
		"kind", string(kind),
		"images", len(images),
	))

	out := Outcome{Kind: kind, CardID: created.ID, Images: len(images)}
	if len(images) > 0 {
		for _, res := range p.deliverer.DeliverAll(ctx, created.ID, images) {
			if res.Uploaded {
				out.Uploaded++
			}
		}
	}
	return out, nil
}

func (p *Processor) skip(ctx context.Context, ev *models.InboundEvent, kind route.Kind, reason string) Outcome {
	slog.Debug("message ignored", "event_id", ev.EventID, "channel", ev.Channel, "reason", reason)
	p.sink.Emit(ctx, events.New(events.TypeMessageIgnored, "event_id", ev.EventID, "reason", reason))
	return Outcome{Kind: kind, Skipped: reason}
}

// skipReason returns why ev carries no user content, or "".
func skipReason(ev *models.InboundEvent) string {
	switch {
	case ev.Type != "message":
		return "not_a_message"
	case ev.BotID != "":
		return "bot_message"
	case !allowedSubtypes[ev.Subtype]:
		return "subtype_" + ev.Subtype
	}
	return ""
}
