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

// Package webhook receives Slack Events API callbacks. Every request is
// signature-checked; URL verification challenges are answered inline and
// message callbacks are deduplicated, acknowledged immediately and processed
// in the background.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/slack-go/slack/slackevents"

	"github.com/kudos/praisebridge/internal/bridge"
	"github.com/kudos/praisebridge/internal/dedup"
	"github.com/kudos/praisebridge/internal/events"
	"github.com/kudos/praisebridge/internal/models"
)

// DefaultProcessTimeout bounds background processing of one event. It covers
// five timed-out downloads at 30s, the delays between them, card creation
// and the upload; config.DeliveryBudget sizes it for other policies.
const DefaultProcessTimeout = 4 * time.Minute

const maxBodyBytes = 1 << 20

// Verifier authenticates a Slack request body.
type Verifier interface {
	VerifyRequest(r *http.Request, body []byte) error
}

// Processor handles a deduplicated message event.
type Processor interface {
	Process(ctx context.Context, ev *models.InboundEvent) (bridge.Outcome, error)
}

// Handler serves the Events API endpoint.
type Handler struct {
	verifier       Verifier
	registry       dedup.Registry
	processor      Processor
	sink           events.Sink
	processTimeout time.Duration

	wg sync.WaitGroup
}

// NewHandler creates an Events API handler.
func NewHandler(
	verifier Verifier,
	registry dedup.Registry,
	processor Processor,
	sink events.Sink,
	processTimeout time.Duration,
) *Handler {
	if processTimeout <= 0 {
		processTimeout = DefaultProcessTimeout
	}
	if sink == nil {
		sink = events.SlogSink{}
	}
	return &Handler{
		verifier:       verifier,
		registry:       registry,
		processor:      processor,
		sink:           sink,
		processTimeout: processTimeout,
	}
}

type envelope struct {
	Type string `json:"type"`
}

// ServeEvents handles POST /slack/events.
//
// Flow:
//   - Bad or stale signature: 401
//   - url_verification: echo the challenge
//   - event_callback: dedup by event_id, acknowledge, process in background
//   - anything else: acknowledge
func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeOK(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		slog.Error("failed to read event body", "error", err)
		writeOK(w)
		return
	}

	if err := h.verifier.VerifyRequest(r, body); err != nil {
		slog.Warn("event signature rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		slog.Info("event body not valid JSON, acknowledging", "body_len", len(body))
		writeOK(w)
		return
	}

	switch env.Type {
	case slackevents.URLVerification:
		var v slackevents.EventsAPIURLVerificationEvent
		if err := json.Unmarshal(body, &v); err != nil {
			writeOK(w)
			return
		}
		slog.Info("url verification challenge received")
		writeJSON(w, slackevents.ChallengeResponse{Challenge: v.Challenge})

	case slackevents.CallbackEvent:
		h.acceptCallback(r, body)
		writeOK(w)

	default:
		slog.Debug("ignoring envelope", "type", env.Type)
		writeOK(w)
	}
}

// acceptCallback decodes a callback and schedules it unless it is a
// redelivery.
func (h *Handler) acceptCallback(r *http.Request, body []byte) {
	var cb slackevents.EventsAPICallbackEvent
	if err := json.Unmarshal(body, &cb); err != nil || cb.InnerEvent == nil {
		slog.Warn("malformed event callback", "error", err)
		return
	}

	ev := &models.InboundEvent{}
	if err := json.Unmarshal(*cb.InnerEvent, ev); err != nil {
		slog.Warn("malformed inner event", "event_id", cb.EventID, "error", err)
		return
	}
	ev.EventID = cb.EventID

	seen, err := h.registry.SeenBefore(r.Context(), ev.EventID)
	if err != nil {
		slog.Warn("dedup check failed, proceeding", "event_id", ev.EventID, "error", err)
	} else if seen {
		slog.Debug("skipping duplicate event",
			"event_id", ev.EventID,
			"retry_num", r.Header.Get("X-Slack-Retry-Num"),
		)
		h.sink.Emit(r.Context(), events.New(events.TypeEventDuplicate, "event_id", ev.EventID))
		return
	}

	h.wg.Add(1)
	go h.process(ev)
}

func (h *Handler) process(ev *models.InboundEvent) {
	defer h.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
	defer cancel()

	out, err := h.processor.Process(ctx, ev)
	if err != nil {
		slog.Error("event processing failed", "event_id", ev.EventID, "error", err)
		return
	}
	if out.CardID != "" {
		slog.Info("event processed",
			"event_id", ev.EventID,
			"kind", out.Kind,
			"card_id", out.CardID,
			"images", out.Images,
			"uploaded", out.Uploaded,
		)
	}
}

// Drain waits for in-flight background processing or until ctx is done.
func (h *Handler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
