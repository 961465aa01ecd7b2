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

// Package command serves the Slack slash commands /praise, /my-praise and
// /my-points against the praise ledger.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/kudos/praisebridge/internal/events"
	"github.com/kudos/praisebridge/internal/ledger"
	"github.com/kudos/praisebridge/internal/models"
)

// Default time budgets. Slack abandons a slash command after three seconds.
const (
	DefaultTimeout       = 2500 * time.Millisecond
	DefaultNotifyTimeout = 10 * time.Second
	RecentPraiseLimit    = 5
)

const maxBodyBytes = 64 << 10

// Verifier authenticates a Slack request body.
type Verifier interface {
	VerifyRequest(r *http.Request, body []byte) error
}

// Directory is the part of the Slack API the commands use.
type Directory interface {
	FindUserIDByUsername(ctx context.Context, username string) (string, error)
	UserDisplayName(ctx context.Context, userID string) (string, error)
	SendMessage(ctx context.Context, channel, text string) error
}

// Handler serves the slash command endpoints.
type Handler struct {
	verifier      Verifier
	ledger        ledger.Service
	directory     Directory
	sink          events.Sink
	timeout       time.Duration
	notifyTimeout time.Duration

	wg sync.WaitGroup
}

// Options tunes a Handler. Zero values use the defaults.
type Options struct {
	Timeout       time.Duration
	NotifyTimeout time.Duration
}

// NewHandler creates a slash command handler.
func NewHandler(verifier Verifier, svc ledger.Service, dir Directory, sink events.Sink, opts Options) *Handler {
	h := &Handler{
		verifier:      verifier,
		ledger:        svc,
		directory:     dir,
		sink:          sink,
		timeout:       opts.Timeout,
		notifyTimeout: opts.NotifyTimeout,
	}
	if h.timeout <= 0 {
		h.timeout = DefaultTimeout
	}
	if h.notifyTimeout <= 0 {
		h.notifyTimeout = DefaultNotifyTimeout
	}
	if h.sink == nil {
		h.sink = events.SlogSink{}
	}
	return h
}

// Wait blocks until background notifications have finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

// response is the JSON body Slack expects from a slash command.
type response struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

func ephemeral(text string) response {
	return response{ResponseType: slack.ResponseTypeEphemeral, Text: text}
}

func inChannel(text string) response {
	return response{ResponseType: slack.ResponseTypeInChannel, Text: text}
}

// HandlePraise serves /praise.
func (h *Handler) HandlePraise(w http.ResponseWriter, r *http.Request) {
	cmd, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	writeJSON(w, h.praise(ctx, cmd))
}

// HandleMyPraise serves /my-praise.
func (h *Handler) HandleMyPraise(w http.ResponseWriter, r *http.Request) {
	cmd, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	writeJSON(w, h.myPraise(ctx, cmd))
}

// HandleMyPoints serves /my-points.
func (h *Handler) HandleMyPoints(w http.ResponseWriter, r *http.Request) {
	cmd, ok := h.parseRequest(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, err := h.ledger.FindUserByExternalID(ctx, cmd.UserID)
	if err != nil {
		writeJSON(w, h.failure(ctx, "lookup invoker", err))
		return
	}
	if user == nil {
		writeJSON(w, ephemeral("❌ You need to register on the web app first."))
		return
	}
	writeJSON(w, ephemeral(fmt.Sprintf("💰 You have *%d points*!", user.Points)))
}

// parseRequest verifies the signature and decodes the form. It writes the
// error response itself and reports false when the request must stop.
func (h *Handler) parseRequest(w http.ResponseWriter, r *http.Request) (slack.SlashCommand, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return slack.SlashCommand{}, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return slack.SlashCommand{}, false
	}
	if err := h.verifier.VerifyRequest(r, body); err != nil {
		slog.Warn("slash command signature rejected", "path", r.URL.Path, "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return slack.SlashCommand{}, false
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return slack.SlashCommand{}, false
	}
	return cmd, true
}

// praise runs the /praise flow and returns the reply to show.
func (h *Handler) praise(ctx context.Context, sc slack.SlashCommand) response {
	giver, err := h.ledger.FindUserByExternalID(ctx, sc.UserID)
	if err != nil {
		return h.failure(ctx, "lookup giver", err)
	}
	if giver == nil {
		h.reject(ctx, sc.UserID, "giver_unlinked")
		return ephemeral("❌ Your Slack account isn't linked to a praise account yet. Sign up on the web app first.")
	}

	cmd, err := ParsePraise(sc.UserID, sc.Text)
	if err != nil {
		h.reject(ctx, sc.UserID, "invalid_syntax")
		if isShortMessage(err) {
			return ephemeral(fmt.Sprintf("❌ Your message needs at least %d characters.", MinMessageLength))
		}
		return ephemeral(h.usage(ctx))
	}

	receiverSlackID := cmd.MentionID
	if receiverSlackID == "" {
		receiverSlackID, err = h.directory.FindUserIDByUsername(ctx, cmd.Username)
		if err != nil {
			return h.failure(ctx, "lookup username", err)
		}
		if receiverSlackID == "" {
			h.reject(ctx, sc.UserID, "unknown_username")
			return ephemeral(fmt.Sprintf("❌ Couldn't find a Slack user named @%s.", cmd.Username))
		}
	}

	receiver, err := h.ledger.FindUserByExternalID(ctx, receiverSlackID)
	if err != nil {
		return h.failure(ctx, "lookup receiver", err)
	}
	if receiver == nil {
		h.reject(ctx, sc.UserID, "receiver_unregistered")
		who := "This user"
		if name, err := h.directory.UserDisplayName(ctx, receiverSlackID); err == nil && name != "" {
			who = name
		}
		return ephemeral(fmt.Sprintf("❌ %s hasn't registered yet. They need to sign up on the web app first.", who))
	}

	if giver.ID == receiver.ID {
		h.reject(ctx, sc.UserID, "self_praise")
		return ephemeral("❌ You can't praise yourself!")
	}

	value, err := h.ledger.FindCoreValueByFuzzyName(ctx, cmd.ValueText)
	if err != nil {
		return h.failure(ctx, "lookup core value", err)
	}
	if value == nil {
		h.reject(ctx, sc.UserID, "unknown_value")
		return ephemeral("❌ Core value not found. Available values: " + h.valueList(ctx))
	}

	p, err := h.ledger.RecordPraise(ctx, giver.ID, receiver.ID, value.ID, cmd.Message)
	if err != nil {
		return h.failure(ctx, "record praise", err)
	}

	h.sink.Emit(ctx, events.New(events.TypePraiseRecorded,
		"praise_id", p.ID,
		"giver_id", giver.ID,
		"receiver_id", receiver.ID,
		"core_value", value.Name,
	))

	h.notify(receiverSlackID, giver, value, cmd)

	return inChannel(fmt.Sprintf("🎉 %s praised %s for *%s*!\n\"%s\"\n\n+%d points to %s, +%d points to %s",
		giver.Name(), receiver.Name(), value.Name, cmd.Message,
		ledger.ReceiverPoints, receiver.Name(), ledger.GiverPoints, giver.Name()))
}

// notify DMs the receiver in the background. Failure is logged only.
func (h *Handler) notify(slackID string, giver *ledger.User, value *ledger.CoreValue, cmd models.PraiseCommand) {
	text := fmt.Sprintf("🎉 You received praise from %s!\n\n*%s*\n\"%s\"\n\n+%d points",
		giver.Name(), value.Name, cmd.Message, ledger.ReceiverPoints)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.notifyTimeout)
		defer cancel()
		if err := h.directory.SendMessage(ctx, slackID, text); err != nil {
			slog.Warn("praise notification failed", "receiver", slackID, "error", err)
			h.sink.Emit(ctx, events.New(events.TypeNotifyFailed, "receiver", slackID))
		}
	}()
}

func (h *Handler) myPraise(ctx context.Context, sc slack.SlashCommand) response {
	user, err := h.ledger.FindUserByExternalID(ctx, sc.UserID)
	if err != nil {
		return h.failure(ctx, "lookup invoker", err)
	}
	if user == nil {
		return ephemeral("❌ You need to register on the web app first.")
	}

	list, err := h.ledger.ListReceivedPraise(ctx, user.ID, RecentPraiseLimit)
	if err != nil {
		return h.failure(ctx, "list praise", err)
	}
	if len(list) == 0 {
		return ephemeral("You haven't received any praise yet. Keep up the great work!")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Your Recent Praise (%d shown):*\n\n", len(list))
	for _, p := range list {
		fmt.Fprintf(&b, "• *%s* from %s: \"%s\" (+%d pts)\n", p.CoreValueName, p.GiverName, p.Message, p.Points)
	}
	return ephemeral(b.String())
}

func (h *Handler) usage(ctx context.Context) string {
	msg := "❌ Usage: `/praise @user Your message #CoreValue`"
	if values := h.valueList(ctx); values != "" {
		msg += "\nCore values: " + values
	}
	return msg
}

// valueList renders the known core values as "#TeamWork, #Ownership".
func (h *Handler) valueList(ctx context.Context) string {
	values, err := h.ledger.ListCoreValues(ctx)
	if err != nil {
		slog.Warn("list core values failed", "error", err)
		return ""
	}
	tokens := make([]string, 0, len(values))
	for _, v := range values {
		tokens = append(tokens, v.Token())
	}
	return strings.Join(tokens, ", ")
}

func (h *Handler) reject(ctx context.Context, invoker, reason string) {
	slog.Info("praise rejected", "invoker", invoker, "reason", reason)
	h.sink.Emit(ctx, events.New(events.TypePraiseRejected, "invoker", invoker, "reason", reason))
}

// failure logs an unexpected downstream error and returns a generic reply.
func (h *Handler) failure(ctx context.Context, op string, err error) response {
	slog.Error("slash command failed", "op", op, "error", err, "deadline_exceeded", ctx.Err() != nil)
	return ephemeral("❌ Something went wrong. Please try again in a moment.")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode slash command response", "error", err)
	}
}
