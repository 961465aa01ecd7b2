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

// Package events records business outcomes of the bridge (cards created,
// attachments abandoned, praise recorded) to pluggable sinks.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event types.
const (
	TypeMessageIgnored      = "message.ignored"
	TypeEventDuplicate      = "event.duplicate"
	TypeRouteMissing        = "route.missing"
	TypeCardCreated         = "card.created"
	TypeCardFailed          = "card.failed"
	TypeAttachmentUploaded  = "attachment.uploaded"
	TypeAttachmentAbandoned = "attachment.abandoned"
	TypeAttachmentFailed    = "attachment.upload_failed"
	TypePraiseRecorded      = "praise.recorded"
	TypePraiseRejected      = "praise.rejected"
	TypeNotifyFailed        = "praise.notify_failed"
)

// Event is a single outcome record.
type Event struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	Time  time.Time      `json:"time"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// New creates an event with a fresh id and the current time. attrs are
// alternating key/value pairs, as with slog.
func New(typ string, attrs ...any) Event {
	ev := Event{ID: uuid.New().String(), Type: typ, Time: time.Now().UTC()}
	if len(attrs) > 0 {
		ev.Attrs = make(map[string]any, len(attrs)/2)
		for i := 0; i+1 < len(attrs); i += 2 {
			ev.Attrs[fmt.Sprint(attrs[i])] = attrs[i+1]
		}
	}
	return ev
}

// Sink receives events. Emit must not block the caller for long and never
// fails the operation that produced the event.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// SlogSink writes events to the default slog logger.
type SlogSink struct{}

// Emit logs ev at info level.
func (SlogSink) Emit(_ context.Context, ev Event) {
	args := make([]any, 0, 4+len(ev.Attrs)*2)
	args = append(args, "event_type", ev.Type, "event_uid", ev.ID)
	for k, v := range ev.Attrs {
		args = append(args, k, v)
	}
	slog.Info("bridge event", args...)
}

// RedisSink pushes events as JSON onto a Redis list for downstream
// consumers (dashboards, audit).
type RedisSink struct {
	rdb *redis.Client
	key string
}

// NewRedisSink creates a sink that LPUSHes to key.
func NewRedisSink(rdb *redis.Client, key string) *RedisSink {
	return &RedisSink{rdb: rdb, key: key}
}

// Emit pushes ev. Failures are logged and dropped.
func (s *RedisSink) Emit(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal event", "event_type", ev.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	if err := s.rdb.LPush(ctx, s.key, payload).Err(); err != nil {
		slog.Warn("redis LPUSH event failed", "event_type", ev.Type, "key", s.key, "error", err)
	}
}

// Ping checks the Redis connection.
func (s *RedisSink) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}

// Multi fans events out to several sinks in order.
type Multi []Sink

// Emit forwards ev to every sink.
func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit stores ev.
func (r *Recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of typ were recorded.
func (r *Recorder) Count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
