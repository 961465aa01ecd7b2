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

package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kudos/praisebridge/internal/apperr"
	"github.com/kudos/praisebridge/internal/bridge"
	"github.com/kudos/praisebridge/internal/dedup"
	"github.com/kudos/praisebridge/internal/models"
	"github.com/kudos/praisebridge/internal/retry"
	"github.com/kudos/praisebridge/internal/slackapi"
)

// --- Mock history ---

type mockHistory struct {
	mu        sync.Mutex
	pages     map[string][]slackapi.HistoryPage // channel -> pages in cursor order
	fail      map[string]error
	transient int // leading calls answered with a rate limit
	calls     []string
	oldest    time.Time
}

func (m *mockHistory) History(_ context.Context, channelID string, oldest time.Time, cursor string) (*slackapi.HistoryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, channelID+"|"+cursor)
	m.oldest = oldest
	if m.transient > 0 {
		m.transient--
		return nil, fmt.Errorf("HTTP 429: %w", apperr.ErrTransient)
	}
	if err := m.fail[channelID]; err != nil {
		return nil, err
	}
	pages := m.pages[channelID]
	idx := 0
	if cursor != "" {
		for i, p := range pages {
			if p.NextCursor == cursor {
				idx = i + 1
			}
		}
	}
	if idx >= len(pages) {
		return &slackapi.HistoryPage{}, nil
	}
	p := pages[idx]
	return &p, nil
}

// --- Mock processor ---

type mockProcessor struct {
	mu        sync.Mutex
	processed []string
	cardFor   map[string]bool // ts -> creates a card
	failFor   map[string]bool
}

func (m *mockProcessor) Process(_ context.Context, ev *models.InboundEvent) (bridge.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed = append(m.processed, ev.EventID)
	if m.failFor[ev.TS] {
		return bridge.Outcome{}, errors.New("card create failed")
	}
	if m.cardFor[ev.TS] {
		return bridge.Outcome{CardID: "card-" + ev.TS}, nil
	}
	return bridge.Outcome{Skipped: "unclassified"}, nil
}

func msg(channel, ts string) models.InboundEvent {
	return models.InboundEvent{Type: "message", Channel: channel, User: "U1", Text: "TTA " + ts, TS: ts}
}

func newTestRunner(h History, p Processor, seen dedup.Registry) *Runner {
	r := NewRunner(RunnerConfig{
		History:   h,
		Processor: p,
		Seen:      seen,
		PageDelay: time.Millisecond,
		PageRetry: retry.Policy{
			MaxAttempts: 3,
			Sleep:       func(context.Context, time.Duration) error { return nil },
		},
	})
	r.now = func() time.Time { return time.Unix(1700000000, 0) }
	return r
}

// TestRun_FollowsCursors verifies every page of a channel is processed.
func TestRun_FollowsCursors(t *testing.T) {
	h := &mockHistory{pages: map[string][]slackapi.HistoryPage{
		"C1": {
			{Messages: []models.InboundEvent{msg("C1", "3.0"), msg("C1", "2.0")}, NextCursor: "p2"},
			{Messages: []models.InboundEvent{msg("C1", "1.0")}},
		},
	}}
	p := &mockProcessor{cardFor: map[string]bool{"3.0": true, "1.0": true}}

	res, err := newTestRunner(h, p, dedup.NewMemory(100)).Run(context.Background(), Request{Channels: []string{"C1"}, Since: time.Hour})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.calls) != 2 || h.calls[1] != "C1|p2" {
		t.Errorf("history calls = %v", h.calls)
	}
	if want := time.Unix(1700000000-3600, 0); !h.oldest.Equal(want) {
		t.Errorf("oldest = %v, want %v", h.oldest, want)
	}
	if res.TotalCards != 2 || res.TotalSkipped != 1 {
		t.Errorf("cards=%d skipped=%d, want 2 and 1", res.TotalCards, res.TotalSkipped)
	}
	cr := res.ChannelResults[0]
	if cr.Fetched != 3 || cr.Errors != 0 {
		t.Errorf("channel result = %+v", cr)
	}
	if p.processed[0] != "backfill:C1:3.0" {
		t.Errorf("event id = %q", p.processed[0])
	}
}

// TestRun_SkipsSeenMessages verifies a second replay creates nothing.
func TestRun_SkipsSeenMessages(t *testing.T) {
	h := &mockHistory{pages: map[string][]slackapi.HistoryPage{
		"C1": {{Messages: []models.InboundEvent{msg("C1", "1.0"), msg("C1", "2.0")}}},
	}}
	p := &mockProcessor{cardFor: map[string]bool{"1.0": true, "2.0": true}}
	seen := dedup.NewMemory(100)
	r := newTestRunner(h, p, seen)
	req := Request{Channels: []string{"C1"}, Since: time.Hour}

	first, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.TotalCards != 2 {
		t.Errorf("first run cards = %d, want 2", first.TotalCards)
	}
	if second.TotalCards != 0 || second.TotalSkipped != 2 {
		t.Errorf("second run = %+v, want all skipped", second)
	}
	if len(p.processed) != 2 {
		t.Errorf("processed %d messages, want 2", len(p.processed))
	}
}

// TestRun_ChannelFailureContinues verifies one broken channel does not stop the run.
func TestRun_ChannelFailureContinues(t *testing.T) {
	h := &mockHistory{
		pages: map[string][]slackapi.HistoryPage{
			"C2": {{Messages: []models.InboundEvent{msg("C2", "5.0")}}},
		},
		fail: map[string]error{"C1": errors.New("channel_not_found")},
	}
	p := &mockProcessor{cardFor: map[string]bool{"5.0": true}}

	res, err := newTestRunner(h, p, dedup.NewMemory(100)).Run(context.Background(), Request{Channels: []string{"C1", "C2"}, Since: time.Hour})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.ChannelResults) != 2 {
		t.Fatalf("results = %d, want 2", len(res.ChannelResults))
	}
	if res.ChannelResults[0].Errors != 1 {
		t.Errorf("C1 errors = %d, want 1", res.ChannelResults[0].Errors)
	}
	if res.TotalCards != 1 {
		t.Errorf("cards = %d, want 1", res.TotalCards)
	}
}

// TestRun_ProcessErrorCounted verifies card failures are counted per message.
func TestRun_ProcessErrorCounted(t *testing.T) {
	h := &mockHistory{pages: map[string][]slackapi.HistoryPage{
		"C1": {{Messages: []models.InboundEvent{msg("C1", "1.0"), msg("C1", "2.0")}}},
	}}
	p := &mockProcessor{cardFor: map[string]bool{"2.0": true}, failFor: map[string]bool{"1.0": true}}

	res, err := newTestRunner(h, p, dedup.NewMemory(100)).Run(context.Background(), Request{Channels: []string{"C1"}, Since: time.Hour})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	cr := res.ChannelResults[0]
	if cr.Errors != 1 || cr.Cards != 1 {
		t.Errorf("channel result = %+v", cr)
	}
}

// TestRun_DryRun verifies nothing is processed or recorded.
func TestRun_DryRun(t *testing.T) {
	h := &mockHistory{pages: map[string][]slackapi.HistoryPage{
		"C1": {{Messages: []models.InboundEvent{msg("C1", "1.0")}}},
	}}
	p := &mockProcessor{}
	seen := dedup.NewMemory(100)

	res, err := newTestRunner(h, p, seen).Run(context.Background(), Request{Channels: []string{"C1"}, Since: time.Hour, DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(p.processed) != 0 {
		t.Errorf("processed = %v, want none", p.processed)
	}
	if seen.Len() != 0 {
		t.Errorf("dedup recorded %d ids during dry run", seen.Len())
	}
	if res.TotalSkipped != 1 {
		t.Errorf("skipped = %d, want 1", res.TotalSkipped)
	}
}

func TestRun_NoChannels(t *testing.T) {
	if _, err := newTestRunner(&mockHistory{}, &mockProcessor{}, nil).Run(context.Background(), Request{}); err == nil {
		t.Fatal("expected error with no channels")
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestRunner(&mockHistory{}, &mockProcessor{}, dedup.NewMemory(100)).Run(ctx, Request{Channels: []string{"C1"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// TestRun_RequiresRegistry verifies a card-creating replay refuses to run
// without a registry, while a dry run does not need one.
func TestRun_RequiresRegistry(t *testing.T) {
	h := &mockHistory{pages: map[string][]slackapi.HistoryPage{
		"C1": {{Messages: []models.InboundEvent{msg("C1", "1.0")}}},
	}}
	p := &mockProcessor{cardFor: map[string]bool{"1.0": true}}

	_, err := newTestRunner(h, p, nil).Run(context.Background(), Request{Channels: []string{"C1"}, Since: time.Hour})
	if !errors.Is(err, ErrNoRegistry) {
		t.Fatalf("err = %v, want ErrNoRegistry", err)
	}
	if len(p.processed) != 0 {
		t.Errorf("processed = %v, want none", p.processed)
	}

	if _, err := newTestRunner(h, p, nil).Run(context.Background(), Request{Channels: []string{"C1"}, Since: time.Hour, DryRun: true}); err != nil {
		t.Errorf("dry run: %v", err)
	}
}

// TestRun_RetriesRateLimitedPage verifies a transient page failure is retried.
func TestRun_RetriesRateLimitedPage(t *testing.T) {
	h := &mockHistory{
		transient: 2,
		pages: map[string][]slackapi.HistoryPage{
			"C1": {{Messages: []models.InboundEvent{msg("C1", "1.0")}}},
		},
	}
	p := &mockProcessor{cardFor: map[string]bool{"1.0": true}}

	res, err := newTestRunner(h, p, dedup.NewMemory(100)).Run(context.Background(), Request{Channels: []string{"C1"}, Since: time.Hour})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(h.calls) != 3 {
		t.Errorf("history calls = %d, want 3", len(h.calls))
	}
	if res.TotalCards != 1 || res.ChannelResults[0].Errors != 0 {
		t.Errorf("result = %+v", res.ChannelResults[0])
	}
}

func TestReplayTTL(t *testing.T) {
	tests := []struct {
		name     string
		dedupTTL time.Duration
		since    time.Duration
		want     time.Duration
	}{
		{"lookback longer than dedup ttl", time.Hour, 24 * time.Hour, 25 * time.Hour},
		{"dedup ttl already longer", 72 * time.Hour, 24 * time.Hour, 72 * time.Hour},
		{"short lookback", time.Hour, 30 * time.Minute, 90 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReplayTTL(tt.dedupTTL, tt.since); got != tt.want {
				t.Errorf("ReplayTTL(%v, %v) = %v, want %v", tt.dedupTTL, tt.since, got, tt.want)
			}
		})
	}
}

func TestNewRegistry(t *testing.T) {
	if _, err := NewRegistry(nil, time.Hour, 24*time.Hour, false); !errors.Is(err, ErrNoRegistry) {
		t.Errorf("no redis, real run: err = %v, want ErrNoRegistry", err)
	}

	reg, err := NewRegistry(nil, time.Hour, 24*time.Hour, true)
	if err != nil {
		t.Fatalf("no redis, dry run: %v", err)
	}
	if _, ok := reg.(*dedup.Memory); !ok {
		t.Errorf("dry run registry = %T, want *dedup.Memory", reg)
	}

	// The client connects lazily; no server is needed to build the registry.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	reg, err = NewRegistry(rdb, time.Hour, 24*time.Hour, false)
	if err != nil {
		t.Fatalf("redis registry: %v", err)
	}
	rr, ok := reg.(*dedup.Redis)
	if !ok {
		t.Fatalf("registry = %T, want *dedup.Redis", reg)
	}
	if rr.TTL() != 25*time.Hour {
		t.Errorf("TTL = %v, want 25h to outlive the 24h lookback", rr.TTL())
	}
}
