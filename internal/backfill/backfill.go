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

// Package backfill replays recent channel history through the bridge so
// messages posted while the service was down still become cards.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kudos/praisebridge/internal/apperr"
	"github.com/kudos/praisebridge/internal/bridge"
	"github.com/kudos/praisebridge/internal/dedup"
	"github.com/kudos/praisebridge/internal/models"
	"github.com/kudos/praisebridge/internal/retry"
	"github.com/kudos/praisebridge/internal/slackapi"
)

// DefaultPageDelay spaces history pages to stay under Slack's tier 3 limit.
const DefaultPageDelay = 500 * time.Millisecond

// replayKeyMargin keeps replay keys alive past the end of the lookback
// window so a rerun started shortly after still sees them.
const replayKeyMargin = time.Hour

// ErrNoRegistry is returned when a replay that would create cards has no
// dedup registry to remember what it already carded.
var ErrNoRegistry = errors.New("backfill: replay needs a persistent dedup registry (set REDIS_URL or use --dry-run)")

// keyPrefix namespaces replay keys so they never collide with Events API ids.
const keyPrefix = "backfill:"

// History pages through a channel's messages.
type History interface {
	History(ctx context.Context, channelID string, oldest time.Time, cursor string) (*slackapi.HistoryPage, error)
}

// Processor handles one message the same way the webhook does.
type Processor interface {
	Process(ctx context.Context, ev *models.InboundEvent) (bridge.Outcome, error)
}

// Request defines the scope of a replay run.
type Request struct {
	Channels []string      // channel ids
	Since    time.Duration // lookback window (e.g. 24h)
	DryRun   bool          // list only, create nothing
}

// Result summarises a completed replay run.
type Result struct {
	ChannelResults []ChannelResult
	TotalCards     int
	TotalSkipped   int
	Elapsed        time.Duration
}

// ChannelResult tracks per-channel progress.
type ChannelResult struct {
	ChannelID string
	Fetched   int
	Cards     int
	Skipped   int
	Errors    int
}

// ReplayTTL returns how long replay keys must live: at least the live
// dedup TTL, and long enough to cover the whole lookback window.
func ReplayTTL(dedupTTL, since time.Duration) time.Duration {
	return max(dedupTTL, since+replayKeyMargin)
}

// NewRegistry picks the registry for a replay run. Cards are only created
// when the registry outlives the process, so a nil rdb is only accepted for
// dry runs.
func NewRegistry(rdb *redis.Client, dedupTTL, since time.Duration, dryRun bool) (dedup.Registry, error) {
	if rdb == nil {
		if !dryRun {
			return nil, ErrNoRegistry
		}
		return dedup.NewMemory(dedup.DefaultMaxSize), nil
	}
	reg := dedup.NewRedis(rdb, ReplayTTL(dedupTTL, since))
	slog.Info("replay dedup registry", "backend", "redis", "ttl", reg.TTL())
	return reg, nil
}

// Runner replays channel history.
type Runner struct {
	history   History
	processor Processor
	seen      dedup.Registry
	pageDelay time.Duration
	policy    retry.Policy
	now       func() time.Time
}

// RunnerConfig holds dependencies for the runner.
type RunnerConfig struct {
	History   History
	Processor Processor
	Seen      dedup.Registry
	PageDelay time.Duration

	// PageRetry governs refetching a page after a rate limit or server
	// error. Zero uses three attempts with exponential backoff.
	PageRetry retry.Policy
}

// NewRunner creates a replay runner.
func NewRunner(cfg RunnerConfig) *Runner {
	delay := cfg.PageDelay
	if delay == 0 {
		delay = DefaultPageDelay
	}
	policy := cfg.PageRetry
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 3
	}
	if policy.Backoff == nil {
		policy.Backoff = retry.Exponential(2*time.Second, 30*time.Second)
	}
	if policy.Retryable == nil {
		policy.Retryable = func(err error) bool { return errors.Is(err, apperr.ErrTransient) }
	}
	return &Runner{
		history:   cfg.History,
		processor: cfg.Processor,
		seen:      cfg.Seen,
		pageDelay: delay,
		policy:    policy,
		now:       time.Now,
	}
}

// Run replays every requested channel. A failing channel is logged and
// counted; the run continues with the next one.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Channels) == 0 {
		return nil, fmt.Errorf("backfill: no channels requested")
	}
	if r.seen == nil && !req.DryRun {
		return nil, ErrNoRegistry
	}
	start := r.now()
	oldest := start.Add(-req.Since)

	slog.Info("starting history replay",
		"channels", len(req.Channels),
		"since", oldest.UTC().Format(time.RFC3339),
		"dry_run", req.DryRun,
	)

	result := &Result{}
	for _, ch := range req.Channels {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		cr, err := r.replayChannel(ctx, ch, oldest, req.DryRun)
		if err != nil {
			slog.Error("replay failed for channel", "channel", ch, "error", err)
			cr.Errors++
		}
		result.ChannelResults = append(result.ChannelResults, cr)
		result.TotalCards += cr.Cards
		result.TotalSkipped += cr.Skipped
	}
	result.Elapsed = r.now().Sub(start)

	slog.Info("history replay complete",
		"total_cards", result.TotalCards,
		"total_skipped", result.TotalSkipped,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

func (r *Runner) replayChannel(ctx context.Context, channelID string, oldest time.Time, dryRun bool) (ChannelResult, error) {
	cr := ChannelResult{ChannelID: channelID}

	pages := 0
	for cursor := ""; ; {
		if pages > 0 {
			select {
			case <-ctx.Done():
				return cr, ctx.Err()
			case <-time.After(r.pageDelay):
			}
		}

		policy := r.policy
		policy.OnRetry = func(attempt int, err error, delay time.Duration) {
			slog.Warn("history page fetch failed, retrying",
				"channel", channelID,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}
		page, _, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) (*slackapi.HistoryPage, error) {
			return r.history.History(ctx, channelID, oldest, cursor)
		})
		if err != nil {
			return cr, fmt.Errorf("fetch page %d: %w", pages, err)
		}
		pages++

		slog.Debug("history page fetched", "channel", channelID, "page", pages, "messages", len(page.Messages))

		for i := range page.Messages {
			ev := &page.Messages[i]
			cr.Fetched++
			r.replayMessage(ctx, ev, dryRun, &cr)
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	slog.Info("channel replay complete",
		"channel", channelID,
		"fetched", cr.Fetched,
		"cards", cr.Cards,
		"skipped", cr.Skipped,
		"errors", cr.Errors,
		"pages", pages,
	)
	return cr, nil
}

func (r *Runner) replayMessage(ctx context.Context, ev *models.InboundEvent, dryRun bool, cr *ChannelResult) {
	ev.EventID = keyPrefix + ev.Channel + ":" + ev.TS

	if dryRun {
		slog.Info("dry run: would replay", "channel", ev.Channel, "ts", ev.TS)
		cr.Skipped++
		return
	}

	dup, err := r.seen.SeenBefore(ctx, ev.EventID)
	if err != nil {
		slog.Warn("dedup check failed, skipping message", "event_id", ev.EventID, "error", err)
		cr.Errors++
		return
	}
	if dup {
		cr.Skipped++
		return
	}

	out, err := r.processor.Process(ctx, ev)
	switch {
	case err != nil:
		slog.Warn("replay: process failed", "channel", ev.Channel, "ts", ev.TS, "error", err)
		cr.Errors++
	case out.CardID == "":
		cr.Skipped++
	default:
		cr.Cards++
	}
}
