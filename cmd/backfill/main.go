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

// Praise Bridge: History Replay Command
//
// Standalone tool that replays recent messages from routed channels through
// the message-to-card pipeline. Intended for catching up after an outage.
//
// Usage:
//
//	go run ./cmd/backfill/ [--channels general,C0123] [--since 24h] [--dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kudos/praisebridge/internal/apperr"
	"github.com/kudos/praisebridge/internal/backfill"
	"github.com/kudos/praisebridge/internal/bridge"
	"github.com/kudos/praisebridge/internal/card"
	"github.com/kudos/praisebridge/internal/config"
	"github.com/kudos/praisebridge/internal/content"
	"github.com/kudos/praisebridge/internal/delivery"
	"github.com/kudos/praisebridge/internal/events"
	"github.com/kudos/praisebridge/internal/mention"
	"github.com/kudos/praisebridge/internal/retry"
	"github.com/kudos/praisebridge/internal/slackapi"
	"github.com/kudos/praisebridge/internal/trello"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	channelsFlag := flag.String("channels", "", "Comma-separated channel names or ids (optional; empty = all routed channels)")
	sinceFlag := flag.Duration("since", 24*time.Hour, "Lookback duration (e.g. 24h, 168h)")
	dryRun := flag.Bool("dry-run", false, "List messages without creating cards")
	flag.Parse()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if len(cfg.Routes) == 0 {
		slog.Error("no channel routes configured, nothing to replay")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// --- Dedup and events ---
	var sink events.Sink = events.SlogSink{}
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()

		redisSink := events.NewRedisSink(rdb, cfg.EventsKey)
		if err := redisSink.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		sink = events.Multi{events.SlogSink{}, redisSink}
	}
	// Replays share the server's Redis keyspace, with keys kept past the
	// lookback window, so repeated runs skip what earlier runs carded.
	seen, err := backfill.NewRegistry(rdb, cfg.Dedup.TTL, *sinceFlag, *dryRun)
	if err != nil {
		slog.Error("dedup registry unavailable", "error", err)
		os.Exit(1)
	}

	// --- Clients and pipeline ---
	slackClient := slackapi.NewClient(slackapi.Options{
		Token:           cfg.Slack.BotToken,
		APIURL:          cfg.Slack.APIURL,
		HTTPClient:      &http.Client{Timeout: slackapi.DefaultAPITimeout},
		DownloadTimeout: cfg.DownloadTimeout,
	})
	board := trello.NewClient(
		&http.Client{Timeout: cfg.DownloadTimeout},
		cfg.Trello.BaseURL,
		cfg.Trello.APIKey,
		cfg.Trello.Token,
	)
	deliverer := delivery.NewDeliverer(slackClient, board, sink, delivery.WithPolicy(retry.Policy{
		MaxAttempts: cfg.Delivery.Attempts,
		Backoff:     retry.Fixed(cfg.Delivery.Delay),
	}))
	processor := bridge.NewProcessor(
		content.NewExtractor(mention.NewExpander(slackClient)),
		slackClient,
		cfg.Routes,
		card.NewPublisher(board, cfg.Slack.WorkspaceDomain),
		deliverer,
		sink,
	)

	// --- Resolve channels ---
	channels, err := resolveChannels(ctx, slackClient, *channelsFlag, cfg)
	if err != nil {
		slog.Error("channel resolution failed", "error", err)
		os.Exit(1)
	}
	if len(channels) == 0 {
		slog.Error("no channels to replay")
		os.Exit(1)
	}
	slog.Info("resolved channels for replay", "count", len(channels), "channels", channels)

	// --- Run Replay ---
	runner := backfill.NewRunner(backfill.RunnerConfig{
		History:   slackClient,
		Processor: processor,
		Seen:      seen,
	})
	result, err := runner.Run(ctx, backfill.Request{
		Channels: channels,
		Since:    *sinceFlag,
		DryRun:   *dryRun,
	})
	if err != nil {
		slog.Error("replay failed", "error", err)
		os.Exit(1)
	}

	for _, cr := range result.ChannelResults {
		slog.Info("channel result",
			"channel", cr.ChannelID,
			"fetched", cr.Fetched,
			"cards", cr.Cards,
			"skipped", cr.Skipped,
			"errors", cr.Errors,
		)
	}
}

// resolveChannels maps the --channels flag, or every routed channel when
// it is empty, to channel ids. Values that already look like ids pass
// through unchanged.
func resolveChannels(ctx context.Context, c *slackapi.Client, flagValue string, cfg *config.Config) ([]string, error) {
	var wanted []string
	if strings.TrimSpace(flagValue) != "" {
		for _, v := range strings.Split(flagValue, ",") {
			if v = strings.TrimPrefix(strings.TrimSpace(v), "#"); v != "" {
				wanted = append(wanted, v)
			}
		}
	} else {
		for name := range cfg.Routes {
			wanted = append(wanted, name)
		}
	}

	all, err := c.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(all))
	byID := make(map[string]bool, len(all))
	for _, ch := range all {
		byName[ch.Name] = ch.ID
		byID[ch.ID] = true
	}

	var ids []string
	for _, w := range wanted {
		switch {
		case byID[w]:
			ids = append(ids, w)
		case byName[w] != "":
			ids = append(ids, byName[w])
		default:
			return nil, fmt.Errorf("channel %q not visible to the bot: %w", w, apperr.ErrNotFound)
		}
	}
	return ids, nil
}
