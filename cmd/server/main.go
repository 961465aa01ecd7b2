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

// Praise Bridge: Slack ingestion service
//
// Entry point for the bridge server. It:
//  1. Loads configuration from config.yaml, .env and the environment
//  2. Connects to PostgreSQL (ledger) and, when configured, Redis
//  3. Wires the Slack and Trello clients into the message-to-card pipeline
//  4. Serves the Events API and slash command endpoints
//  5. Handles graceful shutdown on SIGTERM/SIGINT, draining background work
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kudos/praisebridge/internal/bridge"
	"github.com/kudos/praisebridge/internal/card"
	"github.com/kudos/praisebridge/internal/command"
	"github.com/kudos/praisebridge/internal/config"
	"github.com/kudos/praisebridge/internal/content"
	"github.com/kudos/praisebridge/internal/dedup"
	"github.com/kudos/praisebridge/internal/delivery"
	"github.com/kudos/praisebridge/internal/events"
	"github.com/kudos/praisebridge/internal/ledger"
	"github.com/kudos/praisebridge/internal/mention"
	"github.com/kudos/praisebridge/internal/retry"
	"github.com/kudos/praisebridge/internal/signature"
	"github.com/kudos/praisebridge/internal/slackapi"
	"github.com/kudos/praisebridge/internal/trello"
	"github.com/kudos/praisebridge/internal/webhook"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("starting praise bridge",
		"port", cfg.Port,
		"routed_channels", len(cfg.Routes),
		"dedup_backend", cfg.Dedup.Backend,
	)
	if len(cfg.Routes) == 0 {
		slog.Warn("no channel routes configured, message events will be dropped")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	store, err := ledger.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise ledger store", "error", err)
		os.Exit(1)
	}

	checks := map[string]webhook.HealthCheck{"postgres": store.Ping}

	// --- Connect to Redis (optional) ---
	var sink events.Sink = events.SlogSink{}
	var registry dedup.Registry = dedup.NewMemory(cfg.Dedup.MaxSize)

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()

		redisSink := events.NewRedisSink(rdb, cfg.EventsKey)
		if err := redisSink.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis", "events_key", cfg.EventsKey)

		sink = events.Multi{events.SlogSink{}, redisSink}
		checks["redis"] = redisSink.Ping

		if cfg.Dedup.Backend == config.DedupRedis {
			registry = dedup.NewRedis(rdb, cfg.Dedup.TTL)
		}
	}

	// --- Slack and Trello clients ---
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

	// --- Message pipeline ---
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

	verifier := signature.NewVerifier(cfg.Slack.SigningSecret)
	eventsHandler := webhook.NewHandler(verifier, registry, processor, sink, cfg.ProcessTimeout)
	commands := command.NewHandler(verifier, store, slackClient, sink, command.Options{
		Timeout: cfg.CommandTimeout,
	})

	ready, err := webhook.Serve(ctx, cfg.Port, webhook.NewMux(eventsHandler, commands, checks))
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel() // Stop accepting requests

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer drainCancel()

	if err := eventsHandler.Drain(drainCtx); err != nil {
		slog.Warn("background event processing did not finish", "error", err)
	}
	commands.Wait()

	slog.Info("praise bridge stopped")
}
