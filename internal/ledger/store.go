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

package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a Postgres-backed Service.
type Store struct {
	pool *pgxpool.Pool
}

var _ Service = (*Store)(nil)

// OpenStore wraps a pool whose ledger tables already exist. It runs no DDL,
// so read-only tools can use it with a restricted role.
func OpenStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStore creates a ledger store backed by the given Postgres pool.
// It ensures the ledger tables exist on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := OpenStore(pool)
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	slog.Info("ledger store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id             BIGSERIAL PRIMARY KEY,
			email          TEXT NOT NULL UNIQUE,
			first_name     TEXT DEFAULT '',
			last_name      TEXT DEFAULT '',
			slack_user_id  TEXT UNIQUE,
			points_balance INTEGER NOT NULL DEFAULT 0,
			created_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS core_values (
			id          BIGSERIAL PRIMARY KEY,
			name        TEXT NOT NULL UNIQUE,
			description TEXT DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS praise (
			id             BIGSERIAL PRIMARY KEY,
			giver_id       BIGINT NOT NULL REFERENCES users(id),
			receiver_id    BIGINT NOT NULL REFERENCES users(id),
			core_value_id  BIGINT NOT NULL REFERENCES core_values(id),
			message        TEXT NOT NULL,
			points_awarded INTEGER NOT NULL,
			created_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_praise_receiver ON praise(receiver_id, created_at DESC);
	`)
	return err
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FindUserByExternalID returns the user linked to a Slack user id.
func (s *Store) FindUserByExternalID(ctx context.Context, slackID string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, COALESCE(slack_user_id, ''), COALESCE(first_name, ''),
		       COALESCE(last_name, ''), email, points_balance
		FROM users
		WHERE slack_user_id = $1
	`, slackID)

	var u User
	err := row.Scan(&u.ID, &u.SlackID, &u.FirstName, &u.LastName, &u.Email, &u.Points)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", slackID, err)
	}
	return &u, nil
}

// ListCoreValues returns all core values in declaration order.
func (s *Store) ListCoreValues(ctx context.Context) ([]CoreValue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, COALESCE(description, '')
		FROM core_values
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list core values: %w", err)
	}
	defer rows.Close()

	var values []CoreValue
	for rows.Next() {
		var v CoreValue
		if err := rows.Scan(&v.ID, &v.Name, &v.Description); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// FindCoreValueByFuzzyName resolves a user-typed token to a core value.
func (s *Store) FindCoreValueByFuzzyName(ctx context.Context, text string) (*CoreValue, error) {
	values, err := s.ListCoreValues(ctx)
	if err != nil {
		return nil, err
	}
	return MatchCoreValue(values, text), nil
}

// RecordPraise stores the praise and credits both users in one transaction.
func (s *Store) RecordPraise(ctx context.Context, giverID, receiverID, coreValueID int64, message string) (*Praise, error) {
	p := Praise{
		GiverID:     giverID,
		ReceiverID:  receiverID,
		CoreValueID: coreValueID,
		Message:     message,
		Points:      ReceiverPoints,
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO praise (giver_id, receiver_id, core_value_id, message, points_awarded)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`, giverID, receiverID, coreValueID, message, ReceiverPoints).Scan(&p.ID, &p.CreatedAt); err != nil {
			return fmt.Errorf("insert praise: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE users SET points_balance = points_balance + $1 WHERE id = $2
		`, ReceiverPoints, receiverID); err != nil {
			return fmt.Errorf("credit receiver: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE users SET points_balance = points_balance + $1 WHERE id = $2
		`, GiverPoints, giverID); err != nil {
			return fmt.Errorf("credit giver: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record praise: %w", err)
	}

	slog.Info("praise recorded",
		"praise_id", p.ID,
		"giver_id", giverID,
		"receiver_id", receiverID,
		"core_value_id", coreValueID,
	)
	return &p, nil
}

// ListReceivedPraise returns the most recent praise received by userID.
func (s *Store) ListReceivedPraise(ctx context.Context, userID int64, limit int) ([]Praise, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.giver_id, p.receiver_id, COALESCE(NULLIF(g.first_name, ''), g.email),
		       p.core_value_id, cv.name, p.message, p.points_awarded, p.created_at
		FROM praise p
		JOIN users g        ON g.id = p.giver_id
		JOIN core_values cv ON cv.id = p.core_value_id
		WHERE p.receiver_id = $1
		ORDER BY p.created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list praise: %w", err)
	}
	defer rows.Close()

	var out []Praise
	for rows.Next() {
		var p Praise
		if err := rows.Scan(
			&p.ID, &p.GiverID, &p.ReceiverID, &p.GiverName,
			&p.CoreValueID, &p.CoreValueName, &p.Message, &p.Points, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
