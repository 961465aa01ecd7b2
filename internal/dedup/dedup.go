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

// Package dedup drops Slack events that are delivered more than once.
// Slack retries any event it believes went unacknowledged, so the same
// event_id can arrive several times.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultMaxSize is the in-memory registry cap.
	DefaultMaxSize = 1000

	// DefaultTTL is how long the Redis registry remembers an event ID.
	// Slack gives up retrying well within an hour.
	DefaultTTL = time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "praise:seen:"
)

// Registry records processed event IDs.
type Registry interface {
	// SeenBefore reports whether eventID was already recorded. When it was
	// not, it is recorded as part of the same call. An empty eventID is
	// never recorded and always reports false.
	SeenBefore(ctx context.Context, eventID string) (bool, error)
}

// Memory is a process-local registry. When it reaches its cap it is
// cleared entirely; IDs seen before the clear become processable again.
type Memory struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	maxSize int
	resets  int
}

// NewMemory creates an in-memory registry holding at most maxSize IDs.
func NewMemory(maxSize int) *Memory {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Memory{
		seen:    make(map[string]struct{}, maxSize),
		maxSize: maxSize,
	}
}

// SeenBefore implements Registry.
func (m *Memory) SeenBefore(_ context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[eventID]; ok {
		return true, nil
	}

	if len(m.seen) >= m.maxSize {
		clear(m.seen)
		m.resets++
	}
	m.seen[eventID] = struct{}{}
	return false, nil
}

// Len returns the number of IDs currently held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// Resets returns how many times the registry has been cleared.
func (m *Memory) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// Redis is a registry shared by every replica, backed by SET NX with a TTL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedis creates a Redis-backed registry.
func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

// TTL returns how long recorded IDs are kept.
func (r *Redis) TTL() time.Duration {
	return r.ttl
}

// SeenBefore implements Registry.
func (r *Redis) SeenBefore(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}

	// SET NX = set only if key does not exist. Returns true if the key was set.
	set, err := r.rdb.SetNX(ctx, keyPrefix+eventID, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return !set, nil
}
