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

// Package ledger is the bridge's view of the praise ledger: users linked to
// Slack accounts, the company core values, and recorded praise with the
// points it awards.
package ledger

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// Points awarded for one praise.
const (
	ReceiverPoints = 10
	GiverPoints    = 5
)

// User is a ledger account linked to a Slack user.
type User struct {
	ID        int64
	SlackID   string
	FirstName string
	LastName  string
	Email     string
	Points    int
}

// Name returns the user's first name, or the email when no name is set.
func (u *User) Name() string {
	if n := strings.TrimSpace(u.FirstName); n != "" {
		return n
	}
	return u.Email
}

// CoreValue is a company value that praise is given for.
type CoreValue struct {
	ID          int64
	Name        string
	Description string
}

// Token renders the value as users type it, e.g. "#TeamWork".
func (v CoreValue) Token() string {
	return "#" + strings.ReplaceAll(v.Name, " ", "")
}

// Praise is a recorded recognition.
type Praise struct {
	ID            int64
	GiverID       int64
	ReceiverID    int64
	GiverName     string
	CoreValueID   int64
	CoreValueName string
	Message       string
	Points        int
	CreatedAt     time.Time
}

// Service is the ledger contract used by the slash commands. Lookups return
// nil, nil when nothing matches.
type Service interface {
	FindUserByExternalID(ctx context.Context, slackID string) (*User, error)
	FindCoreValueByFuzzyName(ctx context.Context, text string) (*CoreValue, error)
	ListCoreValues(ctx context.Context) ([]CoreValue, error)
	RecordPraise(ctx context.Context, giverID, receiverID, coreValueID int64, message string) (*Praise, error)
	ListReceivedPraise(ctx context.Context, userID int64, limit int) ([]Praise, error)
}

// MatchCoreValue picks the value a user meant by token. An exact match on
// the normalized name wins; otherwise the first value, in the given order,
// whose normalized name contains the token or is a prefix of it.
func MatchCoreValue(values []CoreValue, token string) *CoreValue {
	want := normalize(token)
	if want == "" {
		return nil
	}
	for i := range values {
		if normalize(values[i].Name) == want {
			v := values[i]
			return &v
		}
	}
	for i := range values {
		name := normalize(values[i].Name)
		if name == "" {
			continue
		}
		if strings.Contains(name, want) || strings.HasPrefix(want, name) {
			v := values[i]
			return &v
		}
	}
	return nil
}

// normalize lowercases s and drops everything but letters and digits, so
// "Team Work", "team-work" and "#TeamWork" compare equal.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
