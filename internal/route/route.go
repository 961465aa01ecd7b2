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

// Package route decides whether a message becomes a card and on which list.
package route

import (
	"strings"
	"unicode"
)

// Kind is the classification of a message.
type Kind string

const (
	KindIgnore       Kind = "ignore"
	KindAnnouncement Kind = "announcement"
	KindIssue        Kind = "issue"
)

// Destination keys in a channel's route record.
const (
	KeyAnnouncement = "announcement"
	KeyIssues       = "issues"
)

// Label is the human-readable card type.
func (k Kind) Label() string {
	switch k {
	case KindAnnouncement:
		return "Announcement"
	case KindIssue:
		return "TTA Issue"
	default:
		return "Ignored"
	}
}

// destinationKey maps a kind to the route-record key it needs.
func (k Kind) destinationKey() string {
	switch k {
	case KindAnnouncement:
		return KeyAnnouncement
	case KindIssue:
		return KeyIssues
	default:
		return ""
	}
}

// announcementTokens includes a common misspelling seen in the wild.
var announcementTokens = []string{"ANNOUNCEMENT", "ANNOUCEMENT"}

const issueToken = "TTA"

// Classify inspects upper-cased message text. Announcements take priority
// over issues.
func Classify(upper string) Kind {
	for _, tok := range announcementTokens {
		if strings.Contains(upper, tok) {
			return KindAnnouncement
		}
	}
	if startsWithToken(strings.TrimSpace(upper), issueToken) {
		return KindIssue
	}
	return KindIgnore
}

// startsWithToken reports whether s begins with tok as a whole word.
func startsWithToken(s, tok string) bool {
	if !strings.HasPrefix(s, tok) {
		return false
	}
	rest := s[len(tok):]
	if rest == "" {
		return true
	}
	r := []rune(rest)[0]
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Destinations maps destination keys to list IDs for one channel.
type Destinations map[string]string

// ChannelRouteMap maps channel names to their destinations.
type ChannelRouteMap map[string]Destinations

// Resolve returns the list ID for kind in channel. ok is false when the
// channel has no list configured for that kind.
func (m ChannelRouteMap) Resolve(channel string, kind Kind) (listID string, ok bool) {
	key := kind.destinationKey()
	if key == "" {
		return "", false
	}
	dest, found := m[strings.TrimPrefix(channel, "#")]
	if !found {
		return "", false
	}
	listID = strings.TrimSpace(dest[key])
	return listID, listID != ""
}
