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

// Package mention rewrites Slack mention markup into readable text.
package mention

import (
	"context"
	"log/slog"
	"regexp"
)

// Directory resolves Slack IDs to names.
type Directory interface {
	UserDisplayName(ctx context.Context, userID string) (string, error)
	UserGroupHandle(ctx context.Context, groupID string) (string, error)
}

var (
	userPattern      = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]*)?>`)
	subteamPattern   = regexp.MustCompile(`<!subteam\^([A-Z0-9]+)(?:\|[^>]*)?>`)
	broadcastPattern = regexp.MustCompile(`<!(channel|here|everyone)(?:\|[^>]*)?>`)
)

// Expander replaces mention tokens using a Directory.
type Expander struct {
	dir Directory
}

// NewExpander creates an expander backed by dir.
func NewExpander(dir Directory) *Expander {
	return &Expander{dir: dir}
}

// Expand returns text with user, user-group and broadcast mentions replaced.
// Unresolvable mentions are left as they were.
func (e *Expander) Expand(ctx context.Context, text string) string {
	if text == "" {
		return text
	}

	text = replaceResolved(ctx, text, userPattern, "user", e.dir.UserDisplayName)
	text = replaceResolved(ctx, text, subteamPattern, "usergroup", e.dir.UserGroupHandle)
	return broadcastPattern.ReplaceAllString(text, "@$1")
}

// replaceResolved substitutes every match of re with "@"+name, looking up
// each distinct ID once.
func replaceResolved(
	ctx context.Context,
	text string,
	re *regexp.Regexp,
	kind string,
	lookup func(context.Context, string) (string, error),
) string {
	type result struct {
		name string
		ok   bool
	}
	resolved := make(map[string]result)

	return re.ReplaceAllStringFunc(text, func(token string) string {
		id := re.FindStringSubmatch(token)[1]

		r, cached := resolved[id]
		if !cached {
			name, err := lookup(ctx, id)
			if err != nil || name == "" {
				slog.Debug("mention lookup failed, leaving token",
					"kind", kind,
					"id", id,
					"error", err,
				)
			}
			r = result{name: name, ok: err == nil && name != ""}
			resolved[id] = r
		}

		if !r.ok {
			return token
		}
		return "@" + r.name
	})
}
