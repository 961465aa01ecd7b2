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

package command

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kudos/praisebridge/internal/apperr"
	"github.com/kudos/praisebridge/internal/models"
)

// MinMessageLength is the shortest praise message accepted, after trimming.
const MinMessageLength = 3

// errShortMessage is returned when the message is present but too short.
var errShortMessage = fmt.Errorf("%w: message too short", apperr.ErrValidation)

// quoteChars are stripped from both ends of a praise message.
const quoteChars = " \t\r\n\"'“”‘’"

// ParsePraise parses the text of a /praise command:
//
//	@username message #CoreValue
//	<@U123|username> message #CoreValue
//
// The core value is the text after the last '#', lowercased with spaces
// removed.
func ParsePraise(invokerID, text string) (models.PraiseCommand, error) {
	cmd := models.PraiseCommand{InvokerID: invokerID}
	text = strings.TrimSpace(text)

	var rest string
	switch {
	case strings.HasPrefix(text, "<@"):
		end := strings.IndexByte(text, '>')
		if end < 0 {
			return cmd, fmt.Errorf("%w: unterminated mention", apperr.ErrValidation)
		}
		id, label, _ := strings.Cut(text[2:end], "|")
		cmd.MentionID = strings.TrimSpace(id)
		cmd.Username = strings.TrimSpace(label)
		rest = text[end+1:]
	case strings.HasPrefix(text, "@"):
		body := text[1:]
		if i := strings.IndexFunc(body, unicode.IsSpace); i >= 0 {
			cmd.Username, rest = body[:i], body[i:]
		} else {
			cmd.Username = body
		}
	default:
		return cmd, fmt.Errorf("%w: missing @mention", apperr.ErrValidation)
	}
	if cmd.Username == "" && cmd.MentionID == "" {
		return cmd, fmt.Errorf("%w: empty username", apperr.ErrValidation)
	}

	hash := strings.LastIndexByte(rest, '#')
	if hash < 0 {
		return cmd, fmt.Errorf("%w: missing #value", apperr.ErrValidation)
	}
	cmd.ValueText = strings.ToLower(strings.Join(strings.Fields(rest[hash+1:]), ""))
	if cmd.ValueText == "" {
		return cmd, fmt.Errorf("%w: empty #value", apperr.ErrValidation)
	}

	cmd.Message = strings.Trim(rest[:hash], quoteChars)
	if utf8.RuneCountInString(cmd.Message) < MinMessageLength {
		return cmd, errShortMessage
	}
	return cmd, nil
}

// isShortMessage reports whether err came from a too-short message.
func isShortMessage(err error) bool {
	return errors.Is(err, errShortMessage)
}
