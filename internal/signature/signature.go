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

// Package signature verifies that inbound requests were signed by Slack.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kudos/praisebridge/internal/apperr"
)

const (
	// MaxSkew is the largest accepted distance between the request
	// timestamp and the local clock.
	MaxSkew = 300 * time.Second

	// HeaderTimestamp and HeaderSignature are the headers Slack signs with.
	HeaderTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature = "X-Slack-Signature"

	version = "v0"
)

// Verifier checks v0 request signatures against a shared signing secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithClock overrides the clock used for the replay window.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a verifier for the given signing secret.
func NewVerifier(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Sign returns the signature header value for body at the given timestamp.
func (v *Verifier) Sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(version + ":" + timestamp + ":"))
	mac.Write(body)
	return version + "=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify returns nil when sig is a valid signature of body at timestamp.
// Every failure wraps apperr.ErrAuth.
func (v *Verifier) Verify(body []byte, timestamp, sig string) error {
	timestamp = strings.TrimSpace(timestamp)
	sig = strings.TrimSpace(sig)
	if timestamp == "" || sig == "" {
		return fmt.Errorf("missing signature headers: %w", apperr.ErrAuth)
	}

	secs, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", timestamp, apperr.ErrAuth)
	}

	skew := v.now().Sub(time.Unix(secs, 0))
	if skew > MaxSkew || skew < -MaxSkew {
		return fmt.Errorf("timestamp outside replay window (%s): %w", skew.Round(time.Second), apperr.ErrAuth)
	}

	expected := v.Sign(timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("signature mismatch: %w", apperr.ErrAuth)
	}
	return nil
}

// VerifyRequest verifies body using the signature headers on r.
func (v *Verifier) VerifyRequest(r *http.Request, body []byte) error {
	return v.Verify(body, r.Header.Get(HeaderTimestamp), r.Header.Get(HeaderSignature))
}
