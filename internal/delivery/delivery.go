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

// Package delivery copies Slack-hosted images onto board cards. Slack file
// URLs are eventually consistent: a freshly shared file may answer 404 or a
// placeholder body for a few seconds, so downloads are retried under a
// bounded policy before the upload.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/kudos/praisebridge/internal/apperr"
	"github.com/kudos/praisebridge/internal/events"
	"github.com/kudos/praisebridge/internal/models"
	"github.com/kudos/praisebridge/internal/retry"
	"github.com/kudos/praisebridge/internal/slackapi"
	"github.com/kudos/praisebridge/internal/trello"
)

// Download readiness policy.
const (
	DefaultAttempts = 5
	DefaultDelay    = 2 * time.Second
	MinImageBytes   = 1000
)

// Downloader fetches private Slack files.
type Downloader interface {
	Download(ctx context.Context, fileURL string) (*slackapi.Download, error)
}

// Uploader attaches files to cards.
type Uploader interface {
	AttachFile(ctx context.Context, cardID string, data []byte, name, mimeType string) (*trello.Attachment, error)
}

// Result is the outcome of delivering one image.
type Result struct {
	Image    models.ImageAttachment
	Attempts int
	Uploaded bool
	Err      error
}

// Deliverer downloads images and attaches them to cards.
type Deliverer struct {
	files  Downloader
	board  Uploader
	sink   events.Sink
	policy retry.Policy
}

// Option configures a Deliverer.
type Option func(*Deliverer)

// WithPolicy replaces the download retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(d *Deliverer) { d.policy = p }
}

// WithSleep replaces how the policy waits between attempts.
func WithSleep(s retry.SleepFunc) Option {
	return func(d *Deliverer) { d.policy.Sleep = s }
}

// NewDeliverer creates a Deliverer with the default policy of five attempts
// two seconds apart.
func NewDeliverer(files Downloader, board Uploader, sink events.Sink, opts ...Option) *Deliverer {
	d := &Deliverer{
		files: files,
		board: board,
		sink:  sink,
		policy: retry.Policy{
			MaxAttempts: DefaultAttempts,
			Backoff:     retry.Fixed(DefaultDelay),
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sink == nil {
		d.sink = events.SlogSink{}
	}
	return d
}

// DeliverAll delivers every image concurrently and waits for all of them.
// Results are returned in the order of images.
func (d *Deliverer) DeliverAll(ctx context.Context, cardID string, images []models.ImageAttachment) []Result {
	results := make([]Result, len(images))
	var wg sync.WaitGroup
	for i, img := range images {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = d.Deliver(ctx, cardID, img)
		}()
	}
	wg.Wait()
	return results
}

// Deliver downloads one image, waiting for it to become available, and
// attaches it to cardID. Failures are logged and reported in the Result;
// they never abort other deliveries.
func (d *Deliverer) Deliver(ctx context.Context, cardID string, img models.ImageAttachment) Result {
	res := Result{Image: img}

	policy := d.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		slog.Debug("attachment not ready, retrying",
			"card_id", cardID,
			"file", img.Name,
			"attempt", attempt,
			"delay", delay,
			"reason", err,
		)
	}

	dl, attempts, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (*slackapi.Download, error) {
		dl, err := d.files.Download(ctx, img.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrTransient, err)
		}
		if !ready(dl) {
			return nil, fmt.Errorf("file not ready (status %d, %d bytes, %q): %w",
				dl.Status, len(dl.Body), dl.ContentType, apperr.ErrTransient)
		}
		return dl, nil
	})
	res.Attempts = attempts
	if err != nil {
		res.Err = err
		slog.Warn("attachment abandoned",
			"card_id", cardID,
			"file", img.Name,
			"attempts", attempts,
			"error", err,
		)
		d.sink.Emit(ctx, events.New(events.TypeAttachmentAbandoned,
			"card_id", cardID, "file", img.Name, "attempts", attempts, "provenance", img.Provenance))
		return res
	}

	name, mimeType := uploadName(img, dl.ContentType)
	att, err := d.board.AttachFile(ctx, cardID, dl.Body, name, mimeType)
	if err != nil {
		res.Err = err
		slog.Error("attachment upload failed",
			"card_id", cardID,
			"file", name,
			"error", err,
		)
		d.sink.Emit(ctx, events.New(events.TypeAttachmentFailed, "card_id", cardID, "file", name))
		return res
	}

	res.Uploaded = true
	slog.Info("attachment uploaded",
		"card_id", cardID,
		"attachment_id", att.ID,
		"file", name,
		"bytes", len(dl.Body),
		"attempts", attempts,
	)
	d.sink.Emit(ctx, events.New(events.TypeAttachmentUploaded,
		"card_id", cardID, "attachment_id", att.ID, "file", name, "attempts", attempts))
	return res
}

// ready reports whether a download holds the real image rather than an
// error page or placeholder.
func ready(dl *slackapi.Download) bool {
	return dl.Status == http.StatusOK &&
		len(dl.Body) > MinImageBytes &&
		strings.Contains(strings.ToLower(dl.ContentType), "image")
}

// uploadName picks the attachment file name and MIME type. HEIC files go
// up as .jpg with image/jpeg.
func uploadName(img models.ImageAttachment, contentType string) (string, string) {
	name := img.Name
	mimeType := img.MimeType
	if mimeType == "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			mimeType = mt
		}
	}

	ext := path.Ext(name)
	if strings.EqualFold(ext, ".heic") {
		return strings.TrimSuffix(name, ext) + ".jpg", "image/jpeg"
	}
	return name, mimeType
}
