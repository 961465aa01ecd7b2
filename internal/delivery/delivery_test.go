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

package delivery

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/kudos/praisebridge/internal/events"
	"github.com/kudos/praisebridge/internal/models"
	"github.com/kudos/praisebridge/internal/retry"
	"github.com/kudos/praisebridge/internal/slackapi"
	"github.com/kudos/praisebridge/internal/trello"
)

var bigImage = bytes.Repeat([]byte{0xff}, 2048)

// scriptedDownloader answers each URL from a queue of responses; the last
// response repeats once the queue is drained.
type scriptedDownloader struct {
	mu     sync.Mutex
	script map[string][]*slackapi.Download
	calls  map[string]int
}

func newScripted() *scriptedDownloader {
	return &scriptedDownloader{script: map[string][]*slackapi.Download{}, calls: map[string]int{}}
}

func (s *scriptedDownloader) on(url string, responses ...*slackapi.Download) {
	s.script[url] = responses
}

func (s *scriptedDownloader) Download(_ context.Context, url string) (*slackapi.Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.calls[url]
	s.calls[url]++
	rs := s.script[url]
	if len(rs) == 0 {
		return nil, errors.New("connection refused")
	}
	if n >= len(rs) {
		n = len(rs) - 1
	}
	return rs[n], nil
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []string
	mimes   []string
	err     error
}

func (f *fakeUploader) AttachFile(_ context.Context, cardID string, data []byte, name, mimeType string) (*trello.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.uploads = append(f.uploads, name)
	f.mimes = append(f.mimes, mimeType)
	return &trello.Attachment{ID: "att-" + name}, nil
}

// sleepRecorder captures requested delays without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func notFound() *slackapi.Download {
	return &slackapi.Download{Status: http.StatusNotFound, ContentType: "text/html", Body: []byte("nope")}
}

func okImage(ct string) *slackapi.Download {
	return &slackapi.Download{Status: http.StatusOK, ContentType: ct, Body: bigImage}
}

func TestDeliverEventuallyAvailable(t *testing.T) {
	files := newScripted()
	files.on("u1", notFound(), notFound(), notFound(), notFound(), okImage("image/png"))
	board := &fakeUploader{}
	sleeps := &sleepRecorder{}
	rec := &events.Recorder{}

	d := NewDeliverer(files, board, rec, WithSleep(sleeps.sleep))
	res := d.Deliver(context.Background(), "card-1", models.ImageAttachment{URL: "u1", Name: "a.png", MimeType: "image/png"})

	if !res.Uploaded || res.Err != nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", res.Attempts)
	}
	if len(sleeps.delays) != 4 {
		t.Errorf("delays = %v, want 4", sleeps.delays)
	}
	for _, dl := range sleeps.delays {
		if dl != 2*time.Second {
			t.Errorf("delay = %v, want 2s", dl)
		}
	}
	if len(board.uploads) != 1 {
		t.Errorf("uploads = %v, want 1", board.uploads)
	}
	if rec.Count(events.TypeAttachmentUploaded) != 1 {
		t.Errorf("uploaded events = %d", rec.Count(events.TypeAttachmentUploaded))
	}
}

func TestDeliverNeverAvailable(t *testing.T) {
	files := newScripted()
	files.on("u1", notFound())
	board := &fakeUploader{}
	sleeps := &sleepRecorder{}
	rec := &events.Recorder{}

	d := NewDeliverer(files, board, rec, WithSleep(sleeps.sleep))
	res := d.Deliver(context.Background(), "card-1", models.ImageAttachment{URL: "u1", Name: "a.png"})

	if res.Uploaded {
		t.Fatal("expected no upload")
	}
	if !errors.Is(res.Err, retry.ErrExhausted) {
		t.Errorf("err = %v, want ErrExhausted", res.Err)
	}
	if res.Attempts != 5 || len(sleeps.delays) != 4 {
		t.Errorf("attempts = %d delays = %d", res.Attempts, len(sleeps.delays))
	}
	if len(board.uploads) != 0 {
		t.Errorf("uploads = %v, want none", board.uploads)
	}
	if rec.Count(events.TypeAttachmentAbandoned) != 1 {
		t.Errorf("abandoned events = %d", rec.Count(events.TypeAttachmentAbandoned))
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name string
		dl   *slackapi.Download
		want bool
	}{
		{"ready", okImage("image/jpeg"), true},
		{"html page", &slackapi.Download{Status: 200, ContentType: "text/html", Body: bigImage}, false},
		{"placeholder body", &slackapi.Download{Status: 200, ContentType: "image/png", Body: make([]byte, 1000)}, false},
		{"server error", &slackapi.Download{Status: 500, ContentType: "image/png", Body: bigImage}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ready(tt.dl); got != tt.want {
				t.Errorf("ready() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHEICRenamed(t *testing.T) {
	files := newScripted()
	files.on("u1", okImage("image/jpeg"))
	board := &fakeUploader{}

	d := NewDeliverer(files, board, &events.Recorder{}, WithSleep(func(context.Context, time.Duration) error { return nil }))
	res := d.Deliver(context.Background(), "card-1", models.ImageAttachment{URL: "u1", Name: "IMG_0001.HEIC", MimeType: "image/heic"})

	if !res.Uploaded {
		t.Fatalf("result = %+v", res)
	}
	if board.uploads[0] != "IMG_0001.jpg" || board.mimes[0] != "image/jpeg" {
		t.Errorf("upload = %q %q", board.uploads[0], board.mimes[0])
	}
}

func TestUploadFailureIsContained(t *testing.T) {
	files := newScripted()
	files.on("u1", okImage("image/png"))
	board := &fakeUploader{err: errors.New("trello down")}
	rec := &events.Recorder{}

	d := NewDeliverer(files, board, rec)
	res := d.Deliver(context.Background(), "card-1", models.ImageAttachment{URL: "u1", Name: "a.png"})

	if res.Uploaded || res.Err == nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, upload failures must not retry the download", res.Attempts)
	}
	if rec.Count(events.TypeAttachmentFailed) != 1 {
		t.Errorf("failed events = %d", rec.Count(events.TypeAttachmentFailed))
	}
}

func TestDeliverAllIndependent(t *testing.T) {
	files := newScripted()
	files.on("good1", okImage("image/png"))
	files.on("bad", notFound())
	files.on("good2", notFound(), okImage("image/png"))
	board := &fakeUploader{}
	sleeps := &sleepRecorder{}

	d := NewDeliverer(files, board, &events.Recorder{}, WithSleep(sleeps.sleep))
	results := d.DeliverAll(context.Background(), "card-1", []models.ImageAttachment{
		{URL: "good1", Name: "1.png"},
		{URL: "bad", Name: "2.png"},
		{URL: "good2", Name: "3.png"},
	})

	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	if !results[0].Uploaded || results[1].Uploaded || !results[2].Uploaded {
		t.Errorf("uploaded = %v %v %v", results[0].Uploaded, results[1].Uploaded, results[2].Uploaded)
	}
	if results[2].Attempts != 2 {
		t.Errorf("good2 attempts = %d, want 2", results[2].Attempts)
	}
	if len(board.uploads) != 2 {
		t.Errorf("uploads = %v", board.uploads)
	}
}

func TestDeliverCancelled(t *testing.T) {
	files := newScripted()
	files.on("u1", notFound())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDeliverer(files, &fakeUploader{}, &events.Recorder{})
	res := d.Deliver(ctx, "card-1", models.ImageAttachment{URL: "u1", Name: "a.png"})

	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", res.Err)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
}
