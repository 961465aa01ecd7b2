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

package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewCollectsAttrs(t *testing.T) {
	ev := New(TypeCardCreated, "card_id", "c1", "images", 2, "dangling")

	if ev.ID == "" || ev.Time.IsZero() {
		t.Fatalf("event missing id or time: %+v", ev)
	}
	if ev.Attrs["card_id"] != "c1" || ev.Attrs["images"] != 2 {
		t.Errorf("attrs = %v", ev.Attrs)
	}
	if _, ok := ev.Attrs["dangling"]; ok {
		t.Error("odd trailing key should be ignored")
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, b}

	m.Emit(context.Background(), New(TypeRouteMissing))
	m.Emit(context.Background(), New(TypeCardFailed))

	if len(a.Events()) != 2 || len(b.Events()) != 2 {
		t.Errorf("a=%d b=%d, want 2 each", len(a.Events()), len(b.Events()))
	}
	if a.Count(TypeCardFailed) != 1 {
		t.Errorf("Count(card.failed) = %d", a.Count(TypeCardFailed))
	}
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	SlogSink{}.Emit(context.Background(), New(TypeAttachmentAbandoned, "file", "a.png"))

	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line); err != nil {
		t.Fatalf("log line not JSON: %v (%q)", err, buf.String())
	}
	if line["event_type"] != TypeAttachmentAbandoned || line["file"] != "a.png" {
		t.Errorf("log line = %v", line)
	}
}
