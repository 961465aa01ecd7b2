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

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kudos/praisebridge/internal/ledger"
	"github.com/kudos/praisebridge/internal/signature"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir()) // keep a developer's .env out of the test
	color.NoColor = true
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSignCommand(t *testing.T) {
	t.Setenv("SLACK_SIGNING_SECRET", "")
	body := `{"type":"url_verification","challenge":"abc"}`

	out, err := run(t, "", "sign", "--secret", "s3cret", "--timestamp", "1700000000", body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	want := signature.NewVerifier("s3cret").Sign("1700000000", []byte(body))
	if !strings.Contains(out, signature.HeaderTimestamp+": 1700000000") || !strings.Contains(out, want) {
		t.Errorf("output = %q, want signature %q", out, want)
	}
}

func TestSignCommandReadsStdin(t *testing.T) {
	out, err := run(t, "token=x&text=hi", "sign", "--secret", "s3cret", "--timestamp", "42")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	want := signature.NewVerifier("s3cret").Sign("42", []byte("token=x&text=hi"))
	if !strings.Contains(out, want) {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestSignCommandRequiresSecret(t *testing.T) {
	t.Setenv("SLACK_SIGNING_SECRET", "")
	if _, err := run(t, "", "sign", "body"); err == nil || !strings.Contains(err.Error(), "signing secret") {
		t.Errorf("err = %v", err)
	}
}

func TestChannelsCommand(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"channels": []map[string]any{
				{"id": "C2", "name": "support", "is_private": true},
				{"id": "C1", "name": "general"},
			},
			"response_metadata": map[string]any{"next_cursor": ""},
		})
	}))
	defer api.Close()

	out, err := run(t, "", "channels",
		"--token", "xoxb-test",
		"--api-url", api.URL,
		"--routes", `{"support": {"issues": "list-iss"}}`,
	)
	if err != nil {
		t.Fatalf("channels: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("output = %q", out)
	}
	if !strings.Contains(lines[0], "C1") || !strings.Contains(lines[0], "#general") {
		t.Errorf("first line = %q, want general sorted first", lines[0])
	}
	if !strings.Contains(lines[1], "private") || !strings.Contains(lines[1], "issues=list-iss") {
		t.Errorf("second line = %q", lines[1])
	}
	if lines[2] != "2 channel(s)" {
		t.Errorf("summary = %q", lines[2])
	}
}

func TestChannelsCommandRequiresToken(t *testing.T) {
	t.Setenv("SLACK_BOT_TOKEN", "")
	if _, err := run(t, "", "channels"); err == nil || !strings.Contains(err.Error(), "SLACK_BOT_TOKEN") {
		t.Errorf("err = %v", err)
	}
}

type staticValues []ledger.CoreValue

func (s staticValues) ListCoreValues(context.Context) ([]ledger.CoreValue, error) {
	return s, nil
}

func TestPrintCoreValues(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	err := printCoreValues(cmd, staticValues{
		{ID: 1, Name: "Team Work", Description: "We win together"},
		{ID: 2, Name: "Ownership"},
	})
	if err != nil {
		t.Fatalf("printCoreValues: %v", err)
	}
	if !strings.Contains(out.String(), "#TeamWork") || !strings.Contains(out.String(), "We win together") ||
		!strings.Contains(out.String(), "#Ownership") {
		t.Errorf("output = %q", out.String())
	}
}
