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

package trello

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kudos/praisebridge/internal/apperr"
)

func TestCreateCard(t *testing.T) {
	var gotQuery, gotList, gotName, gotDesc string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/1/cards" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		gotList = r.PostForm.Get("idList")
		gotName = r.PostForm.Get("name")
		gotDesc = r.PostForm.Get("desc")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"card-1","url":"https://trello.com/c/abc/1-title","shortUrl":"https://trello.com/c/abc"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "k", "tok")
	card, err := c.CreateCard(context.Background(), "list-1", "Title", "Body")
	if err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if card.ID != "card-1" || card.ShortURL != "https://trello.com/c/abc" {
		t.Errorf("card = %+v", card)
	}
	if gotList != "list-1" || gotName != "Title" || gotDesc != "Body" {
		t.Errorf("form = %q %q %q", gotList, gotName, gotDesc)
	}
	if gotQuery != "key=k&token=tok" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestCreateCardMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "invalid value for idList")
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "k", "tok")
	_, err := c.CreateCard(context.Background(), "bad", "Title", "Body")

	var ie *apperr.IntegrationError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrationError, got %v", err)
	}
	if ie.Status != http.StatusBadRequest || ie.Payload != "invalid value for idList" {
		t.Errorf("IntegrationError = %+v", ie)
	}
}

func TestCreateCardUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, "invalid token")
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "k", "bad")
	if _, err := c.CreateCard(context.Background(), "l", "T", "D"); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestAttachFile(t *testing.T) {
	var gotName, gotMime, gotFileName string
	var gotData []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/cards/card-1/attachments" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		gotName = r.FormValue("name")
		gotMime = r.FormValue("mimeType")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer f.Close()
		gotFileName = hdr.Filename
		gotData, _ = io.ReadAll(f)
		_, _ = io.WriteString(w, `{"id":"att-9","name":"photo.jpg"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "k", "tok")
	att, err := c.AttachFile(context.Background(), "card-1", []byte("jpegbytes"), "photo.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("AttachFile: %v", err)
	}
	if att.ID != "att-9" {
		t.Errorf("attachment id = %q", att.ID)
	}
	if gotName != "photo.jpg" || gotMime != "image/jpeg" || gotFileName != "photo.jpg" || string(gotData) != "jpegbytes" {
		t.Errorf("upload = %q %q %q %q", gotName, gotMime, gotFileName, gotData)
	}
}
