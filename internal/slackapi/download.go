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

package slackapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxDownloadBytes bounds a single file download.
const maxDownloadBytes = 50 << 20

// Download is the outcome of fetching a private file URL. A non-200 status
// is reported here rather than as an error so callers can decide whether
// the file is simply not ready yet.
type Download struct {
	Status      int
	ContentType string
	Body        []byte
}

// Download fetches a private file URL with the bot token.
func (c *Client) Download(ctx context.Context, fileURL string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.fileClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}

	return &Download{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
