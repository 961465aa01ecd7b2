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

// Package content assembles the effective text and image list of a message:
// the message itself, any forwarded messages attached to it, and file
// previews.
package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/kudos/praisebridge/internal/models"
)

const (
	forwardedHeading = "--- Forwarded message ---"
	forwardedFrom    = "--- Forwarded message from %s ---"
	previewHeading   = "--- File preview ---"

	defaultForwardedMime = "image/png"
)

// Expander rewrites mention markup.
type Expander interface {
	Expand(ctx context.Context, text string) string
}

// Extractor builds the effective content of an inbound event.
type Extractor struct {
	expander Expander
}

// NewExtractor creates an extractor that expands mentions with expander.
func NewExtractor(expander Expander) *Extractor {
	return &Extractor{expander: expander}
}

// Extract returns the effective text and the images to deliver. Directly
// attached image files come first, then images found in forwarded messages.
func (x *Extractor) Extract(ctx context.Context, ev *models.InboundEvent) (string, []models.ImageAttachment) {
	var sections []string
	if text := strings.TrimSpace(ev.Text); text != "" {
		sections = append(sections, x.expander.Expand(ctx, text))
	}

	var forwarded []models.ImageAttachment
	for _, att := range ev.Attachments {
		if section := x.forwardedSection(ctx, att); section != "" {
			sections = append(sections, section)
		}
		forwarded = append(forwarded, forwardedImages(att, len(forwarded))...)
	}

	var direct []models.ImageAttachment
	for _, f := range ev.Files {
		if preview := strings.TrimSpace(f.Preview); preview != "" {
			sections = append(sections, previewHeading+"\n"+preview)
		}
		if f.IsImage() && f.DownloadURL() != "" {
			direct = append(direct, models.ImageAttachment{
				URL:        f.DownloadURL(),
				Name:       fileName(f),
				MimeType:   f.Mimetype,
				Provenance: models.ProvenanceFile,
			})
		}
	}

	return strings.Join(sections, "\n\n"), append(direct, forwarded...)
}

// forwardedSection renders one forwarded attachment: a heading naming the
// original author when known, the pretext, the body and a link back to the
// original message. Attachments without a body contribute no text.
func (x *Extractor) forwardedSection(ctx context.Context, att models.SlackAttachment) string {
	text := att.ForwardedText()
	if text == "" {
		return ""
	}

	heading := forwardedHeading
	if author := strings.TrimSpace(att.AuthorName); author != "" {
		heading = fmt.Sprintf(forwardedFrom, author)
	}

	lines := []string{heading}
	if pre := strings.TrimSpace(att.Pretext); pre != "" {
		lines = append(lines, x.expander.Expand(ctx, pre))
	}
	lines = append(lines, x.expander.Expand(ctx, text))
	if from := strings.TrimSpace(att.FromURL); from != "" {
		lines = append(lines, "Original: "+from)
	}
	return strings.Join(lines, "\n")
}

// forwardedImages collects the image references inside one attachment.
// offset is the number of forwarded images already collected, used to
// number default names.
func forwardedImages(att models.SlackAttachment, offset int) []models.ImageAttachment {
	var out []models.ImageAttachment

	if att.ImageURL != "" {
		out = append(out, models.ImageAttachment{
			URL:        att.ImageURL,
			Name:       defaultName(offset + 1),
			MimeType:   defaultForwardedMime,
			Provenance: models.ProvenanceForwarded,
		})
	}

	for _, f := range att.Files {
		if !f.IsImage() || f.DownloadURL() == "" {
			continue
		}
		name := fileName(f)
		if name == "" {
			name = defaultName(offset + len(out) + 1)
		}
		out = append(out, models.ImageAttachment{
			URL:        f.DownloadURL(),
			Name:       name,
			MimeType:   f.Mimetype,
			Provenance: models.ProvenanceForwarded,
		})
	}
	return out
}

func defaultName(n int) string {
	return fmt.Sprintf("forwarded_image_%d.png", n)
}

func fileName(f models.SlackFile) string {
	if f.Name != "" {
		return f.Name
	}
	return f.Title
}
