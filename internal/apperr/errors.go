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

// Package apperr defines the error taxonomy shared by the bridge components.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth marks a request whose signature or timestamp did not verify.
	ErrAuth = errors.New("authentication failed")

	// ErrNotFound marks an unknown user, core value or channel mapping.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks a downstream condition worth retrying
	// (file not yet available, timeout).
	ErrTransient = errors.New("transient delivery failure")

	// ErrValidation marks malformed user input.
	ErrValidation = errors.New("validation failed")
)

// IntegrationError is returned when a downstream API answers without the
// identifier we asked for. Payload holds the raw response body.
type IntegrationError struct {
	Op      string
	Status  int
	Payload string
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Payload)
}
