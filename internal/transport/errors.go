// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package transport

import (
	"errors"
	"fmt"
)

// ErrDecode is returned when a 2xx response body is not the expected JSON.
var ErrDecode = errors.New("failed to decode response")

// StatusError is returned for non-2xx responses. Body is kept verbatim.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, body)
}
