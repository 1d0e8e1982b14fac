/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package hub

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers connection failures, timeouts and cancelled requests.
	ErrTransport = errors.New("hub transport error")
	// ErrProtocol covers unexpected status codes and undecodable bodies.
	ErrProtocol = errors.New("hub protocol error")

	errBaseURLRequired = errors.New("hub base URL is required")
	errAliasRequired   = errors.New("alias is required")
	errEmptyHubID      = errors.New("hub returned an empty hub_id")
	errNotBound        = errors.New("client is not bound to a hub id")
)

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func protocolError(op string, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s: %s", ErrProtocol, op, fmt.Sprintf(format, args...))
}

// IsTransient reports whether err is a transport or protocol failure, the
// two classes callers treat as "Hub unavailable".
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrProtocol)
}
