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

package crypto

import (
	"context"

	"github.com/carverauto/hubsync/pkg/models"
)

//go:generate mockgen -destination=mock_crypto.go -package=crypto github.com/carverauto/hubsync/pkg/crypto Engine,EventSink

// Engine performs policy-driven transformations on the crypto engine at baseURL.
type Engine interface {
	Transform(ctx context.Context, baseURL string, op Operation, policy, value string) (string, error)
	TransformBatch(ctx context.Context, baseURL string, op Operation, policy string, values []string) ([]string, error)
}

// EventSink receives one event per adapter call. Emit must not block.
type EventSink interface {
	Emit(ev models.CryptoCallEvent)
}
