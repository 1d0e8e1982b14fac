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

package schema

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/hubsync/pkg/hub"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/metrics"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/policy"
)

var (
	errNotBound          = errors.New("schema executor is not bound to a hub identifier")
	errRetriesExhausted  = errors.New("schema sync retries exhausted")
	errUnexpectedOutcome = errors.New("unexpected schema push outcome")
)

// Executor runs collect and push with a bounded, linearly backed-off retry loop.
type Executor struct {
	probe     Probe
	inventory *Inventory
	policies  *policy.Cache
	factory   PusherFactory
	retry     models.RetryConfig
	logger    logger.Logger

	mu     sync.RWMutex
	hubID  string
	pusher Pusher
}

// NewExecutor wires the executor. policies may be nil.
func NewExecutor(probe Probe, inventory *Inventory, policies *policy.Cache, factory PusherFactory,
	retry models.RetryConfig, log logger.Logger) *Executor {
	return &Executor{
		probe:     probe,
		inventory: inventory,
		policies:  policies,
		factory:   factory,
		retry:     retry,
		logger:    log,
	}
}

// Bind switches to hubID. An empty id unbinds.
func (e *Executor) Bind(hubID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.hubID = hubID

	if hubID == "" {
		e.pusher = nil
		return
	}

	e.pusher = e.factory(hubID)
}

func (e *Executor) bound() (string, Pusher) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.hubID, e.pusher
}

// Pending reports whether the inventory has not reached the bound identifier.
func (e *Executor) Pending() bool {
	hubID, pusher := e.bound()
	if pusher == nil {
		return false
	}

	return e.inventory.NeedsPush(hubID)
}

// Inventory returns the inventory the executor maintains.
func (e *Executor) Inventory() *Inventory {
	return e.inventory
}

// Backoff returns the delay before retry number attempt, counted from 0.
func (e *Executor) Backoff(attempt int) time.Duration {
	return time.Duration(e.retry.InitialDelay) + time.Duration(attempt)*time.Duration(e.retry.BackoffIncrement)
}

// Sync collects and pushes the schema. Rejected and NotFound end the loop
// without retrying; collection and transport failures are retried. When the
// collected content already reached the bound identifier, nothing is sent.
func (e *Executor) Sync(ctx context.Context) (hub.PushOutcome, error) {
	hubID, pusher := e.bound()
	if pusher == nil {
		return hub.PushAck, errNotBound
	}

	var lastErr error

	for attempt := 0; attempt <= e.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.Backoff(attempt - 1)

			e.logger.Debug().
				Int("attempt", attempt).
				Dur("delay", delay).
				Err(lastErr).
				Msg("Retrying schema sync")

			if err := sleep(ctx, delay); err != nil {
				return hub.PushAck, err
			}
		}

		outcome, err := e.attempt(ctx, hubID, pusher)
		if err == nil {
			metrics.RecordSchemaPush(ctx, outcome.String())
			return outcome, nil
		}

		lastErr = err
	}

	metrics.RecordSchemaPush(ctx, "error")

	return hub.PushAck, fmt.Errorf("%w after %d attempts: %w", errRetriesExhausted, e.retry.MaxRetries+1, lastErr)
}

func (e *Executor) attempt(ctx context.Context, hubID string, pusher Pusher) (hub.PushOutcome, error) {
	entries, err := e.probe.Collect(ctx)
	if err != nil {
		return hub.PushAck, fmt.Errorf("collect: %w", err)
	}

	e.inventory.Replace(entries)

	var version int64
	if e.policies != nil {
		e.inventory.ApplyPolicies(e.policies)
		_, version = e.policies.Version()
	}

	if !e.inventory.NeedsPush(hubID) {
		e.logger.Debug().Str("hub_id", hubID).Msg("Schema unchanged since last push, skipping")
		return hub.PushUnmodified, nil
	}

	current := e.inventory.Entries()

	outcome, err := pusher.PushSchema(ctx, current, version)
	if err != nil {
		return hub.PushAck, fmt.Errorf("push: %w", err)
	}

	switch outcome {
	case hub.PushAck, hub.PushUnmodified:
		e.inventory.MarkPushed(hubID)
		e.logger.Info().
			Str("hub_id", hubID).
			Int("entries", len(current)).
			Str("outcome", outcome.String()).
			Msg("Schema pushed")
	case hub.PushRejected:
		e.inventory.MarkPushed(hubID)
		e.logger.Warn().
			Str("hub_id", hubID).
			Int("entries", len(current)).
			Msg("Hub rejected schema payload")
	case hub.PushNotFound:
		e.logger.Debug().Str("hub_id", hubID).Msg("Hub does not recognize this instance")
	default:
		return hub.PushAck, fmt.Errorf("%w: %d", errUnexpectedOutcome, outcome)
	}

	return outcome, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
