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

package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/carverauto/hubsync/pkg/hub"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/metrics"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/policy"
)

// Tick outcomes, also used as metric attributes.
const (
	TickSkipped        = "skipped"
	TickRegistered     = "registered"
	TickRegisterFailed = "register_failed"
	TickReregistered   = "reregistered"
	TickChanged        = "changed"
	TickUnmodified     = "unmodified"
)

// SyncLoop drives one sync tick per interval. Ticks never overlap.
type SyncLoop struct {
	identity  IdentitySource
	mappings  MappingSource
	endpoints EndpointSource
	schema    SchemaSync
	policies  *policy.Cache
	interval  time.Duration
	logger    logger.Logger

	running atomic.Bool
	done    chan struct{}
}

// NewSyncLoop creates a sync loop.
func NewSyncLoop(id IdentitySource, mappings MappingSource, endpoints EndpointSource, sch SchemaSync,
	policies *policy.Cache, interval time.Duration, log logger.Logger) *SyncLoop {
	if interval <= 0 {
		interval = models.DefaultPollInterval
	}

	return &SyncLoop{
		identity:  id,
		mappings:  mappings,
		endpoints: endpoints,
		schema:    sch,
		policies:  policies,
		interval:  interval,
		logger:    log,
		done:      make(chan struct{}),
	}
}

// Start runs a first tick immediately, then one per interval until ctx is cancelled.
func (l *SyncLoop) Start(ctx context.Context) {
	defer close(l.done)

	l.logger.Info().Dur("interval", l.interval).Msg("Starting sync loop")

	l.Tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Sync loop stopping due to context cancellation")
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Done is closed once Start returns.
func (l *SyncLoop) Done() <-chan struct{} {
	return l.done
}

// Tick runs one sync step unless another one is in flight.
func (l *SyncLoop) Tick(ctx context.Context) string {
	if !l.running.CompareAndSwap(false, true) {
		l.logger.Debug().Msg("Previous tick still running, skipping")
		metrics.RecordTick(ctx, TickSkipped, 0)

		return TickSkipped
	}
	defer l.running.Store(false)

	start := time.Now()
	outcome := l.tick(ctx)

	metrics.RecordTick(ctx, outcome, time.Since(start))

	return outcome
}

func (l *SyncLoop) tick(ctx context.Context) string {
	if !l.identity.Registered() {
		return l.register(ctx, TickRegistered)
	}

	switch l.mappings.Refresh(ctx) {
	case hub.NotFound:
		l.logger.Warn().Str("hub_id", l.identity.HubID()).Msg("Hub forgot this instance, re-registering")

		l.forget()

		return l.register(ctx, TickReregistered)
	case hub.Changed:
		l.schema.Inventory().ApplyPolicies(l.policies)
		l.endpoints.Refresh(ctx)
		l.pushPending(ctx)

		return TickChanged
	default:
		if l.endpoints.Version() == 0 {
			l.endpoints.Refresh(ctx)
		}

		l.pushPending(ctx)

		return TickUnmodified
	}
}

// forget moves to the unregistered state. Version tokens are reset before the
// identity is cleared, so an interrupted sequence is finished by register.
func (l *SyncLoop) forget() {
	l.mappings.ResetEpoch()
	l.endpoints.ResetVersion()
	l.schema.Inventory().MarkStale()
	l.identity.MarkUnregistered()
}

// register announces the instance. Version tokens left over from a previous
// identity are reset first.
func (l *SyncLoop) register(ctx context.Context, success string) string {
	if _, version := l.mappings.Version(); version > 0 {
		l.logger.Info().Int64("version", version).Msg("Unregistered with a non-zero mapping version, starting a new epoch")
		l.mappings.ResetEpoch()
	}

	l.endpoints.ResetVersion()

	_, version := l.mappings.Version()

	if _, err := l.identity.Register(ctx, version); err != nil {
		l.logger.Warn().Err(err).Msg("Registration failed, will retry next tick")
		return TickRegisterFailed
	}

	l.pushSchema(ctx)

	return success
}

func (l *SyncLoop) pushPending(ctx context.Context) {
	if l.schema.Pending() {
		l.pushSchema(ctx)
	}
}

func (l *SyncLoop) pushSchema(ctx context.Context) {
	outcome, err := l.schema.Sync(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Schema push failed, will retry next tick")
		return
	}

	if outcome == hub.PushNotFound {
		l.logger.Warn().Msg("Hub rejected schema push for unknown instance")
		l.forget()
	}
}
