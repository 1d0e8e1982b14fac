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

// Package telemetry ships crypto call events to the stats aggregator named
// by the endpoint record. Delivery is fire-and-forget.
package telemetry

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/metrics"
	"github.com/carverauto/hubsync/pkg/models"
)

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 2 * time.Second
	eventType             = "com.carverauto.hubsync.crypto.call"
	eventSource           = "hubsync/agent"
)

// RecordSource returns the current endpoint record, or nil.
type RecordSource func() *models.EndpointRecord

// Config configures an Emitter.
type Config struct {
	QueueSize      int
	PublishTimeout time.Duration
	HTTPClient     *http.Client
	TLS            *tls.Config
}

// Emitter queues events and publishes them from one worker goroutine. The
// destination is resolved from the endpoint record when each event is sent.
type Emitter struct {
	records RecordSource
	queue   chan models.CryptoCallEvent
	timeout time.Duration
	http    *http.Client
	tls     *tls.Config
	logger  logger.Logger

	mu        sync.Mutex
	publisher Publisher
	target    target

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewEmitter(records RecordSource, cfg Config, log logger.Logger) *Emitter {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Emitter{
		records: records,
		queue:   make(chan models.CryptoCallEvent, size),
		timeout: timeout,
		http:    client,
		tls:     cfg.TLS,
		logger:  log,
		done:    make(chan struct{}),
	}
}

// Emit enqueues ev without blocking. A full queue drops the event.
func (e *Emitter) Emit(ev models.CryptoCallEvent) {
	select {
	case <-e.done:
		return
	default:
	}

	select {
	case e.queue <- ev:
	default:
		rec := e.records()
		mode := string(models.StatsModeHTTP)

		if rec != nil && rec.StatsAggregatorMode != "" {
			mode = string(rec.StatsAggregatorMode)
		}

		metrics.RecordTelemetryDropped(context.Background(), mode)
	}
}

// Start launches the publishing worker.
func (e *Emitter) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		e.wg.Add(1)

		go e.run(ctx)
	})
}

// Stop ends the worker, publishing what is already queued, and closes the
// publisher. Queued events are published even when the Start context is
// already cancelled.
func (e *Emitter) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
	})

	e.wg.Wait()

	// The worker may have left on cancellation, or never started.
	e.drain(context.Background())

	e.mu.Lock()
	defer e.mu.Unlock()

	e.closePublisherLocked()
}

// run exits when ctx is cancelled. Each publish is bounded by its own timeout
// and does not inherit that cancellation, so a dequeued event is never lost.
func (e *Emitter) run(ctx context.Context) {
	defer e.wg.Done()

	pubCtx := context.WithoutCancel(ctx)

	for {
		select {
		case ev := <-e.queue:
			e.publish(pubCtx, ev)
		case <-ctx.Done():
			return
		case <-e.done:
			e.drain(pubCtx)
			return
		}
	}
}

func (e *Emitter) drain(ctx context.Context) {
	for {
		select {
		case ev := <-e.queue:
			e.publish(ctx, ev)
		default:
			return
		}
	}
}

func (e *Emitter) publish(ctx context.Context, ev models.CryptoCallEvent) {
	rec := e.records()
	if !rec.TelemetryEnabled() {
		return
	}

	pub, err := e.publisherFor(target{mode: rec.StatsAggregatorMode, url: rec.StatsAggregatorURL})
	if err != nil {
		e.logger.Debug().Err(err).Str("url", rec.StatsAggregatorURL).Msg("Telemetry sink unavailable")
		return
	}

	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	event := &models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            eventType,
		DataContentType: "application/json",
		Subject:         ev.Operation,
		Time:            &occurred,
		Data:            ev,
	}

	pubCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := pub.Publish(pubCtx, event); err != nil {
		e.logger.Debug().Err(err).Str("operation", ev.Operation).Msg("Failed to publish telemetry event")
	}
}

// publisherFor reuses the current publisher while the destination is unchanged.
func (e *Emitter) publisherFor(t target) (Publisher, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.publisher != nil && e.target == t {
		return e.publisher, nil
	}

	e.closePublisherLocked()

	pub, err := newPublisher(t, e.http, e.tls, e.logger)
	if err != nil {
		return nil, err
	}

	e.publisher = pub
	e.target = t

	e.logger.Info().
		Str("mode", string(t.mode)).
		Str("url", t.url).
		Msg("Telemetry sink configured")

	return pub, nil
}

func (e *Emitter) closePublisherLocked() {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Close(); err != nil {
		e.logger.Debug().Err(err).Msg("Failed to close telemetry publisher")
	}

	e.publisher = nil
	e.target = target{}
}
