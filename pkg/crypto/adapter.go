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

// Package crypto routes field values through the crypto engine named by the
// endpoint record, applying the configured fail policy when it is unreachable.
package crypto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/hubsync/pkg/endpoint"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/metrics"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/policy"
)

// ErrEngineUnavailable is returned in fail-closed mode when the engine cannot be used.
var ErrEngineUnavailable = errors.New("crypto engine unavailable")

var errNoEndpoint = errors.New("no crypto endpoint configured")

const (
	outcomeOK       = "ok"
	outcomeFallback = "fallback"
	outcomeError    = "error"

	reasonNoEndpoint  = "no_endpoint"
	reasonCircuitOpen = "circuit_open"
	reasonTransport   = "transport"
)

// Config configures an Adapter.
type Config struct {
	FailOpen         bool
	MaxBatchSize     int
	BatchConcurrency int
	Alias            string
	Breaker          BreakerConfig
}

// Adapter is safe for concurrent use by request-path callers.
type Adapter struct {
	engine    Engine
	endpoints *endpoint.Cache
	policies  *policy.Cache
	sink      EventSink
	breaker   *CircuitBreaker
	hubID     func() string
	cfg       Config
	logger    logger.Logger
}

// NewAdapter wires an adapter. sink and hubID may be nil.
func NewAdapter(engine Engine, endpoints *endpoint.Cache, policies *policy.Cache, sink EventSink,
	hubID func() string, cfg Config, log logger.Logger) *Adapter {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = models.DefaultMaxBatchSize
	}

	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = models.DefaultBatchConcurrency
	}

	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker = DefaultBreakerConfig()
	}

	return &Adapter{
		engine:    engine,
		endpoints: endpoints,
		policies:  policies,
		sink:      sink,
		breaker:   NewCircuitBreaker(cfg.Breaker, log),
		hubID:     hubID,
		cfg:       cfg,
		logger:    log,
	}
}

// Breaker exposes the engine circuit breaker.
func (a *Adapter) Breaker() *CircuitBreaker {
	return a.breaker
}

func (a *Adapter) Encrypt(ctx context.Context, policyName, value string) (string, error) {
	return a.transform(ctx, OpEncrypt, policyName, value)
}

func (a *Adapter) Decrypt(ctx context.Context, policyName, value string) (string, error) {
	return a.transform(ctx, OpDecrypt, policyName, value)
}

func (a *Adapter) BatchEncrypt(ctx context.Context, policyName string, values []string) ([]string, error) {
	return a.transformBatch(ctx, OpEncrypt, policyName, values)
}

func (a *Adapter) BatchDecrypt(ctx context.Context, policyName string, values []string) ([]string, error) {
	return a.transformBatch(ctx, OpDecrypt, policyName, values)
}

// EncryptField resolves the policy for ref at call time. Unknown fields pass through.
func (a *Adapter) EncryptField(ctx context.Context, ref policy.FieldRef, value string) (string, error) {
	return a.transform(ctx, OpEncrypt, a.resolve(ref), value)
}

func (a *Adapter) DecryptField(ctx context.Context, ref policy.FieldRef, value string) (string, error) {
	return a.transform(ctx, OpDecrypt, a.resolve(ref), value)
}

func (a *Adapter) BatchEncryptField(ctx context.Context, ref policy.FieldRef, values []string) ([]string, error) {
	return a.transformBatch(ctx, OpEncrypt, a.resolve(ref), values)
}

func (a *Adapter) BatchDecryptField(ctx context.Context, ref policy.FieldRef, values []string) ([]string, error) {
	return a.transformBatch(ctx, OpDecrypt, a.resolve(ref), values)
}

func (a *Adapter) resolve(ref policy.FieldRef) string {
	if a.policies == nil {
		return ""
	}

	name, _ := a.policies.Lookup(ref)

	return name
}

func (a *Adapter) transform(ctx context.Context, op Operation, policyName, value string) (string, error) {
	if policyName == "" {
		return value, nil
	}

	start := time.Now()
	opName := string(op)

	url := a.endpoints.CryptoURL()
	if url == "" {
		out, err := a.fallback(ctx, opName, policyName, []string{value}, errNoEndpoint, start)
		if err != nil {
			return "", err
		}

		return out[0], nil
	}

	var out string

	err := a.breaker.Execute(func() error {
		var callErr error

		out, callErr = a.engine.Transform(ctx, url, op, policyName, value)

		return callErr
	})
	if err != nil {
		if !degrades(ctx, err) {
			return "", a.failed(ctx, opName, policyName, 1, err, start)
		}

		res, fbErr := a.fallback(ctx, opName, policyName, []string{value}, err, start)
		if fbErr != nil {
			return "", fbErr
		}

		return res[0], nil
	}

	a.succeeded(ctx, opName, policyName, 1, start)

	return out, nil
}

// transformBatch splits values into chunks sent concurrently and reassembles
// the results by index. Any chunk failure applies the fail policy to the whole batch.
func (a *Adapter) transformBatch(ctx context.Context, op Operation, policyName string, values []string) ([]string, error) {
	if policyName == "" || len(values) == 0 {
		return append([]string(nil), values...), nil
	}

	start := time.Now()
	opName := "batch_" + string(op)

	url := a.endpoints.CryptoURL()
	if url == "" {
		return a.fallback(ctx, opName, policyName, values, errNoEndpoint, start)
	}

	results := make([]string, len(values))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.BatchConcurrency)

	for lo := 0; lo < len(values); lo += a.cfg.MaxBatchSize {
		hi := min(lo+a.cfg.MaxBatchSize, len(values))
		chunk := values[lo:hi]
		offset := lo

		g.Go(func() error {
			return a.breaker.Execute(func() error {
				out, err := a.engine.TransformBatch(gctx, url, op, policyName, chunk)
				if err != nil {
					return err
				}

				if len(out) != len(chunk) {
					return fmt.Errorf("%w: sent %d, got %d", errBatchSizeMismatch, len(chunk), len(out))
				}

				copy(results[offset:], out)

				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		if !degrades(ctx, err) {
			return nil, a.failed(ctx, opName, policyName, len(values), err, start)
		}

		return a.fallback(ctx, opName, policyName, values, err, start)
	}

	a.succeeded(ctx, opName, policyName, len(values), start)

	return results, nil
}

func (a *Adapter) succeeded(ctx context.Context, op, policyName string, items int, start time.Time) {
	if a.endpoints.MarkHealthy() {
		a.logger.Info().Str("crypto_url", a.endpoints.CryptoURL()).Msg("Crypto engine reachable again")
	}

	a.record(ctx, op, policyName, items, outcomeOK, start)
}

// degrades reports whether err falls under the fail policy. Only an
// unreachable or failing engine does; rejections and caller cancellation are
// returned as they are.
func degrades(ctx context.Context, err error) bool {
	return ctx.Err() == nil && isEngineFault(err)
}

func (a *Adapter) failed(ctx context.Context, op, policyName string, items int, err error, start time.Time) error {
	a.logger.Debug().Err(err).Str("operation", op).Str("policy", policyName).Msg("Crypto call failed")
	a.record(ctx, op, policyName, items, outcomeError, start)

	return fmt.Errorf("%s with policy %s: %w", op, policyName, err)
}

// fallback applies the fail policy. Fail-open returns a copy of the inputs.
func (a *Adapter) fallback(ctx context.Context, op, policyName string, values []string, cause error, start time.Time) ([]string, error) {
	reason := reasonTransport

	switch {
	case errors.Is(cause, errNoEndpoint):
		reason = reasonNoEndpoint
	case errors.Is(cause, errCircuitOpen):
		reason = reasonCircuitOpen
	}

	if !a.cfg.FailOpen {
		a.record(ctx, op, policyName, len(values), outcomeError, start)
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, cause)
	}

	if a.endpoints.MarkDegraded() {
		a.logger.Warn().
			Err(cause).
			Str("crypto_url", a.endpoints.CryptoURL()).
			Str("reason", reason).
			Msg("Crypto engine unavailable, passing values through unchanged")
	}

	metrics.RecordCryptoFallback(ctx, op, reason)
	a.record(ctx, op, policyName, len(values), outcomeFallback, start)

	return append([]string(nil), values...), nil
}

func (a *Adapter) record(ctx context.Context, op, policyName string, items int, outcome string, start time.Time) {
	latency := time.Since(start)
	metrics.RecordCryptoCall(ctx, op, outcome, latency)

	if a.sink == nil {
		return
	}

	rec := a.endpoints.Get()
	if !rec.TelemetryEnabled() {
		return
	}

	threshold := rec.SlowThreshold()

	ev := models.CryptoCallEvent{
		Alias:      a.cfg.Alias,
		Operation:  op,
		Policy:     policyName,
		Items:      items,
		Latency:    latency,
		Slow:       threshold > 0 && latency >= threshold,
		Outcome:    outcome,
		OccurredAt: start,
	}

	if a.hubID != nil {
		ev.HubID = a.hubID()
	}

	a.sink.Emit(ev)
}
