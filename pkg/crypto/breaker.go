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
	"errors"
	"sync"
	"time"

	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
)

var errCircuitOpen = errors.New("engine circuit breaker is open")

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	// StateClosed lets calls through.
	StateClosed BreakerState = iota
	// StateOpen rejects calls until Timeout elapses.
	StateOpen
	// StateHalfOpen lets calls probe whether the engine recovered.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the number of failures before opening the circuit
	FailureThreshold int
	// SuccessThreshold is the number of successes needed to close the circuit from half-open
	SuccessThreshold int
	// Timeout is how long to wait before transitioning from open to half-open
	Timeout time.Duration
	// ResetTimeout is how long to wait before resetting failure counts in closed state
	ResetTimeout time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		ResetTimeout:     60 * time.Second,
	}
}

// BreakerConfigFrom overlays the non-zero fields of cfg on the defaults.
func BreakerConfigFrom(cfg *models.BreakerConfig) BreakerConfig {
	out := DefaultBreakerConfig()
	if cfg == nil {
		return out
	}

	if cfg.FailureThreshold > 0 {
		out.FailureThreshold = cfg.FailureThreshold
	}

	if cfg.SuccessThreshold > 0 {
		out.SuccessThreshold = cfg.SuccessThreshold
	}

	if cfg.Timeout > 0 {
		out.Timeout = time.Duration(cfg.Timeout)
	}

	if cfg.ResetTimeout > 0 {
		out.ResetTimeout = time.Duration(cfg.ResetTimeout)
	}

	return out
}

// CircuitBreaker stops calling an engine that keeps failing.
type CircuitBreaker struct {
	config        BreakerConfig
	state         BreakerState
	failureCount  int
	successCount  int
	lastFailTime  time.Time
	lastResetTime time.Time
	mu            sync.Mutex
	logger        logger.Logger
	now           func() time.Time
}

func NewCircuitBreaker(config BreakerConfig, log logger.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		config:        config,
		state:         StateClosed,
		lastResetTime: time.Now(),
		logger:        log,
		now:           time.Now,
	}
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allowRequest() {
		return errCircuitOpen
	}

	err := fn()
	cb.recordResult(err)

	return err
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	switch cb.state {
	case StateClosed:
		if now.Sub(cb.lastResetTime) >= cb.config.ResetTimeout {
			cb.failureCount = 0
			cb.lastResetTime = now
		}

		return true
	case StateOpen:
		if now.Sub(cb.lastFailTime) >= cb.config.Timeout {
			cb.state = StateHalfOpen
			cb.successCount = 0
			cb.logger.Info().Msg("Engine circuit breaker half-open")

			return true
		}

		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if isEngineFault(err) {
		cb.onFailure()
		return
	}

	cb.onSuccess()
}

// isEngineFault reports whether err says the engine is unreachable or
// unhealthy. Rejections come from a working engine and caller cancellation
// says nothing about it.
func isEngineFault(err error) bool {
	return err != nil && !errors.Is(err, ErrEngineRejected) && !errors.Is(err, context.Canceled)
}

func (cb *CircuitBreaker) onFailure() {
	cb.failureCount++
	cb.lastFailTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.logger.Warn().
				Int("failure_count", cb.failureCount).
				Msg("Engine circuit breaker opened")
		}
	case StateHalfOpen:
		cb.state = StateOpen
		cb.logger.Warn().Msg("Engine circuit breaker reopened after failed probe")
	case StateOpen:
	}
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.state = StateClosed
			cb.failureCount = 0
			cb.lastResetTime = cb.now()
			cb.logger.Info().Msg("Engine circuit breaker closed")
		}
	case StateClosed:
		cb.failureCount = 0
		cb.lastResetTime = cb.now()
	case StateOpen:
	}
}
