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

package models

import "time"

// StatsAggregatorMode selects how telemetry events are shipped.
type StatsAggregatorMode string

const (
	StatsModeHTTP StatsAggregatorMode = "http"
	StatsModeNATS StatsAggregatorMode = "nats"
)

// EndpointRecord tells the crypto adapter where the Engine lives and how to report telemetry.
type EndpointRecord struct {
	CryptoURL              string              `json:"crypto_url" yaml:"crypto_url"`
	Version                int64               `json:"version" yaml:"version"`
	StatsAggregatorEnabled bool                `json:"stats_aggregator_enabled" yaml:"stats_aggregator_enabled"`
	StatsAggregatorURL     string              `json:"stats_aggregator_url,omitempty" yaml:"stats_aggregator_url,omitempty"`
	StatsAggregatorMode    StatsAggregatorMode `json:"stats_aggregator_mode,omitempty" yaml:"stats_aggregator_mode,omitempty"`
	SlowThresholdMs        int64               `json:"slow_threshold_ms,omitempty" yaml:"slow_threshold_ms,omitempty"`
}

// SlowThreshold returns the slow-call threshold, zero when disabled.
func (e *EndpointRecord) SlowThreshold() time.Duration {
	if e == nil || e.SlowThresholdMs <= 0 {
		return 0
	}

	return time.Duration(e.SlowThresholdMs) * time.Millisecond
}

// TelemetryEnabled reports whether telemetry events should be emitted.
func (e *EndpointRecord) TelemetryEnabled() bool {
	return e != nil && e.StatsAggregatorEnabled && e.StatsAggregatorURL != ""
}
