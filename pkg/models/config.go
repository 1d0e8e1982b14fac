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

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carverauto/hubsync/pkg/logger"
)

// Duration is a time.Duration that unmarshals from "30s" style strings or integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errInvalidDuration
	}

	if node.Tag == "!!int" {
		n, err := strconv.ParseInt(node.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(time.Duration(n))

		return nil
	}

	dur, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}

	*d = Duration(dur)

	return nil
}

var (
	errInvalidDuration       = errors.New("invalid duration")
	errHubURLRequired        = errors.New("hub_url is required")
	errHubURLInvalid         = errors.New("hub_url must be an absolute http(s) URL")
	errAliasRequired         = errors.New("alias is required")
	errPollIntervalInvalid   = errors.New("poll_interval must be positive")
	errRequestTimeoutInvalid = errors.New("request_timeout must be positive")
	errRetryInvalid          = errors.New("retry settings must be non-negative")
	errUnknownProbe          = errors.New("unknown schema probe")
	errPostgresDSNRequired   = errors.New("schema.postgres.dsn is required for the postgres probe")
	errBatchSizeInvalid      = errors.New("crypto.max_batch_size must be positive")
)

// Schema probe identifiers.
const (
	ProbeNone     = "none"
	ProbeStatic   = "static"
	ProbePostgres = "postgres"
)

const (
	DefaultPollInterval     = 30 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultMaxRetries       = 3
	DefaultInitialDelay     = time.Second
	DefaultBackoffIncrement = time.Second
	DefaultMaxBatchSize     = 100
	DefaultBatchConcurrency = 4
	DefaultPostgresMarker   = "@encrypted"
)

// AgentConfig is the complete configuration of a hubsync agent.
type AgentConfig struct {
	HubURL         string                 `json:"hub_url" yaml:"hub_url"`
	Alias          string                 `json:"alias" yaml:"alias"`
	TenantID       string                 `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	StateDir       string                 `json:"state_dir,omitempty" yaml:"state_dir,omitempty"`
	PollInterval   Duration               `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	RequestTimeout Duration               `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	FailOpen       *bool                  `json:"fail_open,omitempty" yaml:"fail_open,omitempty"`
	Datasources    []DatasourceDescriptor `json:"datasources,omitempty" yaml:"datasources,omitempty"`
	Schema         SchemaConfig           `json:"schema" yaml:"schema"`
	Retry          RetryConfig            `json:"retry" yaml:"retry"`
	Crypto         CryptoConfig           `json:"crypto" yaml:"crypto"`
	Security       *SecurityConfig        `json:"security,omitempty" yaml:"security,omitempty"`
	Logging        *logger.Config         `json:"logging,omitempty" yaml:"logging,omitempty"`
	Metrics        *MetricsConfig         `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// SchemaConfig selects and configures the schema probe.
type SchemaConfig struct {
	Probe    string          `json:"probe,omitempty" yaml:"probe,omitempty"`
	Entries  []SchemaEntry   `json:"entries,omitempty" yaml:"entries,omitempty"`
	Postgres *PostgresConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
}

// PostgresConfig configures the information_schema probe.
type PostgresConfig struct {
	DSN          string   `json:"dsn" yaml:"dsn"`
	DatasourceID string   `json:"datasource_id,omitempty" yaml:"datasource_id,omitempty"`
	Schemas      []string `json:"schemas,omitempty" yaml:"schemas,omitempty"`
	Marker       string   `json:"marker,omitempty" yaml:"marker,omitempty"`
}

// RetryConfig drives the schema push retry loop.
type RetryConfig struct {
	MaxRetries       int      `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	InitialDelay     Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	BackoffIncrement Duration `json:"backoff_increment,omitempty" yaml:"backoff_increment,omitempty"`
}

// CryptoConfig tunes the crypto adapter.
type CryptoConfig struct {
	MaxBatchSize     int            `json:"max_batch_size,omitempty" yaml:"max_batch_size,omitempty"`
	BatchConcurrency int            `json:"batch_concurrency,omitempty" yaml:"batch_concurrency,omitempty"`
	Breaker          *BreakerConfig `json:"breaker,omitempty" yaml:"breaker,omitempty"`
}

// BreakerConfig configures the engine circuit breaker.
type BreakerConfig struct {
	FailureThreshold int      `json:"failure_threshold,omitempty" yaml:"failure_threshold,omitempty"`
	SuccessThreshold int      `json:"success_threshold,omitempty" yaml:"success_threshold,omitempty"`
	Timeout          Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	ResetTimeout     Duration `json:"reset_timeout,omitempty" yaml:"reset_timeout,omitempty"`
}

// MetricsConfig enables OTLP metric export.
type MetricsConfig struct {
	OTel           *logger.OTelConfig `json:"otel,omitempty" yaml:"otel,omitempty"`
	ExportInterval Duration           `json:"export_interval,omitempty" yaml:"export_interval,omitempty"`
}

// ApplyDefaults fills zero values with defaults.
func (c *AgentConfig) ApplyDefaults() {
	if c.Alias == "" {
		c.Alias = DefaultAlias()
	}

	if c.PollInterval <= 0 {
		c.PollInterval = Duration(DefaultPollInterval)
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = Duration(DefaultRequestTimeout)
	}

	if c.FailOpen == nil {
		failOpen := true
		c.FailOpen = &failOpen
	}

	if c.Schema.Probe == "" {
		if len(c.Schema.Entries) > 0 {
			c.Schema.Probe = ProbeStatic
		} else {
			c.Schema.Probe = ProbeNone
		}
	}

	if c.Schema.Postgres != nil && c.Schema.Postgres.Marker == "" {
		c.Schema.Postgres.Marker = DefaultPostgresMarker
	}

	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = DefaultMaxRetries
	}

	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = Duration(DefaultInitialDelay)
	}

	if c.Retry.BackoffIncrement == 0 {
		c.Retry.BackoffIncrement = Duration(DefaultBackoffIncrement)
	}

	if c.Crypto.MaxBatchSize == 0 {
		c.Crypto.MaxBatchSize = DefaultMaxBatchSize
	}

	if c.Crypto.BatchConcurrency <= 0 {
		c.Crypto.BatchConcurrency = DefaultBatchConcurrency
	}
}

// IsFailOpen reports the effective fail-open flag.
func (c *AgentConfig) IsFailOpen() bool {
	return c.FailOpen == nil || *c.FailOpen
}

// Validate implements config.Validator.
func (c *AgentConfig) Validate() error {
	if c.HubURL == "" {
		return errHubURLRequired
	}

	u, err := url.Parse(c.HubURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", errHubURLInvalid, c.HubURL)
	}

	if c.Alias == "" {
		return errAliasRequired
	}

	if c.PollInterval <= 0 {
		return errPollIntervalInvalid
	}

	if c.RequestTimeout <= 0 {
		return errRequestTimeoutInvalid
	}

	if c.Retry.MaxRetries < 0 || c.Retry.InitialDelay < 0 || c.Retry.BackoffIncrement < 0 {
		return errRetryInvalid
	}

	if c.Crypto.MaxBatchSize <= 0 {
		return errBatchSizeInvalid
	}

	switch c.Schema.Probe {
	case ProbeNone, ProbeStatic:
	case ProbePostgres:
		if c.Schema.Postgres == nil || c.Schema.Postgres.DSN == "" {
			return errPostgresDSNRequired
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownProbe, c.Schema.Probe)
	}

	return nil
}
