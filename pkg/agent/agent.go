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

// Package agent wires the hubsync components together and runs the sync loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/carverauto/hubsync/pkg/crypto"
	"github.com/carverauto/hubsync/pkg/endpoint"
	"github.com/carverauto/hubsync/pkg/hub"
	"github.com/carverauto/hubsync/pkg/identity"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/mapping"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/policy"
	"github.com/carverauto/hubsync/pkg/schema"
	"github.com/carverauto/hubsync/pkg/store"
	"github.com/carverauto/hubsync/pkg/telemetry"
	"github.com/carverauto/hubsync/pkg/transport"
)

var errConfigRequired = errors.New("agent config is required")

// Agent owns every hubsync component for one alias and Hub.
type Agent struct {
	config *models.AgentConfig
	logger logger.Logger

	layout   store.Layout
	security transport.SecurityProvider

	policies  *policy.Cache
	endpoints *endpoint.Cache

	identity     *identity.Manager
	mappings     *mapping.Client
	endpointSync *endpoint.SyncClient
	probe        schema.Probe
	schema       *schema.Executor
	telemetry    *telemetry.Emitter
	crypto       *crypto.Adapter
	loop         *SyncLoop

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Option customizes New.
type Option func(*options)

type options struct {
	httpClient *http.Client
	probe      schema.Probe
}

// WithHTTPClient replaces the client used for Hub, engine and telemetry calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithProbe replaces the probe selected by configuration.
func WithProbe(p schema.Probe) Option {
	return func(o *options) { o.probe = p }
}

// New builds an agent from cfg. cfg must already carry defaults.
func New(ctx context.Context, cfg *models.AgentConfig, log logger.Logger, opts ...Option) (*Agent, error) {
	if cfg == nil {
		return nil, errConfigRequired
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	timeout := time.Duration(cfg.RequestTimeout)

	security, err := transport.NewSecurityProvider(ctx, cfg.Security, log.WithComponent("security"))
	if err != nil {
		return nil, fmt.Errorf("failed to create security provider: %w", err)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient, err = transport.NewHTTPClient(ctx, security, timeout)
		if err != nil {
			_ = security.Close()
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
	}

	tlsConfig, err := security.ClientTLSConfig(ctx)
	if err != nil {
		_ = security.Close()
		return nil, err
	}

	hubClient, err := hub.NewClient(hub.Config{
		BaseURL:    cfg.HubURL,
		Alias:      cfg.Alias,
		TenantID:   cfg.TenantID,
		Timeout:    timeout,
		HTTPClient: httpClient,
	}, log.WithComponent("hub"))
	if err != nil {
		_ = security.Close()
		return nil, err
	}

	probe := o.probe
	if probe == nil {
		probe, err = schema.NewProbe(ctx, cfg.Schema, log.WithComponent("schema"))
		if err != nil {
			_ = security.Close()
			return nil, err
		}
	}

	layout := store.NewLayout(cfg.StateDir, cfg.Alias, hubClient.BaseURL())
	stores := store.Open(layout, log.WithComponent("store"))

	a := &Agent{
		config:    cfg,
		logger:    log,
		layout:    layout,
		security:  security,
		policies:  policy.NewCache(),
		endpoints: endpoint.NewCache(),
		probe:     probe,
	}

	a.identity = identity.NewManager(identity.Config{
		Alias:         cfg.Alias,
		RemoteBaseURL: hubClient.BaseURL(),
		Datasources:   cfg.Datasources,
		Host:          HostDescriptor(log),
	}, stores.Identity, hubClient, log.WithComponent("identity"))

	a.endpointSync = endpoint.NewSyncClient(a.endpoints, stores.Endpoint,
		func(hubID string) endpoint.Remote { return hubClient.Bind(hubID) }, log.WithComponent("endpoint"))

	a.mappings = mapping.NewClient(a.policies, stores.Mapping, a.endpointSync,
		func(hubID string) mapping.Remote { return hubClient.Bind(hubID) }, log.WithComponent("mapping"))

	a.schema = schema.NewExecutor(probe, schema.NewInventory(stores.Schema, log.WithComponent("schema")), a.policies,
		func(hubID string) schema.Pusher { return hubClient.Bind(hubID) }, cfg.Retry, log.WithComponent("schema"))

	a.identity.AddListener(a.rebind)

	a.telemetry = telemetry.NewEmitter(a.endpoints.Get, telemetry.Config{
		PublishTimeout: timeout,
		HTTPClient:     httpClient,
		TLS:            tlsConfig,
	}, log.WithComponent("telemetry"))

	a.crypto = crypto.NewAdapter(crypto.NewHTTPEngine(httpClient), a.endpoints, a.policies, a.telemetry,
		a.identity.HubID, crypto.Config{
			FailOpen:         cfg.IsFailOpen(),
			MaxBatchSize:     cfg.Crypto.MaxBatchSize,
			BatchConcurrency: cfg.Crypto.BatchConcurrency,
			Alias:            cfg.Alias,
			Breaker:          crypto.BreakerConfigFrom(cfg.Crypto.Breaker),
		}, log.WithComponent("crypto"))

	a.loop = NewSyncLoop(a.identity, a.mappings, a.endpointSync, a.schema, a.policies,
		time.Duration(cfg.PollInterval), log.WithComponent("sync"))

	return a, nil
}

// rebind points every Hub-facing client at the new identifier.
func (a *Agent) rebind(oldID, newID string) {
	a.mappings.Bind(newID)
	a.endpointSync.Bind(newID)
	a.schema.Bind(newID)

	a.logger.Debug().Str("old_hub_id", oldID).Str("new_hub_id", newID).Msg("Hub clients rebound")
}

// Start restores durable state and launches the sync loop. It does not block.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.mappings.Restore()
	a.endpointSync.Restore()
	a.identity.Load()

	if err := a.probe.Capable(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Schema probe is not usable yet, collection will be retried")
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.telemetry.Start(runCtx)

	go a.loop.Start(runCtx)

	a.logger.Info().
		Str("alias", a.config.Alias).
		Str("hub_url", a.config.HubURL).
		Str("state_dir", a.layout.Dir).
		Bool("fail_open", a.config.IsFailOpen()).
		Msg("Agent started")

	return nil
}

// Stop cancels the sync loop and waits for the in-flight tick, bounded by ctx.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}

	// Queued telemetry is published before the run context goes away.
	a.telemetry.Stop()
	cancel()

	select {
	case <-a.loop.Done():
	case <-ctx.Done():
		a.logger.Warn().Msg("Timed out waiting for the sync loop to stop")
	}

	a.probe.Close()

	if err := a.security.Close(); err != nil {
		a.logger.Debug().Err(err).Msg("Failed to close security provider")
	}

	a.logger.Info().Msg("Agent stopped")

	return nil
}

// Tick runs one sync step synchronously.
func (a *Agent) Tick(ctx context.Context) string {
	return a.loop.Tick(ctx)
}

// Crypto returns the request-path crypto adapter.
func (a *Agent) Crypto() *crypto.Adapter {
	return a.crypto
}

// Policies returns the policy cache.
func (a *Agent) Policies() *policy.Cache {
	return a.policies
}

// Identity returns the identity manager.
func (a *Agent) Identity() *identity.Manager {
	return a.identity
}

// Endpoints returns the endpoint cache.
func (a *Agent) Endpoints() *endpoint.Cache {
	return a.endpoints
}

// Schema returns the schema executor.
func (a *Agent) Schema() *schema.Executor {
	return a.schema
}

// Layout returns where durable state is kept.
func (a *Agent) Layout() store.Layout {
	return a.layout
}
