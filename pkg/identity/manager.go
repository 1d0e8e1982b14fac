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

// Package identity owns the Hub-issued instance identifier.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/metrics"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/store"
)

var errEmptyHubID = errors.New("registration returned an empty hub id")

// Config describes what this instance announces on registration.
type Config struct {
	Alias         string
	RemoteBaseURL string
	Datasources   []models.DatasourceDescriptor
	Host          *models.HostDescriptor
}

// Manager tracks the identity state machine
// Unregistered -> Registered -> (NotFound) -> Unregistered.
// The in-memory identifier is authoritative; persistence failures are logged.
type Manager struct {
	cfg       Config
	store     store.IdentityStore
	registrar Registrar
	logger    logger.Logger

	mu        sync.RWMutex
	hubID     string
	listeners []Listener
}

func NewManager(cfg Config, st store.IdentityStore, registrar Registrar, log logger.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     st,
		registrar: registrar,
		logger:    log,
	}
}

// AddListener registers fn. Listeners are added during startup, before the
// first Load or Register.
func (m *Manager) AddListener(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, fn)
}

// Load restores the persisted identifier. Listeners see the restore as a
// change from unregistered.
func (m *Manager) Load() {
	rec, ok := m.store.Load()
	if !ok || rec.HubID == "" {
		m.logger.Info().Str("alias", m.cfg.Alias).Msg("No persisted identity, instance is unregistered")
		return
	}

	m.logger.Info().Str("hub_id", rec.HubID).Str("alias", m.cfg.Alias).Msg("Restored persisted identity")
	m.apply(rec.HubID, false)
}

// HubID returns the current identifier, empty when unregistered.
func (m *Manager) HubID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.hubID
}

// Registered reports whether an identifier is held.
func (m *Manager) Registered() bool {
	return m.HubID() != ""
}

func (m *Manager) Alias() string { return m.cfg.Alias }

func (m *Manager) RemoteBaseURL() string { return m.cfg.RemoteBaseURL }

// Identity returns a snapshot of the identity record.
func (m *Manager) Identity() models.Identity {
	return models.Identity{
		HubID:         m.HubID(),
		Alias:         m.cfg.Alias,
		RemoteBaseURL: m.cfg.RemoteBaseURL,
	}
}

// Register announces the instance with bestKnownVersion and adopts the
// returned identifier, which may equal the current one.
func (m *Manager) Register(ctx context.Context, bestKnownVersion int64) (string, error) {
	req := models.RegistrationRequest{
		Alias:   m.cfg.Alias,
		Host:    m.cfg.Host,
		Version: bestKnownVersion,
	}

	// Datasource descriptors only matter when there is more than one source.
	if len(m.cfg.Datasources) > 1 {
		req.Datasources = m.cfg.Datasources
	}

	resp, err := m.registrar.Register(ctx, req)
	if err != nil {
		metrics.RecordRegistration(ctx, "error")
		return "", fmt.Errorf("register %s: %w", m.cfg.Alias, err)
	}

	if resp == nil || resp.HubID == "" {
		metrics.RecordRegistration(ctx, "error")
		return "", errEmptyHubID
	}

	metrics.RecordRegistration(ctx, "ok")

	m.logger.Info().
		Str("hub_id", resp.HubID).
		Int64("version", bestKnownVersion).
		Msg("Registered with hub")

	m.SetHubID(resp.HubID)

	return resp.HubID, nil
}

// SetHubID adopts id. On change it persists, then notifies listeners in order.
func (m *Manager) SetHubID(id string) {
	m.apply(id, true)
}

// MarkUnregistered clears the identifier in memory and on disk.
func (m *Manager) MarkUnregistered() {
	old := m.HubID()
	if !m.apply("", true) {
		return
	}

	m.logger.Warn().Str("hub_id", old).Msg("Hub no longer recognizes this instance, marked unregistered")
}

// apply swaps the identifier and runs listeners outside the lock. With save
// set the new identifier is on disk before any listener runs.
func (m *Manager) apply(id string, save bool) bool {
	m.mu.Lock()
	old := m.hubID

	if old == id {
		m.mu.Unlock()
		return false
	}

	m.hubID = id
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if save {
		m.persist()
	}

	for _, fn := range listeners {
		fn(old, id)
	}

	return true
}

func (m *Manager) persist() {
	if err := m.store.Save(m.Identity()); err != nil {
		m.logger.Error().Err(err).Msg("Failed to persist identity, continuing from memory")
	}
}
