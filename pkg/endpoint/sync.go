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

package endpoint

import (
	"context"
	"sync"

	"github.com/carverauto/hubsync/pkg/hub"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/store"
)

// SyncClient pulls the endpoint record from the Hub into the Cache and the EndpointStore.
type SyncClient struct {
	cache   *Cache
	store   store.EndpointStore
	factory RemoteFactory
	logger  logger.Logger

	mu     sync.RWMutex
	remote Remote
}

func NewSyncClient(cache *Cache, st store.EndpointStore, factory RemoteFactory, log logger.Logger) *SyncClient {
	return &SyncClient{
		cache:   cache,
		store:   st,
		factory: factory,
		logger:  log,
	}
}

// Bind switches to hubID. An empty id unbinds.
func (s *SyncClient) Bind(hubID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if hubID == "" {
		s.remote = nil
		return
	}

	s.remote = s.factory(hubID)
}

func (s *SyncClient) current() Remote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.remote
}

// Version returns the version token of the cached record, 0 when none is
// cached or the token was reset.
func (s *SyncClient) Version() int64 {
	if rec := s.cache.Get(); rec != nil {
		return rec.Version
	}

	return 0
}

// ResetVersion restarts the version token at 0 after the Hub forgot this
// instance, so the next pull fetches the record issued to the new identity.
// The cached record stays usable until then.
func (s *SyncClient) ResetVersion() {
	rec := s.cache.Get()
	if rec == nil || rec.Version == 0 {
		return
	}

	cp := *rec
	cp.Version = 0

	s.cache.Set(&cp)

	if err := s.store.Save(cp); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist endpoint, continuing from memory")
	}

	s.logger.Info().Int64("previous_version", rec.Version).Msg("Endpoint version reset")
}

// Restore loads the persisted record into the cache when the cache is empty.
func (s *SyncClient) Restore() bool {
	if s.cache.Get() != nil {
		return false
	}

	rec, ok := s.store.Load()
	if !ok {
		return false
	}

	s.cache.Set(&rec)
	s.logger.Debug().Str("crypto_url", rec.CryptoURL).Int64("version", rec.Version).Msg("Restored persisted endpoint")

	return true
}

// Apply installs rec in the cache and persists it.
func (s *SyncClient) Apply(rec *models.EndpointRecord) {
	if rec == nil {
		return
	}

	s.cache.Set(rec)

	if err := s.store.Save(*rec); err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist endpoint, continuing from memory")
	}

	s.logger.Info().
		Str("crypto_url", rec.CryptoURL).
		Int64("version", rec.Version).
		Bool("stats_enabled", rec.StatsAggregatorEnabled).
		Msg("Endpoint updated")
}

// Refresh runs one version-gated pull. Transport and protocol failures fall
// back to the persisted record and report Unmodified.
func (s *SyncClient) Refresh(ctx context.Context) hub.Outcome {
	remote := s.current()
	if remote == nil {
		s.Restore()
		return hub.Unmodified
	}

	local := s.Version()

	res, err := remote.FetchEndpoint(ctx, local)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Endpoint refresh failed, using last known endpoint")
		s.Restore()

		return hub.Unmodified
	}

	switch res.Outcome {
	case hub.Changed:
		s.Apply(res.Record)
	case hub.NotFound:
		s.logger.Debug().Msg("Hub does not know this instance during endpoint refresh")
	case hub.Unmodified:
	}

	return res.Outcome
}
