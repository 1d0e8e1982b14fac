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

// Package mapping keeps the policy cache in sync with the Hub's column to policy mapping.
package mapping

import (
	"context"
	"sync"

	"github.com/carverauto/hubsync/pkg/hub"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/metrics"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/policy"
	"github.com/carverauto/hubsync/pkg/store"
)

// Client runs the version-gated mapping pull. It is the only writer of the
// policy cache and the mapping store.
type Client struct {
	cache     *policy.Cache
	store     store.MappingStore
	endpoints EndpointSink
	factory   RemoteFactory
	logger    logger.Logger

	mu     sync.RWMutex
	remote Remote
}

func NewClient(cache *policy.Cache, st store.MappingStore, endpoints EndpointSink, factory RemoteFactory, log logger.Logger) *Client {
	return &Client{
		cache:     cache,
		store:     st,
		endpoints: endpoints,
		factory:   factory,
		logger:    log,
	}
}

// Bind switches to hubID. An empty id unbinds.
func (c *Client) Bind(hubID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hubID == "" {
		c.remote = nil
		return
	}

	c.remote = c.factory(hubID)
}

func (c *Client) current() Remote {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.remote
}

// Version returns the epoch and version the cache currently holds.
func (c *Client) Version() (epoch, version int64) {
	return c.cache.Version()
}

// Restore loads the persisted record into the cache when the cache is behind it.
func (c *Client) Restore() bool {
	rec, ok := c.store.Load()
	if !ok {
		return false
	}

	if !c.behind(rec) {
		return false
	}

	c.cache.Replace(rec.Epoch, rec.Version, rec.Mappings)

	c.logger.Info().
		Int64("epoch", rec.Epoch).
		Int64("version", rec.Version).
		Int("mappings", len(rec.Mappings)).
		Msg("Restored persisted policy mapping")

	return true
}

func (c *Client) behind(rec models.MappingRecord) bool {
	epoch, version := c.cache.Version()

	switch {
	case rec.Epoch != epoch:
		return rec.Epoch > epoch
	case rec.Version != version:
		return rec.Version > version
	default:
		return c.cache.Len() == 0 && len(rec.Mappings) > 0
	}
}

// Refresh runs one version check. Transport and protocol failures never
// surface: the persisted snapshot is reloaded and Unmodified is reported.
func (c *Client) Refresh(ctx context.Context) hub.Outcome {
	outcome := c.refresh(ctx)
	metrics.RecordMappingRefresh(ctx, outcome.String())

	return outcome
}

func (c *Client) refresh(ctx context.Context) hub.Outcome {
	remote := c.current()
	if remote == nil {
		c.Restore()
		return hub.Unmodified
	}

	epoch, version := c.cache.Version()

	res, err := remote.FetchMappings(ctx, version)
	if err != nil {
		c.logger.Warn().Err(err).Int64("version", version).Msg("Mapping refresh failed, serving cached policies")
		c.Restore()

		return hub.Unmodified
	}

	switch res.Outcome {
	case hub.Unmodified:
		if res.AdvertisedVersion > version {
			c.cache.SetVersion(epoch, res.AdvertisedVersion)
			c.persist()

			c.logger.Debug().
				Int64("from", version).
				Int64("to", res.AdvertisedVersion).
				Msg("Hub advanced mapping version without content change")
		}

		return hub.Unmodified
	case hub.NotFound:
		c.logger.Debug().Msg("Hub does not recognize this instance")
		return hub.NotFound
	case hub.Changed:
		return c.apply(ctx, remote, epoch, version, res.Snapshot)
	default:
		return hub.Unmodified
	}
}

func (c *Client) apply(ctx context.Context, remote Remote, epoch, version int64, snap *models.MappingSnapshot) hub.Outcome {
	if snap == nil {
		c.logger.Error().Msg("Hub reported a changed mapping without a snapshot")
		return hub.Unmodified
	}

	if snap.Version < version {
		c.logger.Error().
			Int64("local_version", version).
			Int64("remote_version", snap.Version).
			Msg("Hub sent an older mapping version, ignoring")

		return hub.Unmodified
	}

	c.cache.Replace(epoch, snap.Version, snap.Mappings)
	c.persist()

	if snap.Endpoint != nil && c.endpoints != nil {
		c.endpoints.Apply(snap.Endpoint)
	}

	c.logger.Info().
		Int64("epoch", epoch).
		Int64("version", snap.Version).
		Int("mappings", len(snap.Mappings)).
		Msg("Applied policy mapping")

	if err := remote.AckMappings(ctx, snap.Version); err != nil {
		c.logger.Debug().Err(err).Int64("version", snap.Version).Msg("Mapping acknowledgement failed")
	}

	return hub.Changed
}

// ResetEpoch starts a new epoch after the Hub forgot this instance. Cached
// mappings stay in place and the version restarts at 0.
func (c *Client) ResetEpoch() {
	epoch, version := c.cache.Version()
	c.cache.SetVersion(epoch+1, 0)
	c.persist()

	c.logger.Info().
		Int64("previous_epoch", epoch).
		Int64("previous_version", version).
		Int64("epoch", epoch+1).
		Msg("Mapping epoch reset")
}

func (c *Client) persist() {
	snap := c.cache.Snapshot()

	rec := models.MappingRecord{
		Epoch:    snap.Epoch,
		Version:  snap.Version,
		Mappings: snap.Mappings,
	}

	if err := c.store.Save(rec); err != nil {
		c.logger.Error().Err(err).Msg("Failed to persist policy mapping, continuing from memory")
	}
}
