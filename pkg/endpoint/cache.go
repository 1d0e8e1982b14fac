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

// Package endpoint tracks where the crypto engine lives and keeps that record in sync with the Hub.
package endpoint

import (
	"sync/atomic"

	"github.com/carverauto/hubsync/pkg/models"
)

// Cache holds the current endpoint record and the engine health flag.
type Cache struct {
	current  atomic.Pointer[models.EndpointRecord]
	degraded atomic.Bool
}

func NewCache() *Cache {
	return &Cache{}
}

// Get returns the current record or nil. The record must not be mutated.
func (c *Cache) Get() *models.EndpointRecord {
	return c.current.Load()
}

// CryptoURL returns the engine URL, empty when unknown.
func (c *Cache) CryptoURL() string {
	if rec := c.current.Load(); rec != nil {
		return rec.CryptoURL
	}

	return ""
}

// Set replaces the record wholesale. A new URL clears the degraded flag.
func (c *Cache) Set(rec *models.EndpointRecord) {
	if rec == nil {
		return
	}

	cp := *rec
	prev := c.current.Swap(&cp)

	if prev == nil || prev.CryptoURL != cp.CryptoURL {
		c.degraded.Store(false)
	}
}

// MarkDegraded records that the engine could not be reached.
// It returns true when the flag flipped.
func (c *Cache) MarkDegraded() bool {
	return c.degraded.CompareAndSwap(false, true)
}

// MarkHealthy clears the degraded flag and returns true when it flipped.
func (c *Cache) MarkHealthy() bool {
	return c.degraded.CompareAndSwap(true, false)
}

// Degraded reports whether the last engine call failed.
func (c *Cache) Degraded() bool {
	return c.degraded.Load()
}
