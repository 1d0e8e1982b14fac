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

// Package policy holds the in-memory column to policy mapping read on every crypto call.
package policy

import (
	"sync/atomic"

	"github.com/carverauto/hubsync/pkg/models"
)

// FieldRef identifies a column. DatasourceID and Schema are optional.
type FieldRef struct {
	DatasourceID string
	Schema       string
	Table        string
	Column       string
}

// Snapshot is an immutable view of the mapping at one version.
type Snapshot struct {
	Epoch    int64
	Version  int64
	Mappings map[string]string
}

// Cache publishes snapshots by pointer swap. Readers never block and never
// observe a partially applied mapping.
type Cache struct {
	current atomic.Pointer[Snapshot]
}

func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(&Snapshot{Mappings: map[string]string{}})

	return c
}

// Replace installs a full mapping. The map is copied.
func (c *Cache) Replace(epoch, version int64, mappings map[string]string) {
	c.current.Store(&Snapshot{
		Epoch:    epoch,
		Version:  version,
		Mappings: models.CloneMappings(mappings),
	})
}

// SetVersion keeps the mappings and moves the version stamp.
func (c *Cache) SetVersion(epoch, version int64) {
	cur := c.current.Load()
	c.current.Store(&Snapshot{Epoch: epoch, Version: version, Mappings: cur.Mappings})
}

// Snapshot returns the current view. Callers must not mutate Mappings.
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// Version returns the epoch and version of the current view.
func (c *Cache) Version() (epoch, version int64) {
	s := c.current.Load()

	return s.Epoch, s.Version
}

// Len returns the number of known columns.
func (c *Cache) Len() int {
	return len(c.current.Load().Mappings)
}

// Lookup resolves ref through the chain
// "ds:schema.table.column" -> "schema.table.column" -> "table.column".
// known is false when no key matches; an empty policy with known true means
// the column is recognized but not protected.
func (c *Cache) Lookup(ref FieldRef) (policy string, known bool) {
	m := c.current.Load().Mappings

	for _, key := range candidateKeys(ref) {
		if p, ok := m[key]; ok {
			return p, true
		}
	}

	return "", false
}

// LookupKey resolves an already formatted key, without fallback.
func (c *Cache) LookupKey(key string) (string, bool) {
	p, ok := c.current.Load().Mappings[models.NormalizeKey(key)]

	return p, ok
}

func candidateKeys(ref FieldRef) []string {
	keys := make([]string, 0, 3)

	if ref.DatasourceID != "" {
		keys = append(keys, models.ColumnKey(ref.DatasourceID, ref.Schema, ref.Table, ref.Column))
	}

	if ref.Schema != "" {
		keys = append(keys, models.ColumnKey("", ref.Schema, ref.Table, ref.Column))
	}

	return append(keys, models.ColumnKey("", "", ref.Table, ref.Column))
}
