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

package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/policy"
	"github.com/carverauto/hubsync/pkg/store"
)

// Inventory owns the persisted schema record: the last collected entries and
// what was last pushed to which Hub identifier.
type Inventory struct {
	store  store.SchemaStore
	logger logger.Logger

	mu  sync.Mutex
	rec models.SchemaRecord
}

// NewInventory loads the persisted record, if any.
func NewInventory(st store.SchemaStore, log logger.Logger) *Inventory {
	inv := &Inventory{store: st, logger: log}

	if rec, ok := st.Load(); ok {
		inv.rec = rec
	}

	return inv
}

// Entries returns a copy of the current entries.
func (inv *Inventory) Entries() []models.SchemaEntry {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	return append([]models.SchemaEntry(nil), inv.rec.Entries...)
}

// Replace stores freshly collected entries. Policy names already known for a
// column are carried over so a re-collection does not drop them.
func (inv *Inventory) Replace(entries []models.SchemaEntry) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	known := make(map[string]string, len(inv.rec.Entries))
	for _, e := range inv.rec.Entries {
		known[e.Key()] = e.PolicyName
	}

	next := make([]models.SchemaEntry, len(entries))
	for i, e := range entries {
		if e.PolicyName == "" {
			e.PolicyName = known[e.Key()]
		}

		next[i] = e
	}

	inv.rec.Entries = next
	inv.updateLocked()
}

// ApplyPolicies refreshes every entry's policy name from cache without
// re-running collection. Columns the cache does not know keep their name.
func (inv *Inventory) ApplyPolicies(cache *policy.Cache) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	changed := false

	for i := range inv.rec.Entries {
		e := &inv.rec.Entries[i]

		name, known := cache.Lookup(policy.FieldRef{
			DatasourceID: e.DatasourceID,
			Schema:       e.SchemaName,
			Table:        e.TableName,
			Column:       e.ColumnName,
		})
		if !known || name == e.PolicyName {
			continue
		}

		e.PolicyName = name
		changed = true
	}

	if changed {
		inv.updateLocked()
	}

	return changed
}

// NeedsPush reports whether the current entries still have to reach hubID.
func (inv *Inventory) NeedsPush(hubID string) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	return inv.rec.ContentHash == "" ||
		inv.rec.PushedHubID != hubID ||
		inv.rec.PushedHash != inv.rec.ContentHash
}

// MarkPushed records that the current entries reached hubID.
func (inv *Inventory) MarkPushed(hubID string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.rec.PushedHubID = hubID
	inv.rec.PushedHash = inv.rec.ContentHash
	inv.persistLocked()
}

// MarkStale forces the next sync to push.
func (inv *Inventory) MarkStale() {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.rec.PushedHubID = ""
	inv.rec.PushedHash = ""
	inv.persistLocked()
}

// Record returns a copy of the persisted form.
func (inv *Inventory) Record() models.SchemaRecord {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	rec := inv.rec
	rec.Entries = append([]models.SchemaEntry(nil), inv.rec.Entries...)

	return rec
}

func (inv *Inventory) updateLocked() {
	inv.rec.ContentHash = contentHash(inv.rec.Entries)
	inv.persistLocked()
}

func (inv *Inventory) persistLocked() {
	if err := inv.store.Save(inv.rec); err != nil {
		inv.logger.Error().Err(err).Msg("Failed to persist schema inventory, continuing from memory")
	}
}

// contentHash is independent of entry order.
func contentHash(entries []models.SchemaEntry) string {
	sorted := append([]models.SchemaEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key() < sorted[j].Key()
	})

	if sorted == nil {
		sorted = []models.SchemaEntry{}
	}

	payload, err := json.Marshal(sorted)
	if err != nil {
		return ""
	}

	sum := sha256.Sum256(payload)

	return hex.EncodeToString(sum[:])
}
