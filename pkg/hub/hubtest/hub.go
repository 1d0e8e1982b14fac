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

// Package hubtest provides in-memory Hub and crypto engine servers for tests
// and local development.
package hubtest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"github.com/carverauto/hubsync/pkg/hub"
	"github.com/carverauto/hubsync/pkg/models"
)

// Registration records one call to the register endpoint.
type Registration struct {
	HubID   string
	Request models.RegistrationRequest
}

// Hub is a fake Hub. All exported methods are safe for concurrent use.
type Hub struct {
	mu sync.Mutex

	nextID     int
	reuseIDs   bool
	instances  map[string]string // hubID -> alias
	aliasIndex map[string]string // alias -> hubID

	mappingVersion    int64
	mappings          map[string]string
	advertisedVersion int64
	bundleEndpoint    bool

	endpoint *models.EndpointRecord

	schemas      map[string][]models.SchemaEntry
	schemaHashes map[string]string
	rejectSchema bool

	unavailable bool

	registrations []Registration
	schemaPushes  map[string]int
	acks          map[string][]int64
	lastHeaders   http.Header
}

// NewHub returns an empty fake Hub issuing identifiers hub-1, hub-2, ...
func NewHub() *Hub {
	return &Hub{
		instances:    make(map[string]string),
		aliasIndex:   make(map[string]string),
		mappings:     make(map[string]string),
		schemas:      make(map[string][]models.SchemaEntry),
		schemaHashes: make(map[string]string),
		schemaPushes: make(map[string]int),
		acks:         make(map[string][]int64),
	}
}

// Router exposes the Hub API.
func (h *Hub) Router() http.Handler {
	r := mux.NewRouter()

	r.Use(h.availability)
	r.HandleFunc(hub.PathRegister, h.handleRegister).Methods(http.MethodPost)
	r.HandleFunc(hub.PathMappings, h.handleMappings).Methods(http.MethodGet)
	r.HandleFunc(hub.PathMappingsAck, h.handleAck).Methods(http.MethodPost)
	r.HandleFunc(hub.PathEndpoint, h.handleEndpoint).Methods(http.MethodGet)
	r.HandleFunc(hub.PathSchema, h.handleSchema).Methods(http.MethodPost)

	return r
}

// Start serves the Hub on a local test server.
func (h *Hub) Start() *httptest.Server {
	return httptest.NewServer(h.Router())
}

// ReuseIDs makes registration return the alias's existing identifier when it is still known.
func (h *Hub) ReuseIDs(reuse bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.reuseIDs = reuse
}

// SetMappings publishes a new mapping version.
func (h *Hub) SetMappings(version int64, mappings map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.mappingVersion = version
	h.mappings = models.CloneMappings(mappings)
}

// AdvertiseVersion makes 304 answers carry version in X-Hub-Version.
func (h *Hub) AdvertiseVersion(version int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.advertisedVersion = version
}

// SetEndpoint publishes an endpoint record. With bundle set, it is also
// attached to changed mapping snapshots.
func (h *Hub) SetEndpoint(rec *models.EndpointRecord, bundle bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.endpoint = rec
	h.bundleEndpoint = bundle
}

// SetUnavailable makes every call fail with 503.
func (h *Hub) SetUnavailable(down bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unavailable = down
}

// RejectSchema makes schema pushes answer 422.
func (h *Hub) RejectSchema(reject bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rejectSchema = reject
}

// Forget drops hubID so later calls with it answer 404.
func (h *Hub) Forget(hubID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if alias, ok := h.instances[hubID]; ok {
		delete(h.aliasIndex, alias)
	}

	delete(h.instances, hubID)
	delete(h.schemaHashes, hubID)
}

// Registrations returns a copy of every registration seen.
func (h *Hub) Registrations() []Registration {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]Registration(nil), h.registrations...)
}

// SchemaPushes returns how many accepted pushes hubID sent.
func (h *Hub) SchemaPushes(hubID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.schemaPushes[hubID]
}

// TotalSchemaPushes sums accepted pushes across identifiers.
func (h *Hub) TotalSchemaPushes() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for _, n := range h.schemaPushes {
		total += n
	}

	return total
}

// Schema returns the last schema pushed by hubID.
func (h *Hub) Schema(hubID string) []models.SchemaEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]models.SchemaEntry(nil), h.schemas[hubID]...)
}

// Acks returns the versions acknowledged by hubID.
func (h *Hub) Acks(hubID string) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]int64(nil), h.acks[hubID]...)
}

// LastHeaders returns the headers of the most recent request.
func (h *Hub) LastHeaders() http.Header {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.lastHeaders.Clone()
}

func (h *Hub) availability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		down := h.unavailable
		h.lastHeaders = r.Header.Clone()
		h.mu.Unlock()

		if down {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// knownInstance resolves the caller or writes 404. Must hold h.mu.
func (h *Hub) knownInstance(w http.ResponseWriter, r *http.Request) (string, bool) {
	hubID := r.Header.Get(hub.HeaderInstanceID)
	if _, ok := h.instances[hubID]; !ok || hubID == "" {
		http.Error(w, "unknown instance", http.StatusNotFound)
		return "", false
	}

	return hubID, true
}

func (h *Hub) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Alias == "" {
		http.Error(w, "invalid registration", http.StatusBadRequest)
		return
	}

	h.mu.Lock()

	hubID, ok := h.aliasIndex[req.Alias]
	if !ok || !h.reuseIDs {
		h.nextID++
		hubID = fmt.Sprintf("hub-%d", h.nextID)
	}

	h.instances[hubID] = req.Alias
	h.aliasIndex[req.Alias] = hubID
	h.registrations = append(h.registrations, Registration{HubID: hubID, Request: req})
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, models.RegistrationResponse{HubID: hubID})
}

func (h *Hub) handleMappings(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.knownInstance(w, r); !ok {
		return
	}

	local, _ := strconv.ParseInt(r.Header.Get(hub.HeaderVersion), 10, 64)

	if local >= h.mappingVersion {
		if h.advertisedVersion > local {
			w.Header().Set(hub.HeaderVersion, strconv.FormatInt(h.advertisedVersion, 10))
		}

		w.WriteHeader(http.StatusNotModified)

		return
	}

	snap := models.MappingSnapshot{
		Version:  h.mappingVersion,
		Mappings: models.CloneMappings(h.mappings),
	}

	if h.bundleEndpoint && h.endpoint != nil {
		rec := *h.endpoint
		snap.Endpoint = &rec
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *Hub) handleAck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Version int64 `json:"version"`
	}

	_ = json.NewDecoder(r.Body).Decode(&body)

	h.mu.Lock()
	defer h.mu.Unlock()

	hubID, ok := h.knownInstance(w, r)
	if !ok {
		return
	}

	h.acks[hubID] = append(h.acks[hubID], body.Version)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Hub) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.knownInstance(w, r); !ok {
		return
	}

	local, _ := strconv.ParseInt(r.Header.Get(hub.HeaderVersion), 10, 64)

	if h.endpoint == nil || (local > 0 && local >= h.endpoint.Version) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	writeJSON(w, http.StatusOK, h.endpoint)
}

func (h *Hub) handleSchema(w http.ResponseWriter, r *http.Request) {
	var req models.SchemaPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid schema payload", http.StatusUnprocessableEntity)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	hubID, ok := h.knownInstance(w, r)
	if !ok {
		return
	}

	if h.rejectSchema || !validEntries(req.Entries) {
		http.Error(w, "schema rejected", http.StatusUnprocessableEntity)
		return
	}

	hash := hashEntries(req.Entries)
	if prev, seen := h.schemaHashes[hubID]; seen && prev == hash {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.schemaHashes[hubID] = hash
	h.schemas[hubID] = req.Entries
	h.schemaPushes[hubID]++

	writeJSON(w, http.StatusOK, map[string]int{"accepted": len(req.Entries)})
}

func validEntries(entries []models.SchemaEntry) bool {
	for _, e := range entries {
		if e.TableName == "" || e.ColumnName == "" {
			return false
		}
	}

	return true
}

func hashEntries(entries []models.SchemaEntry) string {
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key()+"="+e.ColumnType+"/"+e.PolicyName)
	}

	sort.Strings(keys)

	sum := sha256.New()
	for _, k := range keys {
		sum.Write([]byte(k))
		sum.Write([]byte{0})
	}

	return hex.EncodeToString(sum.Sum(nil))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
