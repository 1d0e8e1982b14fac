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

package hubtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/mux"
)

// Engine is a fake crypto engine. Encrypt wraps a value as "enc:<policy>:<value>".
type Engine struct {
	mu          sync.Mutex
	unavailable bool
	calls       int
	batchSizes  []int
}

func NewEngine() *Engine {
	return &Engine{}
}

// Router exposes the engine API.
func (e *Engine) Router() http.Handler {
	r := mux.NewRouter()

	r.Use(e.availability)
	r.HandleFunc("/api/v1/{op:encrypt|decrypt}", e.handleSingle).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/batch/{op:encrypt|decrypt}", e.handleBatch).Methods(http.MethodPost)

	return r
}

// Start serves the engine on a local test server.
func (e *Engine) Start() *httptest.Server {
	return httptest.NewServer(e.Router())
}

// SetUnavailable makes every call fail with 503.
func (e *Engine) SetUnavailable(down bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.unavailable = down
}

// Calls returns the number of requests served.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.calls
}

// BatchSizes returns the size of every batch request received.
func (e *Engine) BatchSizes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]int(nil), e.batchSizes...)
}

func (e *Engine) availability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		down := e.unavailable
		e.calls++
		e.mu.Unlock()

		if down {
			http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Transform applies the fake engine's operation to one value.
func Transform(op, policy, value string) string {
	prefix := "enc:" + policy + ":"

	if op == "encrypt" {
		return prefix + value
	}

	return strings.TrimPrefix(value, prefix)
}

func (e *Engine) handleSingle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Policy string `json:"policy"`
		Value  string `json:"value"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"value": Transform(mux.Vars(r)["op"], req.Policy, req.Value)})
}

func (e *Engine) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Policy string   `json:"policy"`
		Values []string `json:"values"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	e.mu.Lock()
	e.batchSizes = append(e.batchSizes, len(req.Values))
	e.mu.Unlock()

	op := mux.Vars(r)["op"]
	out := make([]string, len(req.Values))

	for i, v := range req.Values {
		out[i] = Transform(op, req.Policy, v)
	}

	writeJSON(w, http.StatusOK, map[string][]string{"values": out})
}
