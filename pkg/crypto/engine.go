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

package crypto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Operation is an engine transformation.
type Operation string

const (
	OpEncrypt Operation = "encrypt"
	OpDecrypt Operation = "decrypt"
)

const maxErrorBody = 512

// ErrEngineRejected marks answers from a reachable engine that refused or
// garbled the request. They are returned to the caller and never fail open.
var ErrEngineRejected = errors.New("crypto engine rejected request")

var (
	errEngineStatus      = errors.New("unexpected engine status")
	errBatchSizeMismatch = fmt.Errorf("%w: engine returned a different number of values", ErrEngineRejected)
)

type transformRequest struct {
	Policy string `json:"policy"`
	Value  string `json:"value"`
}

type transformResponse struct {
	Value string `json:"value"`
}

type batchRequest struct {
	Policy string   `json:"policy"`
	Values []string `json:"values"`
}

type batchResponse struct {
	Values []string `json:"values"`
}

// HTTPEngine calls the crypto engine's JSON API.
type HTTPEngine struct {
	client *http.Client
}

func NewHTTPEngine(client *http.Client) *HTTPEngine {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPEngine{client: client}
}

func (e *HTTPEngine) Transform(ctx context.Context, baseURL string, op Operation, policy, value string) (string, error) {
	var resp transformResponse

	if err := e.post(ctx, baseURL, "/api/v1/"+string(op), transformRequest{Policy: policy, Value: value}, &resp); err != nil {
		return "", err
	}

	return resp.Value, nil
}

func (e *HTTPEngine) TransformBatch(ctx context.Context, baseURL string, op Operation, policy string, values []string) ([]string, error) {
	var resp batchResponse

	if err := e.post(ctx, baseURL, "/api/v1/batch/"+string(op), batchRequest{Policy: policy, Values: values}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Values) != len(values) {
		return nil, fmt.Errorf("%w: sent %d, got %d", errBatchSizeMismatch, len(values), len(resp.Values))
	}

	return resp.Values, nil
}

func (e *HTTPEngine) post(ctx context.Context, baseURL, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal engine request: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.New().String())

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		cause := errEngineStatus
		if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
			cause = ErrEngineRejected
		}

		return fmt.Errorf("%w %d: %s", cause, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode engine response: %w", ErrEngineRejected, err)
	}

	return nil
}
