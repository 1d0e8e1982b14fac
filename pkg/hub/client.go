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

// Package hub is the HTTP client for the Hub API.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
)

// Request headers carrying addressing metadata.
const (
	HeaderInstanceID = "X-Hub-Instance-Id"
	HeaderVersion    = "X-Hub-Version"
	HeaderAlias      = "X-Hub-Alias"
	HeaderTenant     = "X-Hub-Tenant"
	HeaderRequestID  = "X-Request-Id"
)

// API paths.
const (
	PathRegister    = "/api/v1/instances/register"
	PathMappings    = "/api/v1/mappings"
	PathMappingsAck = "/api/v1/mappings/ack"
	PathEndpoint    = "/api/v1/endpoint"
	PathSchema      = "/api/v1/schema"
)

const (
	defaultTimeout   = 5 * time.Second
	maxErrorBodySize = 512
)

// Outcome is the result of a version-gated pull.
type Outcome int

const (
	Unmodified Outcome = iota
	Changed
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Unmodified:
		return "unmodified"
	case Changed:
		return "changed"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// PushOutcome is the result of a schema push.
type PushOutcome int

const (
	PushAck PushOutcome = iota
	PushUnmodified
	PushRejected
	PushNotFound
)

func (o PushOutcome) String() string {
	switch o {
	case PushAck:
		return "ack"
	case PushUnmodified:
		return "unmodified"
	case PushRejected:
		return "rejected"
	case PushNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// MappingResult is returned by FetchMappings. Snapshot is set only on Changed;
// AdvertisedVersion is set when the Hub reports a newer version without content.
type MappingResult struct {
	Outcome           Outcome
	Snapshot          *models.MappingSnapshot
	AdvertisedVersion int64
}

// EndpointResult is returned by FetchEndpoint.
type EndpointResult struct {
	Outcome Outcome
	Record  *models.EndpointRecord
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Alias      string
	TenantID   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the Hub. Calls that need an instance identifier go through a BoundClient.
type Client struct {
	baseURL  *url.URL
	alias    string
	tenantID string
	timeout  time.Duration
	http     *http.Client
	logger   logger.Logger
	register singleflight.Group
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errBaseURLRequired
	}

	if cfg.Alias == "" {
		return nil, errAliasRequired
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid hub base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  base,
		alias:    cfg.Alias,
		tenantID: cfg.TenantID,
		timeout:  timeout,
		http:     httpClient,
		logger:   log,
	}, nil
}

// BaseURL returns the Hub URL the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Register announces this instance. Concurrent calls share one request.
func (c *Client) Register(ctx context.Context, req models.RegistrationRequest) (*models.RegistrationResponse, error) {
	v, err, _ := c.register.Do(req.Alias, func() (interface{}, error) {
		var resp models.RegistrationResponse

		status, err := c.do(ctx, http.MethodPost, PathRegister, "", req.Version, req, &resp)
		if err != nil {
			return nil, err
		}

		if status != http.StatusOK && status != http.StatusCreated {
			return nil, protocolError("register", "unexpected status %d", status)
		}

		if resp.HubID == "" {
			return nil, fmt.Errorf("%w: register: %w", ErrProtocol, errEmptyHubID)
		}

		return &resp, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.RegistrationResponse), nil
}

// Bind returns a client addressing the Hub as hubID.
func (c *Client) Bind(hubID string) *BoundClient {
	return &BoundClient{client: c, hubID: hubID}
}

// BoundClient carries one hub identifier; a new one is built whenever the identifier changes.
type BoundClient struct {
	client *Client
	hubID  string
}

// HubID returns the identifier this client addresses.
func (b *BoundClient) HubID() string {
	return b.hubID
}

// FetchMappings performs the version-gated mapping pull.
func (b *BoundClient) FetchMappings(ctx context.Context, localVersion int64) (MappingResult, error) {
	if b.hubID == "" {
		return MappingResult{}, errNotBound
	}

	var snap models.MappingSnapshot

	status, hdr, err := b.client.doWithHeaders(ctx, http.MethodGet, PathMappings, b.hubID, localVersion, nil, &snap)
	if err != nil {
		return MappingResult{}, err
	}

	switch status {
	case http.StatusNotModified:
		result := MappingResult{Outcome: Unmodified}

		if raw := hdr.Get(HeaderVersion); raw != "" {
			advertised, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return MappingResult{}, protocolError("fetch mappings", "bad %s header %q", HeaderVersion, raw)
			}

			result.AdvertisedVersion = advertised
		}

		return result, nil
	case http.StatusOK:
		if snap.Mappings == nil {
			snap.Mappings = map[string]string{}
		}

		return MappingResult{Outcome: Changed, Snapshot: &snap}, nil
	case http.StatusNotFound:
		return MappingResult{Outcome: NotFound}, nil
	default:
		return MappingResult{}, protocolError("fetch mappings", "unexpected status %d", status)
	}
}

type ackRequest struct {
	Version int64 `json:"version"`
}

// AckMappings tells the Hub version has been applied.
func (b *BoundClient) AckMappings(ctx context.Context, version int64) error {
	if b.hubID == "" {
		return errNotBound
	}

	status, err := b.client.do(ctx, http.MethodPost, PathMappingsAck, b.hubID, version, ackRequest{Version: version}, nil)
	if err != nil {
		return err
	}

	if status != http.StatusNoContent && status != http.StatusOK {
		return protocolError("ack mappings", "unexpected status %d", status)
	}

	return nil
}

// FetchEndpoint performs the version-gated endpoint pull.
func (b *BoundClient) FetchEndpoint(ctx context.Context, localVersion int64) (EndpointResult, error) {
	if b.hubID == "" {
		return EndpointResult{}, errNotBound
	}

	var rec models.EndpointRecord

	status, err := b.client.do(ctx, http.MethodGet, PathEndpoint, b.hubID, localVersion, nil, &rec)
	if err != nil {
		return EndpointResult{}, err
	}

	switch status {
	case http.StatusNotModified:
		return EndpointResult{Outcome: Unmodified}, nil
	case http.StatusOK:
		return EndpointResult{Outcome: Changed, Record: &rec}, nil
	case http.StatusNotFound:
		return EndpointResult{Outcome: NotFound}, nil
	default:
		return EndpointResult{}, protocolError("fetch endpoint", "unexpected status %d", status)
	}
}

// PushSchema sends the full schema inventory. version is the mapping version
// the instance currently holds.
func (b *BoundClient) PushSchema(ctx context.Context, entries []models.SchemaEntry, version int64) (PushOutcome, error) {
	if b.hubID == "" {
		return PushAck, errNotBound
	}

	if entries == nil {
		entries = []models.SchemaEntry{}
	}

	status, err := b.client.do(ctx, http.MethodPost, PathSchema, b.hubID, version, models.SchemaPushRequest{Entries: entries}, nil)
	if err != nil {
		return PushAck, err
	}

	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent:
		return PushAck, nil
	case http.StatusNotModified:
		return PushUnmodified, nil
	case http.StatusNotFound:
		return PushNotFound, nil
	case http.StatusUnprocessableEntity:
		return PushRejected, nil
	default:
		return PushAck, protocolError("push schema", "unexpected status %d", status)
	}
}

func (c *Client) do(ctx context.Context, method, path, hubID string, version int64, body, out interface{}) (int, error) {
	status, _, err := c.doWithHeaders(ctx, method, path, hubID, version, body, out)

	return status, err
}

// doWithHeaders sends one request. out is decoded for 2xx responses that carry a body.
func (c *Client) doWithHeaders(
	ctx context.Context, method, path, hubID string, version int64, body, out interface{},
) (int, http.Header, error) {
	op := method + " " + path

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s: %w", op, err)
		}

		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s: %w", op, err)
	}

	requestID := uuid.NewString()

	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderAlias, c.alias)
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set(HeaderVersion, strconv.FormatInt(version, 10))

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if hubID != "" {
		req.Header.Set(HeaderInstanceID, hubID)
	}

	if c.tenantID != "" {
		req.Header.Set(HeaderTenant, c.tenantID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug().
		Str("request_id", requestID).
		Str("op", op).
		Int("status", resp.StatusCode).
		Msg("Hub call completed")

	if out != nil && hasBody(resp.StatusCode) {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			if ctx.Err() != nil {
				return 0, nil, transportError(op, err)
			}

			return 0, nil, protocolError(op, "decode response: %v", err)
		}

		return resp.StatusCode, resp.Header, nil
	}

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound &&
		resp.StatusCode != http.StatusUnprocessableEntity {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

		return 0, nil, protocolError(op, "status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, resp.Header, nil
}

func hasBody(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices && status != http.StatusNoContent
}
