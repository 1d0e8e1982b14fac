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

package agent

import (
	"context"

	"github.com/carverauto/hubsync/pkg/endpoint"
	"github.com/carverauto/hubsync/pkg/hub"
	"github.com/carverauto/hubsync/pkg/identity"
	"github.com/carverauto/hubsync/pkg/mapping"
	"github.com/carverauto/hubsync/pkg/schema"
)

// IdentitySource is the identity manager as seen by the sync loop.
type IdentitySource interface {
	Registered() bool
	HubID() string
	Register(ctx context.Context, bestKnownVersion int64) (string, error)
	MarkUnregistered()
}

// MappingSource is the mapping sync client as seen by the sync loop.
type MappingSource interface {
	Refresh(ctx context.Context) hub.Outcome
	Version() (epoch, version int64)
	ResetEpoch()
}

// EndpointSource is the endpoint sync client as seen by the sync loop.
type EndpointSource interface {
	Refresh(ctx context.Context) hub.Outcome
	Version() int64
	ResetVersion()
}

// SchemaSync is the schema executor as seen by the sync loop.
type SchemaSync interface {
	Sync(ctx context.Context) (hub.PushOutcome, error)
	Pending() bool
	Inventory() *schema.Inventory
}

var (
	_ IdentitySource = (*identity.Manager)(nil)
	_ MappingSource  = (*mapping.Client)(nil)
	_ EndpointSource = (*endpoint.SyncClient)(nil)
	_ SchemaSync     = (*schema.Executor)(nil)
)
