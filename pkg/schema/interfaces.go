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
	"context"

	"github.com/carverauto/hubsync/pkg/hub"
	"github.com/carverauto/hubsync/pkg/models"
)

//go:generate mockgen -destination=mock_schema.go -package=schema github.com/carverauto/hubsync/pkg/schema Probe,Pusher

// Probe inventories the locally visible columns subject to interception.
// An empty result is valid and means no sensitive fields were found.
type Probe interface {
	Collect(ctx context.Context) ([]models.SchemaEntry, error)
	Capable(ctx context.Context) error
	Close()
}

// Pusher delivers a schema inventory to the Hub for one bound identifier.
type Pusher interface {
	PushSchema(ctx context.Context, entries []models.SchemaEntry, version int64) (hub.PushOutcome, error)
}

// PusherFactory builds a Pusher for hubID.
type PusherFactory func(hubID string) Pusher
