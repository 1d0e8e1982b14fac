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

package mapping

import (
	"context"

	"github.com/carverauto/hubsync/pkg/hub"
	"github.com/carverauto/hubsync/pkg/models"
)

//go:generate mockgen -destination=mock_mapping.go -package=mapping github.com/carverauto/hubsync/pkg/mapping Remote

// Remote is the mapping half of the Hub API for one bound identifier.
type Remote interface {
	FetchMappings(ctx context.Context, localVersion int64) (hub.MappingResult, error)
	AckMappings(ctx context.Context, version int64) error
}

// RemoteFactory builds a Remote for hubID.
type RemoteFactory func(hubID string) Remote

// EndpointSink receives endpoint records bundled with a mapping snapshot.
type EndpointSink interface {
	Apply(rec *models.EndpointRecord)
}
