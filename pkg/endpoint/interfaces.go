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

package endpoint

import (
	"context"

	"github.com/carverauto/hubsync/pkg/hub"
)

//go:generate mockgen -destination=mock_endpoint.go -package=endpoint github.com/carverauto/hubsync/pkg/endpoint Remote

// Remote fetches the endpoint record for one bound hub identifier.
type Remote interface {
	FetchEndpoint(ctx context.Context, localVersion int64) (hub.EndpointResult, error)
}

// RemoteFactory builds a Remote for hubID.
type RemoteFactory func(hubID string) Remote
