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

package identity

import (
	"context"

	"github.com/carverauto/hubsync/pkg/models"
)

//go:generate mockgen -destination=mock_identity.go -package=identity github.com/carverauto/hubsync/pkg/identity Registrar

// Registrar announces this instance to the Hub.
type Registrar interface {
	Register(ctx context.Context, req models.RegistrationRequest) (*models.RegistrationResponse, error)
}

// Listener observes identifier changes. It is called synchronously with the
// previous and the new identifier; either may be empty.
type Listener func(oldID, newID string)
