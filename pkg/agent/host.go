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
	"github.com/shirou/gopsutil/v3/host"

	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/version"
)

// HostDescriptor gathers the informational host metadata sent on registration.
func HostDescriptor(log logger.Logger) *models.HostDescriptor {
	desc := &models.HostDescriptor{AgentVersion: version.GetVersion()}

	info, err := host.Info()
	if err != nil {
		log.Debug().Err(err).Msg("Host info unavailable")
		return desc
	}

	desc.Hostname = info.Hostname
	desc.OS = info.OS
	desc.Platform = info.Platform
	desc.PlatformVersion = info.PlatformVersion
	desc.KernelVersion = info.KernelVersion

	return desc
}
