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

package models

import (
	"os"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// DefaultAlias returns the host name, used when no alias is configured.
func DefaultAlias() string {
	if info, err := host.Info(); err == nil && info.Hostname != "" {
		return strings.ToLower(info.Hostname)
	}

	if name, err := os.Hostname(); err == nil {
		return strings.ToLower(name)
	}

	return ""
}
