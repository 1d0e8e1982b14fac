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

// Package models holds the data types shared by the hubsync agent packages.
package models

// Identity is the Hub-issued addressing record for this instance.
// An empty HubID means the instance is not registered.
type Identity struct {
	HubID         string `json:"hub_id,omitempty"`
	Alias         string `json:"alias"`
	RemoteBaseURL string `json:"remote_base_url"`
}

// Registered reports whether the identity carries a Hub-issued identifier.
func (i Identity) Registered() bool {
	return i.HubID != ""
}

// DatasourceDescriptor describes one physical data source of the embedding process.
// Only sent when the process manages more than one data source.
type DatasourceDescriptor struct {
	ID       string `json:"id" yaml:"id"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
}

// HostDescriptor is informational host metadata attached to registration.
type HostDescriptor struct {
	Hostname        string `json:"hostname,omitempty"`
	OS              string `json:"os,omitempty"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty"`
	AgentVersion    string `json:"agent_version,omitempty"`
}

// RegistrationRequest is the payload sent to the Hub when registering.
type RegistrationRequest struct {
	Alias       string                 `json:"alias"`
	Datasources []DatasourceDescriptor `json:"datasources,omitempty"`
	Host        *HostDescriptor        `json:"host,omitempty"`
	Version     int64                  `json:"version"`
}

// RegistrationResponse is the Hub's answer to a registration.
type RegistrationResponse struct {
	HubID string `json:"hub_id"`
}
