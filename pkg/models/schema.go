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

// SchemaEntry is one locally discovered column that is subject to interception.
type SchemaEntry struct {
	DatasourceID string `json:"datasource_id,omitempty" yaml:"datasource_id,omitempty"`
	SchemaName   string `json:"schema_name,omitempty" yaml:"schema_name,omitempty"`
	TableName    string `json:"table_name" yaml:"table_name"`
	ColumnName   string `json:"column_name" yaml:"column_name"`
	ColumnType   string `json:"column_type,omitempty" yaml:"column_type,omitempty"`
	Nullable     bool   `json:"nullable" yaml:"nullable"`
	DefaultValue string `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	PolicyName   string `json:"policy_name,omitempty" yaml:"policy_name,omitempty"`
}

// Key returns the fully-qualified column identity, in mapping key format.
func (e SchemaEntry) Key() string {
	return ColumnKey(e.DatasourceID, e.SchemaName, e.TableName, e.ColumnName)
}

// SchemaPushRequest is the body of a schema push. Addressing travels in headers.
type SchemaPushRequest struct {
	Entries []SchemaEntry `json:"entries"`
}

// SchemaRecord is the persisted schema inventory.
type SchemaRecord struct {
	Entries     []SchemaEntry `json:"entries"`
	ContentHash string        `json:"content_hash,omitempty"`
	PushedHash  string        `json:"pushed_hash,omitempty"`
	PushedHubID string        `json:"pushed_hub_id,omitempty"`
}
