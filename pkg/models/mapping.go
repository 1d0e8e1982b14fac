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

import "strings"

// MappingSnapshot is a complete policy mapping as served by the Hub.
// A mapping value of "" means the column is known but has no policy applied.
type MappingSnapshot struct {
	Version  int64             `json:"version"`
	Mappings map[string]string `json:"mappings"`
	Endpoint *EndpointRecord   `json:"endpoint,omitempty"`
}

// MappingRecord is the persisted form of the policy mapping.
// Epoch increments every time the Hub forgets this instance; Version restarts at 0.
type MappingRecord struct {
	Epoch    int64             `json:"epoch"`
	Version  int64             `json:"version"`
	Mappings map[string]string `json:"mappings"`
}

// ColumnKey builds the mapping key `[datasourceID:]schema.table.column`.
func ColumnKey(datasourceID, schema, table, column string) string {
	var b strings.Builder

	if datasourceID != "" {
		b.WriteString(datasourceID)
		b.WriteByte(':')
	}

	if schema != "" {
		b.WriteString(schema)
		b.WriteByte('.')
	}

	b.WriteString(table)
	b.WriteByte('.')
	b.WriteString(column)

	return NormalizeKey(b.String())
}

// NormalizeKey lower-cases and trims a mapping key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// CloneMappings returns a normalized copy of m.
func CloneMappings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[NormalizeKey(k)] = strings.TrimSpace(v)
	}

	return out
}
