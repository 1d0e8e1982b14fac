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

// Package schema inventories local columns and pushes them to the Hub.
package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
)

var errUnknownProbe = errors.New("unknown schema probe")

// NewProbe builds the probe selected by cfg.Probe.
func NewProbe(ctx context.Context, cfg models.SchemaConfig, log logger.Logger) (Probe, error) {
	switch cfg.Probe {
	case "", models.ProbeNone:
		return noneProbe{}, nil
	case models.ProbeStatic:
		return NewStaticProbe(cfg.Entries), nil
	case models.ProbePostgres:
		return NewPostgresProbe(ctx, cfg.Postgres, log)
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownProbe, cfg.Probe)
	}
}

type noneProbe struct{}

func (noneProbe) Collect(context.Context) ([]models.SchemaEntry, error) { return nil, nil }
func (noneProbe) Capable(context.Context) error                         { return nil }
func (noneProbe) Close()                                                {}

// StaticProbe returns entries fixed at construction.
type StaticProbe struct {
	entries []models.SchemaEntry
}

func NewStaticProbe(entries []models.SchemaEntry) *StaticProbe {
	return &StaticProbe{entries: append([]models.SchemaEntry(nil), entries...)}
}

func (p *StaticProbe) Collect(context.Context) ([]models.SchemaEntry, error) {
	return append([]models.SchemaEntry(nil), p.entries...), nil
}

func (*StaticProbe) Capable(context.Context) error { return nil }

func (*StaticProbe) Close() {}
