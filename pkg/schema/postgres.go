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
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
)

var errPostgresConfigRequired = errors.New("postgres probe requires a dsn")

const defaultPostgresSchema = "public"

// markedColumnsQuery lists columns whose comment carries the marker.
const markedColumnsQuery = `
SELECT c.table_schema,
       c.table_name,
       c.column_name,
       c.data_type,
       c.is_nullable = 'YES',
       COALESCE(c.column_default, '')
FROM information_schema.columns c
JOIN pg_catalog.pg_class pc
  ON pc.relname = c.table_name
JOIN pg_catalog.pg_namespace pn
  ON pn.oid = pc.relnamespace AND pn.nspname = c.table_schema
WHERE c.table_schema = ANY($1)
  AND col_description(pc.oid, c.ordinal_position) LIKE '%' || $2 || '%'
ORDER BY c.table_schema, c.table_name, c.ordinal_position`

// PostgresProbe discovers marked columns through information_schema.
type PostgresProbe struct {
	pool         *pgxpool.Pool
	datasourceID string
	schemas      []string
	marker       string
	logger       logger.Logger
}

// NewPostgresProbe parses cfg and creates a lazily connecting pool.
func NewPostgresProbe(ctx context.Context, cfg *models.PostgresConfig, log logger.Logger) (*PostgresProbe, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, errPostgresConfigRequired
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres probe: failed to parse dsn: %w", err)
	}

	poolConfig.MaxConns = 2
	poolConfig.MinConns = 0

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres probe: failed to initialize pool: %w", err)
	}

	schemas := cfg.Schemas
	if len(schemas) == 0 {
		schemas = []string{defaultPostgresSchema}
	}

	marker := cfg.Marker
	if marker == "" {
		marker = models.DefaultPostgresMarker
	}

	log.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Str("database", poolConfig.ConnConfig.Database).
		Strs("schemas", schemas).
		Str("marker", marker).
		Msg("Postgres schema probe configured")

	return &PostgresProbe{
		pool:         pool,
		datasourceID: cfg.DatasourceID,
		schemas:      schemas,
		marker:       marker,
		logger:       log,
	}, nil
}

// Capable checks that the database is reachable.
func (p *PostgresProbe) Capable(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres probe: %w", err)
	}

	return nil
}

func (p *PostgresProbe) Collect(ctx context.Context) ([]models.SchemaEntry, error) {
	rows, err := p.pool.Query(ctx, markedColumnsQuery, p.schemas, p.marker)
	if err != nil {
		return nil, fmt.Errorf("postgres probe: query failed: %w", err)
	}
	defer rows.Close()

	var entries []models.SchemaEntry

	for rows.Next() {
		entry := models.SchemaEntry{DatasourceID: p.datasourceID}

		if err := rows.Scan(
			&entry.SchemaName,
			&entry.TableName,
			&entry.ColumnName,
			&entry.ColumnType,
			&entry.Nullable,
			&entry.DefaultValue,
		); err != nil {
			return nil, fmt.Errorf("postgres probe: scan failed: %w", err)
		}

		entry.ColumnType = strings.ToLower(entry.ColumnType)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres probe: %w", err)
	}

	p.logger.Debug().Int("columns", len(entries)).Msg("Postgres schema probe collected columns")

	return entries, nil
}

func (p *PostgresProbe) Close() {
	p.pool.Close()
}
