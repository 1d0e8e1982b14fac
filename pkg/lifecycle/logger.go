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

// Package lifecycle holds process-level helpers shared by the hubsync binaries.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/carverauto/hubsync/pkg/logger"
)

// CreateComponentLogger builds a logger from config tagged with component.
func CreateComponentLogger(ctx context.Context, component string, config *logger.Config) (logger.Logger, error) {
	l, err := logger.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return l.WithComponent(component), nil
}

// InitializeMetrics starts the OTLP metrics pipeline when enabled. A disabled
// pipeline is not an error; instruments then bind to the no-op provider.
func InitializeMetrics(ctx context.Context, cfg logger.MetricsProviderConfig, log logger.Logger) error {
	_, err := logger.InitializeMetrics(ctx, cfg)
	if errors.Is(err, logger.ErrOTelMetricsDisabled) {
		log.Debug().Msg("OTel metrics export disabled")
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	log.Info().Str("endpoint", cfg.OTel.Endpoint).Msg("OTel metrics export enabled")

	return nil
}

// ShutdownLogger shuts down the logger, flushing any pending logs.
func ShutdownLogger() error {
	return logger.Shutdown()
}
