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

// Command hub-mock serves an in-memory Hub and crypto engine for local development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/carverauto/hubsync/pkg/hub/hubtest"
	"github.com/carverauto/hubsync/pkg/lifecycle"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
)

const shutdownTimeout = 5 * time.Second

// seed is the initial Hub content loaded from --seed.
type seed struct {
	MappingVersion int64                  `yaml:"mapping_version"`
	Mappings       map[string]string      `yaml:"mappings"`
	Endpoint       *models.EndpointRecord `yaml:"endpoint"`
	BundleEndpoint bool                   `yaml:"bundle_endpoint"`
	ReuseIDs       bool                   `yaml:"reuse_ids"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	envFile := flag.String("env-file", ".env", "Optional .env file")
	seedPath := flag.String("seed", "", "YAML file with initial mappings and endpoint")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", *envFile, err)
	}

	hubAddr := envOr("HUBMOCK_HUB_ADDR", ":8080")
	engineAddr := envOr("HUBMOCK_ENGINE_ADDR", ":8081")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mockLogger, err := lifecycle.CreateComponentLogger(ctx, "hub-mock", logger.DefaultConfig())
	if err != nil {
		return err
	}

	h := hubtest.NewHub()
	engine := hubtest.NewEngine()

	if *seedPath != "" {
		if err := applySeed(h, *seedPath); err != nil {
			return err
		}
	}

	servers := []*http.Server{
		{Addr: hubAddr, Handler: h.Router(), ReadHeaderTimeout: 5 * time.Second},
		{Addr: engineAddr, Handler: engine.Router(), ReadHeaderTimeout: 5 * time.Second},
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		g.Go(func() error {
			mockLogger.Info().Str("addr", srv.Addr).Msg("Listening")

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				mockLogger.Warn().Err(err).Str("addr", srv.Addr).Msg("Shutdown failed")
			}
		}

		return nil
	})

	return g.Wait()
}

func applySeed(h *hubtest.Hub, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed: %w", err)
	}

	var s seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse seed: %w", err)
	}

	h.ReuseIDs(s.ReuseIDs)

	if s.MappingVersion > 0 {
		h.SetMappings(s.MappingVersion, s.Mappings)
	}

	if s.Endpoint != nil {
		h.SetEndpoint(s.Endpoint, s.BundleEndpoint)
	}

	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
