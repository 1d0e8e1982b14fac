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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/carverauto/hubsync/pkg/agent"
	"github.com/carverauto/hubsync/pkg/config"
	"github.com/carverauto/hubsync/pkg/lifecycle"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/hubsync/agent.json", "Path to agent config file")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetFullVersion())
		return nil
	}

	ctx := context.Background()

	var cfg models.AgentConfig

	cfgLoader := config.NewConfig(nil)
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = logger.DefaultConfig()
	}

	agentLogger, err := lifecycle.CreateComponentLogger(ctx, "hubsync-agent", logConfig)
	if err != nil {
		return err
	}

	defer func() {
		if err := lifecycle.ShutdownLogger(); err != nil {
			log.Printf("Failed to shutdown logger: %v", err)
		}
	}()

	if cfg.Metrics != nil {
		metricsCfg := logger.MetricsProviderConfig{
			ServiceName:    "hubsync-agent",
			ServiceVersion: version.GetVersion(),
			OTel:           cfg.Metrics.OTel,
			ExportInterval: time.Duration(cfg.Metrics.ExportInterval),
		}

		if err := lifecycle.InitializeMetrics(ctx, metricsCfg, agentLogger); err != nil {
			return err
		}
	}

	a, err := agent.New(ctx, &cfg, agentLogger)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	return lifecycle.RunUntilSignal(ctx, a, agentLogger)
}
