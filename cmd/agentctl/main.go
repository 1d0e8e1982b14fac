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

// Command agentctl inspects and resets the durable state of a hubsync agent.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/carverauto/hubsync/pkg/config"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/store"
)

var errUnknownRecord = errors.New("unknown record, expected identity|mapping|endpoint|schema")

type options struct {
	configPath string
	stateDir   string
	alias      string
	hubURL     string
	yes        bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Inspect the durable state of a hubsync agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Agent config file; flags below override it")
	root.PersistentFlags().StringVar(&opts.stateDir, "state-dir", "", "State directory (env "+store.StateDirEnv+")")
	root.PersistentFlags().StringVar(&opts.alias, "alias", "", "Instance alias")
	root.PersistentFlags().StringVar(&opts.hubURL, "hub-url", "", "Hub base URL")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Summarize identity, mapping, endpoint and schema state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stores, layout, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}

			return printStatus(out, stores, layout)
		},
	}

	showCmd := &cobra.Command{
		Use:       "show identity|mapping|endpoint|schema",
		Short:     "Print one persisted record as JSON",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"identity", "mapping", "endpoint", "schema"},
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}

			rec, ok, err := lookup(stores, args[0])
			if err != nil {
				return err
			}

			if !ok {
				_, err = fmt.Fprintf(out, "no %s state\n", args[0])
				return err
			}

			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")

			return enc.Encode(rec)
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every state file so the next start behaves as a first run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, layout, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}

			if !opts.yes {
				return fmt.Errorf("refusing to delete state in %s without --yes", layout.Dir)
			}

			if err := layout.Purge(); err != nil {
				return fmt.Errorf("reset failed: %w", err)
			}

			_, err = fmt.Fprintf(out, "state for %s removed from %s\n", layout.Namespace, layout.Dir)

			return err
		},
	}
	resetCmd.Flags().BoolVar(&opts.yes, "yes", false, "Confirm deletion")

	root.AddCommand(statusCmd, showCmd, resetCmd)

	return root
}

// open resolves the layout from the config file and flags.
func (o *options) open(ctx context.Context) (*store.Stores, store.Layout, error) {
	var cfg models.AgentConfig

	if o.configPath != "" {
		if err := config.NewConfig(nil).LoadAndValidate(ctx, o.configPath, &cfg); err != nil {
			return nil, store.Layout{}, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if o.stateDir != "" {
		cfg.StateDir = o.stateDir
	}

	if o.alias != "" {
		cfg.Alias = o.alias
	}

	if o.hubURL != "" {
		cfg.HubURL = o.hubURL
	}

	if cfg.Alias == "" {
		cfg.Alias = models.DefaultAlias()
	}

	layout := store.NewLayout(cfg.StateDir, cfg.Alias, cfg.HubURL)

	return store.Open(layout, logger.NewTestLogger()), layout, nil
}

func lookup(stores *store.Stores, name string) (interface{}, bool, error) {
	switch name {
	case "identity":
		rec, ok := stores.Identity.Load()
		return rec, ok, nil
	case "mapping":
		rec, ok := stores.Mapping.Load()
		return rec, ok, nil
	case "endpoint":
		rec, ok := stores.Endpoint.Load()
		return rec, ok, nil
	case "schema":
		rec, ok := stores.Schema.Load()
		return rec, ok, nil
	default:
		return nil, false, fmt.Errorf("%w: %q", errUnknownRecord, name)
	}
}

func printStatus(out io.Writer, stores *store.Stores, layout store.Layout) error {
	w := &lineWriter{out: out}

	w.printf("state dir:  %s", layout.Dir)
	w.printf("namespace:  %s", layout.Namespace)

	if id, ok := stores.Identity.Load(); ok && id.Registered() {
		w.printf("identity:   %s (alias %s)", id.HubID, id.Alias)
	} else {
		w.printf("identity:   unregistered")
	}

	if m, ok := stores.Mapping.Load(); ok {
		w.printf("mapping:    epoch %d version %d, %d columns", m.Epoch, m.Version, len(m.Mappings))
	} else {
		w.printf("mapping:    none")
	}

	if ep, ok := stores.Endpoint.Load(); ok {
		w.printf("endpoint:   %s (version %d, telemetry %t)", ep.CryptoURL, ep.Version, ep.TelemetryEnabled())
	} else {
		w.printf("endpoint:   none")
	}

	if s, ok := stores.Schema.Load(); ok {
		pending := s.ContentHash == "" || s.PushedHash != s.ContentHash
		w.printf("schema:     %d entries, pushed to %q, pending %t", len(s.Entries), s.PushedHubID, pending)
	} else {
		w.printf("schema:     none")
	}

	return w.err
}

// lineWriter keeps the first write error.
type lineWriter struct {
	out io.Writer
	err error
}

func (w *lineWriter) printf(format string, args ...interface{}) {
	if w.err != nil {
		return
	}

	_, w.err = fmt.Fprintf(w.out, format+"\n", args...)
}
