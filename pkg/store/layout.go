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

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
)

const (
	// StateDirEnv overrides the configured state directory.
	StateDirEnv = "HUBSYNC_STATE_DIR"

	defaultDirName = ".hubsync"
	fallbackName   = "hubsync"
	namespaceLen   = 12
)

// File names of the four state domains.
const (
	IdentityFile = "identity.json"
	MappingFile  = "mapping.json"
	EndpointFile = "endpoint.json"
	SchemaFile   = "schema.json"
)

// Layout locates the state files of one alias+Hub pair.
type Layout struct {
	Dir         string
	FallbackDir string
	Namespace   string
}

// ResolveStateDir applies the precedence env > configured > $HOME/.hubsync > ./.hubsync.
func ResolveStateDir(configured string) string {
	if dir := os.Getenv(StateDirEnv); dir != "" {
		return dir
	}

	if configured != "" {
		return configured
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, defaultDirName)
	}

	return defaultDirName
}

// Namespace returns a short stable hash of alias and Hub URL.
func Namespace(alias, remoteBaseURL string) string {
	sum := sha256.Sum256([]byte(alias + "|" + strings.TrimRight(remoteBaseURL, "/")))

	return hex.EncodeToString(sum[:])[:namespaceLen]
}

// NewLayout builds the layout for alias against remoteBaseURL.
func NewLayout(stateDir, alias, remoteBaseURL string) Layout {
	return Layout{
		Dir:         ResolveStateDir(stateDir),
		FallbackDir: filepath.Join(os.TempDir(), fallbackName),
		Namespace:   Namespace(alias, remoteBaseURL),
	}
}

// FileName prefixes name with the layout namespace.
func (l Layout) FileName(name string) string {
	if l.Namespace == "" {
		return name
	}

	return l.Namespace + "-" + name
}

// Purge deletes every state file of this namespace.
func (l Layout) Purge() error {
	var errs []error

	for _, dir := range []string{l.Dir, l.FallbackDir} {
		if dir == "" {
			continue
		}

		for _, name := range []string{IdentityFile, MappingFile, EndpointFile, SchemaFile} {
			err := os.Remove(filepath.Join(dir, l.FileName(name)))
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// Typed contracts consumed by the owning components.
type (
	IdentityStore = Store[models.Identity]
	MappingStore  = Store[models.MappingRecord]
	EndpointStore = Store[models.EndpointRecord]
	SchemaStore   = Store[models.SchemaRecord]
)

// Stores bundles the four typed stores of one layout.
type Stores struct {
	Identity *FileStore[models.Identity]
	Mapping  *FileStore[models.MappingRecord]
	Endpoint *FileStore[models.EndpointRecord]
	Schema   *FileStore[models.SchemaRecord]
}

// Open creates the typed stores for layout. No file is touched until the first Load or Save.
func Open(layout Layout, log logger.Logger) *Stores {
	return &Stores{
		Identity: NewFileStore[models.Identity](layout, IdentityFile, log),
		Mapping:  NewFileStore[models.MappingRecord](layout, MappingFile, log),
		Endpoint: NewFileStore[models.EndpointRecord](layout, EndpointFile, log),
		Schema:   NewFileStore[models.SchemaRecord](layout, SchemaFile, log),
	}
}
