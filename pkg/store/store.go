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

// Package store persists hubsync state as small versioned JSON files.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/carverauto/hubsync/pkg/logger"
)

// CurrentStorageVersion is stamped into every envelope written by this build.
const CurrentStorageVersion = 1

const (
	stateDirPerms  = 0o755
	stateFilePerms = 0o600
)

var errNoWritableDir = errors.New("no writable state directory")

// Store is the load/save contract owned components depend on.
type Store[T any] interface {
	Load() (T, bool)
	Save(v T) error
}

type envelope struct {
	StorageVersion int             `json:"storage_version,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// FileStore keeps one value of T in a JSON file wrapped in a versioned envelope.
// Writes go through a temp file and rename so readers never see partial content.
type FileStore[T any] struct {
	name        string
	dir         string
	fallbackDir string
	logger      logger.Logger

	mu          sync.Mutex
	activeDir   string
	lastWritten []byte
}

var _ Store[struct{}] = (*FileStore[struct{}])(nil)

// NewFileStore returns a store for file name inside the layout's directories.
func NewFileStore[T any](layout Layout, name string, log logger.Logger) *FileStore[T] {
	return &FileStore[T]{
		name:        layout.FileName(name),
		dir:         layout.Dir,
		fallbackDir: layout.FallbackDir,
		logger:      log,
		activeDir:   layout.Dir,
	}
}

// Path returns the file currently used for reads and writes.
func (s *FileStore[T]) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return filepath.Join(s.activeDir, s.name)
}

// Load returns the persisted value. A missing, unreadable or corrupt file
// yields the zero value and false.
func (s *FileStore[T]) Load() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T

	for _, dir := range s.candidateDirs() {
		path := filepath.Join(dir, s.name)

		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn().Err(err).Str("path", path).Msg("Failed to read state file")
			}

			continue
		}

		value, err := s.decode(data)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Ignoring corrupt state file")
			continue
		}

		s.activeDir = dir
		s.lastWritten = data

		return value, true
	}

	return zero, false
}

func (s *FileStore[T]) candidateDirs() []string {
	if s.fallbackDir == "" || s.fallbackDir == s.dir {
		return []string{s.dir}
	}

	return []string{s.dir, s.fallbackDir}
}

func (s *FileStore[T]) decode(data []byte) (T, error) {
	var (
		value T
		env   envelope
	)

	if err := json.Unmarshal(data, &env); err != nil {
		return value, fmt.Errorf("decode envelope: %w", err)
	}

	payload := []byte(env.Data)

	switch {
	case env.StorageVersion == 0 && env.Data == nil:
		// Unversioned files hold the bare value.
		payload = data
	case env.StorageVersion > CurrentStorageVersion:
		s.logger.Debug().
			Int("storage_version", env.StorageVersion).
			Int("supported_version", CurrentStorageVersion).
			Str("file", s.name).
			Msg("Loading state written by a newer version")
	}

	if err := json.Unmarshal(payload, &value); err != nil {
		return value, fmt.Errorf("decode %s: %w", s.name, err)
	}

	return value, nil
}

// Save persists v. Identical content is not rewritten.
func (s *FileStore[T]) Save(v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.name, err)
	}

	payload, err := json.Marshal(envelope{StorageVersion: CurrentStorageVersion, Data: raw})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", s.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastWritten == nil {
		if existing, err := os.ReadFile(filepath.Join(s.activeDir, s.name)); err == nil {
			s.lastWritten = existing
		}
	}

	if bytes.Equal(s.lastWritten, payload) {
		return nil
	}

	dir, err := s.ensureDir()
	if err != nil {
		return err
	}

	if err := writeAtomic(filepath.Join(dir, s.name), payload); err != nil {
		return err
	}

	s.activeDir = dir
	s.lastWritten = payload

	return nil
}

// Delete removes the file from both locations.
func (s *FileStore[T]) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	for _, dir := range s.candidateDirs() {
		if err := os.Remove(filepath.Join(dir, s.name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	s.lastWritten = nil

	return errors.Join(errs...)
}

func (s *FileStore[T]) ensureDir() (string, error) {
	err := os.MkdirAll(s.dir, stateDirPerms)
	if err == nil {
		return s.dir, nil
	}

	if s.fallbackDir == "" || s.fallbackDir == s.dir {
		return "", fmt.Errorf("%w: %w", errNoWritableDir, err)
	}

	s.logger.Warn().Err(err).Str("dir", s.dir).Str("fallback", s.fallbackDir).
		Msg("State directory unavailable, using fallback")

	if err := os.MkdirAll(s.fallbackDir, stateDirPerms); err != nil {
		return "", fmt.Errorf("%w: %w", errNoWritableDir, err)
	}

	return s.fallbackDir, nil
}

func writeAtomic(path string, payload []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary state file: %w", err)
	}

	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(payload); err != nil {
		cleanup()
		return fmt.Errorf("write temporary state file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temporary state file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temporary state file: %w", err)
	}

	if err := os.Chmod(tmpPath, stateFilePerms); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temporary state file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("persist state file: %w", err)
	}

	return nil
}
