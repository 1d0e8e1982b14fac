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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
)

func testLayout(t *testing.T) Layout {
	t.Helper()

	return Layout{
		Dir:         filepath.Join(t.TempDir(), "state"),
		FallbackDir: filepath.Join(t.TempDir(), "fallback"),
		Namespace:   Namespace("orders", "https://hub.example.com"),
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	layout := testLayout(t)
	s := NewFileStore[models.MappingRecord](layout, MappingFile, logger.NewTestLogger())

	_, ok := s.Load()
	assert.False(t, ok, "missing file loads as absent")

	rec := models.MappingRecord{Epoch: 2, Version: 7, Mappings: map[string]string{"public.users.email": "pii"}}
	require.NoError(t, s.Save(rec))

	fresh := NewFileStore[models.MappingRecord](layout, MappingFile, logger.NewTestLogger())
	got, ok := fresh.Load()
	require.True(t, ok)
	assert.Equal(t, rec, got)

	data, err := os.ReadFile(fresh.Path())
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"storage_version":1,"data":{"epoch":2,"version":7,"mappings":{"public.users.email":"pii"}}}`,
		string(data))
}

func TestFileStore_CorruptFileLoadsAbsent(t *testing.T) {
	layout := testLayout(t)
	s := NewFileStore[models.Identity](layout, IdentityFile, logger.NewTestLogger())

	require.NoError(t, os.MkdirAll(layout.Dir, 0o755))

	for _, body := range []string{"", "{", "garbage", `{"storage_version":1,"data":[1,2]}`} {
		require.NoError(t, os.WriteFile(filepath.Join(layout.Dir, layout.FileName(IdentityFile)), []byte(body), 0o600))

		_, ok := s.Load()
		assert.False(t, ok, "body %q", body)
	}

	require.NoError(t, s.Save(models.Identity{HubID: "h1", Alias: "orders"}))

	got, ok := s.Load()
	require.True(t, ok)
	assert.Equal(t, "h1", got.HubID)
}

func TestFileStore_LegacyAndNewerVersions(t *testing.T) {
	layout := testLayout(t)
	path := filepath.Join(layout.Dir, layout.FileName(IdentityFile))
	s := NewFileStore[models.Identity](layout, IdentityFile, logger.NewTestLogger())

	require.NoError(t, os.MkdirAll(layout.Dir, 0o755))

	require.NoError(t, os.WriteFile(path, []byte(`{"hub_id":"legacy","alias":"a"}`), 0o600))
	got, ok := s.Load()
	require.True(t, ok)
	assert.Equal(t, "legacy", got.HubID)

	require.NoError(t, os.WriteFile(path, []byte(`{"storage_version":99,"data":{"hub_id":"future","extra":true}}`), 0o600))
	got, ok = s.Load()
	require.True(t, ok)
	assert.Equal(t, "future", got.HubID)
}

func TestFileStore_IdenticalStateIdenticalBytes(t *testing.T) {
	layout := testLayout(t)
	s := NewFileStore[models.MappingRecord](layout, MappingFile, logger.NewTestLogger())

	rec := models.MappingRecord{Version: 1, Mappings: map[string]string{"b.c": "p2", "a.b": "p1", "z.z": ""}}
	require.NoError(t, s.Save(rec))

	first, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	info1, err := os.Stat(s.Path())
	require.NoError(t, err)

	other := NewFileStore[models.MappingRecord](layout, MappingFile, logger.NewTestLogger())
	require.NoError(t, other.Save(models.MappingRecord{Version: 1, Mappings: map[string]string{"z.z": "", "a.b": "p1", "b.c": "p2"}}))

	second, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info2, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime(), "unchanged content is not rewritten")
}

func TestFileStore_FallbackDirectory(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	layout := Layout{
		Dir:         filepath.Join(blocker, "state"),
		FallbackDir: filepath.Join(base, "fallback"),
		Namespace:   "ns",
	}

	s := NewFileStore[models.EndpointRecord](layout, EndpointFile, logger.NewTestLogger())
	require.NoError(t, s.Save(models.EndpointRecord{CryptoURL: "http://engine"}))
	assert.Equal(t, filepath.Join(layout.FallbackDir, "ns-"+EndpointFile), s.Path())

	reopened := NewFileStore[models.EndpointRecord](layout, EndpointFile, logger.NewTestLogger())
	got, ok := reopened.Load()
	require.True(t, ok)
	assert.Equal(t, "http://engine", got.CryptoURL)

	layout.FallbackDir = filepath.Join(blocker, "also-bad")
	broken := NewFileStore[models.EndpointRecord](layout, EndpointFile, logger.NewTestLogger())
	assert.ErrorIs(t, broken.Save(models.EndpointRecord{CryptoURL: "x"}), errNoWritableDir)
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	layout := testLayout(t)
	s := NewFileStore[models.SchemaRecord](layout, SchemaFile, logger.NewTestLogger())

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(models.SchemaRecord{ContentHash: string(rune('a' + i))}))
	}

	entries, err := os.ReadDir(layout.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, layout.FileName(SchemaFile), entries[0].Name())
}

func TestNamespaceIsolation(t *testing.T) {
	assert.NotEqual(t, Namespace("a", "https://hub1"), Namespace("a", "https://hub2"))
	assert.NotEqual(t, Namespace("a", "https://hub1"), Namespace("b", "https://hub1"))
	assert.Equal(t, Namespace("a", "https://hub1/"), Namespace("a", "https://hub1"))
	assert.Len(t, Namespace("a", "b"), namespaceLen)
}

func TestResolveStateDir(t *testing.T) {
	t.Setenv(StateDirEnv, "/from/env")
	assert.Equal(t, "/from/env", ResolveStateDir("/from/config"))

	t.Setenv(StateDirEnv, "")
	assert.Equal(t, "/from/config", ResolveStateDir("/from/config"))

	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, filepath.Join("/home/tester", ".hubsync"), ResolveStateDir(""))
}

func TestLayoutPurge(t *testing.T) {
	layout := testLayout(t)
	stores := Open(layout, logger.NewTestLogger())

	require.NoError(t, stores.Identity.Save(models.Identity{HubID: "h"}))
	require.NoError(t, stores.Mapping.Save(models.MappingRecord{Version: 1}))

	require.NoError(t, layout.Purge())

	_, ok := NewFileStore[models.Identity](layout, IdentityFile, logger.NewTestLogger()).Load()
	assert.False(t, ok)
}
