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

package endpoint

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/hubsync/pkg/hub"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/store"
)

func newStore(t *testing.T) *store.FileStore[models.EndpointRecord] {
	t.Helper()

	layout := store.Layout{Dir: filepath.Join(t.TempDir(), "state"), Namespace: "ns"}

	return store.NewFileStore[models.EndpointRecord](layout, store.EndpointFile, logger.NewTestLogger())
}

func TestCache_DegradedFlag(t *testing.T) {
	c := NewCache()
	assert.Empty(t, c.CryptoURL())

	c.Set(&models.EndpointRecord{CryptoURL: "http://a"})
	assert.True(t, c.MarkDegraded())
	assert.False(t, c.MarkDegraded())
	assert.True(t, c.Degraded())

	c.Set(&models.EndpointRecord{CryptoURL: "http://a", Version: 2})
	assert.True(t, c.Degraded(), "same URL keeps the flag")

	c.Set(&models.EndpointRecord{CryptoURL: "http://b"})
	assert.False(t, c.Degraded())

	c.MarkDegraded()
	assert.True(t, c.MarkHealthy())
	assert.False(t, c.Degraded())
}

func TestCache_SetCopies(t *testing.T) {
	c := NewCache()
	rec := &models.EndpointRecord{CryptoURL: "http://a"}
	c.Set(rec)
	rec.CryptoURL = "http://mutated"

	assert.Equal(t, "http://a", c.CryptoURL())
}

func TestRefresh_ChangedAppliesAndPersists(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)
	st := newStore(t)
	cache := NewCache()

	client := NewSyncClient(cache, st, func(hubID string) Remote {
		assert.Equal(t, "hub-1", hubID)
		return remote
	}, logger.NewTestLogger())
	client.Bind("hub-1")

	rec := &models.EndpointRecord{CryptoURL: "http://engine", Version: 4}

	gomock.InOrder(
		remote.EXPECT().FetchEndpoint(gomock.Any(), int64(0)).Return(hub.EndpointResult{Outcome: hub.Changed, Record: rec}, nil),
		remote.EXPECT().FetchEndpoint(gomock.Any(), int64(4)).Return(hub.EndpointResult{Outcome: hub.Unmodified}, nil),
	)

	assert.Equal(t, hub.Changed, client.Refresh(context.Background()))
	assert.Equal(t, "http://engine", cache.CryptoURL())

	persisted, ok := st.Load()
	require.True(t, ok)
	assert.Equal(t, *rec, persisted)

	assert.Equal(t, hub.Unmodified, client.Refresh(context.Background()))
}

func TestRefresh_TransportFailureRestoresPersisted(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)
	st := newStore(t)
	require.NoError(t, st.Save(models.EndpointRecord{CryptoURL: "http://persisted", Version: 2}))

	cache := NewCache()
	client := NewSyncClient(cache, st, func(string) Remote { return remote }, logger.NewTestLogger())
	client.Bind("hub-1")

	remote.EXPECT().FetchEndpoint(gomock.Any(), gomock.Any()).Return(hub.EndpointResult{}, hub.ErrTransport)

	assert.Equal(t, hub.Unmodified, client.Refresh(context.Background()))
	assert.Equal(t, "http://persisted", cache.CryptoURL())
}

func TestRefresh_Unbound(t *testing.T) {
	client := NewSyncClient(NewCache(), newStore(t), func(string) Remote {
		t.Fatal("factory must not be called")
		return nil
	}, logger.NewTestLogger())

	assert.Equal(t, hub.Unmodified, client.Refresh(context.Background()))

	client.Bind("")
	assert.Equal(t, hub.Unmodified, client.Refresh(context.Background()))
}

func TestRefresh_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)

	client := NewSyncClient(NewCache(), newStore(t), func(string) Remote { return remote }, logger.NewTestLogger())
	client.Bind("hub-1")

	remote.EXPECT().FetchEndpoint(gomock.Any(), gomock.Any()).Return(hub.EndpointResult{Outcome: hub.NotFound}, nil)

	assert.Equal(t, hub.NotFound, client.Refresh(context.Background()))
}

type brokenStore struct{}

func (brokenStore) Load() (models.EndpointRecord, bool) { return models.EndpointRecord{}, false }
func (brokenStore) Save(models.EndpointRecord) error    { return errors.New("read-only") }

func TestApply_PersistFailureKeepsCache(t *testing.T) {
	cache := NewCache()
	client := NewSyncClient(cache, brokenStore{}, nil, logger.NewTestLogger())

	client.Apply(&models.EndpointRecord{CryptoURL: "http://x"})
	assert.Equal(t, "http://x", cache.CryptoURL())
}

func TestResetVersion_KeepsRecordAndRefetchesFromZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)
	st := newStore(t)
	cache := NewCache()

	client := NewSyncClient(cache, st, func(string) Remote { return remote }, logger.NewTestLogger())
	client.Bind("hub-1")
	client.Apply(&models.EndpointRecord{CryptoURL: "http://old-engine", Version: 3})

	client.ResetVersion()

	assert.Equal(t, int64(0), client.Version())
	assert.Equal(t, "http://old-engine", cache.CryptoURL(), "record stays usable until the next pull")

	persisted, ok := st.Load()
	require.True(t, ok)
	assert.Equal(t, int64(0), persisted.Version)

	rec := &models.EndpointRecord{CryptoURL: "http://new-engine", Version: 1}
	remote.EXPECT().FetchEndpoint(gomock.Any(), int64(0)).Return(hub.EndpointResult{Outcome: hub.Changed, Record: rec}, nil)

	client.Bind("hub-2")
	assert.Equal(t, hub.Changed, client.Refresh(context.Background()))
	assert.Equal(t, "http://new-engine", cache.CryptoURL())
	assert.Equal(t, int64(1), client.Version())

	client.ResetVersion()
	client.ResetVersion()
	assert.Equal(t, int64(0), client.Version())
}
