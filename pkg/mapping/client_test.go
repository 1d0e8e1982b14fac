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

package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/hubsync/pkg/hub"
	"github.com/carverauto/hubsync/pkg/hub/hubtest"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/policy"
	"github.com/carverauto/hubsync/pkg/store"
)

type recordingSink struct {
	records []*models.EndpointRecord
}

func (s *recordingSink) Apply(rec *models.EndpointRecord) {
	s.records = append(s.records, rec)
}

func newStore(t *testing.T, dir string) *store.FileStore[models.MappingRecord] {
	t.Helper()

	layout := store.Layout{Dir: dir, Namespace: "ns"}

	return store.NewFileStore[models.MappingRecord](layout, store.MappingFile, logger.NewTestLogger())
}

// registeredClient registers against fake and returns a bound mapping client.
func registeredClient(t *testing.T, fake *hubtest.Hub, st store.MappingStore, sink EndpointSink) (*Client, *policy.Cache, string) {
	t.Helper()

	srv := fake.Start()
	t.Cleanup(srv.Close)

	hc, err := hub.NewClient(hub.Config{BaseURL: srv.URL, Alias: "inst"}, logger.NewTestLogger())
	require.NoError(t, err)

	resp, err := hc.Register(context.Background(), models.RegistrationRequest{Alias: "inst"})
	require.NoError(t, err)

	cache := policy.NewCache()
	c := NewClient(cache, st, sink, func(hubID string) Remote { return hc.Bind(hubID) }, logger.NewTestLogger())
	c.Bind(resp.HubID)

	return c, cache, resp.HubID
}

func TestRefresh_ChangedThenUnmodified(t *testing.T) {
	fake := hubtest.NewHub()
	fake.SetMappings(3, map[string]string{"db.public.users.email": "pii"})

	st := newStore(t, t.TempDir())
	c, cache, hubID := registeredClient(t, fake, st, nil)

	assert.Equal(t, hub.Changed, c.Refresh(context.Background()))

	policyName, known := cache.LookupKey("db.public.users.email")
	assert.True(t, known)
	assert.Equal(t, "pii", policyName)

	_, version := c.Version()
	assert.Equal(t, int64(3), version)
	assert.Equal(t, []int64{3}, fake.Acks(hubID))

	rec, ok := st.Load()
	require.True(t, ok)
	assert.Equal(t, int64(3), rec.Version)
	assert.Equal(t, "pii", rec.Mappings["db.public.users.email"])

	assert.Equal(t, hub.Unmodified, c.Refresh(context.Background()))
	assert.Len(t, fake.Acks(hubID), 1, "no ack without a change")
}

func TestRefresh_AdvertisedVersionBump(t *testing.T) {
	fake := hubtest.NewHub()
	fake.SetMappings(1, map[string]string{"t.c": "p"})

	st := newStore(t, t.TempDir())
	c, _, _ := registeredClient(t, fake, st, nil)

	require.Equal(t, hub.Changed, c.Refresh(context.Background()))

	fake.AdvertiseVersion(7)
	assert.Equal(t, hub.Unmodified, c.Refresh(context.Background()))

	_, version := c.Version()
	assert.Equal(t, int64(7), version)

	rec, ok := st.Load()
	require.True(t, ok)
	assert.Equal(t, int64(7), rec.Version)
	assert.Equal(t, "p", rec.Mappings["t.c"])
}

func TestRefresh_BundledEndpointHandedOff(t *testing.T) {
	fake := hubtest.NewHub()
	fake.SetMappings(2, map[string]string{"t.c": "p"})
	fake.SetEndpoint(&models.EndpointRecord{CryptoURL: "http://engine", Version: 4}, true)

	sink := &recordingSink{}
	c, _, _ := registeredClient(t, fake, newStore(t, t.TempDir()), sink)

	require.Equal(t, hub.Changed, c.Refresh(context.Background()))
	require.Len(t, sink.records, 1)
	assert.Equal(t, "http://engine", sink.records[0].CryptoURL)
}

func TestRefresh_NotFound(t *testing.T) {
	fake := hubtest.NewHub()
	c, _, hubID := registeredClient(t, fake, newStore(t, t.TempDir()), nil)

	fake.Forget(hubID)
	assert.Equal(t, hub.NotFound, c.Refresh(context.Background()))
}

func TestRefresh_HubDownServesPersistedSnapshot(t *testing.T) {
	dir := t.TempDir()
	fake := hubtest.NewHub()
	fake.SetMappings(5, map[string]string{"t.c": "p"})

	first, _, _ := registeredClient(t, fake, newStore(t, dir), nil)
	require.Equal(t, hub.Changed, first.Refresh(context.Background()))

	// A fresh process with an empty cache and the Hub unavailable.
	fake.SetUnavailable(true)
	second, cache, _ := registeredClientNoRegister(t, fake, newStore(t, dir))

	assert.Equal(t, hub.Unmodified, second.Refresh(context.Background()))

	policyName, known := cache.LookupKey("t.c")
	assert.True(t, known)
	assert.Equal(t, "p", policyName)

	_, version := cache.Version()
	assert.Equal(t, int64(5), version)
}

func registeredClientNoRegister(t *testing.T, fake *hubtest.Hub, st store.MappingStore) (*Client, *policy.Cache, string) {
	t.Helper()

	srv := fake.Start()
	t.Cleanup(srv.Close)

	hc, err := hub.NewClient(hub.Config{BaseURL: srv.URL, Alias: "inst"}, logger.NewTestLogger())
	require.NoError(t, err)

	cache := policy.NewCache()
	c := NewClient(cache, st, nil, func(hubID string) Remote { return hc.Bind(hubID) }, logger.NewTestLogger())
	c.Bind("hub-1")

	return c, cache, "hub-1"
}

func TestRefresh_OlderVersionIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)

	cache := policy.NewCache()
	cache.Replace(0, 9, map[string]string{"t.c": "p"})

	c := NewClient(cache, newStore(t, t.TempDir()), nil, func(string) Remote { return remote }, logger.NewTestLogger())
	c.Bind("hub-1")

	remote.EXPECT().FetchMappings(gomock.Any(), int64(9)).Return(hub.MappingResult{
		Outcome:  hub.Changed,
		Snapshot: &models.MappingSnapshot{Version: 4, Mappings: map[string]string{"t.c": "other"}},
	}, nil)

	assert.Equal(t, hub.Unmodified, c.Refresh(context.Background()))

	policyName, _ := cache.LookupKey("t.c")
	assert.Equal(t, "p", policyName)
}

func TestRefresh_AckFailureIsNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := NewMockRemote(ctrl)

	cache := policy.NewCache()
	c := NewClient(cache, newStore(t, t.TempDir()), nil, func(string) Remote { return remote }, logger.NewTestLogger())
	c.Bind("hub-1")

	remote.EXPECT().FetchMappings(gomock.Any(), int64(0)).Return(hub.MappingResult{
		Outcome:  hub.Changed,
		Snapshot: &models.MappingSnapshot{Version: 1, Mappings: map[string]string{"t.c": "p"}},
	}, nil)
	remote.EXPECT().AckMappings(gomock.Any(), int64(1)).Return(errors.New("boom"))

	assert.Equal(t, hub.Changed, c.Refresh(context.Background()))
	assert.Equal(t, 1, cache.Len())
}

func TestRefresh_UnboundRestores(t *testing.T) {
	dir := t.TempDir()
	st := newStore(t, dir)
	require.NoError(t, st.Save(models.MappingRecord{Epoch: 1, Version: 2, Mappings: map[string]string{"t.c": "p"}}))

	cache := policy.NewCache()
	c := NewClient(cache, st, nil, func(string) Remote {
		t.Fatal("factory must not be called while unbound")
		return nil
	}, logger.NewTestLogger())

	assert.Equal(t, hub.Unmodified, c.Refresh(context.Background()))

	epoch, version := cache.Version()
	assert.Equal(t, int64(1), epoch)
	assert.Equal(t, int64(2), version)
}

func TestRestore_SkipsWhenCacheIsAhead(t *testing.T) {
	st := newStore(t, t.TempDir())
	require.NoError(t, st.Save(models.MappingRecord{Epoch: 0, Version: 2, Mappings: map[string]string{"t.c": "old"}}))

	cache := policy.NewCache()
	cache.Replace(1, 0, map[string]string{"t.c": "new"})

	c := NewClient(cache, st, nil, nil, logger.NewTestLogger())
	assert.False(t, c.Restore())

	policyName, _ := cache.LookupKey("t.c")
	assert.Equal(t, "new", policyName)
}

func TestResetEpoch_KeepsMappings(t *testing.T) {
	st := newStore(t, t.TempDir())
	cache := policy.NewCache()
	cache.Replace(0, 12, map[string]string{"t.c": "p"})

	c := NewClient(cache, st, nil, nil, logger.NewTestLogger())
	c.ResetEpoch()

	epoch, version := cache.Version()
	assert.Equal(t, int64(1), epoch)
	assert.Equal(t, int64(0), version)
	assert.Equal(t, 1, cache.Len())

	rec, ok := st.Load()
	require.True(t, ok)
	assert.Equal(t, int64(1), rec.Epoch)
	assert.Equal(t, int64(0), rec.Version)
	assert.Equal(t, "p", rec.Mappings["t.c"])
}
