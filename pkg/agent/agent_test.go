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

package agent

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/hubsync/pkg/hub/hubtest"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/policy"
	"github.com/carverauto/hubsync/pkg/schema"
	"github.com/carverauto/hubsync/pkg/store"
)

var emailColumn = models.SchemaEntry{SchemaName: "public", TableName: "users", ColumnName: "email", ColumnType: "text"}

type fixture struct {
	hub      *hubtest.Hub
	hubSrv   *httptest.Server
	engine   *hubtest.Engine
	engSrv   *httptest.Server
	stateDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv(store.StateDirEnv, "")

	f := &fixture{
		hub:      hubtest.NewHub(),
		engine:   hubtest.NewEngine(),
		stateDir: t.TempDir(),
	}

	f.hubSrv = f.hub.Start()
	f.engSrv = f.engine.Start()

	t.Cleanup(f.hubSrv.Close)
	t.Cleanup(f.engSrv.Close)

	f.hub.SetMappings(1, map[string]string{"public.users.email": "pii"})
	f.hub.SetEndpoint(&models.EndpointRecord{CryptoURL: f.engSrv.URL, Version: 1}, false)

	return f
}

func (f *fixture) newAgent(t *testing.T) *Agent {
	t.Helper()

	cfg := &models.AgentConfig{
		HubURL:   f.hubSrv.URL,
		Alias:    "orders-db",
		StateDir: f.stateDir,
		Retry:    models.RetryConfig{MaxRetries: 1, InitialDelay: models.Duration(time.Millisecond)},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())

	a, err := New(context.Background(), cfg, logger.NewTestLogger(),
		WithProbe(schema.NewStaticProbe([]models.SchemaEntry{emailColumn})))
	require.NoError(t, err)

	return a
}

// readState returns the raw bytes of every state file, keyed by file name.
func readState(t *testing.T, a *Agent) map[string][]byte {
	t.Helper()

	layout := a.Layout()
	state := make(map[string][]byte)

	for _, name := range []string{store.IdentityFile, store.MappingFile, store.EndpointFile, store.SchemaFile} {
		data, err := os.ReadFile(filepath.Join(layout.Dir, layout.FileName(name)))
		require.NoError(t, err)

		state[name] = data
	}

	return state
}

// converge registers and pulls the first mapping.
func converge(t *testing.T, a *Agent) {
	t.Helper()

	ctx := context.Background()
	a.identity.Load()
	a.mappings.Restore()
	a.endpointSync.Restore()

	require.Equal(t, TickRegistered, a.Tick(ctx))
	require.Equal(t, TickChanged, a.Tick(ctx))
}

func TestTick_RegistersPullsAndEncrypts(t *testing.T) {
	f := newFixture(t)
	a := f.newAgent(t)
	converge(t, a)

	hubID := a.Identity().HubID()
	assert.Equal(t, "hub-1", hubID)

	// Pushed on registration, then again once the mapping named the column's policy.
	assert.Equal(t, 2, f.hub.SchemaPushes(hubID))
	require.Len(t, f.hub.Schema(hubID), 1)
	assert.Equal(t, "pii", f.hub.Schema(hubID)[0].PolicyName)

	name, known := a.Policies().Lookup(policy.FieldRef{Schema: "public", Table: "users", Column: "email"})
	assert.True(t, known)
	assert.Equal(t, "pii", name)
	assert.Equal(t, f.engSrv.URL, a.Endpoints().CryptoURL())

	out, err := a.Crypto().EncryptField(context.Background(),
		policy.FieldRef{DatasourceID: "orders", Schema: "public", Table: "users", Column: "email"}, "a@b")
	require.NoError(t, err)
	assert.Equal(t, "enc:pii:a@b", out)
}

func TestTick_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.newAgent(t)
	converge(t, a)

	hubID := a.Identity().HubID()
	pushes := f.hub.SchemaPushes(hubID)
	acks := len(f.hub.Acks(hubID))

	before := readState(t, a)

	for range 5 {
		assert.Equal(t, TickUnmodified, a.Tick(context.Background()))
	}

	assert.Equal(t, before, readState(t, a), "repeated ticks must leave persisted state byte-identical")
	assert.Len(t, f.hub.Registrations(), 1)
	assert.Equal(t, pushes, f.hub.SchemaPushes(hubID))
	assert.Len(t, f.hub.Acks(hubID), acks)
}

func TestTick_NotFoundReregistersOnce(t *testing.T) {
	f := newFixture(t)
	a := f.newAgent(t)
	converge(t, a)

	ctx := context.Background()
	firstID := a.Identity().HubID()
	pushesBefore := f.hub.TotalSchemaPushes()

	epoch, _ := a.mappings.Version()
	require.Zero(t, epoch)

	f.hub.Forget(firstID)

	assert.Equal(t, TickReregistered, a.Tick(ctx))

	secondID := a.Identity().HubID()
	assert.NotEqual(t, firstID, secondID)
	assert.Len(t, f.hub.Registrations(), 2)
	assert.Equal(t, pushesBefore+1, f.hub.TotalSchemaPushes())

	epoch, version := a.mappings.Version()
	assert.Equal(t, int64(1), epoch)
	assert.Zero(t, version)

	// Cached mappings stay usable across the reset.
	name, known := a.Policies().LookupKey("public.users.email")
	assert.True(t, known)
	assert.Equal(t, "pii", name)

	assert.Equal(t, TickChanged, a.Tick(ctx))

	for range 3 {
		a.Tick(ctx)
	}

	assert.Len(t, f.hub.Registrations(), 2)
	assert.Equal(t, pushesBefore+1, f.hub.TotalSchemaPushes())

	epoch, version = a.mappings.Version()
	assert.Equal(t, int64(1), epoch)
	assert.Equal(t, int64(1), version)
}

func TestTick_VersionNeverMovesBackwards(t *testing.T) {
	f := newFixture(t)
	a := f.newAgent(t)
	converge(t, a)

	ctx := context.Background()

	type stamp struct{ epoch, version int64 }

	less := func(a, b stamp) bool {
		return a.epoch < b.epoch || (a.epoch == b.epoch && a.version < b.version)
	}

	var last stamp

	observe := func() {
		epoch, version := a.mappings.Version()
		cur := stamp{epoch, version}
		assert.False(t, less(cur, last), "version moved from %+v to %+v", last, cur)
		last = cur
	}

	observe()

	f.hub.SetMappings(4, map[string]string{"public.users.email": "pii2"})
	a.Tick(ctx)
	observe()

	f.hub.AdvertiseVersion(6)
	a.Tick(ctx)
	observe()

	f.hub.SetUnavailable(true)
	a.Tick(ctx)
	observe()
	f.hub.SetUnavailable(false)

	f.hub.Forget(a.Identity().HubID())
	a.Tick(ctx)
	observe()
	a.Tick(ctx)
	observe()

	assert.Equal(t, int64(1), last.epoch)
}

func TestTick_NotFoundRefetchesReissuedEndpoint(t *testing.T) {
	f := newFixture(t)
	f.hub.SetEndpoint(&models.EndpointRecord{CryptoURL: f.engSrv.URL, Version: 3}, false)

	a := f.newAgent(t)
	converge(t, a)
	require.Equal(t, int64(3), a.endpointSync.Version())

	f.hub.Forget(a.Identity().HubID())
	f.hub.SetEndpoint(&models.EndpointRecord{CryptoURL: "http://new-engine", Version: 1}, false)

	ctx := context.Background()
	assert.Equal(t, TickReregistered, a.Tick(ctx))
	assert.Equal(t, f.engSrv.URL, a.Endpoints().CryptoURL(), "old record stays usable until the next pull")

	for range 3 {
		a.Tick(ctx)
	}

	assert.Equal(t, "http://new-engine", a.Endpoints().CryptoURL())
	assert.Equal(t, int64(1), a.endpointSync.Version())
}

func TestRestart_InterruptedForgetStartsNewEpoch(t *testing.T) {
	f := newFixture(t)
	f.hub.SetMappings(5, map[string]string{"public.users.email": "pii"})

	first := f.newAgent(t)
	converge(t, first)

	epoch, version := first.mappings.Version()
	require.Equal(t, int64(0), epoch)
	require.Equal(t, int64(5), version)

	// The process stopped right after the identity was cleared.
	first.identity.MarkUnregistered()

	f.hub.SetMappings(2, map[string]string{"public.users.email": "pii-new"})

	second := f.newAgent(t)
	second.identity.Load()
	second.mappings.Restore()
	second.endpointSync.Restore()

	ctx := context.Background()
	assert.Equal(t, TickRegistered, second.Tick(ctx))
	assert.Equal(t, TickChanged, second.Tick(ctx))

	name, known := second.Policies().LookupKey("public.users.email")
	assert.True(t, known)
	assert.Equal(t, "pii-new", name)

	epoch, version = second.mappings.Version()
	assert.Equal(t, int64(1), epoch)
	assert.Equal(t, int64(2), version)
}

func TestRestart_HubDownServesPersistedState(t *testing.T) {
	f := newFixture(t)
	first := f.newAgent(t)
	converge(t, first)

	f.hub.SetUnavailable(true)

	second := f.newAgent(t)
	second.identity.Load()
	second.mappings.Restore()
	second.endpointSync.Restore()

	assert.Equal(t, first.Identity().HubID(), second.Identity().HubID())
	assert.Equal(t, TickUnmodified, second.Tick(context.Background()))

	name, known := second.Policies().LookupKey("public.users.email")
	assert.True(t, known)
	assert.Equal(t, "pii", name)

	out, err := second.Crypto().Encrypt(context.Background(), name, "x")
	require.NoError(t, err)
	assert.Equal(t, "enc:pii:x", out)
}

func TestRestart_CorruptStateIsTreatedAsFirstRun(t *testing.T) {
	f := newFixture(t)
	first := f.newAgent(t)
	converge(t, first)

	layout := first.Layout()
	for _, name := range []string{store.IdentityFile, store.MappingFile, store.EndpointFile, store.SchemaFile} {
		path := filepath.Join(layout.Dir, layout.FileName(name))
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	}

	second := f.newAgent(t)
	second.identity.Load()
	second.mappings.Restore()
	second.endpointSync.Restore()

	assert.False(t, second.Identity().Registered())
	assert.Zero(t, second.Policies().Len())

	assert.Equal(t, TickRegistered, second.Tick(context.Background()))
	assert.Equal(t, TickChanged, second.Tick(context.Background()))
	assert.Equal(t, 1, second.Policies().Len())
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	a := f.newAgent(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, a.Start(ctx))

	require.Eventually(t, func() bool {
		return a.Identity().Registered()
	}, 5*time.Second, 20*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	require.NoError(t, a.Stop(stopCtx))
	require.NoError(t, a.Stop(stopCtx), "second stop is a no-op")
}
