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

package crypto

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/hubsync/pkg/endpoint"
	"github.com/carverauto/hubsync/pkg/hub/hubtest"
	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
	"github.com/carverauto/hubsync/pkg/policy"
)

var errEngineDown = errors.New("connection refused")

func newEndpoints(url string) *endpoint.Cache {
	c := endpoint.NewCache()
	if url != "" {
		c.Set(&models.EndpointRecord{CryptoURL: url, Version: 1})
	}

	return c
}

func TestEncrypt_FailOpenRoundTripWithEngineDown(t *testing.T) {
	engine := hubtest.NewEngine()
	engine.SetUnavailable(true)

	srv := engine.Start()
	defer srv.Close()

	endpoints := newEndpoints(srv.URL)
	a := NewAdapter(NewHTTPEngine(srv.Client()), endpoints, nil, nil, nil,
		Config{FailOpen: true}, logger.NewTestLogger())

	out, err := a.Encrypt(context.Background(), "p1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.True(t, endpoints.Degraded())

	back, err := a.Decrypt(context.Background(), "p1", out)
	require.NoError(t, err)
	assert.Equal(t, "hello", back)

	engine.SetUnavailable(false)

	out, err = a.Encrypt(context.Background(), "p1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "enc:p1:hello", out)
	assert.False(t, endpoints.Degraded())
}

func TestEncrypt_NoEndpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)

	open := NewAdapter(engine, newEndpoints(""), nil, nil, nil, Config{FailOpen: true}, logger.NewTestLogger())

	out, err := open.Encrypt(context.Background(), "p1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	closed := NewAdapter(engine, newEndpoints(""), nil, nil, nil, Config{FailOpen: false}, logger.NewTestLogger())

	_, err = closed.Encrypt(context.Background(), "p1", "hello")
	require.ErrorIs(t, err, ErrEngineUnavailable)

	_, err = closed.BatchEncrypt(context.Background(), "p1", []string{"a", "b"})
	require.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestEncrypt_FailClosedTransportError(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)
	engine.EXPECT().Transform(gomock.Any(), "http://engine", OpEncrypt, "p1", "hello").Return("", errEngineDown)

	a := NewAdapter(engine, newEndpoints("http://engine"), nil, nil, nil, Config{}, logger.NewTestLogger())

	_, err := a.Encrypt(context.Background(), "p1", "hello")
	require.ErrorIs(t, err, ErrEngineUnavailable)
	require.ErrorIs(t, err, errEngineDown)
}

func TestEncrypt_EmptyPolicyPassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)

	a := NewAdapter(engine, newEndpoints("http://engine"), nil, nil, nil, Config{}, logger.NewTestLogger())

	out, err := a.Encrypt(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	values, err := a.BatchEncrypt(context.Background(), "", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, values)
}

func TestEncryptField_ResolvesThroughPolicyCache(t *testing.T) {
	engine := hubtest.NewEngine()
	srv := engine.Start()
	defer srv.Close()

	policies := policy.NewCache()
	policies.Replace(0, 1, map[string]string{
		"public.users.email": "pii",
		"public.users.name":  "",
	})

	a := NewAdapter(NewHTTPEngine(srv.Client()), newEndpoints(srv.URL), policies, nil, nil,
		Config{}, logger.NewTestLogger())

	ctx := context.Background()

	out, err := a.EncryptField(ctx, policy.FieldRef{DatasourceID: "db1", Schema: "public", Table: "users", Column: "email"}, "a@b")
	require.NoError(t, err)
	assert.Equal(t, "enc:pii:a@b", out)

	back, err := a.DecryptField(ctx, policy.FieldRef{Schema: "public", Table: "users", Column: "email"}, out)
	require.NoError(t, err)
	assert.Equal(t, "a@b", back)

	out, err = a.EncryptField(ctx, policy.FieldRef{Schema: "public", Table: "users", Column: "name"}, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", out, "known column without policy")

	out, err = a.EncryptField(ctx, policy.FieldRef{Table: "orders", Column: "total"}, "10")
	require.NoError(t, err)
	assert.Equal(t, "10", out, "unknown column")

	batch, err := a.BatchEncryptField(ctx, policy.FieldRef{Schema: "public", Table: "users", Column: "email"}, []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"enc:pii:x", "enc:pii:y"}, batch)

	batch, err = a.BatchDecryptField(ctx, policy.FieldRef{Schema: "public", Table: "users", Column: "email"}, batch)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, batch)
}

func TestBatchEncrypt_PreservesOrderAcrossChunks(t *testing.T) {
	engine := hubtest.NewEngine()
	srv := engine.Start()
	defer srv.Close()

	a := NewAdapter(NewHTTPEngine(srv.Client()), newEndpoints(srv.URL), nil, nil, nil,
		Config{MaxBatchSize: 100, BatchConcurrency: 3}, logger.NewTestLogger())

	values := make([]string, 250)
	for i := range values {
		values[i] = fmt.Sprintf("v%03d", i)
	}

	out, err := a.BatchEncrypt(context.Background(), "p1", values)
	require.NoError(t, err)
	require.Len(t, out, len(values))

	for i, v := range values {
		assert.Equal(t, hubtest.Transform("encrypt", "p1", v), out[i])
	}

	sizes := engine.BatchSizes()
	sort.Ints(sizes)
	assert.Equal(t, []int{50, 100, 100}, sizes)

	back, err := a.BatchDecrypt(context.Background(), "p1", out)
	require.NoError(t, err)
	assert.Equal(t, values, back)
}

func TestBatchEncrypt_ChunkFailureFallsBackWholeBatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)

	engine.EXPECT().TransformBatch(gomock.Any(), "http://engine", OpEncrypt, "p1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ Operation, _ string, values []string) ([]string, error) {
			if values[0] == "c" {
				return nil, errEngineDown
			}

			out := make([]string, len(values))
			for i, v := range values {
				out[i] = "x" + v
			}

			return out, nil
		}).MinTimes(1).MaxTimes(2)

	endpoints := newEndpoints("http://engine")
	a := NewAdapter(engine, endpoints, nil, nil, nil,
		Config{FailOpen: true, MaxBatchSize: 2, BatchConcurrency: 1}, logger.NewTestLogger())

	values := []string{"a", "b", "c", "d"}

	out, err := a.BatchEncrypt(context.Background(), "p1", values)
	require.NoError(t, err)
	assert.Equal(t, values, out)
	assert.True(t, endpoints.Degraded())
}

func TestBreaker_OpenCircuitSkipsEngine(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)
	engine.EXPECT().Transform(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", errEngineDown).Times(2)

	a := NewAdapter(engine, newEndpoints("http://engine"), nil, nil, nil, Config{
		FailOpen: true,
		Breaker:  BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour, ResetTimeout: time.Hour},
	}, logger.NewTestLogger())

	for range 5 {
		out, err := a.Encrypt(context.Background(), "p1", "v")
		require.NoError(t, err)
		assert.Equal(t, "v", out)
	}

	assert.Equal(t, StateOpen, a.Breaker().State())
}

func TestCircuitBreaker_Transitions(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker(BreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
		ResetTimeout:     time.Minute,
	}, logger.NewTestLogger())
	cb.now = func() time.Time { return now }

	fail := func() error { return errEngineDown }
	ok := func() error { return nil }

	require.ErrorIs(t, cb.Execute(fail), errEngineDown)
	require.ErrorIs(t, cb.Execute(fail), errEngineDown)
	assert.Equal(t, StateOpen, cb.State())
	require.ErrorIs(t, cb.Execute(ok), errCircuitOpen)

	now = now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateHalfOpen, cb.State())

	require.ErrorIs(t, cb.Execute(fail), errEngineDown)
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(ok))
	require.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}

func TestBreakerConfigFrom(t *testing.T) {
	assert.Equal(t, DefaultBreakerConfig(), BreakerConfigFrom(nil))

	cfg := BreakerConfigFrom(&models.BreakerConfig{FailureThreshold: 9, Timeout: models.Duration(time.Second)})
	assert.Equal(t, 9, cfg.FailureThreshold)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.Equal(t, DefaultBreakerConfig().SuccessThreshold, cfg.SuccessThreshold)
}

func TestTelemetry_EmittedWhenEnabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)
	sink := NewMockEventSink(ctrl)

	endpoints := endpoint.NewCache()
	endpoints.Set(&models.EndpointRecord{
		CryptoURL:              "http://engine",
		StatsAggregatorEnabled: true,
		StatsAggregatorURL:     "http://stats",
		SlowThresholdMs:        1,
	})

	engine.EXPECT().Transform(gomock.Any(), gomock.Any(), OpEncrypt, "p1", "v").
		DoAndReturn(func(context.Context, string, Operation, string, string) (string, error) {
			time.Sleep(5 * time.Millisecond)
			return "enc", nil
		})

	var got models.CryptoCallEvent
	sink.EXPECT().Emit(gomock.Any()).Do(func(ev models.CryptoCallEvent) { got = ev })

	a := NewAdapter(engine, endpoints, nil, sink, func() string { return "hub-7" },
		Config{Alias: "inst"}, logger.NewTestLogger())

	_, err := a.Encrypt(context.Background(), "p1", "v")
	require.NoError(t, err)

	assert.Equal(t, "hub-7", got.HubID)
	assert.Equal(t, "inst", got.Alias)
	assert.Equal(t, "encrypt", got.Operation)
	assert.Equal(t, "ok", got.Outcome)
	assert.Equal(t, 1, got.Items)
	assert.True(t, got.Slow)
}

func TestTelemetry_NotEmittedWhenDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)
	sink := NewMockEventSink(ctrl)

	engine.EXPECT().Transform(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("enc", nil)

	a := NewAdapter(engine, newEndpoints("http://engine"), nil, sink, nil, Config{}, logger.NewTestLogger())

	_, err := a.Encrypt(context.Background(), "p1", "v")
	require.NoError(t, err)
}

func TestHTTPEngine_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		if r.URL.Path == "/api/v1/batch/encrypt" {
			_, _ = w.Write([]byte(`{"values":["only-one"]}`))
			return
		}

		if r.URL.Path == "/api/v1/decrypt" {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}

		http.Error(w, "policy unknown", http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewHTTPEngine(srv.Client())

	_, err := e.TransformBatch(context.Background(), srv.URL, OpEncrypt, "p1", []string{"a", "b"})
	require.ErrorIs(t, err, errBatchSizeMismatch)
	require.ErrorIs(t, err, ErrEngineRejected)

	_, err = e.Transform(context.Background(), srv.URL+"/", OpEncrypt, "p1", "a")
	require.ErrorIs(t, err, ErrEngineRejected)
	assert.Contains(t, err.Error(), "policy unknown")

	_, err = e.Transform(context.Background(), srv.URL, OpDecrypt, "p1", "a")
	require.ErrorIs(t, err, errEngineStatus)
	require.NotErrorIs(t, err, ErrEngineRejected)
}

func TestEncrypt_RejectionIsReturnedNotDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "policy unknown", http.StatusBadRequest)
	}))
	defer srv.Close()

	endpoints := newEndpoints(srv.URL)
	a := NewAdapter(NewHTTPEngine(srv.Client()), endpoints, nil, nil, nil, Config{
		FailOpen: true,
		Breaker:  BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Hour, ResetTimeout: time.Hour},
	}, logger.NewTestLogger())

	for range 3 {
		_, err := a.Encrypt(context.Background(), "p1", "hello")
		require.ErrorIs(t, err, ErrEngineRejected)
		require.NotErrorIs(t, err, ErrEngineUnavailable)
	}

	_, err := a.BatchEncrypt(context.Background(), "p1", []string{"a", "b"})
	require.ErrorIs(t, err, ErrEngineRejected)

	assert.False(t, endpoints.Degraded())
	assert.Equal(t, StateClosed, a.Breaker().State())
}

func TestEncrypt_ServerErrorStillFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	endpoints := newEndpoints(srv.URL)
	a := NewAdapter(NewHTTPEngine(srv.Client()), endpoints, nil, nil, nil, Config{FailOpen: true}, logger.NewTestLogger())

	out, err := a.Encrypt(context.Background(), "p1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.True(t, endpoints.Degraded())
}

func TestEncrypt_CallerCancellationIsReturned(t *testing.T) {
	ctrl := gomock.NewController(t)
	engine := NewMockEngine(ctrl)

	ctx, cancel := context.WithCancel(context.Background())

	engine.EXPECT().Transform(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, Operation, string, string) (string, error) {
			cancel()
			return "", context.Canceled
		})

	endpoints := newEndpoints("http://engine")
	a := NewAdapter(engine, endpoints, nil, nil, nil, Config{FailOpen: true}, logger.NewTestLogger())

	_, err := a.Encrypt(ctx, "p1", "hello")
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, endpoints.Degraded())
}
