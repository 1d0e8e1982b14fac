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

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	l, err := New(context.Background(), &Config{Level: "warn", Output: "stderr"})
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = New(context.Background(), &Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNew_OTelEnabledWithoutEndpointFallsBackToLocal(t *testing.T) {
	l, err := New(context.Background(), &Config{
		Level: "info",
		OTel:  OTelConfig{Enabled: true},
	})
	require.NoError(t, err)

	l.Info().Str("test", "value").Msg("local only")
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer

	l := NewWriterLogger(&buf).WithComponent("identity")
	l.Info().Str("hub_id", "h-1").Msg("registered")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "identity", rec["component"])
	assert.Equal(t, "h-1", rec["hub_id"])
	assert.Equal(t, "registered", rec["message"])
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer

	l := NewWriterLogger(&buf)
	l.SetLevel(zerolog.ErrorLevel)
	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	l.Error().Msg("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Duration
		wantErr  bool
	}{
		{name: "string", input: `"5s"`, expected: Duration(5 * time.Second)},
		{name: "nanoseconds", input: `5000000000`, expected: Duration(5 * time.Second)},
		{name: "bad string", input: `"soon"`, wantErr: true},
		{name: "bad type", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestDefaultOTelConfig(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_HEADERS", "x-api-key=abc, x-tenant = t1")
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_TIMEOUT", "2s")

	cfg := DefaultOTelConfig()
	assert.Equal(t, defaultServiceName, cfg.ServiceName)
	assert.Equal(t, Duration(2*time.Second), cfg.BatchTimeout)
	assert.Equal(t, map[string]string{"x-api-key": "abc", "x-tenant": "t1"}, cfg.Headers)
}

func TestNewOTELWriter_Validation(t *testing.T) {
	_, err := NewOTELWriter(context.Background(), OTelConfig{})
	require.ErrorIs(t, err, ErrOTelLoggingDisabled)

	_, err = NewOTELWriter(context.Background(), OTelConfig{Enabled: true})
	require.ErrorIs(t, err, ErrOTelEndpointRequired)
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	_, err := InitializeMetrics(context.Background(), MetricsProviderConfig{})
	require.ErrorIs(t, err, ErrOTelMetricsDisabled)
}

func TestMapZerologLevelToOTEL(t *testing.T) {
	for level, want := range map[string]string{
		"trace": "TRACE", "debug": "DEBUG", "info": "INFO", "warning": "WARN",
		"error": "ERROR", "panic": "FATAL", "unknown": "INFO",
	} {
		assert.Equal(t, want, mapZerologLevelToOTEL(level).String(), level)
	}
}

func TestTruncateString(t *testing.T) {
	long := strings.Repeat("a", maxAttributeValueLength+10)
	got := truncateString(long, maxAttributeValueLength)

	assert.Len(t, got, maxAttributeValueLength)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, "short", truncateString("short", maxAttributeValueLength))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer

	n, err := NewMultiWriter(&a, &b).Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "x", a.String())
	assert.Equal(t, "x", b.String())

	_, err = NewMultiWriter(&a, failingWriter{}).Write([]byte("y"))
	assert.Error(t, err)
}
