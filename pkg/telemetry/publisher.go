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

package telemetry

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
)

// Subject is the NATS subject telemetry events are published on.
const Subject = "hubsync.telemetry"

const cloudEventsContentType = "application/cloudevents+json"

var (
	errUnknownMode       = errors.New("unknown stats aggregator mode")
	errUnexpectedStatus  = errors.New("unexpected telemetry sink status")
	errPublisherRequired = errors.New("telemetry sink url is required")
)

// Publisher ships one CloudEvent to the stats aggregator.
type Publisher interface {
	Publish(ctx context.Context, event *models.CloudEvent) error
	Close() error
}

type httpPublisher struct {
	url    string
	client *http.Client
}

func (p *httpPublisher) Publish(ctx context.Context, event *models.CloudEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", cloudEventsContentType)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}

	return nil
}

func (*httpPublisher) Close() error { return nil }

type natsPublisher struct {
	nc      *nats.Conn
	subject string
}

func connectNATS(url string, tlsConfig *tls.Config, log logger.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("hubsync-telemetry"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Debug().Err(err).Msg("NATS telemetry error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Debug().Err(err).Msg("NATS telemetry disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Debug().Str("url", nc.ConnectedUrl()).Msg("NATS telemetry reconnected")
		}),
	}

	if tlsConfig != nil {
		opts = append(opts, nats.Secure(tlsConfig))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return nc, nil
}

func (p *natsPublisher) Publish(_ context.Context, event *models.CloudEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry event: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = payload
	msg.Header.Set("Content-Type", cloudEventsContentType)
	msg.Header.Set("Ce-Id", event.ID)

	return p.nc.PublishMsg(msg)
}

func (p *natsPublisher) Close() error {
	return p.nc.Drain()
}

// target identifies where a Publisher sends.
type target struct {
	mode models.StatsAggregatorMode
	url  string
}

func newPublisher(t target, httpClient *http.Client, tlsConfig *tls.Config, log logger.Logger) (Publisher, error) {
	if t.url == "" {
		return nil, errPublisherRequired
	}

	switch t.mode {
	case "", models.StatsModeHTTP:
		return &httpPublisher{url: t.url, client: httpClient}, nil
	case models.StatsModeNATS:
		nc, err := connectNATS(t.url, tlsConfig, log)
		if err != nil {
			return nil, err
		}

		return &natsPublisher{nc: nc, subject: Subject}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownMode, t.mode)
	}
}
