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

// Package transport builds the HTTP clients used to reach the Hub and the crypto engine.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/workloadapi"

	"github.com/carverauto/hubsync/pkg/logger"
	"github.com/carverauto/hubsync/pkg/models"
)

var (
	errUnknownSecurityMode      = errors.New("unknown security mode")
	errFailedToLoadClientCert   = errors.New("failed to load client certificate")
	errFailedToReadCACert       = errors.New("failed to read CA certificate")
	errFailedToAppendCACert     = errors.New("failed to append CA certificate to pool")
	errFailedWorkloadAPIClient  = errors.New("failed to create workload API client")
	errFailedToCreateX509Source = errors.New("failed to create X.509 source")
	errInvalidTrustDomain       = errors.New("invalid trust domain")
	errInvalidServerSPIFFEID    = errors.New("invalid server SPIFFE ID")
)

const defaultWorkloadSocket = "unix:/run/spire/sockets/agent.sock"

// SecurityProvider supplies the client TLS configuration for outbound calls.
// A nil *tls.Config means plain HTTP.
type SecurityProvider interface {
	ClientTLSConfig(ctx context.Context) (*tls.Config, error)
	Close() error
}

// NoSecurityProvider leaves connections unencrypted.
type NoSecurityProvider struct{}

func (NoSecurityProvider) ClientTLSConfig(context.Context) (*tls.Config, error) { return nil, nil }
func (NoSecurityProvider) Close() error                                         { return nil }

// MTLSProvider presents a file-based client certificate and pins the CA.
type MTLSProvider struct {
	config *tls.Config
}

// NewMTLSProvider loads the certificate pair and CA named in config.TLS.
// Relative paths are expected to be resolved already by the config loader.
func NewMTLSProvider(config *models.SecurityConfig, log logger.Logger) (*MTLSProvider, error) {
	log.Info().
		Str("cert_file", config.TLS.CertFile).
		Str("ca_file", config.TLS.CAFile).
		Msg("Loading client certificate")

	cert, err := tls.LoadX509KeyPair(config.TLS.CertFile, config.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedToLoadClientCert, err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ServerName:   config.ServerName,
		MinVersion:   tls.VersionTLS13,
	}

	if config.TLS.CAFile != "" {
		caCert, err := os.ReadFile(config.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errFailedToReadCACert, err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("%w: %s", errFailedToAppendCACert, config.TLS.CAFile)
		}

		tlsConfig.RootCAs = pool
	}

	return &MTLSProvider{config: tlsConfig}, nil
}

func (p *MTLSProvider) ClientTLSConfig(context.Context) (*tls.Config, error) {
	return p.config.Clone(), nil
}

func (*MTLSProvider) Close() error { return nil }

// SpiffeProvider sources an X.509 SVID from the SPIFFE workload API and
// authorizes the server by SPIFFE ID or trust domain.
type SpiffeProvider struct {
	client     *workloadapi.Client
	source     *workloadapi.X509Source
	authorizer tlsconfig.Authorizer
	closeOnce  sync.Once
	logger     logger.Logger
}

func NewSpiffeProvider(ctx context.Context, config *models.SecurityConfig, log logger.Logger) (*SpiffeProvider, error) {
	authorizer, err := spiffeAuthorizer(config, log)
	if err != nil {
		return nil, err
	}

	socket := config.WorkloadSocket
	if socket == "" {
		socket = defaultWorkloadSocket
	}

	client, err := workloadapi.New(ctx, workloadapi.WithAddr(socket))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedWorkloadAPIClient, err)
	}

	source, err := workloadapi.NewX509Source(ctx, workloadapi.WithClient(client))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", errFailedToCreateX509Source, err)
	}

	return &SpiffeProvider{
		client:     client,
		source:     source,
		authorizer: authorizer,
		logger:     log,
	}, nil
}

func spiffeAuthorizer(config *models.SecurityConfig, log logger.Logger) (tlsconfig.Authorizer, error) {
	var (
		trustDomain    spiffeid.TrustDomain
		hasTrustDomain bool
	)

	if td := strings.TrimSpace(config.TrustDomain); td != "" {
		if strings.Contains(td, "://") {
			id, err := spiffeid.FromString(td)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", errInvalidTrustDomain, err)
			}

			trustDomain = id.TrustDomain()
		} else {
			parsed, err := spiffeid.TrustDomainFromString(td)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", errInvalidTrustDomain, err)
			}

			trustDomain = parsed
		}

		hasTrustDomain = true
	}

	if raw := strings.TrimSpace(config.ServerSPIFFEID); raw != "" {
		if !strings.Contains(raw, "://") {
			if !hasTrustDomain {
				return nil, fmt.Errorf("%w: %q has no scheme and no trust_domain is configured", errInvalidServerSPIFFEID, raw)
			}

			raw = fmt.Sprintf("spiffe://%s/%s", trustDomain.String(), strings.TrimPrefix(raw, "/"))
		}

		id, err := spiffeid.FromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidServerSPIFFEID, err)
		}

		return tlsconfig.AuthorizeID(id), nil
	}

	if hasTrustDomain {
		log.Warn().Msg("SPIFFE client using trust domain membership authorizer; set server_spiffe_id for stricter verification")
		return tlsconfig.AuthorizeMemberOf(trustDomain), nil
	}

	log.Warn().Msg("SPIFFE client has no server_spiffe_id or trust_domain; allowing any SPIFFE endpoint")

	return tlsconfig.AuthorizeAny(), nil
}

func (p *SpiffeProvider) ClientTLSConfig(context.Context) (*tls.Config, error) {
	return tlsconfig.MTLSClientConfig(p.source, p.source, p.authorizer), nil
}

func (p *SpiffeProvider) Close() error {
	var err error

	p.closeOnce.Do(func() {
		if p.source != nil {
			if e := p.source.Close(); e != nil {
				p.logger.Error().Err(e).Msg("Failed to close X.509 source")

				err = e
			}
		}

		if p.client != nil {
			if e := p.client.Close(); e != nil {
				p.logger.Error().Err(e).Msg("Failed to close workload client")

				err = e
			}
		}
	})

	return err
}

// NewSecurityProvider picks the provider for config.Mode. A nil config or empty mode means no security.
func NewSecurityProvider(ctx context.Context, config *models.SecurityConfig, log logger.Logger) (SecurityProvider, error) {
	if config == nil || config.Mode == "" {
		log.Warn().Msg("No security config provided, Hub and engine traffic is unencrypted")
		return NoSecurityProvider{}, nil
	}

	switch models.SecurityMode(strings.ToLower(string(config.Mode))) {
	case models.SecurityModeNone:
		return NoSecurityProvider{}, nil
	case models.SecurityModeMTLS:
		return NewMTLSProvider(config, log)
	case models.SecurityModeSpiffe:
		log.Info().Str("workload_socket", config.WorkloadSocket).Msg("Initializing SPIFFE security provider")
		return NewSpiffeProvider(ctx, config, log)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownSecurityMode, config.Mode)
	}
}

// NewHTTPClient returns a client whose transport uses provider's TLS config
// and whose overall timeout is timeout.
func NewHTTPClient(ctx context.Context, provider SecurityProvider, timeout time.Duration) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()

	if provider != nil {
		tlsConfig, err := provider.ClientTLSConfig(ctx)
		if err != nil {
			return nil, err
		}

		if tlsConfig != nil {
			tr.TLSClientConfig = tlsConfig
		}
	}

	return &http.Client{Transport: tr, Timeout: timeout}, nil
}
