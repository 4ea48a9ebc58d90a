// Package transport implements the HTTP(S) client used to fetch service metadata
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TLS version constants
const (
	TLS12 = tls.VersionTLS12
	TLS13 = tls.VersionTLS13
)

// DefaultMaxResponseBytes bounds the size of a metadata document
const DefaultMaxResponseBytes = 4 << 20

// Recommended TLS 1.2 cipher suites
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// ErrResponseTooLarge is returned when a response exceeds MaxResponseBytes
var ErrResponseTooLarge = errors.New("response too large")

// StatusError is returned for non-200 responses
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("unexpected status code %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// HTTPSConfig contains HTTP client configuration. TLS settings apply to
// https URLs; SMP servers commonly also publish over plain http.
type HTTPSConfig struct {
	MinTLSVersion    uint16
	MaxTLSVersion    uint16
	CipherSuites     []uint16
	Certificates     []tls.Certificate
	RootCAs          *x509.CertPool
	Timeout          time.Duration
	IdleConnTimeout  time.Duration
	MaxResponseBytes int64
	UserAgent        string
}

// DefaultHTTPSConfig returns a default HTTPS configuration
func DefaultHTTPSConfig() *HTTPSConfig {
	return &HTTPSConfig{
		MinTLSVersion:    TLS12,
		MaxTLSVersion:    TLS13,
		CipherSuites:     RecommendedTLS12CipherSuites,
		Timeout:          30 * time.Second,
		IdleConnTimeout:  90 * time.Second,
		MaxResponseBytes: DefaultMaxResponseBytes,
		UserAgent:        "go-bdxl/1.0",
	}
}

// HTTPSClient fetches documents from SMP servers
type HTTPSClient struct {
	client *http.Client
	config *HTTPSConfig
}

// NewHTTPSClient creates a new client. Zero fields of config take their
// default values; config itself is not modified.
func NewHTTPSClient(config *HTTPSConfig) *HTTPSClient {
	defaults := DefaultHTTPSConfig()
	if config == nil {
		config = defaults
	} else {
		c := *config
		config = &c
	}
	if config.MinTLSVersion == 0 {
		config.MinTLSVersion = defaults.MinTLSVersion
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = defaults.MaxResponseBytes
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	tlsConfig := &tls.Config{
		MinVersion:   config.MinTLSVersion,
		MaxVersion:   config.MaxTLSVersion,
		CipherSuites: config.CipherSuites,
		Certificates: config.Certificates,
		RootCAs:      config.RootCAs,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		IdleConnTimeout:     config.IdleConnTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}

	return &HTTPSClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config: config,
	}
}

// NewHTTPSClientFrom wraps an existing http.Client, e.g. one from httptest
func NewHTTPSClientFrom(client *http.Client) *HTTPSClient {
	config := DefaultHTTPSConfig()
	return &HTTPSClient{client: client, config: config}
}

// Get fetches url and returns the response body. Non-200 responses are
// returned as *StatusError.
func (c *HTTPSClient) Get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > c.config.MaxResponseBytes {
		return nil, fmt.Errorf("%w: more than %d bytes from %s", ErrResponseTooLarge, c.config.MaxResponseBytes, url)
	}

	return body, nil
}
