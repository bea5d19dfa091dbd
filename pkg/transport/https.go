package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// TLS version constants
const (
	TLS12 = tls.VersionTLS12
	TLS13 = tls.VersionTLS13
)

// ContentTypeSOAP11 is the content type of a SOAP 1.1 request.
const ContentTypeSOAP11 = "text/xml; charset=utf-8"

// DefaultMaxResponseBytes caps how much of a response body is read.
const DefaultMaxResponseBytes int64 = 4 << 20

// RecommendedTLS12CipherSuites lists the TLS 1.2 suites offered by default.
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// HTTPSConfig contains HTTPS client configuration
type HTTPSConfig struct {
	MinTLSVersion uint16
	MaxTLSVersion uint16
	CipherSuites  []uint16
	Certificates  []tls.Certificate
	RootCAs       *x509.CertPool
	// InsecureSkipVerify disables server certificate verification. Only for
	// test endpoints.
	InsecureSkipVerify bool
	Timeout            time.Duration
	UserAgent          string
	// MaxResponseBytes caps the response body kept in Response.Body.
	MaxResponseBytes int64
}

// DefaultHTTPSConfig returns a default HTTPS configuration
func DefaultHTTPSConfig() *HTTPSConfig {
	return &HTTPSConfig{
		MinTLSVersion: TLS12,
		MaxTLSVersion: TLS13,
		CipherSuites:  RecommendedTLS12CipherSuites,
		Timeout:          60 * time.Second,
		UserAgent:        "go-esocial/1.0",
		MaxResponseBytes: DefaultMaxResponseBytes,
	}
}

// Request is one SOAP POST.
type Request struct {
	Endpoint    string
	Body        []byte
	ContentType string
	SOAPAction  string
}

// Response is whatever the server answered, error statuses included.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Truncated is set when the body exceeded the configured cap and was
	// cut to it.
	Truncated bool
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// HTTPSClient sends SOAP requests over HTTPS
type HTTPSClient struct {
	client *http.Client
	config *HTTPSConfig
}

// NewHTTPSClient creates a new HTTPS client. Zero fields in config take the
// DefaultHTTPSConfig values.
func NewHTTPSClient(config *HTTPSConfig) *HTTPSClient {
	config = withDefaults(config)

	tlsConfig := &tls.Config{
		MinVersion:         config.MinTLSVersion,
		MaxVersion:         config.MaxTLSVersion,
		CipherSuites:       config.CipherSuites,
		Certificates:       config.Certificates,
		RootCAs:            config.RootCAs,
		InsecureSkipVerify: config.InsecureSkipVerify,
	}

	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		TLSClientConfig:   tlsConfig,
		DisableKeepAlives: true,
	}

	return &HTTPSClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config: config,
	}
}

func withDefaults(config *HTTPSConfig) *HTTPSConfig {
	def := DefaultHTTPSConfig()
	if config == nil {
		return def
	}
	c := *config
	if c.MinTLSVersion == 0 {
		c.MinTLSVersion = def.MinTLSVersion
	}
	if c.MaxTLSVersion == 0 {
		c.MaxTLSVersion = def.MaxTLSVersion
	}
	if c.CipherSuites == nil {
		c.CipherSuites = def.CipherSuites
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = def.MaxResponseBytes
	}
	return &c
}

// Send posts the request. The returned error is non-nil only when no
// response was received.
func (c *HTTPSClient) Send(ctx context.Context, r *Request) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	contentType := r.ContentType
	if contentType == "" {
		contentType = ContentTypeSOAP11
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.config.UserAgent)
	if r.SOAPAction != "" {
		req.Header.Set("SOAPAction", r.SOAPAction)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	limit := c.config.MaxResponseBytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	truncated := int64(len(body)) > limit
	if truncated {
		body = body[:limit]
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Truncated:  truncated,
	}, nil
}

// LoadCertPool reads PEM certificates from path into a new pool.
func LoadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
