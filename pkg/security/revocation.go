package security

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/crypto/ocsp"
)

// RevocationChecker reports whether a certificate has been revoked.
type RevocationChecker interface {
	// CheckRevocation returns nil when cert is not revoked and
	// ErrCertificateRevoked when it is.
	CheckRevocation(ctx context.Context, cert, issuer *x509.Certificate) error
}

// OCSPConfig configures an OCSPChecker.
type OCSPConfig struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	// CRLFallback consults CRL distribution points when OCSP gives no answer.
	CRLFallback bool
	CacheTTL    time.Duration
	// Strict turns an undetermined status into an error.
	Strict bool
}

// DefaultOCSPConfig returns the default configuration.
func DefaultOCSPConfig() *OCSPConfig {
	return &OCSPConfig{
		Timeout:     10 * time.Second,
		CRLFallback: true,
		CacheTTL:    time.Hour,
	}
}

// OCSPChecker asks the certificate's OCSP responder, falling back to CRLs.
type OCSPChecker struct {
	config *OCSPConfig
	client *http.Client
	ocsp   *ttlCache[error]
	crls   *ttlCache[*x509.RevocationList]
}

// NewOCSPChecker creates a checker. A nil config uses DefaultOCSPConfig.
func NewOCSPChecker(config *OCSPConfig) *OCSPChecker {
	if config == nil {
		config = DefaultOCSPConfig()
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &OCSPChecker{
		config: config,
		client: client,
		ocsp:   newTTLCache[error](config.CacheTTL),
		crls:   newTTLCache[*x509.RevocationList](config.CacheTTL),
	}
}

// CheckRevocation implements RevocationChecker.
func (c *OCSPChecker) CheckRevocation(ctx context.Context, cert, issuer *x509.Certificate) error {
	if cert == nil || issuer == nil {
		return fmt.Errorf("%w: certificate and issuer are required", ErrInvalidCertificate)
	}

	ocspErr := c.checkOCSP(ctx, cert, issuer)
	if ocspErr == nil || errors.Is(ocspErr, ErrCertificateRevoked) {
		return ocspErr
	}

	if c.config.CRLFallback {
		crlErr := c.checkCRL(ctx, cert)
		if crlErr == nil || errors.Is(crlErr, ErrCertificateRevoked) {
			return crlErr
		}
		if c.config.Strict {
			return fmt.Errorf("revocation status unknown: OCSP: %v, CRL: %v", ocspErr, crlErr)
		}
		return nil
	}

	if c.config.Strict {
		return fmt.Errorf("revocation status unknown: %w", ocspErr)
	}
	return nil
}

func (c *OCSPChecker) checkOCSP(ctx context.Context, cert, issuer *x509.Certificate) error {
	key := cert.SerialNumber.String()
	if cached, ok := c.ocsp.get(key); ok {
		return cached
	}
	if len(cert.OCSPServer) == 0 {
		return fmt.Errorf("no OCSP server URL in certificate")
	}

	req, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: crypto.SHA256})
	if err != nil {
		return fmt.Errorf("failed to create OCSP request: %w", err)
	}
	raw, err := c.postOCSP(ctx, cert.OCSPServer[0], req)
	if err != nil {
		return fmt.Errorf("OCSP request failed: %w", err)
	}
	resp, err := ocsp.ParseResponse(raw, issuer)
	if err != nil {
		return fmt.Errorf("failed to parse OCSP response: %w", err)
	}

	var result error
	switch resp.Status {
	case ocsp.Good:
	case ocsp.Revoked:
		result = fmt.Errorf("%w: at %s", ErrCertificateRevoked, resp.RevokedAt.Format(time.RFC3339))
	default:
		return fmt.Errorf("OCSP status unknown")
	}
	c.ocsp.set(key, result)
	return result
}

// postOCSP sends the request by POST, retrying as GET when the responder
// refuses POST.
func (c *OCSPChecker) postOCSP(ctx context.Context, server string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/ocsp-request")
	req.Header.Set("Accept", "application/ocsp-response")

	raw, err := c.fetch(req)
	if err == nil {
		return raw, nil
	}

	getURL := server + "/" + url.PathEscape(base64.StdEncoding.EncodeToString(body))
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/ocsp-response")
	return c.fetch(req)
}

func (c *OCSPChecker) checkCRL(ctx context.Context, cert *x509.Certificate) error {
	if len(cert.CRLDistributionPoints) == 0 {
		return fmt.Errorf("no CRL distribution points in certificate")
	}

	var lastErr error
	for _, dp := range cert.CRLDistributionPoints {
		crl, err := c.fetchCRL(ctx, dp)
		if err != nil {
			lastErr = err
			continue
		}
		for _, revoked := range crl.RevokedCertificateEntries {
			if revoked.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				return fmt.Errorf("%w: listed in %s", ErrCertificateRevoked, dp)
			}
		}
		return nil
	}
	return fmt.Errorf("failed to check CRL: %w", lastErr)
}

func (c *OCSPChecker) fetchCRL(ctx context.Context, dp string) (*x509.RevocationList, error) {
	if cached, ok := c.crls.get(dp); ok {
		return cached, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dp, nil)
	if err != nil {
		return nil, err
	}
	raw, err := c.fetch(req)
	if err != nil {
		return nil, err
	}
	crl, err := x509.ParseRevocationList(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CRL: %w", err)
	}
	c.crls.set(dp, crl)
	return crl, nil
}

func (c *OCSPChecker) fetch(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", req.URL.Host, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type ttlCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value  V
	stored time.Time
}

func newTTLCache[V any](ttl time.Duration) *ttlCache[V] {
	return &ttlCache[V]{ttl: ttl, entries: make(map[string]ttlEntry[V])}
}

func (c *ttlCache[V]) get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Since(e.stored) > c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[V]) set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry[V]{value: v, stored: time.Now()}
}
