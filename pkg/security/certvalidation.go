package security

import (
	"bytes"
	"context"
	"crypto/x509"
	"fmt"
	"time"
)

// CertificateValidator decides whether a signing certificate may be used.
type CertificateValidator interface {
	// Validate checks cert. chain holds any intermediate certificates that
	// came with it.
	Validate(ctx context.Context, cert *x509.Certificate, chain []*x509.Certificate) error
}

// DefaultCertificateValidator checks the validity window, optionally the
// chain to a root pool and optionally revocation.
type DefaultCertificateValidator struct {
	roots      *x509.CertPool
	revocation RevocationChecker
	now        func() time.Time
}

// ValidatorOption configures a DefaultCertificateValidator.
type ValidatorOption func(*DefaultCertificateValidator)

// WithRoots requires certificates to chain to one of roots.
func WithRoots(roots *x509.CertPool) ValidatorOption {
	return func(v *DefaultCertificateValidator) {
		v.roots = roots
	}
}

// WithRevocationChecker enables revocation checks.
func WithRevocationChecker(c RevocationChecker) ValidatorOption {
	return func(v *DefaultCertificateValidator) {
		v.revocation = c
	}
}

// WithValidatorClock overrides the current time.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *DefaultCertificateValidator) {
		v.now = now
	}
}

// NewDefaultCertificateValidator creates a validator. Without options it
// only checks the validity window.
func NewDefaultCertificateValidator(opts ...ValidatorOption) *DefaultCertificateValidator {
	v := &DefaultCertificateValidator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate implements CertificateValidator.
func (v *DefaultCertificateValidator) Validate(ctx context.Context, cert *x509.Certificate, chain []*x509.Certificate) error {
	if cert == nil {
		return fmt.Errorf("%w: nil certificate", ErrInvalidCertificate)
	}

	now := v.now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("%w: valid from %s", ErrCertificateNotYetValid, cert.NotBefore.Format(time.RFC3339))
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("%w: expired %s", ErrCertificateExpired, cert.NotAfter.Format(time.RFC3339))
	}

	if v.roots != nil {
		opts := x509.VerifyOptions{
			Roots:         v.roots,
			CurrentTime:   now,
			Intermediates: x509.NewCertPool(),
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		}
		for _, intermediate := range chain {
			opts.Intermediates.AddCert(intermediate)
		}
		if _, err := cert.Verify(opts); err != nil {
			return fmt.Errorf("%w: %v", ErrCertificateUntrusted, err)
		}
	}

	if v.revocation != nil {
		issuer := findIssuer(cert, chain)
		if issuer == nil {
			// Self-signed or issuer not supplied: nothing to ask.
			return nil
		}
		if err := v.revocation.CheckRevocation(ctx, cert, issuer); err != nil {
			return err
		}
	}
	return nil
}

func findIssuer(cert *x509.Certificate, chain []*x509.Certificate) *x509.Certificate {
	if bytes.Equal(cert.RawIssuer, cert.RawSubject) {
		return nil
	}
	for _, c := range chain {
		if bytes.Equal(c.RawSubject, cert.RawIssuer) {
			return c
		}
	}
	return nil
}
