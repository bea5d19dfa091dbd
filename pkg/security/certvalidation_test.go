package security

import (
	"context"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/ocsp"

	"github.com/sirosfoundation/go-esocial/internal/testpki"
)

func TestDefaultCertificateValidator_ValidityWindow(t *testing.T) {
	id := testpki.NewIdentity(t, "window")
	ctx := context.Background()

	v := NewDefaultCertificateValidator()
	assert.NoError(t, v.Validate(ctx, id.Certificate, nil))

	early := NewDefaultCertificateValidator(WithValidatorClock(func() time.Time {
		return id.Certificate.NotBefore.Add(-time.Minute)
	}))
	assert.ErrorIs(t, early.Validate(ctx, id.Certificate, nil), ErrCertificateNotYetValid)

	late := NewDefaultCertificateValidator(WithValidatorClock(func() time.Time {
		return id.Certificate.NotAfter.Add(time.Minute)
	}))
	assert.ErrorIs(t, late.Validate(ctx, id.Certificate, nil), ErrCertificateExpired)

	assert.ErrorIs(t, v.Validate(ctx, nil, nil), ErrInvalidCertificate)
}

func TestDefaultCertificateValidator_Roots(t *testing.T) {
	ca := testpki.NewIdentity(t, "AC Teste")
	leaf := ca.Issue(t, "EMPRESA TESTE:12345678000190")
	stranger := testpki.NewIdentity(t, "AC Outra")
	ctx := context.Background()

	roots := x509.NewCertPool()
	roots.AddCert(ca.Certificate)
	assert.NoError(t, NewDefaultCertificateValidator(WithRoots(roots)).Validate(ctx, leaf.Certificate, nil))

	otherRoots := x509.NewCertPool()
	otherRoots.AddCert(stranger.Certificate)
	err := NewDefaultCertificateValidator(WithRoots(otherRoots)).Validate(ctx, leaf.Certificate, nil)
	assert.ErrorIs(t, err, ErrCertificateUntrusted)
}

// ocspResponder answers every request with status for the CA's certificates.
func ocspResponder(t *testing.T, ca *testpki.Identity, status int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		req, err := ocsp.ParseRequest(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		now := time.Now()
		tmpl := ocsp.Response{
			Status:       status,
			SerialNumber: req.SerialNumber,
			ThisUpdate:   now.Add(-time.Minute),
			NextUpdate:   now.Add(time.Hour),
		}
		if status == ocsp.Revoked {
			tmpl.RevokedAt = now.Add(-time.Hour)
			tmpl.RevocationReason = ocsp.KeyCompromise
		}
		resp, err := ocsp.CreateResponse(ca.Certificate, ca.Certificate, tmpl, ca.Key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/ocsp-response")
		_, _ = w.Write(resp)
	}))
}

func TestOCSPChecker(t *testing.T) {
	ca := testpki.NewIdentity(t, "AC Teste")
	ctx := context.Background()

	t.Run("good", func(t *testing.T) {
		var calls atomic.Int32
		srv := ocspResponder(t, ca, ocsp.Good, &calls)
		defer srv.Close()

		leaf := ca.Issue(t, "good", testpki.WithOCSPServer(srv.URL))
		checker := NewOCSPChecker(nil)
		assert.NoError(t, checker.CheckRevocation(ctx, leaf.Certificate, ca.Certificate))
		assert.NoError(t, checker.CheckRevocation(ctx, leaf.Certificate, ca.Certificate))
		assert.Equal(t, int32(1), calls.Load(), "second answer comes from the cache")
	})

	t.Run("revoked", func(t *testing.T) {
		var calls atomic.Int32
		srv := ocspResponder(t, ca, ocsp.Revoked, &calls)
		defer srv.Close()

		leaf := ca.Issue(t, "revoked", testpki.WithOCSPServer(srv.URL))
		err := NewOCSPChecker(nil).CheckRevocation(ctx, leaf.Certificate, ca.Certificate)
		assert.ErrorIs(t, err, ErrCertificateRevoked)
	})

	t.Run("no responder", func(t *testing.T) {
		leaf := ca.Issue(t, "no responder")

		assert.NoError(t, NewOCSPChecker(nil).CheckRevocation(ctx, leaf.Certificate, ca.Certificate))

		strict := NewOCSPChecker(&OCSPConfig{Timeout: time.Second, Strict: true})
		assert.Error(t, strict.CheckRevocation(ctx, leaf.Certificate, ca.Certificate))
	})

	t.Run("missing issuer", func(t *testing.T) {
		leaf := ca.Issue(t, "orphan")
		assert.ErrorIs(t, NewOCSPChecker(nil).CheckRevocation(ctx, leaf.Certificate, nil), ErrInvalidCertificate)
	})
}

func TestDefaultCertificateValidator_Revocation(t *testing.T) {
	ca := testpki.NewIdentity(t, "AC Teste")
	var calls atomic.Int32
	srv := ocspResponder(t, ca, ocsp.Revoked, &calls)
	defer srv.Close()

	leaf := ca.Issue(t, "revoked", testpki.WithOCSPServer(srv.URL))
	v := NewDefaultCertificateValidator(WithRevocationChecker(NewOCSPChecker(nil)))
	ctx := context.Background()

	assert.ErrorIs(t, v.Validate(ctx, leaf.Certificate, []*x509.Certificate{ca.Certificate}), ErrCertificateRevoked)

	// Without the issuer there is nothing to ask.
	assert.NoError(t, v.Validate(ctx, leaf.Certificate, nil))
	assert.Equal(t, int32(1), calls.Load())
}
