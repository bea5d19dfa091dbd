// Package testpki issues throwaway certificates and PKCS#12 containers for
// tests.
package testpki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"
)

// Password protects every container produced by this package.
const Password = "s3cret"

// Identity is a generated key and self-signed certificate.
type Identity struct {
	Key         *rsa.PrivateKey
	Certificate *x509.Certificate
}

// Option adjusts the certificate template.
type Option func(*x509.Certificate)

// WithValidity sets the certificate validity window.
func WithValidity(notBefore, notAfter time.Time) Option {
	return func(c *x509.Certificate) {
		c.NotBefore = notBefore
		c.NotAfter = notAfter
	}
}

// WithDNSNames marks the certificate usable as a TLS server certificate for
// the given names.
func WithDNSNames(names ...string) Option {
	return func(c *x509.Certificate) {
		c.DNSNames = names
	}
}

// WithOCSPServer sets the OCSP responder URL.
func WithOCSPServer(url string) Option {
	return func(c *x509.Certificate) {
		c.OCSPServer = []string{url}
	}
}

// NewIdentity generates a 2048-bit RSA key and a self-signed certificate.
func NewIdentity(t testing.TB, commonName string, opts ...Option) *Identity {
	t.Helper()
	return issue(t, nil, commonName, opts)
}

// Issue generates an identity whose certificate is signed by parent.
func (id *Identity) Issue(t testing.TB, commonName string, opts ...Option) *Identity {
	t.Helper()
	return issue(t, id, commonName, opts)
}

func issue(t testing.TB, parent *Identity, commonName string, opts []Option) *Identity {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Empresa Teste LTDA"},
			CommonName:   commonName,
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, opt := range opts {
		opt(template)
	}

	issuer, signer := template, key
	if parent != nil {
		template.IsCA = false
		template.KeyUsage &^= x509.KeyUsageCertSign
		issuer, signer = parent.Certificate, parent.Key
	}

	der, err := x509.CreateCertificate(rand.Reader, template, issuer, &key.PublicKey, signer)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &Identity{Key: key, Certificate: cert}
}

// PFX packs the identity into a PKCS#12 container protected by Password.
func (id *Identity) PFX(t testing.TB, caCerts ...*x509.Certificate) []byte {
	t.Helper()
	pfx, err := pkcs12.Modern.Encode(id.Key, id.Certificate, caCerts, Password)
	require.NoError(t, err)
	return pfx
}

// TrustStorePFX packs only the certificate, without a private key.
func (id *Identity) TrustStorePFX(t testing.TB) []byte {
	t.Helper()
	pfx, err := pkcs12.Modern.EncodeTrustStore([]*x509.Certificate{id.Certificate}, Password)
	require.NoError(t, err)
	return pfx
}
