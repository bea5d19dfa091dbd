package keystore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

var (
	// ErrIncorrectPassword is returned when the container cannot be opened
	// with the supplied password.
	ErrIncorrectPassword = errors.New("incorrect certificate password")
	// ErrMissingCertificate is returned when the container has no certificate.
	ErrMissingCertificate = errors.New("certificate missing from container")
	// ErrMissingPrivateKey is returned when the container has no private key.
	ErrMissingPrivateKey = errors.New("private key missing from container")
	// ErrMalformedContainer is returned for data that is not PKCS#12.
	ErrMalformedContainer = errors.New("malformed PKCS#12 container")
)

// ExtractionError reports a failure to obtain key material. No partial
// material is ever returned alongside it.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return "certificate extraction failed: " + e.Err.Error()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Material is an extracted key/certificate pair. The private key is only
// held as PEM; SigningPair converts it to a key handle when needed.
type Material struct {
	KeyPEM      []byte
	CertPEM     []byte
	Certificate *x509.Certificate
	CACerts     []*x509.Certificate
}

// Extract decodes a PKCS#12 container.
func Extract(pfx []byte, password string) (*Material, error) {
	if len(pfx) == 0 {
		return nil, &ExtractionError{Err: fmt.Errorf("%w: empty input", ErrMalformedContainer)}
	}

	key, cert, caCerts, err := pkcs12.DecodeChain(pfx, password)
	if err != nil {
		return nil, &ExtractionError{Err: classify(err)}
	}
	if cert == nil {
		return nil, &ExtractionError{Err: ErrMissingCertificate}
	}
	if key == nil {
		return nil, &ExtractionError{Err: ErrMissingPrivateKey}
	}

	if _, ok := key.(crypto.Signer); !ok {
		return nil, &ExtractionError{Err: fmt.Errorf("unsupported private key type %T", key)}
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, &ExtractionError{Err: fmt.Errorf("failed to encode private key: %w", err)}
	}

	return &Material{
		KeyPEM:      pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
		CertPEM:     pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}),
		Certificate: cert,
		CACerts:     caCerts,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, pkcs12.ErrIncorrectPassword), errors.Is(err, pkcs12.ErrDecryption):
		return fmt.Errorf("%w: %v", ErrIncorrectPassword, err)
	case strings.Contains(err.Error(), "private key missing"):
		return fmt.Errorf("%w: %v", ErrMissingPrivateKey, err)
	case strings.Contains(err.Error(), "certificate missing"):
		return fmt.Errorf("%w: %v", ErrMissingCertificate, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformedContainer, err)
}

// TLSCertificate returns the pair for use as a TLS client certificate.
func (m *Material) TLSCertificate() (tls.Certificate, error) {
	pair, err := tls.X509KeyPair(m.CertPEM, m.KeyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to build TLS key pair: %w", err)
	}
	for _, ca := range m.CACerts {
		pair.Certificate = append(pair.Certificate, ca.Raw)
	}
	pair.Leaf = m.Certificate
	return pair, nil
}

// CertificateBase64 returns the DER certificate as bare base64, the form
// carried in ds:X509Certificate.
func (m *Material) CertificateBase64() string {
	return base64.StdEncoding.EncodeToString(m.Certificate.Raw)
}

// Chain returns the leaf certificate followed by the CA certificates.
func (m *Material) Chain() []*x509.Certificate {
	return append([]*x509.Certificate{m.Certificate}, m.CACerts...)
}

// Clear drops the references held by m.
func (m *Material) Clear() {
	if m == nil {
		return
	}
	for i := range m.KeyPEM {
		m.KeyPEM[i] = 0
	}
	m.KeyPEM = nil
	m.CertPEM = nil
	m.Certificate = nil
	m.CACerts = nil
}

// SigningPair converts the PEM key and certificate to the handles a signer
// works with.
func (m *Material) SigningPair() (crypto.Signer, *x509.Certificate, error) {
	if m == nil {
		return nil, nil, &ExtractionError{Err: ErrMissingPrivateKey}
	}
	key, err := ParsePrivateKey(m.KeyPEM)
	if err != nil {
		return nil, nil, err
	}
	cert, err := ParseCertificate(m.CertPEM)
	if err != nil {
		return nil, nil, err
	}
	return key, cert, nil
}

// ParsePrivateKey reads the first private key block of pemData. PKCS#8
// and PKCS#1 RSA encodings are accepted.
func ParsePrivateKey(pemData []byte) (crypto.Signer, error) {
	block := findBlock(pemData, "PRIVATE KEY", "RSA PRIVATE KEY")
	if block == nil {
		return nil, &ExtractionError{Err: fmt.Errorf("%w: no PEM private key block", ErrMissingPrivateKey)}
	}

	var (
		key any
		err error
	)
	if block.Type == "RSA PRIVATE KEY" {
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	} else {
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, &ExtractionError{Err: fmt.Errorf("failed to parse private key: %w", err)}
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, &ExtractionError{Err: fmt.Errorf("unsupported private key type %T", key)}
	}
	return signer, nil
}

// ParseCertificate reads the first certificate block of pemData.
func ParseCertificate(pemData []byte) (*x509.Certificate, error) {
	block := findBlock(pemData, "CERTIFICATE")
	if block == nil {
		return nil, &ExtractionError{Err: fmt.Errorf("%w: no PEM certificate block", ErrMissingCertificate)}
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, &ExtractionError{Err: fmt.Errorf("failed to parse certificate: %w", err)}
	}
	return cert, nil
}

func findBlock(data []byte, types ...string) *pem.Block {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil
		}
		for _, t := range types {
			if block.Type == t {
				return block
			}
		}
	}
}

// CertificateInfo summarizes a certificate for display.
type CertificateInfo struct {
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serialNumber"`
	NotBefore    time.Time `json:"notBefore"`
	NotAfter     time.Time `json:"notAfter"`
	KeyAlgorithm string    `json:"keyAlgorithm"`
	KeySize      int       `json:"keySize"`
}

// Describe summarizes the extracted certificate.
func (m *Material) Describe() CertificateInfo {
	c := m.Certificate
	return CertificateInfo{
		Subject:      c.Subject.String(),
		Issuer:       c.Issuer.String(),
		SerialNumber: c.SerialNumber.String(),
		NotBefore:    c.NotBefore,
		NotAfter:     c.NotAfter,
		KeyAlgorithm: keyAlgorithmName(c.PublicKey),
		KeySize:      keySize(c.PublicKey),
	}
}

func keyAlgorithmName(pub crypto.PublicKey) string {
	switch pub.(type) {
	case *ecdsa.PublicKey:
		return "EC"
	case *rsa.PublicKey:
		return "RSA"
	default:
		return "Unknown"
	}
}

func keySize(pub crypto.PublicKey) int {
	switch k := pub.(type) {
	case *ecdsa.PublicKey:
		return k.Curve.Params().BitSize
	case *rsa.PublicKey:
		return k.N.BitLen()
	default:
		return 0
	}
}
