package security

import "errors"

var (
	// ErrCertificateExpired is returned when a certificate has expired
	ErrCertificateExpired = errors.New("certificate has expired")
	// ErrCertificateNotYetValid is returned when a certificate is not yet valid
	ErrCertificateNotYetValid = errors.New("certificate is not yet valid")
	// ErrCertificateUntrusted is returned when a certificate does not chain to a configured root
	ErrCertificateUntrusted = errors.New("certificate is not trusted")
	// ErrCertificateRevoked is returned when a certificate has been revoked
	ErrCertificateRevoked = errors.New("certificate has been revoked")
	// ErrInvalidCertificate is returned for other certificate validation failures
	ErrInvalidCertificate = errors.New("certificate validation failed")
	// ErrElementNotFound is returned when the element to sign is absent
	ErrElementNotFound = errors.New("element to sign not found")
	// ErrMissingID is returned when the element to sign has no Id attribute
	ErrMissingID = errors.New("element to sign has no Id attribute")
	// ErrAlreadySigned is returned when the element already carries a signature
	ErrAlreadySigned = errors.New("element is already signed")
)

// SigningError reports a failure to produce a signed document. A signing
// attempt that failed is never retried with the same material.
type SigningError struct {
	Tag string
	Err error
}

func (e *SigningError) Error() string {
	if e.Tag == "" {
		return "signing failed: " + e.Err.Error()
	}
	return "signing " + e.Tag + " failed: " + e.Err.Error()
}

func (e *SigningError) Unwrap() error {
	return e.Err
}
