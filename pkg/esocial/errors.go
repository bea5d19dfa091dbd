package esocial

import (
	"errors"
	"fmt"
)

// ErrMalformedDocument is returned when the signed document cannot be parsed.
var ErrMalformedDocument = errors.New("signed document is not well-formed XML")

// MissingFieldError reports a value the lot header needs but the signed
// document does not carry. It is raised before any network I/O.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("signed document has no %s", e.Field)
}

// TransportError reports that no response was obtained from the service.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transmission to %s failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
