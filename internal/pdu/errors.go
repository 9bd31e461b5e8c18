package pdu

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is matched by decode errors for buffers shorter than their headers declare.
	ErrTruncated = errors.New("truncated pdu")
	// ErrInvalidHeader is matched by decode errors for malformed header fields.
	ErrInvalidHeader = errors.New("invalid pdu header")
)

// DecodeError describes why a PDU could not be decoded.
type DecodeError struct {
	Kind   error
	Detail string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

func truncated(format string, args ...any) error {
	return &DecodeError{Kind: ErrTruncated, Detail: fmt.Sprintf(format, args...)}
}

func invalidHeader(format string, args ...any) error {
	return &DecodeError{Kind: ErrInvalidHeader, Detail: fmt.Sprintf(format, args...)}
}
