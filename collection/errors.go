package collection

import (
	"errors"
	"fmt"
)

// Format errors. A *FormatError returned by the decoder matches exactly one
// of these with errors.Is.
var (
	ErrUnexpectedEOF       = errors.New("unexpected end of data")
	ErrInvalidStringMarker = errors.New("invalid string marker")
	ErrLengthOverflow      = errors.New("length overflow")
	ErrInvalidUTF8         = errors.New("invalid UTF-8 in string")
	// ErrTrailingData is only reported by strict reads.
	ErrTrailingData = errors.New("trailing data after last collection")
)

// ErrMalformedChecksum is matched by every *ValidationError.
var ErrMalformedChecksum = errors.New("malformed checksum")

// FormatError reports a byte stream that does not conform to the
// collection database layout.
type FormatError struct {
	// Kind is one of the Err* format sentinels.
	Kind error
	// Field names what was being decoded, e.g. "collection 2 name".
	Field string
	// Offset is the position of the offending byte from the start of the
	// stream.
	Offset int64
	// Marker holds the offending byte for ErrInvalidStringMarker.
	Marker byte
}

func (e *FormatError) Error() string {
	var msg string
	if errors.Is(e.Kind, ErrInvalidStringMarker) {
		msg = fmt.Sprintf("%s 0x%02x", e.Kind, e.Marker)
	} else {
		msg = e.Kind.Error()
	}
	if e.Field == "" {
		return fmt.Sprintf("%s at offset %d", msg, e.Offset)
	}
	return fmt.Sprintf("reading %s: %s at offset %d", e.Field, msg, e.Offset)
}

func (e *FormatError) Unwrap() error {
	return e.Kind
}

// ValidationError reports a checksum that was rejected before it was added
// to a collection.
type ValidationError struct {
	Checksum string
	// Index is the position of Checksum in the input, or -1 when the value
	// was validated on its own.
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s %q: %s", ErrMalformedChecksum, e.Checksum, e.Reason)
	}
	return fmt.Sprintf("%s %q at index %d: %s", ErrMalformedChecksum, e.Checksum, e.Index, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrMalformedChecksum
}

// IOError is a failure of the underlying sink or source. Writing or reading
// stops at the first one.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
