package collection

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"unicode/utf8"
)

const (
	markerAbsent  byte = 0x00
	markerPresent byte = 0x0b

	// maxStringLength bounds the declared byte length of a string.
	maxStringLength = math.MaxInt32

	// Strings up to this size are read into an exact-size buffer. Longer
	// ones grow as bytes arrive so a forged length cannot force a large
	// allocation.
	directReadLimit = 4096
)

// AppendString appends the encoding of s to dst. A nil s is encoded as a
// single absent marker.
func AppendString(dst []byte, s *string) []byte {
	if s == nil {
		return append(dst, markerAbsent)
	}
	dst = append(dst, markerPresent)
	dst = binary.AppendUvarint(dst, uint64(len(*s)))
	return append(dst, *s...)
}

// EncodeString returns the encoding of s.
func EncodeString(s *string) []byte {
	n := 1
	if s != nil {
		n += binary.MaxVarintLen32 + len(*s)
	}
	return AppendString(make([]byte, 0, n), s)
}

// DecodeString decodes one string from the start of b and returns it with
// the number of bytes consumed. An absent string decodes to nil.
func DecodeString(b []byte) (*string, int, error) {
	d := newDecoder(bytes.NewReader(b))
	s, err := d.readString("")
	if err != nil {
		return nil, 0, err
	}
	return s, int(d.off), nil
}

type byteSource interface {
	io.Reader
	io.ByteReader
}

// decoder reads the primitive types of the format and tracks the offset of
// everything it consumes.
type decoder struct {
	src byteSource
	off int64
	buf [4]byte
}

func newDecoder(r io.Reader) *decoder {
	src, ok := r.(byteSource)
	if !ok {
		src = bufio.NewReader(r)
	}
	return &decoder{src: src}
}

func (d *decoder) Read(p []byte) (int, error) {
	n, err := d.src.Read(p)
	d.off += int64(n)
	return n, err
}

func (d *decoder) ReadByte() (byte, error) {
	c, err := d.src.ReadByte()
	if err == nil {
		d.off++
	}
	return c, err
}

// fail converts a source error into an ErrUnexpectedEOF format error or an
// *IOError.
func (d *decoder) fail(field string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &FormatError{Kind: ErrUnexpectedEOF, Field: field, Offset: d.off}
	}
	return &IOError{Op: "reading " + field, Err: err}
}

func (d *decoder) readString(field string) (*string, error) {
	start := d.off
	marker, err := d.ReadByte()
	if err != nil {
		return nil, d.fail(field, err)
	}

	switch marker {
	case markerAbsent:
		return nil, nil
	case markerPresent:
	default:
		return nil, &FormatError{
			Kind:   ErrInvalidStringMarker,
			Field:  field,
			Offset: start,
			Marker: marker,
		}
	}

	lengthAt := d.off
	n, err := d.readUvarint(field)
	if err != nil {
		return nil, err
	}
	if n > maxStringLength {
		return nil, &FormatError{Kind: ErrLengthOverflow, Field: field, Offset: lengthAt}
	}

	bodyAt := d.off
	body, err := d.readBytes(field, int(n))
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(body) {
		return nil, &FormatError{Kind: ErrInvalidUTF8, Field: field, Offset: bodyAt}
	}

	s := string(body)
	return &s, nil
}

// readUvarint reads a ULEB128 value. It follows binary.ReadUvarint but
// keeps an overlong chain apart from source errors.
func (d *decoder) readUvarint(field string) (uint64, error) {
	start := d.off
	var x uint64
	var s uint
	for i := 0; i < binary.MaxVarintLen64; i++ {
		b, err := d.ReadByte()
		if err != nil {
			return 0, d.fail(field, err)
		}
		if b < 0x80 {
			if i == binary.MaxVarintLen64-1 && b > 1 {
				break
			}
			return x | uint64(b)<<s, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, &FormatError{Kind: ErrLengthOverflow, Field: field, Offset: start}
}

func (d *decoder) readBytes(field string, n int) ([]byte, error) {
	if n <= directReadLimit {
		b := make([]byte, n)
		if _, err := io.ReadFull(d, b); err != nil {
			return nil, d.fail(field, err)
		}
		return b, nil
	}

	b, err := io.ReadAll(io.LimitReader(d, int64(n)))
	if err != nil {
		return nil, d.fail(field, err)
	}
	if len(b) < n {
		return nil, d.fail(field, io.ErrUnexpectedEOF)
	}
	return b, nil
}

func (d *decoder) readInt32(field string) (int32, error) {
	if _, err := io.ReadFull(d, d.buf[:]); err != nil {
		return 0, d.fail(field, err)
	}
	return int32(binary.LittleEndian.Uint32(d.buf[:])), nil //nolint:gosec // two's complement on the wire
}

// readCount reads an int32 element count. Negative counts are rejected.
func (d *decoder) readCount(field string) (int, error) {
	start := d.off
	n, err := d.readInt32(field)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, &FormatError{Kind: ErrLengthOverflow, Field: field, Offset: start}
	}
	return int(n), nil
}
