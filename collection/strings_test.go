package collection

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	tests := []struct {
		description string
		input       *string
		prefix      []byte
	}{
		{
			description: "absent",
			input:       nil,
			prefix:      []byte{0x00},
		},
		{
			description: "empty",
			input:       String(""),
			prefix:      []byte{0x0b, 0x00},
		},
		{
			description: "one character",
			input:       String("a"),
			prefix:      []byte{0x0b, 0x01, 'a'},
		},
		{
			description: "127 bytes fits one length byte",
			input:       String(strings.Repeat("x", 127)),
			prefix:      []byte{0x0b, 0x7f},
		},
		{
			description: "128 bytes needs two length bytes",
			input:       String(strings.Repeat("x", 128)),
			prefix:      []byte{0x0b, 0x80, 0x01},
		},
		{
			description: "length counts bytes not runes",
			input:       String("ümlaut"),
			prefix:      []byte{0x0b, 0x07},
		},
		{
			description: "checksum",
			input:       String("d41d8cd98f00b204e9800998ecf8427e"),
			prefix:      []byte{0x0b, 0x20, 'd'},
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			encoded := EncodeString(test.input)
			require.Equal(t, test.prefix, encoded[:len(test.prefix)])

			decoded, n, err := DecodeString(encoded)
			require.NoError(t, err)
			require.Equal(t, len(encoded), n)
			require.Equal(t, test.input, decoded)
		})
	}
}

func TestDecodeStringStopsAtEnd(t *testing.T) {
	b := AppendString(nil, String("demo"))
	b = append(b, 0xff, 0xff)

	s, n, err := DecodeString(b)
	require.NoError(t, err)
	require.Equal(t, "demo", *s)
	require.Equal(t, 6, n)

	s, n, err = DecodeString([]byte{0x00, 0x0b})
	require.NoError(t, err)
	require.Nil(t, s)
	require.Equal(t, 1, n)
}

func TestDecodeStringErrors(t *testing.T) {
	tests := []struct {
		description string
		input       []byte
		kind        error
		offset      int64
	}{
		{
			description: "empty input",
			input:       []byte{},
			kind:        ErrUnexpectedEOF,
			offset:      0,
		},
		{
			description: "unknown marker",
			input:       []byte{0x01, 0x02, 0x03},
			kind:        ErrInvalidStringMarker,
			offset:      0,
		},
		{
			description: "missing length",
			input:       []byte{0x0b},
			kind:        ErrUnexpectedEOF,
			offset:      1,
		},
		{
			description: "unterminated length",
			input:       []byte{0x0b, 0x80},
			kind:        ErrUnexpectedEOF,
			offset:      2,
		},
		{
			description: "declared length exceeds remaining bytes",
			input:       []byte{0x0b, 0x05, 'a', 'b'},
			kind:        ErrUnexpectedEOF,
			offset:      4,
		},
		{
			description: "length above int32 range",
			input:       []byte{0x0b, 0x80, 0x80, 0x80, 0x80, 0x08},
			kind:        ErrLengthOverflow,
			offset:      1,
		},
		{
			description: "continuation chain longer than 64 bits",
			input: []byte{
				0x0b,
				0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80, 0x80,
				0x01,
			},
			kind:   ErrLengthOverflow,
			offset: 1,
		},
		{
			description: "tenth length byte overflows",
			input: []byte{
				0x0b,
				0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x02,
			},
			kind:   ErrLengthOverflow,
			offset: 1,
		},
		{
			description: "invalid UTF-8",
			input:       []byte{0x0b, 0x02, 0xff, 0xfe},
			kind:        ErrInvalidUTF8,
			offset:      2,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			s, n, err := DecodeString(test.input)
			require.ErrorIs(t, err, test.kind)
			require.Nil(t, s)
			require.Zero(t, n)

			var formatErr *FormatError
			require.ErrorAs(t, err, &formatErr)
			require.Equal(t, test.offset, formatErr.Offset)
		})
	}
}

func TestDecodeStringReportsMarker(t *testing.T) {
	_, _, err := DecodeString([]byte{0x01})

	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	require.Equal(t, byte(0x01), formatErr.Marker)
	require.EqualError(t, err, "invalid string marker 0x01 at offset 0")
}
