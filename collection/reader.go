package collection

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ReadOption configures Read and Unmarshal.
type ReadOption func(*readOptions)

type readOptions struct {
	strict bool
}

// WithStrict makes a read fail with ErrTrailingData when bytes remain after
// the last declared collection. By default they are ignored.
func WithStrict() ReadOption {
	return func(o *readOptions) {
		o.strict = true
	}
}

// Read parses a database from r. Read may consume bytes from r beyond the
// end of the database unless r implements io.ByteReader.
func Read(r io.Reader, opts ...ReadOption) (*Database, error) {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}

	d := newDecoder(r)
	db, err := d.readDatabase()
	if err != nil {
		return nil, err
	}

	if o.strict {
		if err := d.expectEOF(); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Unmarshal parses a database from b.
func Unmarshal(b []byte, opts ...ReadOption) (*Database, error) {
	return Read(bytes.NewReader(b), opts...)
}

func (d *decoder) readDatabase() (*Database, error) {
	version, err := d.readInt32("version")
	if err != nil {
		return nil, err
	}

	count, err := d.readCount("collection count")
	if err != nil {
		return nil, err
	}

	// Slices grow with what is actually read, never from the declared count.
	collections := []Collection{}
	for i := 0; i < count; i++ {
		c, err := d.readCollection(i)
		if err != nil {
			return nil, err
		}
		collections = append(collections, c)
	}

	return &Database{
		Version:     version,
		Collections: collections,
	}, nil
}

func (d *decoder) readCollection(i int) (Collection, error) {
	name, err := d.readString(fmt.Sprintf("collection %d name", i))
	if err != nil {
		return Collection{}, err
	}

	count, err := d.readCount(fmt.Sprintf("collection %d hash count", i))
	if err != nil {
		return Collection{}, err
	}

	hashes := []*string{}
	for j := 0; j < count; j++ {
		h, err := d.readString(fmt.Sprintf("collection %d hash %d", i, j))
		if err != nil {
			return Collection{}, err
		}
		hashes = append(hashes, h)
	}

	return Collection{
		Name:   name,
		Hashes: hashes,
	}, nil
}

func (d *decoder) expectEOF() error {
	_, err := d.src.ReadByte()
	switch {
	case err == nil:
		return &FormatError{Kind: ErrTrailingData, Offset: d.off}
	case errors.Is(err, io.EOF):
		return nil
	default:
		return &IOError{Op: "checking for trailing data", Err: err}
	}
}
