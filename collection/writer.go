package collection

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// flushSize is how much encoded data is buffered before it is handed to the
// sink.
const flushSize = 32 * 1024

// ErrNilDatabase is returned when asked to write a nil *Database.
var ErrNilDatabase = errors.New("cannot write a nil database")

// Write serializes db to w in a single pass. Collections and hashes are
// written in slice order.
//
// Write stops at the first error from w and returns it as an *IOError. The
// sink may then hold a partial database; callers that need all-or-nothing
// semantics should write to a temporary file and rename it.
func Write(w io.Writer, db *Database) error {
	if db == nil {
		return ErrNilDatabase
	}
	if err := checkLengths(db); err != nil {
		return err
	}

	e := encoder{w: w, buf: make([]byte, 0, 512)}
	e.putInt32(db.Version)
	e.putInt32(int32(len(db.Collections))) //nolint:gosec // checked above
	for i, c := range db.Collections {
		e.putString(c.Name)
		e.putInt32(int32(len(c.Hashes))) //nolint:gosec // checked above
		for _, h := range c.Hashes {
			e.putString(h)
		}
		if e.err == nil && len(e.buf) >= flushSize {
			e.flush(fmt.Sprintf("writing collection %d", i))
		}
		if e.err != nil {
			return e.err
		}
	}
	e.flush("writing database")
	return e.err
}

// Marshal returns the serialized form of db.
func Marshal(db *Database) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, db); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// checkLengths rejects anything whose length does not fit the int32 counts
// and string lengths of the format.
func checkLengths(db *Database) error {
	if len(db.Collections) > math.MaxInt32 {
		return fmt.Errorf("%w: %d collections", ErrLengthOverflow, len(db.Collections))
	}
	for i, c := range db.Collections {
		if c.Name != nil && len(*c.Name) > maxStringLength {
			return fmt.Errorf("%w: name of collection %d", ErrLengthOverflow, i)
		}
		if len(c.Hashes) > math.MaxInt32 {
			return fmt.Errorf("%w: %d hashes in collection %d", ErrLengthOverflow, len(c.Hashes), i)
		}
		for j, h := range c.Hashes {
			if h != nil && len(*h) > maxStringLength {
				return fmt.Errorf("%w: hash %d of collection %d", ErrLengthOverflow, j, i)
			}
		}
	}
	return nil
}

// encoder buffers encoded fields and remembers the first sink error.
type encoder struct {
	w   io.Writer
	buf []byte
	err error
}

func (e *encoder) putInt32(v int32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v)) //nolint:gosec // two's complement on the wire
}

func (e *encoder) putString(s *string) {
	e.buf = AppendString(e.buf, s)
}

func (e *encoder) flush(op string) {
	if e.err != nil || len(e.buf) == 0 {
		return
	}
	if _, err := e.w.Write(e.buf); err != nil {
		e.err = &IOError{Op: op, Err: err}
		return
	}
	e.buf = e.buf[:0]
}
