// Package cache stores looked up checksums in a text file so a collection
// can be rebuilt without calling the API again.
//
// Each line holds one beatmap as "checksum|beatmapsetID". Only the checksum
// is required when reading.
package cache

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Entry is one cached lookup.
type Entry struct {
	Checksum     string
	BeatmapsetID uint32
}

func (e Entry) String() string {
	return e.Checksum + "|" + strconv.FormatUint(uint64(e.BeatmapsetID), 10)
}

// Exists reports whether a cache file is present at path.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking cache file: %w", err)
}

// Load reads the entries of the cache file at path in file order. Blank
// lines are skipped. A beatmapset ID that does not parse is left as 0.
func Load(path string) ([]Entry, error) {
	fh, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("opening cache file: %w", err)
	}
	defer fh.Close()

	var entries []Entry
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		checksum, setID, _ := strings.Cut(scanner.Text(), "|")
		checksum = strings.TrimSpace(checksum)
		if checksum == "" {
			continue
		}

		entry := Entry{Checksum: checksum}
		if id, err := strconv.ParseUint(strings.TrimSpace(setID), 10, 32); err == nil {
			entry.BeatmapsetID = uint32(id)
		}
		entries = append(entries, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading cache file: %w", err)
	}

	return entries, nil
}

// Writer appends entries to a cache file. Each entry is flushed as soon as
// it is added so an interrupted run keeps what it fetched.
type Writer struct {
	file *os.File
	buf  *bufio.Writer
}

// Create truncates or creates the cache file at path.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	//nolint:gosec // we really need to write this file.
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating cache file: %w", err)
	}

	return &Writer{
		file: file,
		buf:  bufio.NewWriter(file),
	}, nil
}

// Add appends e to the file.
func (w *Writer) Add(e Entry) error {
	if _, err := w.buf.WriteString(e.String() + "\n"); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	if err := errors.Join(flushErr, closeErr); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	return nil
}

// OrderedWriter adds entries to a Writer in index order while lookups
// complete in any order. A completed slot without an entry is skipped.
//
// It is safe for concurrent use.
type OrderedWriter struct {
	mu        sync.Mutex
	w         *Writer
	completed []bool
	entries   []*Entry
	next      int
	written   int
}

// NewOrderedWriter returns an OrderedWriter for n slots.
func NewOrderedWriter(w *Writer, n int) *OrderedWriter {
	return &OrderedWriter{
		w:         w,
		completed: make([]bool, n),
		entries:   make([]*Entry, n),
	}
}

// Complete records the outcome of slot i, nil for a failed lookup, and
// writes every entry that no longer waits on an earlier slot.
func (o *OrderedWriter) Complete(i int, e *Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if i < 0 || i >= len(o.completed) {
		return fmt.Errorf("cache slot %d out of range", i)
	}
	if o.completed[i] {
		return fmt.Errorf("cache slot %d completed twice", i)
	}
	o.completed[i] = true
	o.entries[i] = e

	for o.next < len(o.completed) && o.completed[o.next] {
		if entry := o.entries[o.next]; entry != nil {
			if err := o.w.Add(*entry); err != nil {
				return err
			}
			o.written++
		}
		o.entries[o.next] = nil
		o.next++
	}
	return nil
}

// Written returns the number of entries written so far.
func (o *OrderedWriter) Written() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.written
}
