// Package database writes collection databases to disk.
package database

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/osucollect/osucollect/collection"
)

const tempExtension = ".temporary"

// ErrVerifyFailed is returned when the file read back after writing does
// not match the database that was written.
var ErrVerifyFailed = errors.New("written database does not match")

// LocalFileWriter is a database.Writer that stores the database to the
// local file system. The file is replaced atomically: readers see either
// the old or the new database, never a partial one.
type LocalFileWriter struct {
	path    string
	verbose bool
}

// NewLocalFileWriter create a LocalFileWriter for the file at path.
func NewLocalFileWriter(
	path string,
	verbose bool,
) (*LocalFileWriter, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return &LocalFileWriter{
		path:    path,
		verbose: verbose,
	}, nil
}

// Write serializes db into a temporary file, reads it back in strict mode,
// and moves it into place. The temporary file is removed on every path.
func (w *LocalFileWriter) Write(db *collection.Database) (newMD5 string, err error) {
	fw, err := newFileWriter(w.path + tempExtension)
	if err != nil {
		return "", fmt.Errorf("setting up database writer: %w", err)
	}
	defer func() {
		if closeErr := fw.close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("closing file writer: %w", closeErr),
			)
		}
	}()

	if err = fw.write(db); err != nil {
		return "", fmt.Errorf("writing to the temp file: %w", err)
	}

	if err = fw.verify(db); err != nil {
		return "", fmt.Errorf("verifying the temp file: %w", err)
	}

	// move the temporary database file into its final location and
	// sync the directory.
	if err = fw.syncAndRename(w.path); err != nil {
		return "", fmt.Errorf("renaming temp file: %w", err)
	}

	if err = syncDir(filepath.Dir(w.path)); err != nil {
		return "", fmt.Errorf("syncing database directory: %w", err)
	}

	newMD5 = fw.hash()
	if w.verbose {
		log.Printf("Database %s successfully written: %s", w.path, newMD5)
	}

	return newMD5, nil
}

// GetHash returns the hash of the current database file.
func (w *LocalFileWriter) GetHash() (string, error) {
	//nolint:gosec // we really need to read this file.
	database, err := os.Open(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if w.verbose {
				log.Print("Database does not exist, returning zeroed hash")
			}
			return ZeroMD5, nil
		}
		return "", fmt.Errorf("opening database: %w", err)
	}

	defer func() {
		if err := database.Close(); err != nil {
			log.Println(fmt.Errorf("closing database: %w", err))
		}
	}()

	md5Hash := md5.New()
	if _, err := io.Copy(md5Hash, database); err != nil {
		return "", fmt.Errorf("calculating database hash: %w", err)
	}

	result := hex.EncodeToString(md5Hash.Sum(nil))
	if w.verbose {
		log.Printf("Calculated MD5 sum for %s: %s", w.path, result)
	}
	return result, nil
}

// fileWriter writes an encoded database into a temporary file.
type fileWriter struct {
	file *os.File
	// md5Writer sees every byte written to file.
	md5Writer hash.Hash
}

func newFileWriter(path string) (*fileWriter, error) {
	//nolint:gosec // we really need to write this file.
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating temporary file at %s: %w", path, err)
	}

	return &fileWriter{
		file:      file,
		md5Writer: md5.New(),
	}, nil
}

// close closes and deletes the file. After a successful rename there is
// nothing left to delete.
func (w *fileWriter) close() error {
	if err := w.file.Close(); err != nil {
		var perr *os.PathError
		if !errors.As(err, &perr) || !errors.Is(perr.Err, os.ErrClosed) {
			return fmt.Errorf("closing temporary file: %w", err)
		}
	}

	err := os.Remove(w.file.Name())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing temporary file: %w", err)
	}

	return nil
}

func (w *fileWriter) write(db *collection.Database) error {
	buf := bufio.NewWriter(io.MultiWriter(w.md5Writer, w.file))
	if err := collection.Write(buf, db); err != nil {
		return fmt.Errorf("writing database: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("flushing database: %w", err)
	}
	return nil
}

// verify reads the file back from the start and compares it to db.
func (w *fileWriter) verify(db *collection.Database) error {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to start: %w", err)
	}
	read, err := collection.Read(bufio.NewReader(w.file), collection.WithStrict())
	if err != nil {
		return fmt.Errorf("reading database back: %w", err)
	}
	if !read.Equal(db) {
		return ErrVerifyFailed
	}
	return nil
}

func (w *fileWriter) hash() string {
	return hex.EncodeToString(w.md5Writer.Sum(nil))
}

// syncAndRename syncs the content of the file to storage and renames it.
func (w *fileWriter) syncAndRename(name string) error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err := os.Rename(w.file.Name(), name); err != nil {
		return fmt.Errorf("moving database into place: %w", err)
	}
	return nil
}

// syncDir syncs the content of a directory to storage.
func syncDir(path string) error {
	// fsync the directory. https://austingroupbugs.net/view.php?id=672
	//nolint:gosec // we really need to read this file.
	d, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening database directory %s: %w", path, err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Printf("closing directory %s: %+v", path, err)
		}
	}()

	// We ignore Sync errors as they primarily happen on file systems that do
	// not support sync.
	//nolint:errcheck // See above.
	_ = d.Sync()
	return nil
}
