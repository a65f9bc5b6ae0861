package database

import "github.com/osucollect/osucollect/collection"

// ZeroMD5 is the hash reported for an output file that does not exist yet.
const ZeroMD5 = "00000000000000000000000000000000"

// Writer stores a collection database at its target location.
type Writer interface {
	// Write stores db and returns the MD5 of the stored bytes.
	Write(db *collection.Database) (string, error)
	// GetHash returns the MD5 of the currently stored file.
	GetHash() (string, error)
}
