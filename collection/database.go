// Package collection reads and writes osu! collection databases
// (collection.db).
//
// A database is a version stamp followed by an ordered list of named
// collections, each holding an ordered list of beatmap MD5 checksums. The
// layout is positional with no header or footer:
//
//	int32   version
//	int32   collection count
//	repeated:
//	  string  name
//	  int32   hash count
//	  string  hash (repeated)
//
// Integers are little-endian. A string is a marker byte, 0x00 when absent or
// 0x0b when present, and a present string is followed by its ULEB128 byte
// length and the UTF-8 bytes.
package collection

// DefaultVersion is the client build stamp written by default.
const DefaultVersion int32 = 20220906

// Database is the root of a collection.db file.
type Database struct {
	Version     int32
	Collections []Collection
}

// Collection is a named, ordered list of beatmap checksums. A nil Name or
// hash is written as an absent string, which is distinct from "".
type Collection struct {
	Name   *string
	Hashes []*string
}

// NewDatabase returns a Database holding collections in the given order.
func NewDatabase(version int32, collections ...Collection) *Database {
	if collections == nil {
		collections = []Collection{}
	}
	return &Database{
		Version:     version,
		Collections: collections,
	}
}

// NewCollection returns a Collection with hashes in the given order. The
// hashes are not validated; see BuildCollection for that.
func NewCollection(name *string, hashes ...*string) Collection {
	if hashes == nil {
		hashes = []*string{}
	}
	return Collection{
		Name:   name,
		Hashes: hashes,
	}
}

// String returns a pointer to s, for building optional fields.
func String(s string) *string {
	return &s
}

// Equal reports whether d and o hold the same version and the same
// collections in the same order. Nil and empty lists compare equal; absent
// and empty strings do not.
func (d *Database) Equal(o *Database) bool {
	if d == nil || o == nil {
		return d == o
	}
	if d.Version != o.Version || len(d.Collections) != len(o.Collections) {
		return false
	}
	for i := range d.Collections {
		if !d.Collections[i].Equal(o.Collections[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether c and o have the same name and hashes.
func (c Collection) Equal(o Collection) bool {
	if !equalString(c.Name, o.Name) || len(c.Hashes) != len(o.Hashes) {
		return false
	}
	for i := range c.Hashes {
		if !equalString(c.Hashes[i], o.Hashes[i]) {
			return false
		}
	}
	return true
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
