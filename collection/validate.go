package collection

import "fmt"

// ChecksumLength is the length of a hex-encoded MD5 digest.
const ChecksumLength = 32

// Validate reports whether hash is a lowercase hex MD5 digest. It returns a
// *ValidationError otherwise.
func Validate(hash string) error {
	if err := validateAt(hash, -1); err != nil {
		return err
	}
	return nil
}

func validateAt(hash string, index int) *ValidationError {
	if len(hash) != ChecksumLength {
		return &ValidationError{
			Checksum: hash,
			Index:    index,
			Reason:   fmt.Sprintf("want %d characters, got %d", ChecksumLength, len(hash)),
		}
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') {
			continue
		}
		return &ValidationError{
			Checksum: hash,
			Index:    index,
			Reason:   fmt.Sprintf("invalid character %q at position %d", c, i),
		}
	}
	return nil
}

// Filter validates hashes and returns the valid ones in their original
// order. Every rejected entry is returned as a *ValidationError carrying its
// index in hashes. Rejections never stop the rest of the batch.
func Filter(hashes []string) ([]*string, []*ValidationError) {
	valid := make([]*string, 0, len(hashes))
	var rejected []*ValidationError
	for i, h := range hashes {
		if err := validateAt(h, i); err != nil {
			rejected = append(rejected, err)
			continue
		}
		valid = append(valid, String(h))
	}
	return valid, rejected
}

// BuildCollection builds a collection from the valid entries of hashes. If
// every entry is rejected the result is an empty collection; whether that
// is acceptable is up to the caller.
func BuildCollection(name *string, hashes []string) (Collection, []*ValidationError) {
	valid, rejected := Filter(hashes)
	return NewCollection(name, valid...), rejected
}
