// Package vars holds values shared between the command and the library
// packages.
package vars

// Version is the program version. It is overwritten by the command from
// build information and sent in the User-Agent of API requests.
var Version = "unknown"

// Defaults for file locations. Relative paths are resolved against the
// working directory.
const (
	DefaultLinksFile      = "links.txt"
	DefaultCacheFile      = "collection_hashes.txt"
	DefaultOutputFile     = "collection.db"
	DefaultCollectionName = "osucollect"
	DefaultEndpoint       = "https://osu.ppy.sh"
)
