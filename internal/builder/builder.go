// Package builder turns a list of beatmap links into an osu! collection
// database.
package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/osucollect/osucollect/client"
	"github.com/osucollect/osucollect/collection"
	"github.com/osucollect/osucollect/internal"
	"github.com/osucollect/osucollect/internal/builder/cache"
	"github.com/osucollect/osucollect/internal/builder/database"
)

var (
	// ErrNoChecksums is returned when no valid checksum is left to put in
	// the collection. The output file is not touched.
	ErrNoChecksums = errors.New("no valid checksums to write")

	// ErrMissingCredentials is returned when beatmaps have to be looked up
	// but no API credentials are configured.
	ErrMissingCredentials = errors.New(
		"the `ClientID` and `ClientSecret` options are required to look up beatmaps",
	)
)

type lookupClient interface {
	Lookup(ctx context.Context, beatmapID uint32) (client.Beatmap, error)
}

// Result describes a finished build. It is printed as JSON when Output is
// set.
type Result struct {
	OutputFile     string    `json:"output_file"`
	CollectionName string    `json:"collection_name"`
	FromCache      bool      `json:"from_cache"`
	Links          int       `json:"links"`
	Failed         int       `json:"failed"`
	Rejected       int       `json:"rejected"`
	Checksums      int       `json:"checksums"`
	OldHash        string    `json:"old_hash"`
	NewHash        string    `json:"new_hash"`
	BuiltAt        time.Time `json:"built_at"`
}

// Builder uses config data to build a collection database.
type Builder struct {
	config       *Config
	output       *log.Logger
	lookupClient lookupClient
	writer       database.Writer
}

// NewBuilder initializes a new Builder. An API client is only created when
// credentials are configured.
func NewBuilder(config *Config) (*Builder, error) {
	var lc lookupClient
	if config.hasCredentials() {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if config.Proxy != nil {
			transport.Proxy = http.ProxyURL(config.Proxy)
		}
		httpClient := &http.Client{Transport: transport}

		c, err := client.New(
			config.ClientID,
			config.ClientSecret,
			client.WithEndpoint(config.URL),
			client.WithHTTPClient(httpClient),
			client.WithLimiter(client.NewLimiter(config.RequestsPerSecond)),
		)
		if err != nil {
			return nil, err
		}
		lc = c
	}

	writer, err := database.NewLocalFileWriter(config.OutputFile, config.Verbose)
	if err != nil {
		return nil, err
	}

	return &Builder{
		config:       config,
		output:       log.New(os.Stdout, "", 0),
		lookupClient: lc,
		writer:       writer,
	}, nil
}

// Run builds the collection and writes it to the output file.
func (b *Builder) Run(ctx context.Context) error {
	fileLock, err := internal.NewFileLock(b.config.LockFile, b.config.LockWait, b.config.Verbose)
	if err != nil {
		return fmt.Errorf("initializing file lock: %w", err)
	}
	if err := fileLock.Acquire(ctx); err != nil {
		return fmt.Errorf("acquiring file lock: %w", err)
	}
	defer func() {
		if err := fileLock.Release(); err != nil {
			log.Printf("releasing file lock: %s", err)
		}
	}()

	result := Result{
		OutputFile:     b.config.OutputFile,
		CollectionName: b.config.CollectionName,
	}

	checksums, err := b.checksums(ctx, &result)
	if err != nil {
		return err
	}

	built, rejected := collection.BuildCollection(
		collection.String(b.config.CollectionName),
		checksums,
	)
	for _, r := range rejected {
		log.Printf("Skipping checksum: %s", r)
	}
	result.Rejected = len(rejected)
	result.Checksums = len(built.Hashes)

	if len(built.Hashes) == 0 {
		return ErrNoChecksums
	}

	result.OldHash, err = b.writer.GetHash()
	if err != nil {
		return fmt.Errorf("hashing current database: %w", err)
	}

	db := collection.NewDatabase(b.config.DatabaseVersion, built)
	result.NewHash, err = b.writer.Write(db)
	if err != nil {
		return fmt.Errorf("writing database: %w", err)
	}
	result.BuiltAt = time.Now().In(time.UTC)

	if b.config.Verbose {
		log.Printf(
			"Wrote %d checksums to %s (%d failed lookups, %d rejected)",
			result.Checksums, result.OutputFile, result.Failed, result.Rejected,
		)
	}

	if b.config.Output {
		out, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshaling result log: %w", err)
		}
		b.output.Print(string(out))
	}

	return nil
}

// checksums returns the cached checksums, or looks them up when there is
// no cache or Refresh is set.
func (b *Builder) checksums(ctx context.Context, result *Result) ([]string, error) {
	if !b.config.Refresh {
		ok, err := cache.Exists(b.config.CacheFile)
		if err != nil {
			return nil, err
		}
		if ok {
			entries, err := cache.Load(b.config.CacheFile)
			if err != nil {
				return nil, err
			}
			if b.config.Verbose {
				log.Printf("Using %d cached checksums from %s", len(entries), b.config.CacheFile)
			}
			result.FromCache = true
			checksums := make([]string, 0, len(entries))
			for _, e := range entries {
				checksums = append(checksums, e.Checksum)
			}
			return checksums, nil
		}
	}

	entries, err := b.fetch(ctx, result)
	if err != nil {
		return nil, err
	}
	checksums := make([]string, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			checksums = append(checksums, e.Checksum)
		}
	}
	return checksums, nil
}

// fetch looks up every link of the links file and writes the results to
// the cache file in link order. Failed lookups are logged and left out.
func (b *Builder) fetch(ctx context.Context, result *Result) (entries []*cache.Entry, err error) {
	if b.lookupClient == nil {
		return nil, ErrMissingCredentials
	}

	links, err := readLinksFile(b.config.LinksFile)
	if err != nil {
		return nil, err
	}
	result.Links = len(links)
	if b.config.Verbose {
		log.Printf("Looking up %d beatmaps from %s", len(links), b.config.LinksFile)
	}

	cacheWriter, err := cache.Create(b.config.CacheFile)
	if err != nil {
		return nil, err
	}
	ordered := cache.NewOrderedWriter(cacheWriter, len(links))
	defer func() {
		if closeErr := cacheWriter.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		// An empty cache would stop later runs from looking anything up.
		if ordered.Written() == 0 {
			if rmErr := os.Remove(b.config.CacheFile); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = errors.Join(err, fmt.Errorf("removing empty cache file: %w", rmErr))
			}
		}
	}()

	entries, err = internal.ProcessJobs(
		ctx,
		b.config.Parallelism,
		len(links),
		func(ctx context.Context, i int) (*cache.Entry, error) {
			entry, err := b.lookupLink(ctx, links[i])
			if err != nil {
				return nil, err
			}
			if err := ordered.Complete(i, entry); err != nil {
				return nil, err
			}
			return entry, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("looking up beatmaps: %w", err)
	}

	for _, e := range entries {
		if e == nil {
			result.Failed++
		}
	}
	return entries, nil
}

// lookupLink resolves a single link. A link that can't be resolved is
// logged and reported as a nil entry; only errors that concern every link
// are returned.
func (b *Builder) lookupLink(ctx context.Context, link string) (*cache.Entry, error) {
	id, err := client.ParseReference(link)
	if err != nil {
		log.Printf("Skipping link: %s", err)
		return nil, nil
	}

	beatmap, err := b.lookup(ctx, id)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isUnauthorized(err) {
			return nil, err
		}
		if internal.IsNotFound(err) {
			log.Printf("Skipping %s: beatmap %d not found", link, id)
		} else {
			log.Printf("Skipping %s: %s", link, err)
		}
		return nil, nil
	}

	if b.config.Verbose {
		log.Printf("Beatmap %d has checksum %s", beatmap.ID, beatmap.Checksum)
	}

	return &cache.Entry{
		Checksum:     beatmap.Checksum,
		BeatmapsetID: beatmap.BeatmapsetID,
	}, nil
}

// lookup looks up a beatmap with retries. Only server errors, rate limiting
// and transport failures are retried.
func (b *Builder) lookup(ctx context.Context, id uint32) (client.Beatmap, error) {
	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = b.config.RetryFor

	var policy backoff.BackOff = exp
	if b.config.RetryFor == 0 {
		policy = backoff.WithMaxRetries(exp, 0)
	}

	var beatmap client.Beatmap
	err := backoff.RetryNotify(
		func() error {
			var err error
			beatmap, err = b.lookupClient.Lookup(ctx, id)
			if err != nil {
				if isRetryable(err) {
					return err
				}
				return backoff.Permanent(err)
			}
			return nil
		},
		backoff.WithContext(policy, ctx),
		func(err error, d time.Duration) {
			if b.config.Verbose {
				log.Printf("Couldn't look up beatmap %d, retrying in %v: %v", id, d, err)
			}
		},
	)
	if err != nil {
		return client.Beatmap{}, err
	}
	return beatmap, nil
}

// isRetryable reports whether another attempt at a failed lookup may
// succeed. Client errors, missing checksums and responses that don't parse
// are final.
func isRetryable(err error) bool {
	if internal.IsTemporaryError(err) {
		return true
	}
	if internal.IsPermanentError(err) || errors.Is(err, client.ErrMissingChecksum) {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// A connection dropped while the body was read.
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func isUnauthorized(err error) bool {
	var httpErr internal.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized
}

func readLinksFile(path string) ([]string, error) {
	fh, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("opening links file: %w", err)
	}
	defer fh.Close()

	return client.ReadLinks(fh)
}
