package builder

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/osucollect/osucollect/client"
	"github.com/osucollect/osucollect/collection"
	"github.com/osucollect/osucollect/internal/vars"
)

const (
	schemeHTTPS  = "https"
	lockFileName = ".osucollect.lock"
)

// Config is a parsed configuration file.
type Config struct {
	// ClientID is the ID of the osu! OAuth application.
	ClientID int
	// ClientSecret is the secret of the osu! OAuth application.
	ClientSecret string
	// configFile is the path to any configuration file used when
	// potentially populating Config fields.
	configFile string
	// LinksFile lists the beatmaps to put in the collection, one per line.
	LinksFile string
	// CacheFile holds the checksums of a previous run. When it exists the
	// API is not called unless Refresh is set.
	CacheFile string
	// OutputFile is where the collection database is written.
	OutputFile string
	// CollectionName is the name of the single collection that is built.
	CollectionName string
	// DatabaseVersion is the version stamp of the written database.
	DatabaseVersion int32
	// LockFile is the path of a lock file that ensures that only one
	// osucollect process writes the output at a time.
	LockFile string
	// LockWait is how long to wait for another process to release the lock
	// file. Zero fails at once.
	LockWait time.Duration
	// Parallelism is the number of lookups that may be in flight at once.
	// They all share the same rate limit.
	Parallelism int
	// Proxy is host name or IP address of a proxy server.
	Proxy *url.URL
	// proxyURL is the host value of Proxy
	proxyURL string
	// proxyUserInfo is the userinfo value of Proxy
	proxyUserInfo string
	// Refresh ignores an existing cache file and looks every beatmap up
	// again.
	Refresh bool
	// RequestsPerSecond caps the API request rate. Zero disables the limit.
	RequestsPerSecond float64
	// RetryFor is the retry timeout for a single lookup. It defaults to
	// 1 minute.
	RetryFor time.Duration
	// URL points to the osu! API.
	URL string
	// Verbose turns on debug statements.
	Verbose bool
	// Output turns on sending the build result to stdout as JSON.
	Output bool
}

// Option is a function type that modifies a configuration object.
// It is used to define functions that override a config with
// values set as command line arguments.
type Option func(f *Config) error

// WithParallelism returns an Option that sets the Parallelism
// value of a config.
func WithParallelism(i int) Option {
	return func(c *Config) error {
		if i < 0 {
			return fmt.Errorf("parallelism can't be negative, got '%d'", i)
		}
		if i > 0 {
			c.Parallelism = i
		}
		return nil
	}
}

// WithLinksFile returns an Option that sets the LinksFile value of a config.
func WithLinksFile(path string) Option {
	return func(c *Config) error {
		if path != "" {
			c.LinksFile = filepath.Clean(path)
		}
		return nil
	}
}

// WithCacheFile returns an Option that sets the CacheFile value of a config.
func WithCacheFile(path string) Option {
	return func(c *Config) error {
		if path != "" {
			c.CacheFile = filepath.Clean(path)
		}
		return nil
	}
}

// WithOutputFile returns an Option that sets the OutputFile value of a
// config.
func WithOutputFile(path string) Option {
	return func(c *Config) error {
		if path != "" {
			c.OutputFile = filepath.Clean(path)
		}
		return nil
	}
}

// WithCollectionName returns an Option that sets the CollectionName value
// of a config.
func WithCollectionName(name string) Option {
	return func(c *Config) error {
		if name != "" {
			c.CollectionName = name
		}
		return nil
	}
}

// WithLockWait returns an Option that sets the LockWait value of a config.
func WithLockWait(d time.Duration) Option {
	return func(c *Config) error {
		if d < 0 {
			return fmt.Errorf("lock wait can't be negative, got '%s'", d)
		}
		if d > 0 {
			c.LockWait = d
		}
		return nil
	}
}

// WithRefresh makes the builder ignore the cache file.
func WithRefresh(c *Config) error {
	c.Refresh = true
	return nil
}

// WithVerbose enable verbose output for the config.
func WithVerbose(c *Config) error {
	c.Verbose = true
	return nil
}

// WithOutput enables JSON output for the config.
func WithOutput(c *Config) error {
	c.Output = true
	return nil
}

// WithConfigFile returns an Option that sets the configuration
// file to be used.
func WithConfigFile(file string) Option {
	return func(c *Config) error {
		if file != "" {
			c.configFile = filepath.Clean(file)
		}
		return nil
	}
}

// NewConfig creates a new configuration and populates it based on an optional
// config file pointed to by an option set with WithConfigFile, then by various
// environment variables, and then finally by flag overrides provided by
// flagOptions. Values from the later override the former.
func NewConfig(
	flagOptions ...Option,
) (*Config, error) {
	// config defaults
	config := &Config{
		URL:               vars.DefaultEndpoint,
		LinksFile:         vars.DefaultLinksFile,
		CacheFile:         vars.DefaultCacheFile,
		OutputFile:        vars.DefaultOutputFile,
		CollectionName:    vars.DefaultCollectionName,
		DatabaseVersion:   collection.DefaultVersion,
		RequestsPerSecond: client.DefaultRequestsPerSecond,
		RetryFor:          time.Minute,
		Parallelism:       1,
	}

	// Potentially populate config.configFilePath. We will rerun this function
	// again later to ensure the flag values override env variables.
	err := setConfigFromFlags(config, flagOptions...)
	if err != nil {
		return nil, err
	}

	// Override config with values from the config file.
	if confFile := config.configFile; confFile != "" {
		err = setConfigFromFile(config, confFile)
		if err != nil {
			return nil, err
		}
	}

	// Override config with values from environment variables.
	err = setConfigFromEnv(config)
	if err != nil {
		return nil, err
	}

	// Override config with values from option flags.
	err = setConfigFromFlags(config, flagOptions...)
	if err != nil {
		return nil, err
	}

	config.Proxy, err = parseProxy(config.proxyURL, config.proxyUserInfo)
	if err != nil {
		return nil, err
	}

	if config.LockFile == "" {
		config.LockFile = filepath.Join(filepath.Dir(config.OutputFile), lockFileName)
	}

	err = validateConfig(config)
	if err != nil {
		return nil, err
	}

	// Reset values that were only needed to communicate information between
	// config overrides.

	config.configFile = ""
	config.proxyURL = ""
	config.proxyUserInfo = ""

	return config, nil
}

// hasCredentials reports whether an API client can be created.
func (c *Config) hasCredentials() bool {
	return c.ClientID != 0 && c.ClientSecret != ""
}

// setConfigFromFile sets Config fields based on the configuration file.
func setConfigFromFile(config *Config, path string) error {
	fh, err := os.Open(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}

	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineNumber := 0
	keysSeen := map[string]struct{}{}
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return fmt.Errorf("invalid format on line %d", lineNumber)
		}
		key := fields[0]
		value := strings.Join(fields[1:], " ")

		if _, ok := keysSeen[key]; ok {
			return fmt.Errorf("`%s' is in the config multiple times", key)
		}
		keysSeen[key] = struct{}{}

		switch key {
		case "ClientID":
			if config.ClientID, err = parseClientID(value); err != nil {
				return err
			}
		case "ClientSecret":
			config.ClientSecret = value
		case "LinksFile":
			config.LinksFile = filepath.Clean(value)
		case "CacheFile":
			config.CacheFile = filepath.Clean(value)
		case "OutputFile":
			config.OutputFile = filepath.Clean(value)
		case "CollectionName":
			config.CollectionName = value
		case "DatabaseVersion":
			if config.DatabaseVersion, err = parseDatabaseVersion(value); err != nil {
				return err
			}
		case "Host":
			if config.URL, err = parseHost(value); err != nil {
				return fmt.Errorf("failed to parse Host: %w", err)
			}
		case "LockFile":
			config.LockFile = filepath.Clean(value)
		case "LockWait":
			if config.LockWait, err = parseDuration(value); err != nil {
				return err
			}
		case "Parallelism":
			if config.Parallelism, err = parseParallelism(value); err != nil {
				return err
			}
		case "Proxy":
			config.proxyURL = value
		case "ProxyUserPassword":
			config.proxyUserInfo = value
		case "Refresh":
			if config.Refresh, err = parseSwitch("Refresh", value); err != nil {
				return err
			}
		case "RequestsPerSecond":
			if config.RequestsPerSecond, err = parseRequestsPerSecond(value); err != nil {
				return err
			}
		case "RetryFor":
			if config.RetryFor, err = parseDuration(value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown option on line %d", lineNumber)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	return nil
}

// setConfigFromEnv sets Config fields based on environment variables.
func setConfigFromEnv(config *Config) error {
	var err error

	if value, ok := os.LookupEnv("OSUCOLLECT_CLIENT_ID"); ok {
		if config.ClientID, err = parseClientID(value); err != nil {
			return err
		}
	}

	if value := os.Getenv("OSUCOLLECT_CLIENT_ID_FILE"); value != "" {
		clientID, err := os.ReadFile(filepath.Clean(value))
		if err != nil {
			return fmt.Errorf("failed to open OSUCOLLECT_CLIENT_ID_FILE: %w", err)
		}

		if config.ClientID, err = parseClientID(strings.TrimSpace(string(clientID))); err != nil {
			return err
		}
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_CLIENT_SECRET"); ok {
		config.ClientSecret = value
	}

	if value := os.Getenv("OSUCOLLECT_CLIENT_SECRET_FILE"); value != "" {
		secret, err := os.ReadFile(filepath.Clean(value))
		if err != nil {
			return fmt.Errorf("failed to open OSUCOLLECT_CLIENT_SECRET_FILE: %w", err)
		}

		config.ClientSecret = strings.TrimSpace(string(secret))
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_LINKS_FILE"); ok {
		config.LinksFile = value
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_CACHE_FILE"); ok {
		config.CacheFile = value
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_OUTPUT_FILE"); ok {
		config.OutputFile = value
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_COLLECTION_NAME"); ok {
		config.CollectionName = value
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_DATABASE_VERSION"); ok {
		if config.DatabaseVersion, err = parseDatabaseVersion(value); err != nil {
			return err
		}
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_HOST"); ok {
		if config.URL, err = parseHost(value); err != nil {
			return fmt.Errorf("failed to parse OSUCOLLECT_HOST: %w", err)
		}
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_LOCK_FILE"); ok {
		config.LockFile = value
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_LOCK_WAIT"); ok {
		if config.LockWait, err = parseDuration(value); err != nil {
			return err
		}
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_PARALLELISM"); ok {
		if config.Parallelism, err = parseParallelism(value); err != nil {
			return err
		}
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_PROXY"); ok {
		config.proxyURL = value
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_PROXY_USER_PASSWORD"); ok {
		config.proxyUserInfo = value
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_REFRESH"); ok {
		if config.Refresh, err = parseSwitch("OSUCOLLECT_REFRESH", value); err != nil {
			return err
		}
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_REQUESTS_PER_SECOND"); ok {
		if config.RequestsPerSecond, err = parseRequestsPerSecond(value); err != nil {
			return err
		}
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_RETRY_FOR"); ok {
		if config.RetryFor, err = parseDuration(value); err != nil {
			return err
		}
	}

	if value, ok := os.LookupEnv("OSUCOLLECT_VERBOSE"); ok {
		if config.Verbose, err = parseSwitch("OSUCOLLECT_VERBOSE", value); err != nil {
			return err
		}
	}

	return nil
}

// setConfigFromFlags sets Config fields based on option flags.
func setConfigFromFlags(config *Config, flagOptions ...Option) error {
	for _, option := range flagOptions {
		if err := option(config); err != nil {
			return fmt.Errorf("error applying flag to config: %w", err)
		}
	}
	return nil
}

func validateConfig(config *Config) error {
	if config.ClientID != 0 && config.ClientSecret == "" {
		return errors.New("the `ClientSecret` option is required when `ClientID` is set")
	}

	if config.ClientID == 0 && config.ClientSecret != "" {
		return errors.New("the `ClientID` option is required when `ClientSecret` is set")
	}

	if config.LinksFile == "" {
		return errors.New("the `LinksFile` option is required")
	}

	if config.CacheFile == "" {
		return errors.New("the `CacheFile` option is required")
	}

	if config.OutputFile == "" {
		return errors.New("the `OutputFile` option is required")
	}

	if config.CollectionName == "" {
		return errors.New("the `CollectionName` option can't be empty")
	}

	return nil
}

func parseClientID(value string) (int, error) {
	clientID, err := strconv.Atoi(value)
	if err != nil || clientID < 0 {
		return 0, errors.New("invalid client ID format")
	}
	return clientID, nil
}

func parseDatabaseVersion(value string) (int32, error) {
	version, err := strconv.ParseInt(value, 10, 32)
	if err != nil || version < 0 {
		return 0, fmt.Errorf("'%s' is not a valid database version", value)
	}
	return int32(version), nil
}

func parseHost(value string) (string, error) {
	u, err := url.Parse(value)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		// "osu.ppy.sh" parses as a path.
		u, err = url.Parse(schemeHTTPS + "://" + value)
		if err != nil {
			return "", err
		}
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func parseParallelism(value string) (int, error) {
	parallelism, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("'%s' is not a valid parallelism value: %w", value, err)
	}
	if parallelism <= 0 {
		return 0, fmt.Errorf("parallelism should be greater than 0, got '%d'", parallelism)
	}
	return parallelism, nil
}

func parseRequestsPerSecond(value string) (float64, error) {
	rps, err := strconv.ParseFloat(value, 64)
	if err != nil || rps < 0 || math.IsInf(rps, 0) || math.IsNaN(rps) {
		return 0, fmt.Errorf("'%s' is not a valid request rate", value)
	}
	return rps, nil
}

func parseDuration(value string) (time.Duration, error) {
	dur, err := time.ParseDuration(value)
	if err != nil || dur < 0 {
		return 0, fmt.Errorf("'%s' is not a valid duration", value)
	}
	return dur, nil
}

func parseSwitch(name, value string) (bool, error) {
	if value != "0" && value != "1" {
		return false, fmt.Errorf("`%s' must be 0 or 1", name)
	}
	return value == "1", nil
}

var schemeRE = regexp.MustCompile(`(?i)\A([a-z][a-z0-9+\-.]*)://`)

func parseProxy(
	proxy,
	proxyUserPassword string,
) (*url.URL, error) {
	if proxy == "" {
		return nil, nil
	}
	proxyURL := proxy

	// If no scheme is provided, use http.
	matches := schemeRE.FindStringSubmatch(proxyURL)
	if matches == nil {
		proxyURL = "http://" + proxyURL
	} else {
		scheme := strings.ToLower(matches[1])
		// The http package only supports http, https, and socks5.
		if scheme != "http" && scheme != schemeHTTPS && scheme != "socks5" {
			return nil, fmt.Errorf("unsupported proxy type: %s", scheme)
		}
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy URL: %w", err)
	}

	if !strings.Contains(u.Host, ":") {
		u.Host += ":1080"
	}

	// Credentials in Proxy win over ProxyUserPassword.
	if u.User != nil {
		return u, nil
	}

	if proxyUserPassword == "" {
		return u, nil
	}

	user, password, ok := strings.Cut(proxyUserPassword, ":")
	if !ok {
		return nil, errors.New("proxy user/password is malformed")
	}
	u.User = url.UserPassword(user, password)

	return u, nil
}
