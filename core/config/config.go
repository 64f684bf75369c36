// Startup configuration for the light wallet client
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Defaults applied when a value is not supplied
const (
	DefaultServer     = "http://127.0.0.1:9067"
	DefaultAppDir     = "litewallet"
	DefaultWalletName = "litewallet_wallet.dat"
	DefaultLogName    = "litewallet_debug.log"
)

// Validation failures reported before any wallet worker exists
var (
	ErrMissingBirthday = errors.New("missing birthday")
	ErrInvalidBirthday = errors.New("invalid birthday")
	ErrMalformedServer = errors.New("malformed server")
)

// ValidationError carries the offending input alongside the failure kind.
// errors.Is matches it against the sentinel in Kind.
type ValidationError struct {
	Kind  error
	Value string
	Err   error
}

// Error renders the message shown to the user
func (e *ValidationError) Error() string {
	switch e.Kind {
	case ErrMissingBirthday:
		return "ERROR!\n" +
			"Please specify the wallet birthday (eg. '--birthday 600000') to restore from seed.\n" +
			"This should be the block height where the wallet was created. " +
			"If you don't remember the block height, you can pass '--birthday 0' to scan from the start of the blockchain."
	case ErrInvalidBirthday:
		return fmt.Sprintf("Couldn't parse birthday. This should be a block number. Error=%v", e.Err)
	case ErrMalformedServer:
		return fmt.Sprintf("Please provide the --server parameter as [scheme]://[host]:[port].\nYou provided: %s", e.Value)
	}
	return fmt.Sprintf("invalid configuration: %v", e.Kind)
}

// Is lets errors.Is compare against the sentinel kinds
func (e *ValidationError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying parse error, if any
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// RawParams are startup values as the user supplied them. Empty strings mean
// the value was not given.
type RawParams struct {
	Server      string
	Seed        string
	Birthday    string
	DataDir     string
	AppDir      string
	WalletName  string
	LogName     string
	NoSync      bool
	Interactive bool
}

// Config is the validated, immutable startup configuration
type Config struct {
	Server      *url.URL
	Seed        string
	Birthday    uint64
	DataDir     string
	AppDir      string
	WalletName  string
	LogName     string
	SyncOnStart bool
	Interactive bool
}

// Validate turns raw parameters into a Config. It performs no I/O beyond
// looking up the home directory when no data directory is given.
func Validate(raw RawParams) (*Config, error) {
	seed := strings.TrimSpace(raw.Seed)
	birthdayStr := strings.TrimSpace(raw.Birthday)

	var birthday uint64
	switch {
	case seed != "" && birthdayStr == "":
		return nil, &ValidationError{Kind: ErrMissingBirthday}
	case birthdayStr != "":
		b, err := strconv.ParseUint(birthdayStr, 10, 64)
		if err != nil {
			return nil, &ValidationError{Kind: ErrInvalidBirthday, Value: birthdayStr, Err: err}
		}
		birthday = b
	}

	serverStr := strings.TrimSpace(raw.Server)
	if serverStr == "" {
		serverStr = DefaultServer
	}
	server, err := ParseServer(serverStr)
	if err != nil {
		return nil, err
	}

	appDir := orDefault(raw.AppDir, DefaultAppDir)
	dataDir, err := resolveDataDir(raw.DataDir, appDir)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:      server,
		Seed:        seed,
		Birthday:    birthday,
		DataDir:     dataDir,
		AppDir:      appDir,
		WalletName:  orDefault(raw.WalletName, DefaultWalletName),
		LogName:     orDefault(raw.LogName, DefaultLogName),
		SyncOnStart: !raw.NoSync,
		Interactive: raw.Interactive,
	}
	return cfg, nil
}

// ParseServer requires an explicit scheme, host and port
func ParseServer(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, &ValidationError{Kind: ErrMalformedServer, Value: s, Err: err}
	}
	if u.Scheme == "" || u.Hostname() == "" || u.Port() == "" {
		return nil, &ValidationError{Kind: ErrMalformedServer, Value: s}
	}
	if _, err := strconv.ParseUint(u.Port(), 10, 16); err != nil {
		return nil, &ValidationError{Kind: ErrMalformedServer, Value: s, Err: err}
	}
	return u, nil
}

// WalletPath is the absolute location of the wallet file
func (c *Config) WalletPath() string {
	return filepath.Join(c.DataDir, c.WalletName)
}

// LogPath is the absolute location of the debug log
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, c.LogName)
}

// resolveDataDir picks the directory holding wallet and log files.
// An explicit data directory wins; otherwise it is ~/.<appDir>.
func resolveDataDir(dataDir, appDir string) (string, error) {
	if dataDir = strings.TrimSpace(dataDir); dataDir != "" {
		return filepath.Abs(dataDir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, "."+appDir), nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
