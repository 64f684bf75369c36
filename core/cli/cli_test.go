package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spectrum-chain/litewallet/core/bridge"
	"github.com/spectrum-chain/litewallet/core/config"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// scriptedEngine answers the few commands the front end relies on
type scriptedEngine struct {
	mu     sync.Mutex
	calls  []string
	closed bool
}

func (e *scriptedEngine) Sync(ctx context.Context) (string, error) {
	return `{"synced_height": 7}`, nil
}

func (e *scriptedEngine) Execute(ctx context.Context, cmd bridge.Command) string {
	e.mu.Lock()
	e.calls = append(e.calls, strings.TrimSpace(cmd.Name+" "+strings.Join(cmd.Params, "|")))
	e.mu.Unlock()

	switch cmd.Name {
	case "info":
		return `{"chain_name": "regtest"}`
	case "height":
		return `{"height": 7}`
	case "save", "quit":
		return `{"result": "success"}`
	}
	return cmd.Name + "-response"
}

func (e *scriptedEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *scriptedEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type run struct {
	out    bytes.Buffer
	errOut bytes.Buffer
	cfg    *config.Config
	err    error
}

func runCLI(t *testing.T, eng bridge.Engine, stdin string, args ...string) *run {
	t.Helper()
	r := &run{}
	open := func(ctx context.Context, cfg *config.Config) (bridge.Engine, error) {
		r.cfg = cfg
		return eng, nil
	}
	c := NewCLI("v9.9.9", WithOpener(open), WithIO(strings.NewReader(stdin), &r.out, &r.errOut))
	r.err = c.Run(context.Background(), args)
	return r
}

func TestSingleShotSavesAndCloses(t *testing.T) {
	eng := &scriptedEngine{}
	dir := t.TempDir()
	r := runCLI(t, eng, "", "--datadir", dir, "--nosync", "balance")

	require.NoError(t, r.err)
	require.Equal(t, "balance-response\n", r.out.String())
	require.Equal(t, []string{"balance", "save"}, eng.Calls())
	require.True(t, eng.closed)
	require.False(t, r.cfg.SyncOnStart)
	require.False(t, r.cfg.Interactive)
	require.FileExists(t, filepath.Join(dir, config.DefaultLogName))
}

func TestSingleShotPassesArgumentsThrough(t *testing.T) {
	eng := &scriptedEngine{}
	r := runCLI(t, eng, "", "--datadir", t.TempDir(), "--nosync", "send", "0xabc", "-5", "memo text")

	require.NoError(t, r.err)
	require.Equal(t, []string{"send 0xabc|-5|memo text", "save"}, eng.Calls())
}

func TestSingleShotHelpIsWalletCommand(t *testing.T) {
	eng := &scriptedEngine{}
	r := runCLI(t, eng, "", "--datadir", t.TempDir(), "--nosync", "help")

	require.NoError(t, r.err)
	require.Equal(t, "help-response\n", r.out.String())
}

func TestSingleShotQuitSkipsSave(t *testing.T) {
	eng := &scriptedEngine{}
	r := runCLI(t, eng, "", "--datadir", t.TempDir(), "--nosync", "quit")

	require.NoError(t, r.err)
	require.Equal(t, []string{"quit"}, eng.Calls())
	require.True(t, eng.closed)
}

func TestInteractiveSession(t *testing.T) {
	eng := &scriptedEngine{}
	input := strings.Join([]string{
		"balance",
		"",
		`send "two words" 3`,
		`new "unterminated`,
		"quit",
		"never reached",
	}, "\n") + "\n"

	r := runCLI(t, eng, input, "--datadir", t.TempDir())
	require.NoError(t, r.err)

	out := r.out.String()
	// The sync notice is printed by the worker, so it may precede Ready!
	require.Contains(t, out, "Ready!\n")
	require.Contains(t, out, `{"synced_height": 7}`)
	require.Contains(t, out, "(regtest) Block:7 (type 'help') >> ")
	require.Contains(t, out, "balance-response")
	require.Contains(t, out, "Mismatched Quotes")

	var issued []string
	for _, call := range eng.Calls() {
		if call != "info" && call != "height false" {
			issued = append(issued, call)
		}
	}
	require.Equal(t, []string{"balance", "send two words|3", "quit"}, issued)
	require.True(t, eng.closed)
	require.True(t, r.cfg.Interactive)
	require.True(t, r.cfg.SyncOnStart)
}

func TestInteractiveEOFSaves(t *testing.T) {
	eng := &scriptedEngine{}
	r := runCLI(t, eng, "addresses\n", "--datadir", t.TempDir(), "--nosync")

	require.NoError(t, r.err)
	calls := eng.Calls()
	require.Equal(t, "save", calls[len(calls)-1])
	require.Contains(t, calls, "addresses")
	require.True(t, eng.closed)
}

func TestValidationErrorsAreReported(t *testing.T) {
	tests := []struct {
		name string
		args []string
		kind error
		text string
	}{
		{"missing birthday", []string{"--seed", testPhrase}, config.ErrMissingBirthday, "Please specify the wallet birthday"},
		{"invalid birthday", []string{"--seed", testPhrase, "--birthday", "soon"}, config.ErrInvalidBirthday, "Couldn't parse birthday"},
		{"malformed server", []string{"--server", "localhost"}, config.ErrMalformedServer, "You provided: localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &scriptedEngine{}
			args := append([]string{"--datadir", t.TempDir()}, tt.args...)
			r := runCLI(t, eng, "", append(args, "balance")...)

			require.ErrorIs(t, r.err, tt.kind)
			require.Contains(t, r.errOut.String(), tt.text)
			require.Nil(t, r.cfg, "engine must not be opened")
		})
	}
}

func TestStartupErrorReport(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		permission bool
	}{
		{"permission", fmt.Errorf("failed to lock wallet: %w", fs.ErrPermission), true},
		{"io", errors.New("disk full"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			open := func(ctx context.Context, cfg *config.Config) (bridge.Engine, error) {
				return nil, tt.err
			}
			dir := t.TempDir()
			c := NewCLI("v", WithOpener(open), WithIO(strings.NewReader(""), &out, &errOut))
			err := c.Run(context.Background(), []string{"--datadir", dir, "balance"})

			require.Error(t, err)
			require.Equal(t, tt.permission, bridge.IsPermissionDenied(err))
			msg := errOut.String()
			require.Contains(t, msg, "Error during startup:"+tt.err.Error())
			require.Contains(t, msg, "restore your wallet from your seed phrase")
			if tt.permission {
				require.Contains(t, msg, "HOME: ")
				require.Contains(t, msg, "must have permission to write to '"+dir)
			} else {
				require.NotContains(t, msg, "must have permission")
			}
		})
	}
}

func TestUnwritableDataDirIsReportedAsStartupError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not apply to root")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0500))
	t.Cleanup(func() { os.Chmod(dir, 0700) })

	eng := &scriptedEngine{}
	r := runCLI(t, eng, "", "--datadir", dir, "--nosync", "balance")

	require.Error(t, r.err)
	require.True(t, bridge.IsPermissionDenied(r.err))
	require.Nil(t, r.cfg, "engine must not be opened")

	msg := r.errOut.String()
	require.Contains(t, msg, "Error during startup:")
	require.Contains(t, msg, "restore your wallet from your seed phrase")
	require.Contains(t, msg, "must have permission to write to '"+dir)
	require.NotContains(t, msg, "Error: ")
}

func TestLogSetupFailureIsReportedAsStartupError(t *testing.T) {
	dir := t.TempDir()
	// A directory where the log file should be
	require.NoError(t, os.Mkdir(filepath.Join(dir, "debug.log"), 0700))

	eng := &scriptedEngine{}
	r := runCLI(t, eng, "", "--datadir", dir, "--log", "debug.log", "--nosync", "balance")

	var serr *bridge.StartupError
	require.ErrorAs(t, r.err, &serr)
	require.Equal(t, bridge.IOError, serr.Kind)
	require.Nil(t, r.cfg)

	msg := r.errOut.String()
	require.Contains(t, msg, "Error during startup:")
	require.Contains(t, msg, "restore your wallet from your seed phrase")
	require.NotContains(t, msg, "must have permission")
}

func TestSettingsFromEnvAndConfigFile(t *testing.T) {
	dir := t.TempDir()
	toml := "server = \"http://10.0.0.5:9999\"\nnosync = true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "litewallet.toml"), []byte(toml), 0600))
	t.Setenv("LITEWALLET_WALLET", "other.dat")

	eng := &scriptedEngine{}
	r := runCLI(t, eng, "", "--datadir", dir, "balance")
	require.NoError(t, r.err)

	require.Equal(t, "http://10.0.0.5:9999", r.cfg.Server.String())
	require.Equal(t, filepath.Join(dir, "other.dat"), r.cfg.WalletPath())
	require.False(t, r.cfg.SyncOnStart)

	// Flags win over the file
	eng = &scriptedEngine{}
	r = runCLI(t, eng, "", "--datadir", dir, "--server", "https://node.example:443", "balance")
	require.NoError(t, r.err)
	require.Equal(t, "https://node.example:443", r.cfg.Server.String())
}

func TestVersion(t *testing.T) {
	r := runCLI(t, &scriptedEngine{}, "", "version")
	require.NoError(t, r.err)
	require.Equal(t, "litewallet v9.9.9\n", r.out.String())
	require.Nil(t, r.cfg)
}

func TestRecoverSeed(t *testing.T) {
	dir := t.TempDir()
	damaged := `{"version": 1, "seed": "` + testPhrase + `", "birthday": 3, "addresses": [tru`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultWalletName), []byte(damaged), 0600))

	r := runCLI(t, &scriptedEngine{}, "", "recover", "--datadir", dir)
	require.NoError(t, r.err)
	require.Equal(t, "Recovered seed: '"+testPhrase+"'\n", r.out.String())

	r = runCLI(t, &scriptedEngine{}, "", "recover", "--datadir", t.TempDir())
	require.Error(t, r.err)
	require.Contains(t, r.errOut.String(), "Failed to recover seed")
}
