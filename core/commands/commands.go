// Package commands implements the wallet command set executed by the
// bridge worker. Every command returns a single string: pretty printed
// JSON on success, {"error": ...} on failure, or help text on misuse.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spectrum-chain/litewallet/core/bridge"
	"github.com/spectrum-chain/litewallet/core/chain"
	"github.com/spectrum-chain/litewallet/core/config"
	"github.com/spectrum-chain/litewallet/core/wallet"
)

// command is one entry in the command table
type command struct {
	short string
	help  string
	exec  func(ctx context.Context, r *Runner, args []string) string
}

// Runner adapts a LightWallet to the bridge.Engine interface
type Runner struct {
	wallet   *wallet.LightWallet
	server   string
	version  string
	commands map[string]*command
}

// NewRunner wraps an opened wallet
func NewRunner(w *wallet.LightWallet, server, version string) *Runner {
	return &Runner{
		wallet:   w,
		server:   server,
		version:  version,
		commands: commandTable(),
	}
}

// NewOpener returns a bridge.Opener that connects to the configured server
// and opens, restores or creates the configured wallet file
func NewOpener(version string) bridge.Opener {
	return func(ctx context.Context, cfg *config.Config) (bridge.Engine, error) {
		w, err := wallet.Open(ctx, wallet.Options{
			Path:     cfg.WalletPath(),
			Seed:     cfg.Seed,
			Birthday: cfg.Birthday,
			Source:   chain.NewClient(cfg.Server),
		})
		if err != nil {
			return nil, err
		}
		return NewRunner(w, cfg.Server.String(), version), nil
	}
}

// Sync performs the initial scan on behalf of the worker
func (r *Runner) Sync(ctx context.Context) (string, error) {
	res, err := r.wallet.Sync(ctx)
	if err != nil {
		return "", err
	}
	return jsonResponse(res), nil
}

// Execute looks up and runs a command by name
func (r *Runner) Execute(ctx context.Context, cmd bridge.Command) string {
	c, ok := r.commands[strings.ToLower(cmd.Name)]
	if !ok {
		return fmt.Sprintf("Unknown command: %s. Type 'help' for a list of commands.", cmd.Name)
	}
	log.Debugf("Running %s", cmd.Name)
	return c.exec(ctx, r, cmd.Params)
}

// Close saves and releases the wallet
func (r *Runner) Close() error {
	return r.wallet.Close()
}

// Names lists every command, sorted
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func jsonResponse(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errResponse(fmt.Errorf("failed to encode response: %w", err))
	}
	return string(data)
}

func errResponse(err error) string {
	return jsonResponse(map[string]string{"error": err.Error()})
}

func successResponse() string {
	return jsonResponse(map[string]string{"result": "success"})
}
