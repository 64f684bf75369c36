package cli

import (
	"github.com/decred/slog"

	"github.com/spectrum-chain/litewallet/core/bridge"
	"github.com/spectrum-chain/litewallet/core/chain"
	"github.com/spectrum-chain/litewallet/core/commands"
	"github.com/spectrum-chain/litewallet/core/config"
	"github.com/spectrum-chain/litewallet/core/logging"
	"github.com/spectrum-chain/litewallet/core/wallet"
)

var log = slog.Disabled

// UseLogger sets the logger used by the front end
func UseLogger(logger slog.Logger) {
	log = logger
}

// setupLogging opens the rotating debug log in the data directory and
// hands each subsystem its tagged logger. Nothing is logged to the
// terminal, which belongs to the prompt.
func setupLogging(cfg *config.Config, lvl slog.Level) (*logging.Backend, error) {
	backend, err := logging.NewFileBackend(cfg.LogPath(), lvl)
	if err != nil {
		return nil, err
	}

	wallet.UseLogger(backend.SubLogger("WLLT"))
	bridge.UseLogger(backend.SubLogger("BRDG"))
	commands.UseLogger(backend.SubLogger("CMDS"))
	chain.UseLogger(backend.SubLogger("CHAN"))
	UseLogger(backend.SubLogger("LWCL"))
	return backend, nil
}
