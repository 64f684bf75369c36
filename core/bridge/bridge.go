// Package bridge connects a front end to the single goroutine that owns the
// wallet. Every wallet operation travels as a Command over one channel and
// comes back as exactly one string on another, in the order sent.
package bridge

import (
	"context"
	"encoding/json"

	"github.com/spectrum-chain/litewallet/core/config"
)

// Names of commands the bridge itself cares about
const (
	SaveCommand = "save"
	QuitCommand = "quit"
)

// Channel capacities. At most one command is ever outstanding, so one
// slot in each direction means neither side blocks on send.
const (
	CommandBuffer  = 1
	ResponseBuffer = 1
)

// Command is one request to the wallet worker
type Command struct {
	Name   string
	Params []string
}

// NewCommand builds a command, treating a nil params list as empty
func NewCommand(name string, params ...string) Command {
	if params == nil {
		params = []string{}
	}
	return Command{Name: name, Params: params}
}

// Engine executes commands against wallet state. The worker is its only
// caller, so implementations need no locking.
type Engine interface {
	// Sync performs the initial chain scan and describes the outcome
	Sync(ctx context.Context) (string, error)

	// Execute runs one command. Failures are reported in the returned text.
	Execute(ctx context.Context, cmd Command) string

	// Close persists state and releases the wallet
	Close() error
}

// Opener constructs the engine for a configuration. This is where the
// wallet file is touched, so its errors are classified by Startup.
type Opener func(ctx context.Context, cfg *config.Config) (Engine, error)

// errorResponse renders a failure the same way engines render theirs
func errorResponse(msg string) string {
	data, err := json.MarshalIndent(map[string]string{"error": msg}, "", "  ")
	if err != nil {
		return msg
	}
	return string(data)
}
