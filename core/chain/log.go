package chain

import "github.com/decred/slog"

var log = slog.Disabled

// UseLogger sets the logger used by the chain client
func UseLogger(logger slog.Logger) {
	log = logger
}
