package node

import "github.com/decred/slog"

var log = slog.Disabled

// UseLogger sets the logger used by the chain server
func UseLogger(logger slog.Logger) {
	log = logger
}
