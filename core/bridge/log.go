package bridge

import "github.com/decred/slog"

var log = slog.Disabled

// UseLogger sets the logger used by the wallet worker
func UseLogger(logger slog.Logger) {
	log = logger
}
