package bridge

import (
	"context"
	"errors"
	"io/fs"

	"github.com/spectrum-chain/litewallet/core/config"
)

// ErrorKind classifies startup failures
type ErrorKind int

const (
	// IOError is any failure other than a permission problem
	IOError ErrorKind = iota

	// PermissionDenied means the wallet could not be opened for lack of
	// access, which includes another process holding it
	PermissionDenied
)

func (k ErrorKind) String() string {
	if k == PermissionDenied {
		return "permission denied"
	}
	return "i/o error"
}

// StartupError is returned when the wallet engine cannot be constructed
type StartupError struct {
	Kind ErrorKind
	Err  error
}

func (e *StartupError) Error() string {
	return e.Err.Error()
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

// IsPermissionDenied reports whether err is a startup failure caused by
// missing access to the wallet
func IsPermissionDenied(err error) bool {
	var serr *StartupError
	return errors.As(err, &serr) && serr.Kind == PermissionDenied
}

// Classify wraps a failure to bring the wallet up into a StartupError
func Classify(err error) *StartupError {
	if errors.Is(err, fs.ErrPermission) {
		return &StartupError{Kind: PermissionDenied, Err: err}
	}
	return &StartupError{Kind: IOError, Err: err}
}

// Startup opens the wallet engine and starts the worker that owns it. It
// returns as soon as the worker is running; an initial sync, if
// configured, continues in the background while commands queue. notify
// receives the sync outcome and may be nil.
func Startup(ctx context.Context, cfg *config.Config, open Opener, notify func(string)) (chan<- Command, <-chan string, error) {
	engine, err := open(ctx, cfg)
	if err != nil {
		return nil, nil, Classify(err)
	}
	if engine == nil {
		return nil, nil, Classify(errors.New("wallet engine was not created"))
	}
	if notify == nil {
		notify = func(string) {}
	}

	cmds := make(chan Command, CommandBuffer)
	resps := make(chan string, ResponseBuffer)

	w := &worker{
		engine:      engine,
		cmds:        cmds,
		resps:       resps,
		syncOnStart: cfg.SyncOnStart,
		notify:      notify,
		state:       stateInitializing,
	}
	go w.run(ctx)

	log.Infof("Wallet worker started (sync on start: %v)", cfg.SyncOnStart)
	return cmds, resps, nil
}
