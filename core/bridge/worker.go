package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
)

type workerState int

const (
	stateInitializing workerState = iota
	stateSyncing
	stateReady
	stateShuttingDown
)

func (s workerState) String() string {
	switch s {
	case stateInitializing:
		return "initializing"
	case stateSyncing:
		return "syncing"
	case stateReady:
		return "ready"
	case stateShuttingDown:
		return "shutting down"
	}
	return fmt.Sprintf("workerState(%d)", int(s))
}

// worker owns the engine for its whole life. Nothing else touches it.
type worker struct {
	engine      Engine
	cmds        <-chan Command
	resps       chan<- string
	syncOnStart bool
	notify      func(string)
	state       workerState
}

func (w *worker) setState(s workerState) {
	log.Debugf("Worker %s -> %s", w.state, s)
	w.state = s
}

// run drives the worker through its states. Commands that arrive while
// syncing stay in the channel until the scan is finished.
func (w *worker) run(ctx context.Context) {
	if w.syncOnStart {
		w.setState(stateSyncing)
		w.initialSync(ctx)
	}

	w.setState(stateReady)
	for cmd := range w.cmds {
		w.resps <- w.execute(ctx, cmd)
		if strings.EqualFold(cmd.Name, QuitCommand) {
			break
		}
	}

	w.setState(stateShuttingDown)
	w.closeEngine()
	close(w.resps)
}

func (w *worker) closeEngine() {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Closing the wallet panicked: %v\n%s", r, debug.Stack())
		}
	}()

	if err := w.engine.Close(); err != nil {
		log.Errorf("Failed to close wallet: %v", err)
	}
}

func (w *worker) initialSync(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Initial sync panicked: %v\n%s", r, debug.Stack())
			w.notify(fmt.Sprintf("Sync error: %v", r))
		}
	}()

	msg, err := w.engine.Sync(ctx)
	if err != nil {
		log.Errorf("Initial sync failed: %v", err)
		w.notify(fmt.Sprintf("Sync error: %v", err))
		return
	}
	w.notify(msg)
}

// execute runs one command and always yields a response
func (w *worker) execute(ctx context.Context, cmd Command) (resp string) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Command %q panicked: %v\n%s", cmd.Name, r, debug.Stack())
			resp = errorResponse(fmt.Sprintf("command %s failed: %v", cmd.Name, r))
		}
	}()

	log.Debugf("Executing %q with %d params", cmd.Name, len(cmd.Params))
	return w.engine.Execute(ctx, cmd)
}
