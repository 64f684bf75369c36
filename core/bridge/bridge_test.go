package bridge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spectrum-chain/litewallet/core/config"
)

// fakeEngine records what the worker asks of it
type fakeEngine struct {
	mu       sync.Mutex
	events   []string
	syncGate chan struct{}
	syncErr  error
	closed   chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{closed: make(chan struct{})}
}

func (f *fakeEngine) record(ev string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeEngine) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeEngine) Sync(ctx context.Context) (string, error) {
	f.record("sync:start")
	if f.syncGate != nil {
		<-f.syncGate
	}
	f.record("sync:end")
	if f.syncErr != nil {
		return "", f.syncErr
	}
	return "synced", nil
}

func (f *fakeEngine) Execute(ctx context.Context, cmd Command) string {
	f.record("exec:" + cmd.Name)
	switch cmd.Name {
	case "panic":
		panic("boom")
	case SaveCommand:
		return `{"result": "success"}`
	}
	return cmd.Name + "(" + strings.Join(cmd.Params, ",") + ")"
}

func (f *fakeEngine) Close() error {
	f.record("close")
	close(f.closed)
	return nil
}

func testConfig(t *testing.T, sync bool) *config.Config {
	t.Helper()
	cfg, err := config.Validate(config.RawParams{DataDir: t.TempDir(), NoSync: !sync})
	require.NoError(t, err)
	return cfg
}

func opener(e Engine) Opener {
	return func(ctx context.Context, cfg *config.Config) (Engine, error) {
		return e, nil
	}
}

func roundTrip(t *testing.T, cmds chan<- Command, resps <-chan string, cmd Command) string {
	t.Helper()
	cmds <- cmd
	select {
	case resp, ok := <-resps:
		require.True(t, ok, "response channel closed")
		return resp
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", cmd.Name)
	}
	return ""
}

func waitClosed(t *testing.T, resps <-chan string) {
	t.Helper()
	select {
	case _, ok := <-resps:
		require.False(t, ok, "unexpected response")
	case <-time.After(5 * time.Second):
		t.Fatal("response channel was not closed")
	}
}

func TestResponsesArriveInOrder(t *testing.T) {
	eng := newFakeEngine()
	cmds, resps, err := Startup(context.Background(), testConfig(t, false), opener(eng), nil)
	require.NoError(t, err)

	const n = 50
	for i := 0; i < n; i++ {
		resp := roundTrip(t, cmds, resps, NewCommand("echo", fmt.Sprint(i)))
		require.Equal(t, fmt.Sprintf("echo(%d)", i), resp)
	}

	close(cmds)
	waitClosed(t, resps)
	require.Len(t, eng.Events(), n+1)
}

func TestCommandsQueueDuringSync(t *testing.T) {
	eng := newFakeEngine()
	eng.syncGate = make(chan struct{})

	notified := make(chan string, 1)
	cmds, resps, err := Startup(context.Background(), testConfig(t, true), opener(eng),
		func(msg string) { notified <- msg })
	require.NoError(t, err)

	// Startup must not wait for the sync, and the command must be accepted
	cmds <- NewCommand("balance")

	select {
	case resp := <-resps:
		t.Fatalf("got response %q while syncing", resp)
	case <-time.After(100 * time.Millisecond):
	}
	require.NotContains(t, eng.Events(), "exec:balance")

	close(eng.syncGate)
	select {
	case resp := <-resps:
		require.Equal(t, "balance()", resp)
	case <-time.After(5 * time.Second):
		t.Fatal("queued command never ran")
	}
	require.Equal(t, "synced", <-notified)
	require.Equal(t, []string{"sync:start", "sync:end", "exec:balance"}, eng.Events())

	close(cmds)
	waitClosed(t, resps)
}

func TestSyncFailureStillAcceptsCommands(t *testing.T) {
	eng := newFakeEngine()
	eng.syncErr = errors.New("server unreachable")

	notified := make(chan string, 1)
	cmds, resps, err := Startup(context.Background(), testConfig(t, true), opener(eng),
		func(msg string) { notified <- msg })
	require.NoError(t, err)

	require.Equal(t, "height()", roundTrip(t, cmds, resps, NewCommand("height")))
	require.Contains(t, <-notified, "server unreachable")

	close(cmds)
	waitClosed(t, resps)
}

func TestPanicBecomesResponse(t *testing.T) {
	eng := newFakeEngine()
	cmds, resps, err := Startup(context.Background(), testConfig(t, false), opener(eng), nil)
	require.NoError(t, err)

	resp := roundTrip(t, cmds, resps, NewCommand("panic"))
	require.Contains(t, resp, "boom")
	require.Contains(t, resp, `"error"`)

	// The worker keeps serving after a panic
	require.Equal(t, "info()", roundTrip(t, cmds, resps, NewCommand("info")))

	close(cmds)
	waitClosed(t, resps)
}

func TestSaveIsAlwaysAcknowledged(t *testing.T) {
	eng := newFakeEngine()
	cmds, resps, err := Startup(context.Background(), testConfig(t, false), opener(eng), nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.Contains(t, roundTrip(t, cmds, resps, NewCommand(SaveCommand)), "success")
	}

	close(cmds)
	waitClosed(t, resps)
}

func TestQuitShutsDownWorker(t *testing.T) {
	eng := newFakeEngine()
	cmds, resps, err := Startup(context.Background(), testConfig(t, false), opener(eng), nil)
	require.NoError(t, err)

	require.Equal(t, "quit()", roundTrip(t, cmds, resps, NewCommand(QuitCommand)))
	waitClosed(t, resps)

	select {
	case <-eng.closed:
	default:
		t.Fatal("engine not closed before response channel")
	}
	events := eng.Events()
	require.Equal(t, "close", events[len(events)-1])
}

func TestClosingCommandsShutsDownWorker(t *testing.T) {
	eng := newFakeEngine()
	cmds, resps, err := Startup(context.Background(), testConfig(t, false), opener(eng), nil)
	require.NoError(t, err)

	close(cmds)
	waitClosed(t, resps)
	require.Equal(t, []string{"close"}, eng.Events())
}

// panickyCloser fails hard while releasing the wallet
type panickyCloser struct {
	*fakeEngine
}

func (p panickyCloser) Close() error {
	p.record("close")
	panic("lock file vanished")
}

func TestPanickingCloseStillClosesResponses(t *testing.T) {
	eng := panickyCloser{newFakeEngine()}
	cmds, resps, err := Startup(context.Background(), testConfig(t, false), opener(eng), nil)
	require.NoError(t, err)

	require.Equal(t, "quit()", roundTrip(t, cmds, resps, NewCommand(QuitCommand)))
	waitClosed(t, resps)
	require.Equal(t, []string{"exec:quit", "close"}, eng.Events())
}

func TestStartupClassifiesErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		permission bool
	}{
		{"wrapped permission", fmt.Errorf("failed to lock wallet: %w", fs.ErrPermission), true},
		{"path error EACCES", &fs.PathError{Op: "open", Path: "/w.dat", Err: syscall.EACCES}, true},
		{"os permission", os.ErrPermission, true},
		{"not found", &fs.PathError{Op: "open", Path: "/w.dat", Err: syscall.ENOENT}, false},
		{"generic", errors.New("disk on fire"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			open := func(ctx context.Context, cfg *config.Config) (Engine, error) {
				return nil, tt.err
			}
			cmds, resps, err := Startup(context.Background(), testConfig(t, false), open, nil)
			require.Error(t, err)
			require.Nil(t, cmds)
			require.Nil(t, resps)
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, tt.permission, IsPermissionDenied(err))

			var serr *StartupError
			require.True(t, errors.As(err, &serr))
			if tt.permission {
				require.Equal(t, PermissionDenied, serr.Kind)
			} else {
				require.Equal(t, IOError, serr.Kind)
			}
		})
	}
}

func TestNewCommandParams(t *testing.T) {
	cmd := NewCommand("balance")
	require.NotNil(t, cmd.Params)
	require.Empty(t, cmd.Params)

	cmd = NewCommand("send", "addr", "10")
	require.Equal(t, []string{"addr", "10"}, cmd.Params)
}
