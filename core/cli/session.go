package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"

	"github.com/spectrum-chain/litewallet/core/bridge"
)

// errWorkerGone is reported when the response channel closed early
var errWorkerGone = errors.New("wallet worker has shut down")

// syncWriter serializes writes from the prompt and the sync notifier
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// session is one conversation with the wallet worker
type session struct {
	cmds  chan<- bridge.Command
	resps <-chan string
}

// send issues a command and waits for its response. There is no timeout:
// the worker answers every command it reads.
func (s *session) send(name string, params ...string) (string, error) {
	s.cmds <- bridge.NewCommand(name, params...)
	resp, ok := <-s.resps
	if !ok {
		return "", errWorkerGone
	}
	return resp, nil
}

// shutdown closes the command channel and waits until the worker has
// released the wallet
func (s *session) shutdown() {
	close(s.cmds)
	for range s.resps {
	}
}

// runOnce executes a single command, prints its result and saves
func (c *CLI) runOnce(cmds chan<- bridge.Command, resps <-chan string, name string, params []string) error {
	s := &session{cmds: cmds, resps: resps}
	defer s.shutdown()

	resp, err := s.send(name, params...)
	if err != nil {
		fmt.Fprintf(c.errOut, "Error executing command %s: %v\n", name, err)
		return &reportedError{err}
	}
	fmt.Fprintln(c.out, resp)

	if strings.EqualFold(name, bridge.QuitCommand) {
		return nil
	}
	if _, err := s.send(bridge.SaveCommand); err != nil {
		fmt.Fprintf(c.errOut, "Error executing command %s: %v\n", bridge.SaveCommand, err)
		return &reportedError{err}
	}
	return nil
}

// readLines feeds input lines to a channel, closing it at EOF
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Errorf("Failed to read input: %v", err)
		}
	}()
	return lines
}

// prompt renders the interactive prompt from the wallet's current height
func (c *CLI) prompt(s *session, chainName string) (string, error) {
	resp, err := s.send("height", "false")
	if err != nil {
		return "", err
	}
	var h struct {
		Height uint64 `json:"height"`
	}
	if err := json.Unmarshal([]byte(resp), &h); err != nil {
		log.Debugf("Unexpected height response %q: %v", resp, err)
	}
	return fmt.Sprintf("(%s) Block:%d (type 'help') >> ", chainName, h.Height), nil
}

// chainName asks the worker for the chain the wallet is connected to
func (c *CLI) chainName(s *session) (string, error) {
	resp, err := s.send("info")
	if err != nil {
		return "", err
	}
	var info struct {
		ChainName string `json:"chain_name"`
	}
	if err := json.Unmarshal([]byte(resp), &info); err != nil || info.ChainName == "" {
		return "unknown", nil
	}
	return info.ChainName, nil
}

// repl runs the interactive prompt until quit, end of input or interrupt.
// The wallet is saved before returning in every case.
func (c *CLI) repl(ctx context.Context, cmds chan<- bridge.Command, resps <-chan string) error {
	s := &session{cmds: cmds, resps: resps}
	defer s.shutdown()

	fmt.Fprintln(c.out, "Ready!")

	chain, err := c.chainName(s)
	if err != nil {
		fmt.Fprintf(c.errOut, "Error executing command info: %v\n", err)
		return &reportedError{err}
	}

	lines := readLines(c.in)
	for {
		p, err := c.prompt(s, chain)
		if err != nil {
			fmt.Fprintf(c.errOut, "Error executing command height: %v\n", err)
			return &reportedError{err}
		}
		fmt.Fprint(c.out, p)

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			log.Info("Interrupted, saving wallet")
			return c.saveOnExit(s)
		case line, ok = <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				return c.saveOnExit(s)
			}
		}

		words, err := shellquote.Split(line)
		if err != nil {
			fmt.Fprintln(c.out, "Mismatched Quotes")
			continue
		}
		if len(words) == 0 {
			continue
		}

		name := words[0]
		resp, err := s.send(name, words[1:]...)
		if err != nil {
			fmt.Fprintf(c.errOut, "Error executing command %s: %v\n", name, err)
			return &reportedError{err}
		}
		fmt.Fprintln(c.out, resp)

		if strings.EqualFold(name, bridge.QuitCommand) {
			return nil
		}
	}
}

func (c *CLI) saveOnExit(s *session) error {
	resp, err := s.send(bridge.SaveCommand)
	if err != nil {
		fmt.Fprintf(c.errOut, "Error executing command %s: %v\n", bridge.SaveCommand, err)
		return &reportedError{err}
	}
	log.Infof("Saved wallet on exit: %s", resp)
	return nil
}
