// Package engine runs UCI chess engines as subprocesses and turns their
// replies into legal moves and scores.
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	chess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/uci"
)

var log = slog.Default().With("package", "engine")

// Spec describes how to launch one engine.
type Spec struct {
	Name    string
	Path    string
	Args    []string
	Env     []string          // extra KEY=VALUE entries added to the environment
	Options map[string]string // sent as "setoption name K value V" after the handshake
}

// Process is one running UCI engine.
type Process struct {
	name  string
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu     sync.Mutex
	closed bool

	lines     chan string
	quit      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
}

// Start launches the engine described by spec. It does not run the UCI
// handshake; see Handshake.
func Start(spec Spec) (*Process, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("%w: %s: no executable configured", ErrEngineUnavailable, spec.Name)
	}
	path, err := exec.LookPath(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, spec.Name, err)
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = filepath.Dir(path)
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, spec.Name, err)
	}
	log.Info("engine started", "engine", spec.Name, "path", path, "pid", cmd.Process.Pid)

	p := &Process{
		name:   spec.Name,
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, 100),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go p.readOutput(stdout)
	return p, nil
}

// readOutput forwards engine lines until stdout closes, then reaps the
// process. Lines arriving after Close are discarded.
func (p *Process) readOutput(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug("received response", "engine", p.name, "response", line)
		select {
		case p.lines <- line:
		case <-p.quit:
		}
	}
	close(p.lines)
	err := p.cmd.Wait()
	log.Info("engine exited", "engine", p.name, "err", err)
	close(p.exited)
}

// Send writes one command line to the engine.
func (p *Process) Send(cmd string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("%w: %s is closed", ErrEngineUnavailable, p.name)
	}
	log.Debug("sending command", "engine", p.name, "command", cmd)
	if _, err := fmt.Fprintln(p.stdin, cmd); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, p.name, err)
	}
	return nil
}

// Alive reports whether the engine process is still running.
func (p *Process) Alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// Exited is closed once the engine process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Handshake runs "uci"/"uciok", applies options and waits for "readyok".
func (p *Process) Handshake(ctx context.Context, options map[string]string) error {
	if err := p.Send(uci.CmdUCI.String()); err != nil {
		return err
	}
	if _, err := p.waitFor(ctx, EventUCIOK); err != nil {
		return fmt.Errorf("uci handshake: %w", err)
	}
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := p.Send(uci.CmdSetOption{Name: k, Value: options[k]}.String()); err != nil {
			return err
		}
	}
	return p.Ready(ctx)
}

// Ready sends "isready" and waits for "readyok".
func (p *Process) Ready(ctx context.Context) error {
	if err := p.Send(uci.CmdIsReady.String()); err != nil {
		return err
	}
	if _, err := p.waitFor(ctx, EventReadyOK); err != nil {
		return fmt.Errorf("isready: %w", err)
	}
	return nil
}

// SearchResult is the raw outcome of one "go" command.
type SearchResult struct {
	BestMove string
	Info     Info // last info line that carried a score
}

// Search sets up pos and searches it for movetime, returning the engine's
// best move and its last scored info line. An engine that exits before
// answering at all is reported as ErrEngineUnavailable.
func (p *Process) Search(ctx context.Context, pos *chess.Position, movetime time.Duration) (*SearchResult, error) {
	if movetime < time.Millisecond {
		movetime = time.Millisecond
	}
	if err := p.Send(uci.CmdPosition{Position: pos}.String()); err != nil {
		return nil, err
	}
	if err := p.Send(uci.CmdGo{MoveTime: movetime}.String()); err != nil {
		return nil, err
	}

	result := &SearchResult{}
	replied := false
	for {
		event, err := p.next(ctx)
		if err != nil {
			if errors.Is(err, errEngineExited) && !replied {
				return nil, fmt.Errorf("%w: %s exited before replying", ErrEngineUnavailable, p.name)
			}
			return nil, err
		}
		replied = true
		switch event.Type {
		case EventInfo:
			if info := ParseInfo(event.Raw); info.HasScore {
				result.Info = info
			}
		case EventBestMove:
			if event.Move == "" {
				return nil, fmt.Errorf("%w: %q", ErrEngineProtocol, event.Raw)
			}
			result.BestMove = event.Move
			return result, nil
		}
	}
}

func (p *Process) waitFor(ctx context.Context, want EventType) (Event, error) {
	for {
		event, err := p.next(ctx)
		if err != nil {
			return Event{}, err
		}
		if event.Type == want {
			return event, nil
		}
	}
}

func (p *Process) next(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return Event{}, errEngineExited
		}
		return ParseLine(line), nil
	}
}

var errEngineExited = errors.New("engine stdout closed")

// Close asks the engine to quit and kills it if it has not exited after 3
// seconds. It returns once the process is gone and is safe to call twice.
func (p *Process) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		if !p.closed {
			fmt.Fprintln(p.stdin, uci.CmdQuit.String())
		}
		p.closed = true
		p.stdin.Close()
		p.mu.Unlock()
		close(p.quit)

		select {
		case <-p.exited:
		case <-time.After(3 * time.Second):
			log.Error("engine did not exit in time, killing it", "engine", p.name)
			if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
				err = kerr
			}
			<-p.exited
		}
	})
	return err
}
