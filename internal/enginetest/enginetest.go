// Package enginetest turns a test binary into a scripted UCI engine, so tests
// can talk to a real subprocess without an installed engine.
//
// A test package wires it up from TestMain:
//
//	func TestMain(m *testing.M) {
//		enginetest.RunIfRequested()
//		os.Exit(m.Run())
//	}
//
// and launches os.Args[0] with Env(mode) in the child environment.
package enginetest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	chess "github.com/corentings/chess/v2"

	"github.com/walterschell/chess-toolkit/navigation"
)

// EnvMode selects the fake engine behaviour in the child process.
const EnvMode = "CHESS_FAKE_ENGINE"

// Modes understood by Run.
const (
	// First plays the first legal move with a small positive score.
	First = "first"
	// Crash completes the handshake and exits silently when asked to search.
	Crash = "crash"
	// Abort starts answering a search and exits before the best move.
	Abort = "abort"
	// Silent completes the handshake and never answers a search.
	Silent = "silent"
	// Illegal answers every search with a move that is not legal.
	Illegal = "illegal"
	// Hang never answers the handshake.
	Hang = "hang"
)

// Path is the executable to launch: the running test binary.
func Path() string {
	return os.Args[0]
}

// Env is the environment entry that puts the child into mode.
func Env(mode string) []string {
	return []string{EnvMode + "=" + mode}
}

// RunIfRequested runs the fake engine and exits when the process was started
// with EnvMode set. It returns immediately otherwise.
func RunIfRequested() {
	mode := os.Getenv(EnvMode)
	if mode == "" {
		return
	}
	os.Exit(Run(mode, os.Stdin, os.Stdout))
}

// Run serves the UCI protocol on in and out until "quit" or end of input and
// returns the process exit code.
func Run(mode string, in io.Reader, out io.Writer) int {
	send := func(format string, args ...any) {
		fmt.Fprintf(out, format+"\n", args...)
	}
	pos := chess.StartingPosition()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "uci":
			if mode == Hang {
				continue
			}
			send("id name Fake %s", mode)
			send("id author enginetest")
			send("uciok")
		case "isready":
			send("readyok")
		case "position":
			p, err := parsePosition(fields[1:])
			if err != nil {
				send("info string %v", err)
				continue
			}
			pos = p
		case "go":
			switch mode {
			case Crash:
				return 3
			case Abort:
				send("info depth 1 score cp 5 nodes 1 time 1")
				return 4
			case Silent:
				continue
			case Illegal:
				send("bestmove a1h8")
				continue
			}
			moves := pos.ValidMoves()
			if len(moves) == 0 {
				send("bestmove (none)")
				continue
			}
			m := navigation.UCI(&moves[0])
			send("info depth 1 score cp 13 nodes 1 time 1 pv %s", m)
			send("bestmove %s", m)
		case "quit":
			return 0
		}
	}
	return 0
}

// parsePosition handles "startpos [moves ...]" and "fen <fen> [moves ...]".
func parsePosition(args []string) (*chess.Position, error) {
	var pos *chess.Position
	rest := args
	switch {
	case len(args) > 0 && args[0] == "startpos":
		pos = chess.StartingPosition()
		rest = args[1:]
	case len(args) > 0 && args[0] == "fen":
		end := len(args)
		for i, a := range args {
			if a == "moves" {
				end = i
				break
			}
		}
		opt, err := chess.FEN(strings.Join(args[1:end], " "))
		if err != nil {
			return nil, err
		}
		pos = chess.NewGame(opt).Position()
		rest = args[end:]
	default:
		return nil, fmt.Errorf("bad position command %q", strings.Join(args, " "))
	}
	if len(rest) > 0 && rest[0] == "moves" {
		for _, s := range rest[1:] {
			m, err := navigation.ParseUCI(pos, s)
			if err != nil {
				return nil, err
			}
			pos = pos.Update(m)
		}
	}
	return pos, nil
}

// MoveTime is a search limit comfortably above what the fake engine needs.
const MoveTime = 50 * time.Millisecond
