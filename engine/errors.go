package engine

import "errors"

var (
	// ErrEngineUnavailable is returned when an engine executable cannot be
	// launched, or when a held engine process has exited.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrEngineTimeout is returned when an engine does not answer within the
	// time limit plus the grace period.
	ErrEngineTimeout = errors.New("engine timed out")
	// ErrEngineProtocol is returned for replies that break the UCI contract,
	// including a best move that is not legal in the position.
	ErrEngineProtocol = errors.New("engine protocol error")
	// ErrUnknownEngine is returned for a name missing from the gateway.
	ErrUnknownEngine = errors.New("unknown engine")
)
