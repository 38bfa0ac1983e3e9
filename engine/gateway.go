package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	chess "github.com/corentings/chess/v2"

	"github.com/walterschell/chess-toolkit/navigation"
)

const (
	defaultGrace     = 2 * time.Second
	defaultHandshake = 10 * time.Second
)

// Evaluation is an engine's answer about one position. Score is relative to
// the side to move in that position.
type Evaluation struct {
	BestMove *chess.Move
	Score    Score
	HasScore bool
	PV       []*chess.Move // legal prefix of the reported principal variation
	Depth    int
}

// Gateway launches configured engines on request.
type Gateway struct {
	specs     map[string]Spec
	names     []string
	grace     time.Duration
	handshake time.Duration
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGrace sets how long past the move time a request may run before it
// fails with ErrEngineTimeout.
func WithGrace(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.grace = d
	}
}

// WithHandshakeTimeout bounds the UCI handshake of a freshly started engine.
func WithHandshakeTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.handshake = d
	}
}

// NewGateway returns a gateway over specs. Names keep the order given; a
// later spec replaces an earlier one of the same name.
func NewGateway(specs []Spec, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		specs:     make(map[string]Spec, len(specs)),
		grace:     defaultGrace,
		handshake: defaultHandshake,
	}
	for _, s := range specs {
		if _, ok := g.specs[s.Name]; !ok {
			g.names = append(g.names, s.Name)
		}
		g.specs[s.Name] = s
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Names lists the configured engines.
func (g *Gateway) Names() []string {
	return append([]string(nil), g.names...)
}

// Has reports whether name is configured.
func (g *Gateway) Has(name string) bool {
	_, ok := g.specs[name]
	return ok
}

// Spec returns the launch description of name.
func (g *Gateway) Spec(name string) (Spec, bool) {
	s, ok := g.specs[name]
	return s, ok
}

// Open starts the named engine and completes the UCI handshake. The caller
// owns the returned handle and must Close it.
func (g *Gateway) Open(ctx context.Context, name string) (*Handle, error) {
	spec, ok := g.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	proc, err := Start(spec)
	if err != nil {
		return nil, err
	}
	hctx, cancel := context.WithTimeout(ctx, g.handshake)
	defer cancel()
	if err := proc.Handshake(hctx, spec.Options); err != nil {
		proc.Close()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s handshake: %v", ErrEngineTimeout, name, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, name, err)
	}
	return &Handle{name: name, proc: proc, grace: g.grace}, nil
}

// Evaluate starts the named engine, evaluates pos for limit and stops the
// engine again.
func (g *Gateway) Evaluate(ctx context.Context, name string, pos *chess.Position, limit time.Duration) (*Evaluation, error) {
	h, err := g.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return h.Evaluate(ctx, pos, limit)
}

// BestMove starts the named engine, asks it for a move in pos and stops the
// engine again.
func (g *Gateway) BestMove(ctx context.Context, name string, pos *chess.Position, limit time.Duration) (*chess.Move, error) {
	h, err := g.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return h.BestMove(ctx, pos, limit)
}

// Handle is an engine process held across several requests. Requests on one
// handle are serialized.
type Handle struct {
	name  string
	proc  *Process
	grace time.Duration
	mu    sync.Mutex
}

// Name is the configured engine name.
func (h *Handle) Name() string {
	return h.name
}

// Alive reports whether the engine process is still running.
func (h *Handle) Alive() bool {
	return h.proc.Alive()
}

// Close stops the engine process.
func (h *Handle) Close() error {
	return h.proc.Close()
}

// BestMove asks the engine for its move in pos.
func (h *Handle) BestMove(ctx context.Context, pos *chess.Position, limit time.Duration) (*chess.Move, error) {
	ev, err := h.Evaluate(ctx, pos, limit)
	if err != nil {
		return nil, err
	}
	return ev.BestMove, nil
}

// Evaluate searches pos for limit. A request that outlives limit plus the
// grace period fails with ErrEngineTimeout; the engine is then stopped, since
// its protocol state is unknown.
func (h *Handle) Evaluate(ctx context.Context, pos *chess.Position, limit time.Duration) (*Evaluation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.proc.Alive() {
		return nil, fmt.Errorf("%w: %s has exited", ErrEngineUnavailable, h.name)
	}
	if len(pos.ValidMoves()) == 0 {
		return nil, fmt.Errorf("%w: position has no legal moves", ErrEngineProtocol)
	}

	sctx, cancel := context.WithTimeout(ctx, limit+h.grace)
	defer cancel()
	res, err := h.proc.Search(sctx, pos, limit)
	if err != nil {
		switch {
		case errors.Is(err, errEngineExited):
			err = fmt.Errorf("%w: %s exited during search", ErrEngineProtocol, h.name)
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			err = fmt.Errorf("%w: %s gave no move within %s", ErrEngineTimeout, h.name, limit+h.grace)
			h.proc.Close()
		case ctx.Err() != nil:
			h.proc.Close()
		}
		log.Error("engine request failed", "engine", h.name, "error", err)
		return nil, err
	}

	best, err := navigation.ParseUCI(pos, res.BestMove)
	if err != nil {
		return nil, fmt.Errorf("%w: %s played %q: %v", ErrEngineProtocol, h.name, res.BestMove, err)
	}
	ev := &Evaluation{
		BestMove: best,
		Score:    res.Info.Score,
		HasScore: res.Info.HasScore,
		Depth:    res.Info.Depth,
		PV:       legalPrefix(pos, res.Info.PV),
	}
	return ev, nil
}

// legalPrefix converts a UCI move list into moves, stopping at the first
// move that is not legal.
func legalPrefix(pos *chess.Position, pv []string) []*chess.Move {
	var out []*chess.Move
	for _, s := range pv {
		m, err := navigation.ParseUCI(pos, s)
		if err != nil {
			break
		}
		out = append(out, m)
		pos = pos.Update(m)
	}
	return out
}
