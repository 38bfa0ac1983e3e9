package arena

import (
	"context"
	"time"

	chess "github.com/corentings/chess/v2"

	"github.com/walterschell/chess-toolkit/engine"
)

// Player sits on one side of the board for one game.
type Player interface {
	Name() string
	// Move returns a move for the side to move in pos.
	Move(ctx context.Context, pos *chess.Position, limit time.Duration) (*chess.Move, error)
	Close() error
}

// Opener starts players by configured name.
type Opener interface {
	Open(ctx context.Context, name string) (Player, error)
}

// GatewayOpener opens engine players through an engine gateway. Each player
// holds its engine process for the whole game.
type GatewayOpener struct {
	Gateway *engine.Gateway
}

// Open starts the named engine.
func (o GatewayOpener) Open(ctx context.Context, name string) (Player, error) {
	h, err := o.Gateway.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return enginePlayer{h}, nil
}

type enginePlayer struct {
	*engine.Handle
}

// Move is not cut short by a stop request; the request finishes or times out
// on its own.
func (p enginePlayer) Move(ctx context.Context, pos *chess.Position, limit time.Duration) (*chess.Move, error) {
	return p.BestMove(context.WithoutCancel(ctx), pos, limit)
}

// humanPlayer waits for moves handed over by SubmitMove.
type humanPlayer struct {
	moves <-chan *chess.Move
}

func (humanPlayer) Name() string { return Human }

func (h humanPlayer) Move(ctx context.Context, _ *chess.Position, _ time.Duration) (*chess.Move, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m := <-h.moves:
		return m, nil
	}
}

func (humanPlayer) Close() error { return nil }
