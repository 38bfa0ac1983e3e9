package engine

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	chess "github.com/corentings/chess/v2"

	"github.com/walterschell/chess-toolkit/internal/enginetest"
	"github.com/walterschell/chess-toolkit/navigation"
)

func TestMain(m *testing.M) {
	enginetest.RunIfRequested()
	os.Exit(m.Run())
}

func fake(name, mode string) Spec {
	return Spec{Name: name, Path: enginetest.Path(), Env: enginetest.Env(mode)}
}

func testGateway(opts ...GatewayOption) *Gateway {
	return NewGateway([]Spec{
		fake("first", enginetest.First),
		fake("crash", enginetest.Crash),
		fake("abort", enginetest.Abort),
		fake("silent", enginetest.Silent),
		fake("illegal", enginetest.Illegal),
		fake("hang", enginetest.Hang),
		{Name: "missing", Path: "/nonexistent/engine-binary"},
	}, opts...)
}

func TestGatewayEvaluate(t *testing.T) {
	g := testGateway()
	ctx := context.Background()
	pos := chess.StartingPosition()

	ev, err := g.Evaluate(ctx, "first", pos, enginetest.MoveTime)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if navigation.FindLegal(pos, ev.BestMove.S1(), ev.BestMove.S2(), ev.BestMove.Promo()) == nil {
		t.Errorf("best move %s is not legal", ev.BestMove)
	}
	if !ev.HasScore || ev.Score.Centipawns != 13 || ev.Score.IsMate {
		t.Errorf("Score = %+v, want 13 cp", ev.Score)
	}
	if ev.Depth != 1 {
		t.Errorf("Depth = %d, want 1", ev.Depth)
	}
	if len(ev.PV) != 1 || navigation.UCI(ev.PV[0]) != navigation.UCI(ev.BestMove) {
		t.Errorf("PV = %v, want [%s]", ev.PV, ev.BestMove)
	}
}

func TestGatewayBestMoveFromFEN(t *testing.T) {
	g := testGateway()
	opt, err := chess.FEN("4k3/8/8/8/8/8/4P3/4K3 b - - 0 1")
	if err != nil {
		t.Fatal(err)
	}
	pos := chess.NewGame(opt).Position()
	m, err := g.BestMove(context.Background(), "first", pos, enginetest.MoveTime)
	if err != nil {
		t.Fatalf("BestMove: %v", err)
	}
	if pos.Board().Piece(m.S1()) != chess.BlackKing {
		t.Errorf("best move %s does not move the black king", m)
	}
}

func TestGatewayErrors(t *testing.T) {
	g := testGateway(WithGrace(200*time.Millisecond), WithHandshakeTimeout(500*time.Millisecond))
	pos := chess.StartingPosition()
	tests := []struct {
		name string
		want error
	}{
		{"nobody", ErrUnknownEngine},
		{"missing", ErrEngineUnavailable},
		{"illegal", ErrEngineProtocol},
		{"crash", ErrEngineUnavailable},
		{"abort", ErrEngineProtocol},
		{"silent", ErrEngineTimeout},
		{"hang", ErrEngineTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.BestMove(context.Background(), tt.name, pos, 10*time.Millisecond)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHandleReuse(t *testing.T) {
	g := testGateway()
	ctx := context.Background()
	h, err := g.Open(ctx, "first")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	c, err := navigation.NewCursor()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		m, err := h.BestMove(ctx, c.Position(), enginetest.MoveTime)
		if err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
		if _, err := c.ApplyMove(m); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
	}
	if !h.Alive() {
		t.Error("handle died between requests")
	}
	if err := h.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if h.Alive() {
		t.Error("Alive() = true after Close")
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestHandleCrashedEngine(t *testing.T) {
	g := testGateway()
	ctx := context.Background()
	h, err := g.Open(ctx, "crash")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	if _, err := h.Evaluate(ctx, chess.StartingPosition(), enginetest.MoveTime); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("first request error = %v, want ErrEngineUnavailable", err)
	}
	select {
	case <-h.proc.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("crashed engine was not reaped")
	}
	if h.Alive() {
		t.Error("Alive() = true for a crashed engine")
	}
	if _, err := h.Evaluate(ctx, chess.StartingPosition(), enginetest.MoveTime); !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("second request error = %v, want ErrEngineUnavailable", err)
	}
}

func TestEvaluateTerminalPosition(t *testing.T) {
	c, err := navigation.NewCursor()
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		if _, err := c.ApplyUCI(m); err != nil {
			t.Fatal(err)
		}
	}
	g := testGateway()
	if _, err := g.Evaluate(context.Background(), "first", c.Position(), enginetest.MoveTime); !errors.Is(err, ErrEngineProtocol) {
		t.Errorf("error = %v, want ErrEngineProtocol", err)
	}
}

func TestGatewayNames(t *testing.T) {
	g := NewGateway([]Spec{{Name: "b"}, {Name: "a"}, {Name: "b", Path: "x"}})
	names := g.Names()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Errorf("Names() = %v", names)
	}
	if s, _ := g.Spec("b"); s.Path != "x" {
		t.Errorf("later spec did not replace earlier one: %+v", s)
	}
	if !g.Has("a") || g.Has("c") {
		t.Error("Has() mismatch")
	}
}

func TestHandleEngineDiesMidSearch(t *testing.T) {
	g := testGateway()
	ctx := context.Background()
	h, err := g.Open(ctx, "abort")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer h.Close()

	_, err = h.Evaluate(ctx, chess.StartingPosition(), enginetest.MoveTime)
	if !errors.Is(err, ErrEngineProtocol) || errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("error = %v, want ErrEngineProtocol only", err)
	}
	<-h.proc.Exited()
	if _, err := h.Evaluate(ctx, chess.StartingPosition(), enginetest.MoveTime); !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("second request error = %v, want ErrEngineUnavailable", err)
	}
}
