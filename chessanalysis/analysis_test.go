package chessanalysis

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	chess "github.com/corentings/chess/v2"

	"github.com/walterschell/chess-toolkit/engine"
	"github.com/walterschell/chess-toolkit/internal/enginetest"
	"github.com/walterschell/chess-toolkit/navigation"
)

func TestMain(m *testing.M) {
	enginetest.RunIfRequested()
	os.Exit(m.Run())
}

const pgn = `
[Event "Live Chess"]
[Site "Chess.com"]
[Date "2025.03.20"]
[Round "-"]
[White "Player 1"]
[Black "Player 2"]
[Result "1-0"]
[ECO "B00"]
[TimeControl "600"]
[Termination "Player 1 won by resignation"]

1. e4 Nc6 2. Bc4 e5 3. Nf3 d6 4. Nc3 Bg4 5. O-O Nd4 $6 6. d3 $9 Nxf3+ 7. gxf3 Bh5
8. Be3 $6 Qf6 9. Nd5 Qg6+ $2 10. Kh1 O-O-O $6 11. Rg1 $1 Qe6 12. Nb6+ $3 1-0
`

const invalidPgn = `
[Event "Invalid Game"]
1. e4 e5 2. Ke4 *
`

func fakeGateway() *engine.Gateway {
	return engine.NewGateway([]engine.Spec{
		{Name: "fake", Path: enginetest.Path(), Env: enginetest.Env(enginetest.First)},
	})
}

func TestAnalyzeChessGame(t *testing.T) {
	t.Log("Analyzing game...")
	results, err := AnalyzeChessGame(context.Background(), fakeGateway(), "fake", pgn, WithMoveTime(5*time.Millisecond))
	if err != nil {
		t.Fatalf("failed to analyze game: %v", err)
	}
	t.Logf("Analysis complete. Found %d moves.", len(results))
	if len(results) != 23 {
		t.Fatalf("analyzed %d moves, want 23", len(results))
	}

	first, last := results[0], results[len(results)-1]
	if first.MoveText != "e4" || first.Color != "White" || first.MoveNumber != 1 {
		t.Errorf("first move = %s", first.String())
	}
	if last.MoveText != "Nb6+" || last.Color != "White" || last.MoveNumber != 12 {
		t.Errorf("last move = %s", last.String())
	}
	for _, r := range results {
		if r.BestMove == "" || r.BestMoveSAN == "" {
			t.Errorf("move %d %s has no best move", r.MoveNumber, r.MoveText)
		}
	}
}

func TestAnalyzeChessGameStreaming(t *testing.T) {
	t.Run("Valid PGN", func(t *testing.T) {
		movesChan, errChan := AnalyzeChessGameStreaming(context.Background(), fakeGateway(), "fake", "1. e4 e5 2. Nf3 *", WithMoveTime(5*time.Millisecond))

		var got []string
		for move := range movesChan {
			if move == nil {
				t.Error("received nil move analysis")
				continue
			}
			got = append(got, move.MoveText)
			t.Logf("Received move analysis: %s", move.String())
		}
		if err := <-errChan; err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if strings.Join(got, " ") != "e4 e5 Nf3" {
			t.Errorf("moves = %v", got)
		}
	})

	tests := []struct {
		name   string
		engine string
		pgn    string
	}{
		{"Invalid PGN", "fake", invalidPgn},
		{"Empty PGN", "fake", ""},
		{"Unknown engine", "nobody", pgn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			movesChan, errChan := AnalyzeChessGameStreaming(context.Background(), fakeGateway(), tt.engine, tt.pgn)

			moveCount := 0
			for range movesChan {
				moveCount++
			}
			if moveCount > 0 {
				t.Errorf("expected no moves, got %d", moveCount)
			}
			if err := <-errChan; err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}
}

// stubScorer prefers d2d4 when it is legal and reports scores from a table
// keyed by the side to move.
type stubScorer struct {
	score map[chess.Color]engine.Score
}

func (s stubScorer) Evaluate(_ context.Context, pos *chess.Position, _ time.Duration) (*engine.Evaluation, error) {
	best, err := navigation.ParseUCI(pos, "d2d4")
	if err != nil {
		moves := pos.ValidMoves()
		best = &moves[0]
	}
	return &engine.Evaluation{BestMove: best, Score: s.score[pos.Turn()], HasScore: true}, nil
}

func TestReviewClassifiesBlunder(t *testing.T) {
	scorer := stubScorer{score: map[chess.Color]engine.Score{
		chess.White: {Centipawns: 0},
		chess.Black: {Centipawns: 400},
	}}
	out := make(chan *MoveAnalysis, 1)
	if err := Review(context.Background(), scorer, "1. e4 *", out); err != nil {
		t.Fatalf("Review: %v", err)
	}
	a := <-out
	if a.IsBestMove || a.BestMove != "d2d4" || a.BestMoveSAN != "d4" {
		t.Errorf("best move = %s (%s), best %v", a.BestMove, a.BestMoveSAN, a.IsBestMove)
	}
	if a.Classification != Blunder {
		t.Errorf("Classification = %s, want Blunder", a.Classification)
	}
	if a.Score != -4 || a.BestMoveScore != 0 || a.CentipawnDifference != 400 {
		t.Errorf("scores %.2f best %.2f diff %.0f", a.Score, a.BestMoveScore, a.CentipawnDifference)
	}
}

func TestReviewCheckmate(t *testing.T) {
	scorer := stubScorer{score: map[chess.Color]engine.Score{}}
	out := make(chan *MoveAnalysis, 4)
	if err := Review(context.Background(), scorer, "1. f3 e5 2. g4 Qh4# 0-1", out); err != nil {
		t.Fatalf("Review: %v", err)
	}
	close(out)
	var last *MoveAnalysis
	for a := range out {
		last = a
	}
	if last.MoveText != "Qh4#" || last.Score != -100 || last.WinningProbability != 1 {
		t.Errorf("mating move = %+v", last)
	}
}

func TestClassifyMove(t *testing.T) {
	tests := []struct {
		win, best float64
		want      MoveClassification
	}{
		{0.2, 0.5, Blunder},
		{0.38, 0.5, Questionable},
		{0.5, 0.5, Neutral},
		{0.57, 0.5, Good},
		{0.7, 0.5, Excellent},
		{0.97, 0.96, Winning},
	}
	for _, tt := range tests {
		if got := classifyMove(tt.win, tt.best); got != tt.want {
			t.Errorf("classifyMove(%v, %v) = %s, want %s", tt.win, tt.best, got, tt.want)
		}
	}
}

func TestMoveAnalysisJSON(t *testing.T) {
	a := &MoveAnalysis{MoveNumber: 3, Color: "Black", MoveText: "Nf6", Classification: Blunder}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["classification"] != "Blunder" || m["classificationSymbol"] != "??" || m["moveText"] != "Nf6" {
		t.Errorf("JSON = %s", data)
	}
}
