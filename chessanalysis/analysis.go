// Package chessanalysis reviews a whole game with an engine and classifies
// every move by how much winning chance it gave away.
package chessanalysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	chess "github.com/corentings/chess/v2"

	"github.com/walterschell/chess-toolkit/engine"
	"github.com/walterschell/chess-toolkit/navigation"
)

var log = slog.Default().With("package", "chessanalysis")

type MoveClassification int

const (
	Neutral MoveClassification = iota
	Blunder
	Questionable
	Good
	Excellent
	Winning
)

func (c MoveClassification) String() string {
	return []string{"Neutral", "Blunder", "Questionable", "Good", "Excellent", "Winning"}[c]
}

type MoveAnalysis struct {
	MoveNumber                   int
	Color                        string
	MoveText                     string
	Score                        float64
	CentipawnDifference          float64
	WinningProbability           float64
	WinningProbabilityDifference float64
	Classification               MoveClassification
	IsBestMove                   bool
	BestMove                     string
	BestMoveSAN                  string
	BestMoveScore                float64
}

func (m *MoveAnalysis) String() string {
	return fmt.Sprintf("Move %d: %s (Score: %.2f, Centipawn Difference: %.2f, Classification: %s, Is Best Move: %t)",
		m.MoveNumber, m.MoveText, m.Score, m.CentipawnDifference, m.Classification, m.IsBestMove)
}

// Chess annotation symbols for move classifications
var classificationAnnotations = map[MoveClassification]string{
	Blunder:      "??",
	Questionable: "?",
	Neutral:      "",
	Good:         "!",
	Excellent:    "!!",
	Winning:      "+-",
}

// MoveAnalysisJSON is the JSON representation of MoveAnalysis
type moveAnalysisJSON struct {
	MoveNumber                   int     `json:"moveNumber"`
	Color                        string  `json:"color"`
	MoveText                     string  `json:"moveText"`
	Score                        float64 `json:"score"`
	CentipawnDifference          float64 `json:"centipawnDifference"`
	WinningProbability           float64 `json:"winningProbability"`
	WinningProbabilityDifference float64 `json:"winningProbabilityDifference"`
	Classification               string  `json:"classification"`       // Human readable
	ClassificationSymbol         string  `json:"classificationSymbol"` // Chess annotation
	IsBestMove                   bool    `json:"isBestMove"`
	BestMove                     string  `json:"bestMove"`
	BestMoveSAN                  string  `json:"bestMoveSAN"`
	BestMoveScore                float64 `json:"bestMoveScore"`
}

// MarshalJSON implements custom JSON serialization for MoveAnalysis
func (m *MoveAnalysis) MarshalJSON() ([]byte, error) {
	return json.Marshal(moveAnalysisJSON{
		MoveNumber:                   m.MoveNumber,
		Color:                        m.Color,
		MoveText:                     m.MoveText,
		Score:                        m.Score,
		CentipawnDifference:          m.CentipawnDifference,
		WinningProbability:           m.WinningProbability,
		WinningProbabilityDifference: m.WinningProbabilityDifference,
		Classification:               m.Classification.String(),
		ClassificationSymbol:         classificationAnnotations[m.Classification],
		IsBestMove:                   m.IsBestMove,
		BestMove:                     m.BestMove,
		BestMoveSAN:                  m.BestMoveSAN,
		BestMoveScore:                m.BestMoveScore,
	})
}

// classifyMove determines the quality of a move based on WDL probabilities
func classifyMove(winProb, bestWinProb float64) MoveClassification {
	// Calculate the difference in winning probability
	winProbDiff := winProb - bestWinProb

	switch {
	case winProbDiff <= -0.2: // More than 20% worse than best move
		return Blunder
	case winProbDiff <= -0.1: // More than 10% worse than best move
		return Questionable
	case winProbDiff >= 0.1: // More than 10% better than best move
		return Excellent
	case winProbDiff >= 0.05: // More than 5% better than best move
		return Good
	case winProb >= 0.95: // Almost certain win
		return Winning
	default:
		return Neutral
	}
}

// Scorer evaluates positions. *engine.Handle is one.
type Scorer interface {
	Evaluate(ctx context.Context, pos *chess.Position, limit time.Duration) (*engine.Evaluation, error)
}

type AnalyzeChessGameOptions struct {
	MoveTime time.Duration
}

var defaultAnalyzeChessGameOptions = AnalyzeChessGameOptions{
	MoveTime: 100 * time.Millisecond,
}

type AnalyzeChessGameOption func(*AnalyzeChessGameOptions)

// WithMoveTime sets the engine budget for each evaluated position.
func WithMoveTime(d time.Duration) AnalyzeChessGameOption {
	return func(opts *AnalyzeChessGameOptions) {
		opts.MoveTime = d
	}
}

// AnalyzeChessGameStreaming reviews the mainline of pgn with the named engine,
// sending one result per move. The engine process is held for the whole
// review. The error channel receives at most one error and is closed after
// the results channel.
func AnalyzeChessGameStreaming(ctx context.Context, gw *engine.Gateway, engineName, pgn string, opts ...AnalyzeChessGameOption) (<-chan *MoveAnalysis, <-chan error) {
	results := make(chan *MoveAnalysis)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(results)

		if strings.TrimSpace(pgn) == "" {
			errc <- fmt.Errorf("empty PGN")
			return
		}
		log.Info("Starting engine", "engine", engineName)
		h, err := gw.Open(ctx, engineName)
		if err != nil {
			errc <- fmt.Errorf("failed to start %s: %w", engineName, err)
			return
		}
		defer h.Close()

		if err := Review(ctx, h, pgn, results, opts...); err != nil {
			errc <- err
		}
	}()

	return results, errc
}

// Review analyzes every mainline move of pgn with scorer and sends the
// results on out. It returns when the game is done, on the first error, or
// when ctx is cancelled.
func Review(ctx context.Context, scorer Scorer, pgn string, out chan<- *MoveAnalysis, opts ...AnalyzeChessGameOption) error {
	analysisOpts := defaultAnalyzeChessGameOptions
	for _, opt := range opts {
		opt(&analysisOpts)
	}

	game, err := navigation.NewCursor()
	if err != nil {
		return err
	}
	if err := game.LoadPGN(pgn); err != nil {
		log.Error("Error parsing PGN", "error", err)
		return fmt.Errorf("error parsing PGN: %w", err)
	}
	moves := game.Mainline()
	log.Info("Game loaded", "moves", len(moves))

	running, err := navigation.NewCursor(navigation.WithFEN(startFEN(game)))
	if err != nil {
		return err
	}
	limit := analysisOpts.MoveTime
	for i, uci := range moves {
		before := running.Position()
		played, err := navigation.ParseUCI(before, uci)
		if err != nil {
			return fmt.Errorf("move %d: %w", i+1, err)
		}
		mover := before.Turn()
		analysis := &MoveAnalysis{
			MoveNumber: fullMoveNumber(before),
			Color:      navigation.ColorName(mover),
			MoveText:   navigation.SAN(before, played),
		}

		best, err := scorer.Evaluate(ctx, before, limit)
		if err != nil {
			return fmt.Errorf("analysis error at move %d: %w", analysis.MoveNumber, err)
		}
		if _, err := running.ApplyMove(played); err != nil {
			return fmt.Errorf("move %d: %w", i+1, err)
		}
		playedScore, err := scoreAfter(ctx, scorer, running, limit)
		if err != nil {
			return fmt.Errorf("analysis error at move %d: %w", analysis.MoveNumber, err)
		}

		bestScore := best.Score
		analysis.BestMove = navigation.UCI(best.BestMove)
		analysis.BestMoveSAN = navigation.SAN(before, best.BestMove)
		analysis.IsBestMove = analysis.BestMove == uci
		if analysis.IsBestMove && playedScore.Pawns() < bestScore.Pawns() {
			// The played move was also the engine's choice; score it as such.
			playedScore = bestScore
		}
		analysis.Score = playedScore.ForWhite(mover).Pawns()
		analysis.BestMoveScore = bestScore.ForWhite(mover).Pawns()
		analysis.CentipawnDifference = (bestScore.Pawns() - playedScore.Pawns()) * 100
		analysis.WinningProbability = playedScore.Expectation()
		analysis.WinningProbabilityDifference = playedScore.Expectation() - bestScore.Expectation()
		analysis.Classification = classifyMove(playedScore.Expectation(), bestScore.Expectation())

		select {
		case out <- analysis:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// scoreAfter scores the position after a move from the mover's point of view.
func scoreAfter(ctx context.Context, scorer Scorer, c *navigation.Cursor, limit time.Duration) (engine.Score, error) {
	if c.GameOver() {
		if c.Method() == chess.Checkmate {
			return engine.Score{IsMate: true, Mate: 1}, nil
		}
		return engine.Score{}, nil
	}
	ev, err := scorer.Evaluate(ctx, c.Position(), limit)
	if err != nil {
		return engine.Score{}, err
	}
	return ev.Score.Negate(), nil
}

func startFEN(c *navigation.Cursor) string {
	if c.StartFEN() == chess.StartingPosition().String() {
		return ""
	}
	return c.StartFEN()
}

func fullMoveNumber(pos *chess.Position) int {
	fields := strings.Fields(pos.String())
	if len(fields) < 6 {
		return 1
	}
	n, err := strconv.Atoi(fields[5])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// AnalyzeChessGame collects the streamed review of pgn.
func AnalyzeChessGame(ctx context.Context, gw *engine.Gateway, engineName, pgn string, opts ...AnalyzeChessGameOption) ([]MoveAnalysis, error) {
	movesChan, errChan := AnalyzeChessGameStreaming(ctx, gw, engineName, pgn, opts...)

	results := make([]MoveAnalysis, 0)
	for move := range movesChan {
		results = append(results, *move)
	}

	if err := <-errChan; err != nil {
		if errors.Is(err, context.Canceled) {
			return results, err
		}
		return nil, err
	}

	log.Info("Analysis complete", "moves", len(results))
	return results, nil
}
