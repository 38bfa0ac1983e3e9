package engine

import (
	"fmt"
	"math"

	chess "github.com/corentings/chess/v2"
)

// Score is an engine evaluation from the point of view of the side to move,
// as UCI reports it. Mate is the number of moves to mate, negative when the
// side to move is the one getting mated.
type Score struct {
	Centipawns int
	Mate       int
	IsMate     bool
}

// String formats the score the way the analysis panel shows it: "M3", "-M2"
// or a signed pawn value such as "+0.35".
func (s Score) String() string {
	if s.IsMate {
		if s.Mate > 0 {
			return fmt.Sprintf("M%d", s.Mate)
		}
		return fmt.Sprintf("-M%d", -s.Mate)
	}
	return fmt.Sprintf("%+.2f", float64(s.Centipawns)/100)
}

// Negate returns the score from the other side's point of view.
func (s Score) Negate() Score {
	return Score{Centipawns: -s.Centipawns, Mate: -s.Mate, IsMate: s.IsMate}
}

// ForWhite converts a score reported with turn to move into White's point of
// view.
func (s Score) ForWhite(turn chess.Color) Score {
	if turn == chess.Black {
		return s.Negate()
	}
	return s
}

// Pawns is the score in pawns. Mates are clamped to +-100.
func (s Score) Pawns() float64 {
	if s.IsMate {
		if s.Mate > 0 {
			return 100
		}
		return -100
	}
	return float64(s.Centipawns) / 100
}

// Expectation maps the score to an expected result between 0 and 1 for the
// side it is relative to, 1/(1+10^(-cp/400)). Mates map to 1 or 0.
func (s Score) Expectation() float64 {
	if s.IsMate {
		if s.Mate > 0 {
			return 1
		}
		return 0
	}
	return 1 / (1 + math.Pow(10, -float64(s.Centipawns)/400))
}
