package navigation

import (
	"fmt"
	"strconv"
	"strings"

	chess "github.com/corentings/chess/v2"
)

// FindLegal returns the legal move from s1 to s2 in pos, or nil. When the move
// is a promotion and promo is NoPieceType the queen promotion is returned.
func FindLegal(pos *chess.Position, s1, s2 chess.Square, promo chess.PieceType) *chess.Move {
	var found *chess.Move
	moves := pos.ValidMoves()
	for i := range moves {
		m := &moves[i]
		if m.S1() != s1 || m.S2() != s2 {
			continue
		}
		if m.Promo() == promo {
			return m
		}
		if promo == chess.NoPieceType && m.Promo() == chess.Queen {
			found = m
		}
	}
	return found
}

// ParseUCI decodes a move in UCI notation ("e2e4", "e7e8q") and resolves it
// against the legal moves of pos.
func ParseUCI(pos *chess.Position, s string) (*chess.Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	m, err := chess.UCINotation{}.Decode(pos, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMove, s)
	}
	legal := FindLegal(pos, m.S1(), m.S2(), m.Promo())
	if legal == nil {
		return nil, fmt.Errorf("%w: %s is not legal in %s", ErrInvalidMove, s, pos.String())
	}
	return legal, nil
}

// ParseSquare converts "e4" into a square.
func ParseSquare(s string) (chess.Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return chess.NoSquare, fmt.Errorf("invalid square %q", s)
	}
	return chess.NewSquare(chess.File(s[0]-'a'), chess.Rank(s[1]-'1')), nil
}

// UCI encodes m in UCI notation.
func UCI(m *chess.Move) string {
	return chess.UCINotation{}.Encode(nil, m)
}

// SAN encodes m, played from pos, in standard algebraic notation.
func SAN(pos *chess.Position, m *chess.Move) string {
	return chess.AlgebraicNotation{}.Encode(pos, m)
}

// ColorName returns "White" or "Black".
func ColorName(c chess.Color) string {
	if c == chess.Black {
		return "Black"
	}
	return "White"
}

// MethodName describes how a game ended.
func MethodName(m chess.Method) string {
	switch m {
	case chess.Checkmate:
		return "checkmate"
	case chess.Resignation:
		return "resignation"
	case chess.DrawOffer:
		return "draw offer"
	case chess.Stalemate:
		return "stalemate"
	case chess.ThreefoldRepetition:
		return "threefold repetition"
	case chess.FivefoldRepetition:
		return "fivefold repetition"
	case chess.FiftyMoveRule:
		return "fifty-move rule"
	case chess.SeventyFiveMoveRule:
		return "seventy-five-move rule"
	case chess.InsufficientMaterial:
		return "insufficient material"
	default:
		return ""
	}
}

func newGame(start string) (*chess.Game, error) {
	if start == "" {
		return chess.NewGame(), nil
	}
	fen, err := chess.FEN(start)
	if err != nil {
		return nil, fmt.Errorf("invalid FEN %q: %w", start, err)
	}
	return chess.NewGame(fen), nil
}

// push plays m on game after resolving it against the legal moves of the
// game's current position. The resolved move is returned.
func push(game *chess.Game, m *chess.Move) (*chess.Move, error) {
	pos := game.Position()
	legal := FindLegal(pos, m.S1(), m.S2(), m.Promo())
	if legal == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMove, m.String())
	}
	san := SAN(pos, legal)
	if err := game.PushMove(san, &chess.PushMoveOptions{ForceMainline: true}); err != nil {
		return nil, fmt.Errorf("push %s: %w", san, err)
	}
	return legal, nil
}

// replay builds a fresh game from start and plays the first n moves.
func replay(start string, moves []*chess.Move, n int) (*chess.Game, error) {
	game, err := newGame(start)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if _, err := push(game, moves[i]); err != nil {
			return nil, fmt.Errorf("ply %d: %w", i+1, err)
		}
	}
	return game, nil
}

// walk visits the mainline of a record, resolving every node against the
// legal moves of the position before it. Nodes parsed from text do not always
// carry complete move tags, the resolved moves do.
func walk(record *chess.Game, fn func(i int, before *chess.Position, m *chess.Move) bool) {
	pos := record.GetRootMove().Position()
	for i, node := range record.Moves() {
		m := FindLegal(pos, node.S1(), node.S2(), node.Promo())
		if m == nil {
			return
		}
		if !fn(i, pos, m) {
			return
		}
		pos = pos.Update(m)
	}
}

// inCheck reports whether the king of the side to move in pos is attacked.
func inCheck(pos *chess.Position) bool {
	b := pos.Board()
	us := pos.Turn()
	king := chess.NoSquare
	for sq, p := range b.SquareMap() {
		if p.Type() == chess.King && p.Color() == us {
			king = sq
			break
		}
	}
	if king == chess.NoSquare {
		return false
	}
	f, r := int(king.File()), int(king.Rank())
	at := func(df, dr int) (chess.Piece, bool) {
		nf, nr := f+df, r+dr
		if nf < 0 || nf > 7 || nr < 0 || nr > 7 {
			return chess.NoPiece, false
		}
		return b.Piece(chess.NewSquare(chess.File(nf), chess.Rank(nr))), true
	}
	enemy := func(p chess.Piece, types ...chess.PieceType) bool {
		if p == chess.NoPiece || p.Color() == us {
			return false
		}
		for _, t := range types {
			if p.Type() == t {
				return true
			}
		}
		return false
	}

	for _, d := range [][2]int{{1, 2}, {2, 1}, {-1, 2}, {-2, 1}, {1, -2}, {2, -1}, {-1, -2}, {-2, -1}} {
		if p, _ := at(d[0], d[1]); enemy(p, chess.Knight) {
			return true
		}
	}
	// Enemy pawns attack towards our side of the board.
	forward := 1
	if us == chess.Black {
		forward = -1
	}
	for _, df := range []int{-1, 1} {
		if p, _ := at(df, forward); enemy(p, chess.Pawn) {
			return true
		}
	}
	for df := -1; df <= 1; df++ {
		for dr := -1; dr <= 1; dr++ {
			if p, _ := at(df, dr); (df != 0 || dr != 0) && enemy(p, chess.King) {
				return true
			}
		}
	}
	rays := []struct {
		df, dr int
		slider chess.PieceType
	}{
		{1, 0, chess.Rook}, {-1, 0, chess.Rook}, {0, 1, chess.Rook}, {0, -1, chess.Rook},
		{1, 1, chess.Bishop}, {1, -1, chess.Bishop}, {-1, 1, chess.Bishop}, {-1, -1, chess.Bishop},
	}
	for _, ray := range rays {
		for n := 1; ; n++ {
			p, ok := at(ray.df*n, ray.dr*n)
			if !ok {
				break
			}
			if p == chess.NoPiece {
				continue
			}
			if enemy(p, ray.slider, chess.Queen) {
				return true
			}
			break
		}
	}
	return false
}

// moveNumbering returns the full-move number and side to move of a FEN.
func moveNumbering(start string) (int, chess.Color) {
	if start == "" {
		return 1, chess.White
	}
	fields := strings.Fields(start)
	turn := chess.White
	if len(fields) > 1 && fields[1] == "b" {
		turn = chess.Black
	}
	number := 1
	if len(fields) > 5 {
		if n, err := strconv.Atoi(fields[5]); err == nil && n > 0 {
			number = n
		}
	}
	return number, turn
}
