package navigation

import (
	"fmt"

	chess "github.com/corentings/chess/v2"
)

// Selected returns the square picked by the last click, or NoSquare.
func (c *Cursor) Selected() chess.Square {
	return c.selected
}

// ClearSelection drops a pending square selection.
func (c *Cursor) ClearSelection() {
	c.selected = chess.NoSquare
}

// Click feeds a square click into the selection state machine. With nothing
// selected, a click on one of the mover's pieces selects it and any other
// click does nothing. With a selection, clicking the same square deselects and
// clicking another square tries the move; the selection is cleared either way.
// A pawn reaching the last rank promotes to a queen. The move played, if any,
// is returned.
func (c *Cursor) Click(sq chess.Square) (*chess.Move, error) {
	if c.selected == chess.NoSquare {
		p := c.live.Position().Board().Piece(sq)
		if p != chess.NoPiece && p.Color() == c.Turn() {
			c.selected = sq
		}
		return nil, nil
	}

	from := c.selected
	c.selected = chess.NoSquare
	if from == sq {
		return nil, nil
	}
	m := FindLegal(c.live.Position(), from, sq, chess.NoPieceType)
	if m == nil {
		return nil, fmt.Errorf("%w: %s%s", ErrInvalidMove, from.String(), sq.String())
	}
	if _, err := c.ApplyMove(m); err != nil {
		return nil, err
	}
	return m, nil
}
