// Package navigation keeps a board position, a game record and a move cursor
// in step with each other.
//
// The live position is never edited in place: every jump rebuilds it by
// replaying the mainline from the starting position, so it always equals the
// first Index()+1 mainline moves applied to the start.
package navigation

import (
	"fmt"
	"log/slog"
	"time"

	chess "github.com/corentings/chess/v2"
)

var log = slog.Default().With("package", "navigation")

// Headers are the descriptive PGN tags of a game. Result is not stored here;
// it is derived from the live position when exporting.
type Headers struct {
	Event string
	Site  string
	Date  string
	Round string
	White string
	Black string
}

// DefaultHeaders returns the tags of a fresh analysis game.
func DefaultHeaders() Headers {
	return Headers{
		Event: "Chess Analysis",
		Site:  "?",
		Date:  time.Now().Format("2006.01.02"),
		Round: "?",
		White: "?",
		Black: "?",
	}
}

// Cursor owns the live position, the game record and the index into the
// record's mainline. It is not safe for concurrent use.
type Cursor struct {
	start   string      // starting FEN, empty for the standard position
	record  *chess.Game // game record; its current node is always the mainline tail
	live    *chess.Game // replay of the mainline up to index
	index   int
	headers Headers

	selected chess.Square
}

// Option configures a Cursor.
type Option func(*Cursor) error

// WithFEN starts the game from a FEN position instead of the standard one.
func WithFEN(fen string) Option {
	return func(c *Cursor) error {
		if _, err := newGame(fen); err != nil {
			return err
		}
		c.start = fen
		return nil
	}
}

// WithHeaders sets the PGN tags used on export.
func WithHeaders(h Headers) Option {
	return func(c *Cursor) error {
		c.headers = h
		return nil
	}
}

// NewCursor returns a cursor at the starting position of an empty game.
func NewCursor(opts ...Option) (*Cursor, error) {
	c := &Cursor{headers: DefaultHeaders()}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.reset(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reset clears the game back to its starting position, keeping the headers.
func (c *Cursor) Reset() error {
	return c.reset()
}

func (c *Cursor) reset() error {
	record, err := newGame(c.start)
	if err != nil {
		return err
	}
	live, err := newGame(c.start)
	if err != nil {
		return err
	}
	c.record = record
	c.live = live
	c.index = -1
	c.selected = chess.NoSquare
	return nil
}

// Index is the mainline index of the current position; -1 is the start.
func (c *Cursor) Index() int {
	return c.index
}

// Len is the number of moves in the mainline.
func (c *Cursor) Len() int {
	return len(c.record.Moves())
}

// Position returns the live position.
func (c *Cursor) Position() *chess.Position {
	return c.live.Position()
}

// FEN returns the live position in FEN.
func (c *Cursor) FEN() string {
	return c.live.Position().String()
}

// StartFEN returns the FEN the game started from.
func (c *Cursor) StartFEN() string {
	if c.start == "" {
		return chess.StartingPosition().String()
	}
	return c.start
}

// Turn returns the side to move in the live position.
func (c *Cursor) Turn() chess.Color {
	return c.live.Position().Turn()
}

// Headers returns the PGN tags of the game.
func (c *Cursor) Headers() Headers {
	return c.headers
}

// SetHeaders replaces the PGN tags of the game.
func (c *Cursor) SetHeaders(h Headers) {
	c.headers = h
}

// Node returns the record node at the cursor; the root node for index -1.
func (c *Cursor) Node() *chess.Move {
	if c.index < 0 {
		return c.record.GetRootMove()
	}
	return c.record.Moves()[c.index]
}

// Mainline returns the mainline moves in UCI notation.
func (c *Cursor) Mainline() []string {
	moves := c.record.Moves()
	out := make([]string, len(moves))
	for i, m := range moves {
		out[i] = UCI(m)
	}
	return out
}

// SAN returns the mainline moves in standard algebraic notation.
func (c *Cursor) SAN() []string {
	out := make([]string, 0, c.Len())
	walk(c.record, func(_ int, before *chess.Position, m *chess.Move) bool {
		out = append(out, SAN(before, m))
		return true
	})
	return out
}

// Outcome is the rules library's verdict on the live position.
func (c *Cursor) Outcome() chess.Outcome {
	return c.live.Outcome()
}

// Method is how the live position's outcome came about.
func (c *Cursor) Method() chess.Method {
	return c.live.Method()
}

// GameOver reports whether the live position is terminal.
func (c *Cursor) GameOver() bool {
	return c.live.Outcome() != chess.NoOutcome
}

// InCheck reports whether the side to move in the live position is in check.
func (c *Cursor) InCheck() bool {
	return inCheck(c.live.Position())
}

// Status describes the live position for a status line.
func (c *Cursor) Status() string {
	turn := ColorName(c.Turn())
	switch c.Method() {
	case chess.Checkmate:
		winner := "White"
		if c.Turn() == chess.White {
			winner = "Black"
		}
		return fmt.Sprintf("Checkmate! %s wins!", winner)
	case chess.Stalemate:
		return "Stalemate! Game is drawn."
	case chess.NoMethod:
	default:
		return fmt.Sprintf("Draw by %s.", MethodName(c.Method()))
	}
	if c.InCheck() {
		return fmt.Sprintf("Check! %s to move.", turn)
	}
	return turn + " to move"
}

// ApplyMove plays m from the live position. When the cursor is not at the end
// of the mainline, the moves after the cursor are dropped and m continues the
// game from here. The new live position is returned.
func (c *Cursor) ApplyMove(m *chess.Move) (*chess.Position, error) {
	legal := FindLegal(c.live.Position(), m.S1(), m.S2(), m.Promo())
	if legal == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrInvalidMove, m.String(), c.FEN())
	}

	record := c.record
	if c.index < c.Len()-1 {
		truncated, err := replay(c.start, c.record.Moves(), c.index+1)
		if err != nil {
			return nil, err
		}
		log.Info("dropping mainline tail", "from", c.index+1, "dropped", c.Len()-c.index-1)
		record = truncated
	}
	if _, err := push(record, legal); err != nil {
		return nil, err
	}
	if _, err := push(c.live, legal); err != nil {
		return nil, err
	}
	c.record = record
	c.index++
	c.selected = chess.NoSquare
	return c.live.Position(), nil
}

// ApplyUCI plays a move given in UCI notation.
func (c *Cursor) ApplyUCI(s string) (*chess.Position, error) {
	m, err := ParseUCI(c.live.Position(), s)
	if err != nil {
		return nil, err
	}
	return c.ApplyMove(m)
}

// JumpTo moves the cursor to a mainline index, -1 being the starting
// position. The live position is rebuilt from scratch.
func (c *Cursor) JumpTo(index int) (*chess.Position, error) {
	n := c.Len()
	if index < -1 || index >= n {
		return nil, fmt.Errorf("%w: %d not in [-1, %d)", ErrIndexOutOfRange, index, n)
	}
	live, err := replay(c.start, c.record.Moves(), index+1)
	if err != nil {
		return nil, err
	}
	c.live = live
	c.index = index
	c.selected = chess.NoSquare
	return live.Position(), nil
}

// Row is one line of the move list: a move number with White's and Black's
// moves. An index of -1 means the side has no move on this row.
type Row struct {
	Number     int
	White      string
	WhiteIndex int
	Black      string
	BlackIndex int
}

// Rows builds the move list by walking the record's mainline.
func (c *Cursor) Rows() []Row {
	number, turn := moveNumbering(c.start)
	var rows []Row
	walk(c.record, func(i int, before *chess.Position, m *chess.Move) bool {
		san := SAN(before, m)
		if turn == chess.White || len(rows) == 0 {
			rows = append(rows, Row{Number: number, WhiteIndex: -1, BlackIndex: -1})
		}
		row := &rows[len(rows)-1]
		if turn == chess.White {
			row.White, row.WhiteIndex = san, i
			turn = chess.Black
			return true
		}
		row.Black, row.BlackIndex = san, i
		number++
		turn = chess.White
		return true
	})
	return rows
}

// JumpToRow moves the cursor to the first move of a move-list row.
func (c *Cursor) JumpToRow(row int) (*chess.Position, error) {
	rows := c.Rows()
	if row < 0 || row >= len(rows) {
		return nil, fmt.Errorf("%w: row %d of %d", ErrIndexOutOfRange, row, len(rows))
	}
	index := rows[row].WhiteIndex
	if index < 0 {
		index = rows[row].BlackIndex
	}
	return c.JumpTo(index)
}
