// Package session is the analysis board behind the web page: one game, one
// cursor, an optional analysis engine and an optional bot opponent.
//
// Every operation holds the session lock for its whole duration, engine
// calls included, so requests from several browser tabs are applied one at a
// time.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	chess "github.com/corentings/chess/v2"

	"github.com/walterschell/chess-toolkit/engine"
	"github.com/walterschell/chess-toolkit/navigation"
)

var log = slog.Default().With("package", "session")

const (
	defaultThinkTime = 50 * time.Millisecond
	defaultBotTime   = time.Second
	pvLength         = 5
)

// Analysis is the engine's view of the current position.
type Analysis struct {
	Engine     string
	FEN        string
	Score      engine.Score // relative to the side to move
	HasScore   bool
	Evaluation string  // Score formatted for the panel
	WhiteShare float64 // fraction of the evaluation bar that is White's
	BestMove   string  // SAN
	Line       string  // first moves of the principal variation in SAN
	Depth      int
	Err        string
}

// View is everything a page needs to draw the board. It shares nothing with
// the session.
type View struct {
	FEN         string
	Turn        string
	Status      string
	Message     string
	Index       int
	Len         int
	Rows        []navigation.Row
	Selected    string
	LastMove    string
	GameOver    bool
	Result      string
	OpeningCode string
	OpeningName string
	Engine      string
	Engines     []string
	Opponent    string
	BotColor    string
	Analysis    *Analysis
}

// Option configures a Session.
type Option func(*Session)

// WithThinkTime sets the analysis budget per position.
func WithThinkTime(d time.Duration) Option {
	return func(s *Session) {
		s.think = d
	}
}

// WithBotTime sets the bot opponent's time per move.
func WithBotTime(d time.Duration) Option {
	return func(s *Session) {
		s.botTime = d
	}
}

// WithEngine selects the analysis engine at creation. Unknown names are
// ignored.
func WithEngine(name string) Option {
	return func(s *Session) {
		if s.gw.Has(name) {
			s.engine = name
		}
	}
}

// Session is one analysis board.
type Session struct {
	gw      *engine.Gateway
	think   time.Duration
	botTime time.Duration

	mu       sync.Mutex
	cursor   *navigation.Cursor
	engine   string
	opponent string
	botColor chess.Color
	analysis *Analysis
	message  string
}

// New returns a session at the starting position.
func New(gw *engine.Gateway, opts ...Option) (*Session, error) {
	cursor, err := navigation.NewCursor()
	if err != nil {
		return nil, err
	}
	s := &Session{
		gw:       gw,
		think:    defaultThinkTime,
		botTime:  defaultBotTime,
		cursor:   cursor,
		botColor: chess.Black,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// View returns the current state of the board.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	c := s.cursor
	v := View{
		FEN:      c.FEN(),
		Turn:     navigation.ColorName(c.Turn()),
		Status:   c.Status(),
		Message:  s.message,
		Index:    c.Index(),
		Len:      c.Len(),
		Rows:     c.Rows(),
		GameOver: c.GameOver(),
		Result:   c.Outcome().String(),
		Engine:   s.engine,
		Engines:  s.gw.Names(),
		Opponent: s.opponent,
		BotColor: navigation.ColorName(s.botColor),
	}
	if sq := c.Selected(); sq != chess.NoSquare {
		v.Selected = sq.String()
	}
	if c.Index() >= 0 {
		v.LastMove = navigation.UCI(c.Node())
	}
	v.OpeningCode, v.OpeningName = c.Opening()
	if s.analysis != nil {
		a := *s.analysis
		v.Analysis = &a
	}
	return v
}

// Click feeds a board click, given as a square name such as "e2".
func (s *Session) Click(ctx context.Context, square string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, err := navigation.ParseSquare(square)
	if err != nil {
		return s.fail(err)
	}
	m, err := s.cursor.Click(sq)
	if err != nil {
		s.message = "Illegal move"
		return s.viewLocked(), err
	}
	if m == nil {
		s.message = ""
		return s.viewLocked(), nil
	}
	s.message = ""
	s.afterChange(ctx)
	return s.viewLocked(), nil
}

// Move plays a move given in UCI notation.
func (s *Session) Move(ctx context.Context, uci string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cursor.ApplyUCI(uci); err != nil {
		s.message = "Illegal move"
		return s.viewLocked(), err
	}
	s.message = ""
	s.afterChange(ctx)
	return s.viewLocked(), nil
}

// JumpTo moves the cursor to a mainline index.
func (s *Session) JumpTo(ctx context.Context, index int) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cursor.JumpTo(index); err != nil {
		return s.fail(err)
	}
	s.message = ""
	s.analyze(ctx)
	return s.viewLocked(), nil
}

// JumpToRow moves the cursor to the first move of a move-list row.
func (s *Session) JumpToRow(ctx context.Context, row int) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cursor.JumpToRow(row); err != nil {
		return s.fail(err)
	}
	s.message = ""
	s.analyze(ctx)
	return s.viewLocked(), nil
}

// Import replaces the game with a PGN text.
func (s *Session) Import(ctx context.Context, r io.Reader) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := io.ReadAll(r)
	if err != nil {
		return s.fail(err)
	}
	if strings.TrimSpace(string(data)) == "" {
		s.message = "Please paste a PGN game first"
		return s.viewLocked(), &navigation.ImportError{Reason: "no PGN text to import"}
	}
	if err := s.cursor.ImportPGN(strings.NewReader(string(data))); err != nil {
		log.Error("PGN import failed", "error", err)
		s.message = "Invalid PGN format"
		return s.viewLocked(), err
	}
	s.message = fmt.Sprintf("Imported %d moves", s.cursor.Len())
	s.analyze(ctx)
	return s.viewLocked(), nil
}

// Export returns the game as PGN text.
func (s *Session) Export() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor.ExportPGN()
}

// Reset starts a new game from the standard position.
func (s *Session) Reset(ctx context.Context) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursor, err := navigation.NewCursor()
	if err != nil {
		return s.fail(err)
	}
	s.cursor = cursor
	s.message = ""
	s.afterChange(ctx)
	return s.viewLocked(), nil
}

// SelectEngine picks the analysis engine. An empty name turns analysis off.
func (s *Session) SelectEngine(ctx context.Context, name string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name != "" && !s.gw.Has(name) {
		return s.fail(fmt.Errorf("%w: %q", engine.ErrUnknownEngine, name))
	}
	s.engine = name
	if name == "" {
		s.analysis = nil
		s.message = "Analysis off"
		return s.viewLocked(), nil
	}
	s.message = "Engine changed to: " + name
	s.analyze(ctx)
	return s.viewLocked(), nil
}

// SetOpponent makes the named engine play color against the user. An empty
// name removes the opponent. If it is already the bot's turn, it moves.
func (s *Session) SetOpponent(ctx context.Context, name string, color chess.Color) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name != "" && !s.gw.Has(name) {
		return s.fail(fmt.Errorf("%w: %q", engine.ErrUnknownEngine, name))
	}
	if color != chess.White && color != chess.Black {
		return s.fail(fmt.Errorf("invalid bot colour %v", color))
	}
	s.opponent = name
	s.botColor = color
	if name == "" {
		s.message = "Playing without a bot"
		return s.viewLocked(), nil
	}
	s.message = fmt.Sprintf("Current Bot: %s (%s)", name, navigation.ColorName(color))
	s.afterChange(ctx)
	return s.viewLocked(), nil
}

// Analyze re-runs the analysis of the current position.
func (s *Session) Analyze(ctx context.Context) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyze(ctx)
	return s.viewLocked()
}

func (s *Session) fail(err error) (View, error) {
	s.message = "Error: " + err.Error()
	return s.viewLocked(), err
}

// afterChange lets the bot answer and then analyzes the resulting position.
func (s *Session) afterChange(ctx context.Context) {
	if s.opponent != "" && !s.cursor.GameOver() && s.cursor.Turn() == s.botColor {
		if err := s.botMove(ctx); err != nil {
			log.Error("bot move failed", "engine", s.opponent, "error", err)
			s.message = "Error: " + err.Error()
		}
	}
	s.analyze(ctx)
}

func (s *Session) botMove(ctx context.Context) error {
	m, err := s.gw.BestMove(ctx, s.opponent, s.cursor.Position(), s.botTime)
	if err != nil {
		return err
	}
	_, err = s.cursor.ApplyMove(m)
	return err
}

// analyze replaces the stored analysis. Failures are kept in Analysis.Err.
func (s *Session) analyze(ctx context.Context) {
	if s.engine == "" {
		s.analysis = nil
		return
	}
	pos := s.cursor.Position()
	a := &Analysis{Engine: s.engine, FEN: pos.String()}
	s.analysis = a
	if s.cursor.GameOver() {
		a.Err = s.cursor.Status()
		return
	}

	ev, err := s.gw.Evaluate(ctx, s.engine, pos, s.think)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error("analysis failed", "engine", s.engine, "error", err)
		}
		a.Err = "Error analyzing position: " + err.Error()
		return
	}
	a.Score = ev.Score
	a.HasScore = ev.HasScore
	a.Depth = ev.Depth
	a.BestMove = navigation.SAN(pos, ev.BestMove)
	a.Line = formatLine(pos, ev.PV)
	if ev.HasScore {
		a.Evaluation = ev.Score.String()
		a.WhiteShare = ev.Score.ForWhite(pos.Turn()).Expectation()
	} else {
		a.WhiteShare = 0.5
	}
}

// formatLine writes the first moves of pv in SAN, with "..." when there are
// more.
func formatLine(pos *chess.Position, pv []*chess.Move) string {
	var moves []string
	for i, m := range pv {
		if i == pvLength {
			moves = append(moves, "...")
			break
		}
		moves = append(moves, navigation.SAN(pos, m))
		pos = pos.Update(m)
	}
	return strings.Join(moves, " ")
}
