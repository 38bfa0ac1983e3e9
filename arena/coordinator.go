// Package arena plays matches between two engines, or an engine and a human,
// on a single background worker.
//
// The worker is the only writer of match state. Other goroutines read it
// through Snapshot or through notifications drained from the queue.
package arena

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	chess "github.com/corentings/chess/v2"
	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"

	"github.com/walterschell/chess-toolkit/navigation"
)

var log = slog.Default().With("package", "arena")

// Human is the seat name of a human player.
const Human = "Human"

const defaultQueueSize = 64

var (
	ErrAlreadyRunning = errors.New("a match is already running")
	ErrInvalidConfig  = errors.New("invalid match configuration")
	ErrNotHumanTurn   = errors.New("not waiting for a human move")
)

// State is the lifecycle state of the coordinator.
type State int

const (
	Idle State = iota
	Running
	Completed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	default:
		return "idle"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MatchConfig describes a match. Engine1 plays White in odd games and Black
// in even ones.
type MatchConfig struct {
	Engine1     string
	Engine2     string
	NumGames    int
	TimePerMove time.Duration
}

func (cfg MatchConfig) validate() error {
	switch {
	case cfg.Engine1 == "" || cfg.Engine2 == "":
		return fmt.Errorf("%w: both seats need a player", ErrInvalidConfig)
	case cfg.Engine1 == Human && cfg.Engine2 == Human:
		return fmt.Errorf("%w: at least one seat must be an engine", ErrInvalidConfig)
	case cfg.NumGames < 1:
		return fmt.Errorf("%w: number of games must be at least 1", ErrInvalidConfig)
	case cfg.TimePerMove <= 0:
		return fmt.Errorf("%w: time per move must be positive", ErrInvalidConfig)
	}
	return nil
}

// GameResult is one finished, counted game.
type GameResult struct {
	MatchID    string
	MatchName  string
	Round      int
	White      string
	Black      string
	Result     string // "1-0", "0-1" or "1/2-1/2"
	Method     string
	Winner     string // seat name, empty for a draw
	Plies      int
	PGN        string
	FinishedAt time.Time
}

// Snapshot is a copy of the match state. It shares nothing with the worker.
type Snapshot struct {
	MatchID       string
	MatchName     string
	State         State
	Engine1       string
	Engine2       string
	NumGames      int
	Round         int
	White         string
	Black         string
	FEN           string
	Moves         []string // SAN of the current game
	LastMove      string   // UCI
	Engine1Wins   int
	Engine2Wins   int
	Draws         int
	Status        string
	AwaitingHuman bool
	Results       []GameResult
}

// Played is the number of counted games.
func (s Snapshot) Played() int {
	return s.Engine1Wins + s.Engine2Wins + s.Draws
}

// Recorder receives every counted game of one match. Finish is called once
// when the worker exits.
type Recorder interface {
	RecordGame(GameResult) error
	Finish() error
}

// RecorderFunc creates the recorder for a new match.
type RecorderFunc func(matchID, matchName string) (Recorder, error)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder installs a recorder factory called at the start of every match.
func WithRecorder(f RecorderFunc) Option {
	return func(c *Coordinator) {
		c.newRecorder = f
	}
}

// WithQueueSize bounds the notification queue.
func WithQueueSize(n int) Option {
	return func(c *Coordinator) {
		c.queue = NewQueue(n)
	}
}

// Coordinator runs at most one match at a time.
type Coordinator struct {
	opener      Opener
	newRecorder RecorderFunc
	queue       *Queue
	human       chan *chess.Move

	mu      sync.Mutex
	running bool
	snap    Snapshot
	cursor  *navigation.Cursor
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns an idle coordinator that opens players through opener.
func New(opener Opener, opts ...Option) *Coordinator {
	c := &Coordinator{
		opener: opener,
		queue:  NewQueue(defaultQueueSize),
		human:  make(chan *chess.Move, 1),
		snap:   Snapshot{State: Idle, Status: "Ready"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notifications is the queue the worker publishes to.
func (c *Coordinator) Notifications() *Queue {
	return c.queue
}

// Running reports whether a worker is active.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Snapshot returns a copy of the current match state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	s := c.snap
	s.Moves = append([]string(nil), c.snap.Moves...)
	s.Results = append([]GameResult(nil), c.snap.Results...)
	return s
}

// Start launches a match on a new worker and returns immediately.
func (c *Coordinator) Start(cfg MatchConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	id := uuid.NewString()
	name := petname.Generate(2, "-")
	var rec Recorder
	if c.newRecorder != nil {
		r, err := c.newRecorder(id, name)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to create recorder: %w", err)
		}
		rec = r
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.running = true
	c.cancel = cancel
	c.done = done
	c.cursor = nil
	c.snap = Snapshot{
		MatchID:   id,
		MatchName: name,
		State:     Running,
		Engine1:   cfg.Engine1,
		Engine2:   cfg.Engine2,
		NumGames:  cfg.NumGames,
		Status:    "Match in progress...",
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	// A move submitted for a previous match must not leak into this one.
	select {
	case <-c.human:
	default:
	}

	log.Info("match started", "match", name, "id", id, "engine1", cfg.Engine1, "engine2", cfg.Engine2, "games", cfg.NumGames)
	c.queue.Push(Notification{Kind: StatusChanged, Snapshot: snap})
	go c.run(ctx, cfg, rec, done)
	return nil
}

// Stop asks the worker to stop after the current half-move and waits for it
// to exit. An engine request in flight is allowed to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the current worker, if any, has exited.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// SubmitMove hands a human move, in UCI notation, to a worker waiting for
// one.
func (c *Coordinator) SubmitMove(uci string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snap.AwaitingHuman || c.cursor == nil {
		return ErrNotHumanTurn
	}
	m, err := navigation.ParseUCI(c.cursor.Position(), uci)
	if err != nil {
		return err
	}
	c.snap.AwaitingHuman = false
	c.human <- m
	return nil
}

// PGN exports the game in progress, or the last game played.
func (c *Coordinator) PGN() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursor == nil {
		return ""
	}
	return c.cursor.ExportPGN()
}

func (c *Coordinator) publish(kind Kind) {
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.queue.Push(Notification{Kind: kind, Snapshot: snap})
}

var errStopped = errors.New("match stopped")

func (c *Coordinator) run(ctx context.Context, cfg MatchConfig, rec Recorder, done chan struct{}) {
	state, status := Idle, "Match stopped."
	defer func() {
		if r := recover(); r != nil {
			log.Error("match worker panicked", "panic", r)
			state, status = Idle, fmt.Sprintf("Error: %v", r)
		}
		if rec != nil {
			if err := rec.Finish(); err != nil {
				log.Error("failed to finish recorder", "error", err)
			}
		}
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.snap.State = state
		c.snap.Status = status
		c.snap.AwaitingHuman = false
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.queue.Push(Notification{Kind: StatusChanged, Snapshot: snap})
		log.Info("match finished", "state", state, "status", status)
		close(done)
	}()

	for round := 1; round <= cfg.NumGames; round++ {
		if ctx.Err() != nil {
			return
		}
		white, black := cfg.Engine1, cfg.Engine2
		if round%2 == 0 {
			white, black = black, white
		}
		result, err := c.playGame(ctx, cfg, round, white, black)
		if errors.Is(err, errStopped) {
			return
		}
		if err != nil {
			log.Error("match aborted", "round", round, "error", err)
			status = "Error: " + err.Error()
			return
		}

		c.mu.Lock()
		switch {
		case result.Winner == "":
			c.snap.Draws++
		case (result.Winner == "White") == (round%2 == 1):
			c.snap.Engine1Wins++
		default:
			c.snap.Engine2Wins++
		}
		if result.Winner != "" {
			if result.Winner == "White" {
				result.Winner = white
			} else {
				result.Winner = black
			}
		}
		result.MatchID, result.MatchName = c.snap.MatchID, c.snap.MatchName
		c.snap.Results = append(c.snap.Results, result)
		c.mu.Unlock()

		if rec != nil {
			if err := rec.RecordGame(result); err != nil {
				log.Error("failed to record game", "round", round, "error", err)
			}
		}
		c.publish(GameFinished)
	}
	state, status = Completed, "Match completed."
}

// playGame plays one game to a terminal position. The Winner of the result is
// "White", "Black" or empty; run maps it to a seat name.
func (c *Coordinator) playGame(ctx context.Context, cfg MatchConfig, round int, white, black string) (GameResult, error) {
	headers := navigation.Headers{
		Event: "Engine Battle",
		Site:  "?",
		Date:  time.Now().Format("2006.01.02"),
		Round: fmt.Sprint(round),
		White: white,
		Black: black,
	}
	cursor, err := navigation.NewCursor(navigation.WithHeaders(headers))
	if err != nil {
		return GameResult{}, err
	}

	wp, err := c.open(ctx, white)
	if err != nil {
		return GameResult{}, err
	}
	defer closePlayer(wp)
	bp, err := c.open(ctx, black)
	if err != nil {
		return GameResult{}, err
	}
	defer closePlayer(bp)

	c.mu.Lock()
	c.cursor = cursor
	c.snap.Round = round
	c.snap.White, c.snap.Black = white, black
	c.snap.FEN = cursor.FEN()
	c.snap.Moves = nil
	c.snap.LastMove = ""
	c.mu.Unlock()
	c.publish(BoardChanged)

	for !cursor.GameOver() {
		if ctx.Err() != nil {
			return GameResult{}, errStopped
		}
		mover := wp
		if cursor.Turn() == chess.Black {
			mover = bp
		}
		if mover.Name() == Human {
			c.mu.Lock()
			c.snap.AwaitingHuman = true
			c.mu.Unlock()
			c.publish(HumanToMove)
		}

		m, err := mover.Move(ctx, cursor.Position(), cfg.TimePerMove)
		if err != nil {
			if ctx.Err() != nil {
				return GameResult{}, errStopped
			}
			return GameResult{}, fmt.Errorf("%s: %w", mover.Name(), err)
		}

		c.mu.Lock()
		before := cursor.Position()
		san := navigation.SAN(before, m)
		_, err = cursor.ApplyMove(m)
		if err == nil {
			c.snap.FEN = cursor.FEN()
			c.snap.Moves = append(c.snap.Moves, san)
			c.snap.LastMove = navigation.UCI(m)
		}
		c.mu.Unlock()
		if err != nil {
			return GameResult{}, fmt.Errorf("%s played an illegal move: %w", mover.Name(), err)
		}
		c.publish(BoardChanged)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	result := GameResult{
		Round:      round,
		White:      white,
		Black:      black,
		Result:     cursor.Outcome().String(),
		Method:     navigation.MethodName(cursor.Method()),
		Plies:      cursor.Len(),
		PGN:        cursor.ExportPGN(),
		FinishedAt: time.Now(),
	}
	if cursor.Method() == chess.Checkmate {
		// The side to move has been mated.
		result.Winner = "White"
		if cursor.Turn() == chess.White {
			result.Winner = "Black"
		}
	}
	log.Info("game finished", "round", round, "white", white, "black", black, "result", result.Result, "method", result.Method, "plies", result.Plies)
	return result, nil
}

func (c *Coordinator) open(ctx context.Context, name string) (Player, error) {
	if name == Human {
		return humanPlayer{moves: c.human}, nil
	}
	p, err := c.opener.Open(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errStopped
		}
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return p, nil
}

func closePlayer(p Player) {
	if err := p.Close(); err != nil {
		log.Error("failed to close player", "player", p.Name(), "error", err)
	}
}
