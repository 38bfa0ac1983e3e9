// Command arena plays a match between two configured engines and prints the
// games as they finish.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/walterschell/chess-toolkit/archive"
	"github.com/walterschell/chess-toolkit/arena"
	"github.com/walterschell/chess-toolkit/config"
	"github.com/walterschell/chess-toolkit/engine"
)

type options struct {
	configPath string
	engine1    string
	engine2    string
	games      int
	moveTime   time.Duration
	archiveDir string
}

func parseFlags(args []string, cfg config.Config) (options, error) {
	fs := flag.NewFlagSet("arena", flag.ContinueOnError)
	opts := options{}
	fs.StringVar(&opts.configPath, "config", "", "path to config.json")
	fs.StringVar(&opts.engine1, "engine1", "", "engine playing White in odd games")
	fs.StringVar(&opts.engine2, "engine2", "", "engine playing White in even games")
	fs.IntVar(&opts.games, "games", 0, "number of games")
	fs.DurationVar(&opts.moveTime, "movetime", 0, "time per move")
	fs.StringVar(&opts.archiveDir, "archive", "", "directory for the parquet results archive")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.engine1 == "" {
		opts.engine1 = cfg.Arena.Engine1
	}
	if opts.engine2 == "" {
		opts.engine2 = cfg.Arena.Engine2
	}
	if opts.games == 0 {
		opts.games = cfg.Arena.NumGames
	}
	if opts.moveTime == 0 {
		opts.moveTime = cfg.MoveTime()
	}
	if opts.archiveDir == "" {
		opts.archiveDir = cfg.ArchiveDir
	}
	return opts, nil
}

// printer writes match progress, coloured when the output is a terminal.
type printer struct {
	out    io.Writer
	win    *color.Color
	draw   *color.Color
	status *color.Color
	errc   *color.Color
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:    out,
		win:    color.New(color.FgGreen, color.Bold),
		draw:   color.New(color.FgYellow),
		status: color.New(color.FgCyan),
		errc:   color.New(color.FgRed, color.Bold),
	}
}

func (p *printer) game(g arena.GameResult) {
	line := fmt.Sprintf("Game %d: %s vs %s  %s", g.Round, g.White, g.Black, g.Result)
	if g.Winner == "" {
		p.draw.Fprintf(p.out, "%s  draw by %s (%d plies)\n", line, g.Method, g.Plies)
		return
	}
	p.win.Fprintf(p.out, "%s  %s wins by %s (%d plies)\n", line, g.Winner, g.Method, g.Plies)
}

func (p *printer) statusLine(s arena.Snapshot) {
	c := p.status
	if s.State == arena.Idle && s.Status != "Match stopped." {
		c = p.errc
	}
	c.Fprintln(p.out, s.Status)
}

func (p *printer) summary(s arena.Snapshot) {
	fmt.Fprintf(p.out, "%s  %s %d - %d %s  (%d draws, %d games)\n",
		s.MatchName, s.Engine1, s.Engine1Wins, s.Engine2Wins, s.Engine2, s.Draws, s.Played())
}

// runMatch plays cfg to the end, or until ctx is cancelled, draining the
// coordinator's notifications every poll interval.
func runMatch(ctx context.Context, gw *engine.Gateway, cfg arena.MatchConfig, archiveDir string, poll time.Duration, p *printer) (arena.Snapshot, error) {
	var opts []arena.Option
	if archiveDir != "" {
		opts = append(opts, arena.WithRecorder(archive.Recorders(archiveDir)))
	}
	coord := arena.New(arena.GatewayOpener{Gateway: gw}, opts...)
	if err := coord.Start(cfg); err != nil {
		return arena.Snapshot{}, err
	}

	finished := make(chan struct{})
	go func() {
		coord.Wait()
		close(finished)
	}()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	drain := func() {
		for _, n := range coord.Notifications().Drain() {
			switch n.Kind {
			case arena.GameFinished:
				p.game(n.Snapshot.Results[len(n.Snapshot.Results)-1])
			case arena.StatusChanged:
				p.statusLine(n.Snapshot)
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out, "Stopping after the current move...")
			coord.Stop()
		case <-ticker.C:
			drain()
			continue
		case <-finished:
		}
		drain()
		snap := coord.Snapshot()
		p.summary(snap)
		if snap.State == arena.Idle && snap.Status != "Match stopped." {
			return snap, errors.New(snap.Status)
		}
		return snap, nil
	}
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadConfig(path)
	}
	cfg, _, err := config.Load()
	return cfg, err
}

// configFlag finds -config before the other flags are parsed, since their
// defaults come from the file.
func configFlag(args []string) string {
	for i, a := range args {
		switch {
		case (a == "-config" || a == "--config") && i+1 < len(args):
			return args[i+1]
		case len(a) > 8 && a[:8] == "-config=":
			return a[8:]
		case len(a) > 9 && a[:9] == "--config=":
			return a[9:]
		}
	}
	return ""
}

func main() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
	p := newPrinter(os.Stdout)

	cfg, err := loadConfig(configFlag(os.Args[1:]))
	if err != nil {
		p.errc.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		cancel()
	}()

	match := arena.MatchConfig{
		Engine1:     opts.engine1,
		Engine2:     opts.engine2,
		NumGames:    opts.games,
		TimePerMove: opts.moveTime,
	}
	fmt.Printf("%s vs %s, %d games, %s per move\n", match.Engine1, match.Engine2, match.NumGames, match.TimePerMove)
	snap, err := runMatch(ctx, cfg.Gateway(), match, opts.archiveDir, cfg.PollInterval(), p)
	if opts.archiveDir != "" && snap.MatchName != "" {
		fmt.Printf("Results archived to %s\n", filepath.Join(opts.archiveDir, archive.FileName(snap.MatchID, snap.MatchName)))
	}
	if err != nil {
		os.Exit(1)
	}
}
