// Package config loads the toolkit's JSON configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/walterschell/chess-toolkit/engine"
)

// FileName is the configuration file looked up by FindConfigPath.
const FileName = "config.json"

// EngineConfig maps an engine name to its executable.
type EngineConfig struct {
	Name    string            `json:"name"`
	Path    string            `json:"path"`
	Args    []string          `json:"args,omitempty"`
	Options map[string]string `json:"options,omitempty"`
}

// ArenaConfig holds the defaults of a new match.
type ArenaConfig struct {
	Engine1    string `json:"engine1"`
	Engine2    string `json:"engine2"`
	NumGames   int    `json:"num_games"`
	MoveMillis int    `json:"move_millis"`
}

type Config struct {
	Listen      string         `json:"listen"`
	Engines     []EngineConfig `json:"engines"`
	ThinkMillis int            `json:"think_millis"`
	GraceMillis int            `json:"grace_millis"`
	PollMillis  int            `json:"poll_millis"`
	ArchiveDir  string         `json:"archive_dir"`
	Arena       ArenaConfig    `json:"arena"`
}

// Default is the configuration used when no file is found.
func Default() Config {
	return Config{
		Listen: ":8080",
		Engines: []EngineConfig{
			{Name: "Stockfish", Path: "stockfish", Options: map[string]string{"Hash": "128", "Threads": "4"}},
			{Name: "Komodo Dragon", Path: "engines/dragon"},
			{Name: "Houdini", Path: "engines/houdini"},
			{Name: "Obsidian", Path: "engines/obsidian"},
		},
		ThinkMillis: 50,
		GraceMillis: 2000,
		PollMillis:  100,
		Arena: ArenaConfig{
			Engine1:    "Stockfish",
			Engine2:    "Komodo Dragon",
			NumGames:   10,
			MoveMillis: 1000,
		},
	}
}

// FindConfigPath walks up from the working directory looking for FileName.
// It returns the file and the directory holding it.
func FindConfigPath() (string, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", "", err
	}
	dir := cwd
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path, filepath.Dir(path), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", "", fmt.Errorf("%s not found from %s", FileName, cwd)
}

// LoadConfig reads path over the defaults. Relative engine and archive paths
// are resolved against the file's directory; bare executable names are left
// for a PATH lookup.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	// Engines are replaced as a whole, never merged element by element
	// with the defaults.
	cfg := Default()
	cfg.Engines = nil
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Engines == nil {
		cfg.Engines = Default().Engines
	}
	dir := filepath.Dir(path)
	for i := range cfg.Engines {
		cfg.Engines[i].Path = resolve(dir, cfg.Engines[i].Path)
	}
	if cfg.ArchiveDir != "" && !filepath.IsAbs(cfg.ArchiveDir) {
		cfg.ArchiveDir = filepath.Join(dir, cfg.ArchiveDir)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Load uses the nearest config file, or the defaults when there is none.
func Load() (Config, string, error) {
	path, _, err := FindConfigPath()
	if err != nil {
		return Default(), "", nil
	}
	cfg, err := LoadConfig(path)
	return cfg, path, err
}

func resolve(dir, p string) string {
	bare := !strings.ContainsRune(p, filepath.Separator) && !strings.ContainsRune(p, '/')
	if p == "" || bare || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate rejects duplicate or unnamed engines and negative durations.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Engines))
	for _, e := range c.Engines {
		if e.Name == "" {
			return fmt.Errorf("engine with path %q has no name", e.Path)
		}
		if seen[e.Name] {
			return fmt.Errorf("engine %q configured twice", e.Name)
		}
		seen[e.Name] = true
	}
	if c.ThinkMillis < 0 || c.GraceMillis < 0 || c.PollMillis < 0 || c.Arena.MoveMillis < 0 || c.Arena.NumGames < 0 {
		return fmt.Errorf("durations and counts must not be negative")
	}
	return nil
}

// Specs converts the engine table for the engine gateway.
func (c Config) Specs() []engine.Spec {
	specs := make([]engine.Spec, 0, len(c.Engines))
	for _, e := range c.Engines {
		specs = append(specs, engine.Spec{Name: e.Name, Path: e.Path, Args: e.Args, Options: e.Options})
	}
	return specs
}

// Gateway builds an engine gateway from the engine table.
func (c Config) Gateway() *engine.Gateway {
	var opts []engine.GatewayOption
	if c.GraceMillis > 0 {
		opts = append(opts, engine.WithGrace(c.Grace()))
	}
	return engine.NewGateway(c.Specs(), opts...)
}

func millis(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Millisecond
}

// ThinkTime is the analysis budget per position.
func (c Config) ThinkTime() time.Duration { return millis(c.ThinkMillis, 50) }

// Grace is how long an engine may overrun its budget.
func (c Config) Grace() time.Duration { return millis(c.GraceMillis, 2000) }

// PollInterval is how often notification queues are drained.
func (c Config) PollInterval() time.Duration { return millis(c.PollMillis, 100) }

// MoveTime is the default arena time per move.
func (c Config) MoveTime() time.Duration { return millis(c.Arena.MoveMillis, 1000) }
