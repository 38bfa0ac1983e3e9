package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	names := map[string]bool{}
	for _, s := range cfg.Specs() {
		names[s.Name] = true
	}
	for _, n := range []string{"Stockfish", "Komodo Dragon", "Houdini", "Obsidian"} {
		if !names[n] {
			t.Errorf("default engine %q missing", n)
		}
	}
	if cfg.ThinkTime() != 50*time.Millisecond || cfg.PollInterval() != 100*time.Millisecond || cfg.MoveTime() != time.Second {
		t.Errorf("durations %v %v %v", cfg.ThinkTime(), cfg.PollInterval(), cfg.MoveTime())
	}
	if cfg.Arena.NumGames != 10 {
		t.Errorf("NumGames = %d", cfg.Arena.NumGames)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{
		"engines": [
			{"name": "Local", "path": "bin/engine", "options": {"Threads": "1"}},
			{"name": "OnPath", "path": "stockfish"},
			{"name": "Absolute", "path": "/opt/engine"}
		],
		"think_millis": 200,
		"archive_dir": "archive"
	}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := map[string]string{
		"Local":    filepath.Join(dir, "bin", "engine"),
		"OnPath":   "stockfish",
		"Absolute": "/opt/engine",
	}
	if len(cfg.Engines) != 3 {
		t.Fatalf("engines = %+v", cfg.Engines)
	}
	for _, e := range cfg.Engines {
		if e.Path != want[e.Name] {
			t.Errorf("%s path = %q, want %q", e.Name, e.Path, want[e.Name])
		}
	}
	if cfg.ThinkTime() != 200*time.Millisecond {
		t.Errorf("ThinkTime() = %v", cfg.ThinkTime())
	}
	if cfg.PollMillis != 100 {
		t.Errorf("unset poll_millis lost its default: %d", cfg.PollMillis)
	}
	if cfg.ArchiveDir != filepath.Join(dir, "archive") {
		t.Errorf("ArchiveDir = %q", cfg.ArchiveDir)
	}
	g := cfg.Gateway()
	if !g.Has("Local") || g.Has("Stockfish") {
		t.Errorf("gateway names = %v", g.Names())
	}
	if s, _ := g.Spec("Local"); s.Options["Threads"] != "1" || len(s.Options) != 1 {
		t.Errorf("options not carried into the spec: %+v", s)
	}
}

func TestLoadConfigReplacesEngines(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"engines": [{"name": "Bare", "path": "bare"}, {"name": "Second", "path": "second"}]}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Engines) != 2 {
		t.Fatalf("engines = %+v", cfg.Engines)
	}
	for _, e := range cfg.Engines {
		if len(e.Options) != 0 || len(e.Args) != 0 {
			t.Errorf("%s inherited settings from the defaults: %+v", e.Name, e)
		}
	}

	path = writeConfig(t, t.TempDir(), `{"think_millis": 10}`)
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if len(cfg.Engines) != len(Default().Engines) {
		t.Errorf("a file without engines should keep the defaults, got %+v", cfg.Engines)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"engines": [`},
		{"duplicate engine", `{"engines": [{"name": "A", "path": "a"}, {"name": "A", "path": "b"}]}`},
		{"unnamed engine", `{"engines": [{"path": "a"}]}`},
		{"negative time", `{"think_millis": -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.body)
			if _, err := LoadConfig(path); err == nil {
				t.Error("LoadConfig succeeded")
			}
		})
	}
}

func TestFindConfigPath(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{}`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)
	if err := os.Chdir(nested); err != nil {
		t.Fatal(err)
	}

	path, dir, err := FindConfigPath()
	if err != nil {
		t.Fatalf("FindConfigPath: %v", err)
	}
	// TempDir may sit behind a symlink, so compare resolved paths.
	wantDir, _ := filepath.EvalSymlinks(root)
	gotDir, _ := filepath.EvalSymlinks(dir)
	if gotDir != wantDir || filepath.Base(path) != FileName {
		t.Errorf("FindConfigPath() = %q, %q, want a file in %q", path, dir, root)
	}
}
