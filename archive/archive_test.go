package archive

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/walterschell/chess-toolkit/arena"
)

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches", "test.parquet")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	games := []arena.GameResult{
		{MatchID: "id-1", MatchName: "brave-otter", Round: 1, White: "A", Black: "B", Result: "1-0", Method: "checkmate", Winner: "A", Plies: 41, PGN: "1. e4 *", FinishedAt: finished},
		{MatchID: "id-1", MatchName: "brave-otter", Round: 2, White: "B", Black: "A", Result: "1/2-1/2", Method: "stalemate", Plies: 80, PGN: "1. d4 *", FinishedAt: finished.Add(time.Minute)},
	}
	for _, g := range games {
		if err := w.RecordGame(g); err != nil {
			t.Fatalf("RecordGame: %v", err)
		}
	}
	if w.Count() != 2 {
		t.Errorf("Count() = %d", w.Count())
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Errorf("second Finish: %v", err)
	}
	if err := w.RecordGame(games[0]); !errors.Is(err, ErrClosed) {
		t.Errorf("RecordGame after Finish = %v, want ErrClosed", err)
	}

	records, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("read %d records, want 2", len(records))
	}
	for i, g := range games {
		if want := FromResult(g); records[i] != want {
			t.Errorf("record %d = %+v, want %+v", i, records[i], want)
		}
	}
	if !records[0].Finished().Equal(finished) {
		t.Errorf("Finished() = %v", records[0].Finished())
	}
}

func TestRecorders(t *testing.T) {
	dir := t.TempDir()
	rec, err := Recorders(dir)("id-9", "quiet-fox")
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	if err := rec.RecordGame(arena.GameResult{MatchID: "id-9", MatchName: "quiet-fox", Round: 1, Result: "0-1"}); err != nil {
		t.Fatalf("RecordGame: %v", err)
	}
	if err := rec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	records, err := ReadFile(filepath.Join(dir, "quiet-fox-id-9.parquet"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 1 || records[0].MatchName != "quiet-fox" || records[0].Result != "0-1" {
		t.Errorf("records = %+v", records)
	}
}

func TestRecordersKeepMatchesWithTheSameName(t *testing.T) {
	dir := t.TempDir()
	recorders := Recorders(dir)
	ids := []string{"1111111a-0000", "2222222b-0000"}
	for i, id := range ids {
		rec, err := recorders(id, "quiet-fox")
		if err != nil {
			t.Fatalf("recorder %s: %v", id, err)
		}
		if err := rec.RecordGame(arena.GameResult{MatchID: id, MatchName: "quiet-fox", Round: i + 1, Result: "1-0"}); err != nil {
			t.Fatalf("RecordGame: %v", err)
		}
		if err := rec.Finish(); err != nil {
			t.Fatalf("Finish: %v", err)
		}
	}
	for _, id := range ids {
		records, err := ReadFile(filepath.Join(dir, FileName(id, "quiet-fox")))
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if len(records) != 1 || records[0].MatchID != id {
			t.Errorf("archive of %s = %+v", id, records)
		}
	}
	if _, err := recorders(ids[0], "quiet-fox"); err == nil {
		t.Error("recorder overwrote an existing archive")
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		id, name, want string
	}{
		{"0123456789abcdef", "quiet-fox", "quiet-fox-01234567.parquet"},
		{"id-9", "quiet-fox", "quiet-fox-id-9.parquet"},
		{"0123456789abcdef", "", "01234567.parquet"},
	}
	for _, tt := range tests {
		if got := FileName(tt.id, tt.name); got != tt.want {
			t.Errorf("FileName(%q, %q) = %q, want %q", tt.id, tt.name, got, tt.want)
		}
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := ReadFile(filepath.Join(t.TempDir(), "nope.parquet")); err == nil {
		t.Error("ReadFile of a missing file succeeded")
	}
}
