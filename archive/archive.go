// Package archive stores finished arena games in parquet files, one row per
// game.
package archive

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/walterschell/chess-toolkit/arena"
)

var log = slog.Default().With("package", "archive")

// ErrClosed is returned when recording into a finished writer.
var ErrClosed = errors.New("archive writer is closed")

// Record is one archived game.
type Record struct {
	MatchID    string `parquet:"name=match_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	MatchName  string `parquet:"name=match_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Round      int32  `parquet:"name=round, type=INT32"`
	White      string `parquet:"name=white, type=BYTE_ARRAY, convertedtype=UTF8"`
	Black      string `parquet:"name=black, type=BYTE_ARRAY, convertedtype=UTF8"`
	Result     string `parquet:"name=result, type=BYTE_ARRAY, convertedtype=UTF8"`
	Method     string `parquet:"name=method, type=BYTE_ARRAY, convertedtype=UTF8"`
	Winner     string `parquet:"name=winner, type=BYTE_ARRAY, convertedtype=UTF8"`
	Plies      int32  `parquet:"name=plies, type=INT32"`
	PGN        string `parquet:"name=pgn, type=BYTE_ARRAY, convertedtype=UTF8"`
	FinishedAt int64  `parquet:"name=finished_at, type=INT64"`
}

// FromResult converts an arena game result into an archive row.
func FromResult(g arena.GameResult) Record {
	return Record{
		MatchID:    g.MatchID,
		MatchName:  g.MatchName,
		Round:      int32(g.Round),
		White:      g.White,
		Black:      g.Black,
		Result:     g.Result,
		Method:     g.Method,
		Winner:     g.Winner,
		Plies:      int32(g.Plies),
		PGN:        g.PGN,
		FinishedAt: g.FinishedAt.Unix(),
	}
}

// Finished returns FinishedAt as a time.
func (r Record) Finished() time.Time {
	return time.Unix(r.FinishedAt, 0)
}

// Writer appends games to one parquet file. It implements arena.Recorder;
// the file is only complete after Finish.
type Writer struct {
	path string

	mu     sync.Mutex
	fw     source.ParquetFile
	pw     *writer.ParquetWriter
	count  int
	closed bool
}

// Create opens path for writing, creating parent directories.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	pw, err := writer.NewParquetWriter(fw, new(Record), 1)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	log.Info("archive opened", "path", path)
	return &Writer{path: path, fw: fw, pw: pw}, nil
}

// Path is the file being written.
func (w *Writer) Path() string {
	return w.path
}

// Count is the number of games written so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// RecordGame appends one game.
func (w *Writer) RecordGame(g arena.GameResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.pw.Write(FromResult(g)); err != nil {
		return fmt.Errorf("failed to write game %d: %w", g.Round, err)
	}
	w.count++
	return nil
}

// Finish flushes the footer and closes the file. Later calls do nothing.
func (w *Writer) Finish() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.pw.WriteStop(); err != nil {
		w.fw.Close()
		return fmt.Errorf("failed to finish %s: %w", w.path, err)
	}
	if err := w.fw.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", w.path, err)
	}
	log.Info("archive written", "path", w.path, "games", w.count)
	return nil
}

// FileName is the archive file of a match: its name plus the first eight
// characters of its ID, since names are not unique across matches.
func FileName(matchID, matchName string) string {
	id := matchID
	if len(id) > 8 {
		id = id[:8]
	}
	if matchName == "" {
		return id + ".parquet"
	}
	return matchName + "-" + id + ".parquet"
}

// Recorders returns an arena recorder factory writing one file per match
// into dir. An existing file is never overwritten.
func Recorders(dir string) arena.RecorderFunc {
	return func(matchID, matchName string) (arena.Recorder, error) {
		path := filepath.Join(dir, FileName(matchID, matchName))
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("archive %s already exists", path)
		}
		return Create(path)
	}
}

// ReadFile reads every row of an archive file.
func ReadFile(path string) ([]Record, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(Record), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	records := make([]Record, 0, num)
	batchSize := 256
	for offset := 0; offset < num; offset += batchSize {
		if remain := num - offset; remain < batchSize {
			batchSize = remain
		}
		batch := make([]Record, batchSize)
		if err := pr.Read(&batch); err != nil {
			return nil, fmt.Errorf("failed to read rows of %s: %w", path, err)
		}
		records = append(records, batch...)
	}
	return records, nil
}
