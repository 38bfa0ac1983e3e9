package navigation

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

const clubGame = `[Event "Club Championship"]
[Site "Springfield"]
[Date "2024.05.01"]
[Round "3"]
[White "Alice"]
[Black "Bob"]
[Result "*"]

1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 *
`

func TestLoadPGNMovetextOnly(t *testing.T) {
	c := newCursor(t, "d2d4", "d7d5", "c2c4")
	if err := c.LoadPGN("1. e4 e5 *"); err != nil {
		t.Fatalf("LoadPGN: %v", err)
	}
	if got := c.Mainline(); !reflect.DeepEqual(got, []string{"e2e4", "e7e5"}) {
		t.Errorf("Mainline() = %v", got)
	}
	if c.Index() != 1 {
		t.Errorf("Index() = %d, want 1", c.Index())
	}
	if want := fenAfter(t, "e2e4", "e7e5"); c.FEN() != want {
		t.Errorf("FEN() = %s, want %s", c.FEN(), want)
	}
	if c.Headers().Event != "?" {
		t.Errorf("Event = %q, want ?", c.Headers().Event)
	}
}

func TestLoadPGNHeaders(t *testing.T) {
	c := newCursor(t)
	if err := c.LoadPGN(clubGame); err != nil {
		t.Fatalf("LoadPGN: %v", err)
	}
	h := c.Headers()
	if h.Event != "Club Championship" || h.White != "Alice" || h.Black != "Bob" || h.Round != "3" {
		t.Errorf("Headers() = %+v", h)
	}
	if c.Len() != 6 || c.Index() != 5 {
		t.Errorf("Len, Index = %d, %d, want 6, 5", c.Len(), c.Index())
	}
}

func TestLoadPGNRejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", "  \n\t "},
		{"illegal move", "1. e4 e5 2. Qxf7 *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCursor(t, "d2d4", "d7d5")
			if _, err := c.JumpTo(0); err != nil {
				t.Fatal(err)
			}
			fen, mainline := c.FEN(), c.Mainline()

			err := c.LoadPGN(tt.text)
			if !errors.Is(err, ErrImport) {
				t.Fatalf("LoadPGN error = %v, want ErrImport", err)
			}
			var ie *ImportError
			if !errors.As(err, &ie) || ie.Reason == "" {
				t.Errorf("error %v is not an *ImportError with a reason", err)
			}
			if c.Index() != 0 || c.FEN() != fen || !reflect.DeepEqual(c.Mainline(), mainline) {
				t.Errorf("rejected import changed state: index %d fen %s", c.Index(), c.FEN())
			}
		})
	}
}

func TestExportPGN(t *testing.T) {
	c := newCursor(t, "e2e4", "e7e5", "g1f3")
	c.SetHeaders(Headers{Event: "Test", Site: "?", Date: "2024.01.01", Round: "1", White: "W", Black: "B"})
	out := c.ExportPGN()

	for _, want := range []string{
		`[Event "Test"]`,
		`[White "W"]`,
		`[Black "B"]`,
		`[Result "*"]`,
		"1. e4 e5 2. Nf3 *",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("ExportPGN() missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "[Event") > strings.Index(out, "[Result") {
		t.Errorf("Event tag after Result tag:\n%s", out)
	}
	if strings.Contains(out, "[FEN") {
		t.Errorf("standard start exported a FEN tag:\n%s", out)
	}
	if c.ExportPGN() != out {
		t.Error("ExportPGN() is not stable across calls")
	}
}

func TestExportPGNResult(t *testing.T) {
	c := newCursor(t, "f2f3", "e7e5", "g2g4", "d8h4")
	out := c.ExportPGN()
	if !strings.Contains(out, `[Result "0-1"]`) {
		t.Errorf("missing 0-1 result:\n%s", out)
	}
	if !strings.Contains(out, "Qh4# 0-1") {
		t.Errorf("movetext not terminated by the result:\n%s", out)
	}

	// The result follows the live position, not the end of the record.
	if _, err := c.JumpTo(1); err != nil {
		t.Fatal(err)
	}
	if out := c.ExportPGN(); !strings.Contains(out, `[Result "*"]`) {
		t.Errorf("mid-game export has a decided result:\n%s", out)
	}
}

func TestPGNRoundTrip(t *testing.T) {
	moves := []string{"e2e4", "c7c5", "g1f3", "d7d6", "d2d4", "c5d4", "f3d4", "g8f6", "b1c3", "a7a6"}
	c := newCursor(t, moves...)
	if _, err := c.JumpTo(3); err != nil {
		t.Fatal(err)
	}
	text := c.ExportPGN()

	other := newCursor(t, "h2h3")
	if err := other.LoadPGN(text); err != nil {
		t.Fatalf("LoadPGN(ExportPGN()): %v\n%s", err, text)
	}
	if !reflect.DeepEqual(other.Mainline(), moves) {
		t.Errorf("Mainline() = %v, want %v", other.Mainline(), moves)
	}
	if other.Index() != len(moves)-1 {
		t.Errorf("Index() = %d, want %d", other.Index(), len(moves)-1)
	}
}

func TestPGNRoundTripFromFEN(t *testing.T) {
	fen := "4k3/8/8/8/8/8/4P3/4K3 w - - 0 1"
	c, err := NewCursor(WithFEN(fen))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.ApplyUCI("e2e4"); err != nil {
		t.Fatal(err)
	}
	text := c.ExportPGN()
	if !strings.Contains(text, `[SetUp "1"]`) || !strings.Contains(text, `[FEN "`+fen+`"]`) {
		t.Fatalf("missing FEN tags:\n%s", text)
	}

	other := newCursor(t)
	if err := other.LoadPGN(text); err != nil {
		t.Fatalf("LoadPGN: %v", err)
	}
	if other.StartFEN() != fen {
		t.Errorf("StartFEN() = %s, want %s", other.StartFEN(), fen)
	}
	if other.FEN() != c.FEN() {
		t.Errorf("FEN() = %s, want %s", other.FEN(), c.FEN())
	}
}

func TestImportPGNLatin1(t *testing.T) {
	// "Müller" in ISO-8859-1.
	text := []byte("[Event \"Open\"]\n[White \"M\xfcller\"]\n[Black \"?\"]\n\n1. d4 d5 *\n")
	c := newCursor(t)
	if err := c.ImportPGN(bytes.NewReader(text)); err != nil {
		t.Fatalf("ImportPGN: %v", err)
	}
	if got := c.Headers().White; got != "Müller" {
		t.Errorf("White = %q, want Müller", got)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestOpening(t *testing.T) {
	c := newCursor(t)
	if code, _ := c.Opening(); code != "" {
		t.Errorf("empty game has opening %q", code)
	}
	c = newCursor(t, "e2e4", "c7c5")
	code, title := c.Opening()
	if !strings.HasPrefix(code, "B") || title == "" {
		t.Errorf("Opening() = %q, %q, want a B code for the Sicilian", code, title)
	}
}
