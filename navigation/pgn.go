package navigation

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	chess "github.com/corentings/chess/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// syntheticEvent is prepended to movetext without tag pairs; the PGN scanner
// only recognises a game that starts with a tag.
const syntheticEvent = "[Event \"?\"]\n\n"

// rosterTags are the tags copied into Headers on import.
var rosterTags = []string{"Event", "Site", "Date", "Round", "White", "Black"}

// LoadPGN replaces the game with the first game found in text and moves the
// cursor to its final position. Only the mainline is kept. On any failure an
// *ImportError is returned and the cursor is left exactly as it was.
func (c *Cursor) LoadPGN(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &ImportError{Reason: "no PGN text to import"}
	}
	synthetic := !strings.HasPrefix(text, "[")
	if synthetic {
		text = syntheticEvent + text
	}

	parsed, err := parsePGN(text)
	if err != nil {
		return &ImportError{Reason: "could not parse PGN", Err: err}
	}

	tags := 0
	for _, k := range append(rosterTags, "FEN") {
		if synthetic && k == "Event" {
			continue
		}
		if parsed.GetTagPair(k) != "" {
			tags++
		}
	}
	moves := parsed.Moves()
	if len(moves) == 0 && tags == 0 {
		return &ImportError{Reason: "no game found in PGN text"}
	}

	start := strings.TrimSpace(parsed.GetTagPair("FEN"))
	record, err := replay(start, moves, len(moves))
	if err != nil {
		return &ImportError{Reason: "game contains an illegal move", Err: err}
	}
	live, err := replay(start, moves, len(moves))
	if err != nil {
		return &ImportError{Reason: "game contains an illegal move", Err: err}
	}

	h := Headers{Event: "?", Site: "?", Date: "?", Round: "?", White: "?", Black: "?"}
	for _, k := range rosterTags {
		if synthetic && k == "Event" {
			continue
		}
		v := parsed.GetTagPair(k)
		if v == "" {
			continue
		}
		switch k {
		case "Event":
			h.Event = v
		case "Site":
			h.Site = v
		case "Date":
			h.Date = v
		case "Round":
			h.Round = v
		case "White":
			h.White = v
		case "Black":
			h.Black = v
		}
	}

	c.start = start
	c.record = record
	c.live = live
	c.index = len(moves) - 1
	c.headers = h
	c.selected = chess.NoSquare
	log.Info("imported game", "moves", len(moves), "white", h.White, "black", h.Black)
	return nil
}

// parsePGN runs the library parser. The parser panics on some malformed
// inputs, which is reported as an error.
func parsePGN(text string) (game *chess.Game, err error) {
	defer func() {
		if r := recover(); r != nil {
			game, err = nil, fmt.Errorf("parser panic: %v", r)
		}
	}()
	opt, err := chess.PGN(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	return chess.NewGame(opt), nil
}

// ImportPGN reads a PGN file and loads it. Files that are not valid UTF-8 are
// decoded as ISO-8859-1, the usual encoding of older PGN collections.
func (c *Cursor) ImportPGN(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return &ImportError{Reason: "could not read PGN", Err: err}
	}
	if !utf8.Valid(data) {
		decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), charmap.ISO8859_1.NewDecoder()))
		if err != nil {
			return &ImportError{Reason: "could not decode PGN", Err: err}
		}
		data = decoded
	}
	return c.LoadPGN(string(data))
}

// ExportPGN renders the mainline as PGN. Result comes from the live position,
// "*" while it is not game over. Games that do not start from the standard
// position carry SetUp and FEN tags.
func (c *Cursor) ExportPGN() string {
	var sb strings.Builder
	tag := func(k, v string) {
		fmt.Fprintf(&sb, "[%s \"%s\"]\n", k, escapeTag(v))
	}
	result := c.live.Outcome().String()
	tag("Event", c.headers.Event)
	tag("Site", c.headers.Site)
	tag("Date", c.headers.Date)
	tag("Round", c.headers.Round)
	tag("White", c.headers.White)
	tag("Black", c.headers.Black)
	tag("Result", result)
	if c.start != "" && c.start != chess.StartingPosition().String() {
		tag("SetUp", "1")
		tag("FEN", c.start)
	}
	if code, title := c.Opening(); code != "" {
		tag("ECO", code)
		tag("Opening", title)
	}
	sb.WriteString("\n")
	sb.WriteString(c.Movetext())
	sb.WriteString("\n")
	return sb.String()
}

// Movetext renders the mainline as numbered SAN followed by the result
// marker, e.g. "1. e4 e5 2. Nf3 *".
func (c *Cursor) Movetext() string {
	var parts []string
	for _, row := range c.Rows() {
		switch {
		case row.WhiteIndex < 0:
			parts = append(parts, fmt.Sprintf("%d...", row.Number), row.Black)
		case row.BlackIndex < 0:
			parts = append(parts, fmt.Sprintf("%d.", row.Number), row.White)
		default:
			parts = append(parts, fmt.Sprintf("%d.", row.Number), row.White, row.Black)
		}
	}
	parts = append(parts, c.live.Outcome().String())
	return strings.Join(parts, " ")
}

func escapeTag(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}
