package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chess "github.com/corentings/chess/v2"
	"github.com/gorilla/mux"

	"github.com/walterschell/chess-toolkit/arena"
	"github.com/walterschell/chess-toolkit/session"
)

// boardResponse carries the board after an operation, with the failure when
// there was one. Failed operations leave the board readable.
type boardResponse struct {
	View  session.View `json:"view"`
	Error string       `json:"error,omitempty"`
}

func (app *Application) registerAPI(r *mux.Router) {
	r.HandleFunc("/state", app.stateHandler).Methods(http.MethodGet)
	r.HandleFunc("/click", app.clickHandler).Methods(http.MethodPost)
	r.HandleFunc("/move", app.moveHandler).Methods(http.MethodPost)
	r.HandleFunc("/jump", app.jumpHandler).Methods(http.MethodPost)
	r.HandleFunc("/row", app.rowHandler).Methods(http.MethodPost)
	r.HandleFunc("/import", app.importHandler).Methods(http.MethodPost)
	r.HandleFunc("/export", app.exportHandler).Methods(http.MethodGet)
	r.HandleFunc("/engine", app.engineHandler).Methods(http.MethodPost)
	r.HandleFunc("/opponent", app.opponentHandler).Methods(http.MethodPost)
	r.HandleFunc("/reset", app.resetHandler).Methods(http.MethodPost)
	r.HandleFunc("/analyze", app.analyzeHandler).Methods(http.MethodPost)

	r.HandleFunc("/arena", app.arenaStateHandler).Methods(http.MethodGet)
	r.HandleFunc("/arena/start", app.arenaStartHandler).Methods(http.MethodPost)
	r.HandleFunc("/arena/stop", app.arenaStopHandler).Methods(http.MethodPost)
	r.HandleFunc("/arena/move", app.arenaMoveHandler).Methods(http.MethodPost)
	r.HandleFunc("/arena/pgn", app.arenaPGNHandler).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

// board answers a session operation and pushes the new board to every
// websocket client.
func (app *Application) board(w http.ResponseWriter, view session.View, err error) {
	resp := boardResponse{View: view}
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusUnprocessableEntity
	}
	app.broadcast(Message{Type: "board", Board: &view})
	writeJSON(w, status, resp)
}

func (app *Application) stateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, boardResponse{View: app.session.View()})
}

func (app *Application) clickHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Square string `json:"square"`
	}
	if !decode(w, r, &req) {
		return
	}
	view, err := app.session.Click(r.Context(), req.Square)
	app.board(w, view, err)
}

func (app *Application) moveHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Move string `json:"move"`
	}
	if !decode(w, r, &req) {
		return
	}
	view, err := app.session.Move(r.Context(), req.Move)
	app.board(w, view, err)
}

func (app *Application) jumpHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index int `json:"index"`
	}
	if !decode(w, r, &req) {
		return
	}
	view, err := app.session.JumpTo(r.Context(), req.Index)
	app.board(w, view, err)
}

func (app *Application) rowHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Row int `json:"row"`
	}
	if !decode(w, r, &req) {
		return
	}
	view, err := app.session.JumpToRow(r.Context(), req.Row)
	app.board(w, view, err)
}

// importHandler takes the PGN text as the raw request body.
func (app *Application) importHandler(w http.ResponseWriter, r *http.Request) {
	view, err := app.session.Import(r.Context(), http.MaxBytesReader(w, r.Body, 1<<20))
	app.board(w, view, err)
}

func (app *Application) exportHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-chess-pgn")
	w.Header().Set("Content-Disposition", `attachment; filename="game.pgn"`)
	w.Write([]byte(app.session.Export()))
}

func (app *Application) engineHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Engine string `json:"engine"`
	}
	if !decode(w, r, &req) {
		return
	}
	view, err := app.session.SelectEngine(r.Context(), req.Engine)
	app.board(w, view, err)
}

func (app *Application) opponentHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Engine string `json:"engine"`
		Color  string `json:"color"`
	}
	if !decode(w, r, &req) {
		return
	}
	color := chess.Black
	switch strings.ToLower(req.Color) {
	case "", "black", "b":
	case "white", "w":
		color = chess.White
	default:
		writeError(w, http.StatusBadRequest, errors.New("color must be white or black"))
		return
	}
	view, err := app.session.SetOpponent(r.Context(), req.Engine, color)
	app.board(w, view, err)
}

func (app *Application) resetHandler(w http.ResponseWriter, r *http.Request) {
	view, err := app.session.Reset(r.Context())
	app.board(w, view, err)
}

func (app *Application) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	app.board(w, app.session.Analyze(r.Context()), nil)
}

func (app *Application) arenaStateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.arena.Snapshot())
}

func (app *Application) arenaStartHandler(w http.ResponseWriter, r *http.Request) {
	req := app.cfg.Arena
	if !decode(w, r, &req) {
		return
	}
	cfg := arena.MatchConfig{
		Engine1:     req.Engine1,
		Engine2:     req.Engine2,
		NumGames:    req.NumGames,
		TimePerMove: time.Duration(req.MoveMillis) * time.Millisecond,
	}
	// A human seat only ever plays one game.
	if cfg.Engine1 == arena.Human || cfg.Engine2 == arena.Human {
		cfg.NumGames = 1
	}
	for _, name := range []string{cfg.Engine1, cfg.Engine2} {
		if name != arena.Human && name != "" && !app.gateway.Has(name) {
			writeError(w, http.StatusBadRequest, errors.New("unknown engine "+name))
			return
		}
	}
	if err := app.arena.Start(cfg); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, arena.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, app.arena.Snapshot())
}

func (app *Application) arenaStopHandler(w http.ResponseWriter, r *http.Request) {
	app.arena.Stop()
	writeJSON(w, http.StatusOK, app.arena.Snapshot())
}

func (app *Application) arenaMoveHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Move string `json:"move"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := app.arena.SubmitMove(req.Move); err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, arena.ErrNotHumanTurn) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, app.arena.Snapshot())
}

func (app *Application) arenaPGNHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-chess-pgn")
	w.Write([]byte(app.arena.PGN()))
}
