package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"text/template"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/walterschell/chess-toolkit/archive"
	"github.com/walterschell/chess-toolkit/arena"
	"github.com/walterschell/chess-toolkit/config"
	"github.com/walterschell/chess-toolkit/engine"
	"github.com/walterschell/chess-toolkit/session"
)

const DefaultPort = 8080

//go:embed assets
var assets embed.FS
var static fs.FS
var templates fs.FS

func init() {
	static, _ = fs.Sub(assets, "assets/static")
	templates, _ = fs.Sub(assets, "assets/templates")
}

func stdoutLogger(next http.Handler) http.Handler {
	return handlers.LoggingHandler(os.Stdout, next)
}

type Client struct {
	conn        *websocket.Conn
	application *Application
}

// Message is what the page receives over the websocket.
type Message struct {
	Type  string          `json:"type"` // "board" or "arena"
	Board *session.View   `json:"board,omitempty"`
	Arena *arena.Snapshot `json:"arena,omitempty"`
}

type Application struct {
	router      *mux.Router
	templates   *template.Template
	clients     map[*Client]interface{}
	clientsLock sync.Mutex
	upgrader    websocket.Upgrader

	cfg     config.Config
	gateway *engine.Gateway
	session *session.Session
	arena   *arena.Coordinator
}

func NewApplication(cfg config.Config, gw *engine.Gateway, sess *session.Session, coord *arena.Coordinator) *Application {
	templateParser := template.New("")
	templateParser.Delims("[[", "]]")
	result := Application{
		router:    mux.NewRouter(),
		templates: template.Must(templateParser.ParseFS(templates, "*.html.gotmpl")),
		clients:   make(map[*Client]interface{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		cfg:     cfg,
		gateway: gw,
		session: sess,
		arena:   coord,
	}
	result.router.NotFoundHandler = stdoutLogger(http.HandlerFunc(notFoundHandler))
	result.router.Use(stdoutLogger)

	result.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	result.router.HandleFunc("/", result.indexHandler).Methods(http.MethodGet)
	result.router.HandleFunc("/ws", result.wsHandler)
	result.registerAPI(result.router.PathPrefix("/api").Subrouter())
	return &result
}

func (app *Application) indexHandler(w http.ResponseWriter, r *http.Request) {
	templateVars := struct {
		Title   string
		Engines []string
		Arena   config.ArenaConfig
	}{
		Title:   "Chess Toolkit",
		Engines: app.gateway.Names(),
		Arena:   app.cfg.Arena,
	}

	err := app.templates.ExecuteTemplate(w, "index.html.gotmpl", templateVars)
	if err != nil {
		slog.Error("Error rendering template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (application *Application) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := application.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	slog.Info("New websocket connection", "remote", conn.RemoteAddr().String())
	client := &Client{
		conn:        conn,
		application: application,
	}
	application.clientsLock.Lock()
	application.clients[client] = nil
	application.clientsLock.Unlock()

	view := application.session.View()
	snap := application.arena.Snapshot()
	application.send(client, Message{Type: "board", Board: &view})
	application.send(client, Message{Type: "arena", Arena: &snap})
	go func() {
		for {
			// The page only listens; reading keeps control frames flowing and
			// notices the close.
			if _, _, err := client.conn.ReadMessage(); err != nil {
				slog.Info("websocket closed", "remote", conn.RemoteAddr().String(), "error", err)
				application.drop(client)
				return
			}
		}
	}()
}

func (app *Application) drop(client *Client) {
	app.clientsLock.Lock()
	defer app.clientsLock.Unlock()
	if _, ok := app.clients[client]; ok {
		delete(app.clients, client)
		client.conn.Close()
	}
}

func (app *Application) send(client *Client, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		slog.Error("Error encoding message", "error", err)
		return
	}
	app.clientsLock.Lock()
	defer app.clientsLock.Unlock()
	if _, ok := app.clients[client]; !ok {
		return
	}
	if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		delete(app.clients, client)
		client.conn.Close()
	}
}

// broadcast sends message to every client. Writes happen under the clients
// lock, so each connection has one writer at a time.
func (app *Application) broadcast(message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		slog.Error("Error encoding message", "error", err)
		return
	}
	app.clientsLock.Lock()
	defer app.clientsLock.Unlock()
	for client := range app.clients {
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Info("dropping websocket client", "remote", client.conn.RemoteAddr().String(), "error", err)
			delete(app.clients, client)
			client.conn.Close()
		}
	}
}

// pump drains the arena's notification queue every interval and pushes the
// newest snapshot to the clients. Older snapshots in the same batch are
// superseded by it.
func (app *Application) pump(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending := app.arena.Notifications().Drain()
			if len(pending) == 0 {
				continue
			}
			snap := pending[len(pending)-1].Snapshot
			app.broadcast(Message{Type: "arena", Arena: &snap})
		}
	}
}

func (app *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	app.router.ServeHTTP(w, r)
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "File Not Found", http.StatusNotFound)
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.LoadConfig(path)
	}
	cfg, found, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if found == "" {
		slog.Info("no config file found, using defaults")
	} else {
		slog.Info("loaded config", "path", found)
	}
	return cfg, nil
}

func main() {
	var port uint
	var configPath string
	flag.UintVar(&port, "port", 0, fmt.Sprintf("Port to listen on (default from config, else %d)", DefaultPort))
	flag.StringVar(&configPath, "config", "", "Path to config.json")
	flag.Parse()
	if port > 65535 {
		fmt.Println("Invalid port number")
		os.Exit(1)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	listen := cfg.Listen
	if port != 0 {
		listen = fmt.Sprintf(":%d", port)
	}
	if listen == "" {
		listen = fmt.Sprintf(":%d", DefaultPort)
	}

	gw := cfg.Gateway()
	var sessionOpts []session.Option
	sessionOpts = append(sessionOpts, session.WithThinkTime(cfg.ThinkTime()), session.WithBotTime(cfg.MoveTime()))
	if names := gw.Names(); len(names) > 0 {
		sessionOpts = append(sessionOpts, session.WithEngine(names[0]))
	}
	sess, err := session.New(gw, sessionOpts...)
	if err != nil {
		fmt.Printf("Error creating session: %v\n", err)
		os.Exit(1)
	}
	var arenaOpts []arena.Option
	if cfg.ArchiveDir != "" {
		arenaOpts = append(arenaOpts, arena.WithRecorder(archive.Recorders(cfg.ArchiveDir)))
	}
	coord := arena.New(arena.GatewayOpener{Gateway: gw}, arenaOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := NewApplication(cfg, gw, sess, coord)
	go app.pump(ctx, cfg.PollInterval())

	server := &http.Server{Addr: listen, Handler: app}
	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		coord.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Starting server on %s\n", listen)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Printf("Server error: %v\n", err)
		os.Exit(1)
	}
}
