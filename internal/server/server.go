// Package server exposes game sessions over HTTP and WebSocket. Each socket
// connection gets its own game; clients send intents as JSON and receive
// views and events back.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/klondike/klondike-server-go/internal/config"
	"github.com/klondike/klondike-server-go/internal/game"
	"github.com/klondike/klondike-server-go/internal/game/cards"
	"github.com/klondike/klondike-server-go/internal/game/replay"
	"github.com/klondike/klondike-server-go/internal/game/schedule"
	"github.com/klondike/klondike-server-go/internal/game/scoring"
)

// Option customises a Server.
type Option func(*Server)

// WithClock drives every session's timed sequences from clock.
func WithClock(clock schedule.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// WithShuffler replaces the per-game shuffler factory.
func WithShuffler(newShuffler func() cards.Shuffler) Option {
	return func(s *Server) { s.newShuffler = newShuffler }
}

// Server hosts one game per WebSocket connection.
type Server struct {
	cfg         *config.Config
	logger      *zap.Logger
	hub         *Hub
	recorder    *replay.Recorder
	upgrader    websocket.Upgrader
	router      *mux.Router
	httpServer  *http.Server
	clock       schedule.Clock
	newShuffler func() cards.Shuffler
}

// New builds a server from cfg.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		hub:      newHub(logger),
		recorder: replay.NewRecorder(logger, cfg.Game.ReplayRetention),
		clock:    schedule.SystemClock(),
	}
	seed := cfg.Game.Seed
	s.newShuffler = func() cards.Shuffler { return cards.NewShuffler(seed) }
	for _, opt := range opts {
		opt(s)
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.Server.ReadBufferSize,
		WriteBufferSize: cfg.Server.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	s.router.HandleFunc("/api/sessions/{sessionID}", s.handleView).Methods(http.MethodGet)
	s.router.HandleFunc("/api/replays/{gameID}", s.handleReplay).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the router wrapped in recovery and CORS middleware.
func (s *Server) Handler() http.Handler {
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(s.logger)),
		handlers.PrintRecoveryStack(true),
	)
	cors := handlers.CORS(
		handlers.AllowedOrigins(s.cfg.Server.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
	)
	return recovery(cors(s.router))
}

// Hub returns the registry of connected clients.
func (s *Server) Hub() *Hub { return s.hub }

// Recorder returns the replay recorder shared by every session.
func (s *Server) Recorder() *replay.Recorder { return s.recorder }

// ListenAndServe blocks until the server stops. A clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("address", s.cfg.Server.Address))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and disconnects every client.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.hub.CloseAll()
	return err
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) newSession() *game.Session {
	engine := game.NewEngine(s.logger, game.EngineConfig{
		Shuffler: s.newShuffler(),
		Debug:    s.cfg.Game.Debug,
	})
	queue := schedule.NewQueue(s.clock, s.logger)
	return game.NewSession(engine, queue, game.SessionConfig{
		HintStepDelay:  s.cfg.Game.HintStepDelay,
		DragResetDelay: s.cfg.Game.DragResetDelay,
	}, s.logger)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := s.newSession()
	engine := session.Engine()
	engine.Bus().Subscribe(s.recorder.Listen(engine))

	client := newClient(uuid.NewString(), conn, session, s.logger)
	client.onClose = func() { s.recorder.Finish(engine.GameID()) }
	s.hub.add(client)

	v := client.session.View()
	client.push(Message{Type: MessageWelcome, SessionID: client.id, View: &v})

	go client.writePump()
	go client.readPump(s.hub)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.hub.Len(),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionID"]
	client, ok := s.hub.Find(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, client.session.View())
}

type replayFrame struct {
	Index       int           `json:"index"`
	Event       string        `json:"event"`
	At          time.Time     `json:"at"`
	Score       scoring.Score `json:"score"`
	Checksum    string        `json:"checksum"`
	StockCount  int           `json:"stock_count"`
	WasteCount  int           `json:"waste_count"`
	Foundations int           `json:"foundations"`
	Board       *game.Board   `json:"board,omitempty"`
}

func summarize(f replay.Frame) replayFrame {
	founded := 0
	for _, stack := range f.Table.Foundations {
		founded += len(stack)
	}
	return replayFrame{
		Index:       f.Index,
		Event:       f.Event,
		At:          f.At,
		Score:       f.Score,
		Checksum:    f.Checksum,
		StockCount:  len(f.Table.Stock),
		WasteCount:  len(f.Table.Waste),
		Foundations: founded,
	}
}

// handleReplay lists the frames of a game. With ?at=N it returns frame N
// with its full board; ?step=start|next|previous and ?skip=N move the
// replay's playback cursor and return the frame it lands on.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["gameID"]
	rep, err := s.recorder.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	query := r.URL.Query()
	var (
		frame replay.Frame
		ok    bool
	)
	switch {
	case query.Has("at"):
		n, err := strconv.Atoi(query.Get("at"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at must be an integer"})
			return
		}
		frame, ok = rep.At(n)
	case query.Has("skip"):
		n, err := strconv.Atoi(query.Get("skip"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "skip must be an integer"})
			return
		}
		frame, ok = rep.Skip(n)
	case query.Has("step"):
		switch query.Get("step") {
		case "start":
			rep.Start()
			frame, ok = rep.Next()
		case "next":
			frame, ok = rep.Next()
		case "previous":
			frame, ok = rep.Previous()
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "step must be start, next or previous"})
			return
		}
	default:
		frames := rep.Frames()
		out := make([]replayFrame, len(frames))
		for i, f := range frames {
			out[i] = summarize(f)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"game_id": rep.GameID(),
			"frames":  out,
		})
		return
	}

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no frame at that position"})
		return
	}
	out := summarize(frame)
	board := game.BoardOf(frame.Table)
	out.Board = &board
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
