// Package websocket carries task and result batches over WebSocket
// connections. Every connection gets its own Runner.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gobwas/ws"

	"github.com/Swind/go-task-port/codec"
	"github.com/Swind/go-task-port/core"
)

const (
	inboundBuffer  = 16
	outboundBuffer = 16

	defaultRecentTasks = 50
)

// RunnerFactory creates and starts the runner serving one connection.
// The runner must consume ch.Inbound until ctx ends.
type RunnerFactory func(ctx context.Context, connID string, ch core.Channels) (*core.Runner, error)

// RunnerTracker is notified when connection runners come and go.
// The Prometheus SnapshotPoller satisfies it.
type RunnerTracker interface {
	AddRunner(name string, runner core.StatsProvider)
	RemoveRunner(name string)
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// Path of the WebSocket endpoint. Defaults to "/ws".
	Path string
	// Codec used when the client does not pass ?codec=. Defaults to JSON.
	Codec codec.Codec
	// AllowedOrigins for CORS on the HTTP endpoints. Defaults to "*".
	AllowedOrigins []string
	// MaxMessageSize caps one inbound task batch in bytes. Defaults to
	// DefaultMaxMessageSize.
	MaxMessageSize int64

	Logger  core.Logger
	Tracker RunnerTracker
}

// Server accepts WebSocket connections and exposes runner stats over HTTP.
type Server struct {
	router  *chi.Mux
	path    string
	codec   codec.Codec
	factory RunnerFactory
	maxSize int64
	logger  core.Logger
	tracker RunnerTracker

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*session
	wg       sync.WaitGroup
}

// NewServer builds a Server around factory. Panics if factory is nil.
func NewServer(factory RunnerFactory, opts ServerOptions) *Server {
	if factory == nil {
		panic("websocket: runner factory must not be nil")
	}
	if opts.Path == "" {
		opts.Path = "/ws"
	}
	if opts.Codec == nil {
		opts.Codec = codec.JSONCodec{}
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Logger == nil {
		opts.Logger = core.NewNoOpLogger()
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	s := &Server{
		router:     chi.NewRouter(),
		path:       opts.Path,
		codec:      opts.Codec,
		factory:    factory,
		maxSize:    opts.MaxMessageSize,
		logger:     opts.Logger,
		tracker:    opts.Tracker,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		sessions:   make(map[string]*session),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get(s.path, s.handleUpgrade)

	s.router.Route("/v1/runners", func(r chi.Router) {
		r.Get("/", s.handleListRunners)
		r.Get("/{id}/tasks", s.handleRecentTasks)
	})
}

// Router returns the chi router, e.g. to mount a metrics handler.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Sessions returns the number of open connections.
func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close ends every connection and waits for their runners to stop.
func (s *Server) Close() {
	s.baseCancel()

	s.mu.RLock()
	for _, sess := range s.sessions {
		_ = sess.conn.Close(ws.StatusGoingAway, "server shutting down")
	}
	s.mu.RUnlock()

	s.wg.Wait()
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.Sessions()})
}

func (s *Server) handleListRunners(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	stats := make([]core.RunnerStats, 0, len(s.sessions))
	for _, sess := range s.sessions {
		stats = append(stats, sess.runner.Stats())
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRecentTasks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "runner not found"})
		return
	}

	limit := defaultRecentTasks
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, sess.runner.RecentTasks(limit))
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	c := s.codec
	if name := r.URL.Query().Get("codec"); name != "" {
		c = codec.ByName(name)
	}

	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", core.F("remote", r.RemoteAddr), core.F("error", err))
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	fc := newFrameConn(conn, rw.Reader, ws.StateServerSide, s.maxSize)
	id := core.NewID()
	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	in := make(chan core.TaskBatch, inboundBuffer)
	out := make(chan core.ResultBatch, outboundBuffer)
	runner, err := s.factory(ctx, id, core.Channels{Inbound: in, Outbound: out})
	if err != nil {
		s.logger.Error("runner creation failed", core.F("conn", id), core.F("error", err))
		_ = fc.Close(ws.StatusInternalServerError, "runner unavailable")
		return
	}

	sess := &session{id: id, conn: fc, runner: runner, codec: c, logger: s.logger}
	s.track(sess)
	defer s.untrack(sess)

	s.logger.Info("connection opened",
		core.F("conn", id),
		core.F("runner", runner.Name()),
		core.F("codec", c.Name()),
		core.F("remote", r.RemoteAddr),
	)

	go sess.writeLoop(ctx, cancel, out)
	status := sess.readLoop(ctx, in)

	cancel()
	runner.Stop()
	_ = fc.Close(status, "")
	s.logger.Info("connection closed", core.F("conn", id))
}

func (s *Server) track(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	if s.tracker != nil {
		s.tracker.AddRunner(sess.runner.Name(), sess.runner)
	}
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	if s.tracker != nil {
		s.tracker.RemoveRunner(sess.runner.Name())
	}
}

// session is one connection and its runner.
type session struct {
	id     string
	conn   *frameConn
	runner *core.Runner
	codec  codec.Codec
	logger core.Logger
}

// readLoop feeds decoded batches to in and returns the close status to send.
func (s *session) readLoop(ctx context.Context, in chan<- core.TaskBatch) ws.StatusCode {
	for {
		data, _, err := s.conn.ReadMessage()
		if errors.Is(err, ErrMessageTooLarge) {
			s.logger.Warn("oversized task batch, closing connection",
				core.F("conn", s.id),
				core.F("limit", s.conn.maxSize),
			)
			return ws.StatusMessageTooBig
		}
		if err != nil {
			if !errors.Is(err, ErrClosed) && ctx.Err() == nil {
				s.logger.Debug("connection read failed", core.F("conn", s.id), core.F("error", err))
			}
			return ws.StatusNormalClosure
		}

		var batch core.TaskBatch
		if err := s.codec.Unmarshal(data, &batch); err != nil {
			s.logger.Warn("undecodable task batch dropped",
				core.F("conn", s.id),
				core.F("codec", s.codec.Name()),
				core.F("error", err),
			)
			continue
		}

		select {
		case in <- batch:
		case <-ctx.Done():
			return ws.StatusNormalClosure
		}
	}
}

func (s *session) writeLoop(ctx context.Context, cancel context.CancelFunc, out <-chan core.ResultBatch) {
	op := ws.OpBinary
	if codec.IsText(s.codec) {
		op = ws.OpText
	}

	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-out:
			payload, err := s.codec.Marshal(batch)
			if err != nil {
				s.logger.Error("result batch encoding failed", core.F("conn", s.id), core.F("error", err))
				continue
			}
			if err := s.conn.WriteMessage(op, payload); err != nil {
				s.logger.Debug("connection write failed", core.F("conn", s.id), core.F("error", err))
				cancel()
				// unblock readLoop
				_ = s.conn.conn.Close()
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
