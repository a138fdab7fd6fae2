// Package web provides the HTTP surface of the weather station: the status
// page, its JSON form, connect/disconnect intents, a WebSocket stream of
// snapshots and the stored reading history.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sweeney/weatherstation/internal/status"
	"github.com/sweeney/weatherstation/internal/store"
)

// Intents receives the user's connect and disconnect requests.
type Intents interface {
	Connect(ctx context.Context) error
	Disconnect()
}

// Deps are the optional collaborators of a Server. Routes whose dependency
// is nil are not registered.
type Deps struct {
	Store   store.Store
	Intents Intents
	Metrics http.Handler
	// Window is the default number of readings served by /readings.
	Window int
	// AllowedOrigins lists CORS origins; empty means "*".
	AllowedOrigins []string
	Logger         *zap.Logger
	// Now overrides the clock in tests. Nil means time.Now.
	Now func() time.Time
}

// Server serves the station status over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	deps       Deps
	log        *zap.Logger
	now        func() time.Time

	// ctx outlives individual requests; connect intents run on it.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Window < 1 {
		deps.Window = store.DefaultWindow
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		tracker: tracker,
		deps:    deps,
		log:     deps.Logger,
		now:     deps.Now,
		ctx:     ctx,
		cancel:  cancel,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleStream).Methods(http.MethodGet)
	if deps.Intents != nil {
		r.HandleFunc("/connect", s.handleConnect).Methods(http.MethodPost)
		r.HandleFunc("/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	}
	if deps.Store != nil {
		r.HandleFunc("/readings/{location}", s.handleReadings).Methods(http.MethodGet)
		r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	}
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	var h http.Handler = r
	h = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Requested-With"}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(s.log)),
	)(h)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Handler returns the routed handler with its middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully shuts down the server and stops open streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.now()); err != nil {
		s.log.Warn("render status page", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap, s.now()))
}

// handleConnect accepts the intent and connects in the background; the
// outcome shows up in the connection status.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.deps.Intents.Connect(s.ctx); err != nil {
			s.log.Warn("connect intent", zap.Error(err))
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

// handleHealth reports readiness: the store answers a ping within two
// seconds.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.log.Warn("health check", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.deps.Intents.Disconnect()
	w.WriteHeader(http.StatusAccepted)
}
