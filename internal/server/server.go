// Package server exposes the database facade over an HTTP JSON transport.
// Every data operation is authenticated by the signed-request verifier
// before it reaches the engine.
package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	nigori "github.com/asweigart123/nigori"
	"github.com/asweigart123/nigori/internal/auth"
)

type Server struct {
	mux      *http.ServeMux
	db       *nigori.DB
	verifier *auth.Verifier
	log      *logrus.Logger
}

type Option func(*Server)

func WithLogger(log *logrus.Logger) Option {
	return func(s *Server) { s.log = log }
}

func WithVerifier(verifier *auth.Verifier) Option {
	return func(s *Server) { s.verifier = verifier }
}

func New(db *nigori.DB, opts ...Option) *Server {
	s := &Server{
		mux: http.NewServeMux(),
		db:  db,
		log: logrus.New(),
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.verifier == nil {
		s.verifier = auth.NewVerifier(db, auth.VerifierConfig{
			Window: nigori.DefaultFreshnessWindow,
			Logger: s.log,
		})
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /nigori/register", s.instrument("register", s.handleRegister))
	s.mux.HandleFunc("POST /nigori/unregister", s.instrument("unregister", s.handleUnregister))
	s.mux.HandleFunc("POST /nigori/authenticate", s.instrument("authenticate", s.handleAuthenticate))
	s.mux.HandleFunc("POST /nigori/put", s.instrument("put", s.handlePut))
	s.mux.HandleFunc("POST /nigori/get", s.instrument("get", s.handleGet))
	s.mux.HandleFunc("POST /nigori/get-indices", s.instrument("get-indices", s.handleGetIndices))
	s.mux.HandleFunc("POST /nigori/get-revisions", s.instrument("get-revisions", s.handleGetRevisions))
	s.mux.HandleFunc("POST /nigori/delete", s.instrument("delete", s.handleDelete))
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.db.Registry(), promhttp.HandlerOpts{}))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// instrument records the request latency histogram for one operation.
func (s *Server) instrument(operation string, next http.HandlerFunc) http.HandlerFunc {
	observer := s.db.Metrics().RequestDuration.WithLabelValues(operation)
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		observer.Observe(time.Since(start).Seconds())
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
