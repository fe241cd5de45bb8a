// Package server exposes the storefront over HTTP with JSON endpoints and
// server-sent event streams.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jfmyers9/nada/internal/catalog"
	"github.com/jfmyers9/nada/internal/history"
	"github.com/jfmyers9/nada/internal/prefs"
	"github.com/jfmyers9/nada/internal/storefront"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Config wires the server to the storefront.
type Config struct {
	Addr           string
	AllowedOrigins []string

	Grid    *storefront.Grid
	Catalog *catalog.Catalog
	Prefs   *prefs.Store
	// History is optional; /api/history returns 404 without it.
	History *history.Journal
	Events  *Events

	Logger zerolog.Logger
}

// Server serves the storefront API.
type Server struct {
	cfg     Config
	logger  zerolog.Logger
	handler http.Handler
	http    *http.Server

	// ctx outlives requests so card actions keep loading after the
	// response is written.
	ctx      context.Context
	cancel   context.CancelFunc
	unsubs   []func()
	shutdown sync.Once
}

// New builds the server and starts forwarding storefront activity to the
// event streams.
func New(cfg Config) *Server {
	if cfg.Events == nil {
		cfg.Events = NewEvents(cfg.Logger)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "server").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}

	s.unsubs = append(s.unsubs,
		cfg.Grid.OnChange(cfg.Events.PublishView),
		cfg.Grid.Owner().Subscribe(cfg.Events.PublishChange),
	)

	s.handler = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, CORS included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api", func(w http.ResponseWriter, r *http.Request) {
		renderJSONMessage(w, http.StatusOK, "This is the base of the nada storefront API")
	})
	mux.HandleFunc("GET /api/tracks", s.handleTracks)
	mux.HandleFunc("GET /api/now-playing", s.handleNowPlaying)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/preferences", s.handleGetPreferences)
	mux.HandleFunc("PUT /api/preferences", s.handlePutPreferences)
	mux.HandleFunc("POST /api/cards/{id}/{action}", s.handleCardAction)
	mux.HandleFunc("GET /events", s.cfg.Events.sse.ServeHTTP)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept"},
	})

	return c.Handler(mux)
}

// ListenAndServe serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown disconnects event subscribers and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		s.cancel()
		for _, unsub := range s.unsubs {
			unsub()
		}
		// open event streams would otherwise hold Shutdown until ctx expires
		s.cfg.Events.Close()
	})

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}
