// Package api serves the station over HTTP: operator actions, stored
// results, charts and a websocket feed of live status.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/banshee-data/jump.report/internal/db"
	"github.com/banshee-data/jump.report/internal/jump"
	"github.com/banshee-data/jump.report/internal/monitoring"
	"github.com/banshee-data/jump.report/internal/station"
)

// Station is the operator surface of a station.Station.
type Station interface {
	Status() station.Status
	Finish(ctx context.Context) (station.Status, error)
	Retry() station.Status
	Reinitialise() (station.Status, error)
	NextSubTest() (bool, station.Status)
	PrevSubTest() (bool, station.Status)
	NextAthlete(ctx context.Context) (bool, station.Status, error)
	PrevAthlete(ctx context.Context) (bool, station.Status, error)
	ToggleJump(i int) (bool, station.Status)
	Configure(cfg jump.Config, roster []string) (station.Status, error)
	Subscribe() (string, <-chan station.Status)
	Unsubscribe(id string)
}

// Results reads stored results.
type Results interface {
	GetResult(ctx context.Context, id string) (*db.StoredResult, error)
	ListResults(ctx context.Context, athleteID string, limit int) ([]db.ResultSummary, error)
	DeleteResult(ctx context.Context, id string) error
	AthleteJumps(ctx context.Context, athleteID string) ([]db.JumpRow, error)
}

type Config struct {
	Station Station
	Results Results
	Log     *zerolog.Logger
	// AllowedOrigins for CORS and websocket upgrades; empty allows any.
	AllowedOrigins []string
}

type Server struct {
	router  *chi.Mux
	station Station
	results Results
	log     zerolog.Logger
	origins []string
}

func NewServer(cfg Config) *Server {
	log := *monitoring.Component("api")
	if cfg.Log != nil {
		log = cfg.Log.With().Str("component", "api").Logger()
	}
	s := &Server{
		router:  chi.NewRouter(),
		station: cfg.Station,
		results: cfg.Results,
		log:     log,
		origins: cfg.AllowedOrigins,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler is the root handler; every route lives under /api.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/live", s.handleLive)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Post("/configure", s.handleConfigure)
			r.Post("/finish", s.handleFinish)
			r.Post("/retry", s.handleRetry)
			r.Post("/reinitialise", s.handleReinitialise)
			r.Post("/subtest/{direction}", s.handleSubTest)
			r.Post("/athlete/{direction}", s.handleAthlete)
			r.Post("/jumps/{index}/toggle", s.handleToggle)
		})

		r.Route("/results", func(r chi.Router) {
			r.Get("/", s.handleListResults)
			r.Get("/{id}", s.handleGetResult)
			r.Delete("/{id}", s.handleDeleteResult)
			r.Get("/{id}/chart", s.handleChart)
		})

		r.Get("/athletes/{id}/jumps", s.handleAthleteJumps)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		ev := s.log.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
