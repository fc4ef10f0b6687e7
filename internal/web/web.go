package web

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"trashcal/internal/config"
	"trashcal/internal/extract"
	"trashcal/internal/ics"
	appLog "trashcal/internal/log"
	"trashcal/internal/scheduler"
	"trashcal/internal/store"
)

// Rescheduler is the part of the notification scheduler the API drives.
type Rescheduler interface {
	RequestReschedule()
	Status() scheduler.Status
}

// Extractor turns a calendar PDF into a proposal.
type Extractor interface {
	FromPDF(ctx context.Context, pdf []byte) (extract.Proposal, error)
}

// ExtractorFactory builds an Extractor for the stored API key.
type ExtractorFactory func(apiKey string) (Extractor, error)

// Server provides the JSON API over the settings store and the scheduler.
type Server struct {
	cfg      *config.Config
	settings *store.Settings
	sched    Rescheduler
	fetcher  *ics.Fetcher
	extract  ExtractorFactory
	loc      *time.Location
	now      func() time.Time
	router   *chi.Mux

	// writeMu serializes read-modify-write cycles on the schedule.
	writeMu sync.Mutex

	// authMu guards authCache, the digest of the last credentials that
	// passed argon2 verification.
	authMu    sync.Mutex
	authCache [sha256.Size]byte
}

type Option func(*Server)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// WithFetcher enables importing the configured ICS feeds by id.
func WithFetcher(f *ics.Fetcher) Option { return func(s *Server) { s.fetcher = f } }

// WithExtractor replaces the extraction client factory.
func WithExtractor(f ExtractorFactory) Option { return func(s *Server) { s.extract = f } }

// NewServer constructs a new Server. sched may be nil when no scheduler is
// running (CLI one-shots); settings changes are then only persisted.
func NewServer(cfg *config.Config, settings *store.Settings, sched Rescheduler, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		settings: settings,
		sched:    sched,
		loc:      cfg.Location(),
		now:      time.Now,
	}
	s.extract = func(key string) (Extractor, error) {
		c, err := extract.New(key, cfg.Extract.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	for _, o := range opts {
		o(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the router, wrapped with basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/schedule", func(r chi.Router) {
			r.Get("/", s.handleGetSchedule)
			r.Put("/", s.handlePutSchedule)
			r.Post("/accept", s.handleAcceptProposal)
			r.Get("/backup", s.handleGetBackup)
		})
		r.Route("/entries", func(r chi.Router) {
			r.Post("/", s.handleCreateEntry)
			r.Get("/{id}", s.handleGetEntry)
			r.Put("/{id}", s.handleReplaceEntry)
			r.Delete("/{id}", s.handleDeleteEntry)
		})

		r.Get("/today", s.handleToday)
		r.Get("/day/{date}", s.handleDay)
		r.Get("/week", s.handleWeek)
		r.Get("/month", s.handleMonth)
		r.Get("/upcoming", s.handleUpcoming)

		r.Get("/notification", s.handleGetNotification)
		r.Put("/notification", s.handlePutNotification)
		r.Get("/scheduler", s.handleSchedulerStatus)

		r.Get("/export.ics", s.handleExportICS)
		r.Post("/import/ics", s.handleImportICS)
		r.Post("/extract", s.handleExtract)

		r.Get("/apikey", s.handleGetAPIKey)
		r.Put("/apikey", s.handlePutAPIKey)
	})
	return r
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.PasswordHash != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	hash := s.cfg.BasicAuth.PasswordHash

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !s.checkPassword(p, hash) {
			w.Header().Set("WWW-Authenticate", `Basic realm="trashcal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkPassword verifies p against the argon2id hash. The digest of the
// last accepted password is remembered so repeat requests skip argon2.
func (s *Server) checkPassword(p, hash string) bool {
	digest := sha256.Sum256([]byte(hash + "\x00" + p))

	s.authMu.Lock()
	cached := s.authCache
	s.authMu.Unlock()
	if subtle.ConstantTimeCompare(digest[:], cached[:]) == 1 {
		return true
	}

	ok, err := config.VerifyPassword(p, hash)
	if err != nil {
		appLog.Error("basic auth: stored hash is invalid", err)
		return false
	}
	if ok {
		s.authMu.Lock()
		s.authCache = digest
		s.authMu.Unlock()
	}
	return ok
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
