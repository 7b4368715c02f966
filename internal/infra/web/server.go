package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"telegram-knowledge-bot/internal/application"
	"telegram-knowledge-bot/internal/domain"
	"telegram-knowledge-bot/internal/domain/model"
)

// HealthProbe checks one dependency for the health endpoint.
type HealthProbe func(ctx context.Context) error

// EntryIndex is the queryable knowledge-entry index. Nil when no database is
// configured.
type EntryIndex interface {
	FindByID(ctx context.Context, id string) (*model.KnowledgeEntry, string, error)
	ListByCategory(ctx context.Context, category model.Category, limit int) ([]*model.KnowledgeEntry, error)
}

// Server is the operator-facing HTTP surface: health, metrics and a small
// JWT-guarded inspection API. End users never touch this; they live in the
// bot.
type Server struct {
	app      application.Service
	auth     *AuthManager
	apiToken string
	entries  EntryIndex
	probes   map[string]HealthProbe
	log      *zerolog.Logger
}

func NewServer(app application.Service, auth *AuthManager, apiToken string, entries EntryIndex, probes map[string]HealthProbe, logger *zerolog.Logger) *Server {
	return &Server{
		app:      app,
		auth:     auth,
		apiToken: apiToken,
		entries:  entries,
		probes:   probes,
		log:      logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/v1/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/v1/jobs", s.handleJobs)
		r.Get("/api/v1/entries", s.handleEntries)
		r.Get("/api/v1/entries/{id}", s.handleEntry)
	})

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	out := map[string]string{}
	for name, probe := range s.probes {
		if err := probe(ctx); err != nil {
			out[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			out[name] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

// handleLogin exchanges the configured API token for a short-lived JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	if s.apiToken == "" || body.Token != s.apiToken {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	jwtStr, err := s.auth.Mint()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to mint admin token")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"jwt": jwtStr})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.app.ActiveSessions())
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	if s.entries == nil {
		http.Error(w, "Database not configured", http.StatusServiceUnavailable)
		return
	}
	category := r.URL.Query().Get("category")
	if !model.ValidCategory(category) {
		http.Error(w, "Unknown category", http.StatusBadRequest)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	list, err := s.entries.ListByCategory(r.Context(), model.Category(category), limit)
	if err != nil {
		s.log.Error().Err(err).Str("category", category).Msg("entry listing failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	if s.entries == nil {
		http.Error(w, "Database not configured", http.StatusServiceUnavailable)
		return
	}
	id := chi.URLParam(r, "id")
	entry, path, err := s.entries.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("entry_id", id).Msg("entry lookup failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Entry        *model.KnowledgeEntry `json:"entry"`
		MarkdownPath string                `json:"markdown_path"`
	}{entry, path})
}
