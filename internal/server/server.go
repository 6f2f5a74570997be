package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexfeed/content-sync-service/internal/config"
	"github.com/nexfeed/content-sync-service/internal/errors"
	"github.com/nexfeed/content-sync-service/internal/logging"
	"github.com/nexfeed/content-sync-service/internal/models"
	"github.com/nexfeed/content-sync-service/internal/source"
	"github.com/nexfeed/content-sync-service/internal/storage"
	"github.com/nexfeed/content-sync-service/internal/syncer"
)

// Server exposes the sync trigger surface and entity read endpoints.
type Server struct {
	config config.ServerConfig
	store  storage.Store
	syncer *syncer.Syncer
	client *source.Client
	server *http.Server
	logger zerolog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(cfg config.ServerConfig, store storage.Store, sync *syncer.Syncer, client *source.Client) *Server {
	s := &Server{
		config: cfg,
		store:  store,
		syncer: sync,
		client: client,
		logger: logging.Component("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/sync", s.handleSync)
	mux.HandleFunc("/sync/", s.handleSyncSub)
	mux.HandleFunc("/cleanup", s.handleCleanup)
	mux.HandleFunc("/users", s.handleUsers)
	mux.HandleFunc("/users/", s.handleUserByID)
	mux.HandleFunc("/posts", s.handlePosts)
	mux.HandleFunc("/posts/", s.handlePostByID)
	mux.HandleFunc("/comments", s.handleComments)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the underlying handler; used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode response")
	}
}

// handleHealth reports store and source connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeOK := s.store.Ping(r.Context()) == nil
	report := s.client.ProbeHealth(r.Context())

	status := http.StatusOK
	if !storeOK || !report.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]any{
		"store":  storeOK,
		"source": report,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSync triggers a full sync run.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result := s.syncer.RunFullSync(r.Context())
	status := http.StatusOK
	if !result.Success {
		if result.Error == errors.ErrAlreadyInProgress.Error() {
			status = http.StatusConflict
		} else {
			status = http.StatusBadGateway
		}
	}
	s.writeJSON(w, status, result)
}

// handleSyncSub routes GET /sync/status and POST /sync/{type}/{id}.
func (s *Server) handleSyncSub(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/sync/")

	if rest == "status" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		status, err := s.syncer.Status(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to retrieve status: %v", err), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, http.StatusOK, status)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(rest, "/")

	entity := models.EntityType(parts[0])
	if !entity.Valid() {
		http.Error(w, "Unknown entity type", http.StatusBadRequest)
		return
	}

	switch len(parts) {
	case 1:
		// POST /sync/{type} with a JSON id list re-syncs many records.
		var body struct {
			IDs []int `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.IDs) == 0 {
			http.Error(w, `Expected body {"ids": [...]}`, http.StatusBadRequest)
			return
		}
		result := s.syncer.SyncManyEntities(r.Context(), entity, body.IDs)
		status := http.StatusOK
		if !result.Success {
			status = http.StatusUnprocessableEntity
		}
		s.writeJSON(w, status, result)
	case 2:
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			http.Error(w, "Invalid external id", http.StatusBadRequest)
			return
		}
		result := s.syncer.SyncSingleEntity(r.Context(), entity, id)
		status := http.StatusOK
		if !result.Success {
			status = http.StatusUnprocessableEntity
		}
		s.writeJSON(w, status, result)
	default:
		http.Error(w, "Expected /sync/{type}[/{id}]", http.StatusBadRequest)
	}
}

// handleCleanup runs an orphan cleanup pass.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.syncer.CleanupOrphans(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Cleanup failed: %v", err), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// parsePagination reads limit/offset query parameters with defaults.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 10 // default
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	offset = 0 // default
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		offset = o
	}
	return limit, offset
}

// handleUsers handles GET requests for users
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, offset := parsePagination(r)
	users, err := s.store.Users().List(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve users: %v", err), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"users":  users,
		"count":  len(users),
		"limit":  limit,
		"offset": offset,
	})
}

// handleUserByID handles GET requests for a specific user
func (s *Server) handleUserByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/users/")
	user, err := s.store.Users().GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve user: %v", err), http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

// handlePosts handles GET requests for posts
func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, offset := parsePagination(r)
	posts, err := s.store.Posts().List(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve posts: %v", err), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"posts":  posts,
		"count":  len(posts),
		"limit":  limit,
		"offset": offset,
	})
}

// handlePostByID handles GET requests for a specific post
func (s *Server) handlePostByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/posts/")
	post, err := s.store.Posts().GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve post: %v", err), http.StatusInternalServerError)
		return
	}
	if post == nil {
		http.Error(w, "Post not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, post)
}

// handleComments handles GET requests for comments
func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, offset := parsePagination(r)
	comments, err := s.store.Comments().List(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve comments: %v", err), http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"comments": comments,
		"count":    len(comments),
		"limit":    limit,
		"offset":   offset,
	})
}
