// Package api exposes the admin HTTP surface: enqueueing, record visibility,
// manual review, and operator requeue. Authentication sits in front of this
// service and is not handled here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidemarket/moderation/internal/metrics"
	"github.com/tidemarket/moderation/internal/model"
	"github.com/tidemarket/moderation/internal/moderation"
	"github.com/tidemarket/moderation/internal/repository"
)

const defaultListLimit = 100

// Server exposes the admin endpoints.
type Server struct {
	addr   string
	store  repository.Store
	svc    *moderation.Service
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(addr string, store repository.Store, svc *moderation.Service) *Server {
	return &Server{addr: addr, store: store, svc: svc}
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.addr,
			Handler: loggingMiddleware(s.handler()),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	log.Printf("api listening on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/records", s.handleRecords)
	mux.HandleFunc("/records/", s.handleRecordRoute)
	mux.HandleFunc("/counts", s.handleCounts)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleEnqueue(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ImageURL   string `json:"imageUrl"`
		EntityType string `json:"entityType"`
		EntityID   string `json:"entityId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ImageURL == "" || req.EntityID == "" {
		http.Error(w, "imageUrl and entityId are required", http.StatusBadRequest)
		return
	}
	rec, err := s.svc.Enqueue(r.Context(), req.ImageURL, model.EntityType(req.EntityType), req.EntityID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	status := model.Status(r.URL.Query().Get("status"))
	if !model.ValidStatus(status) {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	records, err := s.store.ListByStatus(r.Context(), status, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if records == nil {
		records = []*model.Record{}
	}
	respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleRecordRoute(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/records/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]
	if len(parts) == 1 {
		s.handleRecord(w, r, id)
		return
	}
	switch parts[1] {
	case "review":
		s.handleReview(w, r, id)
	case "requeue":
		s.handleRequeue(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Decision string `json:"decision"`
		Reviewer string `json:"reviewer"`
		Notes    string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Reviewer == "" {
		http.Error(w, "reviewer is required", http.StatusBadRequest)
		return
	}
	rec, err := s.svc.Review(r.Context(), id, model.Decision(req.Decision), req.Reviewer, req.Notes)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rec, err := s.store.RequeueRecord(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	counts, err := s.store.CountByStatus(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

// respondError maps the service's sentinel errors onto client status codes.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "record not found", http.StatusNotFound)
	case errors.Is(err, repository.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, moderation.ErrInvalidDecision),
		errors.Is(err, moderation.ErrInvalidEntityType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("api: internal error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start))
	})
}
