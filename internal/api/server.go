// Package api exposes the chat backend over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/moodmate/internal/llm"
	"github.com/xaenox/moodmate/internal/models"
	"github.com/xaenox/moodmate/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultChatTimeout  = 45 * time.Second
	maxRequestBodyBytes = 1 << 20
	defaultRecentLimit  = 20
)

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is the wire form of models.Message. Content is a pointer so a
// missing field can be told apart from an empty one.
type ChatMessage struct {
	Role    models.Role `json:"role"`
	Content *string     `json:"content"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type Config struct {
	Addr        string
	StaticDir   string
	ChatTimeout time.Duration
}

// Server is the HTTP routing layer in front of the LLM client registry.
type Server struct {
	cfg      Config
	registry *llm.Registry
	store    storage.Storage
	logger   *zap.Logger
	server   *http.Server
}

// NewServer wires the handlers. store may be nil, which disables the
// notification log endpoint.
func NewServer(cfg Config, registry *llm.Registry, store storage.Storage, logger *zap.Logger) *Server {
	if cfg.ChatTimeout <= 0 {
		cfg.ChatTimeout = defaultChatTimeout
	}
	s := &Server{cfg: cfg, registry: registry, store: store, logger: logger}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.ChatTimeout + 15*time.Second,
	}
	return s
}

// Handler returns the full middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/", s.handleChat)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)

	if s.cfg.StaticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir))))
		mux.HandleFunc("GET /{$}", s.handleIndex)
	}

	return s.withRequestID(s.withLogging(withCORS(mux)))
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.cfg.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Messages == nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, "messages is required")
		return
	}
	conversation := make([]models.Message, 0, len(req.Messages))
	for i, m := range req.Messages {
		if !m.Role.Valid() {
			s.errorResponse(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("messages[%d].role must be one of user, assistant, system", i))
			return
		}
		if m.Content == nil {
			s.errorResponse(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("messages[%d].content is required", i))
			return
		}
		conversation = append(conversation, models.Message{Role: m.Role, Content: *m.Content})
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	reply := s.registry.Get().Chat(ctx, conversation)
	s.writeJSON(w, http.StatusOK, ChatResponse{Reply: reply})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusNotFound, "notification log disabled")
		return
	}

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	notifications, err := s.store.RecentNotifications(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to read notification log", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "failed to read notifications")
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(s.cfg.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]string{"name": "MoodMate", "status": "ok"})
		return
	}
	http.ServeFile(w, r, index)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write JSON response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request by the server, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", RequestID(r.Context())))
	})
}

// withCORS allows any origin, method and header, with credentials.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if origin := r.Header.Get("Origin"); origin != "" {
			// credentials forbid a literal "*", so the origin is echoed
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
