// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/campusify/coursechat/internal/domain/entities"
	"github.com/campusify/coursechat/internal/domain/usecases"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the server.
type Options struct {
	Addr            string
	UploadsDir      string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	AskTimeout      time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

// Server is the HTTP server for the chat and material API.
type Server struct {
	sessions *usecases.SessionUseCase
	chat     *usecases.ChatUseCase
	catalog  *usecases.CatalogUseCase
	store    Pinger
	opts     Options
	router   *mux.Router
}

// NewServer creates a new HTTP server. store may be nil.
func NewServer(
	sessions *usecases.SessionUseCase,
	chat *usecases.ChatUseCase,
	catalog *usecases.CatalogUseCase,
	store Pinger,
	opts Options,
) *Server {
	if opts.Addr == "" {
		opts.Addr = ":5001"
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.AskTimeout == 0 {
		opts.AskTimeout = 120 * time.Second
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.MaxUploadBytes == 0 {
		opts.MaxUploadBytes = 100 << 20
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		sessions: sessions,
		chat:     chat,
		catalog:  catalog,
		store:    store,
		opts:     opts,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/chat/start", s.handleStart).Methods(http.MethodPost)
	api.HandleFunc("/chat/ask", s.handleAsk).Methods(http.MethodPost)
	api.HandleFunc("/chat/{chatId}/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/chat/{userId}", s.handleUserSessions).Methods(http.MethodGet)

	api.HandleFunc("/materials", s.handleListMaterials).Methods(http.MethodGet)
	api.HandleFunc("/materials", s.handleUploadMaterials).Methods(http.MethodPost)

	if s.opts.UploadsDir != "" {
		s.router.PathPrefix("/uploads/").Handler(
			http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.opts.UploadsDir))),
		).Methods(http.MethodGet, http.MethodHead)
	}
}

// Handler returns the full middleware chain around the router.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(loggingMiddleware(s.router))
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.AskTimeout + 10*time.Second,
	}

	log.Printf("[INFO] Course chat server starting on %s", s.opts.Addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] Server shutdown: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

type startRequest struct {
	entities.SessionFilter
	UserID string `json:"userId"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	summary, err := s.sessions.StartSession(r.Context(), req.SessionFilter, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

type askRequest struct {
	ChatID   string `json:"chatId"`
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.AskTimeout)
	defer cancel()

	answer, err := s.chat.AskQuestion(ctx, req.ChatID, req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["chatId"]
	history, err := s.sessions.GetHistory(r.Context(), chatID, r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.GetUserSessions(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []entities.ChatSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	materials, err := s.catalog.Find(r.Context(), entities.MaterialQuery{
		Year:     q.Get("year"),
		Semester: q.Get("semester"),
		Subject:  q.Get("subject"),
		Units:    q.Get("units"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(materials) == 0 {
		writeError(w, entities.ErrNoMaterialFound)
		return
	}
	writeJSON(w, http.StatusOK, materials)
}

func (s *Server) handleUploadMaterials(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, fmt.Errorf("%w: reading upload: %v", entities.ErrInvalidRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var meta entities.CourseMaterial
	if err := json.Unmarshal([]byte(r.FormValue("metadata")), &meta); err != nil {
		writeError(w, fmt.Errorf("%w: metadata must be a JSON object: %v", entities.ErrInvalidRequest, err))
		return
	}

	var files []usecases.UploadFile
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, fmt.Errorf("opening %s: %w", fh.Filename, err))
			return
		}
		defer f.Close()
		files = append(files, usecases.UploadFile{Name: fh.Filename, Content: f})
	}

	material, err := s.catalog.Upload(r.Context(), meta, files)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, material)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			log.Printf("[WARN] Health check failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, v interface{}) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return fmt.Errorf("%w: content type must be application/json", entities.ErrInvalidRequest)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", entities.ErrInvalidRequest, err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps domain errors onto HTTP status codes and stable error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, entities.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, entities.ErrNoMaterialFound):
		return http.StatusNotFound, "no_material"
	case errors.Is(err, entities.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, entities.ErrConflict):
		return http.StatusConflict, "conflict"
	case entities.IsUpstreamFailure(err):
		return http.StatusBadGateway, "upstream_failure"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("[ERROR] %v", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[ERROR] Encoding response: %v", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}
