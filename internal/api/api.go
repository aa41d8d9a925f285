package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"bookcatalog/internal/models"
	"bookcatalog/internal/storage"
)

// maxBodyBytes caps request bodies for create and update
const maxBodyBytes = 1 << 20

// Server exposes a BookService over HTTP
type Server struct {
	books  storage.BookService
	logger *zap.Logger
}

// NewServer creates a new HTTP API for books
func NewServer(books storage.BookService, logger *zap.Logger) *Server {
	return &Server{
		books:  books,
		logger: logger,
	}
}

// Handler builds the router with middleware and all routes registered
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", s.RegisterRoutes)

	return r
}

// RegisterRoutes registers the book routes on the provided router
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/books", func(r chi.Router) {
		r.Get("/", s.handleListBooks)
		r.Post("/", s.handleCreateBook)
		r.Get("/{id}", s.handleGetBook)
		r.Put("/{id}", s.handleUpdateBook)
		r.Delete("/{id}", s.handleDeleteBook)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleListBooks returns every book
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.books.GetAllBooks(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, books)
}

// handleGetBook returns one book or 404
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	book, found, err := s.books.GetBookByID(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !found {
		s.respondError(w, r, &storage.NotFoundError{ID: id})
		return
	}
	respondJSON(w, http.StatusOK, book)
}

// handleCreateBook creates a book from the request body; any id in the body is ignored
func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	book, ok := s.decodeBook(w, r)
	if !ok {
		return
	}

	created, err := s.books.CreateBook(r.Context(), book)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.logger.Info("Book created",
		zap.String("id", created.ID),
		zap.String("title", created.Title),
	)

	w.Header().Set("Location", "/api/books/"+created.ID)
	respondJSON(w, http.StatusCreated, created)
}

// handleUpdateBook replaces the book at the path ID with the request body
func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	book, ok := s.decodeBook(w, r)
	if !ok {
		return
	}
	book.ID = chi.URLParam(r, "id")

	updated, err := s.books.UpdateBook(r.Context(), book)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.logger.Info("Book updated", zap.String("id", updated.ID))
	respondJSON(w, http.StatusOK, updated)
}

// handleDeleteBook removes the book at the path ID
func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.books.DeleteBookByID(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.logger.Info("Book deleted", zap.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeBook(w http.ResponseWriter, r *http.Request) (models.Book, bool) {
	var book models.Book
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&book); err != nil {
		s.logger.Warn("Failed to decode request body", zap.Error(err))
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return models.Book{}, false
	}
	return book, true
}

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// respondError maps store errors onto HTTP statuses
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *storage.ValidationError
		upstreamErr   *storage.UpstreamError
	)

	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Fields: validationErr.Fields})
	case errors.Is(err, storage.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &upstreamErr):
		status := http.StatusBadGateway
		if upstreamErr.Timeout() {
			status = http.StatusGatewayTimeout
		}
		s.logger.Error("Storage backend failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
		respondJSON(w, status, errorResponse{Error: "Storage backend unavailable"})
	default:
		s.logger.Error("Request failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
	}
}

// requestLogger logs one line per request with zap
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		defer func() {
			s.logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
