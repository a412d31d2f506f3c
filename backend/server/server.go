package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jghoshh/habitual/backend/apperrors"
	"github.com/jghoshh/habitual/backend/logging"
	"github.com/jghoshh/habitual/backend/server/auth"
	contextKey "github.com/jghoshh/habitual/backend/server/context_key"
	"github.com/jghoshh/habitual/backend/service"
	"github.com/sirupsen/logrus"
)

// requestIDHeader carries the request id in both directions.
const requestIDHeader = "X-Request-ID"

// Server exposes a Service over HTTP.
type Server struct {
	svc      *service.Service
	verifier *auth.Verifier
}

// New returns a Server for svc that authenticates requests with verifier.
func New(svc *service.Service, verifier *auth.Verifier) *Server {
	return &Server{svc: svc, verifier: verifier}
}

// requestIDMiddleware tags the request context with the caller's
// X-Request-ID, or a fresh one, and echoes it back.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), contextKey.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware verifies the bearer token and stores the caller's id and
// email in the request context. Requests without a valid token get a 401.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.verifier.Verify(auth.BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			logging.WithContext(r.Context()).WithError(err).Debug("Rejected request")
			writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey.UserIDKey, identity.UserID)
		if identity.Email != "" {
			ctx = context.WithValue(ctx, contextKey.EmailKey, identity.Email)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoveryMiddleware is a middleware function that recovers from panics and provides a generic error message to the client.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.WithContext(r.Context()).WithField("panic", rec).Error("Panic recovered")
				writeError(w, r, fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Router returns the routes of the API without the outer middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(recoveryMiddleware)

	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/habits", s.handleListHabits).Methods(http.MethodGet)
	api.HandleFunc("/habits", s.handleCreateHabit).Methods(http.MethodPost)
	api.HandleFunc("/habits/week", s.handleWeek).Methods(http.MethodGet)
	api.HandleFunc("/habits/day", s.handleDay).Methods(http.MethodGet)
	api.HandleFunc("/habits/{id}", s.handleUpdateHabit).Methods(http.MethodPut)
	api.HandleFunc("/habits/{id}", s.handleDeleteHabit).Methods(http.MethodDelete)
	api.HandleFunc("/habits/{id}/status", s.handleSetStatus).Methods(http.MethodPut)
	api.HandleFunc("/habits/{id}/toggle", s.handleToggle).Methods(http.MethodPost)

	api.HandleFunc("/journal", s.handleGetJournal).Methods(http.MethodGet)
	api.HandleFunc("/journal", s.handleSetJournal).Methods(http.MethodPut, http.MethodPost)

	api.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)

	api.HandleFunc("/admin/migrate-categories", s.handleBackfill).Methods(http.MethodPost)
	api.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	return r
}

// Handler wraps the router with request ids, CORS and access logging to accessLog.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	corsOrigins := handlers.AllowedOrigins([]string{"*"})
	corsMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"})
	corsHeaders := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization", requestIDHeader})

	corsRouter := handlers.CORS(corsOrigins, corsMethods, corsHeaders)(s.Router())
	return requestIDMiddleware(handlers.LoggingHandler(accessLog, corsRouter))
}

// Start serves the API on the host of serverURL until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context, serverURL string) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}

	accessLog := logrus.StandardLogger().Writer()
	defer accessLog.Close()

	server := &http.Server{
		Handler:      s.Handler(accessLog),
		Addr:         u.Host,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logrus.WithField("addr", u.Host).Info("Server listening")
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// statusOf maps an error to the HTTP status that reports it.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
