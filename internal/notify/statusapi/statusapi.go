// Package statusapi exposes the engine's read-only status over HTTP for
// a companion app: /healthz unauthenticated, /status behind Firebase
// ID-token verification.
package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	firebase "firebase.google.com/go"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// StatusFunc produces the current status payload; the supervisor
// supplies it so this package never reaches into engine state.
type StatusFunc func() any

// Server wires the two endpoints onto a mux.
type Server struct {
	app    *firebase.App
	status StatusFunc
	log    zerolog.Logger
}

// New initializes the Firebase Admin SDK from credFile. An empty
// credFile disables token verification and leaves /status open, for
// paper mode and tests.
func New(credFile string, status StatusFunc, log zerolog.Logger) (*Server, error) {
	s := &Server{status: status, log: log}
	if credFile != "" {
		app, err := firebase.NewApp(context.Background(), nil, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, err
		}
		s.app = app
	}
	return s, nil
}

// Handler returns the HTTP mux with /healthz and /status registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/status", s.authMiddleware(http.HandlerFunc(s.handleStatus)))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.status())
}

// authMiddleware verifies the Firebase ID token in the Authorization
// header when an app is configured; otherwise it passes through.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.app == nil {
			next.ServeHTTP(w, r)
			return
		}
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization Header", http.StatusUnauthorized)
			return
		}
		tokenString := strings.Replace(authHeader, "Bearer ", "", 1)

		client, err := s.app.Auth(r.Context())
		if err != nil {
			s.log.Error().Err(err).Msg("firebase auth client")
			http.Error(w, "Internal Auth Error", http.StatusInternalServerError)
			return
		}
		if _, err := client.VerifyIDToken(r.Context(), tokenString); err != nil {
			s.log.Warn().Err(err).Msg("invalid status token")
			http.Error(w, "Invalid Token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
