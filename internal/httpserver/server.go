// Package httpserver exposes the REST and websocket surface of the
// chess service.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kr1s01/cfuv-chess/internal/auth"
	"github.com/kr1s01/cfuv-chess/internal/domain"
	"github.com/kr1s01/cfuv-chess/internal/game"
	"github.com/kr1s01/cfuv-chess/internal/hub"
	"github.com/kr1s01/cfuv-chess/internal/store"
	"github.com/kr1s01/cfuv-chess/pkg/chessdto"
)

type ctxKey int

const participantKey ctxKey = iota

type Server struct {
	games          *game.Service
	auth           *auth.Service
	store          store.Store
	hub            *hub.Hub
	logger         *zap.Logger
	listLimit      int
	allowedOrigins []string
}

type Options struct {
	ListLimit      int
	AllowedOrigins []string
}

func New(games *game.Service, au *auth.Service, st store.Store, h *hub.Hub, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = 100
	}
	return &Server{
		games:          games,
		auth:           au,
		store:          st,
		hub:            h,
		logger:         logger,
		listLimit:      opts.ListLimit,
		allowedOrigins: opts.AllowedOrigins,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Get("/ratings", s.handleRatings)
	r.Get("/users/{id}/history", s.handleUserHistory)
	r.Get("/games", s.handleListGames)
	r.Get("/games/{id}", s.handleGetGame)
	r.Get("/games/{id}/history", s.handleGameHistory)
	r.Get("/ws/games/{id}", s.handleWatch)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/users/me", s.handleMe)
		r.Post("/games", s.handleCreateGame)
		r.Post("/games/{id}/join", s.handleJoinGame)
		r.Post("/games/{id}/move", s.handleMove)
	})
	return r
}

// requireAuth resolves the bearer token and stashes the participant in
// the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(raw, prefix) {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		p, err := s.auth.Verify(r.Context(), strings.TrimSpace(raw[len(prefix):]))
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		ctx := context.WithValue(r.Context(), participantKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func caller(r *http.Request) *domain.Participant {
	p, _ := r.Context().Value(participantKey).(*domain.Participant)
	return p
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req chessdto.RegisterRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, playerDTO(p))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req chessdto.LoginRequest
	if !s.decode(w, r, &req) {
		return
	}
	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chessdto.TokenResponse{Token: token, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, playerDTO(caller(r)))
}

func (s *Server) handleRatings(w http.ResponseWriter, r *http.Request) {
	offset, limit := s.pagination(r)
	players, err := s.store.ListByRating(r.Context(), offset, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]chessdto.RatingEntry, 0, len(players))
	for i, p := range players {
		out = append(out, chessdto.RatingEntry{
			Rank:     offset + i + 1,
			ID:       p.ID,
			Username: p.Username,
			Rating:   p.Rating,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetParticipant(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	sessions, err := s.games.HistoryFor(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gameDTOs(sessions))
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	offset, limit := s.pagination(r)
	sessions, err := s.games.List(r.Context(), offset, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gameDTOs(sessions))
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	sess, err := s.games.Open(r.Context(), caller(r).ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, gameDTO(sess))
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	sess, err := s.games.Join(r.Context(), chi.URLParam(r, "id"), caller(r).ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gameDTO(sess))
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	sess, err := s.games.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, gameDTO(sess))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req chessdto.MoveRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.games.CommitMove(r.Context(), chi.URLParam(r, "id"), caller(r).ID, strings.TrimSpace(req.Notation))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, moveDTO(rec))
}

func (s *Server) handleGameHistory(w http.ResponseWriter, r *http.Request) {
	moves, err := s.games.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]chessdto.Move, 0, len(moves))
	for _, m := range moves {
		out = append(out, moveDTO(m))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) pagination(r *http.Request) (offset, limit int) {
	limit = s.listLimit
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}
	return offset, limit
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

// writeDomainError maps service errors onto HTTP statuses. Anything not
// recognized as a client fault is a 500.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound) || errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, game.ErrNotAParticipant):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, auth.ErrInvalidCredentials):
		s.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, game.ErrAlreadyParticipant),
		errors.Is(err, game.ErrSessionFull),
		errors.Is(err, game.ErrInvalidState),
		errors.Is(err, game.ErrNotYourTurn),
		errors.Is(err, game.ErrSessionNotActive),
		errors.Is(err, game.ErrInvalidNotation),
		errors.Is(err, game.ErrIllegalMove),
		errors.Is(err, auth.ErrUsernameTaken),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, auth.ErrInvalidSignup):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("http_internal_error", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, chessdto.ErrorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("http_encode_error", zap.Error(err))
	}
}
