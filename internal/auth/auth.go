// Package auth issues and verifies participant identity tokens. The rest of
// the system only ever sees the participant id a verified token resolves to.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kr1s01/cfuv-chess/internal/domain"
	"github.com/kr1s01/cfuv-chess/internal/store"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidSignup      = errors.New("invalid registration data")
)

var usernameShape = regexp.MustCompile(`^[A-Za-z0-9_]{3,24}$`)

type Service struct {
	store  store.Store
	secret []byte
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func New(st store.Store, secret string, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Service{store: st, secret: []byte(secret), ttl: ttl, logger: logger, now: time.Now}
}

// Register creates a participant account at the default rating.
func (s *Service) Register(ctx context.Context, username, email, password string) (*domain.Participant, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if !usernameShape.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 3-24 letters, digits or underscore", ErrInvalidSignup)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidSignup)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidSignup)
	}

	if _, err := s.store.GetParticipantByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.GetParticipantByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	p := &domain.Participant{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Rating:       domain.DefaultRating,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateParticipant(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	s.logger.Info("participant_register", zap.String("participant_id", p.ID), zap.String("username", p.Username))
	return p, nil
}

// Login verifies the password and issues a signed bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	p, err := s.store.GetParticipantByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}

	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   p.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	s.logger.Info("participant_login", zap.String("participant_id", p.ID))
	return token, nil
}

// Verify resolves a caller-presented token to the acting participant.
func (s *Service) Verify(ctx context.Context, token string) (*domain.Participant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthenticated
	}
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrUnauthenticated
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return nil, ErrUnauthenticated
	}
	p, err := s.store.GetParticipant(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
