package store

import (
	"context"
	"errors"

	"github.com/kr1s01/cfuv-chess/internal/domain"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate entity")
	// ErrConflict signals a lost concurrent-update race inside CommitMove.
	ErrConflict = errors.New("store: concurrent update conflict")
)

// Store is the durable storage collaborator. CommitMove applies one move
// record, the updated session and any rating writes as a single atomic
// unit; every other mutation touches exactly one entity.
type Store interface {
	CreateParticipant(ctx context.Context, p *domain.Participant) error
	GetParticipant(ctx context.Context, id string) (*domain.Participant, error)
	GetParticipantByUsername(ctx context.Context, username string) (*domain.Participant, error)
	GetParticipantByEmail(ctx context.Context, email string) (*domain.Participant, error)
	SaveParticipant(ctx context.Context, p *domain.Participant) error
	ListByRating(ctx context.Context, offset, limit int) ([]*domain.Participant, error)

	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	SaveSession(ctx context.Context, s *domain.Session) error
	ListOpenOrActive(ctx context.Context, offset, limit int) ([]*domain.Session, error)
	ListByParticipant(ctx context.Context, participantID string) ([]*domain.Session, error)

	ListMoves(ctx context.Context, sessionID string) ([]*domain.MoveRecord, error)

	// CommitMove persists the move record, the session's new state and the
	// given participants (rating updates on a terminal commit) atomically.
	CommitMove(ctx context.Context, s *domain.Session, m *domain.MoveRecord, ratings ...*domain.Participant) error

	// ForceFinishOpen marks every non-finished session drawn without
	// touching ratings. Administrative recovery only.
	ForceFinishOpen(ctx context.Context) (int, error)

	Close() error
}
