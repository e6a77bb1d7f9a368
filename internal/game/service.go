package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kr1s01/cfuv-chess/internal/domain"
	"github.com/kr1s01/cfuv-chess/internal/elo"
	"github.com/kr1s01/cfuv-chess/internal/hub"
	"github.com/kr1s01/cfuv-chess/internal/rules"
	"github.com/kr1s01/cfuv-chess/internal/store"
)

// Service owns the session lifecycle: creation, joining and the serialized
// move-commit pipeline. All mutation of one session happens under that
// session's registry slot.
type Service struct {
	store  store.Store
	rules  rules.Engine
	hub    *hub.Hub
	locks  *Registry
	logger *zap.Logger
	now    func() time.Time
}

func NewService(st store.Store, eng rules.Engine, h *hub.Hub, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  st,
		rules:  eng,
		hub:    h,
		locks:  NewRegistry(),
		logger: logger,
		now:    time.Now,
	}
}

// Open creates a session in the Open state with the creator bound as white.
func (s *Service) Open(ctx context.Context, creatorID string) (*domain.Session, error) {
	now := s.now().UTC()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		WhiteID:   creatorID,
		FEN:       s.rules.StartingPosition(),
		Status:    domain.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("session_create",
		zap.String("session_id", sess.ID),
		zap.String("white_id", creatorID),
	)
	return sess, nil
}

// List returns sessions that are still open or in play, oldest first.
func (s *Service) List(ctx context.Context, offset, limit int) ([]*domain.Session, error) {
	return s.store.ListOpenOrActive(ctx, offset, limit)
}

func (s *Service) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return sess, err
}

// History returns the session's move log in creation order.
func (s *Service) History(ctx context.Context, sessionID string) ([]*domain.MoveRecord, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListMoves(ctx, sessionID)
}

// HistoryFor returns the sessions a participant played, newest first.
func (s *Service) HistoryFor(ctx context.Context, participantID string) ([]*domain.Session, error) {
	return s.store.ListByParticipant(ctx, participantID)
}

// Join binds joinerID as black and activates the session. It holds the
// session slot because it mutates session status.
func (s *Service) Join(ctx context.Context, sessionID, joinerID string) (*domain.Session, error) {
	mu := s.locks.Acquire(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.WhiteID == joinerID {
		return nil, ErrAlreadyParticipant
	}
	if sess.BlackID != "" {
		return nil, ErrSessionFull
	}
	if sess.Status != domain.StatusOpen {
		return nil, ErrInvalidState
	}

	sess.BlackID = joinerID
	sess.Status = domain.StatusActive
	sess.UpdatedAt = s.now().UTC()
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("session_join",
		zap.String("session_id", sess.ID),
		zap.String("black_id", joinerID),
	)
	s.publish(sess.ID, event{Type: "joined"})
	return sess, nil
}

// CommitMove runs one move attempt through the full pipeline: authorize,
// apply against the rule engine, persist atomically, update ratings on a
// terminal position and notify observers. Exactly one commit per session
// executes at a time.
func (s *Service) CommitMove(ctx context.Context, sessionID, actorID, notation string) (*domain.MoveRecord, error) {
	mu := s.locks.Acquire(sessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeMover(sess, actorID); err != nil {
		return nil, err
	}

	app, err := s.rules.Apply(sess.FEN, notation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	switch app.Verdict {
	case rules.VerdictBadNotation:
		return nil, ErrInvalidNotation
	case rules.VerdictIllegal:
		return nil, ErrIllegalMove
	}

	// From here on the commit must run to completion or fail fatally; the
	// store applies everything below as one atomic unit.
	now := s.now().UTC()
	rec := &domain.MoveRecord{
		ID:            uuid.NewString(),
		SessionID:     sess.ID,
		PlayerID:      actorID,
		Notation:      notation,
		PositionAfter: app.Position,
		CreatedAt:     now,
	}
	sess.FEN = app.Position
	sess.UpdatedAt = now

	terminal, outcome, err := s.rules.IsTerminal(app.Position)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	var updated []*domain.Participant
	if terminal {
		updated, err = s.finish(ctx, sess, outcome)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCommitFailed, err)
		}
	}

	if err := s.store.CommitMove(ctx, sess, rec, updated...); err != nil {
		s.logger.Error("session_commit_error",
			zap.String("session_id", sess.ID),
			zap.String("actor_id", actorID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}

	s.logger.Info("session_move",
		zap.String("session_id", sess.ID),
		zap.String("actor_id", actorID),
		zap.String("san", app.SAN),
		zap.String("uci", app.UCI),
		zap.String("status", string(sess.Status)),
	)
	if terminal {
		s.logger.Info("session_finish",
			zap.String("session_id", sess.ID),
			zap.String("outcome", string(sess.Outcome)),
			zap.String("winner_id", sess.WinnerID),
		)
	}

	// Published only after the durable commit; queueing never blocks.
	s.publish(sess.ID, event{
		Type:     "move",
		Notation: notation,
		Position: app.Position,
		Status:   sess.Status,
		Outcome:  sess.Outcome,
		WinnerID: sess.WinnerID,
	})
	return rec, nil
}

// authorizeMover enforces the participant, turn and status checks. The side
// to move is derived from the position; the session stores no turn flag.
func (s *Service) authorizeMover(sess *domain.Session, actorID string) error {
	if !sess.HasPlayer(actorID) {
		return ErrNotAParticipant
	}
	if sess.Status != domain.StatusActive {
		return ErrSessionNotActive
	}
	side, err := s.rules.SideToMove(sess.FEN)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	if sess.SideOf(actorID) != side {
		return ErrNotYourTurn
	}
	return nil
}

// finish applies the terminal transition in memory and computes both rating
// updates from pre-game values. Persistence happens in the caller's atomic
// commit so the Finished state and the ratings land together.
func (s *Service) finish(ctx context.Context, sess *domain.Session, outcome domain.Outcome) ([]*domain.Participant, error) {
	sess.Status = domain.StatusFinished
	sess.Outcome = outcome
	switch outcome {
	case domain.OutcomeWhiteWins:
		sess.WinnerID = sess.WhiteID
	case domain.OutcomeBlackWins:
		sess.WinnerID = sess.BlackID
	}

	white, err := s.store.GetParticipant(ctx, sess.WhiteID)
	if err != nil {
		return nil, fmt.Errorf("load white participant: %w", err)
	}
	black, err := s.store.GetParticipant(ctx, sess.BlackID)
	if err != nil {
		return nil, fmt.Errorf("load black participant: %w", err)
	}

	whiteScore, blackScore := elo.ScoreDraw, elo.ScoreDraw
	switch outcome {
	case domain.OutcomeWhiteWins:
		whiteScore, blackScore = elo.ScoreWin, elo.ScoreLoss
	case domain.OutcomeBlackWins:
		whiteScore, blackScore = elo.ScoreLoss, elo.ScoreWin
	}
	whiteBefore, blackBefore := white.Rating, black.Rating
	white.Rating = elo.Update(whiteBefore, blackBefore, whiteScore)
	black.Rating = elo.Update(blackBefore, whiteBefore, blackScore)
	return []*domain.Participant{white, black}, nil
}

// event is the payload pushed to session observers.
type event struct {
	Type     string         `json:"type"`
	Notation string         `json:"notation,omitempty"`
	Position string         `json:"position,omitempty"`
	Status   domain.Status  `json:"status,omitempty"`
	Outcome  domain.Outcome `json:"outcome,omitempty"`
	WinnerID string         `json:"winner_id,omitempty"`
}

func (s *Service) publish(sessionID string, ev event) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("broadcast_encode_error", zap.Error(err))
		return
	}
	s.hub.Publish(sessionID, payload)
}
