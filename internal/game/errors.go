package game

import "errors"

// Client errors: expected, returned unchanged, never mutate state.
var (
	ErrNotFound           = errors.New("session not found")
	ErrAlreadyParticipant = errors.New("already a participant of this session")
	ErrSessionFull        = errors.New("session already has two players")
	ErrInvalidState       = errors.New("session is not joinable")
	ErrNotAParticipant    = errors.New("not a participant of this session")
	ErrNotYourTurn        = errors.New("not your turn")
	ErrSessionNotActive   = errors.New("session is not active")
	ErrInvalidNotation    = errors.New("unrecognized move notation")
	ErrIllegalMove        = errors.New("illegal move in this position")
)

// ErrCommitFailed wraps collaborator failures at or after the persistence
// step. The commit attempt is fatal; the caller must not retry blindly.
var ErrCommitFailed = errors.New("move commit failed")
