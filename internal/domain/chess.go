package domain

import "time"

// Color identifies chess side. White always moves first.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Status represents a session lifecycle state. Transitions are strictly
// Open -> Active -> Finished; a session never moves backward.
type Status string

const (
	StatusOpen     Status = "open"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Outcome is set exactly once, together with the transition to Finished.
type Outcome string

const (
	OutcomeWhiteWins Outcome = "white"
	OutcomeBlackWins Outcome = "black"
	OutcomeDraw      Outcome = "draw"
)

// Result returns the PGN result string for the outcome.
func (o Outcome) Result() string {
	switch o {
	case OutcomeWhiteWins:
		return "1-0"
	case OutcomeBlackWins:
		return "0-1"
	case OutcomeDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// DefaultRating is the rating assigned to freshly registered participants.
const DefaultRating = 1200

// Participant is a registered player account.
type Participant struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Rating       int       `json:"rating"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is one two-player game from creation to completion. The creator
// plays white; BlackID stays empty until an opponent joins. FEN is the
// mutable current-position projection of the append-only move log.
type Session struct {
	ID        string    `json:"id"`
	WhiteID   string    `json:"white_id"`
	BlackID   string    `json:"black_id,omitempty"`
	FEN       string    `json:"fen"`
	Status    Status    `json:"status"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	WinnerID  string    `json:"winner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPlayer reports whether id plays either side of the session.
func (s *Session) HasPlayer(id string) bool {
	return id != "" && (s.WhiteID == id || s.BlackID == id)
}

// SideOf returns the color id plays, or "" when id is not a participant.
func (s *Session) SideOf(id string) Color {
	switch {
	case id != "" && s.WhiteID == id:
		return White
	case id != "" && s.BlackID == id:
		return Black
	default:
		return ""
	}
}

// MoveRecord is an immutable entry of the per-session move log. Records are
// only ever appended by successful commits and never mutated afterwards.
type MoveRecord struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	PlayerID      string    `json:"player_id"`
	Notation      string    `json:"notation"`
	PositionAfter string    `json:"position_after"`
	CreatedAt     time.Time `json:"created_at"`
}
