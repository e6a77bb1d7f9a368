package chessdto

// Event is a live-game broadcast frame. Type is "joined" or "move".
type Event struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id,omitempty"`
	Notation string `json:"notation,omitempty"`
	Position string `json:"position,omitempty"`
	Status   string `json:"status,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	WinnerID string `json:"winner_id,omitempty"`
}
