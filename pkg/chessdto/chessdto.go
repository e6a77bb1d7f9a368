// Package chessdto holds the JSON wire types shared by the server and
// its clients.
package chessdto

import "time"

type Player struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

type Game struct {
	ID        string    `json:"id"`
	WhiteID   string    `json:"white_id"`
	BlackID   string    `json:"black_id,omitempty"`
	FEN       string    `json:"fen"`
	Status    string    `json:"status"`
	Outcome   string    `json:"outcome,omitempty"`
	WinnerID  string    `json:"winner_id,omitempty"`
	Result    string    `json:"result"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Move struct {
	ID            string    `json:"id"`
	GameID        string    `json:"game_id"`
	PlayerID      string    `json:"player_id"`
	Notation      string    `json:"notation"`
	PositionAfter string    `json:"position_after"`
	CreatedAt     time.Time `json:"created_at"`
}

type RatingEntry struct {
	Rank     int    `json:"rank"`
	ID       string `json:"id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}
