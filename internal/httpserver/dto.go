package httpserver

import (
	"github.com/kr1s01/cfuv-chess/internal/domain"
	"github.com/kr1s01/cfuv-chess/pkg/chessdto"
)

func playerDTO(p *domain.Participant) chessdto.Player {
	return chessdto.Player{
		ID:        p.ID,
		Username:  p.Username,
		Rating:    p.Rating,
		CreatedAt: p.CreatedAt,
	}
}

func gameDTO(s *domain.Session) chessdto.Game {
	return chessdto.Game{
		ID:        s.ID,
		WhiteID:   s.WhiteID,
		BlackID:   s.BlackID,
		FEN:       s.FEN,
		Status:    string(s.Status),
		Outcome:   string(s.Outcome),
		WinnerID:  s.WinnerID,
		Result:    s.Outcome.Result(),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func gameDTOs(sessions []*domain.Session) []chessdto.Game {
	out := make([]chessdto.Game, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gameDTO(s))
	}
	return out
}

func moveDTO(m *domain.MoveRecord) chessdto.Move {
	return chessdto.Move{
		ID:            m.ID,
		GameID:        m.SessionID,
		PlayerID:      m.PlayerID,
		Notation:      m.Notation,
		PositionAfter: m.PositionAfter,
		CreatedAt:     m.CreatedAt,
	}
}
