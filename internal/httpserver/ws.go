package httpserver

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// wsSink adapts a websocket connection to the hub sink contract.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Send(ctx context.Context, payload []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, payload)
}

// handleWatch upgrades the request and streams session events until the
// client goes away. Clients are read-only; inbound frames are drained
// and discarded.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := s.games.Get(r.Context(), sessionID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins,
	})
	if err != nil {
		s.logger.Warn("ws_accept_error",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	sub := s.hub.Subscribe(sessionID, &wsSink{conn: conn})
	defer s.hub.Unsubscribe(sub)

	s.logger.Info("ws_subscribe", zap.String("session_id", sessionID))

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "bye")
}
