package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/kr1s01/cfuv-chess/internal/auth"
	"github.com/kr1s01/cfuv-chess/internal/game"
	"github.com/kr1s01/cfuv-chess/internal/hub"
	"github.com/kr1s01/cfuv-chess/internal/rules"
	"github.com/kr1s01/cfuv-chess/internal/store"
	"github.com/kr1s01/cfuv-chess/pkg/chessdto"
)

type fixture struct {
	ts  *httptest.Server
	hub *hub.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	h := hub.New(zap.NewNop())
	games := game.NewService(st, rules.NewStandard(), h, zap.NewNop())
	au := auth.New(st, "test-secret", time.Hour, zap.NewNop())
	srv := New(games, au, st, h, zap.NewNop(), Options{})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &fixture{ts: ts, hub: h}
}

func (f *fixture) do(t *testing.T, method, path, token string, in, out any) int {
	t.Helper()
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) signup(t *testing.T, username string) string {
	t.Helper()
	var p chessdto.Player
	code := f.do(t, http.MethodPost, "/register", "", chessdto.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "opening-prep-1900",
	}, &p)
	if code != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, code)
	}
	var tok chessdto.TokenResponse
	code = f.do(t, http.MethodPost, "/login", "", chessdto.LoginRequest{
		Username: username,
		Password: "opening-prep-1900",
	}, &tok)
	if code != http.StatusOK {
		t.Fatalf("login %s: status %d", username, code)
	}
	return tok.Token
}

func TestRegisterLoginMe(t *testing.T) {
	f := newFixture(t)
	token := f.signup(t, "alice")

	var me chessdto.Player
	if code := f.do(t, http.MethodGet, "/users/me", token, nil, &me); code != http.StatusOK {
		t.Fatalf("me: status %d", code)
	}
	if me.Username != "alice" || me.Rating != 1200 {
		t.Fatalf("unexpected profile: %+v", me)
	}

	if code := f.do(t, http.MethodGet, "/users/me", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code := f.do(t, http.MethodGet, "/users/me", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", code)
	}
}

func TestDuplicateUsernameRejected(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "alice")
	code := f.do(t, http.MethodPost, "/register", "", chessdto.RegisterRequest{
		Username: "alice",
		Email:    "other@example.com",
		Password: "opening-prep-1900",
	}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate username, got %d", code)
	}
}

func TestFullGameOverHTTP(t *testing.T) {
	f := newFixture(t)
	white := f.signup(t, "alice")
	black := f.signup(t, "bob")

	var g chessdto.Game
	if code := f.do(t, http.MethodPost, "/games", white, nil, &g); code != http.StatusCreated {
		t.Fatalf("create game: status %d", code)
	}
	if g.Status != "open" {
		t.Fatalf("new game status = %q", g.Status)
	}

	var open []chessdto.Game
	if code := f.do(t, http.MethodGet, "/games", "", nil, &open); code != http.StatusOK {
		t.Fatalf("list games failed")
	}
	if len(open) != 1 || open[0].ID != g.ID {
		t.Fatalf("open list = %+v", open)
	}

	if code := f.do(t, http.MethodPost, "/games/"+g.ID+"/join", black, nil, &g); code != http.StatusOK {
		t.Fatalf("join: status %d", code)
	}
	if g.Status != "active" {
		t.Fatalf("joined game status = %q", g.Status)
	}

	// Fool's mate, black delivers.
	line := []struct {
		token    string
		notation string
	}{
		{white, "f3"},
		{black, "e5"},
		{white, "g4"},
		{black, "Qh4#"},
	}
	for _, step := range line {
		var mv chessdto.Move
		code := f.do(t, http.MethodPost, "/games/"+g.ID+"/move", step.token, chessdto.MoveRequest{Notation: step.notation}, &mv)
		if code != http.StatusOK {
			t.Fatalf("move %q: status %d", step.notation, code)
		}
		if mv.Notation != step.notation {
			t.Fatalf("echoed notation = %q", mv.Notation)
		}
	}

	if code := f.do(t, http.MethodGet, "/games/"+g.ID, "", nil, &g); code != http.StatusOK {
		t.Fatalf("get game failed")
	}
	if g.Status != "finished" || g.Outcome != "black" || g.Result != "0-1" {
		t.Fatalf("final game = %+v", g)
	}

	var moves []chessdto.Move
	if code := f.do(t, http.MethodGet, "/games/"+g.ID+"/history", "", nil, &moves); code != http.StatusOK {
		t.Fatalf("history failed")
	}
	if len(moves) != 4 || moves[3].Notation != "Qh4#" {
		t.Fatalf("history = %+v", moves)
	}

	var ratings []chessdto.RatingEntry
	if code := f.do(t, http.MethodGet, "/ratings", "", nil, &ratings); code != http.StatusOK {
		t.Fatalf("ratings failed")
	}
	if len(ratings) != 2 {
		t.Fatalf("ratings len = %d", len(ratings))
	}
	if ratings[0].Username != "bob" || ratings[0].Rating != 1216 || ratings[0].Rank != 1 {
		t.Fatalf("leader = %+v", ratings[0])
	}
	if ratings[1].Username != "alice" || ratings[1].Rating != 1184 {
		t.Fatalf("runner-up = %+v", ratings[1])
	}
}

func TestMoveErrorMapping(t *testing.T) {
	f := newFixture(t)
	white := f.signup(t, "alice")
	black := f.signup(t, "bob")
	intruder := f.signup(t, "carol")

	var g chessdto.Game
	f.do(t, http.MethodPost, "/games", white, nil, &g)

	// Moves before black joins hit the inactive session.
	if code := f.do(t, http.MethodPost, "/games/"+g.ID+"/move", white, chessdto.MoveRequest{Notation: "e4"}, nil); code != http.StatusBadRequest {
		t.Fatalf("open-session move: status %d", code)
	}
	f.do(t, http.MethodPost, "/games/"+g.ID+"/join", black, nil, nil)

	cases := []struct {
		name     string
		token    string
		notation string
		want     int
	}{
		{"outsider", intruder, "e4", http.StatusForbidden},
		{"wrong turn", black, "e5", http.StatusBadRequest},
		{"garbage notation", white, "zzz9", http.StatusBadRequest},
		{"illegal move", white, "Qh5", http.StatusBadRequest},
	}
	for _, tc := range cases {
		var fail chessdto.ErrorResponse
		code := f.do(t, http.MethodPost, "/games/"+g.ID+"/move", tc.token, chessdto.MoveRequest{Notation: tc.notation}, &fail)
		if code != tc.want {
			t.Fatalf("%s: status %d, want %d", tc.name, code, tc.want)
		}
		if fail.Error == "" {
			t.Fatalf("%s: empty error body", tc.name)
		}
	}

	if code := f.do(t, http.MethodPost, "/games/missing/move", white, chessdto.MoveRequest{Notation: "e4"}, nil); code != http.StatusNotFound {
		t.Fatalf("missing game: expected 404")
	}
	if code := f.do(t, http.MethodPost, "/games/"+g.ID+"/move", "", chessdto.MoveRequest{Notation: "e4"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous move: expected 401")
	}
}

func TestUserHistoryEndpoint(t *testing.T) {
	f := newFixture(t)
	white := f.signup(t, "alice")
	black := f.signup(t, "bob")

	var me chessdto.Player
	f.do(t, http.MethodGet, "/users/me", white, nil, &me)

	var g chessdto.Game
	f.do(t, http.MethodPost, "/games", white, nil, &g)
	f.do(t, http.MethodPost, "/games/"+g.ID+"/join", black, nil, nil)

	var history []chessdto.Game
	if code := f.do(t, http.MethodGet, "/users/"+me.ID+"/history", "", nil, &history); code != http.StatusOK {
		t.Fatalf("history: status %d", code)
	}
	if len(history) != 1 || history[0].ID != g.ID {
		t.Fatalf("history = %+v", history)
	}

	if code := f.do(t, http.MethodGet, "/users/nobody/history", "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown user history: expected 404")
	}
}

func TestWebsocketObserverSeesMoves(t *testing.T) {
	f := newFixture(t)
	white := f.signup(t, "alice")
	black := f.signup(t, "bob")

	var g chessdto.Game
	f.do(t, http.MethodPost, "/games", white, nil, &g)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + f.ts.URL[len("http"):] + "/ws/games/" + g.ID
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The subscription registers on the server side of the handshake;
	// wait for it before producing events.
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Subscribers(g.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.do(t, http.MethodPost, "/games/"+g.ID+"/join", black, nil, nil)
	f.do(t, http.MethodPost, "/games/"+g.ID+"/move", white, chessdto.MoveRequest{Notation: "e4"}, nil)

	var joined chessdto.Event
	readEvent(ctx, t, conn, &joined)
	if joined.Type != "joined" {
		t.Fatalf("first event = %+v", joined)
	}

	var moved chessdto.Event
	readEvent(ctx, t, conn, &moved)
	if moved.Type != "move" || moved.Notation != "e4" || moved.Status != "active" {
		t.Fatalf("second event = %+v", moved)
	}
}

func TestWebsocketUnknownGameRejected(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.ts.URL + "/ws/games/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn, dst *chessdto.Event) {
	t.Helper()
	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		t.Fatalf("decode frame %s: %v", raw, err)
	}
}

func TestPaginationClampsLimit(t *testing.T) {
	f := newFixture(t)
	white := f.signup(t, "alice")
	for i := 0; i < 3; i++ {
		f.do(t, http.MethodPost, "/games", white, nil, nil)
	}
	var page []chessdto.Game
	if code := f.do(t, http.MethodGet, "/games?limit=2", "", nil, &page); code != http.StatusOK {
		t.Fatalf("list failed")
	}
	if len(page) != 2 {
		t.Fatalf("page len = %d, want 2", len(page))
	}
	var rest []chessdto.Game
	if code := f.do(t, http.MethodGet, fmt.Sprintf("/games?offset=%d", 2), "", nil, &rest); code != http.StatusOK {
		t.Fatalf("offset list failed")
	}
	if len(rest) != 1 {
		t.Fatalf("rest len = %d, want 1", len(rest))
	}
}
