package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/kr1s01/cfuv-chess/internal/domain"
)

func newRedisTestStore(t *testing.T) Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	st, err := NewRedis(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("store.NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestRedisStoreContract(t *testing.T) {
	runStoreContract(t, newRedisTestStore(t))
}

func runStoreContract(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	alice := &domain.Participant{ID: "p1", Username: "alice", Email: "alice@example.com", PasswordHash: "x", Rating: 1200, CreatedAt: now}
	bob := &domain.Participant{ID: "p2", Username: "bob", Email: "bob@example.com", PasswordHash: "x", Rating: 1200, CreatedAt: now}
	for _, p := range []*domain.Participant{alice, bob} {
		if err := st.CreateParticipant(ctx, p); err != nil {
			t.Fatalf("CreateParticipant(%s): %v", p.Username, err)
		}
	}
	if err := st.CreateParticipant(ctx, &domain.Participant{ID: "p3", Username: "ALICE", Email: "other@example.com"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate username: got %v, want ErrDuplicate", err)
	}
	if err := st.CreateParticipant(ctx, &domain.Participant{ID: "p4", Username: "carol", Email: "Alice@example.com"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate email: got %v, want ErrDuplicate", err)
	}
	got, err := st.GetParticipantByUsername(ctx, "alice")
	if err != nil || got.ID != "p1" {
		t.Fatalf("GetParticipantByUsername: %+v %v", got, err)
	}
	if _, err := st.GetParticipant(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing participant: got %v, want ErrNotFound", err)
	}

	sess := &domain.Session{
		ID: "s1", WhiteID: alice.ID, FEN: "startfen",
		Status: domain.StatusOpen, CreatedAt: now, UpdatedAt: now,
	}
	if err := st.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := st.CreateSession(ctx, sess); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate session: got %v, want ErrDuplicate", err)
	}

	sess.BlackID = bob.ID
	sess.Status = domain.StatusActive
	sess.UpdatedAt = now.Add(time.Second)
	if err := st.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	reloaded, err := st.GetSession(ctx, sess.ID)
	if err != nil || reloaded.BlackID != bob.ID || reloaded.Status != domain.StatusActive {
		t.Fatalf("session roundtrip: %+v %v", reloaded, err)
	}

	open, err := st.ListOpenOrActive(ctx, 0, 10)
	if err != nil || len(open) != 1 || open[0].ID != "s1" {
		t.Fatalf("ListOpenOrActive: %d sessions, err=%v", len(open), err)
	}

	// Two plain commits, then a terminal one carrying rating updates.
	for i, notation := range []string{"e4", "e5"} {
		sess.FEN = fmt.Sprintf("fen-after-%d", i+1)
		sess.UpdatedAt = now.Add(time.Duration(i+2) * time.Second)
		rec := &domain.MoveRecord{
			ID: fmt.Sprintf("m%d", i+1), SessionID: sess.ID,
			PlayerID: []string{alice.ID, bob.ID}[i%2],
			Notation: notation, PositionAfter: sess.FEN,
			CreatedAt: sess.UpdatedAt,
		}
		if err := st.CommitMove(ctx, sess, rec); err != nil {
			t.Fatalf("CommitMove %d: %v", i, err)
		}
	}

	sess.FEN = "fen-final"
	sess.Status = domain.StatusFinished
	sess.Outcome = domain.OutcomeWhiteWins
	sess.WinnerID = alice.ID
	sess.UpdatedAt = now.Add(5 * time.Second)
	alice.Rating = 1216
	bob.Rating = 1184
	final := &domain.MoveRecord{ID: "m3", SessionID: sess.ID, PlayerID: alice.ID, Notation: "Qxf7#", PositionAfter: sess.FEN, CreatedAt: sess.UpdatedAt}
	if err := st.CommitMove(ctx, sess, final, alice, bob); err != nil {
		t.Fatalf("terminal CommitMove: %v", err)
	}

	moves, err := st.ListMoves(ctx, sess.ID)
	if err != nil || len(moves) != 3 {
		t.Fatalf("ListMoves: %d moves, err=%v", len(moves), err)
	}
	for i, want := range []string{"e4", "e5", "Qxf7#"} {
		if moves[i].Notation != want {
			t.Fatalf("move %d: got %q, want %q", i, moves[i].Notation, want)
		}
	}

	final2, err := st.GetSession(ctx, sess.ID)
	if err != nil || final2.Status != domain.StatusFinished || final2.Outcome != domain.OutcomeWhiteWins || final2.WinnerID != alice.ID {
		t.Fatalf("finished session state: %+v %v", final2, err)
	}
	a, _ := st.GetParticipant(ctx, alice.ID)
	b, _ := st.GetParticipant(ctx, bob.ID)
	if a.Rating != 1216 || b.Rating != 1184 {
		t.Fatalf("ratings after commit: %d/%d", a.Rating, b.Rating)
	}

	top, err := st.ListByRating(ctx, 0, 2)
	if err != nil || len(top) != 2 || top[0].ID != alice.ID {
		t.Fatalf("ListByRating: %+v %v", top, err)
	}

	open, err = st.ListOpenOrActive(ctx, 0, 10)
	if err != nil || len(open) != 0 {
		t.Fatalf("finished session still listed as open: %d", len(open))
	}

	hist, err := st.ListByParticipant(ctx, bob.ID)
	if err != nil || len(hist) != 1 || hist[0].ID != sess.ID {
		t.Fatalf("ListByParticipant: %+v %v", hist, err)
	}
}

func TestForceFinishOpenSkipsRatings(t *testing.T) {
	for name, st := range map[string]Store{"memory": NewMemory(), "redis": newRedisTestStore(t)} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			p := &domain.Participant{ID: "p1", Username: "ann", Email: "ann@example.com", Rating: 1200, CreatedAt: now}
			if err := st.CreateParticipant(ctx, p); err != nil {
				t.Fatalf("CreateParticipant: %v", err)
			}
			for i := 0; i < 2; i++ {
				s := &domain.Session{ID: fmt.Sprintf("s%d", i), WhiteID: p.ID, FEN: "f", Status: domain.StatusOpen, CreatedAt: now, UpdatedAt: now}
				if err := st.CreateSession(ctx, s); err != nil {
					t.Fatalf("CreateSession: %v", err)
				}
			}

			n, err := st.ForceFinishOpen(ctx)
			if err != nil || n != 2 {
				t.Fatalf("ForceFinishOpen: n=%d err=%v", n, err)
			}
			for i := 0; i < 2; i++ {
				s, err := st.GetSession(ctx, fmt.Sprintf("s%d", i))
				if err != nil || s.Status != domain.StatusFinished || s.Outcome != domain.OutcomeDraw || s.WinnerID != "" {
					t.Fatalf("session %d not drawn: %+v %v", i, s, err)
				}
			}
			got, _ := st.GetParticipant(ctx, p.ID)
			if got.Rating != 1200 {
				t.Fatalf("forced finish must not touch ratings, got %d", got.Rating)
			}
		})
	}
}
