package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kr1s01/cfuv-chess/internal/domain"
)

// redisStore keeps every entity as a JSON value with secondary-index sets.
// CommitMove relies on WATCH plus a MULTI/EXEC pipeline for the same
// atomicity the SQL store gets from a transaction.
type redisStore struct {
	rdb *redis.Client
}

func NewRedis(redisURL string) (Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisStore{rdb: rdb}, nil
}

func keyParticipant(id string) string    { return "chess:participant:" + strings.TrimSpace(id) }
func keyUsername(name string) string     { return "chess:participant:username:" + strings.ToLower(strings.TrimSpace(name)) }
func keyEmail(email string) string       { return "chess:participant:email:" + strings.ToLower(strings.TrimSpace(email)) }
func keySession(id string) string        { return "chess:session:" + strings.TrimSpace(id) }
func keyMoves(sessionID string) string   { return keySession(sessionID) + ":moves" }
func keyUserSessions(id string) string   { return "chess:index:user:" + strings.TrimSpace(id) }

const (
	keyRating = "chess:index:rating"
	keyOpen   = "chess:index:open"
)

func (r *redisStore) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	ok, err := r.rdb.SetNX(ctx, keyUsername(p.Username), p.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicate
	}
	ok, err = r.rdb.SetNX(ctx, keyEmail(p.Email), p.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		_ = r.rdb.Del(ctx, keyUsername(p.Username)).Err()
		return ErrDuplicate
	}
	return r.writeParticipant(ctx, r.rdb, p)
}

// writeParticipant stores the JSON value and keeps the rating index in step.
func (r *redisStore) writeParticipant(ctx context.Context, c redis.Cmdable, p *domain.Participant) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, keyParticipant(p.ID), raw, 0).Err(); err != nil {
		return err
	}
	return c.ZAdd(ctx, keyRating, redis.Z{Score: float64(p.Rating), Member: p.ID}).Err()
}

func (r *redisStore) GetParticipant(ctx context.Context, id string) (*domain.Participant, error) {
	return r.loadParticipant(ctx, id)
}

func (r *redisStore) GetParticipantByUsername(ctx context.Context, username string) (*domain.Participant, error) {
	return r.loadParticipantByRef(ctx, keyUsername(username))
}

func (r *redisStore) GetParticipantByEmail(ctx context.Context, email string) (*domain.Participant, error) {
	return r.loadParticipantByRef(ctx, keyEmail(email))
}

func (r *redisStore) loadParticipantByRef(ctx context.Context, refKey string) (*domain.Participant, error) {
	id, err := r.rdb.Get(ctx, refKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.loadParticipant(ctx, id)
}

func (r *redisStore) loadParticipant(ctx context.Context, id string) (*domain.Participant, error) {
	raw, err := r.rdb.Get(ctx, keyParticipant(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p domain.Participant
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *redisStore) SaveParticipant(ctx context.Context, p *domain.Participant) error {
	if _, err := r.loadParticipant(ctx, p.ID); err != nil {
		return err
	}
	return r.writeParticipant(ctx, r.rdb, p)
}

func (r *redisStore) ListByRating(ctx context.Context, offset, limit int) ([]*domain.Participant, error) {
	offset = clampOffset(offset)
	limit = clampLimit(limit)
	ids, err := r.rdb.ZRevRange(ctx, keyRating, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Participant, 0, len(ids))
	for _, id := range ids {
		p, err := r.loadParticipant(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *redisStore) CreateSession(ctx context.Context, s *domain.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, keySession(s.ID), raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicate
	}
	pipe := r.rdb.Pipeline()
	pipe.SAdd(ctx, keyOpen, s.ID)
	pipe.SAdd(ctx, keyUserSessions(s.WhiteID), s.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	raw, err := r.rdb.Get(ctx, keySession(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *redisStore) SaveSession(ctx context.Context, s *domain.Session) error {
	if _, err := r.GetSession(ctx, s.ID); err != nil {
		return err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, keySession(s.ID), raw, 0)
	if s.BlackID != "" {
		pipe.SAdd(ctx, keyUserSessions(s.BlackID), s.ID)
	}
	if s.Status == domain.StatusFinished {
		pipe.SRem(ctx, keyOpen, s.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisStore) ListOpenOrActive(ctx context.Context, offset, limit int) ([]*domain.Session, error) {
	ids, err := r.rdb.SMembers(ctx, keyOpen).Result()
	if err != nil {
		return nil, err
	}
	var out []*domain.Session
	for _, id := range ids {
		s, err := r.GetSession(ctx, id)
		if err != nil || s.Status == domain.StatusFinished {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, clampOffset(offset), clampLimit(limit)), nil
}

func (r *redisStore) ListByParticipant(ctx context.Context, participantID string) ([]*domain.Session, error) {
	ids, err := r.rdb.SMembers(ctx, keyUserSessions(participantID)).Result()
	if err != nil {
		return nil, err
	}
	var out []*domain.Session
	for _, id := range ids {
		s, err := r.GetSession(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *redisStore) ListMoves(ctx context.Context, sessionID string) ([]*domain.MoveRecord, error) {
	raws, err := r.rdb.LRange(ctx, keyMoves(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.MoveRecord, 0, len(raws))
	for _, raw := range raws {
		var m domain.MoveRecord
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, nil
}

func (r *redisStore) CommitMove(ctx context.Context, s *domain.Session, m *domain.MoveRecord, ratings ...*domain.Participant) error {
	sessK := keySession(s.ID)
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		if err := tx.Get(ctx, sessK).Err(); err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		sessRaw, err := json.Marshal(s)
		if err != nil {
			return err
		}
		moveRaw, err := json.Marshal(m)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, sessK, sessRaw, 0)
		pipe.RPush(ctx, keyMoves(s.ID), moveRaw)
		if s.Status == domain.StatusFinished {
			pipe.SRem(ctx, keyOpen, s.ID)
		}
		for _, p := range ratings {
			raw, err := json.Marshal(p)
			if err != nil {
				return err
			}
			pipe.Set(ctx, keyParticipant(p.ID), raw, 0)
			pipe.ZAdd(ctx, keyRating, redis.Z{Score: float64(p.Rating), Member: p.ID})
		}
		_, err = pipe.Exec(ctx)
		return err
	}, sessK)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func (r *redisStore) ForceFinishOpen(ctx context.Context) (int, error) {
	ids, err := r.rdb.SMembers(ctx, keyOpen).Result()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		s, err := r.GetSession(ctx, id)
		if err != nil {
			continue
		}
		if s.Status == domain.StatusFinished {
			_ = r.rdb.SRem(ctx, keyOpen, id).Err()
			continue
		}
		s.Status = domain.StatusFinished
		s.Outcome = domain.OutcomeDraw
		if err := r.SaveSession(ctx, s); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (r *redisStore) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
