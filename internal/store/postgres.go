package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/kr1s01/cfuv-chess/internal/domain"
)

type postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool against databaseURL and verifies it
// with a ping before returning.
func NewPostgres(databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &postgres{db: db}, nil
}

// EnsureSchema creates the tables when they do not exist yet. Deployments
// with managed migrations can skip calling it.
func EnsureSchema(ctx context.Context, s Store) error {
	pg, ok := s.(*postgres)
	if !ok {
		return nil
	}
	const ddl = `
		CREATE TABLE IF NOT EXISTS participants (
			id          TEXT PRIMARY KEY,
			username    TEXT NOT NULL UNIQUE,
			email       TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			rating      INTEGER NOT NULL DEFAULT 1200,
			created_at  TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			white_id   TEXT NOT NULL REFERENCES participants(id),
			black_id   TEXT REFERENCES participants(id),
			fen        TEXT NOT NULL,
			status     TEXT NOT NULL,
			outcome    TEXT,
			winner_id  TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS moves (
			id             TEXT PRIMARY KEY,
			session_id     TEXT NOT NULL REFERENCES sessions(id),
			player_id      TEXT NOT NULL REFERENCES participants(id),
			notation       TEXT NOT NULL,
			position_after TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_moves_session ON moves(session_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);`
	_, err := pg.db.ExecContext(ctx, ddl)
	return err
}

func (p *postgres) CreateParticipant(ctx context.Context, u *domain.Participant) error {
	const query = `
		INSERT INTO participants (id, username, email, password_hash, rating, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := p.db.ExecContext(ctx, query, u.ID, u.Username, u.Email, u.PasswordHash, u.Rating, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

const participantColumns = `id, username, email, password_hash, rating, created_at`

func (p *postgres) GetParticipant(ctx context.Context, id string) (*domain.Participant, error) {
	return p.participantBy(ctx, "id", id)
}

func (p *postgres) GetParticipantByUsername(ctx context.Context, username string) (*domain.Participant, error) {
	return p.participantBy(ctx, "username", username)
}

func (p *postgres) GetParticipantByEmail(ctx context.Context, email string) (*domain.Participant, error) {
	return p.participantBy(ctx, "email", email)
}

func (p *postgres) participantBy(ctx context.Context, column, value string) (*domain.Participant, error) {
	query := fmt.Sprintf(`SELECT %s FROM participants WHERE %s = $1`, participantColumns, column)
	var u domain.Participant
	err := p.db.QueryRowContext(ctx, query, value).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Rating, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select participant: %w", err)
	}
	return &u, nil
}

func (p *postgres) SaveParticipant(ctx context.Context, u *domain.Participant) error {
	const query = `UPDATE participants SET username=$2, email=$3, password_hash=$4, rating=$5 WHERE id=$1`
	res, err := p.db.ExecContext(ctx, query, u.ID, u.Username, u.Email, u.PasswordHash, u.Rating)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *postgres) ListByRating(ctx context.Context, offset, limit int) ([]*domain.Participant, error) {
	query := fmt.Sprintf(`SELECT %s FROM participants ORDER BY rating DESC, username ASC OFFSET $1 LIMIT $2`, participantColumns)
	rows, err := p.db.QueryContext(ctx, query, clampOffset(offset), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer rows.Close()
	out := []*domain.Participant{}
	for rows.Next() {
		var u domain.Participant
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Rating, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

const sessionColumns = `id, white_id, black_id, fen, status, outcome, winner_id, created_at, updated_at`

func (p *postgres) CreateSession(ctx context.Context, s *domain.Session) error {
	const query = `
		INSERT INTO sessions (id, white_id, black_id, fen, status, outcome, winner_id, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)`
	_, err := p.db.ExecContext(ctx, query,
		s.ID, s.WhiteID, s.BlackID, s.FEN, string(s.Status), string(s.Outcome), s.WinnerID, s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *postgres) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	s, err := scanSession(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return s, nil
}

func (p *postgres) SaveSession(ctx context.Context, s *domain.Session) error {
	res, err := p.db.ExecContext(ctx, updateSessionQuery,
		s.ID, s.BlackID, s.FEN, string(s.Status), string(s.Outcome), s.WinnerID, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const updateSessionQuery = `
	UPDATE sessions
	SET black_id = NULLIF($2, ''),
	    fen = $3,
	    status = $4,
	    outcome = NULLIF($5, ''),
	    winner_id = NULLIF($6, ''),
	    updated_at = $7
	WHERE id = $1`

func (p *postgres) ListOpenOrActive(ctx context.Context, offset, limit int) ([]*domain.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE status <> 'finished' ORDER BY created_at ASC OFFSET $1 LIMIT $2`, sessionColumns)
	return p.querySessions(ctx, query, clampOffset(offset), clampLimit(limit))
}

func (p *postgres) ListByParticipant(ctx context.Context, participantID string) ([]*domain.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE white_id = $1 OR black_id = $1 ORDER BY created_at DESC`, sessionColumns)
	return p.querySessions(ctx, query, participantID)
}

func (p *postgres) querySessions(ctx context.Context, query string, args ...any) ([]*domain.Session, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()
	out := []*domain.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *postgres) ListMoves(ctx context.Context, sessionID string) ([]*domain.MoveRecord, error) {
	const query = `
		SELECT id, session_id, player_id, notation, position_after, created_at
		FROM moves WHERE session_id = $1 ORDER BY created_at ASC, id ASC`
	rows, err := p.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select moves: %w", err)
	}
	defer rows.Close()
	out := []*domain.MoveRecord{}
	for rows.Next() {
		var m domain.MoveRecord
		if err := rows.Scan(&m.ID, &m.SessionID, &m.PlayerID, &m.Notation, &m.PositionAfter, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CommitMove runs the whole move persistence inside one transaction so a
// reader can never observe a recorded move next to a stale session row.
func (p *postgres) CommitMove(ctx context.Context, s *domain.Session, m *domain.MoveRecord, ratings ...*domain.Participant) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertMove = `
		INSERT INTO moves (id, session_id, player_id, notation, position_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, insertMove, m.ID, m.SessionID, m.PlayerID, m.Notation, m.PositionAfter, m.CreatedAt); err != nil {
		return fmt.Errorf("insert move: %w", err)
	}
	res, err := tx.ExecContext(ctx, updateSessionQuery,
		s.ID, s.BlackID, s.FEN, string(s.Status), string(s.Outcome), s.WinnerID, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	for _, u := range ratings {
		if _, err := tx.ExecContext(ctx, `UPDATE participants SET rating = $2 WHERE id = $1`, u.ID, u.Rating); err != nil {
			return fmt.Errorf("update rating: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit move: %w", err)
	}
	return nil
}

func (p *postgres) ForceFinishOpen(ctx context.Context) (int, error) {
	const query = `
		UPDATE sessions
		SET status = 'finished', outcome = 'draw', updated_at = NOW()
		WHERE status <> 'finished'`
	res, err := p.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("force finish: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (p *postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (*domain.Session, error) {
	var (
		s       domain.Session
		blackID sql.NullString
		outcome sql.NullString
		winner  sql.NullString
	)
	if err := r.Scan(&s.ID, &s.WhiteID, &blackID, &s.FEN, &s.Status, &outcome, &winner, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.BlackID = blackID.String
	s.Outcome = domain.Outcome(outcome.String)
	s.WinnerID = winner.String
	return &s, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 100
	}
	return limit
}
