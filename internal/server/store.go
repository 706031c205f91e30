package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/fivehints/internal/fivehints"
)

// ChallengeRecord is the stored form of an authored challenge: only the id,
// its short code and the signed token. The answer never leaves the token.
type ChallengeRecord struct {
	ID        string
	Code      string
	Type      fivehints.ChallengeType
	Token     string
	CreatedAt int64
	ExpiresAt int64
}

type DailyRecord struct {
	Day         string
	ChallengeID string
	Token       string
	CreatedBy   string
}

// ChallengeStats aggregates the guess event log of one challenge.
type ChallengeStats struct {
	ChallengeID  string         `json:"challenge_id"`
	Players      int            `json:"players"`
	Guesses      int            `json:"guesses"`
	Solves       int            `json:"solves"`
	SolvesByRank map[string]int `json:"solves_by_rank"`
}

type adminSession struct {
	AdminID string
	Email   string
}

var errNoAdminSession = errors.New("no valid admin session")

// SQLStore keeps everything the service persists in one libSQL database.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// RecordGuess appends to the event log. It satisfies judge.EventLog.
func (s *SQLStore) RecordGuess(ctx context.Context, ev fivehints.GuessEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guess_events (challenge_id, guess, correct, phase, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ChallengeID, ev.Guess, ev.Correct, ev.Phase, ev.Fingerprint, ev.At.Unix())
	if err != nil {
		return fmt.Errorf("recording guess: %w", err)
	}
	return nil
}

func (s *SQLStore) CreateChallenge(ctx context.Context, rec ChallengeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenges (id, code, type, token, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Code, rec.Type, rec.Token, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fivehints.Wrap(fivehints.CodeConflict, "challenge code already taken", err)
		}
		return fmt.Errorf("creating challenge: %w", err)
	}
	return nil
}

func (s *SQLStore) ChallengeByCode(ctx context.Context, code string) (ChallengeRecord, error) {
	var rec ChallengeRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, type, token, created_at, expires_at
		FROM challenges
		WHERE code = ?
	`, code).Scan(&rec.ID, &rec.Code, &rec.Type, &rec.Token, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fivehints.Errorf(fivehints.CodeNotFound, "challenge %q not found", code)
	}
	return rec, err
}

// SetDaily schedules (or replaces) the challenge for day.
func (s *SQLStore) SetDaily(ctx context.Context, rec DailyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_challenges (day, challenge_id, token, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (day) DO UPDATE SET
			challenge_id = excluded.challenge_id,
			token = excluded.token,
			created_by = excluded.created_by,
			created_at = excluded.created_at
	`, rec.Day, rec.ChallengeID, rec.Token, rec.CreatedBy, s.now().Unix())
	if err != nil {
		return fmt.Errorf("scheduling daily challenge: %w", err)
	}
	return nil
}

func (s *SQLStore) Daily(ctx context.Context, day string) (DailyRecord, error) {
	rec := DailyRecord{Day: day}
	err := s.db.QueryRowContext(ctx, `
		SELECT challenge_id, token, created_by FROM daily_challenges WHERE day = ?
	`, day).Scan(&rec.ChallengeID, &rec.Token, &rec.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fivehints.Errorf(fivehints.CodeNotFound, "no daily challenge for %s", day)
	}
	return rec, err
}

// Stats derives a player's rank from the phase of their first correct
// guess. Events without a fingerprint count toward totals only.
func (s *SQLStore) Stats(ctx context.Context, challengeID string) (ChallengeStats, error) {
	st := ChallengeStats{ChallengeID: challengeID, SolvesByRank: map[string]int{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT NULLIF(fingerprint, ''))
		FROM guess_events
		WHERE challenge_id = ?
	`, challengeID).Scan(&st.Guesses, &st.Players)
	if err != nil {
		return st, fmt.Errorf("counting guesses: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT MIN(phase)
		FROM guess_events
		WHERE challenge_id = ? AND correct = 1 AND fingerprint != ''
		GROUP BY fingerprint
	`, challengeID)
	if err != nil {
		return st, fmt.Errorf("aggregating solves: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var phase int
		if err := rows.Scan(&phase); err != nil {
			return st, err
		}
		st.Solves++
		st.SolvesByRank[string(fivehints.RankForPhase(phase))]++
	}
	return st, rows.Err()
}

// EnsureAdmin creates or updates the operator account from configuration.
func (s *SQLStore) EnsureAdmin(ctx context.Context, email, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (id, email, password_hash)
		VALUES (?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET password_hash = excluded.password_hash
	`, uuid.NewString(), strings.ToLower(strings.TrimSpace(email)), passwordHash)
	if err != nil {
		return fmt.Errorf("ensuring admin: %w", err)
	}
	return nil
}

func (s *SQLStore) AdminByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash FROM admins WHERE email = ?
	`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fivehints.ErrNotFound
	}
	return id, hash, err
}

func (s *SQLStore) CreateAdminSession(ctx context.Context, adminID string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_sessions (id, admin_id, created_at) VALUES (?, ?, ?)
	`, id, adminID, s.now().Unix())
	if err != nil {
		return "", fmt.Errorf("creating admin session: %w", err)
	}
	return id, nil
}

func (s *SQLStore) DeleteAdminSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE id = ?`, sessionID)
	return err
}

// PurgeAdminSessions deletes sessions past adminSessionTTL.
func (s *SQLStore) PurgeAdminSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM admin_sessions WHERE created_at <= ?
	`, s.now().Add(-adminSessionTTL).Unix())
	if err != nil {
		return 0, fmt.Errorf("purging admin sessions: %w", err)
	}
	return res.RowsAffected()
}

// AdminFromSession resolves a session cookie. Sessions older than
// adminSessionTTL are treated as missing.
func (s *SQLStore) AdminFromSession(ctx context.Context, sessionID string) (adminSession, error) {
	var sess adminSession
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.email
		FROM admin_sessions s
		JOIN admins a ON a.id = s.admin_id
		WHERE s.id = ? AND s.created_at > ?
	`, sessionID, s.now().Add(-adminSessionTTL).Unix()).Scan(&sess.AdminID, &sess.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return adminSession{}, errNoAdminSession
	}
	return sess, err
}
