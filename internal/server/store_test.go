package server

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/playperu/fivehints/internal/database"
	"github.com/playperu/fivehints/internal/fivehints"
	"github.com/playperu/fivehints/internal/migrations"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := migrations.Run(ctx, db, slog.Default()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLStore(db)
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 0)

	events := []fivehints.GuessEvent{
		{ChallengeID: "c1", Guess: "paris", Correct: true, Phase: 1, Fingerprint: "gold"},
		{ChallengeID: "c1", Guess: "rome", Correct: false, Phase: 1, Fingerprint: "silver"},
		{ChallengeID: "c1", Guess: "paris", Correct: true, Phase: 2, Fingerprint: "silver"},
		// A later replay does not improve or worsen the first solve.
		{ChallengeID: "c1", Guess: "paris", Correct: true, Phase: 5, Fingerprint: "silver"},
		{ChallengeID: "c1", Guess: "paris", Correct: true, Phase: 4, Fingerprint: "bronze"},
		{ChallengeID: "c1", Guess: "lima", Correct: false, Phase: 5, Fingerprint: "lost"},
		{ChallengeID: "c1", Guess: "paris", Correct: true, Phase: 1},
		{ChallengeID: "c2", Guess: "paris", Correct: true, Phase: 1, Fingerprint: "gold"},
	}
	for _, ev := range events {
		ev.At = at
		if err := store.RecordGuess(ctx, ev); err != nil {
			t.Fatalf("RecordGuess: %v", err)
		}
	}

	st, err := store.Stats(ctx, "c1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Guesses != 7 || st.Players != 4 || st.Solves != 3 {
		t.Errorf("totals = %+v", st)
	}
	want := map[string]int{"Gold": 1, "Silver": 1, "Bronze": 1}
	for rank, n := range want {
		if st.SolvesByRank[rank] != n {
			t.Errorf("solves_by_rank[%s] = %d, want %d", rank, st.SolvesByRank[rank], n)
		}
	}

	empty, err := store.Stats(ctx, "nobody-played")
	if err != nil {
		t.Fatalf("Stats on empty challenge: %v", err)
	}
	if empty.Guesses != 0 || empty.SolvesByRank == nil {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestChallengeCodes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := ChallengeRecord{ID: "c1", Code: "ABCDEFGH", Type: fivehints.TypePlace, Token: "tok", CreatedAt: 1, ExpiresAt: 2}
	if err := store.CreateChallenge(ctx, rec); err != nil {
		t.Fatalf("CreateChallenge: %v", err)
	}

	dup := rec
	dup.ID = "c2"
	if err := store.CreateChallenge(ctx, dup); !errors.Is(err, fivehints.ErrConflict) {
		t.Errorf("duplicate code err = %v, want conflict", err)
	}

	got, err := store.ChallengeByCode(ctx, "ABCDEFGH")
	if err != nil || got != rec {
		t.Errorf("ChallengeByCode = %+v, %v", got, err)
	}
	if _, err := store.ChallengeByCode(ctx, "ZZZZZZZZ"); !errors.Is(err, fivehints.ErrNotFound) {
		t.Errorf("missing code err = %v, want not found", err)
	}
}

func TestAdminSessionExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Unix(1700000000, 0)
	store.now = func() time.Time { return now }

	if err := store.EnsureAdmin(ctx, "ops@example.com", "hash"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	id, _, err := store.AdminByEmail(ctx, "ops@example.com")
	if err != nil {
		t.Fatalf("AdminByEmail: %v", err)
	}
	sid, err := store.CreateAdminSession(ctx, id)
	if err != nil {
		t.Fatalf("CreateAdminSession: %v", err)
	}

	if sess, err := store.AdminFromSession(ctx, sid); err != nil || sess.Email != "ops@example.com" {
		t.Fatalf("AdminFromSession = %+v, %v", sess, err)
	}

	now = now.Add(adminSessionTTL + time.Minute)
	if _, err := store.AdminFromSession(ctx, sid); !errors.Is(err, errNoAdminSession) {
		t.Errorf("expired session err = %v", err)
	}

	fresh, err := store.CreateAdminSession(ctx, id)
	if err != nil {
		t.Fatalf("CreateAdminSession: %v", err)
	}
	if n, err := store.PurgeAdminSessions(ctx); err != nil || n != 1 {
		t.Errorf("PurgeAdminSessions = %d, %v; want 1", n, err)
	}
	if _, err := store.AdminFromSession(ctx, fresh); err != nil {
		t.Errorf("fresh session purged: %v", err)
	}
}
