package engine

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playperu/fivehints/internal/fivehints"
)

// State is the tagged union of engine states. Phases 1-5 are all "playing";
// the phase number lives beside it in the snapshot.
type State string

const (
	StatePlaying    State = "playing"
	StateConfirming State = "confirming"
	StateSolved     State = "solved"
	StateRevealed   State = "revealed"
)

func (s State) Terminal() bool { return s == StateSolved || s == StateRevealed }

func (s State) valid() bool {
	switch s {
	case StatePlaying, StateConfirming, StateSolved, StateRevealed:
		return true
	}
	return false
}

type Enrichment string

const (
	EnrichmentNudge    Enrichment = "nudge"
	EnrichmentAnalysis Enrichment = "analysis"
)

type EnrichmentStatus string

const (
	StatusPending   EnrichmentStatus = "pending"
	StatusReady     EnrichmentStatus = "ready"
	StatusFailed    EnrichmentStatus = "failed"
	StatusTimedOut  EnrichmentStatus = "timeout"
	StatusSkipped   EnrichmentStatus = "skipped"
	StatusCancelled EnrichmentStatus = "cancelled"
)

type WrongGuess struct {
	Guess      string    `json:"guess"`
	Similarity float64   `json:"similarity_score"`
	Phase      int       `json:"phase"`
	At         time.Time `json:"at"`
}

// PendingGuess is a wrong guess held back while the player decides on a
// did-you-mean suggestion.
type PendingGuess struct {
	Guess      string  `json:"guess"`
	Suggestion string  `json:"suggestion"`
	Similarity float64 `json:"similarity_score"`
}

// Snapshot is the client-owned progress record. It is what gets persisted in
// local storage and sent back with each request.
type Snapshot struct {
	ID             string              `json:"id"`
	ChallengeID    string              `json:"challenge_id"`
	State          State               `json:"state"`
	Phase          int                 `json:"phase"`
	GuessCount     int                 `json:"guess_count"`
	WrongGuesses   []WrongGuess        `json:"wrong_guesses"`
	Rank           fivehints.Rank      `json:"rank,omitempty"`
	Canonical      string              `json:"canonical,omitempty"`
	Pending        *PendingGuess       `json:"pending,omitempty"`
	Nudge          *fivehints.Nudge    `json:"nudge,omitempty"`
	NudgeStatus    EnrichmentStatus    `json:"nudge_status,omitempty"`
	Analysis       *fivehints.Analysis `json:"analysis,omitempty"`
	AnalysisStatus EnrichmentStatus    `json:"analysis_status,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// FinalPhaseMisses counts wrong guesses recorded while in the last phase.
func (s Snapshot) FinalPhaseMisses() int {
	n := 0
	for _, g := range s.WrongGuesses {
		if g.Phase == MaxPhase {
			n++
		}
	}
	return n
}

func (s Snapshot) clone() Snapshot {
	c := s
	c.WrongGuesses = slices.Clone(s.WrongGuesses)
	if s.Pending != nil {
		p := *s.Pending
		c.Pending = &p
	}
	if s.Nudge != nil {
		n := *s.Nudge
		n.Keywords = slices.Clone(n.Keywords)
		c.Nudge = &n
	}
	if s.Analysis != nil {
		a := *s.Analysis
		a.Scores = slices.Clone(a.Scores)
		a.Themes = slices.Clone(a.Themes)
		c.Analysis = &a
	}
	return c
}

func (s Snapshot) validate() error {
	bad := func(msg string) error { return fivehints.Errorf(fivehints.CodeValidation, "session: %s", msg) }

	switch {
	case s.ID == "":
		return bad("id is required")
	case !s.State.valid():
		return bad("unknown state")
	case s.Phase < 1 || s.Phase > MaxPhase:
		return bad("phase out of range")
	case s.GuessCount < len(s.WrongGuesses):
		return bad("guess count below wrong guesses")
	case (s.State == StateConfirming) != (s.Pending != nil):
		return bad("pending suggestion does not match state")
	case (s.State == StateSolved) != (s.Rank != fivehints.RankNone):
		return bad("rank does not match state")
	case s.State == StateSolved && s.Rank != fivehints.RankForPhase(s.Phase):
		return bad("rank does not match phase")
	case s.State != StateRevealed && s.FinalPhaseMisses() >= FinalPhaseMisses:
		return bad("attempts exhausted without reveal")
	}

	last := 1
	for _, g := range s.WrongGuesses {
		if g.Phase < last || g.Phase > s.Phase {
			return bad("wrong guesses out of phase order")
		}
		last = g.Phase
	}
	return nil
}

// Session wraps a snapshot with the runtime pieces the engine needs: a
// mutex for enrichment results, the in-flight submission flag and the
// cancellation scope of background calls.
type Session struct {
	mu   sync.Mutex
	snap Snapshot

	busy atomic.Bool

	ctx      context.Context
	cancel   context.CancelFunc
	inflight map[Enrichment]chan struct{}
}

func newSession(snap Snapshot) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		snap:     snap,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[Enrichment]chan struct{}),
	}
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.ID
}

// Snapshot returns a deep copy of the current progress record.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// Abandon cancels in-flight enrichment. Results that arrive later are
// discarded instead of being applied to a stale session.
func (s *Session) Abandon() {
	s.cancel()
}

// Abandoned reports whether Abandon was called.
func (s *Session) Abandoned() bool {
	return s.ctx.Err() != nil
}

// Wait blocks until the given enrichment finished or ctx is done. It
// returns immediately when nothing is in flight.
func (s *Session) Wait(ctx context.Context, kind Enrichment) error {
	s.mu.Lock()
	done, ok := s.inflight[kind]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) update(now time.Time, fn func(sn *Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	s.snap.UpdatedAt = now
	return s.snap.clone()
}
