// Package engine drives a single play-through of a challenge: it advances
// through the five hint phases on wrong guesses, ranks a solve by the phase
// it happened in, reveals the answer after the final phase is exhausted and
// triggers the asynchronous enrichment calls on entering phases 4 and 5.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/fivehints/internal/fivehints"
)

const (
	MaxPhase = 5
	// FinalPhaseMisses is how many wrong guesses phase 5 allows before the
	// answer is revealed.
	FinalPhaseMisses = 5
	// Retention bounds how long a persisted snapshot may be resumed.
	Retention                = 24 * time.Hour
	DefaultEnrichmentTimeout = 40 * time.Second
)

// Judge evaluates one guess against the protected answer.
type Judge interface {
	Check(ctx context.Context, req fivehints.GuessCheck) (fivehints.Verdict, error)
}

// Enricher produces the phase 4 nudge and the phase 5 analysis.
type Enricher interface {
	Nudge(ctx context.Context, req fivehints.EnrichmentRequest) (fivehints.Nudge, error)
	Analyze(ctx context.Context, req fivehints.EnrichmentRequest) (fivehints.Analysis, error)
}

// Notifier is called after an enrichment call settled on a live session.
type Notifier func(sessionID string, kind Enrichment, snap Snapshot)

type Engine struct {
	judge    Judge
	enricher Enricher
	timeout  time.Duration
	notify   Notifier
	logger   *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

type Option func(*Engine)

// WithEnricher enables phase 4 and 5 enrichment, each call bounded by timeout.
func WithEnricher(e Enricher, timeout time.Duration) Option {
	return func(en *Engine) {
		en.enricher = e
		if timeout > 0 {
			en.timeout = timeout
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notify = n }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(j Judge, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		judge:   j,
		timeout: DefaultEnrichmentTimeout,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens a fresh session at phase 1.
func (e *Engine) Start(challengeID string) *Session {
	now := e.now().UTC()
	return newSession(Snapshot{
		ID:           uuid.NewString(),
		ChallengeID:  challengeID,
		State:        StatePlaying,
		Phase:        1,
		WrongGuesses: []WrongGuess{},
		StartedAt:    now,
		UpdatedAt:    now,
	})
}

// Restore resumes a session from a client-held snapshot. Snapshots that
// break the phase invariants or are older than Retention are rejected.
func (e *Engine) Restore(snap Snapshot) (*Session, error) {
	if err := snap.validate(); err != nil {
		return nil, err
	}
	if e.now().Sub(snap.StartedAt) > Retention {
		return nil, fivehints.Errorf(fivehints.CodeValidation, "session expired")
	}
	snap = snap.clone()
	if snap.WrongGuesses == nil {
		snap.WrongGuesses = []WrongGuess{}
	}
	return newSession(snap), nil
}

// Outcome describes what one submission did to the session.
type Outcome struct {
	// Result is the verdict of the submitted guess; empty when the
	// submission was ignored.
	Result fivehints.Result `json:"result,omitempty"`
	// Ignored is set for submissions against a finished session.
	Ignored bool `json:"ignored,omitempty"`
	// Duplicate is set when another submission was still in flight.
	Duplicate  bool       `json:"duplicate,omitempty"`
	Suggestion string     `json:"suggestion,omitempty"`
	Enrichment Enrichment `json:"enrichment,omitempty"`
	Snapshot   Snapshot   `json:"session"`
}

// Submit evaluates guess for the session's current phase and applies the
// resulting transition.
func (e *Engine) Submit(ctx context.Context, s *Session, tok, guess, fingerprint string) (Outcome, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Outcome{Duplicate: true, Snapshot: s.Snapshot()}, nil
	}
	defer s.busy.Store(false)

	snap := s.Snapshot()
	switch {
	case snap.State.Terminal():
		return Outcome{Ignored: true, Snapshot: snap}, nil
	case snap.State == StateConfirming:
		return Outcome{Snapshot: snap}, fivehints.Errorf(fivehints.CodeValidation, "a suggestion is awaiting confirmation")
	}

	guess = strings.TrimSpace(guess)
	if guess == "" {
		return Outcome{Snapshot: snap}, fivehints.Errorf(fivehints.CodeValidation, "guess is required")
	}
	if guess == fivehints.RevealGuess {
		return Outcome{Snapshot: snap}, fivehints.Errorf(fivehints.CodeValidation, "guess is reserved")
	}

	v, err := e.judge.Check(ctx, fivehints.GuessCheck{Token: tok, Guess: guess, Phase: snap.Phase, Fingerprint: fingerprint})
	if err != nil {
		return Outcome{Snapshot: snap}, err
	}

	switch {
	case v.Result == fivehints.ResultCorrect:
		return e.solve(s, v.Canonical), nil
	case v.Suggestion != "":
		next := s.update(e.now().UTC(), func(sn *Snapshot) {
			sn.State = StateConfirming
			sn.Pending = &PendingGuess{Guess: guess, Suggestion: v.Suggestion, Similarity: v.Similarity}
		})
		return Outcome{Result: fivehints.ResultIncorrect, Suggestion: v.Suggestion, Snapshot: next}, nil
	default:
		return e.miss(ctx, s, tok, guess, v.Similarity, fingerprint), nil
	}
}

// Confirm settles a pending did-you-mean. Accepting re-judges the suggestion;
// declining counts the original guess as a miss.
func (e *Engine) Confirm(ctx context.Context, s *Session, tok string, accept bool, fingerprint string) (Outcome, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return Outcome{Duplicate: true, Snapshot: s.Snapshot()}, nil
	}
	defer s.busy.Store(false)

	snap := s.Snapshot()
	switch {
	case snap.State.Terminal():
		return Outcome{Ignored: true, Snapshot: snap}, nil
	case snap.State != StateConfirming:
		return Outcome{Snapshot: snap}, fivehints.Errorf(fivehints.CodeValidation, "no suggestion is pending")
	}
	pending := *snap.Pending

	if accept {
		v, err := e.judge.Check(ctx, fivehints.GuessCheck{Token: tok, Guess: pending.Suggestion, Phase: snap.Phase, Fingerprint: fingerprint})
		if err != nil {
			return Outcome{Snapshot: snap}, err
		}
		if v.Result == fivehints.ResultCorrect {
			s.update(e.now().UTC(), clearPending)
			return e.solve(s, v.Canonical), nil
		}
	}

	s.update(e.now().UTC(), clearPending)
	return e.miss(ctx, s, tok, pending.Guess, pending.Similarity, fingerprint), nil
}

func clearPending(sn *Snapshot) {
	sn.State = StatePlaying
	sn.Pending = nil
}

func (e *Engine) solve(s *Session, canonical string) Outcome {
	next := s.update(e.now().UTC(), func(sn *Snapshot) {
		sn.GuessCount++
		sn.State = StateSolved
		sn.Rank = fivehints.RankForPhase(sn.Phase)
		sn.Canonical = canonical
	})
	// Nothing left to show the player a hint for.
	s.Abandon()
	return Outcome{Result: fivehints.ResultCorrect, Snapshot: next}
}

func (e *Engine) miss(ctx context.Context, s *Session, tok, guess string, similarity float64, fingerprint string) Outcome {
	var (
		kind      Enrichment
		exhausted bool
	)
	next := s.update(e.now().UTC(), func(sn *Snapshot) {
		sn.GuessCount++
		sn.WrongGuesses = append(sn.WrongGuesses, WrongGuess{
			Guess:      guess,
			Similarity: similarity,
			Phase:      sn.Phase,
			At:         e.now().UTC(),
		})
		switch sn.Phase {
		case 1, 2:
			sn.Phase++
		case 3:
			sn.Phase = 4
			kind = EnrichmentNudge
		case 4:
			sn.Phase = 5
			kind = EnrichmentAnalysis
		default:
			exhausted = sn.FinalPhaseMisses() >= FinalPhaseMisses
		}
	})

	if kind != "" {
		e.enrich(s, kind, tok, next)
	}
	if exhausted {
		e.reveal(ctx, s, tok, fingerprint)
	}
	return Outcome{Result: fivehints.ResultIncorrect, Enrichment: kind, Snapshot: s.Snapshot()}
}

// reveal asks the judge for the answer via the reserved guess. A failed
// lookup still ends the game; the canonical answer just stays empty.
func (e *Engine) reveal(ctx context.Context, s *Session, tok, fingerprint string) {
	v, err := e.judge.Check(ctx, fivehints.GuessCheck{Token: tok, Guess: fivehints.RevealGuess, Phase: MaxPhase, Fingerprint: fingerprint})
	if err != nil {
		e.logger.Warn("revealing answer", "session_id", s.ID(), "error", err)
	}
	s.update(e.now().UTC(), func(sn *Snapshot) {
		sn.State = StateRevealed
		if err == nil && v.Result == fivehints.ResultReveal {
			sn.Canonical = v.Canonical
		}
	})
}

// Wait blocks until every enrichment call started by this engine settled
// or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func timedOut(ctx context.Context, err error) bool {
	return errors.Is(err, fivehints.ErrUpstreamTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(ctx.Err(), context.DeadlineExceeded)
}
