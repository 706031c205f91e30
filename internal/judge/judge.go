// Package judge is the server-side authority over a token's secret fields.
// It checks guesses against the protected answer and forwards enrichment
// requests to the content provider once the token has been verified.
package judge

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/playperu/fivehints/internal/fivehints"
	"github.com/playperu/fivehints/internal/match"
	"github.com/playperu/fivehints/internal/token"
)

// MinOracleGuessLen is the shortest raw guess sent to the semantic oracle.
const MinOracleGuessLen = 3

type Verifier interface {
	Verify(raw string) (token.Payload, error)
}

// Oracle answers "is guess a valid way to refer to target?".
type Oracle interface {
	Equivalent(ctx context.Context, guess, target string, typ fivehints.ChallengeType) (bool, error)
}

// Provider generates phase 4 and 5 enrichment content.
type Provider interface {
	Nudge(ctx context.Context, req fivehints.EnrichmentRequest) (fivehints.Nudge, error)
	Analyze(ctx context.Context, req fivehints.EnrichmentRequest) (fivehints.Analysis, error)
}

// EventLog records every evaluated guess for later aggregation.
type EventLog interface {
	RecordGuess(ctx context.Context, ev fivehints.GuessEvent) error
}

type Service struct {
	codec         Verifier
	oracle        Oracle
	oracleTimeout time.Duration
	provider      Provider
	events        EventLog
	logger        *slog.Logger
	now           func() time.Time
}

type Option func(*Service)

// WithOracle enables the semantic fallback with a per-call timeout.
func WithOracle(o Oracle, timeout time.Duration) Option {
	return func(s *Service) {
		s.oracle = o
		s.oracleTimeout = timeout
	}
}

func WithProvider(p Provider) Option {
	return func(s *Service) { s.provider = p }
}

func WithEventLog(e EventLog) Option {
	return func(s *Service) { s.events = e }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(codec Verifier, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		codec:         codec,
		oracleTimeout: 8 * time.Second,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check evaluates one guess. Token failures are returned unchanged so the
// caller can answer 401; oracle failures degrade to "incorrect".
func (s *Service) Check(ctx context.Context, req fivehints.GuessCheck) (fivehints.Verdict, error) {
	guess := strings.TrimSpace(req.Guess)
	if req.Token == "" || guess == "" {
		return fivehints.Verdict{}, fivehints.Errorf(fivehints.CodeValidation, "token and guess are required")
	}

	p, err := s.codec.Verify(req.Token)
	if err != nil {
		return fivehints.Verdict{}, err
	}

	if guess == fivehints.RevealGuess {
		return fivehints.Verdict{Result: fivehints.ResultReveal, Canonical: p.Target}, nil
	}
	if req.Phase < 1 || req.Phase > 5 {
		return fivehints.Verdict{}, fivehints.Errorf(fivehints.CodeValidation, "phase must be between 1 and 5")
	}

	m := match.Match(guess, p.Target, p.Aliases)
	correct := m.Matched
	if !correct && s.oracle != nil && utf8.RuneCountInString(guess) >= MinOracleGuessLen {
		correct = s.askOracle(ctx, guess, p)
	}

	v := fivehints.Verdict{Result: fivehints.ResultIncorrect, Similarity: m.Similarity}
	if correct {
		v = fivehints.Verdict{Result: fivehints.ResultCorrect, Canonical: p.Target, Similarity: 1}
	} else {
		v.Suggestion = m.Suggestion
	}

	s.record(ctx, fivehints.GuessEvent{
		ChallengeID: p.ID,
		Guess:       m.Normalized,
		Correct:     correct,
		Phase:       req.Phase,
		Fingerprint: req.Fingerprint,
		At:          s.now().UTC(),
	})
	return v, nil
}

func (s *Service) askOracle(ctx context.Context, guess string, p token.Payload) bool {
	ctx, cancel := context.WithTimeout(ctx, s.oracleTimeout)
	defer cancel()

	ok, err := s.oracle.Equivalent(ctx, guess, p.Target, p.Type)
	if err != nil {
		s.logger.Warn("equivalence check failed, treating guess as incorrect",
			"challenge_id", p.ID,
			"code", fivehints.CodeOf(err),
			"error", err,
		)
		return false
	}
	return ok
}

func (s *Service) record(ctx context.Context, ev fivehints.GuessEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.RecordGuess(ctx, ev); err != nil {
		s.logger.Error("recording guess event", "challenge_id", ev.ChallengeID, "error", err)
	}
}

// Nudge verifies the token and asks the provider for a phase 4 hint.
func (s *Service) Nudge(ctx context.Context, req fivehints.EnrichmentRequest) (fivehints.Nudge, error) {
	req, err := s.enrichmentRequest(req)
	if err != nil {
		return fivehints.Nudge{}, err
	}
	return s.provider.Nudge(ctx, req)
}

// Analyze verifies the token and asks the provider for the phase 5 breakdown.
func (s *Service) Analyze(ctx context.Context, req fivehints.EnrichmentRequest) (fivehints.Analysis, error) {
	req, err := s.enrichmentRequest(req)
	if err != nil {
		return fivehints.Analysis{}, err
	}
	return s.provider.Analyze(ctx, req)
}

func (s *Service) enrichmentRequest(req fivehints.EnrichmentRequest) (fivehints.EnrichmentRequest, error) {
	if s.provider == nil {
		return req, fivehints.Errorf(fivehints.CodeUpstreamFailure, "content provider is not configured")
	}
	if req.Token == "" {
		return req, fivehints.Errorf(fivehints.CodeValidation, "token is required")
	}
	p, err := s.codec.Verify(req.Token)
	if err != nil {
		return req, err
	}

	out := fivehints.EnrichmentRequest{
		Type:    p.Type,
		Target:  p.Target,
		Guesses: make([]string, 0, len(req.Guesses)),
		Hints:   req.Hints,
	}
	for _, g := range req.Guesses {
		if g = strings.TrimSpace(g); g != "" {
			out.Guesses = append(out.Guesses, g)
		}
	}
	if out.Hints == nil {
		h := p.Hints
		out.Hints = &h
	}
	return out, nil
}
