package engine

import (
	"context"
	"time"

	"github.com/playperu/fivehints/internal/fivehints"
)

// enrich starts the background call for kind. The guess flow never waits on
// it: the result lands in the session when it arrives and the notifier is
// told, unless the session was abandoned in the meantime.
func (e *Engine) enrich(s *Session, kind Enrichment, tok string, snap Snapshot) {
	if e.enricher == nil {
		s.update(e.now().UTC(), func(sn *Snapshot) { sn.setStatus(kind, StatusSkipped) })
		return
	}

	req := fivehints.EnrichmentRequest{Token: tok, Guesses: make([]string, 0, len(snap.WrongGuesses))}
	for _, g := range snap.WrongGuesses {
		req.Guesses = append(req.Guesses, g.Guess)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.inflight[kind] = done
	s.snap.setStatus(kind, StatusPending)
	parent := s.ctx
	s.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(done)

		ctx, cancel := context.WithTimeout(parent, e.timeout)
		defer cancel()

		start := time.Now()
		var (
			nudge    fivehints.Nudge
			analysis fivehints.Analysis
			err      error
		)
		switch kind {
		case EnrichmentNudge:
			nudge, err = e.enricher.Nudge(ctx, req)
		case EnrichmentAnalysis:
			analysis, err = e.enricher.Analyze(ctx, req)
		}

		log := e.logger.With("session_id", snap.ID, "kind", string(kind), "duration_ms", time.Since(start).Milliseconds())

		if s.Abandoned() {
			s.update(e.now().UTC(), func(sn *Snapshot) { sn.setStatus(kind, StatusCancelled) })
			log.Debug("enrichment discarded for abandoned session")
			return
		}

		next := s.update(e.now().UTC(), func(sn *Snapshot) {
			switch {
			case err != nil && timedOut(ctx, err):
				sn.setStatus(kind, StatusTimedOut)
			case err != nil:
				sn.setStatus(kind, StatusFailed)
			case kind == EnrichmentNudge:
				sn.Nudge = &nudge
				sn.setStatus(kind, StatusReady)
			default:
				sn.Analysis = &analysis
				sn.setStatus(kind, StatusReady)
			}
		})
		if err != nil {
			log.Warn("enrichment failed", "code", fivehints.CodeOf(err), "error", err)
		} else {
			log.Info("enrichment ready")
		}

		if e.notify != nil {
			e.notify(next.ID, kind, next)
		}
	}()
}

func (s *Snapshot) setStatus(kind Enrichment, st EnrichmentStatus) {
	switch kind {
	case EnrichmentNudge:
		s.NudgeStatus = st
	case EnrichmentAnalysis:
		s.AnalysisStatus = st
	}
}
