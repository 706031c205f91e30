package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/playperu/fivehints/internal/engine"
	"github.com/playperu/fivehints/internal/fivehints"
)

func (e *testEnv) start(t *testing.T, tok string) engine.Snapshot {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/play/start", PlayStartRequest{Token: tok})
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	return decode[PlayStartResponse](t, rec).Session
}

func (e *testEnv) guess(t *testing.T, tok string, snap engine.Snapshot, guess string) engine.Outcome {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/play/guess", PlayGuessRequest{Token: tok, Session: snap, Guess: guess, Fingerprint: "fp-play"})
	if rec.Code != http.StatusOK {
		t.Fatalf("guess %q status = %d: %s", guess, rec.Code, rec.Body.String())
	}
	return decode[engine.Outcome](t, rec)
}

func TestPlayFlow(t *testing.T) {
	env := setupServer(t, nil)
	tok := env.mint(t, time.Now().Add(time.Hour))

	snap := env.start(t, tok)
	if snap.Phase != 1 || snap.State != engine.StatePlaying || snap.ID == "" {
		t.Fatalf("start snapshot = %+v", snap)
	}

	out := env.guess(t, tok, snap, "London")
	if out.Result != fivehints.ResultIncorrect || out.Snapshot.Phase != 2 {
		t.Fatalf("after miss: %+v", out)
	}

	out = env.guess(t, tok, out.Snapshot, "Paris")
	if out.Result != fivehints.ResultCorrect {
		t.Fatalf("result = %q", out.Result)
	}
	if out.Snapshot.State != engine.StateSolved || out.Snapshot.Rank != fivehints.RankSilver || out.Snapshot.Canonical != "Paris" {
		t.Errorf("solved snapshot = %+v", out.Snapshot)
	}

	out = env.guess(t, tok, out.Snapshot, "Paris")
	if !out.Ignored {
		t.Errorf("guess after solve not ignored: %+v", out)
	}
}

func TestPlayConfirm(t *testing.T) {
	env := setupServer(t, nil)
	tok := env.mint(t, time.Now().Add(time.Hour))

	out := env.guess(t, tok, env.start(t, tok), "Pariss")
	if out.Snapshot.State != engine.StateConfirming || out.Suggestion == "" {
		t.Fatalf("expected a suggestion, got %+v", out)
	}

	rec := env.do(t, http.MethodPost, "/api/play/confirm", PlayConfirmRequest{Token: tok, Session: out.Snapshot, Accept: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[engine.Outcome](t, rec)
	if got.Snapshot.State != engine.StateSolved || got.Snapshot.Rank != fivehints.RankGold {
		t.Errorf("after confirm: %+v", got.Snapshot)
	}
}

func TestPlayRejectsBadSessions(t *testing.T) {
	env := setupServer(t, nil)
	tok := env.mint(t, time.Now().Add(time.Hour))
	snap := env.start(t, tok)

	mismatched := snap
	mismatched.ChallengeID = "other"
	tampered := snap
	tampered.Phase = 9

	tests := []struct {
		name       string
		snap       engine.Snapshot
		tok        string
		wantStatus int
	}{
		{"other challenge", mismatched, tok, http.StatusBadRequest},
		{"invalid phase", tampered, tok, http.StatusBadRequest},
		{"bad token", snap, "nope.nope.nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/play/guess", PlayGuessRequest{Token: tt.tok, Session: tt.snap, Guess: "London"})
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestPlayConcurrentRequestConflict(t *testing.T) {
	env := setupServer(t, nil)
	tok := env.mint(t, time.Now().Add(time.Hour))
	snap := env.start(t, tok)

	if !env.srv.sessions.Acquire(snap.ID) {
		t.Fatal("Acquire failed on an idle session")
	}
	rec := env.do(t, http.MethodPost, "/api/play/guess", PlayGuessRequest{Token: tok, Session: snap, Guess: "London"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	env.srv.sessions.Release(snap.ID)
	if out := env.guess(t, tok, snap, "London"); out.Snapshot.Phase != 2 {
		t.Errorf("phase after release = %d", out.Snapshot.Phase)
	}
}

// missToPhase4 plays three wrong guesses, which starts the nudge call.
func missToPhase4(t *testing.T, env *testEnv, tok string, snap engine.Snapshot) engine.Outcome {
	t.Helper()
	var out engine.Outcome
	for _, g := range []string{"London", "Rome", "Berlin"} {
		out = env.guess(t, tok, snap, g)
		snap = out.Snapshot
	}
	if out.Snapshot.Phase != 4 || out.Enrichment != engine.EnrichmentNudge {
		t.Fatalf("after three misses: %+v", out)
	}
	if out.Snapshot.NudgeStatus != engine.StatusPending {
		t.Fatalf("nudge status = %q, want pending", out.Snapshot.NudgeStatus)
	}
	return out
}

func TestEnrichmentOverWebSocket(t *testing.T) {
	provider := &gatedProvider{gate: make(chan struct{})}
	env := setupServer(t, provider)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	tok := env.mint(t, time.Now().Add(time.Hour))
	snap := env.start(t, tok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/play/sessions/" + snap.ID + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// The subscription is registered after the handshake; give it a moment.
	time.Sleep(50 * time.Millisecond)

	missToPhase4(t, env, tok, snap)
	close(provider.gate)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev EnrichmentEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if ev.Kind != engine.EnrichmentNudge || ev.Status != engine.StatusReady {
		t.Errorf("event = %+v", ev)
	}
	if ev.Session.Nudge == nil || ev.Session.Nudge.Text == "" {
		t.Errorf("event carries no nudge: %+v", ev.Session)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestEnrichmentOverSSE(t *testing.T) {
	provider := &gatedProvider{gate: make(chan struct{})}
	env := setupServer(t, provider)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	tok := env.mint(t, time.Now().Add(time.Hour))
	snap := env.start(t, tok)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/play/sessions/"+snap.ID+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	missToPhase4(t, env, tok, snap)
	close(provider.gate)

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev EnrichmentEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decoding event: %v", err)
		}
		if ev.Status != engine.StatusReady || ev.SessionID != snap.ID {
			t.Errorf("event = %+v", ev)
		}
		return
	}
	t.Fatalf("stream ended without an event: %v", sc.Err())
}

func TestAbandonCancelsEnrichment(t *testing.T) {
	provider := &gatedProvider{gate: make(chan struct{})}
	env := setupServer(t, provider)
	tok := env.mint(t, time.Now().Add(time.Hour))

	out := missToPhase4(t, env, tok, env.start(t, tok))
	ch := env.broker.Subscribe(out.Snapshot.ID)
	defer env.broker.Unsubscribe(out.Snapshot.ID, ch)

	rec := env.do(t, http.MethodDelete, "/api/play/sessions/"+out.Snapshot.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[AbandonResponse](t, rec); !got.InFlight {
		t.Errorf("abandon reported nothing in flight")
	}

	// The provider unblocks on cancellation; nothing may be published.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.srv.engine.Wait(ctx); err != nil {
		t.Fatalf("enrichment still running: %v", err)
	}
	select {
	case data := <-ch:
		t.Errorf("event published after abandon: %s", data)
	default:
	}

	rec = env.do(t, http.MethodDelete, "/api/play/sessions/"+out.Snapshot.ID, nil)
	if got := decode[AbandonResponse](t, rec); got.InFlight {
		t.Error("second abandon reported work in flight")
	}
}
