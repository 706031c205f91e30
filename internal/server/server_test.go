package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/playperu/fivehints/internal/database"
	"github.com/playperu/fivehints/internal/engine"
	"github.com/playperu/fivehints/internal/fivehints"
	"github.com/playperu/fivehints/internal/judge"
	"github.com/playperu/fivehints/internal/migrations"
	"github.com/playperu/fivehints/internal/token"
)

// gatedProvider answers enrichment calls once gate is closed (or at once
// when gate is nil).
type gatedProvider struct {
	gate chan struct{}
}

func (p *gatedProvider) wait(ctx context.Context) error {
	if p.gate == nil {
		return nil
	}
	select {
	case <-p.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *gatedProvider) Nudge(ctx context.Context, _ fivehints.EnrichmentRequest) (fivehints.Nudge, error) {
	if err := p.wait(ctx); err != nil {
		return fivehints.Nudge{}, err
	}
	return fivehints.Nudge{Text: "Think of the Seine.", Keywords: []string{"river"}}, nil
}

func (p *gatedProvider) Analyze(ctx context.Context, _ fivehints.EnrichmentRequest) (fivehints.Analysis, error) {
	if err := p.wait(ctx); err != nil {
		return fivehints.Analysis{}, err
	}
	return fivehints.Analysis{Summary: "Close on geography.", Scores: []fivehints.GuessScore{}, Themes: []string{}}, nil
}

type testEnv struct {
	srv    *Server
	store  *SQLStore
	codec  *token.Codec
	broker *Broker
}

func setupServer(t *testing.T, provider judge.Provider, tweak ...func(*Options)) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.Default()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := migrations.Run(ctx, db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := NewSQLStore(db)
	codec, err := token.NewCodec([]byte("server-test-secret-0123"))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	jopts := []judge.Option{judge.WithEventLog(store)}
	if provider != nil {
		jopts = append(jopts, judge.WithProvider(provider))
	}
	j := judge.New(codec, logger, jopts...)

	broker := NewBroker()
	eopts := []engine.Option{engine.WithNotifier(broker.Notify)}
	if provider != nil {
		eopts = append(eopts, engine.WithEnricher(j, 2*time.Second))
	}
	eng := engine.New(j, logger, eopts...)

	opts := Options{
		Store:             store,
		Codec:             codec,
		Judge:             j,
		Engine:            eng,
		Broker:            broker,
		PublicBaseURL:     "https://fivehints.test",
		PlayerTokenTTL:    7 * 24 * time.Hour,
		DailyWindow:       24 * time.Hour,
		EnrichmentTimeout: 2 * time.Second,
	}
	for _, fn := range tweak {
		fn(&opts)
	}

	srv := New(":0", logger, opts)
	t.Cleanup(func() { eng.Wait(context.Background()) })
	return &testEnv{srv: srv, store: store, codec: codec, broker: broker}
}

func parisChallenge() fivehints.Challenge {
	return fivehints.Challenge{
		ID:      "paris-1",
		Type:    fivehints.TypePlace,
		Target:  "Paris",
		Aliases: []string{"paris", "city of light"},
		Hints: fivehints.Hints{
			Phase1: []string{"river", "tower", "light", "fashion", "capital"},
			Phase2: "A capital on the Seine.",
			Phase3: fivehints.Phase3Hints{Category: "City", Era: "Ancient", Region: "Europe", Notability: "Tourism", Connection: "Eiffel"},
		},
		FameScore: 5,
		CreatedAt: 1700000000,
	}
}

func (e *testEnv) mint(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := e.codec.Mint(parisChallenge(), exp)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestResolve(t *testing.T) {
	env := setupServer(t, nil)
	valid := env.mint(t, time.Now().Add(time.Hour))
	expired := env.mint(t, time.Now().Add(-time.Hour))

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   fivehints.Code
	}{
		{"post", http.MethodPost, "/api/resolve", ResolveRequest{Token: valid}, http.StatusOK, ""},
		{"get", http.MethodGet, "/api/resolve?token=" + valid, nil, http.StatusOK, ""},
		{"missing token", http.MethodPost, "/api/resolve", ResolveRequest{}, http.StatusBadRequest, fivehints.CodeValidation},
		{"garbage", http.MethodPost, "/api/resolve", ResolveRequest{Token: "a.b.c"}, http.StatusUnauthorized, fivehints.CodeAuthInvalid},
		{"expired", http.MethodPost, "/api/resolve", ResolveRequest{Token: expired}, http.StatusUnauthorized, fivehints.CodeAuthExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" {
				if got := decode[ErrorResponse](t, rec); got.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
				}
				return
			}
			if bytes.Contains(rec.Body.Bytes(), []byte("Paris")) || bytes.Contains(rec.Body.Bytes(), []byte("aliases")) {
				t.Errorf("public view leaks the answer: %s", rec.Body.String())
			}
			view := decode[fivehints.PublicChallenge](t, rec)
			if view.ID != "paris-1" || view.Version != fivehints.SchemaVersion || view.ExpiresAt == nil {
				t.Errorf("view = %+v", view)
			}
		})
	}
}

func TestGuessEndpoint(t *testing.T) {
	env := setupServer(t, nil)
	tok := env.mint(t, time.Now().Add(time.Hour))

	tests := []struct {
		name      string
		req       fivehints.GuessCheck
		want      fivehints.Result
		canonical string
	}{
		{"wrong", fivehints.GuessCheck{Token: tok, Guess: "London", Phase: 1, Fingerprint: "fp-1"}, fivehints.ResultIncorrect, ""},
		{"right", fivehints.GuessCheck{Token: tok, Guess: "paris", Phase: 2, Fingerprint: "fp-1"}, fivehints.ResultCorrect, "Paris"},
		{"reveal", fivehints.GuessCheck{Token: tok, Guess: fivehints.RevealGuess, Phase: 5}, fivehints.ResultReveal, "Paris"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/guess", tt.req)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			v := decode[fivehints.Verdict](t, rec)
			if v.Result != tt.want || v.Canonical != tt.canonical {
				t.Errorf("verdict = %+v", v)
			}
		})
	}

	rec := env.do(t, http.MethodGet, "/api/challenges/paris-1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	st := decode[ChallengeStats](t, rec)
	if st.Guesses != 2 || st.Players != 1 || st.SolvesByRank["Silver"] != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestEnrichmentEndpoints(t *testing.T) {
	tok := ""

	t.Run("configured", func(t *testing.T) {
		env := setupServer(t, &gatedProvider{})
		tok = env.mint(t, time.Now().Add(time.Hour))
		rec := env.do(t, http.MethodPost, "/api/nudge", fivehints.EnrichmentRequest{Token: tok, Guesses: []string{"london"}})
		if rec.Code != http.StatusOK {
			t.Fatalf("nudge status = %d: %s", rec.Code, rec.Body.String())
		}
		if n := decode[fivehints.Nudge](t, rec); n.Text == "" {
			t.Error("empty nudge")
		}
		rec = env.do(t, http.MethodPost, "/api/analysis", fivehints.EnrichmentRequest{Token: tok})
		if rec.Code != http.StatusOK {
			t.Fatalf("analysis status = %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("no provider", func(t *testing.T) {
		env := setupServer(t, nil)
		rec := env.do(t, http.MethodPost, "/api/nudge", fivehints.EnrichmentRequest{Token: tok})
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rec.Code)
		}
		if got := decode[ErrorResponse](t, rec); got.Code != fivehints.CodeUpstreamFailure {
			t.Errorf("code = %q", got.Code)
		}
	})
}

func TestRateLimit(t *testing.T) {
	env := setupServer(t, nil, func(o *Options) { o.GuessRateLimit = 2 })
	tok := env.mint(t, time.Now().Add(time.Hour))
	req := fivehints.GuessCheck{Token: tok, Guess: "London", Phase: 1}

	for i := range 2 {
		if rec := env.do(t, http.MethodPost, "/api/guess", req); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}
	rec := env.do(t, http.MethodPost, "/api/guess", req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if got := decode[ErrorResponse](t, rec); got.Code != fivehints.CodeRateLimited {
		t.Errorf("code = %q", got.Code)
	}
}

func TestRateLimitIgnoresFingerprint(t *testing.T) {
	env := setupServer(t, nil, func(o *Options) { o.GuessRateLimit = 2 })
	tok := env.mint(t, time.Now().Add(time.Hour))
	body, err := json.Marshal(fivehints.GuessCheck{Token: tok, Guess: "London", Phase: 1})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		fingerprint string
		wantStatus  int
	}{
		{"fp-a", http.StatusOK},
		{"fp-b", http.StatusOK},
		{"fp-c", http.StatusTooManyRequests},
		{"", http.StatusTooManyRequests},
	}
	for i, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/guess", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if tt.fingerprint != "" {
			req.Header.Set(fingerprintHeader, tt.fingerprint)
		}
		rec := httptest.NewRecorder()
		env.srv.Handler().ServeHTTP(rec, req)
		if rec.Code != tt.wantStatus {
			t.Errorf("request %d (%q): status = %d, want %d", i+1, tt.fingerprint, rec.Code, tt.wantStatus)
		}
	}
}

func TestOpenAPI(t *testing.T) {
	env := setupServer(t, nil)

	rec := env.do(t, http.MethodGet, "/openapi.json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, path := range []string{`"/healthz"`, `"/api/guess"`, `"/api/play/guess"`, `"/api/c/{code}"`} {
		if !bytes.Contains([]byte(body), []byte(path)) {
			t.Errorf("spec missing %s", path)
		}
	}

	rec = env.do(t, http.MethodGet, "/docs/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("docs status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("/openapi.json")) {
		t.Error("docs page does not reference /openapi.json")
	}
}
