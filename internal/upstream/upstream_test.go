package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/playperu/fivehints/internal/fivehints"
)

func provider(t *testing.T, routes map[string]string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("authorization = %q", got)
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "k", slog.Default())
}

func TestEquivalent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    bool
		wantErr error
	}{
		{"yes", `{"equivalent":true}`, true, nil},
		{"no", `{"equivalent":false}`, false, nil},
		{"missing verdict", `{}`, false, fivehints.ErrUpstreamFailure},
		{"garbage", `not json`, false, fivehints.ErrUpstreamFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := provider(t, map[string]string{"/equivalence": tt.body})
			got, err := c.Equivalent(context.Background(), "JFK", "John F. Kennedy", fivehints.TypePerson)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Equivalent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNudgeValidation(t *testing.T) {
	c := provider(t, map[string]string{"/nudge": `{"text":"  Think iron.  ","keywords":["iron"," ",""]}`})
	n, err := c.Nudge(context.Background(), fivehints.EnrichmentRequest{Guesses: []string{"london"}})
	if err != nil {
		t.Fatalf("Nudge: %v", err)
	}
	if n.Text != "Think iron." || len(n.Keywords) != 1 {
		t.Errorf("nudge = %+v", n)
	}

	c = provider(t, map[string]string{"/nudge": `{"keywords":["x"]}`})
	if _, err := c.Nudge(context.Background(), fivehints.EnrichmentRequest{}); !errors.Is(err, fivehints.ErrUpstreamFailure) {
		t.Fatalf("missing text: err = %v", err)
	}
}

func TestAnalyzeDefaultsAndClamps(t *testing.T) {
	c := provider(t, map[string]string{"/analysis": `{
		"summary": "Close on geography.",
		"scores": [{"guess":"london","score":140},{"guess":"","score":3},{"guess":"rome"}]
	}`})
	a, err := c.Analyze(context.Background(), fivehints.EnrichmentRequest{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Themes == nil {
		t.Error("themes should default to an empty slice")
	}
	if len(a.Scores) != 2 || a.Scores[0].Score != 100 || a.Scores[1].Score != 0 {
		t.Errorf("scores = %+v", a.Scores)
	}
	if data, _ := json.Marshal(a); string(data) == "" {
		t.Error("analysis must marshal")
	}
}

func TestProviderErrors(t *testing.T) {
	c := provider(t, nil)
	if _, err := c.Nudge(context.Background(), fivehints.EnrichmentRequest{}); !errors.Is(err, fivehints.ErrUpstreamFailure) {
		t.Fatalf("500: err = %v, want UPSTREAM_FAILURE", err)
	}

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	sc := New(slow.URL, "", slog.Default())
	if _, err := sc.Analyze(ctx, fivehints.EnrichmentRequest{}); !errors.Is(err, fivehints.ErrUpstreamTimeout) {
		t.Fatalf("slow provider: err = %v, want UPSTREAM_TIMEOUT", err)
	}
}
