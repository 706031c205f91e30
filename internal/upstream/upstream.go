// Package upstream talks to the external content provider that answers
// semantic-equivalence questions and writes phase 4 and 5 enrichment.
// Prompting is the provider's business; this client only moves validated
// JSON across the boundary.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/playperu/fivehints/internal/fivehints"
)

const maxResponseBytes = 1 << 20

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// New returns a client for the provider at baseURL. Per-call deadlines come
// from the caller's context.
func New(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 2 * time.Minute},
		logger:  logger,
	}
}

type equivalenceRequest struct {
	Guess  string                  `json:"guess"`
	Target string                  `json:"target"`
	Type   fivehints.ChallengeType `json:"type"`
}

type equivalenceResponse struct {
	Equivalent *bool `json:"equivalent"`
}

// Equivalent asks whether guess is a valid way to refer to target.
func (c *Client) Equivalent(ctx context.Context, guess, target string, typ fivehints.ChallengeType) (bool, error) {
	var resp equivalenceResponse
	if err := c.post(ctx, "/equivalence", equivalenceRequest{Guess: guess, Target: target, Type: typ}, &resp); err != nil {
		return false, err
	}
	if resp.Equivalent == nil {
		return false, fivehints.Errorf(fivehints.CodeUpstreamFailure, "equivalence response missing verdict")
	}
	return *resp.Equivalent, nil
}

type nudgeResponse struct {
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
}

// Nudge requests the phase 4 secondary hint.
func (c *Client) Nudge(ctx context.Context, req fivehints.EnrichmentRequest) (fivehints.Nudge, error) {
	var resp nudgeResponse
	if err := c.post(ctx, "/nudge", req, &resp); err != nil {
		return fivehints.Nudge{}, err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return fivehints.Nudge{}, fivehints.Errorf(fivehints.CodeUpstreamFailure, "nudge response missing text")
	}
	return fivehints.Nudge{Text: text, Keywords: nonBlank(resp.Keywords)}, nil
}

type analysisResponse struct {
	Summary string `json:"summary"`
	Scores  []struct {
		Guess string   `json:"guess"`
		Score *float64 `json:"score"`
		Note  string   `json:"note"`
	} `json:"scores"`
	Themes []string `json:"themes"`
}

// Analyze requests the phase 5 breakdown of all wrong guesses.
func (c *Client) Analyze(ctx context.Context, req fivehints.EnrichmentRequest) (fivehints.Analysis, error) {
	var resp analysisResponse
	if err := c.post(ctx, "/analysis", req, &resp); err != nil {
		return fivehints.Analysis{}, err
	}
	summary := strings.TrimSpace(resp.Summary)
	if summary == "" {
		return fivehints.Analysis{}, fivehints.Errorf(fivehints.CodeUpstreamFailure, "analysis response missing summary")
	}

	a := fivehints.Analysis{
		Summary: summary,
		Scores:  []fivehints.GuessScore{},
		Themes:  nonBlank(resp.Themes),
	}
	for _, s := range resp.Scores {
		guess := strings.TrimSpace(s.Guess)
		if guess == "" {
			continue
		}
		score := 0
		if s.Score != nil {
			score = int(min(max(*s.Score, 0), 100))
		}
		a.Scores = append(a.Scores, fivehints.GuessScore{Guess: guess, Score: score, Note: strings.TrimSpace(s.Note)})
	}
	return a, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fivehints.Wrap(fivehints.CodeUpstreamTimeout, "content provider timed out", err)
		}
		return fivehints.Wrap(fivehints.CodeUpstreamFailure, "content provider unreachable", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("upstream call",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return fivehints.Errorf(fivehints.CodeUpstreamFailure, "content provider returned %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fivehints.Wrap(fivehints.CodeUpstreamFailure, "decoding content provider response", err)
	}
	return nil
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
