// Package fivehints defines the core domain types and the error taxonomy.
// It has no external dependencies.
package fivehints

import (
	"strings"
	"time"
)

// SchemaVersion is written as "ver" into every minted token.
const SchemaVersion = 1

// RevealGuess is the sentinel guess that makes the guess check return the
// canonical answer without matching.
const RevealGuess = "__reveal__"

type ChallengeType string

const (
	TypePerson ChallengeType = "person"
	TypePlace  ChallengeType = "place"
	TypeThing  ChallengeType = "thing"
)

func (t ChallengeType) Valid() bool {
	switch t {
	case TypePerson, TypePlace, TypeThing:
		return true
	}
	return false
}

// Challenge is the immutable puzzle definition embedded whole into a token.
// Field order and tags define the token payload layout.
type Challenge struct {
	ID         string        `json:"id"`
	Type       ChallengeType `json:"type"`
	Target     string        `json:"target"`
	Aliases    []string      `json:"aliases"`
	Hints      Hints         `json:"hints"`
	FameScore  int           `json:"fame_score"`
	CreatedAt  int64         `json:"createdAt"`
	Exp        int64         `json:"exp,omitempty"`
	IsDaily    bool          `json:"isDaily,omitempty"`
	Category   string        `json:"category,omitempty"`
	Difficulty string        `json:"difficulty,omitempty"`
}

// ExpiresAt returns the absolute expiry, or the zero time when unbounded.
func (c Challenge) ExpiresAt() time.Time {
	if c.Exp == 0 {
		return time.Time{}
	}
	return time.Unix(c.Exp, 0).UTC()
}

// Validate checks the structural invariants of an authored challenge.
// It does not check that aliases contain the normalized target; that is the
// authoring step's job since normalization lives in the match package.
func (c Challenge) Validate() error {
	switch {
	case c.ID == "":
		return Errorf(CodeValidation, "id is required")
	case !c.Type.Valid():
		return Errorf(CodeValidation, "type must be one of person, place, thing")
	case strings.TrimSpace(c.Target) == "":
		return Errorf(CodeValidation, "target is required")
	case len(c.Aliases) == 0:
		return Errorf(CodeValidation, "aliases must not be empty")
	case c.FameScore < 0 || c.FameScore > 5:
		return Errorf(CodeValidation, "fame_score must be between 0 and 5")
	}
	return c.Hints.Validate()
}

// Hints is the static three-layer hint bundle. Phases 4 and 5 are generated
// on demand and are not part of the challenge.
type Hints struct {
	Phase1 []string    `json:"phase1"`
	Phase2 string      `json:"phase2"`
	Phase3 Phase3Hints `json:"phase3"`
}

// Phase1Words is the exact number of words in the first hint layer.
const Phase1Words = 5

func (h Hints) Validate() error {
	if len(h.Phase1) != Phase1Words {
		return Errorf(CodeValidation, "hints.phase1 must have exactly %d words", Phase1Words)
	}
	for _, w := range h.Phase1 {
		if strings.TrimSpace(w) == "" {
			return Errorf(CodeValidation, "hints.phase1 words must not be blank")
		}
	}
	if strings.TrimSpace(h.Phase2) == "" {
		return Errorf(CodeValidation, "hints.phase2 is required")
	}
	for key, text := range h.Phase3.Entries() {
		if strings.TrimSpace(text) == "" {
			return Errorf(CodeValidation, "hints.phase3.%s is required", key)
		}
	}
	return nil
}

// Phase3Hints always carries exactly the five fixed category keys.
type Phase3Hints struct {
	Category   string `json:"category"`
	Era        string `json:"era"`
	Region     string `json:"region"`
	Notability string `json:"notability"`
	Connection string `json:"connection"`
}

// Entries returns the hints keyed by their wire name.
func (p Phase3Hints) Entries() map[string]string {
	return map[string]string{
		"category":   p.Category,
		"era":        p.Era,
		"region":     p.Region,
		"notability": p.Notability,
		"connection": p.Connection,
	}
}

// PublicChallenge is everything a client may see before the puzzle is over.
type PublicChallenge struct {
	ID        string        `json:"id"`
	Type      ChallengeType `json:"type"`
	Hints     Hints         `json:"hints"`
	Version   int           `json:"version"`
	ExpiresAt *int64        `json:"expires_at,omitempty"`
}

type Rank string

const (
	RankNone   Rank = ""
	RankGold   Rank = "Gold"
	RankSilver Rank = "Silver"
	RankBronze Rank = "Bronze"
)

// RankForPhase maps the phase active at the first correct guess to a rank.
func RankForPhase(phase int) Rank {
	switch {
	case phase <= 1:
		return RankGold
	case phase == 2:
		return RankSilver
	default:
		return RankBronze
	}
}

type Result string

const (
	ResultCorrect   Result = "correct"
	ResultIncorrect Result = "incorrect"
	ResultReveal    Result = "reveal"
)

// GuessCheck is one guess submitted against a token.
type GuessCheck struct {
	Token       string `json:"token"`
	Guess       string `json:"guess"`
	Phase       int    `json:"phase"`
	Fingerprint string `json:"player_fingerprint"`
}

// Verdict is the outcome of a guess check.
type Verdict struct {
	Result     Result  `json:"result"`
	Canonical  string  `json:"canonical,omitempty"`
	Suggestion string  `json:"suggestion,omitempty"`
	Similarity float64 `json:"similarity_score,omitempty"`
}

// GuessEvent is the immutable log record written for every evaluated guess.
type GuessEvent struct {
	ChallengeID string
	Guess       string
	Correct     bool
	Phase       int
	Fingerprint string
	At          time.Time
}

// EnrichmentRequest is sent to the content provider for phase 4 and 5
// enrichment. Target and Type are filled in only after the token verified.
type EnrichmentRequest struct {
	Token   string        `json:"token,omitempty"`
	Type    ChallengeType `json:"type,omitempty"`
	Target  string        `json:"target,omitempty"`
	Guesses []string      `json:"guesses"`
	Hints   *Hints        `json:"hints,omitempty"`
}

// Nudge is the phase 4 secondary hint.
type Nudge struct {
	Text     string   `json:"text"`
	Keywords []string `json:"keywords"`
}

// GuessScore rates one wrong guess against the target (0-100).
type GuessScore struct {
	Guess string `json:"guess"`
	Score int    `json:"score"`
	Note  string `json:"note,omitempty"`
}

// Analysis is the phase 5 analytical breakdown of all wrong guesses.
type Analysis struct {
	Summary string       `json:"summary"`
	Scores  []GuessScore `json:"scores"`
	Themes  []string     `json:"themes"`
}
