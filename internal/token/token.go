// Package token mints and verifies the signed challenge credential.
//
// A token is the JWT compact serialization of an HS256-signed payload:
//
//	base64url(header) "." base64url(payload) "." base64url(hmac_sha256(header.payload))
//
// with RFC 4648 §5 encoding and no padding. The header is always
// {"alg":"HS256","typ":"JWT"}. Header and payload bytes are built here so they
// stay identical to tokens issued before this service existed; only the
// HS256 signature comes from golang-jwt.
package token

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/playperu/fivehints/internal/fivehints"
)

const headerJSON = `{"alg":"HS256","typ":"JWT"}`

var (
	// ErrMissingSecret is a configuration error: the codec cannot sign.
	ErrMissingSecret = errors.New("token secret is not configured")

	encodedHeader = b64.EncodeToString([]byte(headerJSON))
	b64           = base64.RawURLEncoding
)

// Payload is the signed body: the schema version followed by the challenge.
type Payload struct {
	Version int `json:"ver"`
	fivehints.Challenge
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// Codec signs and verifies tokens with one injected secret. It holds no
// mutable state and is safe for concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
}

type Option func(*Codec)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	c := &Codec{
		secret: bytes.Clone(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mint signs ch into a token. A non-zero exp overrides ch.Exp. The output is
// deterministic for identical inputs.
func (c *Codec) Mint(ch fivehints.Challenge, exp time.Time) (string, error) {
	if !exp.IsZero() {
		ch.Exp = exp.Unix()
	}
	if err := ch.Validate(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Payload{Version: fivehints.SchemaVersion, Challenge: ch}); err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	payload := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))

	signingInput := encodedHeader + "." + b64.EncodeToString(payload)
	sig, err := jwt.SigningMethodHS256.Sign(signingInput, c.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signingInput + "." + b64.EncodeToString(sig), nil
}

// Verify checks structure, signature and expiry and returns the payload.
// Failures are always *fivehints.Error with AUTH_INVALID or AUTH_EXPIRED.
func (c *Codec) Verify(raw string) (Payload, error) {
	parts, err := segments(raw)
	if err != nil {
		return Payload{}, err
	}

	headerBytes, err := decodeSegment(parts[0])
	if err != nil {
		return Payload{}, invalid("malformed header")
	}
	var h header
	if err := json.Unmarshal(headerBytes, &h); err != nil || h.Alg != "HS256" {
		return Payload{}, invalid("unsupported header")
	}

	sig, err := decodeSegment(parts[2])
	if err != nil {
		return Payload{}, invalid("malformed signature")
	}
	if jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, c.secret) != nil {
		return Payload{}, invalid("signature mismatch")
	}

	p, err := decodePayload(parts[1])
	if err != nil {
		return Payload{}, err
	}

	if p.Exp != 0 && c.now().Unix() >= p.Exp {
		return Payload{}, fivehints.Errorf(fivehints.CodeAuthExpired, "token expired")
	}
	return p, nil
}

// Decode reads the payload without checking the signature or expiry. It is
// for operator tooling only; nothing it returns may be trusted.
func Decode(raw string) (Payload, error) {
	parts, err := segments(raw)
	if err != nil {
		return Payload{}, err
	}
	return decodePayload(parts[1])
}

// segments undoes one round of percent-encoding and splits the token.
func segments(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "%") {
		if unescaped, err := url.PathUnescape(raw); err == nil {
			raw = unescaped
		}
	}
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, invalid("token must have 3 segments")
	}
	return parts, nil
}

func decodePayload(seg string) (Payload, error) {
	b, err := decodeSegment(seg)
	if err != nil {
		return Payload{}, invalid("malformed payload")
	}
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, invalid("malformed payload")
	}
	return p, nil
}

// PublicView strips the answer and aliases. It is the only shape of a
// challenge that may be sent to a client before the game is over.
func PublicView(p Payload) fivehints.PublicChallenge {
	v := fivehints.PublicChallenge{
		ID:      p.ID,
		Type:    p.Type,
		Hints:   p.Hints,
		Version: p.Version,
	}
	if p.Exp != 0 {
		exp := p.Exp
		v.ExpiresAt = &exp
	}
	return v
}

// decodeSegment accepts padded input too; some clients re-pad segments.
func decodeSegment(s string) ([]byte, error) {
	return b64.DecodeString(strings.TrimRight(s, "="))
}

func invalid(msg string) error {
	return fivehints.Errorf(fivehints.CodeAuthInvalid, "%s", msg)
}
