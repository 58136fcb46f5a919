package auth

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the only error Verify returns. Expired, tampered and
// malformed tokens are indistinguishable to callers.
var ErrInvalidToken = errors.New("invalid token")

// sessionClaims is the wire representation of a Principal. It is kept apart
// from Principal so the token schema can grow without touching callers.
type sessionClaims struct {
	Email string `json:"email"`
	DN    string `json:"dn"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func claimsFromPrincipal(p Principal) sessionClaims {
	return sessionClaims{
		Email: p.Email(),
		DN:    p.Origin(),
		Role:  string(p.Role()),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject(),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt()),
		},
	}
}

func (c sessionClaims) principal() (Principal, error) {
	if c.Email == "" || c.ExpiresAt == nil {
		return Principal{}, fmt.Errorf("incomplete claims")
	}
	role, err := ParseRole(c.Role)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(c.Subject, c.Email, c.DN, role, c.ExpiresAt.Time), nil
}

// TokenCodec signs and verifies session tokens with HS512 and a single
// process-wide secret.
type TokenCodec struct {
	key    []byte
	clock  clock.Clock
	parser *jwt.Parser
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithCodecClock sets the clock used for expiry checks.
func WithCodecClock(c clock.Clock) CodecOption {
	return func(tc *TokenCodec) {
		if c != nil {
			tc.clock = c
		}
	}
}

// NewTokenCodec creates a codec. The secret is copied; later changes to the
// caller's slice do not affect issued or verified tokens.
func NewTokenCodec(secret []byte, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	tc := &TokenCodec{
		key:   append([]byte(nil), secret...),
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(tc)
	}
	tc.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tc.clock.Now),
	)
	return tc, nil
}

// Issue serializes p into a signed token. The expiry embedded in p is used as
// is; no issued-at or other clock-derived claim is added, so the output is
// deterministic for a given principal and key.
func (c *TokenCodec) Issue(p Principal) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claimsFromPrincipal(p))
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, structure and expiry and maps the claims back to
// a Principal. Every failure returns ErrInvalidToken.
func (c *TokenCodec) Verify(token string) (Principal, error) {
	var claims sessionClaims
	_, err := c.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	p, err := claims.principal()
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}
