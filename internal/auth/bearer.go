package auth

import (
	"errors"
	"strings"
)

const bearerPrefix = "Bearer "

var (
	// ErrMissingCredentials is returned when no Authorization header was sent.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrMalformedHeader is returned when the header is not exactly "Bearer <token>".
	ErrMalformedHeader = errors.New("malformed authorization header")
)

// ParseBearer extracts the token from an Authorization header value.
// The scheme is matched case-sensitively and exactly one space must follow it.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingCredentials
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMalformedHeader
	}
	token := header[len(bearerPrefix):]
	if token == "" || strings.ContainsAny(token, " \t\r\n") {
		return "", ErrMalformedHeader
	}
	return token, nil
}
