package iam

import (
	"errors"

	"github.com/ZargorNET/sponsormanager/internal/auth"
)

// authenticateBearer turns an Authorization header value into a principal.
//
// Return values:
//   - (principal, nil): token verified
//   - KindUnauthorized: header absent
//   - KindBadRequest: header malformed, or token invalid or expired
func authenticateBearer(codec TokenCodec, headerValue string) (auth.Principal, error) {
	token, err := auth.ParseBearer(headerValue)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		return auth.Principal{}, newError(KindUnauthorized, msgUnauthorized, nil)
	case err != nil:
		return auth.Principal{}, newError(KindBadRequest, msgInvalidHeader, err)
	}

	principal, err := codec.Verify(token)
	if err != nil {
		return auth.Principal{}, newError(KindBadRequest, msgInvalidHeader, err)
	}
	return principal, nil
}
