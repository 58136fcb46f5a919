package iam

import "github.com/ZargorNET/sponsormanager/internal/auth"

// RequireAdmin passes p through unchanged when it holds ADMIN and fails
// with KindForbidden otherwise. The origin of p plays no part.
func RequireAdmin(p auth.Principal) (auth.Principal, error) {
	if !p.IsAdmin() {
		return auth.Principal{}, newError(KindForbidden, msgForbidden, nil)
	}
	return p, nil
}
