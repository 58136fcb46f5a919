package iam

import "github.com/ZargorNET/sponsormanager/internal/auth"

// PrincipalView is the JSON shape of a principal returned by whoami.
type PrincipalView struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	DN    string `json:"dn"`
	Role  string `json:"role"`
	Exp   int64  `json:"exp"`
}

// ViewOf renders p for clients.
func ViewOf(p auth.Principal) PrincipalView {
	return PrincipalView{
		Sub:   p.Subject(),
		Email: p.Email(),
		DN:    p.Origin(),
		Role:  string(p.Role()),
		Exp:   p.ExpiresAt().Unix(),
	}
}
