// Package iam is the single entry point the HTTP layer uses for identity.
//
// It provides:
//
//   - Bearer authentication of session tokens
//   - Password login against the configured directory
//   - Federated (OIDC) login through the identity broker
//   - The admin guard and admin-set management
//
// Request Flow:
//
//	Authorization header → Service.Authenticate() → TokenCodec.Verify → auth.Principal
//	       ↓
//	   Handler → RequireAdmin(principal) (only on admin endpoints)
//
// Every failure is returned as *Error, whose Kind decides the HTTP status.
// Roles are resolved once, when a token is minted, and travel inside it.
package iam
