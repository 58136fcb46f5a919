// Package directory resolves login subjects and verifies their passwords.
//
// Two sources implement the same contract: an LDAP client that delegates
// password checks to a simple bind, and a static list of bcrypt-hashed
// identities used for development and tests.
package directory

import (
	"context"
	"errors"
)

// ErrUnavailable marks connection, bind or search failures of the directory
// itself. It is never used for "no such user" or "wrong password".
var ErrUnavailable = errors.New("directory unavailable")

// Subject is a directory entry matched by email.
type Subject struct {
	// DN is the distinguished name used for the credential bind.
	DN string
	// CN is the display name.
	CN string
	// Email is the address the subject was looked up by.
	Email string
}

// Directory is implemented by every identity source that supports password login.
type Directory interface {
	// Lookup returns (nil, nil) when no entry matches.
	Lookup(ctx context.Context, email string) (*Subject, error)
	// VerifyCredentials returns (false, nil) for a wrong password and wraps
	// ErrUnavailable for everything else that goes wrong.
	VerifyCredentials(ctx context.Context, subject Subject, password string) (bool, error)
	// Ping checks that the directory is reachable.
	Ping(ctx context.Context) error
}
