package iam

import (
	"context"
	"time"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/directory"
	"github.com/ZargorNET/sponsormanager/internal/repository"
	"github.com/ZargorNET/sponsormanager/internal/sessioncache"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Service provides every identity operation the HTTP layer needs.
type Service interface {
	// =========================================================================
	// Authentication (request path)
	// =========================================================================

	// Authenticate verifies the raw Authorization header value.
	//
	// Returns:
	//   - KindUnauthorized when the header is absent
	//   - KindBadRequest when it is not exactly "Bearer <token>" or the
	//     token fails verification (expired and tampered look the same)
	Authenticate(headerValue string) (auth.Principal, error)

	// =========================================================================
	// Login flows (control plane)
	// =========================================================================

	// LoginDirectory checks email and password against the directory and
	// returns a signed session token.
	//
	// Returns:
	//   - KindNotFound when the directory has no such email
	//   - KindUnauthorized when the password is wrong
	//   - KindInternal when the directory is unavailable
	LoginDirectory(ctx context.Context, email, password string) (string, error)

	// LoginFederatedBegin returns the identity provider URL to redirect to.
	LoginFederatedBegin(ctx context.Context) (string, error)

	// LoginFederatedComplete finishes the flow identified by state and
	// returns a signed session token. A state is accepted once.
	LoginFederatedComplete(ctx context.Context, code, state string) (string, error)

	// =========================================================================
	// Admin management
	// =========================================================================

	// ListAdmins returns the emails holding ADMIN, sorted.
	ListAdmins(ctx context.Context) ([]string, error)

	// UpdateAdmins makes admins the exact admin set, attributing the change
	// to actor. The caller must already hold ADMIN.
	UpdateAdmins(ctx context.Context, actor auth.Principal, admins []string) (repository.AdminDiff, error)

	// =========================================================================
	// Lifecycle
	// =========================================================================

	// Health probes the directory and the session cache.
	Health(ctx context.Context) error

	// Close stops the session cache. Only the first call has any effect.
	Close() error
}

// TokenCodec issues and verifies session tokens.
type TokenCodec interface {
	Issue(p auth.Principal) (string, error)
	Verify(token string) (auth.Principal, error)
}

// FederatedBroker runs the OIDC authorization-code flow.
type FederatedBroker interface {
	BeginFlow(ctx context.Context) (string, error)
	CompleteFlow(ctx context.Context, code, state string) (auth.Principal, error)
}

// LoginRecorder observes login outcomes. Method is "directory" or
// "federated"; outcome is "success" or the failing Kind.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, method, outcome string)
}

// DefaultTokenTTL is the lifetime of tokens minted by LoginDirectory.
const DefaultTokenTTL = 24 * time.Hour

// ServiceDependencies holds all collaborators required by the IAM service.
type ServiceDependencies struct {
	Codec     TokenCodec
	Directory directory.Directory
	Roles     repository.RoleDirectory

	// Broker is nil when federated login is disabled.
	Broker FederatedBroker

	// Cache backs the broker's pending requests. The service owns it and
	// closes it on Close.
	Cache sessioncache.Store

	Recorder LoginRecorder
	Clock    clock.Clock
	Logger   *zap.SugaredLogger
	TokenTTL time.Duration
}
