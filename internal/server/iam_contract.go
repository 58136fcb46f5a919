package server

import (
	"context"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/repository"
	"github.com/ZargorNET/sponsormanager/internal/services/iam"
)

// iamService defines the exact IAM methods used by server handlers.
type iamService interface {
	Authenticate(headerValue string) (auth.Principal, error)
	LoginDirectory(ctx context.Context, email, password string) (string, error)
	LoginFederatedBegin(ctx context.Context) (string, error)
	LoginFederatedComplete(ctx context.Context, code, state string) (string, error)
	ListAdmins(ctx context.Context) ([]string, error)
	UpdateAdmins(ctx context.Context, actor auth.Principal, admins []string) (repository.AdminDiff, error)
}

var _ iamService = (iam.Service)(nil)
