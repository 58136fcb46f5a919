package repository

import (
	"context"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/db/models"
)

// RoleDirectory persists email → role assignments.
type RoleDirectory interface {
	// GetRole returns ok=false when the email has no role record.
	GetRole(ctx context.Context, email string) (role auth.Role, ok bool, err error)
	// UpsertRole creates or replaces the role for email.
	UpsertRole(ctx context.Context, email string, role auth.Role) error
	// ListAdmins returns all ADMIN records ordered by email.
	ListAdmins(ctx context.Context) ([]models.UserRole, error)
	// ReplaceAdmins makes admins the exact admin set. Added emails become
	// ADMIN, removed ones are demoted to USER, and one change row per
	// difference is attributed to actor. All of it happens in one transaction.
	ReplaceAdmins(ctx context.Context, actor string, admins []string) (AdminDiff, error)
}

// AdminDiff lists the emails affected by ReplaceAdmins.
type AdminDiff struct {
	Added   []string
	Removed []string
}

// ChangeRepository reads and writes the change log.
type ChangeRepository interface {
	Create(ctx context.Context, change *models.Change) error
	ListRecent(ctx context.Context, limit int) ([]models.Change, error)
}
