package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/db/bunx"
	"github.com/ZargorNET/sponsormanager/internal/db/models"
	"github.com/uptrace/bun"
)

// ========================================
// Role Directory
// ========================================

// BunRoleRepository implements RoleDirectory using Bun ORM
type BunRoleRepository struct {
	db *bun.DB
}

// NewBunRoleRepository creates a new Bun-based role directory
func NewBunRoleRepository(db *bun.DB) *BunRoleRepository {
	return &BunRoleRepository{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetRole retrieves the role recorded for email
func (r *BunRoleRepository) GetRole(ctx context.Context, email string) (auth.Role, bool, error) {
	rec := new(models.UserRole)
	err := r.db.NewSelect().
		Model(rec).
		Where("email = ?", normalizeEmail(email)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get role: %w", err)
	}
	role, err := auth.ParseRole(rec.Role)
	if err != nil {
		return "", false, fmt.Errorf("get role: %w", err)
	}
	return role, true, nil
}

// UpsertRole inserts or updates the role for email
func (r *BunRoleRepository) UpsertRole(ctx context.Context, email string, role auth.Role) error {
	if err := upsertRole(ctx, r.db, normalizeEmail(email), role); err != nil {
		return fmt.Errorf("upsert role: %w", err)
	}
	return nil
}

func upsertRole(ctx context.Context, db bun.IDB, email string, role auth.Role) error {
	if email == "" {
		return errors.New("email is required")
	}
	now := time.Now().UTC()
	rec := &models.UserRole{
		ID:        bunx.NewUUIDv7(),
		Email:     email,
		Role:      string(role),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := db.NewInsert().
		Model(rec).
		On("CONFLICT (email) DO UPDATE").
		Set("role = EXCLUDED.role").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// ListAdmins lists all ADMIN records ordered by email
func (r *BunRoleRepository) ListAdmins(ctx context.Context) ([]models.UserRole, error) {
	admins, err := listAdmins(ctx, r.db)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

func listAdmins(ctx context.Context, db bun.IDB) ([]models.UserRole, error) {
	var admins []models.UserRole
	err := db.NewSelect().
		Model(&admins).
		Where("role = ?", string(auth.RoleAdmin)).
		Order("email ASC").
		Scan(ctx)
	return admins, err
}

// ReplaceAdmins diffs the requested admin set against the stored one and
// applies the difference in a single transaction
func (r *BunRoleRepository) ReplaceAdmins(ctx context.Context, actor string, admins []string) (AdminDiff, error) {
	var diff AdminDiff
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := listAdmins(ctx, tx)
		if err != nil {
			return fmt.Errorf("list admins: %w", err)
		}

		have := make(map[string]struct{}, len(current))
		for _, rec := range current {
			have[rec.Email] = struct{}{}
		}
		want := make(map[string]struct{}, len(admins))
		for _, email := range admins {
			if email = normalizeEmail(email); email != "" {
				want[email] = struct{}{}
			}
		}

		for email := range want {
			if _, ok := have[email]; !ok {
				diff.Added = append(diff.Added, email)
			}
		}
		for email := range have {
			if _, ok := want[email]; !ok {
				diff.Removed = append(diff.Removed, email)
			}
		}
		sort.Strings(diff.Added)
		sort.Strings(diff.Removed)

		apply := func(email string, role auth.Role) error {
			if err := createChange(ctx, tx, &models.Change{
				Actor: actor,
				Kind:  models.ChangeKindUserRole,
				Email: email,
				Role:  string(role),
			}); err != nil {
				return fmt.Errorf("record change for %s: %w", email, err)
			}
			if err := upsertRole(ctx, tx, email, role); err != nil {
				return fmt.Errorf("set role for %s: %w", email, err)
			}
			return nil
		}
		for _, email := range diff.Added {
			if err := apply(email, auth.RoleAdmin); err != nil {
				return err
			}
		}
		for _, email := range diff.Removed {
			if err := apply(email, auth.RoleUser); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return AdminDiff{}, fmt.Errorf("replace admins: %w", err)
	}
	return diff, nil
}
