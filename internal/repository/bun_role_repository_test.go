package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/db/bunx"
	"github.com/ZargorNET/sponsormanager/internal/db/models"
	"github.com/ZargorNET/sponsormanager/internal/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// setupTestDB opens a private in-memory SQLite database and applies every
// registered migration.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := bunx.NewDB(ctx, ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	return db
}

func TestBunRoleRepository_GetRole(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunRoleRepository(db)
	ctx := context.Background()

	t.Run("absent record", func(t *testing.T) {
		role, ok, err := repo.GetRole(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, role)
	})

	t.Run("email lookup is case insensitive", func(t *testing.T) {
		require.NoError(t, repo.UpsertRole(ctx, "Alice@Example.com", auth.RoleAdmin))

		role, ok, err := repo.GetRole(ctx, "alice@example.COM")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, auth.RoleAdmin, role)
	})
}

func TestBunRoleRepository_UpsertRole(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunRoleRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertRole(ctx, "bob@example.com", auth.RoleAdmin))
	require.NoError(t, repo.UpsertRole(ctx, "bob@example.com", auth.RoleUser))

	role, ok, err := repo.GetRole(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, auth.RoleUser, role)

	count, err := db.NewSelect().Model((*models.UserRole)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "upsert must not duplicate the email")

	t.Run("empty email", func(t *testing.T) {
		err := repo.UpsertRole(ctx, "  ", auth.RoleAdmin)
		assert.Error(t, err)
	})
}

func TestBunRoleRepository_ListAdmins(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunRoleRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertRole(ctx, "zed@example.com", auth.RoleAdmin))
	require.NoError(t, repo.UpsertRole(ctx, "amy@example.com", auth.RoleAdmin))
	require.NoError(t, repo.UpsertRole(ctx, "carl@example.com", auth.RoleUser))

	admins, err := repo.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "amy@example.com", admins[0].Email)
	assert.Equal(t, "zed@example.com", admins[1].Email)
}

func TestBunRoleRepository_ReplaceAdmins(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunRoleRepository(db)
	changes := NewBunChangeRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertRole(ctx, "old@example.com", auth.RoleAdmin))
	require.NoError(t, repo.UpsertRole(ctx, "kept@example.com", auth.RoleAdmin))

	diff, err := repo.ReplaceAdmins(ctx, "root@example.com", []string{
		"kept@example.com",
		"New@Example.com",
		"new@example.com",
		"",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"new@example.com"}, diff.Added)
	assert.Equal(t, []string{"old@example.com"}, diff.Removed)

	role, ok, err := repo.GetRole(ctx, "old@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, auth.RoleUser, role, "removed admins are demoted, not deleted")

	admins, err := repo.ListAdmins(ctx)
	require.NoError(t, err)
	var emails []string
	for _, a := range admins {
		emails = append(emails, a.Email)
	}
	assert.Equal(t, []string{"kept@example.com", "new@example.com"}, emails)

	recent, err := changes.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	byEmail := map[string]models.Change{}
	for _, c := range recent {
		assert.Equal(t, "root@example.com", c.Actor)
		assert.Equal(t, models.ChangeKindUserRole, c.Kind)
		byEmail[c.Email] = c
	}
	assert.Equal(t, string(auth.RoleAdmin), byEmail["new@example.com"].Role)
	assert.Equal(t, string(auth.RoleUser), byEmail["old@example.com"].Role)

	t.Run("no-op replace records nothing", func(t *testing.T) {
		diff, err := repo.ReplaceAdmins(ctx, "root@example.com", []string{"kept@example.com", "new@example.com"})
		require.NoError(t, err)
		assert.Empty(t, diff.Added)
		assert.Empty(t, diff.Removed)

		recent, err := changes.ListRecent(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, recent, 2)
	})
}

func TestBunChangeRepository_ListRecent(t *testing.T) {
	db := setupTestDB(t)
	changes := NewBunChangeRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		require.NoError(t, changes.Create(ctx, &models.Change{
			Actor:     "root@example.com",
			Kind:      models.ChangeKindUserRole,
			Email:     email,
			Role:      string(auth.RoleAdmin),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := changes.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c@example.com", recent[0].Email)
	assert.Equal(t, "b@example.com", recent[1].Email)
	assert.NotEmpty(t, recent[0].ID)
}
