package cmdutil

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/ZargorNET/sponsormanager/internal/config"
	"github.com/ZargorNET/sponsormanager/internal/db/bunx"
	"github.com/ZargorNET/sponsormanager/internal/repository"
)

// RoleBundle bundles the role repositories with their DB connection so
// callers can reuse the connection for other repositories when necessary.
type RoleBundle struct {
	Roles   *repository.BunRoleRepository
	Changes *repository.BunChangeRepository
	DB      *bun.DB
}

// Close releases the underlying database connection.
func (b *RoleBundle) Close() {
	if b == nil || b.DB == nil {
		return
	}
	bunx.Close(b.DB)
}

// OpenRoleBundle centralizes repository construction for CLI commands.
func OpenRoleBundle(ctx context.Context, cfg *config.Config) (*RoleBundle, error) {
	db, err := bunx.NewDB(ctx, cfg.DatabaseURL, cfg.MaxDBConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &RoleBundle{
		Roles:   repository.NewBunRoleRepository(db),
		Changes: repository.NewBunChangeRepository(db),
		DB:      db,
	}, nil
}
