package migrations

import (
	"context"
	"fmt"

	"github.com/ZargorNET/sponsormanager/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20260301000000, down_20260301000000)
}

// up_20260301000000 creates the role directory and the change log
func up_20260301000000(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating user_roles table...")
	_, err := db.NewCreateTable().
		Model((*models.UserRole)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create user_roles table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_user_roles_email ON user_roles(email)`)
	if err != nil {
		return fmt.Errorf("failed to create user_roles email index: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_user_roles_role ON user_roles(role)`)
	if err != nil {
		return fmt.Errorf("failed to create user_roles role index: %w", err)
	}

	// SQLite cannot add constraints to an existing table
	if IsPostgreSQL(db) {
		_, err = db.ExecContext(ctx, `ALTER TABLE user_roles ADD CONSTRAINT chk_user_roles_role CHECK (role IN ('USER', 'ADMIN'))`)
		if err != nil {
			return fmt.Errorf("failed to add user_roles role check: %w", err)
		}
	}
	fmt.Println(" OK")

	fmt.Print(" [up] creating changes table...")
	_, err = db.NewCreateTable().
		Model((*models.Change)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create changes table: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_changes_created_at ON changes(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create changes created_at index: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

func down_20260301000000(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping changes table...")
	if _, err := db.NewDropTable().Model((*models.Change)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop changes table: %w", err)
	}
	fmt.Println(" OK")

	fmt.Print(" [down] dropping user_roles table...")
	if _, err := db.NewDropTable().Model((*models.UserRole)(nil)).IfExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to drop user_roles table: %w", err)
	}
	fmt.Println(" OK")

	return nil
}
