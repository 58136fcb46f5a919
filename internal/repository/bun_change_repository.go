package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ZargorNET/sponsormanager/internal/db/bunx"
	"github.com/ZargorNET/sponsormanager/internal/db/models"
	"github.com/uptrace/bun"
)

// BunChangeRepository implements ChangeRepository using Bun ORM
type BunChangeRepository struct {
	db *bun.DB
}

// NewBunChangeRepository creates a new Bun-based change log
func NewBunChangeRepository(db *bun.DB) *BunChangeRepository {
	return &BunChangeRepository{db: db}
}

// Create appends a change row
func (r *BunChangeRepository) Create(ctx context.Context, change *models.Change) error {
	if err := createChange(ctx, r.db, change); err != nil {
		return fmt.Errorf("create change: %w", err)
	}
	return nil
}

func createChange(ctx context.Context, db bun.IDB, change *models.Change) error {
	if change.ID == "" {
		change.ID = bunx.NewUUIDv7()
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}
	_, err := db.NewInsert().Model(change).Exec(ctx)
	return err
}

// ListRecent returns the newest changes first
func (r *BunChangeRepository) ListRecent(ctx context.Context, limit int) ([]models.Change, error) {
	if limit <= 0 {
		limit = 100
	}
	var changes []models.Change
	err := r.db.NewSelect().
		Model(&changes).
		OrderExpr("created_at DESC, id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	return changes, nil
}
