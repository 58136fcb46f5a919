package bunx

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUIDv7 string for primary keys.
// Rows are created from Go on both PostgreSQL and SQLite, so no database-side
// default is relied on.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
