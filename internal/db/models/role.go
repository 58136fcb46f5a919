package models

import (
	"time"

	"github.com/uptrace/bun"
)

// UserRole maps an email to its authorization role. Absence of a row means USER.
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`

	ID        string    `bun:"id,pk,type:uuid"`
	Email     string    `bun:"email,notnull,unique"`
	Role      string    `bun:"role,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ChangeKind classifies a change-log row.
type ChangeKind string

const (
	// ChangeKindUserRole records a role grant or demotion.
	ChangeKindUserRole ChangeKind = "change_user_role"
)

// Change is an audit row attributed to the acting principal's email.
type Change struct {
	bun.BaseModel `bun:"table:changes,alias:ch"`

	ID        string     `bun:"id,pk,type:uuid"`
	Actor     string     `bun:"actor,notnull"`
	Kind      ChangeKind `bun:"kind,notnull"`
	Email     string     `bun:"email"` // subject of the change
	Role      string     `bun:"role"`  // role after the change
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}
