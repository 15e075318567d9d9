package model

import (
	"strings"
	"time"
)

// Role is the privilege level stored on a user row. RolePublic is the
// unauthenticated state; it is never persisted.
type Role string

const (
	RolePublic   Role = "PUBLIC"
	RoleUser     Role = "USER"
	RoleInvestor Role = "INVESTOR"
	RoleAdmin    Role = "ADMIN"
)

// rank orders roles by privilege. Role transitions compare ranks.
var rank = map[Role]int{
	RolePublic:   0,
	RoleUser:     1,
	RoleInvestor: 2,
	RoleAdmin:    3,
}

// ParseRole normalizes s and reports whether it names a persistable role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleUser, RoleInvestor, RoleAdmin:
		return r, true
	}
	return "", false
}

// Rank returns the privilege rank of r; unknown roles rank below PUBLIC.
func (r Role) Rank() int {
	if n, ok := rank[r]; ok {
		return n
	}
	return -1
}

// CanHoldInvestments reports whether a user with this role may be the
// owner of a newly created investment.
func (r Role) CanHoldInvestments() bool {
	return r == RoleInvestor || r == RoleAdmin
}

func (r Role) String() string { return string(r) }

// User represents an application user record as stored in the
// `users` table. Users are never hard-deleted; IsActive=false is the
// soft-disabled state that keeps investment foreign keys intact.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, lower-cased email address.
//  PasswordHash – bcrypt hashed password.
//  FullName     – display name supplied at signup.
//  Phone        – optional contact number.
//  Role         – USER, INVESTOR or ADMIN.
//  IsActive     – whether the account may log in.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	FullName     string    // users.full_name
	Phone        *string   // users.phone (nullable)
	Role         Role      // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// NormalizeEmail lower-cases and trims an email address the same way on
// every write and lookup path.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RefreshToken models an entry in the `refresh_tokens` table. The plain
// token is never stored; only its SHA‑256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
