package model

import (
	"time"
)

// Staff roles.
const (
	RoleLicensee     = "licensee"
	RolePhotographer = "photographer"
	RoleEditor       = "editor"
	RoleVA           = "va"
	RoleAdmin        = "admin"
)

// User is a staff principal. Authentication itself lives outside this
// service; the auth middleware only verifies tokens and loads this record.
type User struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	Email      string    `db:"email"`
	Role       string    `db:"role"`
	LicenseeID string    `db:"licensee_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
