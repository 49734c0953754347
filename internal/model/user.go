package model

import (
	"strings"
	"time"
)

// Role names known to the application.  ADMIN and USER drive authorization;
// trainer accounts are exempt from the retention sweep.
const (
	RoleAdmin   = "ADMIN"
	RoleUser    = "USER"
	RoleTrainer = "trainer"
)

// UndefinedEmail is the placeholder some clients send instead of leaving
// the email empty.  It is treated exactly like a missing address.
const UndefinedEmail = "undefined"

// Role represents a row in the `roles` table.  Users reference roles through
// the `user_roles` join table.
type Role struct {
	Entity
	Name string `json:"name"` // roles.name
}

// User represents an account stored in the `users` table.  LastName doubles
// as the login name; there is no separate username column.
type User struct {
	Entity
	FirstName    string     `json:"first_name"`              // users.first_name
	LastName     string     `json:"last_name"`               // users.last_name
	Password     string     `json:"-"`                       // users.password_hash
	Email        *string    `json:"email,omitempty"`         // users.email (nullable)
	JoinYear     int        `json:"join_year"`               // users.join_year
	CreationDate *time.Time `json:"creation_date,omitempty"` // users.creation_date (nullable)
	Roles        []Role     `json:"roles"`                   // user_roles
}

// HasRole reports whether the user holds a role with the given name.
func (u User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// DeliverableEmail returns the address confirmations should go to and
// whether there is one at all.
func (u User) DeliverableEmail() (string, bool) {
	if u.Email == nil {
		return "", false
	}
	e := strings.TrimSpace(*u.Email)
	if e == "" || e == UndefinedEmail {
		return "", false
	}
	return e, true
}

// RoleNames lists the names of the user's roles in stored order.
func (u User) RoleNames() []string {
	out := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		out = append(out, r.Name)
	}
	return out
}
