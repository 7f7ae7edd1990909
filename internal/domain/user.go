package domain

import "time"

// Role represents the authorization level of an account.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is the domain model for portal accounts. Uniqueness is enforced on
// username and email. EmailVerified is monotonic: once set it is never reset
// by the verification subsystem.
type User struct {
	ID            string
	Username      string
	Nickname      string
	Email         string
	PasswordHash  string
	EmailVerified bool
	Avatar        string
	Role          Role
	Deleted       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
