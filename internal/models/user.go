package models

import (
	"time"

	"collectdesk/internal/rbac"
	"collectdesk/internal/session"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

func (s UserStatus) Valid() bool {
	return s == UserStatusActive || s == UserStatusSuspended
}

// User is the account record. ClientID ties CLIENT users to their
// organization; it is nil for staff.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	Name         string
	Role         rbac.Role
	ClientID     *string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionUser is the projection handed to clients, with the role's
// permissions resolved.
func (u User) SessionUser() session.User {
	out := session.User{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		Permissions: rbac.PermissionStrings(u.Role),
	}
	if u.ClientID != nil {
		id := *u.ClientID
		out.ClientID = &id
	}
	return out
}

type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash []byte
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
	LastSeenAt       time.Time
	ExpiresAt        time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
