package session

import (
	"errors"

	"collectdesk/internal/rbac"
)

var ErrInvalidUser = errors.New("invalid session user")

// User is the session-scoped projection of an account. Treat it as read-only;
// a re-login replaces it wholesale.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        rbac.Role `json:"role"`
	Permissions []string  `json:"permissions"`
	ClientID    *string   `json:"clientId,omitempty"`
}

func (u User) Validate() error {
	if u.ID == "" {
		return errors.Join(ErrInvalidUser, errors.New("missing id"))
	}
	if !u.Role.Valid() {
		return errors.Join(ErrInvalidUser, rbac.ErrUnknownRole)
	}
	return nil
}

func (u User) clone() *User {
	out := u
	if u.Permissions != nil {
		out.Permissions = append([]string(nil), u.Permissions...)
	}
	if u.ClientID != nil {
		id := *u.ClientID
		out.ClientID = &id
	}
	return &out
}

type State struct {
	User            *User
	IsAuthenticated bool
	IsLoading       bool
	Error           *string
}

// Initial is the boot state: loading until the persisted session is restored.
func Initial() State {
	return State{IsLoading: true}
}

func Anonymous() State {
	return State{}
}

func (s State) ErrorMessage() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}

func (s State) HasRole(roles ...rbac.Role) bool {
	if s.User == nil {
		return false
	}
	return rbac.RoleIn(s.User.Role, roles...)
}

func (s State) CanAccess(p rbac.Permission) bool {
	if s.User == nil {
		return false
	}
	return rbac.Allows(s.User.Role, p)
}

func (s State) clone() State {
	out := s
	if s.User != nil {
		out.User = s.User.clone()
	}
	if s.Error != nil {
		msg := *s.Error
		out.Error = &msg
	}
	return out
}
