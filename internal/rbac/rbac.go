// Package rbac holds the fixed role set and the static permission table.
package rbac

import (
	"errors"
	"fmt"
	"sort"
)

type Role string

const (
	RoleClient Role = "CLIENT"
	RoleAgent  Role = "AGENT"
	RoleAdmin  Role = "ADMIN"
	RoleDPO    Role = "DPO"
)

var ErrUnknownRole = errors.New("unknown role")

func Roles() []Role {
	return []Role{RoleClient, RoleAgent, RoleAdmin, RoleDPO}
}

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleAgent, RoleAdmin, RoleDPO:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// ParseRole matches exactly; "admin" is not a role.
func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return role, nil
}

func RoleIn(role Role, roles ...Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

type Permission string

const (
	CasesView        Permission = "cases.view"
	CasesCreate      Permission = "cases.create"
	CasesApprove     Permission = "cases.approve"
	CasesAssign      Permission = "cases.assign"
	InvoicesView     Permission = "invoices.view"
	InvoicesCreate   Permission = "invoices.create"
	GDPRView         Permission = "gdpr.view"
	GDPRManage       Permission = "gdpr.manage"
	MessagesInternal Permission = "messages.internal"
	MessagesExternal Permission = "messages.external"
	ReportsView      Permission = "reports.view"
	UsersManage      Permission = "users.manage"
	SettingsManage   Permission = "settings.manage"
	ChatUse          Permission = "chat.use"
)

func Permissions() []Permission {
	return []Permission{
		CasesView, CasesCreate, CasesApprove, CasesAssign,
		InvoicesView, InvoicesCreate,
		GDPRView, GDPRManage,
		MessagesInternal, MessagesExternal,
		ReportsView, UsersManage, SettingsManage, ChatUse,
	}
}

// AllowedRoles returns nil for permissions that are not in the table.
func AllowedRoles(p Permission) []Role {
	switch p {
	case CasesView:
		return []Role{RoleClient, RoleAgent, RoleAdmin}
	case CasesCreate:
		return []Role{RoleClient, RoleAgent, RoleAdmin}
	case CasesApprove:
		return []Role{RoleAdmin}
	case CasesAssign:
		return []Role{RoleAgent, RoleAdmin}
	case InvoicesView:
		return []Role{RoleClient, RoleAgent, RoleAdmin}
	case InvoicesCreate:
		return []Role{RoleAgent, RoleAdmin}
	case GDPRView:
		return []Role{RoleClient, RoleAdmin, RoleDPO}
	case GDPRManage:
		return []Role{RoleAdmin, RoleDPO}
	case MessagesInternal:
		return []Role{RoleAgent, RoleAdmin, RoleDPO}
	case MessagesExternal:
		return []Role{RoleClient, RoleAgent, RoleAdmin}
	case ReportsView:
		return []Role{RoleAgent, RoleAdmin}
	case UsersManage:
		return []Role{RoleAdmin}
	case SettingsManage:
		return []Role{RoleAdmin}
	case ChatUse:
		return []Role{RoleClient, RoleAgent, RoleAdmin, RoleDPO}
	}
	return nil
}

func (p Permission) Known() bool {
	return AllowedRoles(p) != nil
}

func (p Permission) String() string {
	return string(p)
}

// ParsePermission is for keys arriving from outside the program.
func ParsePermission(s string) (Permission, bool) {
	p := Permission(s)
	if !p.Known() {
		return "", false
	}
	return p, true
}

func Allows(role Role, p Permission) bool {
	if !role.Valid() {
		return false
	}
	return RoleIn(role, AllowedRoles(p)...)
}

func PermissionsFor(role Role) []Permission {
	var out []Permission
	for _, p := range Permissions() {
		if Allows(role, p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func PermissionStrings(role Role) []string {
	perms := PermissionsFor(role)
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}
