package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collectdesk/internal/api"
	"collectdesk/internal/guard"
	"collectdesk/internal/middleware"
	"collectdesk/internal/rbac"
)

type navEntry struct {
	item api.NavItem
	gate guard.GateOptions
}

// navigation is the full menu; each entry shows only when its gate passes.
var navigation = []navEntry{
	{api.NavItem{Key: "dashboard", Label: "Dashboard", Path: "/"}, guard.GateOptions{}},
	{api.NavItem{Key: "cases", Label: "Cases", Path: "/cases"}, guard.GateOptions{RequiredPermission: rbac.CasesView}},
	{api.NavItem{Key: "invoices", Label: "Invoices", Path: "/invoices"}, guard.GateOptions{RequiredPermission: rbac.InvoicesView}},
	{api.NavItem{Key: "messages", Label: "Messages", Path: "/messages"}, guard.GateOptions{RequiredPermission: rbac.MessagesExternal}},
	{api.NavItem{Key: "chat", Label: "Chat", Path: "/chat"}, guard.GateOptions{RequiredPermission: rbac.ChatUse}},
	{api.NavItem{Key: "reports", Label: "Reports", Path: "/reports"}, guard.GateOptions{RequiredPermission: rbac.ReportsView}},
	{api.NavItem{Key: "gdpr", Label: "GDPR requests", Path: "/gdpr"}, guard.GateOptions{RequiredPermission: rbac.GDPRView}},
	{api.NavItem{Key: "users", Label: "Users", Path: "/admin/users"}, guard.GateOptions{AllowedRoles: []rbac.Role{rbac.RoleAdmin}}},
	{api.NavItem{Key: "settings", Label: "Settings", Path: "/admin/settings"}, guard.GateOptions{RequiredPermission: rbac.SettingsManage}},
}

func (h HandlerSet) Permissions(c *gin.Context) {
	state := middleware.SessionState(c)
	if state.User == nil {
		middleware.AbortProblem(c, http.StatusUnauthorized, "authentication required")
		return
	}

	c.JSON(http.StatusOK, api.PermissionsResponse{
		Role:        state.User.Role.String(),
		Permissions: rbac.PermissionStrings(state.User.Role),
	})
}

func (h HandlerSet) Navigation(c *gin.Context) {
	items := make([]api.NavItem, 0, len(navigation))
	for _, entry := range navigation {
		if middleware.Gate(c, entry.gate) {
			items = append(items, entry.item)
		}
	}

	c.JSON(http.StatusOK, api.NavigationResponse{Items: items})
}
