package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"collectdesk/internal/config"
	"collectdesk/internal/middleware"
	"collectdesk/internal/models"
	"collectdesk/internal/rbac"
	"collectdesk/internal/service"
)

// AuthAPI is the part of service.AuthService the HTTP layer calls.
type AuthAPI interface {
	middleware.Authenticator
	Login(ctx context.Context, input service.LoginInput) (service.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (service.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	CreateUser(ctx context.Context, input service.CreateUserInput) (models.User, error)
	SetUserStatus(ctx context.Context, id string, status string) (models.User, error)
}

type UserLister interface {
	List(ctx context.Context, limit int, offset int) ([]models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

type SessionLister interface {
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	DeleteForUser(ctx context.Context, userID string, id string) error
}

// HealthCheck pings one backing service.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Auth     AuthAPI
	Users    UserLister
	Sessions SessionLister
	Checks   map[string]HealthCheck
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	auth     AuthAPI
	users    UserLister
	sessions SessionLister
	checks   map[string]HealthCheck
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Dependencies) HandlerSet {
	return HandlerSet{
		log:      log,
		cfg:      cfg,
		auth:     deps.Auth,
		users:    deps.Users,
		sessions: deps.Sessions,
		checks:   deps.Checks,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	v1.Use(middleware.Session(h.auth, h.log))
	{
		auth := v1.Group("/auth")
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)

		protected := v1.Group("/auth", middleware.RequireAuth())
		protected.GET("/me", h.Me)
		protected.GET("/sessions", h.ListSessions)
		protected.DELETE("/sessions/:id", h.RevokeSession)

		me := v1.Group("/me", middleware.RequireAuth())
		me.GET("/permissions", h.Permissions)
		me.GET("/navigation", h.Navigation)
	}

	admin := v1.Group("/admin", middleware.RequireAuth())
	admin.POST("/users", middleware.RequirePermission(rbac.UsersManage), h.AdminCreateUser)
	admin.GET("/users", middleware.RequireRoles(rbac.RoleAdmin), h.AdminListUsers)
	admin.PUT("/users/:id/status", middleware.RequirePermission(rbac.UsersManage), h.AdminSetUserStatus)
	admin.GET("/users/:id/sessions", middleware.RequireRoles(rbac.RoleAdmin, rbac.RoleDPO), h.AdminListUserSessions)
}
