package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"collectdesk/internal/api"
	"collectdesk/internal/middleware"
	"collectdesk/internal/models"
	"collectdesk/internal/service"
)

type adminUserResponse struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Role      string  `json:"role"`
	ClientID  *string `json:"clientId,omitempty"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

func adminUser(user models.User) adminUserResponse {
	resp := adminUserResponse{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role.String(),
		ClientID: user.ClientID,
		Status:   string(user.Status),
	}
	if !user.CreatedAt.IsZero() {
		resp.CreatedAt = user.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h HandlerSet) AdminCreateUser(c *gin.Context) {
	var req api.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	input := service.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
	}
	if req.ClientID != nil {
		input.ClientID = *req.ClientID
	}

	user, err := h.auth.CreateUser(c.Request.Context(), input)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if admin, ok := middleware.CurrentUser(c); ok {
		h.log.Info().Str("admin_id", admin.ID).Str("user_id", user.ID).Str("role", user.Role.String()).Msg("user created")
	}
	c.JSON(http.StatusCreated, gin.H{"user": adminUser(user)})
}

func (h HandlerSet) AdminSetUserStatus(c *gin.Context) {
	var req api.UpdateUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	userID := c.Param("id")
	if admin, ok := middleware.CurrentUser(c); ok && admin.ID == userID {
		middleware.AbortProblem(c, http.StatusBadRequest, "cannot change your own status")
		return
	}

	user, err := h.auth.SetUserStatus(c.Request.Context(), userID, req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": adminUser(user)})
}

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	limit := 50
	offset := 0

	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}

	users, err := h.users.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}

	items := make([]adminUserResponse, 0, len(users))
	for _, user := range users {
		items = append(items, adminUser(user))
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
	})
}

func (h HandlerSet) AdminListUserSessions(c *gin.Context) {
	userID := c.Param("id")
	if _, err := h.users.GetByID(c.Request.Context(), userID); err != nil {
		h.writeError(c, err)
		return
	}

	sessions, err := h.sessions.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessionInfos(sessions, ""),
	})
}
