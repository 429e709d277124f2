package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"collectdesk/internal/api"
	"collectdesk/internal/middleware"
	"collectdesk/internal/models"
	"collectdesk/internal/service"
)

func (h HandlerSet) Login(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.LoginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    int64(result.ExpiresIn / time.Second),
		User:         result.User.SessionUser(),
	})
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req api.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, api.RefreshResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    int64(result.ExpiresIn / time.Second),
	})
}

// Logout always succeeds for unknown or empty tokens.
func (h HandlerSet) Logout(c *gin.Context) {
	var req api.LogoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h HandlerSet) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.AbortProblem(c, http.StatusUnauthorized, "authentication required")
		return
	}

	c.JSON(http.StatusOK, api.MeResponse{User: user.SessionUser()})
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.AbortProblem(c, http.StatusUnauthorized, "authentication required")
		return
	}
	claims, _ := middleware.AccessClaims(c)

	sessions, err := h.sessions.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessionInfos(sessions, claims.SessionID),
	})
}

func (h HandlerSet) RevokeSession(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.AbortProblem(c, http.StatusUnauthorized, "authentication required")
		return
	}

	sessionID := c.Param("id")
	claims, _ := middleware.AccessClaims(c)
	if claims.SessionID == sessionID {
		middleware.AbortProblem(c, http.StatusBadRequest, "use logout to end the current session")
		return
	}

	if err := h.sessions.DeleteForUser(c.Request.Context(), user.ID, sessionID); err != nil {
		h.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func sessionInfos(sessions []models.Session, currentID string) []api.SessionInfo {
	out := make([]api.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, api.SessionInfo{
			ID:         session.ID,
			IPAddress:  session.IPAddress,
			UserAgent:  session.UserAgent,
			CreatedAt:  session.CreatedAt.UTC().Format(time.RFC3339),
			LastSeenAt: session.LastSeenAt.UTC().Format(time.RFC3339),
			ExpiresAt:  session.ExpiresAt.UTC().Format(time.RFC3339),
			Current:    session.ID == currentID,
		})
	}
	return out
}
