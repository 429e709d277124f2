package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"collectdesk/internal/middleware"
	"collectdesk/internal/repository"
	"collectdesk/internal/service"
)

const detailInvalidCredentials = "Invalid email or password"

func (h HandlerSet) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		middleware.AbortProblem(c, http.StatusUnauthorized, detailInvalidCredentials)
	case errors.Is(err, service.ErrUserSuspended):
		middleware.AbortProblem(c, http.StatusForbidden, "account suspended")
	case errors.Is(err, service.ErrTooManyAttempts):
		if lockout := h.cfg.Security.LoginLockout; lockout > 0 {
			c.Header("Retry-After", strconv.Itoa(int(lockout.Seconds())))
		}
		middleware.AbortProblem(c, http.StatusTooManyRequests, "too many login attempts, try again later")
	case errors.Is(err, service.ErrInvalidInput):
		middleware.AbortProblem(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrEmailTaken):
		middleware.AbortProblem(c, http.StatusConflict, "email already registered")
	case errors.Is(err, repository.ErrUserNotFound):
		middleware.AbortProblem(c, http.StatusNotFound, "user not found")
	case errors.Is(err, repository.ErrSessionNotFound):
		middleware.AbortProblem(c, http.StatusNotFound, "session not found")
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Str("request_id", middleware.GetRequestID(c)).Msg("request failed")
		_ = c.Error(err)
		middleware.AbortProblem(c, http.StatusInternalServerError, "")
	}
}

func badRequest(c *gin.Context, err error) {
	middleware.AbortProblem(c, http.StatusBadRequest, err.Error())
}
