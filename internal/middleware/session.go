package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"collectdesk/internal/models"
	"collectdesk/internal/security"
	"collectdesk/internal/service"
	"collectdesk/internal/session"
)

const (
	currentUserKey  = "current_user"
	accessClaimsKey = "access_claims"
	sessionStateKey = "session_state"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (models.User, *security.AccessClaims, error)
	Touch(ctx context.Context, sessionID string, ip string, userAgent string)
}

// Session resolves an optional bearer token into the request's session
// state. Requests without a valid token proceed anonymously; Guard decides
// whether that is acceptable.
func Session(auth Authenticator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Set(sessionStateKey, session.Anonymous())
			c.Next()
			return
		}

		user, claims, err := auth.Authenticate(c.Request.Context(), token)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrUserSuspended):
			c.Set(sessionStateKey, session.Anonymous())
			c.Next()
			return
		default:
			log.Error().Err(err).Str("request_id", GetRequestID(c)).Msg("resolve session failed")
			AbortProblem(c, http.StatusServiceUnavailable, "session lookup failed")
			return
		}

		auth.Touch(c.Request.Context(), claims.SessionID, c.ClientIP(), c.GetHeader("User-Agent"))

		projected := user.SessionUser()
		c.Set(currentUserKey, user)
		c.Set(accessClaimsKey, *claims)
		c.Set(sessionStateKey, session.State{User: &projected, IsAuthenticated: true})

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// SessionState is anonymous when Session did not run.
func SessionState(c *gin.Context) session.State {
	if v, ok := c.Get(sessionStateKey); ok {
		if state, ok := v.(session.State); ok {
			return state
		}
	}
	return session.Anonymous()
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

func AccessClaims(c *gin.Context) (security.AccessClaims, bool) {
	v, ok := c.Get(accessClaimsKey)
	if !ok {
		return security.AccessClaims{}, false
	}
	claims, ok := v.(security.AccessClaims)
	return claims, ok
}
