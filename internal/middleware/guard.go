package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"collectdesk/internal/api"
	"collectdesk/internal/guard"
	"collectdesk/internal/rbac"
)

const accessDeniedPage = `<!doctype html>
<html><head><title>Access denied</title></head>
<body><h1>Access denied</h1><p>You do not have permission to view this page.</p></body></html>
`

// Guard enforces opts against the request's session. Browsers (Accept:
// text/html) are redirected; API clients get 401/403 problem documents whose
// location field carries the redirect target.
func Guard(opts guard.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := guard.Evaluate(SessionState(c), c.Request.URL.RequestURI(), opts)
		html := wantsHTML(c)

		switch decision.Outcome {
		case guard.Allow:
			c.Next()
		case guard.Loading:
			c.Header("Retry-After", "1")
			AbortProblem(c, http.StatusServiceUnavailable, "session is loading")
		case guard.RedirectLogin:
			if html {
				c.Redirect(http.StatusFound, decision.Location)
				c.Abort()
				return
			}
			c.Header("WWW-Authenticate", `Bearer realm="collectdesk"`)
			AbortWithProblem(c, api.Problem{
				Status:   http.StatusUnauthorized,
				Detail:   "authentication required",
				Location: decision.Location,
			})
		case guard.RedirectFallback:
			if html {
				c.Redirect(http.StatusFound, decision.Location)
				c.Abort()
				return
			}
			AbortWithProblem(c, api.Problem{
				Status:   http.StatusForbidden,
				Detail:   "missing " + decision.Reason,
				Location: decision.Location,
			})
		default:
			if html {
				c.Data(http.StatusForbidden, "text/html; charset=utf-8", []byte(accessDeniedPage))
				c.Abort()
				return
			}
			AbortProblem(c, http.StatusForbidden, "missing "+decision.Reason)
		}
	}
}

// RequireRoles with no roles denies every authenticated user.
func RequireRoles(roles ...rbac.Role) gin.HandlerFunc {
	if roles == nil {
		roles = []rbac.Role{}
	}
	return Guard(guard.Options{AllowedRoles: roles})
}

func RequirePermission(p rbac.Permission) gin.HandlerFunc {
	return Guard(guard.Options{RequiredPermission: p})
}

// RequireAuth only checks that a user is signed in.
func RequireAuth() gin.HandlerFunc {
	return Guard(guard.Options{})
}

func wantsHTML(c *gin.Context) bool {
	if c.GetHeader("Accept") == "" {
		return false
	}
	return c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML
}

// Gate reports whether an inline fragment should be shown to the request's
// session. It never writes a response.
func Gate(c *gin.Context, opts guard.GateOptions) bool {
	return guard.Gate(SessionState(c), opts)
}
