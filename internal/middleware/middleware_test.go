package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectdesk/internal/api"
	"collectdesk/internal/guard"
	"collectdesk/internal/models"
	"collectdesk/internal/rbac"
	"collectdesk/internal/security"
	"collectdesk/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuth struct {
	users   map[string]models.User
	err     error
	touched []string
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (models.User, *security.AccessClaims, error) {
	if f.err != nil {
		return models.User{}, nil, f.err
	}
	user, ok := f.users[token]
	if !ok {
		return models.User{}, nil, service.ErrInvalidCredentials
	}
	return user, &security.AccessClaims{UserID: user.ID, SessionID: "sess-" + user.ID, Role: user.Role.String()}, nil
}

func (f *fakeAuth) Touch(_ context.Context, sessionID string, _ string, _ string) {
	f.touched = append(f.touched, sessionID)
}

func newAuth() *fakeAuth {
	return &fakeAuth{users: map[string]models.User{
		"admin-token":  {ID: "u-admin", Email: "admin@example.com", Role: rbac.RoleAdmin},
		"client-token": {ID: "u-client", Email: "client@example.com", Role: rbac.RoleClient},
		"dpo-token":    {ID: "u-dpo", Email: "dpo@example.com", Role: rbac.RoleDPO},
	}}
}

func newRouter(auth Authenticator, guards ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Recovery(zerolog.Nop()), Session(auth, zerolog.Nop()))
	handlers := append(guards, func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/page", handlers...)
	return r
}

func do(r http.Handler, token string, accept string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/page?tab=2", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) api.Problem {
	t.Helper()
	assert.Equal(t, api.ProblemContentType, rec.Header().Get("Content-Type"))
	var problem api.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func TestGuardUnauthenticatedAPI(t *testing.T) {
	r := newRouter(newAuth(), RequireAuth())
	rec := do(r, "", "application/json")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	problem := decodeProblem(t, rec)
	assert.Equal(t, http.StatusUnauthorized, problem.Status)
	assert.Equal(t, "/login?redirect=%2Fpage%3Ftab%3D2", problem.Location)
}

func TestGuardUnauthenticatedBrowser(t *testing.T) {
	r := newRouter(newAuth(), RequireAuth())
	rec := do(r, "bogus", "text/html,application/xhtml+xml")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect=%2Fpage%3Ftab%3D2", rec.Header().Get("Location"))
}

func TestGuardRoles(t *testing.T) {
	r := newRouter(newAuth(), RequireRoles(rbac.RoleAdmin, rbac.RoleDPO))

	assert.Equal(t, http.StatusOK, do(r, "admin-token", "").Code)
	assert.Equal(t, http.StatusOK, do(r, "dpo-token", "").Code)

	rec := do(r, "client-token", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "missing role", problem.Detail)
	assert.Empty(t, problem.Location)

	html := do(r, "client-token", "text/html")
	assert.Equal(t, http.StatusForbidden, html.Code)
	assert.Contains(t, html.Body.String(), "Access denied")
}

func TestRequireRolesEmptyDeniesEveryone(t *testing.T) {
	r := newRouter(newAuth(), RequireRoles())
	for _, token := range []string{"admin-token", "client-token", "dpo-token"} {
		assert.Equal(t, http.StatusForbidden, do(r, token, "").Code, token)
	}
}

func TestGuardPermission(t *testing.T) {
	r := newRouter(newAuth(), RequirePermission(rbac.UsersManage))
	assert.Equal(t, http.StatusOK, do(r, "admin-token", "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, "dpo-token", "").Code)

	unknown := newRouter(newAuth(), RequirePermission(rbac.Permission("nope.nothing")))
	assert.Equal(t, http.StatusForbidden, do(unknown, "admin-token", "").Code)
}

func TestGuardRedirectOnDeny(t *testing.T) {
	r := newRouter(newAuth(), Guard(guard.Options{
		AllowedRoles:   []rbac.Role{rbac.RoleAdmin},
		RedirectOnDeny: true,
		FallbackURL:    "/dashboard",
	}))

	html := do(r, "client-token", "text/html")
	assert.Equal(t, http.StatusFound, html.Code)
	assert.Equal(t, "/dashboard", html.Header().Get("Location"))

	rec := do(r, "client-token", "application/json")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "/dashboard", decodeProblem(t, rec).Location)
}

func TestSessionSetsContext(t *testing.T) {
	auth := newAuth()
	r := gin.New()
	r.Use(Session(auth, zerolog.Nop()))
	r.GET("/whoami", func(c *gin.Context) {
		state := SessionState(c)
		user, ok := CurrentUser(c)
		claims, _ := AccessClaims(c)
		c.JSON(http.StatusOK, gin.H{
			"authenticated": state.IsAuthenticated,
			"found":         ok,
			"id":            user.ID,
			"session":       claims.SessionID,
			"permissions":   len(state.User.Permissions),
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "bearer admin-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, "u-admin", body["id"])
	assert.Equal(t, "sess-u-admin", body["session"])
	assert.EqualValues(t, len(rbac.PermissionsFor(rbac.RoleAdmin)), body["permissions"])
	assert.Equal(t, []string{"sess-u-admin"}, auth.touched)
}

func TestSessionBackendFailure(t *testing.T) {
	auth := newAuth()
	auth.err = errors.New("db down")
	r := newRouter(auth, RequireAuth())

	rec := do(r, "admin-token", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// anonymous requests never hit the backend
	assert.Equal(t, http.StatusUnauthorized, do(r, "", "").Code)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc ": "abc",
		"Bearer ":     "",
		"Basic abc":   "",
		"":            "",
		"Bearerabc":   "",
	}
	for header, want := range cases {
		got, ok := bearerToken(header)
		assert.Equal(t, want, got, header)
		assert.Equal(t, want != "", ok, header)
	}
}

func TestRecoveryWritesProblem(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(zerolog.Nop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	problem := decodeProblem(t, rec)
	assert.Equal(t, "Internal Server Error", problem.Title)
	assert.Equal(t, "/boom", problem.Instance)
}

func TestRequestIDPassthrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Body.String())
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://app.example.com/"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGate(t *testing.T) {
	r := gin.New()
	r.Use(Session(newAuth(), zerolog.Nop()))
	r.GET("/page", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"users": Gate(c, guard.GateOptions{RequiredPermission: rbac.UsersManage}),
			"gdpr":  Gate(c, guard.GateOptions{AllowedRoles: []rbac.Role{rbac.RoleDPO, rbac.RoleClient}}),
		})
	})

	get := func(token string) map[string]bool {
		rec := do(r, token, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]bool
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	assert.Equal(t, map[string]bool{"users": true, "gdpr": false}, get("admin-token"))
	assert.Equal(t, map[string]bool{"users": false, "gdpr": true}, get("dpo-token"))
	assert.Equal(t, map[string]bool{"users": false, "gdpr": false}, get(""))
}
