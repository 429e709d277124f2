package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collectdesk/internal/api"
	"collectdesk/internal/rbac"
	"collectdesk/internal/session"
	"collectdesk/internal/tokenstore"
)

type testEnv struct {
	client *Client
	tokens *tokenstore.Memory
	holder *TokenHolder
}

func newTestEnv(t *testing.T, cfg Config, baseURL string) testEnv {
	t.Helper()
	return newTestEnvWithTokens(t, cfg, baseURL, tokenstore.NewMemory())
}

func newTestEnvWithTokens(t *testing.T, cfg Config, baseURL string, tokens *tokenstore.Memory) testEnv {
	t.Helper()
	holder := &TokenHolder{}
	requester := NewRequester(baseURL, nil, holder)
	client := New(cfg, requester, tokens, holder, session.NewStore(), zerolog.Nop())
	return testEnv{client: client, tokens: tokens, holder: holder}
}

func simulationConfig() Config {
	return Config{Mode: ModeSimulation, LoginTimeout: 5 * time.Second}
}

func writeProblem(w http.ResponseWriter, status int, title string, detail string) {
	w.Header().Set("Content-Type", api.ProblemContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Problem{Title: title, Status: status, Detail: detail})
}

func TestSimulationLoginAdmin(t *testing.T) {
	env := newTestEnv(t, simulationConfig(), "")
	ctx := context.Background()

	user, err := env.client.Login(ctx, "admin@x.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, user.Role)
	assert.Contains(t, user.Permissions, string(rbac.UsersManage))
	assert.Nil(t, user.ClientID)

	state := env.client.Store().State()
	assert.True(t, state.IsAuthenticated)
	assert.False(t, state.IsLoading)
	assert.Nil(t, state.Error)

	access, err := env.tokens.Get(ctx, tokenstore.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, access, env.holder.Get())
	_, err = env.tokens.Get(ctx, tokenstore.KeyRefreshToken)
	require.NoError(t, err)
	_, err = env.tokens.Get(ctx, tokenstore.KeyUser)
	require.NoError(t, err)
}

func TestSimulationRoles(t *testing.T) {
	tests := []struct {
		email string
		role  rbac.Role
	}{
		{"admin@x.com", rbac.RoleAdmin},
		{"agent.smith@collect.io", rbac.RoleAgent},
		{"dpo@collect.io", rbac.RoleDPO},
		{"jane@acme.com", rbac.RoleClient},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			env := newTestEnv(t, simulationConfig(), "")
			user, err := env.client.Login(context.Background(), tt.email, DefaultSimulationPassword)
			require.NoError(t, err)
			assert.Equal(t, tt.role, user.Role)
			if tt.role == rbac.RoleClient {
				require.NotNil(t, user.ClientID)
			}
		})
	}
}

func TestSimulationWrongPassword(t *testing.T) {
	env := newTestEnv(t, simulationConfig(), "")

	_, err := env.client.Login(context.Background(), "anyone@x.com", "wrongpass")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	state := env.client.Store().State()
	assert.False(t, state.IsAuthenticated)
	assert.Nil(t, state.User)
	require.NotNil(t, state.Error)
	assert.Equal(t, MessageInvalidCredentials, *state.Error)
	assert.Equal(t, 0, env.tokens.Len())
	assert.Empty(t, env.holder.Get())
}

func TestRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	tokens := tokenstore.NewMemory()

	first := newTestEnvWithTokens(t, simulationConfig(), "", tokens)
	loggedIn, err := first.client.Login(ctx, "jane.doe@acme.com", DefaultSimulationPassword)
	require.NoError(t, err)

	reloaded := newTestEnvWithTokens(t, simulationConfig(), "", tokens)
	assert.True(t, reloaded.client.Store().State().IsLoading)

	require.NoError(t, reloaded.client.Restore(ctx))
	state := reloaded.client.Store().State()
	require.NotNil(t, state.User)
	assert.Equal(t, loggedIn, *state.User)
	assert.True(t, state.IsAuthenticated)
	assert.False(t, state.IsLoading)
	assert.Equal(t, first.holder.Get(), reloaded.holder.Get())
}

func TestRestoreRoundTripNonASCIIName(t *testing.T) {
	ctx := context.Background()
	tokens := tokenstore.NewMemory()

	first := newTestEnvWithTokens(t, simulationConfig(), "", tokens)
	loggedIn, err := first.client.Login(ctx, "élodie.øster@x.com", DefaultSimulationPassword)
	require.NoError(t, err)
	assert.Equal(t, "Élodie Øster", loggedIn.Name)
	assert.True(t, utf8.ValidString(loggedIn.Name))

	reloaded := newTestEnvWithTokens(t, simulationConfig(), "", tokens)
	require.NoError(t, reloaded.client.Restore(ctx))
	state := reloaded.client.Store().State()
	require.NotNil(t, state.User)
	assert.Equal(t, loggedIn, *state.User)
}

// unreliableStore fails Get until failures runs out.
type unreliableStore struct {
	tokenstore.Store
	failures int
}

func (s *unreliableStore) Get(ctx context.Context, key tokenstore.Key) (string, error) {
	if s.failures > 0 {
		s.failures--
		return "", errors.New("redis: i/o timeout")
	}
	return s.Store.Get(ctx, key)
}

func TestRestoreKeepsRecordWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	tokens := tokenstore.NewMemory()

	first := newTestEnvWithTokens(t, simulationConfig(), "", tokens)
	loggedIn, err := first.client.Login(ctx, "agent@x.com", DefaultSimulationPassword)
	require.NoError(t, err)

	flaky := &unreliableStore{Store: tokens, failures: 1}
	holder := &TokenHolder{}
	client := New(simulationConfig(), NewRequester("", nil, holder), flaky, holder, session.NewStore(), zerolog.Nop())

	err = client.Restore(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "i/o timeout")
	state := client.Store().State()
	assert.False(t, state.IsLoading)
	assert.False(t, state.IsAuthenticated)
	assert.Equal(t, 3, tokens.Len())
	assert.Empty(t, holder.Get())

	require.NoError(t, client.Restore(ctx))
	state = client.Store().State()
	require.NotNil(t, state.User)
	assert.Equal(t, loggedIn, *state.User)
}

func TestRestoreCorruptUserClearsEverything(t *testing.T) {
	ctx := context.Background()
	tokens := tokenstore.NewMemory()
	require.NoError(t, tokens.Set(ctx, map[tokenstore.Key]string{
		tokenstore.KeyAccessToken:  "a",
		tokenstore.KeyRefreshToken: "r",
		tokenstore.KeyUser:         "{not json",
	}))

	env := newTestEnvWithTokens(t, simulationConfig(), "", tokens)
	require.NoError(t, env.client.Restore(ctx))

	assert.Equal(t, session.Anonymous(), env.client.Store().State())
	for _, k := range tokenstore.Keys() {
		_, err := tokens.Get(ctx, k)
		assert.ErrorIs(t, err, tokenstore.ErrNotFound)
	}
	assert.Empty(t, env.holder.Get())
}

func TestRestoreRejectsPartialOrInvalidRecords(t *testing.T) {
	tests := []struct {
		name   string
		values map[tokenstore.Key]string
	}{
		{"user without token", map[tokenstore.Key]string{tokenstore.KeyUser: `{"id":"u1","role":"ADMIN"}`}},
		{"token without user", map[tokenstore.Key]string{tokenstore.KeyAccessToken: "a"}},
		{"only refresh", map[tokenstore.Key]string{tokenstore.KeyRefreshToken: "r"}},
		{"unknown role", map[tokenstore.Key]string{
			tokenstore.KeyAccessToken: "a",
			tokenstore.KeyUser:        `{"id":"u1","role":"ROOT"}`,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tokens := tokenstore.NewMemory()
			require.NoError(t, tokens.Set(ctx, tt.values))

			env := newTestEnvWithTokens(t, simulationConfig(), "", tokens)
			require.NoError(t, env.client.Restore(ctx))
			assert.Equal(t, session.Anonymous(), env.client.Store().State())
			assert.Equal(t, 0, tokens.Len())
		})
	}
}

func TestRestoreEmpty(t *testing.T) {
	env := newTestEnv(t, simulationConfig(), "")
	require.NoError(t, env.client.Restore(context.Background()))
	assert.Equal(t, session.Anonymous(), env.client.Store().State())
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, simulationConfig(), "")

	require.NoError(t, env.client.Logout(ctx))
	assert.Equal(t, session.Anonymous(), env.client.Store().State())

	_, err := env.client.Login(ctx, "agent@x.com", DefaultSimulationPassword)
	require.NoError(t, err)

	require.NoError(t, env.client.Logout(ctx))
	require.NoError(t, env.client.Logout(ctx))
	assert.Equal(t, session.Anonymous(), env.client.Store().State())
	assert.Equal(t, 0, env.tokens.Len())
	assert.Empty(t, env.holder.Get())
}

func TestRefreshTokenMissing(t *testing.T) {
	env := newTestEnv(t, simulationConfig(), "")
	_, err := env.client.RefreshToken(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestRefreshTokenSimulated(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, simulationConfig(), "")
	_, err := env.client.Login(ctx, "admin@x.com", DefaultSimulationPassword)
	require.NoError(t, err)
	before := env.holder.Get()

	access, err := env.client.RefreshToken(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, before, access)
	assert.Equal(t, access, env.holder.Get())

	stored, err := env.tokens.Get(ctx, tokenstore.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, access, stored)
	assert.True(t, env.client.Store().State().IsAuthenticated)
}

func remoteUser() session.User {
	return session.User{
		ID:          "usr_remote",
		Email:       "agent@collect.io",
		Name:        "Agent",
		Role:        rbac.RoleAgent,
		Permissions: rbac.PermissionStrings(rbac.RoleAgent),
	}
}

func TestRemoteLoginAndRefresh(t *testing.T) {
	var logoutCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(loginPath, func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "s3cret-pass" {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.LoginResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    900,
			User:         remoteUser(),
		})
	})
	mux.HandleFunc(refreshPath, func(w http.ResponseWriter, r *http.Request) {
		var req api.RefreshRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "refresh-1", req.RefreshToken)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.RefreshResponse{AccessToken: "access-2", RefreshToken: "refresh-2", ExpiresIn: 900})
	})
	mux.HandleFunc(logoutPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-2", r.Header.Get("Authorization"))
		logoutCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	env := newTestEnv(t, Config{Mode: ModeRemote}, srv.URL)

	_, err := env.client.Login(ctx, "agent@collect.io", "nope")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	var pe *ProblemError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusUnauthorized, pe.Problem.Status)
	assert.Equal(t, MessageInvalidCredentials, env.client.Store().State().ErrorMessage())

	user, err := env.client.Login(ctx, "agent@collect.io", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, remoteUser(), user)
	assert.Equal(t, "access-1", env.holder.Get())

	access, err := env.client.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-2", access)
	refresh, err := env.tokens.Get(ctx, tokenstore.KeyRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", refresh)

	require.NoError(t, env.client.Logout(ctx))
	assert.Equal(t, int32(1), logoutCalls.Load())
	assert.Equal(t, 0, env.tokens.Len())
}

func TestRemoteServerErrorUsesProblemDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "too many failed attempts")
	}))
	defer srv.Close()

	env := newTestEnv(t, Config{Mode: ModeRemote}, srv.URL)
	_, err := env.client.Login(context.Background(), "a@b.c", "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	assert.Equal(t, "too many failed attempts", env.client.Store().State().ErrorMessage())
}

func unreachableURL(t *testing.T) string {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func TestNetworkFailureWithoutFallback(t *testing.T) {
	env := newTestEnv(t, Config{Mode: ModeRemote}, unreachableURL(t))

	_, err := env.client.Login(context.Background(), "admin@x.com", DefaultSimulationPassword)
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))

	state := env.client.Store().State()
	assert.False(t, state.IsAuthenticated)
	assert.Equal(t, MessageUnavailable, state.ErrorMessage())
}

func TestNetworkFailureWithFallback(t *testing.T) {
	env := newTestEnv(t, Config{Mode: ModeRemote, SimulationFallback: true}, unreachableURL(t))

	user, err := env.client.Login(context.Background(), "admin@x.com", DefaultSimulationPassword)
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, user.Role)
	assert.True(t, IsSimulatedToken(env.holder.Get()))
}

func TestLoginTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	env := newTestEnv(t, Config{Mode: ModeRemote, LoginTimeout: 50 * time.Millisecond}, srv.URL)
	_, err := env.client.Login(context.Background(), "a@b.c", "x")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	state := env.client.Store().State()
	assert.False(t, state.IsLoading)
	assert.Equal(t, MessageTimeout, state.ErrorMessage())
}

func TestSupersededLoginDoesNotClobberState(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Email == "slow@x.com" {
			close(started)
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.LoginResponse{
			AccessToken:  "fast-access",
			RefreshToken: "fast-refresh",
			User:         remoteUser(),
		})
	}))
	defer srv.Close()

	env := newTestEnv(t, Config{Mode: ModeRemote}, srv.URL)
	ctx := context.Background()

	slowErr := make(chan error, 1)
	go func() {
		_, err := env.client.Login(ctx, "slow@x.com", "pw")
		slowErr <- err
	}()
	<-started

	user, err := env.client.Login(ctx, "fast@x.com", "pw")
	require.NoError(t, err)

	select {
	case err := <-slowErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(3 * time.Second):
		t.Fatal("superseded login did not return")
	}

	state := env.client.Store().State()
	require.NotNil(t, state.User)
	assert.Equal(t, user, *state.User)
	assert.Nil(t, state.Error)
	assert.Equal(t, "fast-access", env.holder.Get())
}

func TestLogoutSupersedesInflightLogin(t *testing.T) {
	cfg := simulationConfig()
	cfg.SimulationDelay = 2 * time.Second
	env := newTestEnv(t, cfg, "")
	ctx := context.Background()

	errs := make(chan error, 1)
	go func() {
		_, err := env.client.Login(ctx, "admin@x.com", DefaultSimulationPassword)
		errs <- err
	}()

	require.Eventually(t, func() bool {
		env.client.mu.Lock()
		defer env.client.mu.Unlock()
		return env.client.generation == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, env.client.Logout(ctx))
	assert.ErrorIs(t, <-errs, ErrSuperseded)
	assert.Equal(t, session.Anonymous(), env.client.Store().State())
	assert.Equal(t, 0, env.tokens.Len())
}

func TestProvider(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, simulationConfig(), "")
	p := NewProvider(env.client)

	assert.True(t, p.IsLoading())
	require.NoError(t, env.client.Restore(ctx))
	assert.False(t, p.IsLoading())
	assert.False(t, p.IsAuthenticated())

	var updates int
	unsubscribe := p.Subscribe(func(session.State) { updates++ })
	defer unsubscribe()

	_, err := p.Login(ctx, "dpo@x.com", "wrongpass")
	require.Error(t, err)
	assert.Equal(t, MessageInvalidCredentials, p.Error())
	p.ClearError()
	assert.Empty(t, p.Error())

	_, err = p.Login(ctx, "dpo@x.com", DefaultSimulationPassword)
	require.NoError(t, err)
	require.NotNil(t, p.User())
	assert.True(t, p.HasRole(rbac.RoleDPO, rbac.RoleAdmin))
	assert.False(t, p.HasRole())
	assert.True(t, p.CanAccess(rbac.GDPRManage))
	assert.False(t, p.CanAccess(rbac.UsersManage))
	assert.False(t, p.CanAccess(rbac.Permission("bogus.key")))

	require.NoError(t, p.Logout(ctx))
	assert.False(t, p.IsAuthenticated())
	assert.Equal(t, 6, updates)
}
