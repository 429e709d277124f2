package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"collectdesk/internal/api"
	"collectdesk/internal/session"
	"collectdesk/internal/tokenstore"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoRefreshToken     = errors.New("no refresh token")
	ErrSuperseded         = errors.New("login superseded by a newer attempt")
	ErrInvalidResponse    = errors.New("invalid login response")
)

const (
	MessageInvalidCredentials = "Invalid email or password"
	MessageUnavailable        = "Authentication service unavailable"
	MessageTimeout            = "Login timed out"
	MessageStorage            = "Could not store session"
	MessageGeneric            = "Login failed"
)

type Mode string

const (
	ModeRemote     Mode = "remote"
	ModeSimulation Mode = "simulation"
)

const (
	loginPath   = "/api/v1/auth/login"
	refreshPath = "/api/v1/auth/refresh"
	logoutPath  = "/api/v1/auth/logout"
)

type Config struct {
	Mode Mode
	// SimulationFallback lets remote mode answer from the simulator when the
	// backend is unreachable. Leave it off outside development.
	SimulationFallback bool
	SimulationPassword string
	SimulationDelay    time.Duration
	LoginTimeout       time.Duration
}

type Client struct {
	cfg       Config
	requester *Requester
	simulator *Simulator
	tokens    tokenstore.Store
	holder    *TokenHolder
	store     *session.Store
	log       zerolog.Logger

	mu             sync.Mutex
	generation     uint64
	cancelInflight context.CancelFunc
}

func New(
	cfg Config,
	requester *Requester,
	tokens tokenstore.Store,
	holder *TokenHolder,
	store *session.Store,
	log zerolog.Logger,
) *Client {
	if cfg.Mode == "" {
		cfg.Mode = ModeRemote
	}
	return &Client{
		cfg:       cfg,
		requester: requester,
		simulator: NewSimulator(cfg.SimulationPassword, cfg.SimulationDelay),
		tokens:    tokens,
		holder:    holder,
		store:     store,
		log:       log,
	}
}

func (c *Client) Store() *session.Store {
	return c.store
}

func (c *Client) Requester() *Requester {
	return c.requester
}

// Restore rebuilds the session from the token store. Unusable records are
// wiped and the session falls back to anonymous without an error state. A
// store read failure leaves the record in place, ends loading as anonymous and
// is returned.
func (c *Client) Restore(ctx context.Context) error {
	rawUser, userErr := c.tokens.Get(ctx, tokenstore.KeyUser)
	access, accessErr := c.tokens.Get(ctx, tokenstore.KeyAccessToken)
	_, refreshErr := c.tokens.Get(ctx, tokenstore.KeyRefreshToken)

	// an unreachable store is not a corrupt record; keep it for the next try
	for _, err := range []error{userErr, accessErr, refreshErr} {
		if err != nil && !errors.Is(err, tokenstore.ErrNotFound) && !errors.Is(err, tokenstore.ErrCorrupt) {
			c.store.Dispatch(session.Logout())
			return fmt.Errorf("read persisted session: %w", err)
		}
	}

	if errors.Is(userErr, tokenstore.ErrNotFound) &&
		errors.Is(accessErr, tokenstore.ErrNotFound) &&
		errors.Is(refreshErr, tokenstore.ErrNotFound) {
		c.store.Dispatch(session.Logout())
		return nil
	}

	user, err := c.decodeStored(rawUser, userErr, access, accessErr)
	if err != nil {
		c.log.Debug().Err(err).Msg("discarding persisted session")
		c.holder.Clear()
		clearErr := tokenstore.Clear(ctx, c.tokens)
		c.store.Dispatch(session.Logout())
		if clearErr != nil {
			return fmt.Errorf("clear persisted session: %w", clearErr)
		}
		return nil
	}

	c.holder.Set(access)
	c.store.Dispatch(session.Success(user))
	return nil
}

func (c *Client) decodeStored(rawUser string, userErr error, access string, accessErr error) (session.User, error) {
	if userErr != nil {
		return session.User{}, fmt.Errorf("read user: %w", userErr)
	}
	if accessErr != nil {
		return session.User{}, fmt.Errorf("read access token: %w", accessErr)
	}
	if access == "" {
		return session.User{}, errors.New("empty access token")
	}

	var user session.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return session.User{}, fmt.Errorf("decode user: %w", err)
	}
	if err := user.Validate(); err != nil {
		return session.User{}, err
	}
	return user, nil
}

func (c *Client) Login(ctx context.Context, email string, password string) (session.User, error) {
	ctx, gen, done := c.begin(ctx)
	defer done()

	resp, err := c.authenticate(ctx, email, password)
	if err == nil {
		if verr := resp.User.Validate(); verr != nil {
			err = fmt.Errorf("%w: %w", ErrInvalidResponse, verr)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return session.User{}, ErrSuperseded
	}

	if err != nil {
		c.store.Dispatch(session.Failure(loginMessage(err)))
		return session.User{}, err
	}

	if err := c.persist(ctx, resp); err != nil {
		c.store.Dispatch(session.Failure(MessageStorage))
		return session.User{}, err
	}

	c.holder.Set(resp.AccessToken)
	c.store.Dispatch(session.Success(resp.User))
	c.log.Info().
		Str("user_id", resp.User.ID).
		Str("role", resp.User.Role.String()).
		Msg("login succeeded")
	return resp.User, nil
}

// begin supersedes any login still in flight.
func (c *Client) begin(parent context.Context) (context.Context, uint64, func()) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.cfg.LoginTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, c.cfg.LoginTimeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	c.mu.Lock()
	if c.cancelInflight != nil {
		c.cancelInflight()
	}
	c.generation++
	gen := c.generation
	c.cancelInflight = cancel
	c.store.Dispatch(session.Start())
	c.mu.Unlock()

	return ctx, gen, func() {
		cancel()
		c.mu.Lock()
		if c.generation == gen {
			c.cancelInflight = nil
		}
		c.mu.Unlock()
	}
}

func (c *Client) authenticate(ctx context.Context, email string, password string) (api.LoginResponse, error) {
	if c.cfg.Mode == ModeSimulation {
		return c.simulator.Login(ctx, email, password)
	}

	var resp api.LoginResponse
	err := c.requester.Do(ctx, http.MethodPost, loginPath, api.LoginRequest{
		Email:    email,
		Password: password,
	}, &resp)
	if err == nil {
		return resp, nil
	}

	if IsNetworkError(err) && c.cfg.SimulationFallback {
		c.log.Warn().Err(err).Msg("auth backend unreachable, using simulation")
		return c.simulator.Login(ctx, email, password)
	}
	if StatusCode(err) == http.StatusUnauthorized {
		return api.LoginResponse{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return api.LoginResponse{}, err
}

func (c *Client) persist(ctx context.Context, resp api.LoginResponse) error {
	rawUser, err := json.Marshal(resp.User)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	// the caller may have been cancelled after the response arrived
	ctx = context.WithoutCancel(ctx)
	if err := c.tokens.Set(ctx, map[tokenstore.Key]string{
		tokenstore.KeyAccessToken:  resp.AccessToken,
		tokenstore.KeyRefreshToken: resp.RefreshToken,
		tokenstore.KeyUser:         string(rawUser),
	}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

func loginMessage(err error) string {
	var pe *ProblemError
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return MessageInvalidCredentials
	case errors.Is(err, context.DeadlineExceeded):
		return MessageTimeout
	case IsNetworkError(err):
		return MessageUnavailable
	case errors.As(err, &pe) && pe.Problem.Detail != "":
		return pe.Problem.Detail
	case errors.As(err, &pe) && pe.Problem.Title != "":
		return pe.Problem.Title
	}
	return MessageGeneric
}

// Logout is safe to call without a session.
func (c *Client) Logout(ctx context.Context) error {
	refresh, err := c.tokens.Get(ctx, tokenstore.KeyRefreshToken)
	if err == nil && refresh != "" && !IsSimulatedToken(refresh) && c.cfg.Mode == ModeRemote {
		if err := c.requester.Do(ctx, http.MethodPost, logoutPath, api.LogoutRequest{RefreshToken: refresh}, nil); err != nil {
			c.log.Warn().Err(err).Msg("server logout failed")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelInflight != nil {
		c.cancelInflight()
		c.cancelInflight = nil
	}
	c.generation++

	c.holder.Clear()
	clearErr := tokenstore.Clear(context.WithoutCancel(ctx), c.tokens)
	c.store.Dispatch(session.Logout())
	if clearErr != nil {
		return fmt.Errorf("clear persisted session: %w", clearErr)
	}
	return nil
}

func (c *Client) ClearError() {
	c.store.Dispatch(session.ClearError())
}

// RefreshToken exchanges the stored refresh token for a new access token. It
// never changes the session state; callers force a re-login on error.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	refresh, err := c.tokens.Get(ctx, tokenstore.KeyRefreshToken)
	if err != nil || refresh == "" {
		if err == nil || errors.Is(err, tokenstore.ErrNotFound) {
			return "", ErrNoRefreshToken
		}
		return "", fmt.Errorf("read refresh token: %w", err)
	}

	var resp api.RefreshResponse
	if IsSimulatedToken(refresh) {
		resp, err = c.simulator.Refresh(ctx, refresh)
	} else {
		err = c.requester.Do(ctx, http.MethodPost, refreshPath, api.RefreshRequest{RefreshToken: refresh}, &resp)
	}
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("refresh token: %w", ErrInvalidResponse)
	}

	values := map[tokenstore.Key]string{tokenstore.KeyAccessToken: resp.AccessToken}
	if resp.RefreshToken != "" {
		values[tokenstore.KeyRefreshToken] = resp.RefreshToken
	}
	if err := c.tokens.Set(ctx, values); err != nil {
		return "", fmt.Errorf("store refreshed token: %w", err)
	}
	c.holder.Set(resp.AccessToken)
	return resp.AccessToken, nil
}
