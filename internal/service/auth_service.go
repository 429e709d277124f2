package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"collectdesk/internal/config"
	"collectdesk/internal/ids"
	"collectdesk/internal/models"
	"collectdesk/internal/rbac"
	"collectdesk/internal/repository"
	"collectdesk/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserSuspended      = errors.New("user suspended")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrInvalidInput       = errors.New("invalid input")
)

// UserStore is the slice of repository.UserRepository the service needs.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	UpdateStatus(ctx context.Context, id string, status models.UserStatus) error
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	Rotate(ctx context.Context, id string, oldHash []byte, newHash []byte, expiresAt time.Time) error
	FindByRefreshHash(ctx context.Context, refreshHash []byte) (models.Session, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	DeleteOldestSessions(ctx context.Context, userID string, keepLatest int) error
	DeleteByID(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (models.Session, error)
	Touch(ctx context.Context, sessionID string, ip string, userAgent string) error
}

type AuthService struct {
	users    UserStore
	sessions SessionStore
	throttle *LoginThrottle
	events   EventPublisher
	cfg      *config.AppConfig
	log      zerolog.Logger
	hasher   func(string) ([]byte, error)
	now      func() time.Time
}

func NewAuthService(
	users UserStore,
	sessions SessionStore,
	throttle *LoginThrottle,
	events EventPublisher,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	if events == nil {
		events = noopPublisher{}
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		throttle: throttle,
		events:   events,
		cfg:      cfg,
		log:      log,
		hasher:   security.HashPassword,
		now:      time.Now,
	}
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	User         models.User
	SessionID    string
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return AuthResult{}, ErrInvalidCredentials
	}

	allowed, err := s.throttle.Attempt(ctx, email)
	if err != nil {
		s.log.Warn().Err(err).Msg("login throttle unavailable")
	} else if !allowed {
		s.log.Warn().Str("email", email).Str("ip", input.IPAddress).Msg("login throttled")
		s.events.Publish(ctx, AuthEvent{Name: EventLoginBlocked, Email: email, IPAddress: input.IPAddress})
		return AuthResult{}, ErrTooManyAttempts
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, s.loginFailed(ctx, email, "", input.IPAddress)
		}
		return AuthResult{}, err
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, s.loginFailed(ctx, email, user.ID, input.IPAddress)
	}

	if err := s.throttle.Reset(ctx, email); err != nil {
		s.log.Warn().Err(err).Msg("reset login throttle failed")
	}

	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	result, err := s.createSession(ctx, user, input.IPAddress, input.UserAgent)
	if err != nil {
		return AuthResult{}, err
	}
	s.events.Publish(ctx, AuthEvent{Name: EventLogin, UserID: user.ID, Email: email, IPAddress: input.IPAddress})
	return result, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email string, userID string, ip string) error {
	s.events.Publish(ctx, AuthEvent{Name: EventLoginFailed, UserID: userID, Email: email, IPAddress: ip})
	return ErrInvalidCredentials
}

func (s *AuthService) createSession(ctx context.Context, user models.User, ipAddress string, userAgent string) (AuthResult, error) {
	refreshToken, refreshHash, err := security.GenerateRefreshToken(64)
	if err != nil {
		return AuthResult{}, err
	}

	session := models.Session{
		ID:               ids.New(),
		UserID:           user.ID,
		RefreshTokenHash: refreshHash,
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		ExpiresAt:        s.now().Add(s.cfg.Security.JWTRefreshTTL),
	}

	accessToken, err := s.accessToken(user, session.ID)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthResult{}, fmt.Errorf("create session: %w", err)
	}

	if err := s.enforceSessionLimit(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enforce session limit failed")
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    s.cfg.Security.JWTAccessTTL,
		User:         user,
		SessionID:    session.ID,
	}, nil
}

func (s *AuthService) accessToken(user models.User, sessionID string) (string, error) {
	input := security.AccessTokenInput{
		UserID:    user.ID,
		SessionID: sessionID,
		Role:      user.Role.String(),
	}
	if user.ClientID != nil {
		input.ClientID = *user.ClientID
	}
	return security.GenerateAccessToken(s.cfg.Security.JWTAccessSecret, input, s.cfg.Security.JWTAccessTTL)
}

func (s *AuthService) enforceSessionLimit(ctx context.Context, userID string) error {
	if s.cfg.Security.MaxSessions <= 0 {
		return nil
	}
	count, err := s.sessions.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count <= s.cfg.Security.MaxSessions {
		return nil
	}
	return s.sessions.DeleteOldestSessions(ctx, userID, s.cfg.Security.MaxSessions)
}

// Refresh rotates the session's refresh token. The old token stops working
// once a new one has been issued.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	if refreshToken == "" {
		return AuthResult{}, ErrInvalidCredentials
	}

	oldHash := security.HashRefreshToken(refreshToken)
	session, err := s.sessions.FindByRefreshHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if session.Expired(s.now()) {
		_ = s.sessions.DeleteByID(ctx, session.ID)
		return AuthResult{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			_ = s.sessions.DeleteByID(ctx, session.ID)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}
	if user.Status != models.UserStatusActive {
		_ = s.sessions.DeleteByID(ctx, session.ID)
		return AuthResult{}, ErrUserSuspended
	}

	newToken, newHash, err := security.GenerateRefreshToken(64)
	if err != nil {
		return AuthResult{}, err
	}
	if err := s.sessions.Rotate(ctx, session.ID, oldHash, newHash, s.now().Add(s.cfg.Security.JWTRefreshTTL)); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("rotate session: %w", err)
	}

	accessToken, err := s.accessToken(user, session.ID)
	if err != nil {
		return AuthResult{}, err
	}

	s.events.Publish(ctx, AuthEvent{Name: EventRefresh, UserID: user.ID, Email: user.Email})
	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: newToken,
		ExpiresIn:    s.cfg.Security.JWTAccessTTL,
		User:         user,
		SessionID:    session.ID,
	}, nil
}

// Logout deletes the session owning refreshToken. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	session, err := s.sessions.FindByRefreshHash(ctx, security.HashRefreshToken(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if err := s.sessions.DeleteByID(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	s.events.Publish(ctx, AuthEvent{Name: EventLogout, UserID: session.UserID})
	return nil
}

// Authenticate resolves a bearer access token into its user. The token's
// session must still exist, so a revoked session stops its access tokens too.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (models.User, *security.AccessClaims, error) {
	claims, err := security.ParseAccessToken(accessToken, s.cfg.Security.JWTAccessSecret)
	if err != nil {
		return models.User{}, nil, ErrInvalidCredentials
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return models.User{}, nil, ErrInvalidCredentials
		}
		return models.User{}, nil, err
	}
	if session.UserID != claims.UserID || session.Expired(s.now()) {
		return models.User{}, nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, nil, ErrInvalidCredentials
		}
		return models.User{}, nil, err
	}
	if user.Status != models.UserStatusActive {
		return models.User{}, nil, ErrUserSuspended
	}
	return user, claims, nil
}

// Touch records activity on a session. Failures are logged only.
func (s *AuthService) Touch(ctx context.Context, sessionID string, ip string, userAgent string) {
	if err := s.sessions.Touch(ctx, sessionID, ip, userAgent); err != nil {
		s.log.Debug().Err(err).Str("session_id", sessionID).Msg("touch session failed")
	}
}

type CreateUserInput struct {
	Email    string
	Password string
	Name     string
	Role     string
	ClientID string
}

func (s *AuthService) CreateUser(ctx context.Context, input CreateUserInput) (models.User, error) {
	email := normalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return models.User{}, fmt.Errorf("%w: email required", ErrInvalidInput)
	}
	if len(input.Password) < 8 {
		return models.User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	role, err := rbac.ParseRole(input.Role)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var clientID *string
	switch {
	case role == rbac.RoleClient && input.ClientID == "":
		return models.User{}, fmt.Errorf("%w: client users need a client id", ErrInvalidInput)
	case role != rbac.RoleClient && input.ClientID != "":
		return models.User{}, fmt.Errorf("%w: only client users carry a client id", ErrInvalidInput)
	case input.ClientID != "":
		id := input.ClientID
		clientID = &id
	}

	passwordHash, err := s.hasher(input.Password)
	if err != nil {
		return models.User{}, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = email[:strings.Index(email, "@")]
	}

	user := models.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		ClientID:     clientID,
		Status:       models.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return models.User{}, err
	}

	s.events.Publish(ctx, AuthEvent{Name: EventUserCreated, UserID: user.ID, Email: email})
	return user, nil
}

// SetUserStatus activates or suspends an account. Suspension takes effect on
// the next request: Authenticate and Refresh both reject suspended users.
func (s *AuthService) SetUserStatus(ctx context.Context, id string, status string) (models.User, error) {
	next := models.UserStatus(strings.ToLower(strings.TrimSpace(status)))
	if !next.Valid() {
		return models.User{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if err := s.users.UpdateStatus(ctx, id, next); err != nil {
		return models.User{}, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	s.log.Info().Str("user_id", id).Str("status", string(next)).Msg("user status changed")
	s.events.Publish(ctx, AuthEvent{Name: EventUserStatus, UserID: id, Email: user.Email})
	return user, nil
}

// EnsureBootstrapAdmin creates the configured admin account when it does not
// exist yet. An empty bootstrap email is a no-op.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context) error {
	boot := s.cfg.Bootstrap
	if boot.AdminEmail == "" {
		return nil
	}
	_, err := s.users.FindByEmail(ctx, normalizeEmail(boot.AdminEmail))
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}

	user, err := s.CreateUser(ctx, CreateUserInput{
		Email:    boot.AdminEmail,
		Password: boot.AdminPassword,
		Name:     boot.AdminName,
		Role:     rbac.RoleAdmin.String(),
	})
	if errors.Is(err, repository.ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	s.log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("bootstrap admin created")
	return nil
}
