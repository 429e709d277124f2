package authclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"collectdesk/internal/api"
	"collectdesk/internal/ids"
	"collectdesk/internal/rbac"
	"collectdesk/internal/session"
)

const (
	DefaultSimulationPassword = "password123"
	simulatedTokenPrefix      = "sim."
	simulatedTokenTTL         = time.Hour
)

// Simulator stands in for the backend. Users are derived from the email so
// the same address always yields the same user.
type Simulator struct {
	password string
	delay    time.Duration
}

func NewSimulator(password string, delay time.Duration) *Simulator {
	if password == "" {
		password = DefaultSimulationPassword
	}
	return &Simulator{password: password, delay: delay}
}

func (s *Simulator) Login(ctx context.Context, email string, password string) (api.LoginResponse, error) {
	if err := s.wait(ctx); err != nil {
		return api.LoginResponse{}, err
	}

	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password != s.password {
		return api.LoginResponse{}, ErrInvalidCredentials
	}

	return api.LoginResponse{
		AccessToken:  simulatedToken("access"),
		RefreshToken: simulatedToken("refresh"),
		ExpiresIn:    int64(simulatedTokenTTL / time.Second),
		User:         SimulatedUser(email),
	}, nil
}

func (s *Simulator) Refresh(ctx context.Context, refreshToken string) (api.RefreshResponse, error) {
	if err := s.wait(ctx); err != nil {
		return api.RefreshResponse{}, err
	}
	if !IsSimulatedToken(refreshToken) {
		return api.RefreshResponse{}, ErrInvalidCredentials
	}
	return api.RefreshResponse{
		AccessToken: simulatedToken("access"),
		ExpiresIn:   int64(simulatedTokenTTL / time.Second),
	}, nil
}

func (s *Simulator) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func SimulatedUser(email string) session.User {
	email = strings.TrimSpace(strings.ToLower(email))
	local, domain, _ := strings.Cut(email, "@")

	role := simulatedRole(local)
	user := session.User{
		ID:          "usr_" + shortHash(email, 16),
		Email:       email,
		Name:        displayName(local),
		Role:        role,
		Permissions: rbac.PermissionStrings(role),
	}
	if role == rbac.RoleClient {
		clientID := "cli_" + shortHash(domain, 12)
		user.ClientID = &clientID
	}
	return user
}

func IsSimulatedToken(token string) bool {
	return strings.HasPrefix(token, simulatedTokenPrefix)
}

func simulatedRole(local string) rbac.Role {
	switch {
	case strings.HasPrefix(local, "admin"):
		return rbac.RoleAdmin
	case strings.HasPrefix(local, "agent"):
		return rbac.RoleAgent
	case strings.HasPrefix(local, "dpo"):
		return rbac.RoleDPO
	}
	return rbac.RoleClient
}

func displayName(local string) string {
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	for i, p := range parts {
		first, size := utf8.DecodeRuneInString(p)
		parts[i] = string(unicode.ToUpper(first)) + p[size:]
	}
	if len(parts) == 0 {
		return "User"
	}
	return strings.Join(parts, " ")
}

func shortHash(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:n]
}

func simulatedToken(kind string) string {
	return simulatedTokenPrefix + kind + "." + ids.New()
}
