package authclient

import (
	"context"

	"collectdesk/internal/rbac"
	"collectdesk/internal/session"
)

// Provider is what UI code consumes instead of touching the token store or
// the session store directly.
type Provider struct {
	client *Client
}

func NewProvider(client *Client) *Provider {
	return &Provider{client: client}
}

func (p *Provider) State() session.State {
	return p.client.Store().State()
}

func (p *Provider) User() *session.User {
	return p.State().User
}

func (p *Provider) IsAuthenticated() bool {
	return p.State().IsAuthenticated
}

func (p *Provider) IsLoading() bool {
	return p.State().IsLoading
}

func (p *Provider) Error() string {
	return p.State().ErrorMessage()
}

func (p *Provider) Login(ctx context.Context, email string, password string) (session.User, error) {
	return p.client.Login(ctx, email, password)
}

func (p *Provider) Logout(ctx context.Context) error {
	return p.client.Logout(ctx)
}

func (p *Provider) ClearError() {
	p.client.ClearError()
}

func (p *Provider) HasRole(roles ...rbac.Role) bool {
	return p.State().HasRole(roles...)
}

func (p *Provider) CanAccess(permission rbac.Permission) bool {
	return p.State().CanAccess(permission)
}

func (p *Provider) Subscribe(fn func(session.State)) func() {
	return p.client.Store().Subscribe(fn)
}
