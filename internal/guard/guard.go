// Package guard decides what a route shows for a given session: the protected
// content, a loading view, a login redirect, or an access denial.
package guard

import (
	"net/url"

	"collectdesk/internal/rbac"
	"collectdesk/internal/session"
)

const (
	DefaultLoginPath   = "/login"
	DefaultFallbackURL = "/"
	RedirectParam      = "redirect"
)

type Outcome int

const (
	Allow Outcome = iota
	Loading
	RedirectLogin
	AccessDenied
	RedirectFallback
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect_login"
	case AccessDenied:
		return "access_denied"
	case RedirectFallback:
		return "redirect_fallback"
	}
	return "unknown"
}

// Options configures a guarded route. A nil AllowedRoles skips the role
// check; a non-nil empty slice denies everyone. RedirectOnDeny sends denied
// users to FallbackURL instead of showing the access-denied view.
type Options struct {
	AllowedRoles       []rbac.Role
	RequiredPermission rbac.Permission
	FallbackURL        string
	RedirectOnDeny     bool
	LoginPath          string
}

type Decision struct {
	Outcome  Outcome
	Location string
	Reason   string
}

func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

// Evaluate checks loading, authentication, role and permission in that
// order. The first failing check decides.
func Evaluate(state session.State, requested string, opts Options) Decision {
	if state.IsLoading {
		return Decision{Outcome: Loading}
	}

	if !state.IsAuthenticated {
		return Decision{
			Outcome:  RedirectLogin,
			Location: LoginLocation(opts.LoginPath, requested),
			Reason:   "unauthenticated",
		}
	}

	if opts.AllowedRoles != nil && !state.HasRole(opts.AllowedRoles...) {
		return deny(opts, "role")
	}

	if opts.RequiredPermission != "" && !state.CanAccess(opts.RequiredPermission) {
		return deny(opts, "permission")
	}

	return Decision{Outcome: Allow}
}

func deny(opts Options, reason string) Decision {
	if opts.RedirectOnDeny {
		fallback := opts.FallbackURL
		if fallback == "" {
			fallback = DefaultFallbackURL
		}
		return Decision{Outcome: RedirectFallback, Location: fallback, Reason: reason}
	}
	return Decision{Outcome: AccessDenied, Reason: reason}
}

// LoginLocation builds the login URL carrying the page to return to.
func LoginLocation(loginPath string, requested string) string {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	if requested == "" {
		return loginPath
	}
	return loginPath + "?" + url.Values{RedirectParam: {requested}}.Encode()
}

type GateOptions struct {
	AllowedRoles       []rbac.Role
	RequiredPermission rbac.Permission
}

// Gate is the inline variant: true when the fragment should render.
func Gate(state session.State, opts GateOptions) bool {
	return Evaluate(state, "", Options{
		AllowedRoles:       opts.AllowedRoles,
		RequiredPermission: opts.RequiredPermission,
	}).Allowed()
}
