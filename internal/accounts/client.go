// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package accounts is a typed client for the accounts API: login and profile,
// users, roles and permissions. Every call goes through the session-keeping
// gateway, so an expired session is refreshed transparently.
package accounts

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"acctl/cli/internal/backend"
	acerrors "acctl/cli/internal/errors"
)

// Paths are the resource paths of the accounts API.
type Paths struct {
	Login       string
	Logout      string
	Profile     string
	Users       string
	Roles       string
	Permissions string
}

// DefaultPaths returns the standard accounts API paths.
func DefaultPaths() Paths {
	return Paths{
		Login:       backend.DefaultLoginPath,
		Logout:      backend.DefaultLogoutPath,
		Profile:     backend.DefaultProfilePath,
		Users:       "/api/accounts/users/",
		Roles:       "/api/accounts/roles/",
		Permissions: "/api/accounts/permissions/",
	}
}

// Client calls the accounts API through a gateway.
type Client struct {
	gw      *backend.Gateway
	paths   Paths
	logger  zerolog.Logger
	profile singleflight.Group
}

// New returns a client. Empty paths fall back to DefaultPaths.
func New(gw *backend.Gateway, paths Paths, logger zerolog.Logger) *Client {
	def := DefaultPaths()
	orDefault(&paths.Login, def.Login)
	orDefault(&paths.Logout, def.Logout)
	orDefault(&paths.Profile, def.Profile)
	orDefault(&paths.Users, def.Users)
	orDefault(&paths.Roles, def.Roles)
	orDefault(&paths.Permissions, def.Permissions)
	return &Client{gw: gw, paths: paths, logger: logger}
}

func orDefault(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

// fetch performs a call and unwraps the response envelope.
func fetch[T any](ctx context.Context, c *Client, target string, opts backend.Options) (T, error) {
	var zero T
	env, err := backend.Do[Envelope[T]](ctx, c.gw, target, opts)
	if err != nil {
		return zero, err
	}
	if !env.Status {
		return zero, envelopeFailure(env.Code, env.Message, env.Detail, env.Errors)
	}
	return env.Data, nil
}

// exec performs a call whose body is not needed.
func (c *Client) exec(ctx context.Context, target string, opts backend.Options) error {
	res, err := c.gw.Call(ctx, target, opts)
	if err != nil {
		return err
	}
	if res.Failure != nil {
		return res.Failure
	}
	return nil
}

// envelopeFailure reports a 2xx answer whose envelope says status:false.
func envelopeFailure(code, message string, detail, errs any) *backend.Failure {
	if code == "" {
		code = "request_failed"
	}
	if message == "" {
		message = "the server reported a failure"
	}
	if detail == nil {
		detail = errs
	}
	return &backend.Failure{
		Code:       code,
		Message:    message,
		Detail:     detail,
		Kind:       backend.KindClientRejected,
		HTTPStatus: http.StatusOK,
	}
}

func (c *Client) item(base string, id ID, action string) string {
	p := strings.TrimRight(base, "/") + "/" + string(id) + "/"
	if action != "" {
		p += action + "/"
	}
	return p
}

// Login signs in and returns the profile of the signed-in user.
func (c *Client) Login(ctx context.Context, creds Credentials) (*UserDetail, error) {
	res, err := c.gw.Call(ctx, c.paths.Login, backend.Options{Method: http.MethodPost, Body: creds})
	if err != nil {
		return nil, err
	}
	if res.Failure != nil {
		return nil, res.Failure
	}
	c.logger.Debug().Msg("login accepted, fetching profile")
	return c.Profile(ctx)
}

// Logout ends the session. The local session is cleared even if the server
// call fails; the failure is still returned.
func (c *Client) Logout(ctx context.Context) error {
	res, err := c.gw.Logout(ctx)
	if err != nil {
		return err
	}
	if res.Failure != nil {
		c.logger.Warn().Str("code", res.Failure.Code).Msg("remote logout failed")
		return res.Failure
	}
	return nil
}

// Profile returns the signed-in user. Concurrent callers share one request,
// which keeps running when a caller gives up; that caller just stops waiting.
func (c *Client) Profile(ctx context.Context) (*UserDetail, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.profile.DoChan("profile", func() (any, error) {
		u, err := fetch[UserDetail](shared, c, c.paths.Profile, backend.Options{})
		if err != nil {
			return nil, err
		}
		return &u, nil
	})
	select {
	case r := <-ch:
		if r.Shared {
			c.logger.Debug().Msg("profile request shared")
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*UserDetail), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Guard reports whether there is a usable session: it trusts an
// authenticated session state and otherwise fetches the profile.
func (c *Client) Guard(ctx context.Context) error {
	if c.gw.Session().Authenticated() {
		return nil
	}
	if _, err := c.Profile(ctx); err != nil {
		var f *backend.Failure
		if errors.As(err, &f) && f.Kind == backend.KindNetworkOrServer {
			return acerrors.Wrap(acerrors.RequestFailed, "could not reach the accounts API", err)
		}
		return acerrors.Wrap(acerrors.NotLoggedIn, "no active session", err)
	}
	return nil
}

// ListUsers returns a page of users.
func (c *Client) ListUsers(ctx context.Context, q UserQuery) (*Page[User], error) {
	p, err := fetch[Page[User]](ctx, c, c.paths.Users, backend.Options{Query: q.Values()})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetUser returns one user.
func (c *Client) GetUser(ctx context.Context, id ID) (*UserDetail, error) {
	u, err := fetch[UserDetail](ctx, c, c.item(c.paths.Users, id, ""), backend.Options{})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser creates a user.
func (c *Client) CreateUser(ctx context.Context, req UserRequest) (*User, error) {
	u, err := fetch[User](ctx, c, c.paths.Users, backend.Options{Method: http.MethodPost, Body: req})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser patches a user.
func (c *Client) UpdateUser(ctx context.Context, id ID, req UserRequest) (*User, error) {
	u, err := fetch[User](ctx, c, c.item(c.paths.Users, id, ""), backend.Options{Method: http.MethodPatch, Body: req})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser deletes a user.
func (c *Client) DeleteUser(ctx context.Context, id ID) error {
	return c.exec(ctx, c.item(c.paths.Users, id, ""), backend.Options{Method: http.MethodDelete})
}

// ActivateUser enables a user account.
func (c *Client) ActivateUser(ctx context.Context, id ID) (*User, error) {
	return c.userAction(ctx, id, "activate", nil)
}

// DeactivateUser disables a user account.
func (c *Client) DeactivateUser(ctx context.Context, id ID) (*User, error) {
	return c.userAction(ctx, id, "deactivate", nil)
}

// ResetPassword asks the server to reset the user's password.
func (c *Client) ResetPassword(ctx context.Context, id ID) (*User, error) {
	return c.userAction(ctx, id, "reset_password", map[string]any{})
}

func (c *Client) userAction(ctx context.Context, id ID, action string, body any) (*User, error) {
	u, err := fetch[User](ctx, c, c.item(c.paths.Users, id, action), backend.Options{Method: http.MethodPost, Body: body})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListRoles returns a page of roles.
func (c *Client) ListRoles(ctx context.Context, q RoleQuery) (*Page[Role], error) {
	p, err := fetch[Page[Role]](ctx, c, c.paths.Roles, backend.Options{Query: q.Values()})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetRole returns one role.
func (c *Client) GetRole(ctx context.Context, id ID) (*Role, error) {
	r, err := fetch[Role](ctx, c, c.item(c.paths.Roles, id, ""), backend.Options{})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRole creates a role.
func (c *Client) CreateRole(ctx context.Context, req RoleRequest) (*Role, error) {
	r, err := fetch[Role](ctx, c, c.paths.Roles, backend.Options{Method: http.MethodPost, Body: req})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRole patches a role.
func (c *Client) UpdateRole(ctx context.Context, id ID, req RoleRequest) (*Role, error) {
	r, err := fetch[Role](ctx, c, c.item(c.paths.Roles, id, ""), backend.Options{Method: http.MethodPatch, Body: req})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRole deletes a role.
func (c *Client) DeleteRole(ctx context.Context, id ID) error {
	return c.exec(ctx, c.item(c.paths.Roles, id, ""), backend.Options{Method: http.MethodDelete})
}

// ListPermissions returns a page of permissions.
func (c *Client) ListPermissions(ctx context.Context, q PageQuery) (*Page[Permission], error) {
	p, err := fetch[Page[Permission]](ctx, c, c.paths.Permissions, backend.Options{Query: q.Values()})
	if err != nil {
		return nil, err
	}
	return &p, nil
}
