// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
)

// Default endpoint paths of the accounts API.
const (
	DefaultLoginPath   = "/api/accounts/login/"
	DefaultLogoutPath  = "/api/accounts/logout/"
	DefaultRefreshPath = "/api/accounts/refresh/"
	DefaultProfilePath = "/api/accounts/profile/"
)

// DefaultTimeout bounds a single HTTP exchange.
const DefaultTimeout = 30 * time.Second

// Endpoints names the paths the gateway treats specially.
type Endpoints struct {
	Login   string
	Logout  string
	Refresh string
	Profile string
}

// DefaultEndpoints returns the standard accounts API paths.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:   DefaultLoginPath,
		Logout:  DefaultLogoutPath,
		Refresh: DefaultRefreshPath,
		Profile: DefaultProfilePath,
	}
}

// Navigator moves the user to the login surface once the session is lost.
type Navigator interface {
	ToLogin(ctx context.Context)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context)

// ToLogin implements Navigator.
func (f NavigatorFunc) ToLogin(ctx context.Context) { f(ctx) }

// Gateway is the single entry point for API calls. It keeps the session
// alive across credential expiry and is the only writer of its Session.
type Gateway struct {
	transport   *Transport
	coordinator *Coordinator
	session     *Session
	endpoints   Endpoints
	navigator   Navigator
	logger      zerolog.Logger
	metrics     *Metrics
}

type settings struct {
	client     *http.Client
	jar        http.CookieJar
	creds      CredentialProvider
	csrfHeader string
	csrfCookie string
	endpoints  Endpoints
	navigator  Navigator
	session    *Session
	logger     zerolog.Logger
	metrics    *Metrics
	timeout    time.Duration
	userAgent  string
}

// Option configures a Gateway.
type Option func(*settings)

// WithHTTPClient uses client for all calls. Its cookie jar is replaced by the
// gateway's jar when it has none.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) { s.client = client }
}

// WithCookieJar shares jar with the gateway.
func WithCookieJar(jar http.CookieJar) Option {
	return func(s *settings) { s.jar = jar }
}

// WithCredentialProvider overrides where the anti-forgery token comes from.
func WithCredentialProvider(p CredentialProvider) Option {
	return func(s *settings) { s.creds = p }
}

// WithCSRFHeader sets the anti-forgery header name.
func WithCSRFHeader(name string) Option {
	return func(s *settings) { s.csrfHeader = name }
}

// WithCSRFCookie sets the cookie the anti-forgery token is read from.
func WithCSRFCookie(name string) Option {
	return func(s *settings) { s.csrfCookie = name }
}

// WithEndpoints overrides the special endpoint paths. Empty fields keep
// their defaults.
func WithEndpoints(e Endpoints) Option {
	return func(s *settings) {
		if e.Login != "" {
			s.endpoints.Login = e.Login
		}
		if e.Logout != "" {
			s.endpoints.Logout = e.Logout
		}
		if e.Refresh != "" {
			s.endpoints.Refresh = e.Refresh
		}
		if e.Profile != "" {
			s.endpoints.Profile = e.Profile
		}
	}
}

// WithNavigator installs the login redirect collaborator.
func WithNavigator(n Navigator) Option {
	return func(s *settings) { s.navigator = n }
}

// WithSession makes the gateway the writer of an existing session.
func WithSession(sess *Session) Option {
	return func(s *settings) { s.session = sess }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithTimeout sets the per-exchange timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *settings) { s.userAgent = ua }
}

// New creates a gateway for baseURL.
func New(baseURL string, opts ...Option) (*Gateway, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	s := settings{
		endpoints: DefaultEndpoints(),
		logger:    zerolog.Nop(),
		timeout:   DefaultTimeout,
		userAgent: "acctl",
	}
	for _, opt := range opts {
		opt(&s)
	}

	if s.jar == nil {
		if s.client != nil && s.client.Jar != nil {
			s.jar = s.client.Jar
		} else {
			jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
			if err != nil {
				return nil, fmt.Errorf("create cookie jar: %w", err)
			}
			s.jar = jar
		}
	}
	client := s.client
	if client == nil {
		client = &http.Client{Timeout: s.timeout}
	} else {
		c := *client
		client = &c
	}
	// Credentials always travel with the call.
	client.Jar = s.jar

	if s.creds == nil {
		s.creds = CookieJarProvider{Jar: s.jar, URL: base, Name: s.csrfCookie}
	}
	if s.session == nil {
		s.session = NewSession(StatusUnknown, nil)
	}

	g := &Gateway{
		transport: &Transport{
			baseURL:     base,
			client:      client,
			credentials: s.creds,
			csrfHeader:  s.csrfHeader,
			userAgent:   s.userAgent,
			logger:      s.logger,
			metrics:     s.metrics,
		},
		session:   s.session,
		endpoints: s.endpoints,
		navigator: s.navigator,
		logger:    s.logger,
		metrics:   s.metrics,
	}
	g.coordinator = NewCoordinator(g.refreshSession, g.settle)
	return g, nil
}

// Call performs one API call. Client and network/server failures come back
// as a *Result with Failure set and a nil error. A non-nil error means the
// session could not be kept (ErrRefreshFailed) or ctx ended.
func (g *Gateway) Call(ctx context.Context, target string, opts Options) (*Result, error) {
	return g.call(ctx, NewDescriptor(target, opts), nil)
}

// call issues d. cycle is the refresh that d is being replayed after, or nil
// for a first attempt.
func (g *Gateway) call(ctx context.Context, d Descriptor, cycle *refreshCall) (*Result, error) {
	res, err := g.transport.Execute(ctx, d)
	if cycle != nil {
		g.metrics.RecordReplay(err == nil)
	}
	if err == nil {
		g.observeSuccess(d)
		return res, nil
	}

	var e *Error
	if !errors.As(err, &e) {
		return nil, err
	}

	if g.targets(d, g.endpoints.Login) {
		// Rejected credentials are not an expired session.
		return &Result{StatusCode: e.Status, Header: e.Header, Body: e.Body, Failure: newFailure(e)}, nil
	}

	if e.Kind == KindAuthExpired {
		return g.expired(ctx, d, e, cycle)
	}

	f := newFailure(e)
	body, mErr := json.Marshal(f)
	if mErr != nil {
		return nil, mErr
	}
	return &Result{StatusCode: e.Status, Header: e.Header, Body: body, Failure: f}, nil
}

// expired handles a 401 on d.
func (g *Gateway) expired(ctx context.Context, d Descriptor, cause *Error, cycle *refreshCall) (*Result, error) {
	if g.targets(d, g.endpoints.Refresh) {
		g.expire(ctx, "refresh endpoint rejected the session")
		return nil, refreshFailed(d.Method, d.Target, cause)
	}
	if cycle != nil {
		cycle.lose(func() { g.expire(ctx, "session rejected after refresh") })
		return nil, refreshFailed(d.Method, d.Target, cause)
	}

	call, wait, initiator := g.coordinator.join(ctx, &d)
	if !initiator {
		g.metrics.RecordQueued()
		g.logger.Debug().Str("method", d.Method).Str("target", d.Target).Msg("queued behind session refresh")
		return await(ctx, wait)
	}

	if err := g.coordinator.run(ctx, call); err != nil {
		return nil, refreshFailed(d.Method, d.Target, err)
	}
	return g.call(ctx, d, call)
}

// refreshSession issues the refresh call. Only the status matters.
func (g *Gateway) refreshSession(ctx context.Context) error {
	g.logger.Info().Msg("refreshing session")
	g.metrics.RecordRefreshStart()
	_, err := g.transport.Execute(ctx, NewDescriptor(g.endpoints.Refresh, Options{Method: http.MethodPost}))
	g.metrics.RecordRefresh(err)
	return err
}

// settle drains the queue of a finished refresh cycle.
func (g *Gateway) settle(ctx context.Context, call *refreshCall, entries []*pendingEntry) {
	if call.err != nil {
		g.logger.Warn().Err(call.err).Int("queued", len(entries)).Msg("session refresh failed")
		drainOnFailure(entries, call.err)
		call.lose(func() { g.expire(ctx, "session refresh failed") })
		return
	}
	g.logger.Info().Int("queued", len(entries)).Msg("session refreshed")
	drainOnSuccess(entries, func(ctx context.Context, d Descriptor) (*Result, error) {
		return g.call(ctx, d, call)
	})
}

// expire drops the session and sends the user to login.
func (g *Gateway) expire(ctx context.Context, reason string) {
	g.logger.Warn().Str("reason", reason).Msg("session lost")
	g.setStatus(StatusUnauthenticated)
	if g.navigator != nil {
		g.navigator.ToLogin(ctx)
	}
}

// targets reports whether d addresses endpoint once both are resolved
// against the base URL. Paths must match exactly.
func (g *Gateway) targets(d Descriptor, endpoint string) bool {
	return endpoint != "" && g.transport.location(d.Target) == g.transport.location(endpoint)
}

func (g *Gateway) observeSuccess(d Descriptor) {
	switch {
	case g.targets(d, g.endpoints.Login), g.targets(d, g.endpoints.Profile):
		g.setStatus(StatusAuthenticated)
	case g.targets(d, g.endpoints.Logout):
		g.setStatus(StatusUnauthenticated)
	}
}

func (g *Gateway) setStatus(s Status) {
	changed, err := g.session.set(s)
	if err != nil {
		g.logger.Warn().Err(err).Str("state", s.String()).Msg("persist session state")
	}
	if changed {
		g.metrics.RecordSessionTransition(s)
		g.logger.Info().Str("state", s.String()).Msg("session state changed")
	}
}

// Refresh renews the session, joining a refresh already in flight.
func (g *Gateway) Refresh(ctx context.Context) error {
	if err := g.coordinator.EnsureRefreshed(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return err
		}
		return refreshFailed(http.MethodPost, g.endpoints.Refresh, err)
	}
	return nil
}

// Logout ends the session on the server and locally. The local session is
// cleared even when the remote call fails; no login redirect is issued.
func (g *Gateway) Logout(ctx context.Context) (*Result, error) {
	res, err := g.transport.Execute(ctx, NewDescriptor(g.endpoints.Logout, Options{Method: http.MethodPost}))
	g.setStatus(StatusUnauthenticated)
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return &Result{StatusCode: e.Status, Header: e.Header, Body: e.Body, Failure: newFailure(e)}, nil
		}
		return nil, err
	}
	return res, nil
}

// Session returns the read side of the session state.
func (g *Gateway) Session() *Session { return g.session }

// Endpoints returns the configured special paths.
func (g *Gateway) Endpoints() Endpoints { return g.endpoints }

// Jar returns the cookie jar holding the session credential.
func (g *Gateway) Jar() http.CookieJar { return g.transport.client.Jar }

// BaseURL returns a copy of the base URL.
func (g *Gateway) BaseURL() *url.URL {
	u := *g.transport.baseURL
	return &u
}
