// Package federation implements the OpenID Connect authorization-code flow
// used for browser logins. The broker keeps no per-flow state of its own:
// every pending flow lives in the session cache, keyed by its CSRF token.
package federation

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/sessioncache"
	"github.com/benbjohnson/clock"
	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	// ErrInvalidState covers unknown, expired or replayed state and nonce mismatches.
	ErrInvalidState = errors.New("invalid state")
	// ErrProviderExchange wraps failures talking to the identity provider.
	ErrProviderExchange = errors.New("provider exchange failed")
	// ErrIncompleteIdentity means the ID token lacked a name or email.
	ErrIncompleteIdentity = errors.New("incomplete identity")
	// ErrForbidden means the identity is outside the allow-list.
	ErrForbidden = errors.New("identity not allowed")
)

const (
	DefaultStateTTL     = 5 * time.Minute
	DefaultPrincipalTTL = 24 * time.Hour
	DefaultHTTPTimeout  = 10 * time.Second
)

// Config describes the single upstream provider.
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// AllowedDomains and AllowedEmails form the allow-list. An identity
	// passes when either matches. Both empty admits every identity.
	AllowedDomains []string
	AllowedEmails  []string

	StateTTL     time.Duration
	PrincipalTTL time.Duration
	HTTPTimeout  time.Duration

	EmailClaim string
	NameClaim  string
}

// RoleSource resolves the stored role for an email.
type RoleSource interface {
	GetRole(ctx context.Context, email string) (auth.Role, bool, error)
}

// Broker runs the authorization-code flow against one provider.
type Broker struct {
	cfg        Config
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
	cache      sessioncache.Store
	roles      RoleSource
	clock      clock.Clock
	log        *zap.SugaredLogger
	newNonce   func() (string, error)

	domains map[string]struct{}
	emails  map[string]struct{}
}

// Option configures a Broker.
type Option func(*Broker)

// WithClock sets the clock used for ID token validation and principal expiry.
func WithClock(c clock.Clock) Option {
	return func(b *Broker) { b.clock = c }
}

// WithHTTPClient replaces the client used for discovery, JWKS and token calls.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Broker) { b.httpClient = c }
}

// NewBroker runs provider discovery and returns a ready broker.
func NewBroker(ctx context.Context, cfg Config, cache sessioncache.Store, roles RoleSource, log *zap.SugaredLogger, opts ...Option) (*Broker, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oidc issuer, client id and redirect url are required")
	}
	if cache == nil || roles == nil {
		return nil, errors.New("session cache and role source are required")
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if cfg.PrincipalTTL <= 0 {
		cfg.PrincipalTTL = DefaultPrincipalTTL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	cfg.Scopes = withRequiredScopes(cfg.Scopes)
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	b := &Broker{
		cfg:      cfg,
		cache:    cache,
		roles:    roles,
		clock:    clock.New(),
		log:      log,
		newNonce: auth.GenerateNonce,
		domains:  lowerSet(cfg.AllowedDomains),
		emails:   lowerSet(cfg.AllowedEmails),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.httpClient == nil {
		b.httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, b.httpClient), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}

	b.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint:     provider.Endpoint(),
	}
	b.verifier = provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
		Now:      b.clock.Now,
	})

	log.Infow("oidc provider discovered", "issuer", cfg.Issuer, "scopes", cfg.Scopes)
	return b, nil
}

func withRequiredScopes(scopes []string) []string {
	out := slices.Clone(scopes)
	for _, s := range []string{oidc.ScopeOpenID, "email", "profile"} {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func lowerSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// BeginFlow creates a pending authorization request and returns the
// provider URL the browser should be sent to. It performs no network I/O.
func (b *Broker) BeginFlow(ctx context.Context) (string, error) {
	state, err := b.newNonce()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := b.newNonce()
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	if err := b.cache.Put(ctx, state, nonce, b.cfg.StateTTL); err != nil {
		return "", fmt.Errorf("store pending authorization: %w", err)
	}
	return b.oauth.AuthCodeURL(state, oidc.Nonce(nonce)), nil
}

// CompleteFlow consumes the pending request for state, exchanges code and
// returns the resulting principal. A given state succeeds at most once.
func (b *Broker) CompleteFlow(ctx context.Context, code, state string) (auth.Principal, error) {
	if state == "" {
		return auth.Principal{}, ErrInvalidState
	}
	nonce, ok, err := b.cache.Take(ctx, state)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("load pending authorization: %w", err)
	}
	if !ok {
		return auth.Principal{}, ErrInvalidState
	}

	ctx = oidc.ClientContext(ctx, b.httpClient)
	token, err := b.oauth.Exchange(ctx, code)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("%w: %w", ErrProviderExchange, err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return auth.Principal{}, fmt.Errorf("%w: token response has no id_token", ErrProviderExchange)
	}
	idToken, err := b.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("%w: verify id token: %w", ErrProviderExchange, err)
	}
	if idToken.Nonce == "" || subtle.ConstantTimeCompare([]byte(idToken.Nonce), []byte(nonce)) != 1 {
		return auth.Principal{}, fmt.Errorf("%w: nonce mismatch", ErrInvalidState)
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return auth.Principal{}, fmt.Errorf("%w: decode claims: %w", ErrProviderExchange, err)
	}
	email, err := auth.ExtractEmailFromClaims(claims, b.cfg.EmailClaim)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("%w: %w", ErrIncompleteIdentity, err)
	}
	name, err := auth.ExtractNameFromClaims(claims, b.cfg.NameClaim)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("%w: %w", ErrIncompleteIdentity, err)
	}
	email = strings.ToLower(email)

	if !b.allowed(email) {
		b.log.Infow("federated identity rejected by allow-list", "email", email)
		return auth.Principal{}, fmt.Errorf("%w: %s", ErrForbidden, email)
	}

	role, found, err := b.roles.GetRole(ctx, email)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("resolve role: %w", err)
	}
	if !found {
		role = auth.RoleUser
	}

	return auth.NewPrincipal(name, email, auth.OriginFederated, role, b.clock.Now().Add(b.cfg.PrincipalTTL)), nil
}

func (b *Broker) allowed(email string) bool {
	if len(b.domains) == 0 && len(b.emails) == 0 {
		return true
	}
	if _, ok := b.emails[email]; ok {
		return true
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	_, ok := b.domains[email[at+1:]]
	return ok
}
