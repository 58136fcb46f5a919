package federation

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/sessioncache"
	"github.com/benbjohnson/clock"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "sponsormanager"
	testKID      = "test-key-1"
)

// fakeProvider serves discovery, JWKS and a token endpoint that answers
// with ID tokens registered per authorization code.
type fakeProvider struct {
	t   *testing.T
	srv *httptest.Server
	key *rsa.PrivateKey

	mu    sync.Mutex
	codes map[string]map[string]any
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &fakeProvider{t: t, key: key, codes: map[string]map[string]any{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("/keys", p.keys)
	mux.HandleFunc("/token", p.token)
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                p.srv.URL,
		"authorization_endpoint":                p.srv.URL + "/authorize",
		"token_endpoint":                        p.srv.URL + "/token",
		"jwks_uri":                              p.srv.URL + "/keys",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (p *fakeProvider) keys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &p.key.PublicKey,
		KeyID:     testKID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}})
}

func (p *fakeProvider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	p.mu.Lock()
	claims, ok := p.codes[r.PostForm.Get("code")]
	delete(p.codes, r.PostForm.Get("code"))
	p.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     p.sign(claims),
	})
}

func (p *fakeProvider) sign(claims map[string]any) string {
	opts := (&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", testKID)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: p.key}, opts)
	require.NoError(p.t, err)
	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(p.t, err)
	return raw
}

// issueCode registers an authorization code whose ID token carries the
// standard claims plus extra.
func (p *fakeProvider) issueCode(code string, now time.Time, extra map[string]any) {
	claims := map[string]any{
		"iss": p.srv.URL,
		"aud": testClientID,
		"sub": "federated-123",
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	p.mu.Lock()
	p.codes[code] = claims
	p.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type staticRoles map[string]auth.Role

func (s staticRoles) GetRole(_ context.Context, email string) (auth.Role, bool, error) {
	role, ok := s[email]
	return role, ok, nil
}

type brokerFixture struct {
	provider *fakeProvider
	broker   *Broker
	cache    *sessioncache.MemoryStore
	clock    *clock.Mock
}

func newBrokerFixture(t *testing.T, mutate func(*Config), roles staticRoles) *brokerFixture {
	t.Helper()

	provider := newFakeProvider(t)
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	cache := sessioncache.NewMemoryStore(sessioncache.WithClock(mock))
	t.Cleanup(func() { _ = cache.Close() })

	cfg := Config{
		Issuer:         provider.srv.URL,
		ClientID:       testClientID,
		ClientSecret:   "client-secret",
		RedirectURL:    "https://sponsors.example.com/api/login/code",
		AllowedDomains: []string{"example.com"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	if roles == nil {
		roles = staticRoles{}
	}

	broker, err := NewBroker(context.Background(), cfg, cache, roles, nil, WithClock(mock))
	require.NoError(t, err)

	return &brokerFixture{provider: provider, broker: broker, cache: cache, clock: mock}
}

// begin runs BeginFlow and returns the state and nonce the browser would
// carry to the provider.
func (f *brokerFixture) begin(t *testing.T) (state, nonce string) {
	t.Helper()
	redirect, err := f.broker.BeginFlow(context.Background())
	require.NoError(t, err)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	return u.Query().Get("state"), u.Query().Get("nonce")
}

func TestBroker_BeginFlow(t *testing.T) {
	f := newBrokerFixture(t, nil, nil)

	redirect, err := f.broker.BeginFlow(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, f.provider.srv.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "https://sponsors.example.com/api/login/code", q.Get("redirect_uri"))
	scopes := strings.Fields(q.Get("scope"))
	assert.Subset(t, scopes, []string{"openid", "email", "profile"})
	require.NotEmpty(t, q.Get("state"))
	require.NotEmpty(t, q.Get("nonce"))
	assert.NotEqual(t, q.Get("state"), q.Get("nonce"))

	stored, ok, err := f.cache.Get(context.Background(), q.Get("state"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, q.Get("nonce"), stored)
}

func TestBroker_CompleteFlow(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds once then rejects replay", func(t *testing.T) {
		f := newBrokerFixture(t, nil, nil)
		state, nonce := f.begin(t)
		f.provider.issueCode("code-1", f.clock.Now(), map[string]any{
			"nonce": nonce,
			"email": "Alice@Example.com",
			"name":  "Alice Liddell",
		})

		p, err := f.broker.CompleteFlow(ctx, "code-1", state)
		require.NoError(t, err)
		assert.Equal(t, "Alice Liddell", p.Subject())
		assert.Equal(t, "alice@example.com", p.Email())
		assert.Equal(t, auth.OriginFederated, p.Origin())
		assert.Equal(t, auth.RoleUser, p.Role())
		assert.Equal(t, f.clock.Now().Add(DefaultPrincipalTTL), p.ExpiresAt())

		f.provider.issueCode("code-2", f.clock.Now(), map[string]any{"nonce": nonce, "email": "alice@example.com", "name": "Alice"})
		_, err = f.broker.CompleteFlow(ctx, "code-2", state)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("unknown state", func(t *testing.T) {
		f := newBrokerFixture(t, nil, nil)
		_, err := f.broker.CompleteFlow(ctx, "code", "never-issued")
		assert.ErrorIs(t, err, ErrInvalidState)

		_, err = f.broker.CompleteFlow(ctx, "code", "")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("expired state", func(t *testing.T) {
		f := newBrokerFixture(t, nil, nil)
		state, nonce := f.begin(t)
		f.clock.Add(DefaultStateTTL)
		f.provider.issueCode("code", f.clock.Now(), map[string]any{"nonce": nonce, "email": "a@example.com", "name": "A"})

		_, err := f.broker.CompleteFlow(ctx, "code", state)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("nonce mismatch", func(t *testing.T) {
		f := newBrokerFixture(t, nil, nil)
		state, _ := f.begin(t)
		f.provider.issueCode("code", f.clock.Now(), map[string]any{"nonce": "forged", "email": "a@example.com", "name": "A"})

		_, err := f.broker.CompleteFlow(ctx, "code", state)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("missing nonce", func(t *testing.T) {
		f := newBrokerFixture(t, nil, nil)
		state, _ := f.begin(t)
		f.provider.issueCode("code", f.clock.Now(), map[string]any{"email": "a@example.com", "name": "A"})

		_, err := f.broker.CompleteFlow(ctx, "code", state)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("exchange failure", func(t *testing.T) {
		f := newBrokerFixture(t, nil, nil)
		state, _ := f.begin(t)

		_, err := f.broker.CompleteFlow(ctx, "unknown-code", state)
		assert.ErrorIs(t, err, ErrProviderExchange)

		_, err = f.broker.CompleteFlow(ctx, "unknown-code", state)
		assert.ErrorIs(t, err, ErrInvalidState, "state is consumed even when the exchange fails")
	})

	t.Run("wrong audience", func(t *testing.T) {
		f := newBrokerFixture(t, nil, nil)
		state, nonce := f.begin(t)
		f.provider.issueCode("code", f.clock.Now(), map[string]any{
			"aud": "someone-else", "nonce": nonce, "email": "a@example.com", "name": "A",
		})

		_, err := f.broker.CompleteFlow(ctx, "code", state)
		assert.ErrorIs(t, err, ErrProviderExchange)
	})

	t.Run("incomplete identity", func(t *testing.T) {
		f := newBrokerFixture(t, nil, nil)

		state, nonce := f.begin(t)
		f.provider.issueCode("no-email", f.clock.Now(), map[string]any{"nonce": nonce, "name": "A"})
		_, err := f.broker.CompleteFlow(ctx, "no-email", state)
		assert.ErrorIs(t, err, ErrIncompleteIdentity)

		state, nonce = f.begin(t)
		f.provider.issueCode("no-name", f.clock.Now(), map[string]any{"nonce": nonce, "email": "a@example.com"})
		_, err = f.broker.CompleteFlow(ctx, "no-name", state)
		assert.ErrorIs(t, err, ErrIncompleteIdentity)
	})

	t.Run("preferred_username stands in for name", func(t *testing.T) {
		f := newBrokerFixture(t, nil, nil)
		state, nonce := f.begin(t)
		f.provider.issueCode("code", f.clock.Now(), map[string]any{
			"nonce": nonce, "email": "a@example.com", "preferred_username": "alice",
		})

		p, err := f.broker.CompleteFlow(ctx, "code", state)
		require.NoError(t, err)
		assert.Equal(t, "alice", p.Subject())
	})

	t.Run("allow-list", func(t *testing.T) {
		f := newBrokerFixture(t, func(c *Config) {
			c.AllowedEmails = []string{"guest@partner.org"}
		}, nil)

		state, nonce := f.begin(t)
		f.provider.issueCode("outsider", f.clock.Now(), map[string]any{"nonce": nonce, "email": "eve@evil.org", "name": "Eve"})
		_, err := f.broker.CompleteFlow(ctx, "outsider", state)
		assert.ErrorIs(t, err, ErrForbidden)

		state, nonce = f.begin(t)
		f.provider.issueCode("subdomain", f.clock.Now(), map[string]any{"nonce": nonce, "email": "eve@mail.example.com", "name": "Eve"})
		_, err = f.broker.CompleteFlow(ctx, "subdomain", state)
		assert.ErrorIs(t, err, ErrForbidden)

		state, nonce = f.begin(t)
		f.provider.issueCode("guest", f.clock.Now(), map[string]any{"nonce": nonce, "email": "Guest@Partner.org", "name": "Guest"})
		_, err = f.broker.CompleteFlow(ctx, "guest", state)
		assert.NoError(t, err)
	})

	t.Run("role from directory", func(t *testing.T) {
		f := newBrokerFixture(t, nil, staticRoles{"root@example.com": auth.RoleAdmin})
		state, nonce := f.begin(t)
		f.provider.issueCode("code", f.clock.Now(), map[string]any{"nonce": nonce, "email": "root@example.com", "name": "Root"})

		p, err := f.broker.CompleteFlow(ctx, "code", state)
		require.NoError(t, err)
		assert.True(t, p.IsAdmin())
	})

	t.Run("concurrent flows are independent", func(t *testing.T) {
		f := newBrokerFixture(t, nil, nil)
		stateA, nonceA := f.begin(t)
		stateB, nonceB := f.begin(t)
		f.provider.issueCode("a", f.clock.Now(), map[string]any{"nonce": nonceA, "email": "a@example.com", "name": "A"})
		f.provider.issueCode("b", f.clock.Now(), map[string]any{"nonce": nonceB, "email": "b@example.com", "name": "B"})

		pb, err := f.broker.CompleteFlow(ctx, "b", stateB)
		require.NoError(t, err)
		pa, err := f.broker.CompleteFlow(ctx, "a", stateA)
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", pa.Email())
		assert.Equal(t, "b@example.com", pb.Email())
	})
}

func TestNewBroker_Validation(t *testing.T) {
	cache := sessioncache.NewMemoryStore()
	t.Cleanup(func() { _ = cache.Close() })

	_, err := NewBroker(context.Background(), Config{ClientID: "x", RedirectURL: "y"}, cache, staticRoles{}, nil)
	assert.Error(t, err)

	_, err = NewBroker(context.Background(), Config{Issuer: "http://127.0.0.1:1", ClientID: "x", RedirectURL: "y"}, cache, staticRoles{}, nil)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidState))
}

type countingTransport struct {
	mu    sync.Mutex
	paths []string
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.paths = append(c.paths, req.URL.Path)
	c.mu.Unlock()
	return http.DefaultTransport.RoundTrip(req)
}

func TestNewBroker_WithHTTPClient(t *testing.T) {
	provider := newFakeProvider(t)
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := sessioncache.NewMemoryStore(sessioncache.WithClock(mock))
	t.Cleanup(func() { _ = cache.Close() })

	transport := &countingTransport{}
	broker, err := NewBroker(context.Background(), Config{
		Issuer:      provider.srv.URL,
		ClientID:    testClientID,
		RedirectURL: "https://sponsors.example.com/api/login/code",
	}, cache, staticRoles{}, nil, WithClock(mock), WithHTTPClient(&http.Client{Transport: transport}))
	require.NoError(t, err)

	redirect, err := broker.BeginFlow(context.Background())
	require.NoError(t, err)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	provider.issueCode("code", mock.Now(), map[string]any{
		"nonce": u.Query().Get("nonce"),
		"email": "alice@example.com",
		"name":  "Alice",
	})

	_, err = broker.CompleteFlow(context.Background(), "code", u.Query().Get("state"))
	require.NoError(t, err)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Contains(t, transport.paths, "/.well-known/openid-configuration")
	assert.Contains(t, transport.paths, "/token")
	assert.Contains(t, transport.paths, "/keys")
}

func TestWithRequiredScopes(t *testing.T) {
	assert.Equal(t, []string{"openid", "email", "profile"}, withRequiredScopes(nil))
	assert.Equal(t, []string{"groups", "openid", "email", "profile"}, withRequiredScopes([]string{"groups"}))
	assert.Equal(t, []string{"email", "openid", "profile"}, withRequiredScopes([]string{"email", "openid"}))
}
