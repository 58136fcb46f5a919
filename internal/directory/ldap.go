package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// LDAPConfig holds connection settings for the LDAP directory.
type LDAPConfig struct {
	URL          string // ldap:// or ldaps:// URL
	BindDN       string // service account used for searches
	BindPassword string
	BaseDN       string
	// MailAttribute is the attribute matched against the login email (default: "mail").
	MailAttribute      string
	ConnectTimeout     time.Duration
	RequestTimeout     time.Duration
	InsecureSkipVerify bool
}

// Conn is the subset of *ldap.Conn the client uses.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Unbind() error
	Close()
}

// DialFunc opens a new connection. Tests replace it with an in-memory fake.
type DialFunc func(ctx context.Context, cfg LDAPConfig) (Conn, error)

type ldapConn struct {
	*ldap.Conn
}

func (c ldapConn) Close() {
	c.Conn.Close()
}

func dialLDAP(_ context.Context, cfg LDAPConfig) (Conn, error) {
	conn, err := ldap.DialURL(cfg.URL,
		ldap.DialWithDialer(&net.Dialer{Timeout: cfg.ConnectTimeout}),
		ldap.DialWithTLSConfig(&tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for lab directories
		}),
	)
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(cfg.RequestTimeout)
	return ldapConn{conn}, nil
}

// LDAPClient implements Directory against an LDAP server. Every operation
// uses its own connection which is unbound before the call returns.
type LDAPClient struct {
	cfg    LDAPConfig
	dial   DialFunc
	logger *zap.SugaredLogger
}

// LDAPOption configures an LDAPClient.
type LDAPOption func(*LDAPClient)

// WithDialFunc replaces the connection factory.
func WithDialFunc(dial DialFunc) LDAPOption {
	return func(c *LDAPClient) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// NewLDAPClient creates an LDAP-backed directory.
func NewLDAPClient(cfg LDAPConfig, logger *zap.SugaredLogger, opts ...LDAPOption) (*LDAPClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("ldap url is required")
	}
	if cfg.BaseDN == "" {
		return nil, errors.New("ldap base dn is required")
	}
	if cfg.MailAttribute == "" {
		cfg.MailAttribute = "mail"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &LDAPClient{cfg: cfg, dial: dialLDAP, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Lookup binds as the service account and searches the subtree under BaseDN
// for an entry whose mail attribute equals email.
func (c *LDAPClient) Lookup(ctx context.Context, email string) (*Subject, error) {
	var subject *Subject
	err := c.withConn(ctx, func(conn Conn) error {
		if err := conn.Bind(c.cfg.BindDN, c.cfg.BindPassword); err != nil {
			return fmt.Errorf("service bind: %w", err)
		}

		req := ldap.NewSearchRequest(
			c.cfg.BaseDN,
			ldap.ScopeWholeSubtree,
			ldap.NeverDerefAliases,
			0,
			int(c.cfg.RequestTimeout.Seconds()),
			false,
			fmt.Sprintf("(%s=%s)", c.cfg.MailAttribute, ldap.EscapeFilter(email)),
			[]string{"dn", "cn"},
			nil,
		)
		res, err := conn.Search(req)
		if err != nil {
			if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
				return nil
			}
			return fmt.Errorf("search: %w", err)
		}
		if len(res.Entries) == 0 {
			return nil
		}
		entry := res.Entries[0]
		subject = &Subject{
			DN:    entry.DN,
			CN:    entry.GetAttributeValue("cn"),
			Email: email,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: lookup %s: %w", ErrUnavailable, email, err)
	}
	return subject, nil
}

// VerifyCredentials binds as the subject on a fresh connection. Only the bind
// result decides: any result the server returns other than success yields
// false. Connection and transport failures wrap ErrUnavailable.
func (c *LDAPClient) VerifyCredentials(ctx context.Context, subject Subject, password string) (bool, error) {
	// an empty password would turn into an unauthenticated bind
	if password == "" || subject.DN == "" {
		return false, nil
	}

	err := c.withConn(ctx, func(conn Conn) error {
		return conn.Bind(subject.DN, password)
	})
	if err == nil {
		return true, nil
	}
	if code, ok := serverResultCode(err); ok {
		c.logger.Debugw("ldap bind rejected", "dn", subject.DN, "result_code", code)
		return false, nil
	}
	return false, fmt.Errorf("%w: bind %s: %w", ErrUnavailable, subject.DN, err)
}

// serverResultCode extracts the LDAP result code of a response sent by the
// server. Codes from ErrorNetwork upwards are raised by the client library.
func serverResultCode(err error) (uint16, bool) {
	var lerr *ldap.Error
	if !errors.As(err, &lerr) || lerr.ResultCode >= ldap.ErrorNetwork {
		return 0, false
	}
	return lerr.ResultCode, true
}

// Ping performs a service-account bind and unbind.
func (c *LDAPClient) Ping(ctx context.Context) error {
	err := c.withConn(ctx, func(conn Conn) error {
		return conn.Bind(c.cfg.BindDN, c.cfg.BindPassword)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (c *LDAPClient) withConn(ctx context.Context, fn func(Conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := c.dial(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.cfg.URL, err)
	}

	// go-ldap has no context support; closing the socket aborts pending requests.
	stop := context.AfterFunc(ctx, conn.Close)
	defer func() {
		stop()
		if err := conn.Unbind(); err != nil {
			c.logger.Debugw("ldap unbind failed", "error", err)
		}
		conn.Close()
	}()

	return fn(conn)
}
