// Package app wires the server's components into an fx application.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/ZargorNET/sponsormanager/internal/auth"
	"github.com/ZargorNET/sponsormanager/internal/config"
	"github.com/ZargorNET/sponsormanager/internal/db/bunx"
	"github.com/ZargorNET/sponsormanager/internal/directory"
	"github.com/ZargorNET/sponsormanager/internal/federation"
	"github.com/ZargorNET/sponsormanager/internal/logging"
	"github.com/ZargorNET/sponsormanager/internal/repository"
	"github.com/ZargorNET/sponsormanager/internal/server"
	"github.com/ZargorNET/sponsormanager/internal/services/iam"
	"github.com/ZargorNET/sponsormanager/internal/sessioncache"
	"github.com/ZargorNET/sponsormanager/internal/telemetry"
)

// Options returns every provider the server needs. Callers add fx.Invoke
// for the components they want started.
func Options(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Provide(
			NewLogger,
			NewSugaredLogger,
			NewTelemetry,
			NewDatabase,
			NewRoleCache,
			NewRoleDirectory,
			NewDirectory,
			NewSessionCache,
			NewTokenCodec,
			NewBroker,
			NewIAMService,
			NewHealthChecker,
			NewHTTPHandler,
			NewHTTPServer,
		),
	)
}

// NewLogger builds the process logger and flushes it on stop.
func NewLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg.Debug)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() {
		_ = log.Sync()
	}))
	return log, nil
}

func NewSugaredLogger(log *zap.Logger) *zap.SugaredLogger {
	return log.Sugar()
}

// NewTelemetry installs the tracer and meter providers.
func NewTelemetry(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) (*telemetry.Providers, error) {
	providers, err := telemetry.Init(context.Background(), cfg.Observability, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(providers.Shutdown))
	return providers, nil
}

// NewDatabase opens the role database and instruments its queries.
func NewDatabase(lc fx.Lifecycle, cfg *config.Config, providers *telemetry.Providers, log *zap.SugaredLogger) (*bun.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := bunx.NewDB(ctx, cfg.DatabaseURL, cfg.MaxDBConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	metrics, err := telemetry.NewDatabaseMetrics(providers.MeterProvider)
	if err != nil {
		_ = bunx.Close(db)
		return nil, err
	}
	db.AddQueryHook(metrics.QueryHook())

	log.Infow("connected to database", "type", bunx.DetectDatabaseType(cfg.DatabaseURL))
	lc.Append(fx.StopHook(func() error {
		return bunx.Close(db)
	}))
	return db, nil
}

// NewRoleCache returns nil when the role cache is disabled.
func NewRoleCache(cfg *config.Config, db *bun.DB) *repository.CachedRoleDirectory {
	if cfg.RoleCache.TTL <= 0 {
		return nil
	}
	return repository.NewCachedRoleDirectory(repository.NewBunRoleRepository(db), cfg.RoleCache.Size, cfg.RoleCache.TTL)
}

// NewRoleDirectory prefers the cached decorator when one is configured.
func NewRoleDirectory(db *bun.DB, cached *repository.CachedRoleDirectory) repository.RoleDirectory {
	if cached != nil {
		return cached
	}
	return repository.NewBunRoleRepository(db)
}

// NewDirectory selects the password-login source.
func NewDirectory(cfg *config.Config, log *zap.SugaredLogger) (directory.Directory, error) {
	switch cfg.Directory.Mode {
	case config.DirectoryModeStatic:
		log.Infow("using static directory", "users", len(cfg.Directory.StaticUsers))
		return directory.NewStaticDirectory(cfg.Directory.StaticUsers)
	case config.DirectoryModeLDAP:
		l := cfg.Directory.LDAP
		log.Infow("using ldap directory", "url", l.URL, "base_dn", l.BaseDN)
		return directory.NewLDAPClient(directory.LDAPConfig{
			URL:                l.URL,
			BindDN:             l.BindDN,
			BindPassword:       l.BindPassword,
			BaseDN:             l.BaseDN,
			MailAttribute:      l.MailAttribute,
			ConnectTimeout:     l.ConnectTimeout,
			RequestTimeout:     l.RequestTimeout,
			InsecureSkipVerify: l.InsecureSkipVerify,
		}, log)
	default:
		return nil, fmt.Errorf("unknown directory mode %q", cfg.Directory.Mode)
	}
}

// NewSessionCache builds the pending-login store. The IAM service owns it
// and closes it.
func NewSessionCache(cfg *config.Config, log *zap.SugaredLogger) (sessioncache.Store, error) {
	c := cfg.Cache
	switch c.Backend {
	case config.CacheBackendMemory:
		return sessioncache.NewMemoryStore(
			sessioncache.WithSweepInterval(c.SweepInterval),
			sessioncache.WithSweepFraction(c.SweepFraction),
			sessioncache.WithLogger(log),
		), nil
	case config.CacheBackendRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{c.RedisAddr},
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		log.Infow("using redis session cache", "addr", c.RedisAddr)
		return sessioncache.NewRedisStore(client, c.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", c.Backend)
	}
}

func NewTokenCodec(cfg *config.Config) (*auth.TokenCodec, error) {
	return auth.NewTokenCodec([]byte(cfg.JWT.Secret))
}

// NewBroker discovers the OIDC provider. It returns a nil broker when
// federated login is disabled.
func NewBroker(cfg *config.Config, cache sessioncache.Store, roles repository.RoleDirectory, log *zap.SugaredLogger) (iam.FederatedBroker, error) {
	if !cfg.OIDC.Enabled {
		log.Infow("federated login disabled")
		return nil, nil
	}
	o := cfg.OIDC
	ctx, cancel := context.WithTimeout(context.Background(), o.HTTPTimeout+5*time.Second)
	defer cancel()

	broker, err := federation.NewBroker(ctx, federation.Config{
		Issuer:         o.Issuer,
		ClientID:       o.ClientID,
		ClientSecret:   o.ClientSecret,
		RedirectURL:    o.RedirectURL,
		Scopes:         o.Scopes,
		AllowedDomains: o.AllowedDomains,
		AllowedEmails:  o.AllowedEmails,
		StateTTL:       o.StateTTL,
		PrincipalTTL:   o.PrincipalTTL,
		HTTPTimeout:    o.HTTPTimeout,
		EmailClaim:     o.EmailClaim,
		NameClaim:      o.NameClaim,
	}, cache, roles, log)
	if err != nil {
		return nil, fmt.Errorf("configure federated login: %w", err)
	}
	log.Infow("federated login enabled", "issuer", o.Issuer)
	return broker, nil
}

// IAMParams groups the IAM service's collaborators.
type IAMParams struct {
	fx.In

	Config    *config.Config
	Codec     *auth.TokenCodec
	Directory directory.Directory
	Roles     repository.RoleDirectory
	Broker    iam.FederatedBroker
	Cache     sessioncache.Store
	Telemetry *telemetry.Providers
	Logger    *zap.SugaredLogger
}

// NewIAMService builds the gateway service and closes it on stop.
func NewIAMService(lc fx.Lifecycle, p IAMParams) (iam.Service, error) {
	recorder, err := telemetry.NewAuthMetrics(p.Telemetry.MeterProvider)
	if err != nil {
		return nil, err
	}
	svc, err := iam.NewIAMService(iam.ServiceDependencies{
		Codec:     p.Codec,
		Directory: p.Directory,
		Roles:     p.Roles,
		Broker:    p.Broker,
		Cache:     p.Cache,
		Recorder:  recorder,
		Logger:    p.Logger.Named("iam"),
		TokenTTL:  p.Config.JWT.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create IAM service: %w", err)
	}
	lc.Append(fx.StopHook(svc.Close))
	return svc, nil
}

// NewHealthChecker probes every backing dependency.
func NewHealthChecker(svc iam.Service, db *bun.DB, log *zap.SugaredLogger) *server.HealthChecker {
	return server.NewHealthChecker(server.DefaultHealthTimeout, log,
		server.HealthProbe{Name: "iam", Check: svc.Health},
		server.HealthProbe{Name: "database", Check: db.PingContext},
	)
}

// NewHTTPHandler assembles the router with metrics and CORS from config.
func NewHTTPHandler(cfg *config.Config, svc iam.Service, health *server.HealthChecker, providers *telemetry.Providers, log *zap.SugaredLogger) (http.Handler, error) {
	metrics, err := telemetry.NewServerMetrics(providers.MeterProvider)
	if err != nil {
		return nil, err
	}

	corsOpts := server.DefaultCORSOptions()
	if len(cfg.CORSOrigins) > 0 {
		corsOpts.AllowedOrigins = cfg.CORSOrigins
	}

	return server.NewRouter(server.RouterOptions{
		IAMService:     svc,
		Health:         health,
		FrontendURL:    cfg.FrontendURL,
		CookieMaxAge:   time.Duration(cfg.Cookie.MaxAge) * time.Second,
		CORSOptions:    &corsOpts,
		Middleware:     []func(http.Handler) http.Handler{metrics.Middleware},
		MetricsHandler: providers.MetricsHandler,
		Logger:         log.Named("http"),
	}), nil
}

// NewHTTPServer binds the listener on start and drains connections on stop.
func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, handler http.Handler, log *zap.SugaredLogger) *http.Server {
	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
			log.Infow("starting server", "addr", ln.Addr().String(), "url", cfg.ServerURL)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("server error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("shutting down server")
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
