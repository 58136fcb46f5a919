package cmdutil

import (
	"context"
	"errors"

	"github.com/ZargorNET/sponsormanager/internal/config"
)

type configContextKey struct{}

// WithConfig stores the configuration loaded by the root command.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configContextKey{}, cfg)
}

// ConfigFromContext returns the configuration stored by WithConfig.
func ConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configContextKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
