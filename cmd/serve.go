package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ZargorNET/sponsormanager/internal/app"
	"github.com/ZargorNET/sponsormanager/internal/repository"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Starts the HTTP server with the login, whoami, admin settings and health endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateServe(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		var (
			log       *zap.SugaredLogger
			roleCache *repository.CachedRoleDirectory
		)
		fxApp := fx.New(
			app.Options(cfg),
			fx.Invoke(func(*http.Server) {}),
			fx.Populate(&log, &roleCache),
		)
		if err := fxApp.Err(); err != nil {
			return err
		}

		startCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := fxApp.Start(startCtx); err != nil {
			return fmt.Errorf("start server: %w", err)
		}

		// SIGHUP drops cached role lookups so out-of-band `roles grant`
		// changes apply without waiting for the TTL.
		reload := make(chan os.Signal, 1)
		signal.Notify(reload, syscall.SIGHUP)
		defer signal.Stop(reload)

		done := fxApp.Wait()
	loop:
		for {
			select {
			case sig := <-reload:
				if roleCache == nil {
					log.Warnw("role cache disabled, nothing to purge", "signal", sig.String())
					continue
				}
				roleCache.Purge()
				log.Infow("role cache purged", "signal", sig.String())
			case sig := <-done:
				log.Infow("received shutdown signal", "signal", sig.Signal)
				break loop
			}
		}

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := fxApp.Stop(stopCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
