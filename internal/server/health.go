package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ZargorNET/sponsormanager/internal/middleware"
	"github.com/ZargorNET/sponsormanager/internal/services/iam"
)

// DefaultHealthTimeout bounds a whole health check.
const DefaultHealthTimeout = 5 * time.Second

// HealthProbe is one dependency checked by the health endpoint.
type HealthProbe struct {
	Name  string
	Check func(context.Context) error
}

// HealthChecker runs every probe concurrently.
type HealthChecker struct {
	probes  []HealthProbe
	timeout time.Duration
	log     *zap.SugaredLogger
}

// NewHealthChecker creates a checker. A non-positive timeout uses
// DefaultHealthTimeout.
func NewHealthChecker(timeout time.Duration, log *zap.SugaredLogger, probes ...HealthProbe) *HealthChecker {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &HealthChecker{probes: probes, timeout: timeout, log: log}
}

// Check returns the first probe failure, prefixed with the probe name.
func (h *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, probe := range h.probes {
		g.Go(func() error {
			if err := probe.Check(gctx); err != nil {
				return fmt.Errorf("%s: %w", probe.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

type healthResponse struct {
	Success bool `json:"success"`
}

// Handler serves GET /api/health.
func (h *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.Check(r.Context()); err != nil {
			middleware.WriteError(w, r, h.log, &iam.Error{Kind: iam.KindInternal, Message: "unhealthy", Err: err})
			return
		}
		middleware.WriteJSON(w, http.StatusOK, healthResponse{Success: true})
	}
}
