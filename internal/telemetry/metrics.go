package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func meterFrom(mp metric.MeterProvider, name string) metric.Meter {
	if mp == nil {
		return otel.Meter(name)
	}
	return mp.Meter(name)
}

// ServerMetrics holds metric instruments for HTTP server telemetry.
// Initialize once at server startup and reuse throughout the application lifecycle.
type ServerMetrics struct {
	RequestCounter  metric.Int64Counter     // Total HTTP requests
	RequestDuration metric.Float64Histogram // HTTP request latency
	InFlight        metric.Int64UpDownCounter
	ErrorCounter    metric.Int64Counter // Total HTTP errors (5xx)
}

// NewServerMetrics creates a new ServerMetrics instance with pre-configured
// instruments. A nil provider means the global one.
func NewServerMetrics(mp metric.MeterProvider) (*ServerMetrics, error) {
	meter := meterFrom(mp, "sponsormanager/http")

	requestCounter, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	// Buckets: 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s
	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"http.server.error.count",
		metric.WithDescription("Total number of HTTP server errors (5xx)"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &ServerMetrics{
		RequestCounter:  requestCounter,
		RequestDuration: requestDuration,
		InFlight:        inFlight,
		ErrorCounter:    errorCounter,
	}, nil
}

// RecordRequest records an HTTP request with method, route, status, and duration.
func (m *ServerMetrics) RecordRequest(ctx context.Context, method, route, status string, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPRoute, route),
		attribute.String(AttrHTTPStatusCode, status),
	)

	m.RequestCounter.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, durationMs, attrs)

	if len(status) > 0 && status[0] == '5' {
		m.ErrorCounter.Add(ctx, 1, attrs)
	}
}

// Middleware records every request handled by next. The route label is the
// chi route pattern so path parameters do not explode cardinality.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		m.InFlight.Add(ctx, 1)
		defer m.InFlight.Add(ctx, -1)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(ctx); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RecordRequest(ctx, r.Method, route, strconv.Itoa(status), float64(time.Since(start).Microseconds())/1000)
	})
}

// DatabaseMetrics holds metric instruments for database operations.
type DatabaseMetrics struct {
	QueryCounter  metric.Int64Counter     // Total database queries
	QueryDuration metric.Float64Histogram // Query latency
	QueryErrors   metric.Int64Counter     // Total query errors
}

// NewDatabaseMetrics creates metric instruments for database telemetry.
func NewDatabaseMetrics(mp metric.MeterProvider) (*DatabaseMetrics, error) {
	meter := meterFrom(mp, "sponsormanager/database")

	queryCounter, err := meter.Int64Counter(
		"db.query.count",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, err
	}

	queryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000),
	)
	if err != nil {
		return nil, err
	}

	queryErrors, err := meter.Int64Counter(
		"db.query.error.count",
		metric.WithDescription("Total number of database query errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &DatabaseMetrics{
		QueryCounter:  queryCounter,
		QueryDuration: queryDuration,
		QueryErrors:   queryErrors,
	}, nil
}

// RecordQuery records a database query with operation type and duration.
func (d *DatabaseMetrics) RecordQuery(ctx context.Context, operation string, durationMs float64, err error) {
	attrs := metric.WithAttributes(
		attribute.String(AttrDBOperation, operation), // SELECT, INSERT, UPDATE, DELETE
	)

	d.QueryCounter.Add(ctx, 1, attrs)
	d.QueryDuration.Record(ctx, durationMs, attrs)

	if err != nil {
		d.QueryErrors.Add(ctx, 1, attrs)
	}
}

// QueryHook adapts DatabaseMetrics to bun.QueryHook. Install it with
// db.AddQueryHook.
func (d *DatabaseMetrics) QueryHook() bun.QueryHook {
	return dbQueryHook{metrics: d}
}

type dbQueryHook struct {
	metrics *DatabaseMetrics
}

func (h dbQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h dbQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	err := event.Err
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}
	h.metrics.RecordQuery(ctx, event.Operation(), float64(time.Since(event.StartTime).Microseconds())/1000, err)
}

// AuthMetrics holds metric instruments for login operations.
type AuthMetrics struct {
	LoginAttempts metric.Int64Counter
	LoginFailures metric.Int64Counter
}

// NewAuthMetrics creates metric instruments for authentication telemetry.
func NewAuthMetrics(mp metric.MeterProvider) (*AuthMetrics, error) {
	meter := meterFrom(mp, "sponsormanager/auth")

	attempts, err := meter.Int64Counter(
		"auth.login.attempt.count",
		metric.WithDescription("Total number of login attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"auth.login.failure.count",
		metric.WithDescription("Total number of failed login attempts"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{LoginAttempts: attempts, LoginFailures: failures}, nil
}

// RecordLogin counts a login by method ("directory", "federated") and
// outcome ("success" or a failure kind).
func (a *AuthMetrics) RecordLogin(ctx context.Context, method, outcome string) {
	attrs := metric.WithAttributes(
		attribute.String(AttrAuthMethod, method),
		attribute.String(AttrAuthOutcome, outcome),
	)
	a.LoginAttempts.Add(ctx, 1, attrs)
	if outcome != "success" {
		a.LoginFailures.Add(ctx, 1, attrs)
	}
}
