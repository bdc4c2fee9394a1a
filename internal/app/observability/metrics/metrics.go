package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	AuthRequestsTotal   metric.Int64Counter
	GuardDecisions      metric.Int64Counter
	RoleResolutions     metric.Int64Counter
	RoleFetchDuration   metric.Float64Histogram
	SessionTransitions  metric.Int64Counter
	ForcedSignOuts      metric.Int64Counter
	ActiveSessions      metric.Int64UpDownCounter
	PaymentsTotal       metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics creates the instruments once from the global MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("loanhub")
		m := &AppMetrics{}

		m.HTTPRequestsTotal = counter(meter, "http_requests_total", "Total number of HTTP requests completed", "{request}")
		m.AuthRequestsTotal = counter(meter, "auth_requests_total", "Sign-in, registration and sign-out attempts", "{request}")
		m.GuardDecisions = counter(meter, "guard_decisions_total", "Route guard outcomes by guard kind", "{decision}")
		m.RoleResolutions = counter(meter, "role_resolutions_total", "Role lookups by source (cache, backend, error)", "{lookup}")
		m.SessionTransitions = counter(meter, "session_transitions_total", "Completed establish and teardown transitions", "{transition}")
		m.ForcedSignOuts = counter(meter, "forced_signouts_total", "Sign-outs triggered by a 401/403 backend response", "{signout}")
		m.PaymentsTotal = counter(meter, "application_fee_payments_total", "Application fee payments by result", "{payment}")

		var err error
		m.HTTPRequestDuration, err = meter.Float64Histogram(
			"http_request_duration_seconds",
			metric.WithDescription("Duration of HTTP requests in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create http_request_duration_seconds: %v", err)
		}

		m.RoleFetchDuration, err = meter.Float64Histogram(
			"role_fetch_duration_seconds",
			metric.WithDescription("Duration of backend role lookups in seconds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create role_fetch_duration_seconds: %v", err)
		}

		m.ActiveSessions, err = meter.Int64UpDownCounter(
			"active_sessions_current",
			metric.WithDescription("Browser sessions currently held in memory"),
			metric.WithUnit("{session}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create active_sessions_current: %v", err)
		}

		appMetrics = m
	})
}

func counter(meter metric.Meter, name, description, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		log.Fatalf("Metrics: Failed to create %s: %v", name, err)
	}
	return c
}

// Get returns the instruments, creating them against the current global
// MeterProvider if InitAppMetrics has not run yet.
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}
