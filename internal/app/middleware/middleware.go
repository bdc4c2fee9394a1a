package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-loanhub/internal/app/observability/metrics"
)

// CORSMiddleware handles CORS headers. Credentials are only allowed for a
// concrete origin, never for "*".
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if allowedOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, accept, origin, Cache-Control, X-Requested-With, HX-Request, HX-Target, HX-Current-URL")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// IsHTMX reports whether the request was issued by htmx.
func IsHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

// AuthRedirect sends an unauthenticated request to redirectURL and aborts
// the chain.
func AuthRedirect(c *gin.Context, redirectURL string) {
	if IsHTMX(c) {
		// For HTMX requests, use HX-Redirect header to trigger client-side redirect
		c.Header("HX-Redirect", redirectURL)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Redirect(http.StatusFound, redirectURL)
	c.Abort()
}

// Redirect answers a successful form post with a redirect to target.
func Redirect(c *gin.Context, target string) {
	if IsHTMX(c) {
		c.Header("HX-Redirect", target)
		c.Status(http.StatusOK)
		return
	}
	c.Redirect(http.StatusSeeOther, target)
}

// SecurityMiddleware adds security headers
func SecurityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// htmx from unpkg, Stripe.js for the application fee form
		csp := "default-src 'self'; " +
			"script-src 'self' 'unsafe-inline' https://unpkg.com https://js.stripe.com; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data: https:; " +
			"frame-src https://js.stripe.com; " +
			"connect-src 'self' https://api.stripe.com"
		c.Writer.Header().Set("Content-Security-Policy", csp)

		c.Next()
	}
}

// ObservabilityMiddleware records request metrics and annotates the span
// started by otelgin.
func ObservabilityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		statusCode := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		span := trace.SpanFromContext(c.Request.Context())
		span.SetAttributes(attribute.Float64("http.duration", duration))

		ctx := c.Request.Context()
		m := metrics.Get()
		m.HTTPRequestsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("method", c.Request.Method),
				attribute.String("path", route),
				attribute.String("status", strconv.Itoa(statusCode)),
			))
		m.HTTPRequestDuration.Record(ctx, duration,
			metric.WithAttributes(
				attribute.String("method", c.Request.Method),
				attribute.String("path", route),
			))

		switch route {
		case "/login", "/login/federated", "/register", "/logout":
			if c.Request.Method == http.MethodPost {
				m.AuthRequestsTotal.Add(ctx, 1,
					metric.WithAttributes(
						attribute.String("endpoint", route),
						attribute.String("status", strconv.Itoa(statusCode)),
					))
			}
		}
	}
}
