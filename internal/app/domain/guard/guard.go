// Package guard decides whether a request may reach a dashboard route.
//
// Decide is a pure function over the settled session and role state; Require
// wraps it as gin middleware. Every guard kind checks suspension itself, so
// a role guard is safe without an outer authenticated guard.
package guard

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/domain/session"
	"github.com/FACorreiaa/go-loanhub/internal/app/middleware"
	"github.com/FACorreiaa/go-loanhub/internal/app/models"
	"github.com/FACorreiaa/go-loanhub/internal/app/observability/metrics"
	"github.com/FACorreiaa/go-loanhub/internal/app/pages"
	"github.com/FACorreiaa/go-loanhub/internal/app/renderer"
)

type Kind int

const (
	Authenticated Kind = iota
	AdminOnly
	ManagerOnly
	BorrowerOnly
	AdminOrManager
)

func (k Kind) String() string {
	switch k {
	case AdminOnly:
		return "admin"
	case ManagerOnly:
		return "manager"
	case BorrowerOnly:
		return "borrower"
	case AdminOrManager:
		return "admin_or_manager"
	default:
		return "authenticated"
	}
}

func (k Kind) allows(rec *models.RoleRecord) bool {
	if k == Authenticated {
		return true
	}
	if rec == nil {
		return false
	}
	switch k {
	case AdminOnly:
		return rec.Role == models.RoleAdmin
	case ManagerOnly:
		return rec.Role == models.RoleManager
	case BorrowerOnly:
		return rec.Role == models.RoleBorrower
	case AdminOrManager:
		return rec.Role == models.RoleAdmin || rec.Role == models.RoleManager
	}
	return false
}

type Outcome int

const (
	Pending Outcome = iota
	Suspended
	Authorized
	Unauthorized
)

func (o Outcome) String() string {
	switch o {
	case Suspended:
		return "SUSPENDED"
	case Authorized:
		return "AUTHORIZED"
	case Unauthorized:
		return "UNAUTHORIZED"
	default:
		return "PENDING"
	}
}

type Input struct {
	AuthLoading bool
	RoleLoading bool
	SignedIn    bool
	// Record is nil when the role is unknown, including after a failed lookup.
	Record      *models.RoleRecord
}

func Decide(kind Kind, in Input) Outcome {
	if in.AuthLoading || in.RoleLoading {
		return Pending
	}
	if !in.SignedIn {
		return Unauthorized
	}
	if in.Record.Suspended() {
		return Suspended
	}
	if kind.allows(in.Record) {
		return Authorized
	}
	return Unauthorized
}

// LoginURL is the login route carrying the attempted location.
func LoginURL(from string) string {
	if from == "" {
		return session.LoginPath
	}
	return session.LoginPath + "?from=" + url.QueryEscape(from)
}

type Options struct {
	// SettleTimeout bounds how long a request waits for the session and role
	// to settle before the loading page is served instead.
	SettleTimeout time.Duration
	Logger        *zap.Logger
}

// Snapshot waits up to timeout for src and its role binding to settle and
// returns the guard input.
func Snapshot(ctx context.Context, src *session.Source, timeout time.Duration) Input {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	_ = src.Wait(ctx)
	st := src.Snapshot()
	if !st.Loading && st.Identity != nil {
		_ = src.Roles().Wait(ctx)
	}
	rs := src.Roles().Snapshot()

	in := Input{
		AuthLoading: st.Loading,
		RoleLoading: rs.Loading,
		SignedIn:    st.Identity != nil,
		Record:      rs.Record,
	}
	if st.Identity != nil && rs.Email != st.Identity.Email {
		// The binding has not been pointed at this identity yet.
		in.RoleLoading = true
		in.Record = nil
	}
	return in
}

// Require admits the request only when Decide authorizes it for kind.
func Require(kind Kind, opts Options) gin.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	l := logger.With(zap.String("method", "guard.Require"), zap.Stringer("kind", kind))

	return func(c *gin.Context) {
		src := session.FromContext(c)
		if src == nil {
			l.Error("No session source on request")
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		ctx := c.Request.Context()
		in := Snapshot(ctx, src, opts.SettleTimeout)
		outcome := Decide(kind, in)
		metrics.Get().GuardDecisions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("guard", kind.String()),
			attribute.String("outcome", outcome.String()),
		))
		l.Debug("Guard decision", zap.String("path", c.Request.URL.Path), zap.Stringer("outcome", outcome))

		switch outcome {
		case Authorized:
			c.Next()
		case Unauthorized:
			middleware.AuthRedirect(c, LoginURL(c.Request.URL.RequestURI()))
		case Suspended:
			c.Header("Cache-Control", "no-store")
			c.Render(http.StatusForbidden, renderer.New(ctx, http.StatusForbidden, pages.SuspendedPage(in.Record.SuspendReason)))
			c.Abort()
		default:
			c.Header("Cache-Control", "no-store")
			c.Render(http.StatusOK, renderer.New(ctx, http.StatusOK, pages.LoadingPage(c.Request.URL.RequestURI())))
			c.Abort()
		}
	}
}
