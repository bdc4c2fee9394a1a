package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/domain"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/auth"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/dashboard"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/guard"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/payments"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/roles"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/session"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/settings"
	"github.com/FACorreiaa/go-loanhub/internal/app/renderer"
)

// Dependencies are the application-scoped collaborators every handler
// shares. Manager owns one session Source per browser.
type Dependencies struct {
	Manager        *session.Manager
	Resolver       *roles.Resolver
	Payments       *payments.Service
	PublishableKey string
	Federated      bool
	SettleTimeout  time.Duration
	SecureCookies  bool
}

type AppHandlers struct {
	Auth      *auth.AuthHandlers
	Dashboard *dashboard.DashboardHandlers
	Settings  *settings.SettingsHandlers
	Base      *domain.BaseHandler
}

func Setup(r *gin.Engine, deps Dependencies, log *zap.Logger) {
	ginHTMLRenderer := r.HTMLRender
	r.HTMLRender = &renderer.HTMLTemplRenderer{FallbackHTMLRenderer: ginHTMLRenderer}

	handlers := setupDependencies(deps, log)
	setupRouter(r, deps, handlers, log)
}

func setupDependencies(deps Dependencies, log *zap.Logger) *AppHandlers {
	base := domain.NewBaseHandler(log, deps.SettleTimeout)
	return &AppHandlers{
		Auth:      auth.NewAuthHandlers(base, deps.Resolver, deps.Federated, log),
		Dashboard: dashboard.NewDashboardHandlers(base, deps.Resolver, deps.Payments, deps.PublishableKey, log),
		Settings:  settings.NewSettingsHandlers(base, deps.SecureCookies, log),
		Base:      base,
	}
}

func setupRouter(r *gin.Engine, deps Dependencies, h *AppHandlers, log *zap.Logger) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	app := r.Group("/")
	app.Use(session.Middleware(deps.Manager, log))

	opts := guard.Options{SettleTimeout: deps.SettleTimeout, Logger: log}
	require := func(kind guard.Kind) gin.HandlerFunc { return guard.Require(kind, opts) }

	app.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/dashboard")
	})

	// Auth routes
	app.GET("/login", h.Auth.ShowLogin)
	app.POST("/login", h.Auth.Login)
	app.POST("/login/federated", h.Auth.LoginFederated)
	app.GET("/register", h.Auth.ShowRegister)
	app.POST("/register", h.Auth.Register)
	app.POST("/logout", h.Auth.Logout)
	app.POST("/theme", h.Settings.UpdatePreferences)

	dash := app.Group("/dashboard")
	dash.Use(require(guard.Authenticated))
	{
		dash.GET("", h.Dashboard.Index)

		dash.GET("/admin-home", require(guard.AdminOnly), h.Dashboard.AdminHome)
		dash.GET("/manage-users", require(guard.AdminOnly), h.Dashboard.ManageUsers)
		dash.POST("/manage-users/:id", require(guard.AdminOnly), h.Dashboard.UpdateUser)
		dash.GET("/all-loans", require(guard.AdminOrManager), h.Dashboard.AllLoans)

		dash.GET("/manager-home", require(guard.ManagerOnly), h.Dashboard.ManagerHome)
		dash.GET("/pending-applications", require(guard.ManagerOnly), h.Dashboard.PendingApplications)

		dash.GET("/borrower-home", require(guard.BorrowerOnly), h.Dashboard.BorrowerHome)
		dash.GET("/my-loans", require(guard.BorrowerOnly), h.Dashboard.MyLoans)
		dash.GET("/my-loans/:id/pay", require(guard.BorrowerOnly), h.Dashboard.ShowPayFee)
		dash.POST("/my-loans/:id/pay", require(guard.BorrowerOnly), h.Dashboard.ConfirmPayFee)

		dash.GET("/profile", h.Settings.ShowProfile)
		dash.POST("/profile", h.Settings.UpdateProfile)
	}

	r.NoRoute(session.Middleware(deps.Manager, log), h.Base.ShowNotFound)
}
