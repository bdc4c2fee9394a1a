package dashboard

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/domain"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/guard"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/navigation"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/payments"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/roles"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/session"
	"github.com/FACorreiaa/go-loanhub/internal/app/middleware"
	"github.com/FACorreiaa/go-loanhub/internal/app/models"
	"github.com/FACorreiaa/go-loanhub/internal/app/pages"
	"github.com/FACorreiaa/go-loanhub/internal/app/services/backend"
)

type DashboardHandlers struct {
	*domain.BaseHandler
	resolver       *roles.Resolver
	payments       *payments.Service
	publishableKey string
	logger         *zap.Logger
}

func NewDashboardHandlers(base *domain.BaseHandler, resolver *roles.Resolver, fees *payments.Service, publishableKey string, logger *zap.Logger) *DashboardHandlers {
	return &DashboardHandlers{
		BaseHandler:    base,
		resolver:       resolver,
		payments:       fees,
		publishableKey: publishableKey,
		logger:         logger,
	}
}

// Index sends the user to the home page of their role.
func (h *DashboardHandlers) Index(c *gin.Context) {
	in := guard.Snapshot(c.Request.Context(), session.FromContext(c), h.SettleTimeout)
	if home := navigation.HomePath(in.Record); home != "" {
		c.Redirect(http.StatusFound, home)
		return
	}
	h.RenderPage(c, "Dashboard", "/dashboard",
		pages.Notice("Role unavailable", "We could not load your account role. Please refresh the page or sign in again."))
}

func (h *DashboardHandlers) stats(c *gin.Context, scope backend.StatsScope, title, active string) {
	stats, err := session.FromContext(c).API().Stats(c.Request.Context(), scope)
	if err != nil {
		h.RenderError(c, title, err)
		return
	}
	h.RenderPage(c, title, active, pages.StatsPanel(title, stats))
}

func (h *DashboardHandlers) AdminHome(c *gin.Context) {
	h.stats(c, backend.StatsAdmin, "Admin overview", "/dashboard/admin-home")
}

func (h *DashboardHandlers) ManagerHome(c *gin.Context) {
	h.stats(c, backend.StatsManager, "Manager overview", "/dashboard/manager-home")
}

func (h *DashboardHandlers) BorrowerHome(c *gin.Context) {
	h.stats(c, backend.StatsBorrower, "My overview", "/dashboard/borrower-home")
}

func (h *DashboardHandlers) ManageUsers(c *gin.Context) {
	users, err := session.FromContext(c).API().ListUsers(c.Request.Context())
	if err != nil {
		h.RenderError(c, "Manage users", err)
		return
	}
	msg := ""
	if c.Query("updated") != "" {
		msg = "User updated."
	}
	h.RenderPage(c, "Manage users", "/dashboard/manage-users", pages.UsersTable(users, msg))
}

// UpdateUser changes a user's role or status and drops the cached role so
// every client signed in as that user picks up the change.
func (h *DashboardHandlers) UpdateUser(c *gin.Context) {
	l := h.logger.With(zap.String("method", "UpdateUser"))
	id := c.Param("id")
	email := c.PostForm("email")
	upd := models.AdminUpdate{
		Role:          models.Role(c.PostForm("role")),
		Status:        models.Status(c.PostForm("status")),
		SuspendReason: c.PostForm("suspend_reason"),
	}

	switch upd.Role {
	case models.RoleBorrower, models.RoleManager, models.RoleAdmin:
	default:
		h.RenderError(c, "Manage users", fmt.Errorf("unknown role %q: %w", upd.Role, models.ErrValidation))
		return
	}
	switch upd.Status {
	case models.StatusActive:
		upd.SuspendReason = ""
	case models.StatusSuspended:
	default:
		h.RenderError(c, "Manage users", fmt.Errorf("unknown status %q: %w", upd.Status, models.ErrValidation))
		return
	}

	if err := session.FromContext(c).API().UpdateUserAdmin(c.Request.Context(), id, upd); err != nil {
		l.Error("Admin update failed", zap.String("user_id", id), zap.Error(err))
		h.RenderError(c, "Manage users", err)
		return
	}
	if email != "" {
		h.resolver.Invalidate(email)
	}
	l.Info("User updated", zap.String("user_id", id), zap.String("role", string(upd.Role)), zap.String("status", string(upd.Status)))
	middleware.Redirect(c, "/dashboard/manage-users?updated=1")
}

func (h *DashboardHandlers) AllLoans(c *gin.Context) {
	loans, err := session.FromContext(c).API().ListLoans(c.Request.Context())
	if err != nil {
		h.RenderError(c, "All loans", err)
		return
	}
	h.RenderPage(c, "All loans", "/dashboard/all-loans", pages.LoansTable(loans))
}

func (h *DashboardHandlers) PendingApplications(c *gin.Context) {
	apps, err := session.FromContext(c).API().ListApplications(c.Request.Context(), url.Values{"status": {string(models.ApplicationPending)}})
	if err != nil {
		h.RenderError(c, "Pending applications", err)
		return
	}
	h.RenderPage(c, "Pending applications", "/dashboard/pending-applications", pages.ApplicationsTable("Pending applications", apps, false))
}

func currentEmail(c *gin.Context) string {
	if id := session.FromContext(c).Snapshot().Identity; id != nil {
		return id.Email
	}
	return ""
}

func (h *DashboardHandlers) MyLoans(c *gin.Context) {
	apps, err := session.FromContext(c).API().ListApplications(c.Request.Context(), url.Values{"email": {currentEmail(c)}})
	if err != nil {
		h.RenderError(c, "My loans", err)
		return
	}
	h.RenderPage(c, "My loans", "/dashboard/my-loans", pages.ApplicationsTable("My loans", apps, h.payments.Enabled()))
}

func (h *DashboardHandlers) feeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payments.ErrDisabled):
		h.RenderPage(c, "Application fee", "/dashboard/my-loans", pages.Notice("Payments unavailable", "Online payments are not configured."))
	case errors.Is(err, payments.ErrFeeAlreadyPaid):
		h.RenderPage(c, "Application fee", "/dashboard/my-loans", pages.Notice("Already paid", "The fee for this application has been paid."))
	case errors.Is(err, payments.ErrPaymentIncomplete):
		h.RenderPage(c, "Application fee", "/dashboard/my-loans", pages.Notice("Payment pending", "Your payment has not completed yet."))
	case errors.Is(err, models.ErrForbidden), errors.Is(err, payments.ErrIntentMismatch):
		h.Render(c, http.StatusForbidden, pages.LayoutPage(h.NewLayoutData(c, "Application fee", "",
			pages.Notice("Not your application", "This application belongs to another account."))))
	default:
		h.RenderError(c, "Application fee", err)
	}
}

func (h *DashboardHandlers) ShowPayFee(c *gin.Context) {
	src := session.FromContext(c)
	ctx := c.Request.Context()
	app, err := src.API().Application(ctx, c.Param("id"))
	if err != nil {
		h.RenderError(c, "Application fee", err)
		return
	}
	checkout, err := h.payments.StartFee(ctx, *app, currentEmail(c))
	if err != nil {
		h.feeError(c, err)
		return
	}
	h.RenderPage(c, "Application fee", "/dashboard/my-loans", pages.PaymentCheckout(pages.CheckoutData{
		Application:    *app,
		Amount:         checkout.Amount,
		Currency:       checkout.Currency,
		ClientSecret:   checkout.ClientSecret,
		PaymentIntent:  checkout.IntentID,
		PublishableKey: h.publishableKey,
	}))
}

func (h *DashboardHandlers) ConfirmPayFee(c *gin.Context) {
	src := session.FromContext(c)
	ctx := c.Request.Context()
	app, err := src.API().Application(ctx, c.Param("id"))
	if err != nil {
		h.RenderError(c, "Application fee", err)
		return
	}
	intent := c.PostForm("payment_intent")
	if intent == "" {
		intent = c.Query("payment_intent")
	}
	if _, err := h.payments.ConfirmFee(ctx, src.API(), *app, currentEmail(c), intent); err != nil {
		h.feeError(c, err)
		return
	}
	middleware.Redirect(c, "/dashboard/my-loans")
}
