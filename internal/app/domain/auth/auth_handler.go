package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/domain"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/identity"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/roles"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/session"
	"github.com/FACorreiaa/go-loanhub/internal/app/middleware"
	"github.com/FACorreiaa/go-loanhub/internal/app/models"
	"github.com/FACorreiaa/go-loanhub/internal/app/pages"
)

const defaultLanding = "/dashboard"

type AuthHandlers struct {
	*domain.BaseHandler
	resolver  *roles.Resolver
	federated bool
	logger    *zap.Logger
}

// NewAuthHandlers wires the sign-in, registration and sign-out routes.
// federated enables the ID-token sign-in form.
func NewAuthHandlers(base *domain.BaseHandler, resolver *roles.Resolver, federated bool, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		BaseHandler: base,
		resolver:    resolver,
		federated:   federated,
		logger:      logger,
	}
}

// SafeRedirect accepts only same-site absolute paths as a post-login target.
func SafeRedirect(from string) string {
	if !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return ""
	}
	return from
}

func landing(from string) string {
	if target := SafeRedirect(from); target != "" {
		return target
	}
	return defaultLanding
}

// settle waits for the Source to finish its transition, bounded by the
// configured settle timeout.
func (h *AuthHandlers) settle(ctx context.Context, src *session.Source) session.State {
	if h.SettleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.SettleTimeout)
		defer cancel()
	}
	_ = src.Wait(ctx)
	return src.Snapshot()
}

func (h *AuthHandlers) ShowLogin(c *gin.Context) {
	src := session.FromContext(c)
	st := h.settle(c.Request.Context(), src)

	data := pages.LoginData{From: SafeRedirect(c.Query("from")), Federated: h.federated}
	if errors.Is(st.Err, session.ErrSessionNotEstablished) {
		data.Error = "We could not start your session. Please try signing in again."
	}
	if st.Identity != nil {
		data.SignedInAs = st.Identity.Email
	}
	h.RenderPage(c, "Sign in", session.LoginPath, pages.LoginPage(data))
}

// formError re-renders a form with an error. htmx requests get the
// fragment, plain posts get the full page with status.
func (h *AuthHandlers) formError(c *gin.Context, status int, title, target string, form templ.Component) {
	if middleware.IsHTMX(c) {
		c.Header("HX-Retarget", target)
		c.Header("HX-Reswap", "outerHTML")
		h.Render(c, http.StatusOK, form)
		return
	}
	h.Render(c, status, pages.LayoutPage(h.NewLayoutData(c, title, "", form)))
}

func (h *AuthHandlers) Login(c *gin.Context) {
	l := h.logger.With(zap.String("method", "Login"))
	src := session.FromContext(c)
	ctx := c.Request.Context()

	data := pages.LoginData{
		From:      SafeRedirect(c.PostForm("from")),
		Email:     strings.TrimSpace(c.PostForm("email")),
		Federated: h.federated,
	}
	password := c.PostForm("password")
	l.Info("Login attempt", zap.String("email", data.Email), zap.String("remote_addr", c.ClientIP()))

	if data.Email == "" || password == "" {
		data.Error = "Email and password are required"
		h.formError(c, http.StatusBadRequest, "Sign in", "#login", pages.LoginPage(data))
		return
	}

	if _, err := src.SignIn(ctx, data.Email, password); err != nil {
		status, msg := http.StatusBadGateway, "Sign-in is unavailable right now. Please try again."
		if errors.Is(err, identity.ErrInvalidCredentials) {
			status, msg = http.StatusUnauthorized, "Invalid email or password"
		}
		l.Warn("Login rejected", zap.String("email", data.Email), zap.Error(err))
		data.Error = msg
		h.formError(c, status, "Sign in", "#login", pages.LoginPage(data))
		return
	}

	if st := h.settle(ctx, src); st.Err != nil || st.Identity == nil {
		l.Error("Signed in but no backend session", zap.String("email", data.Email), zap.Error(st.Err))
		data.Error = "We could not start your session. Please try signing in again."
		h.formError(c, http.StatusServiceUnavailable, "Sign in", "#login", pages.LoginPage(data))
		return
	}

	l.Info("Successful login", zap.String("email", data.Email))
	middleware.Redirect(c, landing(data.From))
}

// LoginFederated signs in with a verified ID token and makes sure the
// backend has a user record. New federated users are borrowers.
func (h *AuthHandlers) LoginFederated(c *gin.Context) {
	l := h.logger.With(zap.String("method", "LoginFederated"))
	src := session.FromContext(c)
	ctx := c.Request.Context()
	data := pages.LoginData{From: SafeRedirect(c.PostForm("from")), Federated: h.federated}

	id, err := src.SignInFederated(ctx, models.FederatedCredential{IDToken: c.PostForm("id_token")})
	if err != nil {
		l.Warn("Federated login rejected", zap.Error(err))
		data.Error = "We could not verify your account. Please try again."
		h.formError(c, http.StatusUnauthorized, "Sign in", "#login", pages.LoginPage(data))
		return
	}

	if st := h.settle(ctx, src); st.Err != nil || st.Identity == nil {
		data.Error = "We could not start your session. Please try signing in again."
		h.formError(c, http.StatusServiceUnavailable, "Sign in", "#login", pages.LoginPage(data))
		return
	}

	err = src.API().UpsertUser(ctx, models.UserRecord{
		Email:    id.Email,
		Name:     id.DisplayName,
		PhotoURL: id.PhotoURL,
		Role:     models.RoleBorrower,
		Status:   models.StatusActive,
	})
	if err != nil {
		l.Error("Failed to upsert federated user", zap.String("email", id.Email), zap.Error(err))
		h.RenderError(c, "Sign in", err)
		return
	}
	h.resolver.Invalidate(id.Email)

	l.Info("Successful federated login", zap.String("email", id.Email))
	middleware.Redirect(c, landing(data.From))
}

func (h *AuthHandlers) ShowRegister(c *gin.Context) {
	h.RenderPage(c, "Register", "/register", pages.RegisterPage(pages.RegisterData{Role: models.RoleBorrower}))
}

func (h *AuthHandlers) Register(c *gin.Context) {
	l := h.logger.With(zap.String("method", "Register"))
	src := session.FromContext(c)
	ctx := c.Request.Context()

	data := pages.RegisterData{
		Email:    strings.TrimSpace(c.PostForm("email")),
		Name:     strings.TrimSpace(c.PostForm("name")),
		PhotoURL: strings.TrimSpace(c.PostForm("photo_url")),
		Role:     models.Role(c.PostForm("role")),
	}
	password := c.PostForm("password")
	l.Info("Registration attempt", zap.String("email", data.Email), zap.String("role", string(data.Role)))

	switch {
	case data.Email == "" || data.Name == "" || password == "":
		data.Error = "All required fields must be filled"
	case !models.SelfServiceRole(data.Role):
		data.Error = "Please choose to borrow or to manage loans"
		data.Role = models.RoleBorrower
	}
	if data.Error != "" {
		h.formError(c, http.StatusBadRequest, "Register", "#register", pages.RegisterPage(data))
		return
	}

	if _, err := src.CreateAccount(ctx, data.Email, password); err != nil {
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, identity.ErrEmailInUse):
			data.Error = "An account with this email already exists"
			status = http.StatusConflict
		case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrPasswordTooShort),
			errors.Is(err, identity.ErrPasswordNoUpper), errors.Is(err, identity.ErrPasswordNoLower):
			var authErr *session.AuthProviderError
			if errors.As(err, &authErr) {
				data.Error = capitalize(authErr.Err.Error())
			}
		default:
			l.Error("Account creation failed", zap.Error(err))
			data.Error = "Registration is unavailable right now. Please try again."
			status = http.StatusBadGateway
		}
		h.formError(c, status, "Register", "#register", pages.RegisterPage(data))
		return
	}

	upd := models.ProfileUpdate{DisplayName: &data.Name}
	if data.PhotoURL != "" {
		upd.PhotoURL = &data.PhotoURL
	}
	if _, err := src.UpdateProfile(ctx, upd); err != nil {
		l.Warn("Failed to store profile after registration", zap.Error(err))
	}

	if st := h.settle(ctx, src); st.Err != nil || st.Identity == nil {
		data.Error = "Your account was created but we could not start your session. Please sign in."
		h.formError(c, http.StatusServiceUnavailable, "Register", "#register", pages.RegisterPage(data))
		return
	}

	email := src.Snapshot().Identity.Email
	err := src.API().UpsertUser(ctx, models.UserRecord{
		Email:    email,
		Name:     data.Name,
		PhotoURL: data.PhotoURL,
		Role:     data.Role,
		Status:   models.StatusActive,
	})
	if err != nil {
		l.Error("Failed to create backend user", zap.String("email", email), zap.Error(err))
		h.RenderError(c, "Register", err)
		return
	}
	h.resolver.Invalidate(email)

	l.Info("Registration complete", zap.String("email", email), zap.String("role", string(data.Role)))
	middleware.Redirect(c, defaultLanding)
}

// Logout signs out and sends the browser to the login page, which is also
// the only way out of the suspension screen.
func (h *AuthHandlers) Logout(c *gin.Context) {
	l := h.logger.With(zap.String("method", "Logout"))
	src := session.FromContext(c)

	if err := src.SignOut(c.Request.Context()); err != nil {
		l.Error("Sign-out failed", zap.Error(err))
		h.RenderError(c, "Sign out", err)
		return
	}
	h.settle(c.Request.Context(), src)
	l.Info("Signed out", zap.String("client_id", src.ID()))
	middleware.Redirect(c, session.LoginPath)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
