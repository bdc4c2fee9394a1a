package domain

import (
	"errors"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/domain/guard"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/navigation"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/session"
	"github.com/FACorreiaa/go-loanhub/internal/app/models"
	"github.com/FACorreiaa/go-loanhub/internal/app/pages"
	"github.com/FACorreiaa/go-loanhub/internal/app/renderer"
	"github.com/FACorreiaa/go-loanhub/internal/app/services/backend"
)

// ThemeCookie holds the light/dark preference.
const ThemeCookie = "theme"

type BaseHandler struct {
	Logger        *zap.Logger
	SettleTimeout time.Duration
}

func NewBaseHandler(logger *zap.Logger, settleTimeout time.Duration) *BaseHandler {
	return &BaseHandler{Logger: logger, SettleTimeout: settleTimeout}
}

// NewLayoutData builds the shell around content from the caller's session
// and role binding.
func (h *BaseHandler) NewLayoutData(c *gin.Context, title, activeNav string, content templ.Component) models.LayoutTempl {
	theme, _ := c.Cookie(ThemeCookie)
	data := models.LayoutTempl{
		Title:     title,
		Content:   content,
		Nav:       models.OfflineNav,
		ActiveNav: activeNav,
		Theme:     theme,
	}

	src := session.FromContext(c)
	if src == nil {
		return data
	}
	st := src.Snapshot()
	if st.Identity != nil {
		data.Identity = st.Identity
		if rs := src.Roles().Snapshot(); rs.Email == st.Identity.Email {
			data.Role = rs.Record
		}
	}
	data.Nav = navigation.Menu(data.Identity != nil, data.Role)
	return data
}

func (h *BaseHandler) Render(c *gin.Context, status int, component templ.Component) {
	c.Render(status, renderer.New(c.Request.Context(), status, component))
}

// RenderPage renders content inside the layout. While the session or role
// is still loading the blocking loading page is rendered instead.
func (h *BaseHandler) RenderPage(c *gin.Context, title, activeNav string, content templ.Component) {
	if src := session.FromContext(c); src != nil {
		in := guard.Snapshot(c.Request.Context(), src, h.SettleTimeout)
		if in.AuthLoading || in.RoleLoading {
			c.Header("Cache-Control", "no-store")
			h.Render(c, http.StatusOK, pages.LoadingPage(c.Request.URL.RequestURI()))
			return
		}
	}
	h.Render(c, http.StatusOK, pages.LayoutPage(h.NewLayoutData(c, title, activeNav, content)))
}

// RenderError maps a failed backend or provider call to a page. A 401/403
// writes nothing because the session middleware is already redirecting.
func (h *BaseHandler) RenderError(c *gin.Context, title string, err error) {
	if errors.Is(err, backend.ErrAuthRejected) {
		return
	}

	status := http.StatusBadGateway
	message := "The service is temporarily unavailable. Please try again."
	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, models.ErrNotFound), errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		status = http.StatusNotFound
		message = "We could not find what you were looking for."
	case errors.Is(err, models.ErrBadRequest), errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
		message = err.Error()
	}
	h.Logger.Warn("Request failed",
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	)
	h.Render(c, status, pages.LayoutPage(h.NewLayoutData(c, title, "", pages.Notice(title, message))))
}

// ShowNotFound renders the 404 page inside the layout.
func (h *BaseHandler) ShowNotFound(c *gin.Context) {
	h.Render(c, http.StatusNotFound, pages.LayoutPage(h.NewLayoutData(c, "Not found", "", pages.Notice("Page not found", "The page you requested does not exist."))))
}
