package settings

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/domain"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/auth"
	"github.com/FACorreiaa/go-loanhub/internal/app/domain/session"
	"github.com/FACorreiaa/go-loanhub/internal/app/middleware"
	"github.com/FACorreiaa/go-loanhub/internal/app/models"
	"github.com/FACorreiaa/go-loanhub/internal/app/pages"
)

const themeMaxAge = 365 * 24 * 60 * 60

type SettingsHandlers struct {
	*domain.BaseHandler
	secureCookies bool
	logger        *zap.Logger
}

func NewSettingsHandlers(base *domain.BaseHandler, secureCookies bool, logger *zap.Logger) *SettingsHandlers {
	return &SettingsHandlers{
		BaseHandler:   base,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

func (h *SettingsHandlers) profileData(c *gin.Context) pages.ProfileData {
	src := session.FromContext(c)
	data := pages.ProfileData{Identity: src.Snapshot().Identity}
	if data.Identity != nil {
		if rs := src.Roles().Snapshot(); rs.Email == data.Identity.Email {
			data.Role = rs.Record
		}
	}
	return data
}

func (h *SettingsHandlers) ShowProfile(c *gin.Context) {
	data := h.profileData(c)
	if c.Query("saved") != "" {
		data.Message = "Profile updated."
	}
	h.RenderPage(c, "My profile", "/dashboard/profile", pages.ProfilePage(data))
}

func (h *SettingsHandlers) UpdateProfile(c *gin.Context) {
	l := h.logger.With(zap.String("method", "UpdateProfile"))
	src := session.FromContext(c)

	name := strings.TrimSpace(c.PostForm("name"))
	photo := strings.TrimSpace(c.PostForm("photo_url"))
	upd := models.ProfileUpdate{DisplayName: &name, PhotoURL: &photo}

	l.Info("Profile update requested", zap.String("client_id", src.ID()))
	if name == "" {
		data := h.profileData(c)
		data.Error = "Display name is required"
		h.Render(c, http.StatusBadRequest, pages.LayoutPage(h.NewLayoutData(c, "My profile", "/dashboard/profile", pages.ProfilePage(data))))
		return
	}
	if photo != "" {
		if u, err := url.Parse(photo); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			data := h.profileData(c)
			data.Error = "Photo URL must be an http or https address"
			h.Render(c, http.StatusBadRequest, pages.LayoutPage(h.NewLayoutData(c, "My profile", "/dashboard/profile", pages.ProfilePage(data))))
			return
		}
	}

	if _, err := src.UpdateProfile(c.Request.Context(), upd); err != nil {
		l.Error("Profile update failed", zap.Error(err))
		h.RenderError(c, "My profile", err)
		return
	}

	l.Info("Profile updated successfully", zap.String("client_id", src.ID()))
	middleware.Redirect(c, "/dashboard/profile?saved=1")
}

// UpdatePreferences toggles the theme cookie and returns to the page the
// form was posted from.
func (h *SettingsHandlers) UpdatePreferences(c *gin.Context) {
	theme := c.PostForm("theme")
	if theme != "dark" {
		theme = "light"
	}
	h.logger.Debug("Theme changed", zap.String("theme", theme))
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(domain.ThemeCookie, theme, themeMaxAge, "/", "", h.secureCookies, true)
	middleware.Redirect(c, backTo(c))
}

func backTo(c *gin.Context) string {
	ref, err := url.Parse(c.GetHeader("Referer"))
	if err != nil || (ref.Host != "" && ref.Host != c.Request.Host) {
		return "/"
	}
	target := ref.EscapedPath()
	if ref.RawQuery != "" {
		target += "?" + ref.RawQuery
	}
	if safe := auth.SafeRedirect(target); safe != "" {
		return safe
	}
	return "/"
}
