package settings

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/domain"
)

func TestBackTo(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name    string
		referer string
		want    string
	}{
		{"same host keeps path and query", "http://portal.local/dashboard/my-loans?page=2", "/dashboard/my-loans?page=2"},
		{"relative referer", "/login", "/login"},
		{"other host", "https://evil.example/phish", "/"},
		{"protocol relative path", "http://portal.local//evil.example", "/"},
		{"missing", "", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodPost, "http://portal.local/theme", nil)
			if tt.referer != "" {
				c.Request.Header.Set("Referer", tt.referer)
			}
			assert.Equal(t, tt.want, backTo(c))
		})
	}
}

func TestUpdatePreferencesSetsThemeCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewSettingsHandlers(domain.NewBaseHandler(zap.NewNop(), 0), true, zap.NewNop())
	r := gin.New()
	r.POST("/theme", h.UpdatePreferences)

	for form, want := range map[string]string{"theme=dark": "dark", "theme=neon": "light"} {
		req := httptest.NewRequest(http.MethodPost, "/theme", strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusSeeOther, w.Code)
		cookies := w.Result().Cookies()
		if assert.Len(t, cookies, 1) {
			assert.Equal(t, domain.ThemeCookie, cookies[0].Name)
			assert.Equal(t, want, cookies[0].Value)
			assert.True(t, cookies[0].Secure)
			assert.True(t, cookies[0].HttpOnly)
		}
	}
}
