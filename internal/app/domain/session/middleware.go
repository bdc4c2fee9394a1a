package session

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/middleware"
)

const (
	clientIDKey  = "client_id"
	sourceCtxKey = "session.source"
)

// Middleware attaches the caller's Source to the request. It must run after
// sessions.Sessions. A navigation requested while the chain runs becomes a
// redirect unless the handler already wrote a response.
func Middleware(m *Manager, logger *zap.Logger) gin.HandlerFunc {
	l := logger.With(zap.String("method", "session.Middleware"))
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		clientID, _ := sess.Get(clientIDKey).(string)
		if clientID == "" {
			clientID = uuid.NewString()
			sess.Set(clientIDKey, clientID)
			if err := sess.Save(); err != nil {
				l.Error("Failed to save browser session", zap.Error(err))
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
		}

		src, err := m.Source(clientID)
		if err != nil {
			l.Error("Failed to open session source", zap.Error(err))
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		rec := &RedirectRecorder{}
		c.Request = c.Request.WithContext(WithNavigator(c.Request.Context(), rec))
		c.Set(sourceCtxKey, src)

		c.Next()

		if target := rec.Target(); target != "" && !c.Writer.Written() {
			middleware.AuthRedirect(c, target)
		}
	}
}

// FromContext returns the Source attached by Middleware.
func FromContext(c *gin.Context) *Source {
	v, ok := c.Get(sourceCtxKey)
	if !ok {
		return nil
	}
	src, _ := v.(*Source)
	return src
}
