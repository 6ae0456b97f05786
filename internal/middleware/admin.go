package middleware

import (
	"crypto/subtle"

	"github.com/GoPolymarket/botfleet/internal/config"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

const HeaderAdminKey = "X-Admin-Key"

// AdminMiddleware guards the operator API with a shared key. An empty key disables the check.
func AdminMiddleware(cfg *config.Config) gin.HandlerFunc {
	var want []byte
	if cfg != nil {
		want = []byte(cfg.Auth.AdminKey)
	}
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got := c.GetHeader(HeaderAdminKey)
		var appErr *apperrors.AppError
		switch {
		case got == "":
			appErr = apperrors.New(apperrors.ErrUnauthorized, "missing admin key", nil)
		case subtle.ConstantTimeCompare([]byte(got), want) != 1:
			appErr = apperrors.New(apperrors.ErrUnauthorized, "invalid admin key", nil)
		default:
			c.Next()
			return
		}
		metrics.APIErrors.WithLabelValues(string(appErr.Type)).Inc()
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
	}
}
