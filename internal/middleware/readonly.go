package middleware

import (
	"net/http"

	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// mutations that stay open in read-only mode, keyed by "METHOD route-template"
var readOnlyExempt = map[string]struct{}{
	http.MethodPost + " /v1/bots/:id/stop": {},
}

// ReadOnlyMiddleware rejects every mutating call except halting a bot, so a frozen fleet can still be stopped.
func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if _, ok := readOnlyExempt[c.Request.Method+" "+c.FullPath()]; ok {
			AddAuditContext(c, "read_only_exempt", true)
			c.Next()
			return
		}
		c.Error(apperrors.Newf(apperrors.ErrReadOnly, "%s %s is disabled in read-only mode", c.Request.Method, c.Request.URL.Path))
		c.Abort()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
