package middleware

import (
	"errors"

	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/GoPolymarket/botfleet/internal/pkg/metrics"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last handler error as {"code","message","suggestion"}.
func ErrorHandler() gin.HandlerFunc {
	log := logger.Component("http")
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		last := c.Errors.Last()
		var appErr *apperrors.AppError
		switch {
		case errors.As(last.Err, &appErr):
		case last.IsType(gin.ErrorTypeBind):
			// binding 失败统一按请求错误返回
			appErr = apperrors.New(apperrors.ErrInvalidRequest, last.Err.Error(), last.Err)
		default:
			appErr = apperrors.New(apperrors.ErrInternal, last.Err.Error(), last.Err)
		}
		metrics.APIErrors.WithLabelValues(string(appErr.Type)).Inc()

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ContextRequestID),
		}
		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "request failed", fields...)
		} else {
			log.Warn(appErr.Message, fields...)
		}

		// websocket upgrades and streamed responses already own the writer
		if c.Writer.Written() {
			return
		}
		c.JSON(appErr.HTTPStatus, appErr)
	}
}
