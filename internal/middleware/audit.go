package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextAuditLog  = "audit_log"
	ContextRequestID = "request_id"
	HeaderRequestID  = "X-Request-ID"

	// 超过该长度的 body 截断后再入审计
	maxAuditBody = 16 << 10
)

// AuditSink receives one entry per finished request.
type AuditSink interface {
	Log(entry *model.AuditLog)
}

// bodyLogWriter 包装 ResponseWriter 以捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxAuditBody + 1 - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// AuditMiddleware records every request except those under skipPrefixes (health, metrics).
// Read responses are not stored: GET /v1/state can be large and carries no operator action.
func AuditMiddleware(sink AuditSink, skipPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header(HeaderRequestID, reqID)
		c.Set(ContextRequestID, reqID)

		for _, prefix := range skipPrefixes {
			if prefix != "" && strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}

		start := time.Now()
		upgrade := strings.EqualFold(c.GetHeader("Upgrade"), "websocket")

		// 1. 读取请求体 (并写回以便后续 Bind 使用)
		var reqBodyBytes []byte
		if c.Request.Body != nil && !upgrade {
			reqBodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBodyBytes))
		}

		// 2. 初始化审计对象并存入 Context
		auditEntry := &model.AuditLog{
			ID:        reqID,
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			CreatedAt: start,
			Context:   make(map[string]interface{}),
		}
		c.Set(ContextAuditLog, auditEntry)

		// 3. 包装 ResponseWriter 以捕获响应 (websocket 连接不包装, Hijack 需要原始 writer)
		var blw *bodyLogWriter
		if !upgrade && c.Request.Method != http.MethodGet {
			blw = &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
			c.Writer = blw
		}

		c.Next()

		auditEntry.RequestBody = redactAuditBody(c.Request.URL.Path, reqBodyBytes)
		auditEntry.StatusCode = c.Writer.Status()
		if blw != nil {
			auditEntry.ResponseBody = redactAuditBody(c.Request.URL.Path, blw.body.Bytes())
		}
		if len(c.Errors) > 0 {
			var appErr *apperrors.AppError
			if errors.As(c.Errors.Last().Err, &appErr) {
				auditEntry.Context["error_code"] = string(appErr.Type)
			}
		}
		if upgrade {
			auditEntry.Context["websocket"] = true
		}
		auditEntry.LatencyMs = time.Since(start).Milliseconds()

		sink.Log(auditEntry)
	}
}

// AddAuditContext lets handlers attach business context to the audit entry.
func AddAuditContext(c *gin.Context, key string, value interface{}) {
	if val, exists := c.Get(ContextAuditLog); exists {
		if entry, ok := val.(*model.AuditLog); ok {
			entry.Context[key] = value
		}
	}
}

func redactAuditBody(path string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > maxAuditBody {
		if isSensitivePath(path) {
			return "[redacted]"
		}
		return string(body[:maxAuditBody]) + "...(truncated)"
	}
	if !isSensitivePath(path) {
		return string(body)
	}
	redacted, ok := redactJSON(body)
	if !ok {
		return "[redacted]"
	}
	return string(redacted)
}

func isSensitivePath(path string) bool {
	switch {
	case strings.HasPrefix(path, "/v1/accounts"):
		return true
	case strings.HasPrefix(path, "/v1/bots"):
		return true
	default:
		return false
	}
}

func redactJSON(body []byte) ([]byte, bool) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false
	}
	redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	return out, true
}

func redactValue(v *interface{}) {
	switch raw := (*v).(type) {
	case map[string]interface{}:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []interface{}:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

// connector keys arrive as free-form maps, so anything that looks like a secret is masked
func isSensitiveKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	switch k {
	case "keys",
		"private_key",
		"secret_key",
		"password",
		"config_password",
		"admin_key":
		return true
	}
	return strings.Contains(k, "secret") ||
		strings.Contains(k, "passphrase") ||
		strings.HasSuffix(k, "api_key")
}
