package model

import "time"

// AuditLog records one operator API call.
type AuditLog struct {
	ID        string `json:"id"`         // 唯一请求 ID (UUID)
	Method    string `json:"method"`     // HTTP 方法
	Path      string `json:"path"`       // 请求路径
	IP        string `json:"ip"`         // 客户端 IP
	UserAgent string `json:"user_agent"` // 客户端 UA

	// 请求详情 (脱敏后)
	RequestBody string `json:"request_body"`

	// 响应详情
	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body"`
	LatencyMs    int64  `json:"latency_ms"`

	// 业务上下文, e.g. account, bot id
	Context   map[string]interface{} `json:"context"`
	CreatedAt time.Time              `json:"created_at"`
}
