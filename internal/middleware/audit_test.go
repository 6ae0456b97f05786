package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

func TestRedactAuditBodyAccounts(t *testing.T) {
	body := []byte(`{"connector":"binance","keys":{"binance_api_key":"k","binance_api_secret":"s"},"nested":[{"private_key":"0xdead"}]}`)
	out := redactAuditBody("/v1/accounts/acct1/credentials/binance", body)

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("invalid json output: %v", err)
	}
	if data["keys"] != "***" {
		t.Fatalf("keys not redacted: %v", data["keys"])
	}
	if data["connector"] != "binance" {
		t.Fatalf("connector should be kept")
	}
	nested := data["nested"].([]interface{})[0].(map[string]interface{})
	if nested["private_key"] == "0xdead" {
		t.Fatalf("private key not redacted")
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for _, key := range []string{"kucoin_api_key", "okx_secret_key", "API_SECRET", "okx_passphrase", "password"} {
		if !isSensitiveKey(key) {
			t.Fatalf("%s should be sensitive", key)
		}
	}
	for _, key := range []string{"market", "strategy_name", "bb_length"} {
		if isSensitiveKey(key) {
			t.Fatalf("%s should not be sensitive", key)
		}
	}
}

func TestRedactAuditBodyNonSensitivePath(t *testing.T) {
	body := []byte(`{"ok":true}`)
	out := redactAuditBody("/health", body)
	if out != string(body) {
		t.Fatalf("unexpected redaction on non-sensitive path")
	}
}

func TestRedactAuditBodyInvalidJSON(t *testing.T) {
	body := []byte("not-json")
	out := redactAuditBody("/v1/bots", body)
	if out != "[redacted]" {
		t.Fatalf("expected redacted placeholder for invalid json")
	}
}

type memSink struct {
	mu      sync.Mutex
	entries []*model.AuditLog
}

func (s *memSink) Log(entry *model.AuditLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func TestAuditMiddlewareRecordsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sink := &memSink{}
	router := gin.New()
	router.Use(AuditMiddleware(sink))
	router.POST("/v1/accounts", func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		AddAuditContext(c, "account", body["account_name"])
		c.JSON(http.StatusCreated, gin.H{"account_name": body["account_name"]})
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/accounts", strings.NewReader(`{"account_name":"acct1","password":"hunter2"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Fatalf("missing request id header")
	}
	if len(sink.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.StatusCode != http.StatusCreated || entry.Context["account"] != "acct1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if strings.Contains(entry.RequestBody, "hunter2") {
		t.Fatalf("password leaked into audit log")
	}
}

func TestAuditMiddlewareSkipsAndRecordsErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sink := &memSink{}
	router := gin.New()
	router.Use(AuditMiddleware(sink, "/health", "/metrics"))
	router.Use(ErrorHandler())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.DELETE("/v1/bots/:id", func(c *gin.Context) {
		c.Error(apperrors.Newf(apperrors.ErrNotFound, "bot %s not found", c.Param("id")))
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/bots/ghost", nil))

	if len(sink.entries) != 1 {
		t.Fatalf("expected only the bot request to be audited, got %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 in audit entry, got %d", entry.StatusCode)
	}
	if entry.Context["error_code"] != "NOT_FOUND" {
		t.Fatalf("missing error code: %+v", entry.Context)
	}
	if !strings.Contains(entry.ResponseBody, "NOT_FOUND") {
		t.Fatalf("response body not captured: %q", entry.ResponseBody)
	}
}

func TestRedactAuditBodyTruncates(t *testing.T) {
	body := []byte(strings.Repeat("a", maxAuditBody+10))
	out := redactAuditBody("/v1/state", body)
	if !strings.HasSuffix(out, "...(truncated)") || len(out) != maxAuditBody+len("...(truncated)") {
		t.Fatalf("unexpected truncation, len=%d", len(out))
	}
	if redactAuditBody("/v1/accounts", body) != "[redacted]" {
		t.Fatalf("oversized sensitive body should be fully redacted")
	}
}
