package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/service"
	"github.com/gin-gonic/gin"
)

const maxAuditLimit = 1000

type AuditHandler struct {
	svc *service.AuditService
	now func() time.Time
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc, now: time.Now}
}

// List serves GET /v1/audit?path=/v1/bots&account=acct1&from=2h&limit=50, newest first.
func (h *AuditHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 100)
	if limit <= 0 || limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	from, to, err := timeRangeAt(c, h.now())
	if err != nil {
		c.Error(err)
		return
	}

	records, err := h.svc.List(c.Request.Context(), c.Query("path"), limit, from, to)
	if err != nil {
		c.Error(apperrors.New(apperrors.ErrInternal, "failed to read audit trail", err))
		return
	}
	if account := c.Query("account"); account != "" {
		records = filterByAccount(records, account)
	}
	c.JSON(http.StatusOK, records)
}

// entries are tagged with the account by the account and bot handlers
func filterByAccount(records []*model.AuditLog, account string) []*model.AuditLog {
	out := make([]*model.AuditLog, 0, len(records))
	for _, r := range records {
		if v, ok := r.Context["account"].(string); ok && v == account {
			out = append(out, r)
		}
	}
	return out
}

func queryInt(c *gin.Context, key string, def int) int {
	if raw := c.Query(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			return parsed
		}
	}
	return def
}

func timeRange(c *gin.Context) (*time.Time, *time.Time, error) {
	return timeRangeAt(c, time.Now())
}

// timeRangeAt reads the optional from/to query parameters. Durations count back from now.
func timeRangeAt(c *gin.Context, now time.Time) (*time.Time, *time.Time, error) {
	bound := func(key string) (*time.Time, error) {
		raw := c.Query(key)
		if raw == "" {
			return nil, nil
		}
		t, err := parseTime(raw, now)
		if err != nil {
			return nil, apperrors.NewInvalidRequest(fmt.Sprintf("%s: %v", key, err))
		}
		return &t, nil
	}
	from, err := bound("from")
	if err != nil {
		return nil, nil, err
	}
	to, err := bound("to")
	if err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, apperrors.NewInvalidRequest("from must not be after to")
	}
	return from, to, nil
}

func parseTime(raw string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q, use RFC3339, unix seconds or a duration like 2h", raw)
}
