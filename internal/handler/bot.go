package handler

import (
	"net/http"
	"strconv"

	"github.com/GoPolymarket/botfleet/internal/middleware"
	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/service"
	"github.com/gin-gonic/gin"
)

type BotHandler struct {
	svc *service.BotService
}

func NewBotHandler(svc *service.BotService) *BotHandler {
	return &BotHandler{svc: svc}
}

func (h *BotHandler) Create(c *gin.Context) {
	var req model.CreateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	resp, err := h.svc.CreateBot(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}
	h.tag(c, resp.InstanceID)
	c.JSON(http.StatusCreated, resp)
}

func (h *BotHandler) tag(c *gin.Context, id string) {
	middleware.AddAuditContext(c, "bot", id)
	middleware.AddAuditContext(c, "account", h.svc.AccountOf(id))
}

func (h *BotHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.AllStatuses())
}

// Status is always 200; an unknown bot reports status not_found.
func (h *BotHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status(c.Param("id")))
}

func (h *BotHandler) Config(c *gin.Context) {
	cfg, err := h.svc.GetBotConfig(c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *BotHandler) Start(c *gin.Context) {
	var req model.StartBotRequest
	// body is optional
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewInvalidRequest(err.Error()))
			return
		}
	}
	id := c.Param("id")
	resp, err := h.svc.StartBot(c.Request.Context(), id, req.Parameters)
	if err != nil {
		c.Error(err)
		return
	}
	h.tag(c, id)
	c.JSON(http.StatusOK, resp)
}

func (h *BotHandler) Stop(c *gin.Context) {
	id := c.Param("id")
	resp, err := h.svc.StopBot(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	h.tag(c, id)
	c.JSON(http.StatusOK, resp)
}

func (h *BotHandler) History(c *gin.Context) {
	trades, err := h.svc.TradeHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

// Delete removes the worker; ?archive=false skips the instance archive.
func (h *BotHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	keep := true
	if raw := c.Query("archive"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.Error(apperrors.NewInvalidRequest("archive must be a boolean"))
			return
		}
		keep = parsed
	}
	archivePath, err := h.svc.RemoveBot(c.Request.Context(), id, keep)
	if err != nil {
		c.Error(err)
		return
	}
	h.tag(c, id)
	c.JSON(http.StatusOK, gin.H{"status": "removed", "archive": archivePath})
}
