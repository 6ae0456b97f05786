package handler

import (
	"net/http"

	"github.com/GoPolymarket/botfleet/internal/service"
	"github.com/gin-gonic/gin"
)

type WorkerHandler struct {
	fleet *service.FleetOrchestrator
}

func NewWorkerHandler(fleet *service.FleetOrchestrator) *WorkerHandler {
	return &WorkerHandler{fleet: fleet}
}

func (h *WorkerHandler) List(c *gin.Context) {
	names, err := h.fleet.ListActiveWorkers(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, names)
}
