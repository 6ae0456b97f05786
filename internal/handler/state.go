package handler

import (
	"net/http"

	"github.com/GoPolymarket/botfleet/internal/service"
	"github.com/gin-gonic/gin"
)

type StateHandler struct {
	state   *service.AccountStateService
	history *service.HistoryService
}

func NewStateHandler(state *service.AccountStateService, history *service.HistoryService) *StateHandler {
	return &StateHandler{state: state, history: history}
}

func (h *StateHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.state.GetAccountsState())
}

func (h *StateHandler) History(c *gin.Context) {
	limit := queryInt(c, "limit", 0)
	from, to, err := timeRange(c)
	if err != nil {
		c.Error(err)
		return
	}
	records, err := h.history.LoadHistory(c.Request.Context(), limit, from, to)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, records)
}
