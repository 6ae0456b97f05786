package handler

import (
	"net/http"

	"github.com/GoPolymarket/botfleet/internal/strategy"
	"github.com/gin-gonic/gin"
)

func ListStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, strategy.List())
}
