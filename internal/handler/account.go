package handler

import (
	"net/http"

	"github.com/GoPolymarket/botfleet/internal/middleware"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/service"
	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

type addAccountRequest struct {
	AccountName string `json:"account_name" binding:"required"`
}

func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.svc.ListAccounts()
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (h *AccountHandler) Create(c *gin.Context) {
	var req addAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidRequest(err.Error()))
		return
	}
	if err := h.svc.AddAccount(c.Request.Context(), req.AccountName); err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "account", req.AccountName)
	c.JSON(http.StatusCreated, gin.H{"account_name": req.AccountName})
}

func (h *AccountHandler) Delete(c *gin.Context) {
	account := c.Param("account")
	if err := h.svc.DeleteAccount(c.Request.Context(), account); err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "account", account)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *AccountHandler) ListCredentials(c *gin.Context) {
	names, err := h.svc.ListCredentials(c.Param("account"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, names)
}

// AddCredential takes the connector's keys as a flat JSON object.
func (h *AccountHandler) AddCredential(c *gin.Context) {
	account, connectorName := c.Param("account"), c.Param("connector")
	var keys map[string]string
	if err := c.ShouldBindJSON(&keys); err != nil {
		c.Error(apperrors.NewInvalidRequest("keys must be a JSON object of strings"))
		return
	}
	if err := h.svc.AddConnectorKeys(c.Request.Context(), account, connectorName, keys); err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "account", account)
	middleware.AddAuditContext(c, "connector", connectorName)
	c.JSON(http.StatusCreated, gin.H{"account_name": account, "connector": connectorName})
}

func (h *AccountHandler) DeleteCredential(c *gin.Context) {
	account, connectorName := c.Param("account"), c.Param("connector")
	if err := h.svc.RemoveCredential(account, connectorName); err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "account", account)
	middleware.AddAuditContext(c, "connector", connectorName)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *AccountHandler) GenerateWallet(c *gin.Context) {
	account := c.Param("account")
	address, err := h.svc.GenerateWallet(c.Request.Context(), account)
	if err != nil {
		c.Error(err)
		return
	}
	middleware.AddAuditContext(c, "account", account)
	middleware.AddAuditContext(c, "wallet", address)
	c.JSON(http.StatusCreated, gin.H{"account_name": account, "wallet_address": address})
}

func (h *AccountHandler) GetWallet(c *gin.Context) {
	account := c.Param("account")
	address, err := h.svc.GetWalletAddress(account)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_name": account, "wallet_address": address})
}

func (h *AccountHandler) Connectors(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.SupportedConnectors())
}
