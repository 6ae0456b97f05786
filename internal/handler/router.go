package handler

import "github.com/gin-gonic/gin"

// API groups the operator handlers so the server and tests mount the same routes.
type API struct {
	Accounts *AccountHandler
	State    *StateHandler
	Bots     *BotHandler
	Workers  *WorkerHandler
	Audit    *AuditHandler
}

// Register mounts the /v1 routes. idempotency wraps bot creation; nil skips it.
func (a *API) Register(v1 *gin.RouterGroup, idempotency gin.HandlerFunc) {
	accounts := v1.Group("/accounts")
	{
		accounts.GET("", a.Accounts.List)
		accounts.POST("", a.Accounts.Create)
		accounts.DELETE("/:account", a.Accounts.Delete)
		accounts.GET("/:account/credentials", a.Accounts.ListCredentials)
		accounts.POST("/:account/credentials/:connector", a.Accounts.AddCredential)
		accounts.DELETE("/:account/credentials/:connector", a.Accounts.DeleteCredential)
		accounts.POST("/:account/wallet", a.Accounts.GenerateWallet)
		accounts.GET("/:account/wallet", a.Accounts.GetWallet)
	}
	v1.GET("/connectors", a.Accounts.Connectors)

	v1.GET("/state", a.State.Get)
	v1.GET("/state/history", a.State.History)

	bots := v1.Group("/bots")
	{
		create := []gin.HandlerFunc{a.Bots.Create}
		if idempotency != nil {
			create = append([]gin.HandlerFunc{idempotency}, create...)
		}
		bots.POST("", create...)
		bots.GET("", a.Bots.List)
		bots.GET("/:id/status", a.Bots.Status)
		bots.GET("/:id/config", a.Bots.Config)
		bots.GET("/:id/history", a.Bots.History)
		bots.GET("/:id/stream", a.Bots.Stream)
		bots.POST("/:id/start", a.Bots.Start)
		bots.POST("/:id/stop", a.Bots.Stop)
		bots.DELETE("/:id", a.Bots.Delete)
	}

	v1.GET("/workers", a.Workers.List)
	v1.GET("/strategies", ListStrategies)

	if a.Audit != nil {
		v1.GET("/audit", a.Audit.List)
	}
}
