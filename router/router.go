package router

import (
	"net/http"

	"github.com/custody_settlement/handler"
	"github.com/custody_settlement/logging"
	"github.com/custody_settlement/middleware"
	"github.com/gin-gonic/gin"
)

func SetupRouter(log *logging.Logger, identity middleware.IdentityConfig, walletHandler *handler.WalletHandler, adminHandler *handler.AdminHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), log.LoggingMiddleWare())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/wallet", middleware.Identity(identity))
	{
		api.GET("/balance", walletHandler.GetBalance)
		api.POST("/deposits", walletHandler.SubmitDeposit)
		api.GET("/deposits", walletHandler.ListDeposits)
		api.GET("/deposits/:id", walletHandler.GetDeposit)
		api.POST("/withdrawals", walletHandler.SubmitWithdrawal)
		api.GET("/withdrawals", walletHandler.ListWithdrawals)
		api.GET("/withdrawals/fee", walletHandler.QuoteFee)
		api.GET("/withdrawals/:id", walletHandler.GetWithdrawal)
	}

	admin := r.Group("/api/admin", middleware.Identity(identity), middleware.RequireAdmin())
	{
		admin.GET("/deposits", adminHandler.ListDeposits)
		admin.POST("/deposits/:id/review", adminHandler.ReviewDeposit)
		admin.POST("/deposits/:id/verify", adminHandler.VerifyDeposit)

		admin.GET("/withdrawals", adminHandler.ListWithdrawals)
		admin.POST("/withdrawals/:id/review", adminHandler.ReviewWithdrawal)
		admin.POST("/withdrawals/:id/execute", adminHandler.ExecuteWithdrawal)

		admin.GET("/hot-wallets", adminHandler.ListHotWallets)
		admin.PUT("/hot-wallets/:currency", adminHandler.UpsertHotWallet)
		admin.DELETE("/hot-wallets/:id", adminHandler.DeleteHotWallet)

		admin.GET("/audit-logs", adminHandler.ListAuditLogs)
		admin.GET("/balances/:user_id", adminHandler.ListBalances)
		admin.POST("/balances/:user_id/adjust", adminHandler.AdjustBalance)
	}

	return r
}
