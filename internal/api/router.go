package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/credential-payments/internal/handlers"
	"github.com/akylbek/payment-system/credential-payments/internal/service"
	"github.com/akylbek/payment-system/credential-payments/internal/telemetry"
)

// StatusReporter reports background job state on the admin routes.
type StatusReporter interface {
	GetStatus() map[string]interface{}
}

// NewRouter wires the HTTP surface. jobs may be nil when no scheduler runs.
func NewRouter(orchestrator *service.Orchestrator, retention time.Duration, jobs StatusReporter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "credential-payments"})
	})

	// Payment routes
	paymentHandler := handlers.NewPaymentHandler(orchestrator)
	payments := r.Group("/payments")
	payments.POST("", paymentHandler.CreatePayment)
	payments.GET("", paymentHandler.ListPayments)
	payments.GET("/:id", paymentHandler.GetPayment)
	payments.POST("/:id/proof", paymentHandler.BeginProofExchange)
	payments.POST("/:id/advance", paymentHandler.Advance)
	payments.POST("/:id/verify-pin", paymentHandler.VerifyPIN)
	payments.POST("/:id/cancel", paymentHandler.CancelPayment)

	// Account and maintenance routes
	accountHandler := handlers.NewAccountHandler(orchestrator, retention)
	r.GET("/accounts/:id/risk", accountHandler.GetRisk)
	r.POST("/accounts/:id/suspend", accountHandler.Suspend)
	r.POST("/admin/cleanup", accountHandler.Cleanup)
	if jobs != nil {
		r.GET("/admin/cleanup/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, jobs.GetStatus())
		})
	}

	return r
}
