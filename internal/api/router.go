// Package api contains the HTTP handlers and routing of the reference host
// harness.
package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter configures the Gin router with all routes and middleware.
func SetupRouter(handler *Handler, ginMode string) *gin.Engine {
	// Set Gin mode
	gin.SetMode(ginMode)

	// Create router with default middleware (logger and recovery)
	router := gin.New()

	// Apply middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RequestIDMiddleware())

	// Health check endpoint (no auth required)
	router.GET("/health", handler.Health)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		{
			payments.POST("", handler.CreatePayment)
			payments.GET("/:id", handler.GetPayment)
			payments.POST("/:id/capture", handler.CapturePayment)
			payments.POST("/:id/void", handler.VoidPayment)
			payments.POST("/:id/refund", handler.RefundPayment)
		}
	}

	// Offsite-redirect endpoints: the gateway sends the shopper back here
	// with the result echoed in the query string.
	router.GET("/checkout/:order_id/payment/return", handler.Return)
	router.GET("/checkout/:order_id/payment/cancel", handler.Cancel)

	return router
}
