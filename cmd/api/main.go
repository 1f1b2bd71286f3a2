// Paymetric payment gateway service
//
// This is the main entry point for the reference host harness. It wires up
// all dependencies and starts the HTTP server.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/commercekit/paymetric-payments/config"
	"github.com/commercekit/paymetric-payments/internal/adapters/authnet"
	"github.com/commercekit/paymetric-payments/internal/adapters/memstore"
	"github.com/commercekit/paymetric-payments/internal/adapters/xipay"
	"github.com/commercekit/paymetric-payments/internal/api"
	"github.com/commercekit/paymetric-payments/internal/core/ports"
	"github.com/commercekit/paymetric-payments/internal/core/service"
)

func main() {
	// Load .env when present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	logger, err := buildLogger(cfg.Server.GinMode)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting paymetric-payments",
		zap.String("port", cfg.Server.Port),
		zap.String("driver", cfg.Gateway.Driver),
		zap.String("mode", cfg.Gateway.Mode),
	)

	// Wire up dependencies (manual dependency injection)
	//
	// Infrastructure Layer
	gateway, approvedCodes, err := buildGateway(cfg, logger)
	if err != nil {
		logger.Fatal("gateway configuration error", zap.Error(err))
	}
	paymentStore := memstore.NewPaymentStore()
	methodStore := memstore.NewMethodStore()

	// Service Layer
	builder := service.NewRequestBuilder(cfg.Gateway.Credentials())
	interp := service.NewInterpreter(approvedCodes...)
	payments := service.NewPaymentService(
		gateway,
		paymentStore,
		methodStore,
		builder,
		interp,
		logger,
		cfg.Gateway.AcceptedCardTypes,
	)

	// API Layer
	handler := api.NewHandler(payments, logger)
	router := api.SetupRouter(handler, cfg.Server.GinMode)

	// Start server in a goroutine
	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	go func() {
		logger.Info("server listening", zap.String("addr", serverAddr))
		if err := router.Run(serverAddr); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
}

// buildGateway selects and constructs the gateway client. The legacy driver
// approves on AIM code 1; the XiPay driver uses the interpreter default
// unless overridden in configuration.
func buildGateway(cfg *config.Config, logger *zap.Logger) (ports.GatewayClient, []int, error) {
	approved := cfg.Gateway.ApprovedCodes

	switch cfg.Gateway.Driver {
	case "authnet":
		client, err := authnet.NewClient(authnet.Config{
			Credentials: cfg.Gateway.Credentials(),
			Mode:        cfg.Gateway.Mode,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if len(approved) == 0 {
			approved = []int{authnet.ApprovedCode}
		}
		return client, approved, nil
	default:
		client, err := xipay.NewClient(xipay.Config{
			Credentials: cfg.Gateway.Credentials(),
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, approved, nil
	}
}

func buildLogger(ginMode string) (*zap.Logger, error) {
	if ginMode == "release" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
