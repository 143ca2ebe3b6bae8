package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"

	"storefront-payments/internal/client"
	"storefront-payments/internal/config"
	"storefront-payments/internal/handler"
	"storefront-payments/internal/repository"
	"storefront-payments/internal/server"
	"storefront-payments/internal/service"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	logger := log.New("storefront")
	logger.SetLevel(logLevel(cfg.Log.Level))

	db := client.InitDB(cfg.DatabaseURL)
	mailer := client.NewMailer(&cfg.SMTP)
	expo := client.NewExpoClient(cfg.Push.ExpoURL, time.Duration(cfg.Push.TimeoutSeconds)*time.Second)

	orderRepo := repository.NewOrderRepository(db)
	userRepo := repository.NewUserRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	deviceRepo := repository.NewPushDeviceRepository(db)

	orderService := service.NewOrderService(db, orderRepo, userRepo, outboxRepo, logger)
	paymentService := service.NewPaymentService(db, &cfg.CloudPayments, orderRepo, orderService, logger)
	pushService := service.NewPushService(deviceRepo, expo, logger)
	notificationService := service.NewNotificationService(
		orderRepo, outboxRepo, deviceRepo,
		mailer, expo,
		&cfg.Notify, &cfg.Outbox,
		logger,
	)

	orderHandler := handler.NewOrderHandler(orderService)
	cpHandler := handler.NewCloudPaymentsHandler(paymentService, cfg.CloudPayments.APISecret, logger)
	pushHandler := handler.NewPushHandler(pushService)

	srv := server.NewServer(orderHandler, cpHandler, pushHandler, cfg.Push.AdminToken)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	go notificationService.Run(workerCtx)

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	logger.Infof("starting HTTP server on %s", serverAddr)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	logger.Info("signal received, starting graceful shutdown...")

	workerCancel()

	_, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(); err != nil {
		logger.Fatal("HTTP server shutdown error")
	}
}

func logLevel(level string) log.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	default:
		return log.INFO
	}
}
