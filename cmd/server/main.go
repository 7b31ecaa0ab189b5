package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kha86lilo/quotescan/internal/app"
	"github.com/kha86lilo/quotescan/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	logger := application.Logger()

	// External review tools emit feedback events; the consumer lands them in
	// the ledger until shutdown.
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	go func() {
		svcs := application.Services()
		if err := svcs.MessageBus.ConsumeFeedbackEvents(consumerCtx, svcs.Ledger.HandleFeedbackEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Feedback consumer stopped")
		}
	}()

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: application.Router(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	logger.WithField("port", cfg.Server.Port).Info("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopConsumer()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	if err := application.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Error during shutdown")
	}

	logger.Info("Server exited")
}
