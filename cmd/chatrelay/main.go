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

	"github.com/gin-gonic/gin"

	"github.com/Desarso/chatrelay"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := chatrelay.LoadConfig()
	if err != nil {
		log.Fatalf("✗ Invalid configuration: %v", err)
	}
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := chatrelay.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("✗ Failed to start: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.Server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server is running on port %s", cfg.Port)
		log.Printf("📍 API endpoint: http://localhost:%s", cfg.Port)
		log.Printf("🏥 Health check: http://localhost:%s/health", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("✗ Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("⏳ Received shutdown signal, closing gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("✗ Forced shutdown after timeout: %v", err)
	} else {
		log.Printf("✓ HTTP server closed")
	}

	if err := app.Close(); err != nil {
		log.Printf("✗ %v", err)
		os.Exit(1)
	}
	log.Printf("✓ Graceful shutdown completed")
}
