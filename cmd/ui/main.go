package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"solana-trade-bot-go/internal/config"
	"solana-trade-bot-go/internal/logger"
	"solana-trade-bot-go/internal/memory"
	"solana-trade-bot-go/internal/positions"
	"solana-trade-bot-go/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Open the store shared with the agent
	st, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}

	ctx := context.Background()
	apiHandler := NewAPIHandler(log, positions.NewManager(ctx, st, log), memory.New(ctx, st, log))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apiHandler.Register(router)

	// Static file serving for the dashboard page, when present
	router.Static("/static", "web/static")
	router.GET("/", func(c *gin.Context) {
		c.File("web/templates/index.html")
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting web server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatal("Web server failed", zap.Error(err))
	}
}
