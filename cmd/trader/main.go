package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"solana-trade-bot-go/internal/chain"
	"solana-trade-bot-go/internal/config"
	"solana-trade-bot-go/internal/dexscreener"
	"solana-trade-bot-go/internal/jupiter"
	"solana-trade-bot-go/internal/logger"
	"solana-trade-bot-go/internal/memory"
	"solana-trade-bot-go/internal/positions"
	"solana-trade-bot-go/internal/store"
	"solana-trade-bot-go/internal/trader"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLoggerWithFile(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded", zap.String("database_driver", cfg.Database.Driver))

	// Initialize persistence
	st, err := store.Open(cfg.Database)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}

	// Initialize wallet and chain client
	var wallet *chain.Wallet
	if cfg.Solana.WalletPrivateKey != "" {
		wallet, err = chain.NewWallet(cfg.Solana.WalletPrivateKey)
		if err != nil {
			log.Fatal("Invalid wallet key", zap.Error(err))
		}
	}
	chainClient := chain.NewClient(cfg.Solana, wallet, cfg.Trading.DryRun, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if wallet != nil {
		balance, err := chainClient.GetBalance(ctx, wallet.Address())
		if err != nil {
			log.Fatal("Failed to connect to Solana RPC", zap.Error(err))
		}
		log.Info("Wallet loaded", zap.String("wallet", wallet.Address()), zap.Float64("balance_sol", balance))
	} else {
		log.Warn("No wallet configured, trading actions are disabled")
	}

	// Initialize and run the trading engine
	tradeEngine := trader.NewEngine(log, &cfg, trader.Deps{
		Market:    dexscreener.NewClient(cfg.DexScreener, log),
		Router:    jupiter.NewClient(cfg.Jupiter, cfg.Trading.DryRun, log),
		Chain:     chainClient,
		Positions: positions.NewManager(ctx, st, log),
		Memory:    memory.New(ctx, st, log),
		Wallet:    chainClient.Wallet(),
	})

	if cfg.Trading.APIPort > 0 {
		apiServer := trader.NewAPIServer(tradeEngine, log)
		apiServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := apiServer.Stop(shutdownCtx); err != nil {
				log.Error("Failed to stop API server", zap.Error(err))
			}
		}()
	}

	tradeEngine.Run(ctx)

	log.Info("Bot has been shut down.")
}
