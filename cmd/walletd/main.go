package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wallet-pass-backend/config"
	"wallet-pass-backend/internal/api"
	"wallet-pass-backend/internal/bundle"
	"wallet-pass-backend/internal/db"
	"wallet-pass-backend/internal/push"
	"wallet-pass-backend/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "walletd ", log.LstdFlags)

	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	var handlers []*api.Handler
	if cfg.Passes.Enabled {
		h, err := buildFamily(appStore, &cfg.Passes, bundle.Passes, cfg.Push.Production, cacheTTL)
		if err != nil {
			logger.Fatalf("failed to initialize passes: %v", err)
		}
		handlers = append(handlers, h)
		logger.Println("passes family enabled")
	}
	if cfg.Orders.Enabled {
		h, err := buildFamily(appStore, &cfg.Orders, bundle.Orders, cfg.Push.Production, cacheTTL)
		if err != nil {
			logger.Fatalf("failed to initialize orders: %v", err)
		}
		handlers = append(handlers, h)
		logger.Println("orders family enabled")
	}

	router := api.NewRouter(&cfg.Server, handlers...)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}

func buildFamily(appStore store.Store, walletCfg *config.WalletConfig, family bundle.Family, production bool, cacheTTL time.Duration) (*api.Handler, error) {
	signer, err := bundle.NewSigner(walletCfg)
	if err != nil {
		return nil, err
	}

	delegate := &bundle.FSDelegate{
		TemplateRoot: walletCfg.TemplateRoot,
		ContentRoot:  walletCfg.ContentRoot,
	}
	bundles := bundle.NewService(family, delegate, signer, cacheTTL)

	client, err := push.NewAPNSClient(walletCfg, production)
	if err != nil {
		return nil, err
	}
	dispatcher := push.NewDispatcher(appStore, client)

	return api.NewHandler(appStore, bundles, dispatcher, family), nil
}
