package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/paperscope/backend/internal/app"
	"github.com/paperscope/backend/internal/config"
	"github.com/paperscope/backend/internal/platform/logger"
	"github.com/paperscope/backend/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	log.Info("Loading configuration from main...", "path", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	// App
	application, err := app.New(log, cfg)
	if err != nil {
		log.Error("Could not wire application", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		Env:         cfg.Env,
		SyncHandler: application.SyncHandler,
	})

	addr := cfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	log.Info("Server listening", "addr", addr)
	if err := router.Run(addr); err != nil {
		log.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
