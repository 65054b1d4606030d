package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/BartekS5/casemigrate/internal/cli"
	"github.com/BartekS5/casemigrate/internal/config"
	"github.com/BartekS5/casemigrate/pkg/logger"
)

func main() {
	envErr := godotenv.Load()

	logSettings := config.LoadLogSettings()
	if err := logger.InitLogger(logSettings.File, logSettings.Level); err != nil {
		logger.Init()
		logger.Warnf("Falling back to console logging: %v", err)
	}
	defer logger.Close()
	if envErr != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Errorf("%v", err)
		logger.Close()
		os.Exit(1)
	}
}
