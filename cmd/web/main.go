package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/serial_imu/internal/app"
	"github.com/relabs-tech/serial_imu/internal/config"
	"github.com/relabs-tech/serial_imu/internal/logging"
)

func main() {
	configPath := flag.String("config", "./imu_config.txt", "path to configuration file")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()
	logger := logging.New(cfg, "imu_web")
	logger.Info("starting web viewer", "port", cfg.WebServerPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunWeb(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("web server exited", "err", err)
		stop()
		os.Exit(1)
	}
}
