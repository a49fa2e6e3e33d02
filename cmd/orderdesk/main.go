package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/uhyunpark/orderdesk/params"
	"github.com/uhyunpark/orderdesk/pkg/service"
	"github.com/uhyunpark/orderdesk/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	svc, err := service.New(cfg, sugar)
	if err != nil {
		sugar.Fatalw("service_init_failed", "err", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			sugar.Warnw("service_close_failed", "err", err)
		}
	}()

	sugar.Infow("orderdesk_starting",
		"api_addr", cfg.API.Addr,
		"store", cfg.Storage.Backend,
		"db_path", cfg.Storage.Path,
		"sweep_interval_ms", cfg.Orders.SweepInterval.Milliseconds(),
		"simulation", cfg.Simulation.Enabled,
		"kafka", len(cfg.Kafka.Brokers) > 0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		sugar.Errorw("orderdesk_stopped", "err", err)
		return
	}
	sugar.Info("orderdesk_stopped")
}
