package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/uhyunpark/futurestrader/pkg/simnet"
	"github.com/uhyunpark/futurestrader/pkg/util"
)

func main() {
	configPath := flag.String("config", "", "YAML file overriding the default venue (symbols, balances, faults)")
	listen := flag.String("listen", "", "listen address (overrides the config file)")
	flag.Parse()

	logger, err := util.NewLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg := simnet.DefaultConfig()
	if *configPath != "" {
		if cfg, err = simnet.LoadConfig(*configPath); err != nil {
			sugar.Fatalw("config_load_failed", "path", *configPath, "err", err)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	srv, err := simnet.NewServer(cfg, logger)
	if err != nil {
		sugar.Fatalw("simnet_init_failed", "err", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("simnet_starting", "listen", cfg.Listen, "symbols", len(cfg.Symbols), "api_key", cfg.APIKey)
	if err := srv.ListenAndServe(ctx); err != nil {
		sugar.Errorw("simnet_stopped", "err", err)
		return
	}
	sugar.Info("simnet_stopped")
}
