package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/uhyunpark/futurestrader/params"
	"github.com/uhyunpark/futurestrader/pkg/app/trader"
	"github.com/uhyunpark/futurestrader/pkg/cli"
	"github.com/uhyunpark/futurestrader/pkg/exchange"
	"github.com/uhyunpark/futurestrader/pkg/retry"
	"github.com/uhyunpark/futurestrader/pkg/util"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts, err := cli.ParseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg := params.LoadFromEnv(opts.EnvFile)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Configuration Error:", err)
		return 1
	}

	logger, err := util.NewLoggerWithFiles(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 1
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	client, err := exchange.New(cfg.Exchange, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Configuration Error:", err)
		return 1
	}
	info := client.Info()
	sugar.Infow("trader_starting", "testnet", info.Testnet, "base_url", info.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shell := &cli.Shell{
		App:     trader.New(client, retry.NewEngine(cfg.Retry, logger), logger),
		Testnet: info.Testnet,
		In:      os.Stdin,
		Out:     os.Stdout,
		Log:     logger,
	}
	if cfg.StreamURL != "" {
		shell.Stream = func(ctx context.Context, symbol string) (<-chan exchange.OrderUpdate, error) {
			return client.SubscribeOrderUpdates(ctx, cfg.StreamURL, symbol)
		}
	}

	code := shell.Run(ctx, opts)
	sugar.Infow("trader_exiting", "exit_code", code)
	return code
}
