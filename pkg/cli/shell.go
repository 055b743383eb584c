package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/futurestrader/pkg/exchange"
	"github.com/uhyunpark/futurestrader/pkg/order"
	"github.com/uhyunpark/futurestrader/pkg/retry"
	"github.com/uhyunpark/futurestrader/pkg/util"
)

// ErrCancelled means the user declined the order at the confirmation prompt.
var ErrCancelled = errors.New("order cancelled by user")

// Processor is the order pipeline the shell drives.
type Processor interface {
	Startup(ctx context.Context) error
	ProcessOrderWithContext(ctx context.Context, req order.Request) retry.Outcome[*exchange.OrderResult]
}

// StreamFunc opens the order-update stream for symbol.
type StreamFunc func(ctx context.Context, symbol string) (<-chan exchange.OrderUpdate, error)

// Shell runs one order from input to result.
type Shell struct {
	App     Processor
	Testnet bool
	Stream  StreamFunc // nil disables --watch
	In      io.Reader
	Out     io.Writer
	Log     *zap.Logger
}

// Run executes the whole flow and returns the process exit code.
func (s *Shell) Run(ctx context.Context, opts Options) int {
	log := util.OrNop(s.Log).Named("cli").Sugar()
	err := s.run(ctx, opts, log)

	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrCancelled):
		fmt.Fprintln(s.Out, "Order cancelled by user.")
		log.Warn("order_cancelled_by_user")
	case ctx.Err() != nil:
		fmt.Fprintln(s.Out, "\nOperation cancelled by user.")
		log.Infow("application_interrupted", "err", err)
		return 0
	case errors.Is(err, ErrEndOfInput):
		fmt.Fprintln(s.Out, "\nUnexpected end of input.")
		log.Error("unexpected_end_of_input")
	default:
		headline, hint := Describe(err)
		fmt.Fprintln(s.Out, headline)
		if hint != "" {
			fmt.Fprintln(s.Out, hint)
		}
		log.Errorw("order_failed", "err", err)
	}
	return ExitCode(err)
}

func (s *Shell) run(ctx context.Context, opts Options, log *zap.SugaredLogger) error {
	fmt.Fprintf(s.Out, "Connecting to the futures %s...\n", environment(s.Testnet))
	if err := s.App.Startup(ctx); err != nil {
		return err
	}
	fmt.Fprintln(s.Out, rule)
	fmt.Fprintf(s.Out, "Trader ready (%s)\n", environment(s.Testnet))
	fmt.Fprintln(s.Out, rule)

	prompter := NewPrompter(s.In, s.Out)
	var req order.Request
	if opts.NeedsPrompt() {
		log.Info("entering_interactive_mode")
		var err error
		if req, err = prompter.Order(); err != nil {
			return err
		}
	} else {
		log.Info("entering_batch_mode")
		req = opts.Request()
	}

	PrintSummary(s.Out, req, s.Testnet)
	if !opts.Yes {
		ok, err := prompter.Confirm("\nConfirm order? (y/n): ")
		if err != nil {
			return err
		}
		if !ok {
			return ErrCancelled
		}
		log.Infow("order_confirmed", "symbol", req.Symbol)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	var updates <-chan exchange.OrderUpdate
	if opts.Watch > 0 {
		updates = s.openStream(watchCtx, req.Symbol, log)
	}

	fmt.Fprintln(s.Out, "\nPlacing order...")
	out := s.App.ProcessOrderWithContext(ctx, req)
	if out.Err != nil {
		return out.Err
	}
	PrintResult(s.Out, out.Result, out.Attempts)

	if updates != nil {
		s.watch(watchCtx, updates, out.Result.OrderID, opts.Watch)
	}
	return nil
}

func (s *Shell) openStream(ctx context.Context, symbol string, log *zap.SugaredLogger) <-chan exchange.OrderUpdate {
	if s.Stream == nil {
		fmt.Fprintln(s.Out, "--watch needs EXCHANGE_STREAM_URL; not watching.")
		return nil
	}
	updates, err := s.Stream(ctx, symbol)
	if err != nil {
		fmt.Fprintf(s.Out, "Could not open the order stream: %v\n", err)
		log.Warnw("order_stream_unavailable", "err", err)
		return nil
	}
	return updates
}

func terminalStatus(status string) bool {
	switch status {
	case "FILLED", "CANCELED", "EXPIRED", "REJECTED":
		return true
	}
	return false
}

// watch prints updates for orderID until it reaches a terminal status, d
// elapses or the stream ends.
func (s *Shell) watch(ctx context.Context, updates <-chan exchange.OrderUpdate, orderID int64, d time.Duration) {
	fmt.Fprintf(s.Out, "\nWatching order %d for %s...\n", orderID, d)
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.OrderID != orderID {
				continue
			}
			printUpdate(s.Out, u)
			if terminalStatus(u.Status) {
				return
			}
		case <-timer.C:
			fmt.Fprintln(s.Out, "Watch period over.")
			return
		case <-ctx.Done():
			return
		}
	}
}
