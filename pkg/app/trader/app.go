// Package trader wires validation, payload preparation and retried order
// placement into the single pipeline the CLI drives.
package trader

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/futurestrader/pkg/exchange"
	"github.com/uhyunpark/futurestrader/pkg/order"
	"github.com/uhyunpark/futurestrader/pkg/retry"
	"github.com/uhyunpark/futurestrader/pkg/strategy"
	"github.com/uhyunpark/futurestrader/pkg/util"
	"github.com/uhyunpark/futurestrader/pkg/validator"
)

// Exchange is what the pipeline needs from the exchange client.
type Exchange interface {
	validator.Exchange
	PlaceOrder(ctx context.Context, p order.Payload) (*exchange.OrderResult, error)
	CheckConnectivity(ctx context.Context) error
}

// App processes one order at a time; it holds no per-order state.
type App struct {
	ex        Exchange
	validator *validator.Validator
	retry     *retry.Engine
	newID     func() string
	log       *zap.SugaredLogger
}

type Option func(*App)

// WithIDSource replaces the client order id generator.
func WithIDSource(f func() string) Option { return func(a *App) { a.newID = f } }

func New(ex Exchange, engine *retry.Engine, logger *zap.Logger, opts ...Option) *App {
	logger = util.OrNop(logger)
	a := &App{
		ex:        ex,
		validator: validator.New(ex, logger),
		retry:     engine,
		newID:     exchange.NewClientOrderID,
		log:       logger.Named("trader").Sugar(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Startup checks the exchange is reachable and accepts the credentials.
func (a *App) Startup(ctx context.Context) error {
	_, err := retry.Do(ctx, a.retry, "check_connectivity", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, a.ex.CheckConnectivity(ctx)
	})
	if err != nil {
		a.log.Errorw("startup_failed", "err", err)
		return err
	}
	a.log.Info("startup_complete")
	return nil
}

func (a *App) ProcessOrder(ctx context.Context, req order.Request) (*exchange.OrderResult, error) {
	o := a.ProcessOrderWithContext(ctx, req)
	return o.Result, o.Err
}

// ProcessOrderWithContext validates req, prepares the payload and places it
// with retries. Validation and parameter failures report zero attempts.
func (a *App) ProcessOrderWithContext(ctx context.Context, req order.Request) retry.Outcome[*exchange.OrderResult] {
	start := time.Now()
	fail := func(err error) retry.Outcome[*exchange.OrderResult] {
		return retry.Outcome[*exchange.OrderResult]{Err: err, Duration: time.Since(start)}
	}

	a.log.Infow("order_processing_started", "symbol", req.Symbol, "side", req.Side, "order_type", req.OrderType)

	validated, err := a.validator.Validate(ctx, req)
	if err != nil {
		return fail(err)
	}

	strat, err := strategy.New(string(validated.Type()))
	if err != nil {
		return fail(err)
	}
	payload, err := strat.PrepareOrderData(validated.Symbol(), validated.Side(), validated.Quantity(), validated.Params())
	if err != nil {
		a.log.Warnw("order_preparation_failed", "err", err)
		return fail(err)
	}
	// one id for every attempt, so a retried order the exchange already
	// accepted comes back as a duplicate instead of a second fill
	payload[order.KeyClientOrderID] = a.newID()

	out := retry.Run(ctx, a.retry, "place_order", func(ctx context.Context) (*exchange.OrderResult, error) {
		return a.ex.PlaceOrder(ctx, payload)
	})
	if out.Err != nil {
		a.log.Errorw("order_processing_failed", "attempts", out.Attempts, "err", out.Err)
		return out
	}
	a.log.Infow("order_processing_completed",
		"order_id", out.Result.OrderID,
		"client_order_id", out.Result.ClientOrderID,
		"status", out.Result.Status,
		"attempts", out.Attempts,
		"duration_ms", out.Duration.Milliseconds())
	return out
}
