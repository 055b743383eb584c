// Package cli is the terminal front end: flags, prompts, the confirmation
// step, result display and exit codes.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/uhyunpark/futurestrader/pkg/order"
	"github.com/uhyunpark/futurestrader/pkg/strategy"
)

// Options holds the parsed command line.
type Options struct {
	Symbol      string
	Side        string
	Quantity    string
	Type        string
	Price       string
	Interactive bool
	Yes         bool
	Watch       time.Duration
	EnvFile     string
}

const usageExamples = `
Examples:
  # Market order
  trader --symbol BTCUSDT --side buy --quantity 0.001 --type market

  # Limit order
  trader --symbol ETHUSDT --side sell --quantity 0.1 --type limit --price 2500.50

  # Interactive mode
  trader
`

// ParseFlags parses args (without the program name).
func ParseFlags(args []string, stderr io.Writer) (Options, error) {
	var o Options
	fs := flag.NewFlagSet("trader", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.Symbol, "symbol", "", "trading pair (e.g. BTCUSDT)")
	fs.StringVar(&o.Side, "side", "", "order side: buy | sell")
	fs.StringVar(&o.Quantity, "quantity", "", "order quantity")
	fs.StringVar(&o.Type, "type", "", "order type: "+strings.Join(strategy.SupportedTypes(), " | "))
	fs.StringVar(&o.Price, "price", "", "price for limit orders")
	fs.BoolVar(&o.Interactive, "interactive", false, "force interactive mode")
	fs.BoolVar(&o.Yes, "yes", false, "skip the confirmation prompt")
	fs.DurationVar(&o.Watch, "watch", 0, "after placing, stream order updates for this long (needs EXCHANGE_STREAM_URL)")
	fs.StringVar(&o.EnvFile, "env", "", "path to a .env file (default ./.env, then ../.env)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: trader [flags]")
		fmt.Fprintln(stderr, "Places one order on the futures testnet.")
		fs.PrintDefaults()
		fmt.Fprint(stderr, usageExamples)
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return o, nil
}

// NeedsPrompt reports whether the order must be gathered interactively:
// either --interactive was given or an essential flag is missing.
func (o Options) NeedsPrompt() bool {
	return o.Interactive || o.Symbol == "" || o.Side == "" || o.Quantity == "" || o.Type == ""
}

// Request builds the raw order from the flags. Values are normalised for
// display only; the validator still checks everything.
func (o Options) Request() order.Request {
	req := order.Request{
		Symbol:    strings.ToUpper(strings.TrimSpace(o.Symbol)),
		Side:      strings.ToLower(strings.TrimSpace(o.Side)),
		Quantity:  strings.TrimSpace(o.Quantity),
		OrderType: strings.ToLower(strings.TrimSpace(o.Type)),
	}
	if p := strings.TrimSpace(o.Price); p != "" {
		req.Price = p
	}
	return req
}
