package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/uhyunpark/futurestrader/pkg/exchange"
	"github.com/uhyunpark/futurestrader/pkg/order"
	"github.com/uhyunpark/futurestrader/pkg/retry"
	"github.com/uhyunpark/futurestrader/pkg/strategy"
	"github.com/uhyunpark/futurestrader/pkg/validator"
)

var rule = strings.Repeat("=", 50)

func environment(testnet bool) string {
	if testnet {
		return "TESTNET"
	}
	return "LIVE"
}

// PrintSummary shows the order about to be sent.
func PrintSummary(w io.Writer, req order.Request, testnet bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Order Summary ===")
	fmt.Fprintf(w, "Symbol: %s\n", req.Symbol)
	fmt.Fprintf(w, "Side: %s\n", strings.ToUpper(req.Side))
	fmt.Fprintf(w, "Quantity: %v\n", req.Quantity)
	fmt.Fprintf(w, "Order Type: %s\n", strings.ToUpper(req.OrderType))
	if req.Price != nil {
		fmt.Fprintf(w, "Price: %v\n", req.Price)
	}
	fmt.Fprintf(w, "Environment: %s\n", environment(testnet))
}

// PrintResult shows a placed order.
func PrintResult(w io.Writer, res *exchange.OrderResult, attempts int) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "ORDER PLACED SUCCESSFULLY")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Order ID: %d\n", res.OrderID)
	fmt.Fprintf(w, "Client Order ID: %s\n", res.ClientOrderID)
	fmt.Fprintf(w, "Symbol: %s\n", res.Symbol)
	fmt.Fprintf(w, "Side: %s\n", res.Side)
	fmt.Fprintf(w, "Type: %s\n", res.Type)
	fmt.Fprintf(w, "Quantity: %s\n", res.Quantity)
	if res.Price != nil {
		fmt.Fprintf(w, "Price: %s\n", res.Price)
	}
	fmt.Fprintf(w, "Status: %s\n", res.Status)
	fmt.Fprintf(w, "Time: %s\n", res.Timestamp.UTC().Format(time.RFC3339))
	if attempts > 1 {
		fmt.Fprintf(w, "Attempts: %d\n", attempts)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Order details have been logged for your records.")
}

func printUpdate(w io.Writer, u exchange.OrderUpdate) {
	fmt.Fprintf(w, "[%s] order %d %s filled=%s avg=%s\n",
		time.UnixMilli(u.Timestamp).UTC().Format("15:04:05"), u.OrderID, u.Status, u.FilledQty, u.AvgPrice)
}

// Describe turns a pipeline failure into the headline and hint shown to the
// user. The hint may be empty.
func Describe(err error) (headline, hint string) {
	var (
		verr *validator.ValidationError
		perr *strategy.ParameterError
		aerr *exchange.AuthError
		cerr *exchange.ConnectionError
		rerr *exchange.OrderRejection
		serr *exchange.StatusError
	)
	switch {
	case errors.As(err, &verr):
		return "Validation Error: " + err.Error(), ""
	case errors.As(err, &perr):
		return "Parameter Error: " + err.Error(), ""
	case errors.As(err, &aerr):
		return "Authentication Error: " + err.Error(), "Please check your API credentials in the .env file"
	case errors.As(err, &cerr):
		return "Connection Error: " + err.Error(), "Please check your internet connection and try again"
	case errors.As(err, &rerr), errors.As(err, &serr):
		return "Order Failed: " + err.Error(), ""
	}
	return "Unexpected Error: " + err.Error(), ""
}

// ExitCode maps the outcome of a run to the process exit status.
func ExitCode(err error) int {
	var ie *retry.InterruptedError
	switch {
	case err == nil, errors.Is(err, ErrCancelled), errors.As(err, &ie):
		return 0
	}
	return 1
}
