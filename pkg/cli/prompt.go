package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/uhyunpark/futurestrader/pkg/order"
	"github.com/uhyunpark/futurestrader/pkg/strategy"
)

// ErrEndOfInput means stdin closed before a prompt was answered.
var ErrEndOfInput = errors.New("unexpected end of input")

// Prompter asks questions on out and reads answers line by line from in.
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(in), out: out}
}

func (p *Prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", ErrEndOfInput
	}
	return strings.TrimSpace(p.in.Text()), nil
}

// Order asks for every field, repeating each question until the answer is usable.
func (p *Prompter) Order() (order.Request, error) {
	fmt.Fprintln(p.out, "=== Futures Trader (Interactive Mode) ===")
	fmt.Fprintln(p.out)

	var req order.Request
	var err error
	if req.Symbol, err = p.symbol(); err != nil {
		return req, err
	}
	if req.Side, err = p.side(); err != nil {
		return req, err
	}
	if req.Quantity, err = p.positive("Enter quantity: ", "Quantity must be positive.", "Please enter a valid number."); err != nil {
		return req, err
	}
	if req.OrderType, err = p.orderType(); err != nil {
		return req, err
	}
	if order.Type(req.OrderType) == order.Limit {
		if req.Price, err = p.positive("Enter limit price: ", "Price must be positive.", "Please enter a valid price."); err != nil {
			return req, err
		}
	}
	return req, nil
}

func (p *Prompter) symbol() (string, error) {
	for {
		s, err := p.ask("Enter trading symbol (e.g., BTCUSDT): ")
		if err != nil {
			return "", err
		}
		if s != "" {
			return strings.ToUpper(s), nil
		}
		fmt.Fprintln(p.out, "Symbol cannot be empty. Please try again.")
	}
}

func (p *Prompter) side() (string, error) {
	for {
		s, err := p.ask("Enter side (buy/sell): ")
		if err != nil {
			return "", err
		}
		if side, ok := order.ParseSide(s); ok {
			return side.String(), nil
		}
		fmt.Fprintln(p.out, "Please enter 'buy' or 'sell'.")
	}
}

// positive returns the answer as typed once it parses as a number above zero,
// so the exact text reaches the validator.
func (p *Prompter) positive(question, notPositive, notNumber string) (string, error) {
	for {
		s, err := p.ask(question)
		if err != nil {
			return "", err
		}
		d, perr := order.ParseDecimal(s)
		switch {
		case perr != nil:
			fmt.Fprintln(p.out, notNumber)
		case !d.IsPositive():
			fmt.Fprintln(p.out, notPositive)
		default:
			return s, nil
		}
	}
}

func (p *Prompter) orderType() (string, error) {
	types := strings.Join(strategy.SupportedTypes(), ", ")
	fmt.Fprintf(p.out, "Supported order types: %s\n", types)
	for {
		s, err := p.ask("Enter order type: ")
		if err != nil {
			return "", err
		}
		s = strings.ToLower(s)
		if strategy.IsSupported(s) {
			return s, nil
		}
		fmt.Fprintf(p.out, "Please enter one of: %s\n", types)
	}
}

// Confirm asks a y/n question until it gets a y/yes or n/no answer.
func (p *Prompter) Confirm(question string) (bool, error) {
	for {
		s, err := p.ask(question)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(s) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(p.out, "Please enter 'y' for yes or 'n' for no.")
	}
}
