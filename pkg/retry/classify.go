package retry

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/uhyunpark/futurestrader/pkg/exchange"
)

// Category drives the retry policy for a failure.
type Category uint8

const (
	Unknown Category = iota
	Retryable
	RateLimited
	BusinessLogic
	Authentication
)

func (c Category) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case RateLimited:
		return "rate_limited"
	case BusinessLogic:
		return "business_logic"
	case Authentication:
		return "authentication"
	default:
		return "unknown"
	}
}

// statusCoder is implemented by failures that carry an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// Classify maps a failure to its Category. First match wins.
//
// Rate limits hidden inside order rejections are detected by message text
// ("rate limit", "too many requests"). This depends on the exchange's English
// wording: a coded rejection (-1003) without that text is a business error.
func Classify(err error) Category {
	if err == nil {
		return Unknown
	}

	var connErr *exchange.ConnectionError
	if errors.As(err, &connErr) {
		return Retryable
	}
	var authErr *exchange.AuthError
	if errors.As(err, &authErr) {
		return Authentication
	}
	var rejection *exchange.OrderRejection
	if errors.As(err, &rejection) {
		msg := strings.ToLower(rejection.Error())
		if strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") {
			return RateLimited
		}
		return BusinessLogic
	}

	// bare transport failures that did not go through the exchange client
	if errors.Is(err, context.DeadlineExceeded) {
		return Retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Retryable
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		switch {
		case code == 429:
			return RateLimited
		case code >= 500 && code < 600:
			return Retryable
		case code == 401 || code == 403:
			return Authentication
		case code >= 400 && code < 500:
			return BusinessLogic
		}
	}

	return Unknown
}
