package exchange

import (
	"fmt"
	"net/http"
)

// Exchange error codes the client maps to a failure kind
const (
	CodeTooManyRequests    = -1003
	CodeTimestampOutside   = -1021
	CodeInvalidSignature   = -1022
	CodeInvalidSymbol      = -1121
	CodeNewOrderRejected   = -2010
	CodeInvalidAPIKeyFmt   = -2014
	CodeRejectedAPIKey     = -2015
	CodeMarginInsufficient = -2019
	CodeInvalidQuantity    = -5007
)

// ConnectionError is a transport-level failure: the request may not have
// reached the exchange, or the exchange could not be trusted to have
// processed it (clock skew, signature drift).
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("%s: connection error: %v", e.Op, e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError means the API credentials were refused.
type AuthError struct {
	Op      string
	Code    int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed (code %d): %s", e.Op, e.Code, e.Message)
}

// OrderRejection is a business-rule rejection carrying the exchange's code.
type OrderRejection struct {
	Code       int
	Message    string
	HTTPStatus int
}

func (e *OrderRejection) Error() string {
	return fmt.Sprintf("order rejected (code %d): %s", e.Code, e.Message)
}

// StatusError is a non-2xx response without a recognizable error body.
type StatusError struct {
	Op         string
	HTTPStatus int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected HTTP status %d %s", e.Op, e.HTTPStatus, http.StatusText(e.HTTPStatus))
}

// StatusCode exposes the transport status to the retry classifier.
func (e *StatusError) StatusCode() int { return e.HTTPStatus }
