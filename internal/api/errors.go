package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// Binance error codes we branch on. Other codes are terminal for the order
// path unless the HTTP status is 429 or 5xx (see Transient); -2010 style
// business rejections surface to the orchestrator as-is.
const (
	CodeUnknown           = -1000
	CodeDisconnected      = -1001
	CodeTooManyRequests   = -1003
	CodeInsufficientFunds = -2010
)

// APIError is a non-2xx venue response with a parsed {code, msg} body.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance api error: status=%d code=%d msg=%s", e.HTTPStatus, e.Code, e.Message)
}

// Transient reports whether the error class is worth retrying: rate limits
// and internal venue errors. Business rejections are not.
func (e *APIError) Transient() bool {
	switch e.Code {
	case CodeUnknown, CodeDisconnected, CodeTooManyRequests:
		return true
	}
	return e.HTTPStatus == 429 || e.HTTPStatus >= 500
}

// InsufficientFunds reports the user-recoverable "insufficient balance"
// rejection, which must not pause the bot.
func (e *APIError) InsufficientFunds() bool {
	return e.Code == CodeInsufficientFunds
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{HTTPStatus: status, Message: string(body)}
	var parsed struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Code != 0 {
		apiErr.Code = parsed.Code
		apiErr.Message = parsed.Msg
	}
	return apiErr
}

// IsTransient classifies any error from the client: network failures and
// timeouts retry, venue errors retry per APIError.Transient.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// Wrapped transport errors (connection reset, EOF mid-body) come through
	// url.Error which implements net.Error, so anything left is terminal.
	return false
}
