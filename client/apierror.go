package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// Matches any [RequestError] with HTTP status 404. The remote service uses 404 to indicate "no results" on list endpoints.
	ErrNotFound = errors.New("remote resource not found")

	// Matches any [RequestError] with HTTP status 401 or 403.
	ErrUnauthorized = errors.New("remote service rejected credentials")
)

// Names of the client operations which can produce a [RequestError].
const (
	OpAuthenticate = "authenticate"
	OpRefresh      = "refresh"
	OpRequest      = "request"
)

// The remote service answered with a non-success HTTP status.
//
// Message is the raw response body text, unmodified. The service usually returns a JSON error payload, which can be parsed with [RequestError.DecodeBody].
//
// Failures where no response was received at all (connection refused, DNS, timeouts) are never wrapped in this type; those are returned as the original transport error.
type RequestError struct {
	// Which client operation failed: [OpAuthenticate], [OpRefresh] or [OpRequest]
	Op         string
	StatusCode int
	Message    string
	Header     http.Header
}

func (e *RequestError) Error() string {
	op := e.Op
	if op == "" {
		op = OpRequest
	}
	if e.Message != "" {
		return fmt.Sprintf("API %s failed (HTTP %d): %s", op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API %s failed (HTTP %d)", op, e.StatusCode)
}

// Is implements errors.Is for sentinel error matching on status code.
func (e *RequestError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusNotFound:
		return target == ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return target == ErrUnauthorized
	}
	return false
}

// Parses the raw error body as JSON in to v.
func (e *RequestError) DecodeBody(v any) error {
	if e.Message == "" {
		return fmt.Errorf("empty error response body (HTTP %d)", e.StatusCode)
	}
	return json.Unmarshal([]byte(e.Message), v)
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// Translates a non-success HTTP response in to a [RequestError], consuming the body. Caller is still responsible for closing the body.
func translateResponse(op string, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s error response (HTTP %d): %w", op, resp.StatusCode, err)
	}
	return &RequestError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    string(body),
		Header:     resp.Header.Clone(),
	}
}
