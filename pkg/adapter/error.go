package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"syscall"
)

// AdapterError wraps provider errors with status metadata.
type AdapterError struct {
	Status    int
	Temporary bool
	Err       error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("adapter error (status=%d)", e.Status)
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether an error is safe to retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		if adapterErr.Temporary {
			return true
		}
		if adapterErr.Status == 429 || (adapterErr.Status >= 500 && adapterErr.Status <= 599) {
			return true
		}
	}
	return false
}

// statusPattern matches the status code clients embed in their error text,
// e.g. "API returned unexpected status code: 503".
var statusPattern = regexp.MustCompile(`status(?: code)?[:=]? ?(\d{3})\b`)

var temporaryHints = []string{
	"connection refused",
	"connection reset",
	"too many requests",
	"rate limit",
	"server overloaded",
}

// wrapProviderError classifies an error from a client library that does not
// expose a typed API error. The status code is recovered from the message and
// connection failures are marked temporary.
func wrapProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	wrapped := fmt.Errorf("%s API error: %w", provider, err)
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return wrapped
	}

	out := &AdapterError{Status: statusFromMessage(err.Error()), Err: wrapped}
	var opErr *net.OpError
	switch {
	case errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF):
		out.Temporary = true
	default:
		msg := strings.ToLower(err.Error())
		for _, hint := range temporaryHints {
			if strings.Contains(msg, hint) {
				out.Temporary = true
				break
			}
		}
	}
	return out
}

func statusFromMessage(msg string) int {
	m := statusPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	status, err := strconv.Atoi(m[1])
	if err != nil || status < 100 || status > 599 {
		return 0
	}
	return status
}
