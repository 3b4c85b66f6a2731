package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// TransientError marks a delivery failure worth retrying with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient delivery error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a delivery failure that retries cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent delivery error: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// isRetryable decides whether a channel error is worth another attempt.
// Explicitly typed errors win; everything else is classified by shape, with
// unknown errors treated as non-retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	// Network errors - 可重试
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	// Context timeout - 可重试；取消则不重试
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		return true
	}

	// 默认：未知错误，保守处理 - 不重试
	return false
}
