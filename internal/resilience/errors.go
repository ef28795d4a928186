package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/sells-group/prospect-cli/internal/apperr"
)

// TransientError marks a failure that is safe to retry (429, 5xx, timeouts).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"tls handshake timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// StatusError classifies a non-2xx response from an external provider. The
// result is always KindProviderUnavailable and is transient when the status
// is retryable.
func StatusError(provider string, statusCode int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	err := fmt.Errorf("%s: unexpected status %d: %s", provider, statusCode, snippet)
	if IsTransientHTTPStatus(statusCode) {
		err = &TransientError{Err: err, StatusCode: statusCode}
	}
	return apperr.Wrap(apperr.KindProviderUnavailable, provider, err)
}

// statusCoder is implemented by the status errors of the pkg/ API clients.
type statusCoder interface {
	HTTPStatus() int
}

// Classify marks a client error as transient when it carries a retryable
// HTTP status. Other errors pass through unchanged.
func Classify(err error) error {
	var sc statusCoder
	if err == nil || IsTransient(err) || !errors.As(err, &sc) {
		return err
	}
	if IsTransientHTTPStatus(sc.HTTPStatus()) {
		return &TransientError{Err: err, StatusCode: sc.HTTPStatus()}
	}
	return err
}

// Unavailable marks any provider failure as KindProviderUnavailable, keeping
// an existing kind untouched.
func Unavailable(provider string, err error) error {
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	return apperr.Wrap(apperr.KindProviderUnavailable, provider, err)
}
