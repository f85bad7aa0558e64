package authority

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/prn-reconciler/internal/infrastructure/resilience"
)

// classifyAuthorityError feeds the breaker. Nothing is retryable here: the
// batch owns retries. Only failures that say the authority itself is unwell
// count against it; a 404 for a mistyped PRN does not.
func classifyAuthorityError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{RecordFailure: true}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return resilience.ErrorClassification{RecordFailure: isServerSideStatus(statusErr.StatusCode)}
	}
	var parseErr *parseError
	if errors.As(err, &parseErr) {
		return resilience.ErrorClassification{}
	}
	var contentErr *ContentTypeError
	if errors.As(err, &contentErr) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func isServerSideStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return statusCode >= http.StatusInternalServerError
	}
}
