package gateway

import (
	"fmt"
	"net/http"

	"github.com/paygate/server/internal/model"
	apperrors "github.com/paygate/server/internal/utils/errors"
)

// TransportError wraps a failure to reach the gateway at all.
func TransportError(gateway model.GatewayType, err error) error {
	return apperrors.GatewayUnavailable(string(gateway), err)
}

// HTTPStatusError classifies a non-2xx gateway answer.
// 429 and 5xx are transient; every other status is a business rejection.
func HTTPStatusError(gateway model.GatewayType, status int, code, message string) error {
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return apperrors.GatewayUnavailable(string(gateway), &statusError{status: status, message: message})
	}
	if code == "" {
		code = http.StatusText(status)
	}
	return apperrors.GatewayRejected(string(gateway), code, message)
}

type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return http.StatusText(e.status)
	}
	return http.StatusText(e.status) + ": " + e.message
}

// ClientMismatch is returned when an adapter receives another gateway's client.
func ClientMismatch(gateway model.GatewayType, client any) error {
	return apperrors.AuthConfig(string(gateway), fmt.Errorf("unexpected client type %T", client))
}
