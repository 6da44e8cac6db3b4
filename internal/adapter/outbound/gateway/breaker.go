package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
	"github.com/paygate/server/internal/utils/metrics"
)

// BreakerConfig configures the per-gateway circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32
	MaxHalfOpen      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		MaxHalfOpen:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
	}
}

// Breaker decorates a gateway's network calls with a circuit breaker.
// Only transport failures count against the breaker; business rejections do not.
type Breaker struct {
	outbound.GatewayPort

	cb      *gobreaker.CircuitBreaker[any]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// WithBreaker wraps a gateway.
func WithBreaker(g outbound.GatewayPort, cfg BreakerConfig, logger *zap.Logger, m *metrics.Metrics) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{
		GatewayPort: g,
		logger:      logger.With(zap.String("gateway", string(g.Type()))),
		metrics:     m,
	}

	settings := gobreaker.Settings{
		Name:        string(g.Type()),
		MaxRequests: cfg.MaxHalfOpen,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			b.metrics.SetBreakerState(name, int(to))
		},
	}
	b.cb = gobreaker.NewCircuitBreaker[any](settings)
	return b
}

// State returns the breaker state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// CreatePayment implements outbound.GatewayPort.
func (b *Breaker) CreatePayment(ctx context.Context, client outbound.GatewayClient, payload *model.ProviderPayload) (*model.ProviderResponse, error) {
	return execute(b, "create", func() (*model.ProviderResponse, error) {
		return b.GatewayPort.CreatePayment(ctx, client, payload)
	})
}

// CapturePayment implements outbound.GatewayPort.
func (b *Breaker) CapturePayment(ctx context.Context, client outbound.GatewayClient, reference string, amount *model.Money) (*model.ProviderResponse, error) {
	return execute(b, "capture", func() (*model.ProviderResponse, error) {
		return b.GatewayPort.CapturePayment(ctx, client, reference, amount)
	})
}

// CancelPayment implements outbound.GatewayPort.
func (b *Breaker) CancelPayment(ctx context.Context, client outbound.GatewayClient, reference string) (*model.ProviderResponse, error) {
	return execute(b, "cancel", func() (*model.ProviderResponse, error) {
		return b.GatewayPort.CancelPayment(ctx, client, reference)
	})
}

// ParseIpnPayload implements outbound.GatewayPort. Some gateways fetch the
// payment while parsing, so this goes through the breaker too.
func (b *Breaker) ParseIpnPayload(ctx context.Context, client outbound.GatewayClient, body []byte, headers http.Header) (*model.IpnEvent, error) {
	return execute(b, "ipn", func() (*model.IpnEvent, error) {
		return b.GatewayPort.ParseIpnPayload(ctx, client, body, headers)
	})
}

func execute[T any](b *Breaker, operation string, fn func() (T, error)) (T, error) {
	var zero T
	gw := string(b.Type())
	start := time.Now()

	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = apperrors.GatewayUnavailable(gw, err)
	}
	b.metrics.RecordGatewayRequest(gw, operation, outcome(err), time.Since(start))
	if err != nil {
		return zero, err
	}

	out, _ := res.(T)
	return out, nil
}

func outcome(err error) string {
	switch apperrors.KindOf(err) {
	case "":
		if err == nil {
			return "ok"
		}
		return "error"
	case apperrors.KindGatewayRejected:
		return "rejected"
	case apperrors.KindGatewayUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}

var _ outbound.GatewayPort = (*Breaker)(nil)
