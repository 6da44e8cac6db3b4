package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
)

// ErrUnmatchedReference is returned for a notification about a payment we do not have.
var ErrUnmatchedReference = errors.New("notification for unknown payment")

// HandleIpn verifies, translates and applies one notification. Nothing that
// failed verification or parsing touches a payment. Notifications that cannot
// succeed on a retry (duplicates, illegal transitions, unknown statuses) are
// acknowledged so the gateway stops resending them. A notification without a
// tenant is verified with, and may only touch payments of, the default tenant.
func (d *paymentDomain) HandleIpn(ctx context.Context, gateway model.GatewayType, tenantID string, body []byte, headers http.Header) (model.IpnResponse, error) {
	gw, ok := d.Gateways.Get(gateway)
	if !ok {
		return model.EmptyIpnResponse(http.StatusNotFound), fmt.Errorf("%w: %s", ErrGatewayNotRegistered, gateway)
	}
	if tenantID == "" {
		tenantID = d.defaultTenant
	}

	audit := &model.IpnAudit{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Gateway:    gateway,
		ReceivedAt: d.now(),
	}
	logger := d.logger.With(zap.String("gateway", string(gateway)), zap.String("tenant_id", tenantID))

	outcome, err := d.processIpn(ctx, gw, tenantID, body, headers, audit)
	audit.Outcome = outcome
	if err != nil {
		audit.Error = err.Error()
	}

	switch outcome {
	case model.IpnOutcomeAuthFailed, model.IpnOutcomeParseFailed, model.IpnOutcomeUnmatched, model.IpnOutcomeError:
		d.archiveIpn(ctx, gateway, body, headers, audit, logger)
	}
	if cerr := d.Audits.Create(ctx, audit); cerr != nil {
		logger.Error("failed to store ipn audit", zap.Error(cerr))
	}
	d.metrics.RecordIpnEvent(string(gateway), string(outcome))

	logger = logger.With(
		zap.String("outcome", string(outcome)),
		zap.String("reference", audit.Reference),
		zap.String("event_id", audit.EventID),
	)
	switch outcome {
	case model.IpnOutcomeApplied, model.IpnOutcomeDuplicate:
		logger.Info("ipn processed")
		return gw.IpnSuccessResponse(), nil
	case model.IpnOutcomeIllegalTransition, model.IpnOutcomeUnknownStatus:
		logger.Warn("ipn acknowledged without change", zap.Error(err))
		return gw.IpnSuccessResponse(), err
	case model.IpnOutcomeAuthFailed, model.IpnOutcomeParseFailed:
		// A resend carries the same bytes and fails the same way. The payload
		// is archived; acknowledging it stops the redelivery loop.
		logger.Warn("ipn dropped", zap.Error(err))
		return gw.IpnSuccessResponse(), err
	default:
		logger.Warn("ipn rejected", zap.Error(err))
		return gw.IpnFailResponse(), err
	}
}

func (d *paymentDomain) processIpn(ctx context.Context, gw outbound.GatewayPort, tenantID string, body []byte, headers http.Header, audit *model.IpnAudit) (model.IpnOutcome, error) {
	client, err := d.client(ctx, tenantID, gw)
	if err != nil {
		return model.IpnOutcomeError, err
	}

	evt, err := gw.ParseIpnPayload(ctx, client, body, headers)
	switch {
	case errors.Is(err, apperrors.ErrIpnAuthentication):
		return model.IpnOutcomeAuthFailed, err
	case errors.Is(err, apperrors.ErrIpnParse):
		return model.IpnOutcomeParseFailed, err
	case err != nil:
		return model.IpnOutcomeError, err
	}
	audit.EventID = evt.EventID
	audit.Reference = evt.Reference
	audit.NativeStatus = evt.NativeStatus

	status := gw.TranslateIpnStatus(evt.NativeStatus)
	detail := gw.TranslateIpnStatusDetail(evt.NativeStatus, evt.NativeDetail)

	unlock, err := d.Locker.Lock(ctx, referenceKey(gw.Type(), evt.Reference))
	if err != nil {
		return model.IpnOutcomeError, fmt.Errorf("%w: %w", ErrPaymentBusy, err)
	}
	defer unlock()

	payment, err := d.Payments.FindByReference(ctx, gw.Type(), evt.Reference)
	if err != nil {
		return model.IpnOutcomeError, fmt.Errorf("find payment by reference: %w", err)
	}
	// Create may still be persisting; the gateway retries on the fail ack.
	if payment == nil || tenantID == "" || payment.TenantID != tenantID {
		return model.IpnOutcomeUnmatched, fmt.Errorf("%w: %s", ErrUnmatchedReference, evt.Reference)
	}
	audit.TenantID = payment.TenantID

	outcome, err := d.transition(ctx, payment, statusUpdate{
		target: status,
		detail: detail,
		native: evt.NativeStatus,
		source: "ipn",
		mutate: func(p *model.Payment) {
			if p.Status == model.StatusCaptured && p.CapturedAmount.IsZero() {
				p.CapturedAmount = p.Amount
			}
		},
	})
	switch {
	case errors.Is(err, apperrors.ErrIllegalTransition):
		return model.IpnOutcomeIllegalTransition, err
	case err != nil:
		return model.IpnOutcomeError, err
	case outcome == outcomeDuplicate:
		return model.IpnOutcomeDuplicate, nil
	case outcome == outcomeReconcile:
		return model.IpnOutcomeUnknownStatus, nil
	}
	return model.IpnOutcomeApplied, nil
}

func (d *paymentDomain) archiveIpn(ctx context.Context, gateway model.GatewayType, body []byte, headers http.Header, audit *model.IpnAudit, logger *zap.Logger) {
	if d.Archive == nil {
		return
	}
	key, err := d.Archive.Archive(ctx, gateway, body, headers)
	if err != nil {
		logger.Error("failed to archive ipn payload", zap.Error(err))
		return
	}
	audit.ArchiveKey = key
}
