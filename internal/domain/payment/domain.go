package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
	"github.com/paygate/server/internal/utils/metrics"
	"github.com/paygate/server/internal/utils/requestctx"
)

// maxCASAttempts bounds how often a transition is re-evaluated after losing
// a compare-and-swap.
const maxCASAttempts = 3

// PaymentDomain drives one uniform lifecycle over every gateway.
type PaymentDomain interface {
	// CreatePayment validates, creates the payment at the gateway and stores it.
	// Reusing a request id returns the stored payment.
	CreatePayment(ctx context.Context, req *model.PaymentRequest) (*model.PaymentResult, error)

	// GetPayment returns a tenant's payment by ID.
	GetPayment(ctx context.Context, tenantID string, id uuid.UUID) (*model.Payment, error)

	// ListPayments lists payments by filter.
	ListPayments(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, int64, error)

	// CapturePayment captures an authorized payment. A nil amount captures in full.
	CapturePayment(ctx context.Context, tenantID string, gateway model.GatewayType, reference string, amount *decimal.Decimal) (*model.PaymentResult, error)

	// CancelPayment cancels a payment that was not captured.
	CancelPayment(ctx context.Context, tenantID string, gateway model.GatewayType, reference string) (*model.PaymentResult, error)

	// ChargeBackPayment records a chargeback on a captured payment.
	ChargeBackPayment(ctx context.Context, tenantID string, gateway model.GatewayType, reference string) (*model.PaymentResult, error)

	// HandleIpn processes a gateway notification and returns the acknowledgement
	// to send back. The error is for logging; the acknowledgement is always usable.
	HandleIpn(ctx context.Context, gateway model.GatewayType, tenantID string, body []byte, headers http.Header) (model.IpnResponse, error)
}

// Config holds lifecycle settings.
type Config struct {
	// NotifyBaseURL is the public base URL gateways post notifications to.
	NotifyBaseURL string
	// DefaultTenant owns notifications that arrive without a tenant.
	DefaultTenant string
	Retry         RetryConfig
}

// Deps holds the outbound ports the domain uses. Archive and Events may be nil.
type Deps struct {
	Payments    outbound.PaymentDatabasePort
	Audits      outbound.IpnAuditDatabasePort
	Gateways    outbound.GatewayRegistryPort
	Methods     *MethodRegistry
	Credentials outbound.CredentialStorePort
	Locker      outbound.ReferenceLockerPort
	Archive     outbound.IpnArchivePort
	Events      EventPublisher
}

// paymentDomain implements PaymentDomain.
type paymentDomain struct {
	Deps
	notifyBaseURL string
	defaultTenant string
	retrier       *Retrier
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// NewPaymentDomain creates a new payment domain service.
func NewPaymentDomain(deps Deps, cfg Config, m *metrics.Metrics, logger *zap.Logger) PaymentDomain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &paymentDomain{
		Deps:          deps,
		notifyBaseURL: strings.TrimRight(cfg.NotifyBaseURL, "/"),
		defaultTenant: cfg.DefaultTenant,
		retrier:       NewRetrier(cfg.Retry),
		metrics:       m,
		logger:        logger,
		now:           time.Now,
	}
}

func (d *paymentDomain) CreatePayment(ctx context.Context, in *model.PaymentRequest) (*model.PaymentResult, error) {
	r := *in
	req := &r
	gw, ok := d.Gateways.Get(req.Gateway)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGatewayNotRegistered, req.Gateway)
	}
	method, err := d.Methods.Get(req.Method, req.Gateway)
	if err != nil {
		return nil, err
	}
	if err := method.ValidatePayment(req); err != nil {
		return nil, err
	}
	if req.NotificationURL == "" && d.notifyBaseURL != "" {
		req.NotificationURL = fmt.Sprintf("%s/webhooks/%s?tenant=%s", d.notifyBaseURL, req.Gateway, url.QueryEscape(req.TenantID))
	}

	logger := d.logger.With(
		zap.String("tenant_id", req.TenantID),
		zap.String("request_id", req.RequestID),
		zap.String("gateway", string(req.Gateway)),
	)

	unlock, err := d.Locker.Lock(ctx, "create:"+req.TenantID+":"+req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymentBusy, err)
	}
	defer unlock()

	existing, err := d.Payments.FindByRequestID(ctx, req.TenantID, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("find payment by request id: %w", err)
	}
	if existing != nil {
		if existing.Gateway != req.Gateway || existing.Method != req.Method ||
			!existing.Amount.Equal(req.Amount) || existing.Currency != req.Currency {
			return nil, ErrRequestConflict
		}
		logger.Info("request id already processed", zap.String("reference", existing.Reference))
		return d.result(existing, method), nil
	}

	client, err := d.client(ctx, req.TenantID, gw)
	if err != nil {
		return nil, err
	}
	payload, err := gw.CreatePaymentData(req)
	if err != nil {
		return nil, err
	}

	var resp *model.ProviderResponse
	err = d.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			logger.Warn("retrying create payment", zap.Int("attempt", attempt+1))
		}
		var callErr error
		resp, callErr = gw.CreatePayment(ctx, client, payload)
		return callErr
	})
	if err != nil {
		logger.Warn("create payment failed", zap.Error(err))
		return nil, err
	}

	reference, err := gw.ExtractGatewayReference(resp)
	if err != nil {
		logger.Error("gateway response has no reference", zap.Error(err))
		return nil, err
	}

	status := gw.TranslateAuthorizeStatus(resp.NativeStatus)
	detail := gw.TranslateAuthorizeStatusDetail(resp.NativeStatus, resp.NativeDetail)

	now := d.now()
	payment := &model.Payment{
		ID:           uuid.New(),
		TenantID:     req.TenantID,
		RequestID:    req.RequestID,
		Gateway:      req.Gateway,
		Method:       req.Method,
		Reference:    reference,
		Status:       model.StatusCreated,
		StatusDetail: detail.Code,
		NativeStatus: resp.NativeStatus,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Request:      snapshot(req),
		Metadata:     gw.BuildMetadata(req, resp),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	payment.AppendTrail(model.StatusCreated, "create", now)

	switch {
	case !status.IsKnown():
		d.flagReconciliation(payment, fmt.Sprintf("create returned unknown status %q", resp.NativeStatus))
	case status == model.StatusCreated:
	case model.StatusCreated.CanTransitionTo(status):
		payment.Status = status
		payment.AppendTrail(status, "create", now)
		if status == model.StatusCaptured {
			payment.CapturedAmount = req.Amount
		}
	default:
		d.flagReconciliation(payment, fmt.Sprintf("create returned %s", status))
	}

	if err := d.Payments.Create(ctx, payment); err != nil {
		// The gateway holds a payment we could not record.
		logger.Error("failed to store created payment",
			zap.String("reference", reference), zap.Error(err))
		return nil, fmt.Errorf("create payment record: %w", err)
	}
	if payment.Status != model.StatusCreated {
		d.metrics.RecordTransition(string(payment.Gateway), string(model.StatusCreated), string(payment.Status))
		d.publishStatusChanged(ctx, payment, model.StatusCreated, "create")
	}
	if payment.NeedsReconciliation {
		d.publishFlagged(ctx, payment)
	}

	logger.Info("payment created",
		zap.String("reference", reference),
		zap.String("status", string(payment.Status)))

	return model.NewPaymentResult(payment, method.ActionType(), detail), nil
}

func (d *paymentDomain) GetPayment(ctx context.Context, tenantID string, id uuid.UUID) (*model.Payment, error) {
	payment, err := d.Payments.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if payment == nil || payment.TenantID != tenantID {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

func (d *paymentDomain) ListPayments(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, int64, error) {
	payments, total, err := d.Payments.FindByFilter(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return payments, total, nil
}

func (d *paymentDomain) CapturePayment(ctx context.Context, tenantID string, gateway model.GatewayType, reference string, amount *decimal.Decimal) (*model.PaymentResult, error) {
	return d.runAction(ctx, tenantID, gateway, reference, "capture",
		func(ctx context.Context, m GatewayMethod, client outbound.GatewayClient, p *model.Payment) (*ActionResult, error) {
			var money *model.Money
			if amount != nil {
				money = &model.Money{Amount: *amount, Currency: p.Currency}
			}
			return m.CapturePayment(ctx, client, p, money)
		},
		func(p *model.Payment, _ *ActionResult) {
			if p.Status != model.StatusCaptured {
				return
			}
			p.CapturedAmount = p.Amount
			if amount != nil {
				p.CapturedAmount = *amount
			}
		})
}

func (d *paymentDomain) CancelPayment(ctx context.Context, tenantID string, gateway model.GatewayType, reference string) (*model.PaymentResult, error) {
	return d.runAction(ctx, tenantID, gateway, reference, "cancel",
		func(ctx context.Context, m GatewayMethod, client outbound.GatewayClient, p *model.Payment) (*ActionResult, error) {
			return m.CancelPayment(ctx, client, p)
		}, nil)
}

func (d *paymentDomain) ChargeBackPayment(ctx context.Context, tenantID string, gateway model.GatewayType, reference string) (*model.PaymentResult, error) {
	return d.runAction(ctx, tenantID, gateway, reference, "chargeback",
		func(ctx context.Context, m GatewayMethod, client outbound.GatewayClient, p *model.Payment) (*ActionResult, error) {
			return m.ChargeBackPayment(ctx, client, p)
		}, nil)
}

type actionFunc func(ctx context.Context, m GatewayMethod, client outbound.GatewayClient, p *model.Payment) (*ActionResult, error)

// runAction performs a synchronous lifecycle action under the reference lock.
func (d *paymentDomain) runAction(ctx context.Context, tenantID string, gateway model.GatewayType, reference, op string, action actionFunc, mutate func(*model.Payment, *ActionResult)) (*model.PaymentResult, error) {
	gw, ok := d.Gateways.Get(gateway)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGatewayNotRegistered, gateway)
	}
	logger := d.logger.With(
		zap.String("tenant_id", tenantID),
		zap.String("gateway", string(gateway)),
		zap.String("reference", reference),
		zap.String("operation", op),
	)

	unlock, err := d.Locker.Lock(ctx, referenceKey(gateway, reference))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymentBusy, err)
	}
	defer unlock()

	payment, err := d.Payments.FindByReference(ctx, gateway, reference)
	if err != nil {
		return nil, fmt.Errorf("find payment by reference: %w", err)
	}
	if payment == nil || payment.TenantID != tenantID {
		return nil, ErrPaymentNotFound
	}
	method, err := d.Methods.Get(payment.Method, payment.Gateway)
	if err != nil {
		return nil, err
	}
	client, err := d.client(ctx, tenantID, gw)
	if err != nil {
		return nil, err
	}

	if requestctx.IdempotencyKey(ctx) == "" {
		ctx = requestctx.WithIdempotencyKey(ctx, op+":"+reference)
	}

	var res *ActionResult
	err = d.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			logger.Warn("retrying gateway call", zap.Int("attempt", attempt+1))
		}
		var callErr error
		res, callErr = action(ctx, method, client, payment)
		return callErr
	})
	if err != nil {
		logger.Warn("lifecycle action failed", zap.Error(err))
		return nil, err
	}

	var extra model.Metadata
	if res.Response != nil {
		extra = gw.BuildMetadata(payment.Request, res.Response)
	}
	update := statusUpdate{
		target:   res.Status,
		detail:   res.Detail,
		native:   res.NativeStatus,
		source:   op,
		metadata: extra,
	}
	if mutate != nil {
		update.mutate = func(p *model.Payment) { mutate(p, res) }
	}

	if _, err := d.transition(ctx, payment, update); err != nil {
		logger.Warn("lifecycle transition rejected", zap.Error(err))
		return nil, err
	}

	logger.Info("lifecycle action applied", zap.String("status", string(payment.Status)))
	detail := res.Detail
	if !res.Status.IsKnown() {
		detail = model.UnknownStatusDetail
	}
	return model.NewPaymentResult(payment, method.ActionType(), detail), nil
}

// statusUpdate is one reported status to apply to a stored payment.
type statusUpdate struct {
	target   model.CanonicalStatus
	detail   model.StatusDetail
	native   string
	source   string
	metadata model.Metadata
	mutate   func(*model.Payment)
}

// transitionOutcome says what transition did with a report.
type transitionOutcome int

const (
	outcomeApplied transitionOutcome = iota
	outcomeDuplicate
	outcomeReconcile
)

// transition applies an update with the legality check and a compare-and-swap.
// Same-status reports are no-ops. After a lost swap the payment is re-read and
// the update re-evaluated against the fresh status.
func (d *paymentDomain) transition(ctx context.Context, payment *model.Payment, u statusUpdate) (transitionOutcome, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		next := *payment
		next.Metadata = payment.Metadata.Merge(u.metadata)
		next.StatusTrail = append([]string(nil), payment.StatusTrail...)
		outcome := outcomeApplied

		switch {
		case !u.target.IsKnown():
			d.flagReconciliation(&next, fmt.Sprintf("%s reported unknown status %q", u.source, u.native))
			outcome = outcomeReconcile
		case u.target == payment.Status:
			return outcomeDuplicate, nil
		case !payment.Status.CanTransitionTo(u.target):
			return outcomeApplied, apperrors.IllegalTransition(string(payment.Status), string(u.target))
		default:
			next.Status = u.target
			next.StatusDetail = u.detail.Code
			next.NativeStatus = u.native
			next.AppendTrail(u.target, u.source, d.now())
			if u.mutate != nil {
				u.mutate(&next)
			}
		}

		err := d.Payments.UpdateStatus(ctx, &next, payment.Version)
		if err == nil {
			from := payment.Status
			*payment = next
			switch outcome {
			case outcomeApplied:
				d.metrics.RecordTransition(string(payment.Gateway), string(from), string(next.Status))
				d.publishStatusChanged(ctx, payment, from, u.source)
			case outcomeReconcile:
				d.publishFlagged(ctx, payment)
			}
			return outcome, nil
		}
		if !errors.Is(err, outbound.ErrStaleUpdate) {
			return outcome, fmt.Errorf("update payment: %w", err)
		}

		fresh, err := d.Payments.FindByID(ctx, payment.ID)
		if err != nil {
			return outcome, fmt.Errorf("reload payment: %w", err)
		}
		if fresh == nil {
			return outcome, ErrPaymentNotFound
		}
		*payment = *fresh
	}
	return outcomeApplied, ErrConcurrentUpdate
}

// flagReconciliation marks a payment for manual review without touching its status.
func (d *paymentDomain) flagReconciliation(p *model.Payment, reason string) {
	p.NeedsReconciliation = true
	p.ReconciliationReason = reason
	d.metrics.RecordReconciliation(string(p.Gateway))
	d.logger.Warn("payment needs reconciliation",
		zap.String("gateway", string(p.Gateway)),
		zap.String("reference", p.Reference),
		zap.String("reason", reason))
}

func (d *paymentDomain) client(ctx context.Context, tenantID string, gw outbound.GatewayPort) (outbound.GatewayClient, error) {
	creds, err := d.Credentials.Credentials(ctx, tenantID, gw.Type())
	if err != nil {
		return nil, err
	}
	return gw.GetClient(creds)
}

// result replays a stored payment. Only the detail code is stored.
func (d *paymentDomain) result(p *model.Payment, m GatewayMethod) *model.PaymentResult {
	return model.NewPaymentResult(p, m.ActionType(), model.StatusDetail{Code: p.StatusDetail})
}

func referenceKey(gateway model.GatewayType, reference string) string {
	return "ref:" + string(gateway) + ":" + reference
}

// snapshot copies the request without the card token.
func snapshot(req *model.PaymentRequest) *model.PaymentRequest {
	cp := *req
	if req.Card != nil {
		card := *req.Card
		card.Token = ""
		cp.Card = &card
	}
	cp.Items = append([]model.CartItem(nil), req.Items...)
	return &cp
}

var _ PaymentDomain = (*paymentDomain)(nil)
