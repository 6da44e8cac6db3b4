package payment

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
)

// GatewayMethod is one payment instrument bound to one gateway. It decides
// which lifecycle actions are legal and delegates the network work to the
// gateway adapter.
type GatewayMethod interface {
	Type() model.MethodType
	ActionType() model.ActionType
	GatewayType() model.GatewayType

	// ValidatePayment returns a validation error describing the first problem, or nil.
	ValidatePayment(req *model.PaymentRequest) error

	CapturePayment(ctx context.Context, client outbound.GatewayClient, payment *model.Payment, amount *model.Money) (*ActionResult, error)
	CancelPayment(ctx context.Context, client outbound.GatewayClient, payment *model.Payment) (*ActionResult, error)
	ChargeBackPayment(ctx context.Context, client outbound.GatewayClient, payment *model.Payment) (*ActionResult, error)
}

// ActionResult is the translated outcome of a lifecycle action.
type ActionResult struct {
	Status       model.CanonicalStatus
	Detail       model.StatusDetail
	NativeStatus string
	Response     *model.ProviderResponse
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// baseMethod holds what every instrument shares.
type baseMethod struct {
	gateway    outbound.GatewayPort
	methodType model.MethodType
	action     model.ActionType
}

func (m *baseMethod) Type() model.MethodType         { return m.methodType }
func (m *baseMethod) ActionType() model.ActionType   { return m.action }
func (m *baseMethod) GatewayType() model.GatewayType { return m.gateway.Type() }

func (m *baseMethod) validateCommon(req *model.PaymentRequest) error {
	switch {
	case req == nil:
		return apperrors.Validation("payment request is required")
	case req.TenantID == "":
		return apperrors.Validation("tenant id is required")
	case req.RequestID == "":
		return apperrors.Validation("request id is required")
	case req.Method != m.methodType:
		return apperrors.Validation("method %q does not match %q", req.Method, m.methodType)
	case req.Gateway != m.GatewayType():
		return apperrors.Validation("gateway %q does not match %q", req.Gateway, m.GatewayType())
	case !req.Amount.IsPositive():
		return apperrors.Validation("amount must be positive")
	case !currencyPattern.MatchString(req.Currency):
		return apperrors.Validation("currency must be a three-letter ISO code")
	}
	money := req.Money()
	switch {
	case !money.IsExact():
		return apperrors.Validation("amount %s is finer than the smallest unit of %s", req.Amount.String(), req.Currency)
	case !money.FitsMinorUnits():
		return apperrors.Validation("amount %s is too large", req.Amount.String())
	}
	return nil
}

// unsupported rejects an action for the payment's current status.
func (m *baseMethod) unsupported(op string, status model.CanonicalStatus) error {
	return apperrors.UnsupportedOperation(string(m.methodType), op,
		fmt.Sprintf("not possible while the payment is %s", status))
}

// translate turns a synchronous gateway answer into an ActionResult.
func (m *baseMethod) translate(resp *model.ProviderResponse) *ActionResult {
	return &ActionResult{
		Status:       m.gateway.TranslateAuthorizeStatus(resp.NativeStatus),
		Detail:       m.gateway.TranslateAuthorizeStatusDetail(resp.NativeStatus, resp.NativeDetail),
		NativeStatus: resp.NativeStatus,
		Response:     resp,
	}
}

func statusIn(status model.CanonicalStatus, allowed ...model.CanonicalStatus) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}

type methodKey struct {
	method  model.MethodType
	gateway model.GatewayType
}

// MethodRegistry resolves a GatewayMethod by instrument and gateway.
type MethodRegistry struct {
	mu      sync.RWMutex
	methods map[methodKey]GatewayMethod
}

// NewMethodRegistry creates a registry holding the given methods.
func NewMethodRegistry(methods ...GatewayMethod) (*MethodRegistry, error) {
	r := &MethodRegistry{methods: make(map[methodKey]GatewayMethod)}
	for _, m := range methods {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultMethods binds each instrument to the registered gateways that offer it.
// Gateways missing from the registry are skipped.
func DefaultMethods(gateways outbound.GatewayRegistryPort) (*MethodRegistry, error) {
	var methods []GatewayMethod
	if gw, ok := gateways.Get(model.GatewayStripe); ok {
		methods = append(methods, NewCreditCard(gw))
	}
	if gw, ok := gateways.Get(model.GatewayMercadoPago); ok {
		methods = append(methods, NewCreditCard(gw), NewTicket(gw))
	}
	if gw, ok := gateways.Get(model.GatewayAlipay); ok {
		methods = append(methods, NewWallet(gw, model.PaymentSceneWeb, model.PaymentSceneH5, model.PaymentSceneNative))
	}
	if gw, ok := gateways.Get(model.GatewayWechat); ok {
		methods = append(methods, NewWallet(gw, model.PaymentSceneNative, model.PaymentSceneH5))
	}
	return NewMethodRegistry(methods...)
}

// Register adds a method. A second method for the same pair is an error.
func (r *MethodRegistry) Register(m GatewayMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := methodKey{method: m.Type(), gateway: m.GatewayType()}
	if _, exists := r.methods[key]; exists {
		return fmt.Errorf("method %s already registered for %s", key.method, key.gateway)
	}
	r.methods[key] = m
	return nil
}

// Get returns the method for an instrument on a gateway.
func (r *MethodRegistry) Get(method model.MethodType, gateway model.GatewayType) (GatewayMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.methods[methodKey{method: method, gateway: gateway}]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrMethodNotSupported, method, gateway)
	}
	return m, nil
}

// All returns every registered method ordered by gateway then instrument.
func (r *MethodRegistry) All() []GatewayMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]GatewayMethod, 0, len(r.methods))
	for _, m := range r.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GatewayType() != out[j].GatewayType() {
			return out[i].GatewayType() < out[j].GatewayType()
		}
		return out[i].Type() < out[j].Type()
	})
	return out
}
