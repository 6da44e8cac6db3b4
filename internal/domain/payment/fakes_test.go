package payment

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/paygate/server/internal/infra/events"
	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
	"github.com/paygate/server/internal/utils/requestctx"
)

// --- Gateway fake ---

type fakeClient struct {
	gateway model.GatewayType
	secret  string
}

func (c *fakeClient) Gateway() model.GatewayType { return c.gateway }

// fakeGateway speaks a tiny made-up vocabulary. Authorize and IPN words differ
// so tests notice when the wrong table is used.
type fakeGateway struct {
	mu sync.Mutex

	gatewayType model.GatewayType

	createErrs     []error
	createNative   string
	createCalls    int
	createKeys     []string
	captureNative  string
	captureErr     error
	captureKeys    []string
	captureAmounts []*model.Money
	cancelNative   string
	cancelCalls    int
	ipnEvent       *model.IpnEvent
	ipnErr         error
	ipnSecrets     []string
	reference      string
}

func newFakeGateway(gw model.GatewayType) *fakeGateway {
	return &fakeGateway{
		gatewayType:   gw,
		createNative:  "open",
		captureNative: "settled",
		cancelNative:  "voided",
		reference:     "ref-1",
	}
}

var fakeAuthorize = model.StatusMap{
	"open":       model.StatusPending,
	"held":       model.StatusAuthorized,
	"settled":    model.StatusCaptured,
	"voided":     model.StatusCancelled,
	"declined":   model.StatusFailed,
	"ChargeBack": model.StatusChargedBack,
}

var fakeIpn = model.StatusMap{
	"waiting":  model.StatusPending,
	"approved": model.StatusAuthorized,
	"paid":     model.StatusCaptured,
	"dispute":  model.StatusChargedBack,
	"refund":   model.StatusRefunded,
}

func (g *fakeGateway) Type() model.GatewayType { return g.gatewayType }

func (g *fakeGateway) StatusMap() model.StatusTable {
	return model.StatusTable{Authorize: fakeAuthorize, Ipn: fakeIpn}
}

func (g *fakeGateway) StatusDetailsMap() model.DetailTable {
	return model.DetailTable{}
}

func (g *fakeGateway) GetClient(creds *model.GatewayCredentials) (outbound.GatewayClient, error) {
	if creds == nil || creds.SecretKey == "" {
		return nil, apperrors.AuthConfig(string(g.gatewayType), nil)
	}
	return &fakeClient{gateway: g.gatewayType, secret: creds.SecretKey}, nil
}

func (g *fakeGateway) CreatePaymentData(req *model.PaymentRequest) (*model.ProviderPayload, error) {
	return &model.ProviderPayload{
		Gateway:        g.gatewayType,
		IdempotencyKey: req.TenantID + ":" + req.RequestID,
		Body:           req.Money().MinorUnits(),
	}, nil
}

func (g *fakeGateway) CreatePayment(ctx context.Context, client outbound.GatewayClient, payload *model.ProviderPayload) (*model.ProviderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	g.createKeys = append(g.createKeys, payload.IdempotencyKey)
	if len(g.createErrs) > 0 {
		err := g.createErrs[0]
		g.createErrs = g.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return g.response(g.createNative), nil
}

func (g *fakeGateway) CapturePayment(ctx context.Context, client outbound.GatewayClient, reference string, amount *model.Money) (*model.ProviderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureKeys = append(g.captureKeys, requestctx.IdempotencyKey(ctx))
	g.captureAmounts = append(g.captureAmounts, amount)
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return g.response(g.captureNative), nil
}

func (g *fakeGateway) CancelPayment(ctx context.Context, client outbound.GatewayClient, reference string) (*model.ProviderResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls++
	return g.response(g.cancelNative), nil
}

func (g *fakeGateway) response(native string) *model.ProviderResponse {
	return &model.ProviderResponse{
		Gateway:      g.gatewayType,
		NativeStatus: native,
		NativeDetail: native,
		Fields:       map[string]string{"id": g.reference, "native": native},
	}
}

func (g *fakeGateway) ExtractGatewayReference(resp *model.ProviderResponse) (string, error) {
	if id := resp.Field("id"); id != "" {
		return id, nil
	}
	return "", apperrors.MalformedResponse(string(g.gatewayType), "id missing")
}

func (g *fakeGateway) BuildMetadata(req *model.PaymentRequest, resp *model.ProviderResponse) model.Metadata {
	return model.Metadata{"last_native": resp.Field("native")}
}

func (g *fakeGateway) TranslateAuthorizeStatus(native string) model.CanonicalStatus {
	if s, ok := fakeAuthorize[native]; ok {
		return s
	}
	return model.StatusUnknown
}

func (g *fakeGateway) TranslateAuthorizeStatusDetail(native, detail string) model.StatusDetail {
	return model.StatusDetail{Code: detail, Message: native}
}

func (g *fakeGateway) TranslateIpnStatus(native string) model.CanonicalStatus {
	if s, ok := fakeIpn[native]; ok {
		return s
	}
	return model.StatusUnknown
}

func (g *fakeGateway) TranslateIpnStatusDetail(native, detail string) model.StatusDetail {
	return model.StatusDetail{Code: detail, Message: native}
}

func (g *fakeGateway) ParseIpnPayload(ctx context.Context, client outbound.GatewayClient, body []byte, headers http.Header) (*model.IpnEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ipnSecrets = append(g.ipnSecrets, client.(*fakeClient).secret)
	if g.ipnErr != nil {
		return nil, g.ipnErr
	}
	evt := *g.ipnEvent
	evt.Raw = body
	return &evt, nil
}

func (g *fakeGateway) setIpn(reference, native string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ipnErr = nil
	g.ipnEvent = &model.IpnEvent{
		Gateway:      g.gatewayType,
		EventID:      "evt-" + native,
		Reference:    reference,
		NativeStatus: native,
		NativeDetail: native,
	}
}

func (g *fakeGateway) IpnSuccessResponse() model.IpnResponse {
	return model.NewTextIpnResponse(http.StatusOK, "ok")
}

func (g *fakeGateway) IpnFailResponse() model.IpnResponse {
	return model.NewTextIpnResponse(http.StatusInternalServerError, "retry")
}

var _ outbound.GatewayPort = (*fakeGateway)(nil)

// --- Registry and credentials ---

type fakeRegistry map[model.GatewayType]outbound.GatewayPort

func (r fakeRegistry) Get(gw model.GatewayType) (outbound.GatewayPort, bool) {
	g, ok := r[gw]
	return g, ok
}

func (r fakeRegistry) All() []outbound.GatewayPort {
	out := make([]outbound.GatewayPort, 0, len(r))
	for _, g := range r {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}

type staticCredentials struct{}

func (staticCredentials) Credentials(ctx context.Context, tenantID string, gw model.GatewayType) (*model.GatewayCredentials, error) {
	return &model.GatewayCredentials{Gateway: gw, SecretKey: "secret-" + tenantID}, nil
}

type nopLocker struct{}

func (nopLocker) Lock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

type busyLocker struct{}

func (busyLocker) Lock(ctx context.Context, key string) (func(), error) {
	return nil, context.DeadlineExceeded
}

// --- In-memory payments ---

// memoryPayments is a PaymentDatabasePort with real compare-and-swap semantics.
type memoryPayments struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]model.Payment
	updates    int
	beforeSwap func(stored *model.Payment)
}

func newMemoryPayments() *memoryPayments {
	return &memoryPayments{byID: make(map[uuid.UUID]model.Payment)}
}

func (s *memoryPayments) Create(ctx context.Context, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = *p
	return nil
}

func (s *memoryPayments) FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memoryPayments) FindByReference(ctx context.Context, gw model.GatewayType, reference string) (*model.Payment, error) {
	return s.find(func(p model.Payment) bool { return p.Gateway == gw && p.Reference == reference })
}

func (s *memoryPayments) FindByRequestID(ctx context.Context, tenantID, requestID string) (*model.Payment, error) {
	return s.find(func(p model.Payment) bool { return p.TenantID == tenantID && p.RequestID == requestID })
}

func (s *memoryPayments) find(match func(model.Payment) bool) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		if match(p) {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryPayments) FindByFilter(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Payment
	for _, p := range s.byID {
		if p.TenantID == filter.TenantID && (filter.Status == "" || p.Status == filter.Status) {
			cp := p
			out = append(out, &cp)
		}
	}
	return out, int64(len(out)), nil
}

func (s *memoryPayments) UpdateStatus(ctx context.Context, p *model.Payment, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[p.ID]
	if !ok {
		return outbound.ErrStaleUpdate
	}
	if s.beforeSwap != nil {
		hook := s.beforeSwap
		s.beforeSwap = nil
		hook(&stored)
		s.byID[p.ID] = stored
	}
	if stored.Version != expectedVersion {
		return outbound.ErrStaleUpdate
	}
	s.updates++
	p.Version = expectedVersion + 1
	s.byID[p.ID] = *p
	return nil
}

func (s *memoryPayments) get(id uuid.UUID) model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

func (s *memoryPayments) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// --- Mocks ---

type MockIpnAuditDatabasePort struct {
	mock.Mock
}

func (m *MockIpnAuditDatabasePort) Create(ctx context.Context, audit *model.IpnAudit) error {
	args := m.Called(ctx, audit)
	return args.Error(0)
}

func (m *MockIpnAuditDatabasePort) FindByReference(ctx context.Context, gw model.GatewayType, reference string) ([]*model.IpnAudit, error) {
	args := m.Called(ctx, gw, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.IpnAudit), args.Error(1)
}

type MockIpnArchivePort struct {
	mock.Mock
}

func (m *MockIpnArchivePort) Archive(ctx context.Context, gw model.GatewayType, body []byte, headers map[string][]string) (string, error) {
	args := m.Called(ctx, gw, body, headers)
	return args.String(0), args.Error(1)
}

type MockPaymentDatabasePort struct {
	mock.Mock
}

func (m *MockPaymentDatabasePort) Create(ctx context.Context, payment *model.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentDatabasePort) FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentDatabasePort) FindByReference(ctx context.Context, gw model.GatewayType, reference string) (*model.Payment, error) {
	args := m.Called(ctx, gw, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentDatabasePort) FindByRequestID(ctx context.Context, tenantID, requestID string) (*model.Payment, error) {
	args := m.Called(ctx, tenantID, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentDatabasePort) FindByFilter(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]*model.Payment), args.Get(1).(int64), args.Error(2)
}

func (m *MockPaymentDatabasePort) UpdateStatus(ctx context.Context, payment *model.Payment, expectedVersion int64) error {
	args := m.Called(ctx, payment, expectedVersion)
	return args.Error(0)
}

// --- Event recorder ---

type recordingEvents struct {
	mu        sync.Mutex
	published []events.Event
}

func (r *recordingEvents) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, e)
}

func (r *recordingEvents) statusChanges() []*events.PaymentStatusChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.PaymentStatusChanged
	for _, e := range r.published {
		if c, ok := e.(*events.PaymentStatusChanged); ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *recordingEvents) flagged() []*events.PaymentFlagged {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.PaymentFlagged
	for _, e := range r.published {
		if f, ok := e.(*events.PaymentFlagged); ok {
			out = append(out, f)
		}
	}
	return out
}
