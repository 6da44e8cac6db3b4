package outbound

import (
	"context"
	"net/http"

	"github.com/paygate/server/internal/model"
)

// GatewayClient is a configured, authenticated client of one gateway.
// Clients are safe for concurrent use.
type GatewayClient interface {
	Gateway() model.GatewayType
}

// GatewayPort normalizes one third-party payment gateway.
// Implementations hold no per-payment state.
type GatewayPort interface {
	// Type returns the gateway identifier.
	Type() model.GatewayType

	// StatusMap returns the authorize and IPN status tables.
	StatusMap() model.StatusTable

	// StatusDetailsMap returns the authorize and IPN detail tables.
	StatusDetailsMap() model.DetailTable

	// GetClient builds or reuses a client for the credentials.
	GetClient(creds *model.GatewayCredentials) (GatewayClient, error)

	// CreatePaymentData shapes a request into the gateway payload. Pure.
	CreatePaymentData(req *model.PaymentRequest) (*model.ProviderPayload, error)

	// CreatePayment sends the payload to the gateway.
	CreatePayment(ctx context.Context, client GatewayClient, payload *model.ProviderPayload) (*model.ProviderResponse, error)

	// CapturePayment captures an authorized payment. A nil amount captures the full amount.
	CapturePayment(ctx context.Context, client GatewayClient, reference string, amount *model.Money) (*model.ProviderResponse, error)

	// CancelPayment voids a payment that was not captured.
	CancelPayment(ctx context.Context, client GatewayClient, reference string) (*model.ProviderResponse, error)

	// ExtractGatewayReference reads the gateway reference from a create response.
	ExtractGatewayReference(resp *model.ProviderResponse) (string, error)

	// BuildMetadata extracts audit data from a create response.
	BuildMetadata(req *model.PaymentRequest, resp *model.ProviderResponse) model.Metadata

	// TranslateAuthorizeStatus maps a create/capture/cancel status.
	TranslateAuthorizeStatus(native string) model.CanonicalStatus

	// TranslateAuthorizeStatusDetail maps a create/capture/cancel detail.
	TranslateAuthorizeStatusDetail(native, detail string) model.StatusDetail

	// TranslateIpnStatus maps a notification status.
	TranslateIpnStatus(native string) model.CanonicalStatus

	// TranslateIpnStatusDetail maps a notification detail.
	TranslateIpnStatusDetail(native, detail string) model.StatusDetail

	// ParseIpnPayload verifies and parses a raw notification.
	ParseIpnPayload(ctx context.Context, client GatewayClient, body []byte, headers http.Header) (*model.IpnEvent, error)

	// IpnSuccessResponse is the acknowledgement for an accepted notification.
	IpnSuccessResponse() model.IpnResponse

	// IpnFailResponse is the acknowledgement that makes the gateway retry.
	IpnFailResponse() model.IpnResponse
}

// GatewayRegistryPort resolves gateways by type.
type GatewayRegistryPort interface {
	// Get returns the gateway or false if none is registered.
	Get(gateway model.GatewayType) (GatewayPort, bool)

	// All returns every registered gateway.
	All() []GatewayPort
}

// CredentialStorePort resolves gateway credentials per tenant.
type CredentialStorePort interface {
	// Credentials returns the tenant's credentials for a gateway.
	Credentials(ctx context.Context, tenantID string, gateway model.GatewayType) (*model.GatewayCredentials, error)
}
