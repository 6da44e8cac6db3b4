package model

import "time"

// GatewayType identifies a third-party payment gateway.
type GatewayType string

const (
	GatewayStripe      GatewayType = "stripe"
	GatewayMercadoPago GatewayType = "mercadopago"
	GatewayAlipay      GatewayType = "alipay"
	GatewayWechat      GatewayType = "wechat"
)

// IsValid returns true if the gateway type is known.
func (g GatewayType) IsValid() bool {
	switch g {
	case GatewayStripe, GatewayMercadoPago, GatewayAlipay, GatewayWechat:
		return true
	}
	return false
}

// MethodType identifies a payment instrument.
type MethodType string

const (
	MethodCreditCard MethodType = "credit_card"
	MethodTicket     MethodType = "ticket"
	MethodWallet     MethodType = "wallet"
)

// ActionType tells the caller what to do after a payment is created.
type ActionType string

const (
	ActionDirect   ActionType = "direct"   // nothing, the result is final for now
	ActionPrint    ActionType = "print"    // show or print the ticket
	ActionRedirect ActionType = "redirect" // send the buyer to the wallet
)

// PaymentScene represents the wallet checkout scenario.
type PaymentScene string

const (
	PaymentSceneWeb    PaymentScene = "web"    // Desktop web payment
	PaymentSceneH5     PaymentScene = "h5"     // Mobile web payment
	PaymentSceneNative PaymentScene = "native" // QR code / scan payment
)

// GatewayCredentials holds what a gateway client needs to authenticate.
// Fields unused by a gateway are left empty.
type GatewayCredentials struct {
	Gateway       GatewayType
	AppID         string
	MerchantID    string
	SecretKey     string // API secret or access token
	WebhookSecret string
	PrivateKey    string // PEM or bare base64
	PublicKey     string // gateway public key, PEM or bare base64
	PublicKeyID   string // gateway public key serial, WeChat only
	SerialNo      string
	APIKeyV3      string
	BaseURL       string // overrides the gateway API endpoint
	IsProd        bool
}

// ProviderPayload is a request already shaped for a specific gateway.
type ProviderPayload struct {
	Gateway        GatewayType
	IdempotencyKey string
	Body           any
}

// ProviderResponse is a gateway answer reduced to the fields the core reads.
type ProviderResponse struct {
	Gateway      GatewayType
	NativeStatus string
	NativeDetail string
	Fields       map[string]string
	Raw          []byte
}

// Field returns a response field or an empty string.
func (r *ProviderResponse) Field(key string) string {
	if r == nil || r.Fields == nil {
		return ""
	}
	return r.Fields[key]
}

// IpnEvent is a verified and parsed gateway notification.
type IpnEvent struct {
	Gateway      GatewayType
	EventID      string
	Reference    string
	NativeStatus string
	NativeDetail string
	OccurredAt   time.Time
	Signature    string
	Raw          []byte
}

// IpnResponse is the literal acknowledgement a gateway expects from a webhook.
type IpnResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// NewTextIpnResponse creates a plain-text acknowledgement.
func NewTextIpnResponse(status int, body string) IpnResponse {
	return IpnResponse{StatusCode: status, ContentType: "text/plain; charset=utf-8", Body: []byte(body)}
}

// NewJSONIpnResponse creates a JSON acknowledgement from a pre-encoded body.
func NewJSONIpnResponse(status int, body string) IpnResponse {
	return IpnResponse{StatusCode: status, ContentType: "application/json; charset=utf-8", Body: []byte(body)}
}

// EmptyIpnResponse creates an acknowledgement with no body.
func EmptyIpnResponse(status int) IpnResponse {
	return IpnResponse{StatusCode: status}
}
