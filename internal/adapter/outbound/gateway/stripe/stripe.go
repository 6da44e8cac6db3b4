// Package stripe adapts Stripe PaymentIntents to the gateway port.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/paygate/server/internal/adapter/outbound/gateway"
	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
	"github.com/paygate/server/internal/utils/metrics"
	"github.com/paygate/server/internal/utils/requestctx"
)

const gatewayName = string(model.GatewayStripe)

// Client is a Stripe API client bound to one account.
type Client struct {
	api           *client.API
	webhookSecret string
}

// Gateway implements model.GatewayType "stripe".
func (c *Client) Gateway() model.GatewayType {
	return model.GatewayStripe
}

// Gateway adapts Stripe to outbound.GatewayPort.
type Gateway struct {
	*gateway.Translator

	httpClient *http.Client
	logger     *zap.Logger
	clients    *gateway.ClientCache
	tolerance  time.Duration
}

// New creates the Stripe adapter.
func New(httpClient *http.Client, logger *zap.Logger, m *metrics.Metrics) *Gateway {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		Translator: gateway.NewTranslator(model.GatewayStripe, statusTable, detailTable, logger, m),
		httpClient: httpClient,
		logger:     logger.With(zap.String("gateway", gatewayName)),
		clients:    gateway.NewClientCache(model.GatewayStripe, m),
		tolerance:  webhook.DefaultTolerance,
	}
}

// GetClient builds a per-account API client. Nothing is set on the global stripe.Key.
func (g *Gateway) GetClient(creds *model.GatewayCredentials) (outbound.GatewayClient, error) {
	if creds == nil || creds.SecretKey == "" {
		return nil, apperrors.AuthConfig(gatewayName, errors.New("secret key is required"))
	}
	if !strings.HasPrefix(creds.SecretKey, "sk_") && !strings.HasPrefix(creds.SecretKey, "rk_") {
		return nil, apperrors.AuthConfig(gatewayName, errors.New("secret key must start with sk_ or rk_"))
	}

	return g.clients.GetOrCreate(creds, func() (outbound.GatewayClient, error) {
		retries := int64(0)
		cfg := &sdk.BackendConfig{
			HTTPClient:        g.httpClient,
			LeveledLogger:     g.logger.Sugar(),
			MaxNetworkRetries: &retries,
		}
		if creds.BaseURL != "" {
			cfg.URL = sdk.String(creds.BaseURL)
		}
		return &Client{
			api:           client.New(creds.SecretKey, sdk.NewBackendsWithConfig(cfg)),
			webhookSecret: creds.WebhookSecret,
		}, nil
	})
}

// CreatePaymentData builds a manual-capture PaymentIntent confirmed with the card token.
func (g *Gateway) CreatePaymentData(req *model.PaymentRequest) (*model.ProviderPayload, error) {
	if req.Card == nil || req.Card.Token == "" {
		return nil, apperrors.Validation("stripe requires a card payment method token")
	}
	money := req.Money()
	if money.MinorUnits() <= 0 {
		return nil, apperrors.Validation("amount %s %s is below the currency's smallest unit", money.Amount, money.Currency)
	}

	params := &sdk.PaymentIntentParams{
		Amount:        sdk.Int64(money.MinorUnits()),
		Currency:      sdk.String(strings.ToLower(req.Currency)),
		CaptureMethod: sdk.String(string(sdk.PaymentIntentCaptureMethodManual)),
		Confirm:       sdk.Bool(true),
		PaymentMethod: sdk.String(req.Card.Token),
	}
	if req.Description != "" {
		params.Description = sdk.String(req.Description)
	}
	if req.Buyer.Email != "" {
		params.ReceiptEmail = sdk.String(req.Buyer.Email)
	}
	if req.ReturnURL != "" {
		params.ReturnURL = sdk.String(req.ReturnURL)
	}
	params.AddMetadata("tenant_id", req.TenantID)
	params.AddMetadata("request_id", req.RequestID)

	return &model.ProviderPayload{
		Gateway:        model.GatewayStripe,
		IdempotencyKey: req.TenantID + ":" + req.RequestID,
		Body:           params,
	}, nil
}

// CreatePayment creates and confirms the PaymentIntent.
func (g *Gateway) CreatePayment(ctx context.Context, c outbound.GatewayClient, payload *model.ProviderPayload) (*model.ProviderResponse, error) {
	sc, err := asClient(c)
	if err != nil {
		return nil, err
	}
	params, ok := payload.Body.(*sdk.PaymentIntentParams)
	if !ok {
		return nil, apperrors.Validation("stripe payload has type %T", payload.Body)
	}
	params.Context = ctx
	params.SetIdempotencyKey(payload.IdempotencyKey)

	pi, err := sc.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return toResponse(pi), nil
}

// CapturePayment captures a requires_capture PaymentIntent.
func (g *Gateway) CapturePayment(ctx context.Context, c outbound.GatewayClient, reference string, amount *model.Money) (*model.ProviderResponse, error) {
	sc, err := asClient(c)
	if err != nil {
		return nil, err
	}
	params := &sdk.PaymentIntentCaptureParams{}
	params.Context = ctx
	if amount != nil {
		params.AmountToCapture = sdk.Int64(amount.MinorUnits())
	}
	if key := requestctx.IdempotencyKey(ctx); key != "" {
		params.SetIdempotencyKey(key)
	}

	pi, err := sc.api.PaymentIntents.Capture(reference, params)
	if err != nil {
		return nil, classify(err)
	}
	return toResponse(pi), nil
}

// CancelPayment cancels a PaymentIntent that was not captured.
func (g *Gateway) CancelPayment(ctx context.Context, c outbound.GatewayClient, reference string) (*model.ProviderResponse, error) {
	sc, err := asClient(c)
	if err != nil {
		return nil, err
	}
	params := &sdk.PaymentIntentCancelParams{
		CancellationReason: sdk.String("requested_by_customer"),
	}
	params.Context = ctx
	if key := requestctx.IdempotencyKey(ctx); key != "" {
		params.SetIdempotencyKey(key)
	}

	pi, err := sc.api.PaymentIntents.Cancel(reference, params)
	if err != nil {
		return nil, classify(err)
	}
	return toResponse(pi), nil
}

// ExtractGatewayReference returns the PaymentIntent id.
func (g *Gateway) ExtractGatewayReference(resp *model.ProviderResponse) (string, error) {
	if id := resp.Field("id"); id != "" {
		return id, nil
	}
	return "", apperrors.MalformedResponse(gatewayName, "payment intent id missing")
}

// BuildMetadata keeps the ids and next action a caller or auditor needs.
func (g *Gateway) BuildMetadata(req *model.PaymentRequest, resp *model.ProviderResponse) model.Metadata {
	md := model.Metadata{
		"stripe_payment_intent": resp.Field("id"),
		"stripe_client_secret":  resp.Field("client_secret"),
		"stripe_latest_charge":  resp.Field("latest_charge"),
		"redirect_url":          resp.Field("redirect_url"),
		"decline_code":          resp.Field("decline_code"),
	}
	if req != nil && req.Card != nil {
		md["card_brand"] = req.Card.Brand
		md["card_last_four"] = req.Card.LastFour
	}
	return model.Metadata{}.Merge(md)
}

// ParseIpnPayload verifies the Stripe-Signature header, then decodes the event.
func (g *Gateway) ParseIpnPayload(ctx context.Context, c outbound.GatewayClient, body []byte, headers http.Header) (*model.IpnEvent, error) {
	sc, err := asClient(c)
	if err != nil {
		return nil, err
	}
	if sc.webhookSecret == "" {
		return nil, apperrors.AuthConfig(gatewayName, errors.New("webhook secret is not configured"))
	}
	signature := headers.Get("Stripe-Signature")

	event, err := webhook.ConstructEventWithOptions(body, signature, sc.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                g.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, apperrors.IpnAuthentication(gatewayName, err)
		}
		return nil, apperrors.IpnParse(gatewayName, err)
	}
	if event.Data == nil || event.ID == "" {
		return nil, apperrors.IpnParse(gatewayName, errors.New("event data missing"))
	}

	evt := &model.IpnEvent{
		Gateway:      model.GatewayStripe,
		EventID:      event.ID,
		NativeStatus: string(event.Type),
		OccurredAt:   time.Unix(event.Created, 0).UTC(),
		Signature:    signature,
		Raw:          body,
	}

	switch {
	case strings.HasPrefix(string(event.Type), objectPaymentIntent+"."):
		var pi sdk.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, apperrors.IpnParse(gatewayName, fmt.Errorf("decode payment intent: %w", err))
		}
		evt.Reference = pi.ID
		if pi.LastPaymentError != nil {
			evt.NativeDetail = declineCode(pi.LastPaymentError)
		}
	default:
		// Charges and disputes point back at their PaymentIntent.
		ref, _ := event.Data.Object["payment_intent"].(string)
		evt.Reference = ref
		if reason, ok := event.Data.Object["reason"].(string); ok {
			evt.NativeDetail = reason
		}
		if evt.NativeStatus == eventChargeRefunded {
			if full, _ := event.Data.Object["refunded"].(bool); !full {
				evt.NativeStatus = eventPartialRefund
			}
		}
	}
	if evt.Reference == "" {
		return nil, apperrors.IpnParse(gatewayName, fmt.Errorf("event %s has no payment intent", event.ID))
	}
	return evt, nil
}

// IpnSuccessResponse acknowledges an event.
func (g *Gateway) IpnSuccessResponse() model.IpnResponse {
	return model.NewJSONIpnResponse(http.StatusOK, `{"received":true}`)
}

// IpnFailResponse makes Stripe redeliver the event.
func (g *Gateway) IpnFailResponse() model.IpnResponse {
	return model.NewJSONIpnResponse(http.StatusBadRequest, `{"received":false}`)
}

func asClient(c outbound.GatewayClient) (*Client, error) {
	sc, ok := c.(*Client)
	if !ok || sc == nil {
		return nil, gateway.ClientMismatch(model.GatewayStripe, c)
	}
	return sc, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

// classify splits Stripe errors into rejections and transport failures.
func classify(err error) error {
	var se *sdk.Error
	if !errors.As(err, &se) || se.HTTPStatusCode == 0 {
		return gateway.TransportError(model.GatewayStripe, err)
	}
	return gateway.HTTPStatusError(model.GatewayStripe, se.HTTPStatusCode, declineCode(se), se.Msg)
}

func declineCode(se *sdk.Error) string {
	switch {
	case se.DeclineCode != "":
		return string(se.DeclineCode)
	case se.Code != "":
		return string(se.Code)
	default:
		return string(se.Type)
	}
}

func toResponse(pi *sdk.PaymentIntent) *model.ProviderResponse {
	resp := &model.ProviderResponse{
		Gateway:      model.GatewayStripe,
		NativeStatus: string(pi.Status),
		NativeDetail: string(pi.Status),
		Fields: map[string]string{
			"id":            pi.ID,
			"client_secret": pi.ClientSecret,
		},
	}
	if pi.LatestCharge != nil {
		resp.Fields["latest_charge"] = pi.LatestCharge.ID
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		resp.Fields["redirect_url"] = pi.NextAction.RedirectToURL.URL
	}
	if pi.LastPaymentError != nil {
		resp.NativeDetail = declineCode(pi.LastPaymentError)
		resp.Fields["decline_code"] = resp.NativeDetail
	}
	if pi.LastResponse != nil {
		resp.Raw = pi.LastResponse.RawJSON
	}
	return resp
}

var _ outbound.GatewayPort = (*Gateway)(nil)
