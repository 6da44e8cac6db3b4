// Package mercadopago adapts the Mercado Pago payments API to the gateway port.
package mercadopago

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/paygate/server/internal/adapter/outbound/gateway"
	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
	"github.com/paygate/server/internal/utils/metrics"
	"github.com/paygate/server/internal/utils/requestctx"
)

const (
	gatewayName    = string(model.GatewayMercadoPago)
	defaultBaseURL = "https://api.mercadopago.com"
	maxBodySize    = 1 << 20
)

// Client is a Mercado Pago API client bound to one access token.
type Client struct {
	accessToken   string
	webhookSecret string
	baseURL       string
	http          *http.Client
}

// Gateway implements model.GatewayType "mercadopago".
func (c *Client) Gateway() model.GatewayType {
	return model.GatewayMercadoPago
}

// Gateway adapts Mercado Pago to outbound.GatewayPort.
type Gateway struct {
	*gateway.Translator

	httpClient *http.Client
	logger     *zap.Logger
	clients    *gateway.ClientCache
	now        func() time.Time
}

// New creates the Mercado Pago adapter.
func New(httpClient *http.Client, logger *zap.Logger, m *metrics.Metrics) *Gateway {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		Translator: gateway.NewTranslator(model.GatewayMercadoPago, statusTable, detailTable, logger, m),
		httpClient: httpClient,
		logger:     logger.With(zap.String("gateway", gatewayName)),
		clients:    gateway.NewClientCache(model.GatewayMercadoPago, m),
		now:        time.Now,
	}
}

// GetClient validates the access token and builds a client.
func (g *Gateway) GetClient(creds *model.GatewayCredentials) (outbound.GatewayClient, error) {
	if creds == nil || creds.SecretKey == "" {
		return nil, apperrors.AuthConfig(gatewayName, errors.New("access token is required"))
	}
	if !strings.HasPrefix(creds.SecretKey, "APP_USR-") && !strings.HasPrefix(creds.SecretKey, "TEST-") {
		return nil, apperrors.AuthConfig(gatewayName, errors.New("access token must start with APP_USR- or TEST-"))
	}

	return g.clients.GetOrCreate(creds, func() (outbound.GatewayClient, error) {
		baseURL := strings.TrimSuffix(creds.BaseURL, "/")
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		return &Client{
			accessToken:   creds.SecretKey,
			webhookSecret: creds.WebhookSecret,
			baseURL:       baseURL,
			http:          g.httpClient,
		}, nil
	})
}

// CreatePaymentData builds a card authorization or a boleto ticket.
func (g *Gateway) CreatePaymentData(req *model.PaymentRequest) (*model.ProviderPayload, error) {
	money := req.Money()
	body := &paymentRequest{
		TransactionAmount: json.Number(money.MajorString()),
		Description:       req.Description,
		ExternalReference: req.RequestID,
		NotificationURL:   req.NotificationURL,
		Payer: payer{
			Email: req.Buyer.Email,
		},
		Metadata: map[string]string{
			"tenant_id":  req.TenantID,
			"request_id": req.RequestID,
		},
	}
	first, last := splitName(req.Buyer.Name)
	body.Payer.FirstName, body.Payer.LastName = first, last
	if req.Buyer.Document != "" {
		body.Payer.Identification = &identification{Type: req.Buyer.DocumentType, Number: req.Buyer.Document}
	}
	if len(req.Items) > 0 || req.Buyer.IP != "" {
		info := &additionalInfo{IPAddress: req.Buyer.IP}
		for _, it := range req.Items {
			info.Items = append(info.Items, item{
				ID:        it.SKU,
				Title:     it.Title,
				Quantity:  it.Quantity,
				UnitPrice: json.Number(model.Money{Amount: it.UnitPrice, Currency: req.Currency}.MajorString()),
			})
		}
		body.AdditionalInfo = info
	}

	switch req.Method {
	case model.MethodCreditCard:
		if req.Card == nil || req.Card.Token == "" || req.Card.Brand == "" {
			return nil, apperrors.Validation("mercadopago cards need a token and a brand")
		}
		capture := false
		body.Token = req.Card.Token
		body.PaymentMethodID = req.Card.Brand
		body.Installments = max(req.Installments, 1)
		body.Capture = &capture
	case model.MethodTicket:
		if body.Payer.Identification == nil {
			return nil, apperrors.Validation("mercadopago tickets need the buyer's document")
		}
		body.PaymentMethodID = boletoMethodID
	default:
		return nil, apperrors.UnsupportedOperation(string(req.Method), "create", "mercadopago supports credit_card and ticket")
	}

	return &model.ProviderPayload{
		Gateway:        model.GatewayMercadoPago,
		IdempotencyKey: req.TenantID + ":" + req.RequestID,
		Body:           body,
	}, nil
}

// CreatePayment posts the payment.
func (g *Gateway) CreatePayment(ctx context.Context, c outbound.GatewayClient, payload *model.ProviderPayload) (*model.ProviderResponse, error) {
	mc, err := asClient(c)
	if err != nil {
		return nil, err
	}
	body, ok := payload.Body.(*paymentRequest)
	if !ok {
		return nil, apperrors.Validation("mercadopago payload has type %T", payload.Body)
	}
	return g.paymentCall(ctx, mc, http.MethodPost, "/v1/payments", payload.IdempotencyKey, body)
}

// CapturePayment captures an authorized card payment.
func (g *Gateway) CapturePayment(ctx context.Context, c outbound.GatewayClient, reference string, amount *model.Money) (*model.ProviderResponse, error) {
	mc, err := asClient(c)
	if err != nil {
		return nil, err
	}
	capture := true
	body := &updateRequest{Capture: &capture}
	if amount != nil {
		body.TransactionAmount = json.Number(amount.MajorString())
	}
	return g.paymentCall(ctx, mc, http.MethodPut, "/v1/payments/"+reference, requestctx.IdempotencyKey(ctx), body)
}

// CancelPayment cancels a pending or authorized payment.
func (g *Gateway) CancelPayment(ctx context.Context, c outbound.GatewayClient, reference string) (*model.ProviderResponse, error) {
	mc, err := asClient(c)
	if err != nil {
		return nil, err
	}
	return g.paymentCall(ctx, mc, http.MethodPut, "/v1/payments/"+reference, requestctx.IdempotencyKey(ctx), &updateRequest{Status: "cancelled"})
}

// ExtractGatewayReference returns the numeric payment id.
func (g *Gateway) ExtractGatewayReference(resp *model.ProviderResponse) (string, error) {
	if id := resp.Field("id"); id != "" {
		return id, nil
	}
	return "", apperrors.MalformedResponse(gatewayName, "payment id missing")
}

// BuildMetadata keeps the ticket data a buyer needs to pay.
func (g *Gateway) BuildMetadata(req *model.PaymentRequest, resp *model.ProviderResponse) model.Metadata {
	return model.Metadata{}.Merge(model.Metadata{
		"mercadopago_payment_id": resp.Field("id"),
		"payment_method_id":      resp.Field("payment_method_id"),
		"ticket_url":             resp.Field("ticket_url"),
		"barcode":                resp.Field("barcode"),
		"date_of_expiration":     resp.Field("date_of_expiration"),
		"native_status_detail":   resp.NativeDetail,
	})
}

// ParseIpnPayload checks the x-signature HMAC, then fetches the payment the
// notification points at. Notifications carry no status of their own.
func (g *Gateway) ParseIpnPayload(ctx context.Context, c outbound.GatewayClient, body []byte, headers http.Header) (*model.IpnEvent, error) {
	mc, err := asClient(c)
	if err != nil {
		return nil, err
	}
	if mc.webhookSecret == "" {
		return nil, apperrors.AuthConfig(gatewayName, errors.New("webhook secret is not configured"))
	}
	signature := headers.Get("x-signature")
	ts, v1, err := parseSignatureHeader(signature)
	if err != nil {
		return nil, apperrors.IpnAuthentication(gatewayName, err)
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, apperrors.IpnParse(gatewayName, fmt.Errorf("decode notification: %w", err))
	}
	requestID := headers.Get("x-request-id")
	if !verifySignature(mc.webhookSecret, n.Data.ID, requestID, ts, v1) {
		return nil, apperrors.IpnAuthentication(gatewayName, errors.New("x-signature mismatch"))
	}
	if n.Type != "payment" || n.Data.ID == "" {
		return nil, apperrors.IpnParse(gatewayName, fmt.Errorf("unsupported notification type %q", n.Type))
	}

	resp, err := g.paymentCall(ctx, mc, http.MethodGet, "/v1/payments/"+n.Data.ID, "", nil)
	if err != nil {
		return nil, err
	}
	if resp.Field("id") != n.Data.ID {
		return nil, apperrors.MalformedResponse(gatewayName, "fetched payment id does not match notification")
	}

	eventID := n.ID.String()
	if eventID == "" {
		eventID = requestID
	}
	occurred, err := time.Parse(time.RFC3339, n.DateCreated)
	if err != nil {
		occurred = g.now().UTC()
	}
	return &model.IpnEvent{
		Gateway:      model.GatewayMercadoPago,
		EventID:      eventID,
		Reference:    n.Data.ID,
		NativeStatus: resp.NativeStatus,
		NativeDetail: resp.NativeDetail,
		OccurredAt:   occurred,
		Signature:    signature,
		Raw:          body,
	}, nil
}

// IpnSuccessResponse acknowledges a notification.
func (g *Gateway) IpnSuccessResponse() model.IpnResponse {
	return model.EmptyIpnResponse(http.StatusOK)
}

// IpnFailResponse makes Mercado Pago retry the notification.
func (g *Gateway) IpnFailResponse() model.IpnResponse {
	return model.EmptyIpnResponse(http.StatusInternalServerError)
}

func (g *Gateway) paymentCall(ctx context.Context, c *Client, method, path, idempotencyKey string, in any) (*model.ProviderResponse, error) {
	var reader io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, gateway.TransportError(model.GatewayMercadoPago, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, gateway.TransportError(model.GatewayMercadoPago, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)
		code := apiErr.Error
		if len(apiErr.Cause) > 0 && apiErr.Cause[0].Code != "" {
			code = apiErr.Cause[0].Code.String()
		}
		g.logger.Debug("mercadopago call failed",
			zap.String("path", path),
			zap.Int("status", res.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return nil, gateway.HTTPStatusError(model.GatewayMercadoPago, res.StatusCode, code, apiErr.Message)
	}

	var p payment
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperrors.MalformedResponse(gatewayName, "payment body is not valid JSON")
	}
	if p.Status == "" {
		return nil, apperrors.MalformedResponse(gatewayName, "payment status missing")
	}
	return p.toResponse(raw), nil
}

// parseSignatureHeader splits "ts=...,v1=...".
func parseSignatureHeader(header string) (ts, v1 string, err error) {
	if header == "" {
		return "", "", errors.New("x-signature header missing")
	}
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return "", "", errors.New("x-signature header malformed")
	}
	return ts, v1, nil
}

// signatureManifest omits the parts whose values are absent.
func signatureManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}

func sign(secret, manifest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(secret, dataID, requestID, ts, v1 string) bool {
	expected := sign(secret, signatureManifest(dataID, requestID, ts))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(v1)))
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func asClient(c outbound.GatewayClient) (*Client, error) {
	mc, ok := c.(*Client)
	if !ok || mc == nil {
		return nil, gateway.ClientMismatch(model.GatewayMercadoPago, c)
	}
	return mc, nil
}

var _ outbound.GatewayPort = (*Gateway)(nil)
