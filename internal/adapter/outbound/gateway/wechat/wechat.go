// Package wechat adapts WeChat Pay v3 Native and H5 checkout to the gateway port.
package wechat

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-pay/gopay"
	wxpay "github.com/go-pay/gopay/wechat/v3"
	"go.uber.org/zap"

	"github.com/paygate/server/internal/adapter/outbound/gateway"
	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
	"github.com/paygate/server/internal/utils/metrics"
)

const (
	gatewayName  = string(model.GatewayWechat)
	orderTimeout = 30 * time.Minute
)

// Header names of a signed v3 notification.
var notifyHeaders = []string{
	"Wechatpay-Timestamp",
	"Wechatpay-Nonce",
	"Wechatpay-Signature",
	"Wechatpay-Serial",
}

// transactionAPI is the part of the gopay v3 client the adapter calls.
type transactionAPI interface {
	V3TransactionNative(ctx context.Context, bm gopay.BodyMap) (*wxpay.NativeRsp, error)
	V3TransactionH5(ctx context.Context, bm gopay.BodyMap) (*wxpay.H5Rsp, error)
	V3TransactionCloseOrder(ctx context.Context, tradeNo string) (*wxpay.CloseOrderRsp, error)
}

// Client is a WeChat Pay client bound to one merchant.
type Client struct {
	api       transactionAPI
	appID     string
	mchID     string
	apiKeyV3  string
	publicKey *rsa.PublicKey
}

// Gateway implements model.GatewayType "wechat".
func (c *Client) Gateway() model.GatewayType {
	return model.GatewayWechat
}

// Gateway adapts WeChat Pay to outbound.GatewayPort.
type Gateway struct {
	*gateway.Translator

	logger  *zap.Logger
	clients *gateway.ClientCache
}

// New creates the WeChat Pay adapter.
func New(logger *zap.Logger, m *metrics.Metrics) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		Translator: gateway.NewTranslator(model.GatewayWechat, statusTable, detailTable, logger, m),
		logger:     logger.With(zap.String("gateway", gatewayName)),
		clients:    gateway.NewClientCache(model.GatewayWechat, m),
	}
}

// GetClient builds a v3 client. The platform public key is required because
// every notification is verified with it.
func (g *Gateway) GetClient(creds *model.GatewayCredentials) (outbound.GatewayClient, error) {
	if creds == nil || creds.AppID == "" || creds.MerchantID == "" || creds.SerialNo == "" {
		return nil, apperrors.AuthConfig(gatewayName, errors.New("app id, merchant id and serial number are required"))
	}
	if len(creds.APIKeyV3) != 32 {
		return nil, apperrors.AuthConfig(gatewayName, errors.New("api v3 key must be 32 bytes"))
	}

	return g.clients.GetOrCreate(creds, func() (outbound.GatewayClient, error) {
		pub, err := parseRSAPublicKey(creds.PublicKey)
		if err != nil {
			return nil, apperrors.AuthConfig(gatewayName, err)
		}
		api, err := wxpay.NewClientV3(creds.MerchantID, creds.SerialNo, creds.APIKeyV3, creds.PrivateKey)
		if err != nil {
			return nil, apperrors.AuthConfig(gatewayName, err)
		}
		if creds.PublicKeyID != "" {
			api.SetPlatformCert([]byte(creds.PublicKey), creds.PublicKeyID)
		}
		return &Client{
			api:       api,
			appID:     creds.AppID,
			mchID:     creds.MerchantID,
			apiKeyV3:  creds.APIKeyV3,
			publicKey: pub,
		}, nil
	})
}

// CreatePaymentData builds the v3 order body. appid and mchid are filled in
// by CreatePayment because they belong to the client.
func (g *Gateway) CreatePaymentData(req *model.PaymentRequest) (*model.ProviderPayload, error) {
	if req.Method != model.MethodWallet {
		return nil, apperrors.UnsupportedOperation(string(req.Method), "create", "wechat only supports wallet payments")
	}
	if req.Currency != "CNY" {
		return nil, apperrors.Validation("wechat pay settles in CNY, got %s", req.Currency)
	}
	if req.NotificationURL == "" {
		return nil, apperrors.Validation("wechat pay requires a notification url")
	}
	description := req.Description
	if description == "" {
		description = "Order " + req.RequestID
	}

	bm := make(gopay.BodyMap)
	bm.Set("description", description).
		Set("out_trade_no", gateway.TradeNo(req.TenantID, req.RequestID)).
		Set("time_expire", time.Now().Add(orderTimeout).Format(time.RFC3339)).
		Set("notify_url", req.NotificationURL).
		SetBodyMap("amount", func(am gopay.BodyMap) {
			am.Set("total", req.Money().MinorUnits()).
				Set("currency", "CNY")
		})

	switch req.Scene {
	case model.PaymentSceneNative, "":
		bm.Set("scene", string(model.PaymentSceneNative))
	case model.PaymentSceneH5:
		if req.Buyer.IP == "" {
			return nil, apperrors.Validation("h5 payments require the buyer ip")
		}
		bm.Set("scene", string(model.PaymentSceneH5))
		bm.SetBodyMap("scene_info", func(sm gopay.BodyMap) {
			sm.Set("payer_client_ip", req.Buyer.IP).
				SetBodyMap("h5_info", func(h5 gopay.BodyMap) {
					h5.Set("type", "Wap")
				})
		})
	default:
		return nil, apperrors.Validation("wechat does not support scene %q", req.Scene)
	}

	return &model.ProviderPayload{
		Gateway:        model.GatewayWechat,
		IdempotencyKey: bm.GetString("out_trade_no"),
		Body:           bm,
	}, nil
}

// CreatePayment places a Native (QR) or H5 order.
func (g *Gateway) CreatePayment(ctx context.Context, c outbound.GatewayClient, payload *model.ProviderPayload) (*model.ProviderResponse, error) {
	wc, err := asClient(c)
	if err != nil {
		return nil, err
	}
	src, ok := payload.Body.(gopay.BodyMap)
	if !ok {
		return nil, apperrors.Validation("wechat payload has type %T", payload.Body)
	}

	// The scene is ours, not part of the WeChat order body.
	bm := make(gopay.BodyMap, len(src)+2)
	for k, v := range src {
		if k != "scene" {
			bm[k] = v
		}
	}
	bm.Set("appid", wc.appID).Set("mchid", wc.mchID)

	resp := &model.ProviderResponse{
		Gateway:      model.GatewayWechat,
		NativeStatus: stateNotPay,
		NativeDetail: stateNotPay,
		Fields: map[string]string{
			"out_trade_no": bm.GetString("out_trade_no"),
			"scene":        src.GetString("scene"),
		},
	}

	if src.GetString("scene") == string(model.PaymentSceneH5) {
		res, err := wc.api.V3TransactionH5(ctx, bm)
		if err != nil {
			return nil, gateway.TransportError(model.GatewayWechat, err)
		}
		if res.Code != wxpay.Success {
			return nil, apiError(res.Code, res.Error)
		}
		if res.Response == nil || res.Response.H5Url == "" {
			return nil, apperrors.MalformedResponse(gatewayName, "h5_url missing")
		}
		resp.Fields["h5_url"] = res.Response.H5Url
		return resp, nil
	}

	res, err := wc.api.V3TransactionNative(ctx, bm)
	if err != nil {
		return nil, gateway.TransportError(model.GatewayWechat, err)
	}
	if res.Code != wxpay.Success {
		return nil, apiError(res.Code, res.Error)
	}
	if res.Response == nil || res.Response.CodeUrl == "" {
		return nil, apperrors.MalformedResponse(gatewayName, "code_url missing")
	}
	resp.Fields["code_url"] = res.Response.CodeUrl
	return resp, nil
}

// CapturePayment is not possible: WeChat settles when the buyer pays.
func (g *Gateway) CapturePayment(ctx context.Context, c outbound.GatewayClient, reference string, amount *model.Money) (*model.ProviderResponse, error) {
	return nil, apperrors.UnsupportedOperation(gatewayName, "capture", "wechat orders settle when paid")
}

// CancelPayment closes an unpaid order.
func (g *Gateway) CancelPayment(ctx context.Context, c outbound.GatewayClient, reference string) (*model.ProviderResponse, error) {
	wc, err := asClient(c)
	if err != nil {
		return nil, err
	}
	res, err := wc.api.V3TransactionCloseOrder(ctx, reference)
	if err != nil {
		return nil, gateway.TransportError(model.GatewayWechat, err)
	}
	if res.Code != wxpay.Success {
		return nil, apiError(res.Code, res.Error)
	}
	return &model.ProviderResponse{
		Gateway:      model.GatewayWechat,
		NativeStatus: stateClosed,
		NativeDetail: stateClosed,
		Fields:       map[string]string{"out_trade_no": reference},
	}, nil
}

// ExtractGatewayReference returns our out_trade_no.
func (g *Gateway) ExtractGatewayReference(resp *model.ProviderResponse) (string, error) {
	if ref := resp.Field("out_trade_no"); ref != "" {
		return ref, nil
	}
	return "", apperrors.MalformedResponse(gatewayName, "out_trade_no missing")
}

// BuildMetadata keeps the QR code or H5 link.
func (g *Gateway) BuildMetadata(req *model.PaymentRequest, resp *model.ProviderResponse) model.Metadata {
	return model.Metadata{}.Merge(model.Metadata{
		"wechat_out_trade_no": resp.Field("out_trade_no"),
		"wechat_scene":        resp.Field("scene"),
		"qr_code":             resp.Field("code_url"),
		"redirect_url":        resp.Field("h5_url"),
	})
}

// ParseIpnPayload verifies the platform signature and decrypts the resource.
func (g *Gateway) ParseIpnPayload(ctx context.Context, c outbound.GatewayClient, body []byte, headers http.Header) (*model.IpnEvent, error) {
	wc, err := asClient(c)
	if err != nil {
		return nil, err
	}
	if headers.Get("Wechatpay-Signature") == "" || headers.Get("Wechatpay-Timestamp") == "" {
		return nil, apperrors.IpnAuthentication(gatewayName, errors.New("signature headers missing"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for _, h := range notifyHeaders {
		req.Header.Set(h, headers.Get(h))
	}

	notify, err := wxpay.V3ParseNotify(req)
	if err != nil {
		return nil, apperrors.IpnParse(gatewayName, err)
	}
	if err := notify.VerifySignByPK(wc.publicKey); err != nil {
		return nil, apperrors.IpnAuthentication(gatewayName, err)
	}

	evt := &model.IpnEvent{
		Gateway:   model.GatewayWechat,
		EventID:   notify.Id,
		Signature: headers.Get("Wechatpay-Signature"),
		Raw:       body,
	}
	if t, err := time.Parse(time.RFC3339, notify.CreateTime); err == nil {
		evt.OccurredAt = t.UTC()
	}

	// A resource that fails to decrypt was not sealed with our key.
	if strings.HasPrefix(notify.EventType, "REFUND.") {
		res, err := notify.DecryptRefundCipherText(wc.apiKeyV3)
		if err != nil {
			return nil, apperrors.IpnAuthentication(gatewayName, err)
		}
		if res.Mchid != "" && res.Mchid != wc.mchID {
			return nil, apperrors.IpnAuthentication(gatewayName, fmt.Errorf("notification for merchant %s", res.Mchid))
		}
		evt.Reference = res.OutTradeNo
		evt.NativeDetail = res.RefundStatus
		switch {
		case res.RefundStatus != stateSuccess:
			evt.NativeStatus = "REFUND_" + res.RefundStatus
		case res.Amount != nil && res.Amount.Total > 0 && res.Amount.Refund >= res.Amount.Total:
			evt.NativeStatus = stateRefund
		default:
			evt.NativeStatus = statePartialRefund
			evt.NativeDetail = statePartialRefund
		}
	} else {
		res, err := notify.DecryptPayCipherText(wc.apiKeyV3)
		if err != nil {
			return nil, apperrors.IpnAuthentication(gatewayName, err)
		}
		if res.Mchid != "" && res.Mchid != wc.mchID {
			return nil, apperrors.IpnAuthentication(gatewayName, fmt.Errorf("notification for merchant %s", res.Mchid))
		}
		evt.Reference = res.OutTradeNo
		evt.NativeStatus = res.TradeState
		evt.NativeDetail = res.TradeState
	}

	if evt.Reference == "" || evt.NativeStatus == "" {
		return nil, apperrors.IpnParse(gatewayName, errors.New("out_trade_no or state missing"))
	}
	return evt, nil
}

// IpnSuccessResponse is the v3 acknowledgement body.
func (g *Gateway) IpnSuccessResponse() model.IpnResponse {
	return model.NewJSONIpnResponse(http.StatusOK, `{"code":"SUCCESS","message":"OK"}`)
}

// IpnFailResponse makes WeChat retry the notification.
func (g *Gateway) IpnFailResponse() model.IpnResponse {
	return model.NewJSONIpnResponse(http.StatusInternalServerError, `{"code":"FAIL","message":"FAIL"}`)
}

// apiError classifies a non-2xx v3 answer. The body carries a business code
// such as ORDERPAID or SYSTEM_ERROR.
func apiError(status int, body string) error {
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		e.Message = body
	}
	if e.Code == "SYSTEM_ERROR" || e.Code == "FREQUENCY_LIMITED" {
		return apperrors.GatewayUnavailable(gatewayName, fmt.Errorf("%s: %s", e.Code, e.Message))
	}
	return gateway.HTTPStatusError(model.GatewayWechat, status, e.Code, e.Message)
}

// parseRSAPublicKey parses a PEM public key or platform certificate.
func parseRSAPublicKey(pemKey string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		rsaKey, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("certificate does not contain RSA public key")
		}
		return rsaKey, nil
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaKey, nil
}

func asClient(c outbound.GatewayClient) (*Client, error) {
	wc, ok := c.(*Client)
	if !ok || wc == nil {
		return nil, gateway.ClientMismatch(model.GatewayWechat, c)
	}
	return wc, nil
}

var _ outbound.GatewayPort = (*Gateway)(nil)
