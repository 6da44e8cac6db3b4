// Package alipay adapts Alipay redirect and QR checkout to the gateway port.
package alipay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/alipay"
	"go.uber.org/zap"

	"github.com/paygate/server/internal/adapter/outbound/gateway"
	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
	"github.com/paygate/server/internal/utils/metrics"
)

const (
	gatewayName  = string(model.GatewayAlipay)
	codeSuccess  = "10000"
	notifyLayout = "2006-01-02 15:04:05"
	orderTimeout = "30m"
)

// Alipay timestamps are Beijing time.
var beijing = time.FixedZone("CST", 8*60*60)

// tradeAPI is the part of the gopay Alipay client the adapter calls.
type tradeAPI interface {
	TradePagePay(ctx context.Context, bm gopay.BodyMap) (string, error)
	TradeWapPay(ctx context.Context, bm gopay.BodyMap) (string, error)
	TradePrecreate(ctx context.Context, bm gopay.BodyMap) (*alipay.TradePrecreateResponse, error)
	TradeClose(ctx context.Context, bm gopay.BodyMap) (*alipay.TradeCloseResponse, error)
}

// Client is an Alipay client bound to one app.
type Client struct {
	api       tradeAPI
	appID     string
	publicKey string
}

// Gateway implements model.GatewayType "alipay".
func (c *Client) Gateway() model.GatewayType {
	return model.GatewayAlipay
}

// Gateway adapts Alipay to outbound.GatewayPort.
type Gateway struct {
	*gateway.Translator

	logger  *zap.Logger
	clients *gateway.ClientCache
}

// New creates the Alipay adapter.
func New(logger *zap.Logger, m *metrics.Metrics) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		Translator: gateway.NewTranslator(model.GatewayAlipay, statusTable, detailTable, logger, m),
		logger:     logger.With(zap.String("gateway", gatewayName)),
		clients:    gateway.NewClientCache(model.GatewayAlipay, m),
	}
}

// GetClient builds a gopay client that verifies response signatures.
func (g *Gateway) GetClient(creds *model.GatewayCredentials) (outbound.GatewayClient, error) {
	if creds == nil || creds.AppID == "" || creds.PrivateKey == "" {
		return nil, apperrors.AuthConfig(gatewayName, errors.New("app id and private key are required"))
	}
	if creds.PublicKey == "" {
		return nil, apperrors.AuthConfig(gatewayName, errors.New("alipay public key is required"))
	}

	return g.clients.GetOrCreate(creds, func() (outbound.GatewayClient, error) {
		rawKey, pemKey, err := publicKey(creds.PublicKey)
		if err != nil {
			return nil, apperrors.AuthConfig(gatewayName, err)
		}
		api, err := alipay.NewClient(creds.AppID, creds.PrivateKey, creds.IsProd)
		if err != nil {
			return nil, apperrors.AuthConfig(gatewayName, err)
		}
		api.AutoVerifySign(pemKey)
		return &Client{api: api, appID: creds.AppID, publicKey: rawKey}, nil
	})
}

// CreatePaymentData builds the trade body.
func (g *Gateway) CreatePaymentData(req *model.PaymentRequest) (*model.ProviderPayload, error) {
	if req.Method != model.MethodWallet {
		return nil, apperrors.UnsupportedOperation(string(req.Method), "create", "alipay only supports wallet payments")
	}
	if req.Currency != "CNY" {
		return nil, apperrors.Validation("alipay settles in CNY, got %s", req.Currency)
	}
	subject := req.Description
	if subject == "" {
		subject = "Order " + req.RequestID
	}

	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", gateway.TradeNo(req.TenantID, req.RequestID))
	bm.Set("total_amount", req.Money().MajorString())
	bm.Set("subject", subject)
	bm.Set("timeout_express", orderTimeout)
	if req.NotificationURL != "" {
		bm.Set("notify_url", req.NotificationURL)
	}

	switch req.Scene {
	case model.PaymentSceneWeb, "":
		bm.Set("product_code", "FAST_INSTANT_TRADE_PAY")
		if req.ReturnURL != "" {
			bm.Set("return_url", req.ReturnURL)
		}
	case model.PaymentSceneH5:
		bm.Set("product_code", "QUICK_WAP_WAY")
		if req.ReturnURL != "" {
			bm.Set("return_url", req.ReturnURL)
		}
	case model.PaymentSceneNative:
		bm.Set("product_code", "FACE_TO_FACE_PAYMENT")
	default:
		return nil, apperrors.Validation("alipay does not support scene %q", req.Scene)
	}

	return &model.ProviderPayload{
		Gateway:        model.GatewayAlipay,
		IdempotencyKey: bm.GetString("out_trade_no"),
		Body:           bm,
	}, nil
}

// CreatePayment signs a redirect URL or precreates a QR trade.
func (g *Gateway) CreatePayment(ctx context.Context, c outbound.GatewayClient, payload *model.ProviderPayload) (*model.ProviderResponse, error) {
	ac, err := asClient(c)
	if err != nil {
		return nil, err
	}
	bm, ok := payload.Body.(gopay.BodyMap)
	if !ok {
		return nil, apperrors.Validation("alipay payload has type %T", payload.Body)
	}
	outTradeNo := bm.GetString("out_trade_no")
	resp := &model.ProviderResponse{
		Gateway:      model.GatewayAlipay,
		NativeStatus: tradeWaitBuyerPay,
		NativeDetail: tradeWaitBuyerPay,
		Fields: map[string]string{
			"out_trade_no": outTradeNo,
			"product_code": bm.GetString("product_code"),
		},
	}

	switch bm.GetString("product_code") {
	case "FAST_INSTANT_TRADE_PAY":
		// Page and WAP payments are only signed locally; a failure is a key problem.
		payURL, err := ac.api.TradePagePay(ctx, bm)
		if err != nil {
			return nil, apperrors.AuthConfig(gatewayName, err)
		}
		resp.Fields["pay_url"] = payURL
	case "QUICK_WAP_WAY":
		payURL, err := ac.api.TradeWapPay(ctx, bm)
		if err != nil {
			return nil, apperrors.AuthConfig(gatewayName, err)
		}
		resp.Fields["pay_url"] = payURL
	default:
		res, err := ac.api.TradePrecreate(ctx, bm)
		var out *alipay.TradePrecreate
		if res != nil {
			out = res.Response
		}
		if out == nil {
			return nil, callError(err, "", "", "")
		}
		if err != nil || out.Code != codeSuccess {
			return nil, callError(err, out.Code, out.SubCode, out.SubMsg)
		}
		if out.QrCode == "" {
			return nil, apperrors.MalformedResponse(gatewayName, "qr_code missing")
		}
		resp.Fields["qr_code"] = out.QrCode
	}
	return resp, nil
}

// CapturePayment is not possible: Alipay settles when the buyer pays.
func (g *Gateway) CapturePayment(ctx context.Context, c outbound.GatewayClient, reference string, amount *model.Money) (*model.ProviderResponse, error) {
	return nil, apperrors.UnsupportedOperation(gatewayName, "capture", "alipay trades settle when paid")
}

// CancelPayment closes an unpaid trade.
func (g *Gateway) CancelPayment(ctx context.Context, c outbound.GatewayClient, reference string) (*model.ProviderResponse, error) {
	ac, err := asClient(c)
	if err != nil {
		return nil, err
	}
	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", reference)

	res, err := ac.api.TradeClose(ctx, bm)
	var out *alipay.TradeClose
	if res != nil {
		out = res.Response
	}
	if out == nil {
		return nil, callError(err, "", "", "")
	}
	if err != nil || out.Code != codeSuccess {
		return nil, callError(err, out.Code, out.SubCode, out.SubMsg)
	}
	return &model.ProviderResponse{
		Gateway:      model.GatewayAlipay,
		NativeStatus: tradeClosed,
		NativeDetail: tradeClosed,
		Fields: map[string]string{
			"out_trade_no": reference,
			"trade_no":     out.TradeNo,
		},
	}, nil
}

// ExtractGatewayReference returns our out_trade_no.
func (g *Gateway) ExtractGatewayReference(resp *model.ProviderResponse) (string, error) {
	if ref := resp.Field("out_trade_no"); ref != "" {
		return ref, nil
	}
	return "", apperrors.MalformedResponse(gatewayName, "out_trade_no missing")
}

// BuildMetadata keeps where to send the buyer.
func (g *Gateway) BuildMetadata(req *model.PaymentRequest, resp *model.ProviderResponse) model.Metadata {
	return model.Metadata{}.Merge(model.Metadata{
		"alipay_out_trade_no": resp.Field("out_trade_no"),
		"alipay_product_code": resp.Field("product_code"),
		"redirect_url":        resp.Field("pay_url"),
		"qr_code":             resp.Field("qr_code"),
	})
}

// ParseIpnPayload verifies the RSA2 signature of a form-encoded notification.
func (g *Gateway) ParseIpnPayload(ctx context.Context, c outbound.GatewayClient, body []byte, headers http.Header) (*model.IpnEvent, error) {
	ac, err := asClient(c)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	bm, err := alipay.ParseNotifyToBodyMap(req)
	if err != nil {
		return nil, apperrors.IpnParse(gatewayName, err)
	}
	signature := bm.GetString("sign")
	if signature == "" {
		return nil, apperrors.IpnAuthentication(gatewayName, errors.New("sign missing"))
	}
	ok, err := alipay.VerifySign(ac.publicKey, bm)
	if err != nil || !ok {
		if err == nil {
			err = errors.New("signature mismatch")
		}
		return nil, apperrors.IpnAuthentication(gatewayName, err)
	}
	if appID := bm.GetString("app_id"); appID != "" && appID != ac.appID {
		return nil, apperrors.IpnAuthentication(gatewayName, fmt.Errorf("notification for app %s", appID))
	}

	evt := &model.IpnEvent{
		Gateway:      model.GatewayAlipay,
		EventID:      bm.GetString("notify_id"),
		Reference:    bm.GetString("out_trade_no"),
		NativeStatus: bm.GetString("trade_status"),
		NativeDetail: bm.GetString("trade_status"),
		Signature:    signature,
		Raw:          body,
	}
	if evt.Reference == "" || evt.NativeStatus == "" {
		return nil, apperrors.IpnParse(gatewayName, errors.New("out_trade_no or trade_status missing"))
	}
	if bm.GetString("gmt_refund") != "" {
		switch evt.NativeStatus {
		case tradeClosed:
			evt.NativeStatus = tradeClosedRefund
		case tradeSuccess:
			evt.NativeStatus = tradePartialRefund
		}
		evt.NativeDetail = evt.NativeStatus
	}
	if t, err := time.ParseInLocation(notifyLayout, bm.GetString("notify_time"), beijing); err == nil {
		evt.OccurredAt = t.UTC()
	}
	return evt, nil
}

// IpnSuccessResponse is the literal "success" Alipay waits for.
func (g *Gateway) IpnSuccessResponse() model.IpnResponse {
	return model.NewTextIpnResponse(http.StatusOK, "success")
}

// IpnFailResponse makes Alipay retry the notification.
func (g *Gateway) IpnFailResponse() model.IpnResponse {
	return model.NewTextIpnResponse(http.StatusInternalServerError, "fail")
}

// callError classifies a failed Alipay call. A business code means the call
// reached Alipay and was refused.
func callError(err error, code, subCode, subMsg string) error {
	if code != "" && code != codeSuccess {
		// 20000 is Alipay's "service unavailable" gateway code.
		if code == "20000" || subCode == "ACQ.SYSTEM_ERROR" {
			return apperrors.GatewayUnavailable(gatewayName, fmt.Errorf("%s %s: %s", code, subCode, subMsg))
		}
		if subCode != "" {
			code = subCode
		}
		return apperrors.GatewayRejected(gatewayName, code, subMsg)
	}
	if err == nil {
		return apperrors.MalformedResponse(gatewayName, "empty response")
	}
	return gateway.TransportError(model.GatewayAlipay, err)
}

// publicKey accepts the Alipay public key either as PEM or as the bare base64
// shown in the Alipay console, and returns both forms. Response verification
// wants PEM, notification verification wants the bare key.
func publicKey(key string) (string, []byte, error) {
	key = strings.TrimSpace(key)
	if block, _ := pem.Decode([]byte(key)); block != nil {
		return base64.StdEncoding.EncodeToString(block.Bytes), []byte(key), nil
	}
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(key), ""))
	if err != nil {
		return "", nil, fmt.Errorf("decode alipay public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return base64.StdEncoding.EncodeToString(der), pem.EncodeToMemory(block), nil
}

func asClient(c outbound.GatewayClient) (*Client, error) {
	ac, ok := c.(*Client)
	if !ok || ac == nil {
		return nil, gateway.ClientMismatch(model.GatewayAlipay, c)
	}
	return ac, nil
}

var _ outbound.GatewayPort = (*Gateway)(nil)
