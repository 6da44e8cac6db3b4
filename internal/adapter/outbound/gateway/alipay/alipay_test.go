package alipay

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/alipay"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paygate/server/internal/adapter/outbound/gateway"
	"github.com/paygate/server/internal/model"
	apperrors "github.com/paygate/server/internal/utils/errors"
)

type fakeTradeAPI struct {
	calls     []string
	lastBody  gopay.BodyMap
	payURL    string
	precreate *alipay.TradePrecreateResponse
	closeResp *alipay.TradeCloseResponse
	err       error
}

func (f *fakeTradeAPI) TradePagePay(ctx context.Context, bm gopay.BodyMap) (string, error) {
	f.calls = append(f.calls, "page")
	f.lastBody = bm
	return f.payURL, f.err
}

func (f *fakeTradeAPI) TradeWapPay(ctx context.Context, bm gopay.BodyMap) (string, error) {
	f.calls = append(f.calls, "wap")
	f.lastBody = bm
	return f.payURL, f.err
}

func (f *fakeTradeAPI) TradePrecreate(ctx context.Context, bm gopay.BodyMap) (*alipay.TradePrecreateResponse, error) {
	f.calls = append(f.calls, "precreate")
	f.lastBody = bm
	return f.precreate, f.err
}

func (f *fakeTradeAPI) TradeClose(ctx context.Context, bm gopay.BodyMap) (*alipay.TradeCloseResponse, error) {
	f.calls = append(f.calls, "close")
	f.lastBody = bm
	return f.closeResp, f.err
}

func testKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, base64.StdEncoding.EncodeToString(der)
}

func walletRequest(scene model.PaymentScene) *model.PaymentRequest {
	return &model.PaymentRequest{
		TenantID:        "tenant-1",
		RequestID:       "req-1",
		Gateway:         model.GatewayAlipay,
		Method:          model.MethodWallet,
		Amount:          decimal.RequireFromString("88.8"),
		Currency:        "CNY",
		Description:     "VIP membership",
		Scene:           scene,
		NotificationURL: "https://pay.example.com/webhooks/alipay",
		ReturnURL:       "https://shop.example.com/done",
	}
}

func TestCreatePaymentData(t *testing.T) {
	g := New(zap.NewNop(), nil)

	t.Run("web", func(t *testing.T) {
		payload, err := g.CreatePaymentData(walletRequest(model.PaymentSceneWeb))
		require.NoError(t, err)
		bm := payload.Body.(gopay.BodyMap)
		assert.Equal(t, "88.80", bm.GetString("total_amount"))
		assert.Equal(t, "FAST_INSTANT_TRADE_PAY", bm.GetString("product_code"))
		assert.Equal(t, "VIP membership", bm.GetString("subject"))
		assert.Equal(t, "https://shop.example.com/done", bm.GetString("return_url"))
		assert.Equal(t, gateway.TradeNo("tenant-1", "req-1"), bm.GetString("out_trade_no"))
		assert.Equal(t, bm.GetString("out_trade_no"), payload.IdempotencyKey)
	})

	t.Run("native has no return url", func(t *testing.T) {
		payload, err := g.CreatePaymentData(walletRequest(model.PaymentSceneNative))
		require.NoError(t, err)
		bm := payload.Body.(gopay.BodyMap)
		assert.Equal(t, "FACE_TO_FACE_PAYMENT", bm.GetString("product_code"))
		assert.Empty(t, bm.GetString("return_url"))
	})

	t.Run("card is unsupported", func(t *testing.T) {
		req := walletRequest(model.PaymentSceneWeb)
		req.Method = model.MethodCreditCard
		_, err := g.CreatePaymentData(req)
		assert.ErrorIs(t, err, apperrors.ErrUnsupportedOperation)
	})

	t.Run("foreign currency", func(t *testing.T) {
		req := walletRequest(model.PaymentSceneWeb)
		req.Currency = "USD"
		_, err := g.CreatePaymentData(req)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("unknown scene", func(t *testing.T) {
		_, err := g.CreatePaymentData(walletRequest("jsapi"))
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestGetClient(t *testing.T) {
	g := New(zap.NewNop(), nil)

	_, err := g.GetClient(&model.GatewayCredentials{AppID: "2021"})
	assert.ErrorIs(t, err, apperrors.ErrAuthConfig)

	_, err = g.GetClient(&model.GatewayCredentials{AppID: "2021", PrivateKey: "key", PublicKey: "%%%"})
	assert.ErrorIs(t, err, apperrors.ErrAuthConfig)
}

func TestPublicKey(t *testing.T) {
	_, raw := testKey(t)

	gotRaw, pemKey, err := publicKey(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, gotRaw)
	assert.Contains(t, string(pemKey), "BEGIN PUBLIC KEY")

	again, _, err := publicKey(string(pemKey))
	require.NoError(t, err)
	assert.Equal(t, raw, again)
}

func TestCreatePayment(t *testing.T) {
	g := New(zap.NewNop(), nil)
	ctx := context.Background()

	t.Run("page pay", func(t *testing.T) {
		api := &fakeTradeAPI{payURL: "https://openapi.alipay.com/gateway.do?sign=x"}
		client := &Client{api: api, appID: "2021"}
		payload, err := g.CreatePaymentData(walletRequest(model.PaymentSceneWeb))
		require.NoError(t, err)

		resp, err := g.CreatePayment(ctx, client, payload)
		require.NoError(t, err)
		assert.Equal(t, []string{"page"}, api.calls)
		assert.Equal(t, model.StatusPending, g.TranslateAuthorizeStatus(resp.NativeStatus))

		ref, err := g.ExtractGatewayReference(resp)
		require.NoError(t, err)
		assert.Equal(t, gateway.TradeNo("tenant-1", "req-1"), ref)

		md := g.BuildMetadata(walletRequest(model.PaymentSceneWeb), resp)
		assert.Equal(t, api.payURL, md["redirect_url"])
		assert.NotContains(t, md, "qr_code")
	})

	t.Run("wap pay", func(t *testing.T) {
		api := &fakeTradeAPI{payURL: "https://openapi.alipay.com/wap"}
		payload, err := g.CreatePaymentData(walletRequest(model.PaymentSceneH5))
		require.NoError(t, err)
		_, err = g.CreatePayment(ctx, &Client{api: api}, payload)
		require.NoError(t, err)
		assert.Equal(t, []string{"wap"}, api.calls)
	})

	t.Run("precreate", func(t *testing.T) {
		api := &fakeTradeAPI{precreate: &alipay.TradePrecreateResponse{
			Response: &alipay.TradePrecreate{
				ErrorResponse: alipay.ErrorResponse{Code: "10000", Msg: "Success"},
				QrCode:        "https://qr.alipay.com/bax01",
			},
		}}
		payload, err := g.CreatePaymentData(walletRequest(model.PaymentSceneNative))
		require.NoError(t, err)
		resp, err := g.CreatePayment(ctx, &Client{api: api}, payload)
		require.NoError(t, err)
		assert.Equal(t, "https://qr.alipay.com/bax01", resp.Field("qr_code"))
	})

	t.Run("precreate refused", func(t *testing.T) {
		api := &fakeTradeAPI{
			precreate: &alipay.TradePrecreateResponse{
				Response: &alipay.TradePrecreate{
					ErrorResponse: alipay.ErrorResponse{Code: "40004", Msg: "Business Failed", SubCode: "ACQ.TRADE_HAS_CLOSE", SubMsg: "trade closed"},
				},
			},
			err: errors.New("biz error"),
		}
		payload, err := g.CreatePaymentData(walletRequest(model.PaymentSceneNative))
		require.NoError(t, err)
		_, err = g.CreatePayment(ctx, &Client{api: api}, payload)
		require.ErrorIs(t, err, apperrors.ErrGatewayRejected)
		pe, ok := apperrors.AsPaymentError(err)
		require.True(t, ok)
		assert.Equal(t, "ACQ.TRADE_HAS_CLOSE", pe.Code)
		assert.False(t, pe.Retryable())
	})

	t.Run("transport failure", func(t *testing.T) {
		api := &fakeTradeAPI{err: errors.New("connection reset")}
		payload, err := g.CreatePaymentData(walletRequest(model.PaymentSceneNative))
		require.NoError(t, err)
		_, err = g.CreatePayment(ctx, &Client{api: api}, payload)
		assert.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
		assert.True(t, apperrors.IsRetryable(err))
	})

	for _, scene := range []model.PaymentScene{model.PaymentSceneWeb, model.PaymentSceneH5} {
		t.Run("signing failure on "+string(scene)+" is a config error", func(t *testing.T) {
			api := &fakeTradeAPI{err: errors.New("private key parse failed")}
			payload, err := g.CreatePaymentData(walletRequest(scene))
			require.NoError(t, err)
			_, err = g.CreatePayment(ctx, &Client{api: api}, payload)
			assert.ErrorIs(t, err, apperrors.ErrAuthConfig)
			assert.False(t, apperrors.IsRetryable(err))
		})
	}

	t.Run("system error is retryable", func(t *testing.T) {
		api := &fakeTradeAPI{precreate: &alipay.TradePrecreateResponse{
			Response: &alipay.TradePrecreate{
				ErrorResponse: alipay.ErrorResponse{Code: "20000", SubCode: "isp.unknow-error", SubMsg: "busy"},
			},
		}}
		payload, err := g.CreatePaymentData(walletRequest(model.PaymentSceneNative))
		require.NoError(t, err)
		_, err = g.CreatePayment(ctx, &Client{api: api}, payload)
		assert.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
	})
}

func TestCaptureAndCancel(t *testing.T) {
	g := New(zap.NewNop(), nil)
	ctx := context.Background()

	_, err := g.CapturePayment(ctx, &Client{api: &fakeTradeAPI{}}, "ref", nil)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedOperation)

	api := &fakeTradeAPI{closeResp: &alipay.TradeCloseResponse{
		Response: &alipay.TradeClose{
			ErrorResponse: alipay.ErrorResponse{Code: "10000"},
			TradeNo:       "2024010122001",
		},
	}}
	resp, err := g.CancelPayment(ctx, &Client{api: api}, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "ref-1", api.lastBody.GetString("out_trade_no"))
	assert.Equal(t, model.StatusCancelled, g.TranslateAuthorizeStatus(resp.NativeStatus))

	_, err = g.CancelPayment(ctx, nil, "ref-1")
	assert.ErrorIs(t, err, apperrors.ErrAuthConfig)
}

// signNotify signs params the way Alipay does for RSA2 notifications.
func signNotify(t *testing.T, key *rsa.PrivateKey, params map[string]string) []byte {
	t.Helper()
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "sign" || k == "sign_type" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	sum := sha256.Sum256([]byte(strings.Join(pairs, "&")))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, sum[:])
	require.NoError(t, err)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("sign", base64.StdEncoding.EncodeToString(sig))
	return []byte(form.Encode())
}

func notifyParams() map[string]string {
	return map[string]string{
		"app_id":       "2021",
		"notify_id":    "notify-1",
		"notify_time":  "2024-03-01 12:00:00",
		"out_trade_no": "ref-1",
		"trade_no":     "2024030122001",
		"trade_status": "TRADE_SUCCESS",
		"total_amount": "88.80",
		"sign_type":    "RSA2",
		"charset":      "utf-8",
	}
}

func TestParseIpnPayload(t *testing.T) {
	g := New(zap.NewNop(), nil)
	ctx := context.Background()
	key, raw := testKey(t)
	client := &Client{api: &fakeTradeAPI{}, appID: "2021", publicKey: raw}

	t.Run("valid", func(t *testing.T) {
		evt, err := g.ParseIpnPayload(ctx, client, signNotify(t, key, notifyParams()), http.Header{})
		require.NoError(t, err)
		assert.Equal(t, "ref-1", evt.Reference)
		assert.Equal(t, "notify-1", evt.EventID)
		assert.Equal(t, model.StatusCaptured, g.TranslateIpnStatus(evt.NativeStatus))
		assert.Equal(t, 4, evt.OccurredAt.Hour())
	})

	refunds := []struct {
		name       string
		status     string
		wantStatus model.CanonicalStatus
		wantDetail string
		legal      bool
	}{
		{"full refund closes the trade", "TRADE_CLOSED", model.StatusRefunded, "refunded", true},
		{"partial refund needs reconciliation", "TRADE_SUCCESS", model.StatusUnknown, "partially_refunded", false},
	}
	for _, tc := range refunds {
		t.Run(tc.name, func(t *testing.T) {
			params := notifyParams()
			params["trade_status"] = tc.status
			params["gmt_refund"] = "2024-03-02 10:00:00.123"
			params["refund_fee"] = "10.00"
			evt, err := g.ParseIpnPayload(ctx, client, signNotify(t, key, params), http.Header{})
			require.NoError(t, err)
			status := g.TranslateIpnStatus(evt.NativeStatus)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantDetail, g.TranslateIpnStatusDetail(evt.NativeStatus, evt.NativeDetail).Code)
			assert.Equal(t, tc.legal, model.StatusCaptured.CanTransitionTo(status))
		})
	}

	t.Run("closed without refund is a cancel", func(t *testing.T) {
		params := notifyParams()
		params["trade_status"] = "TRADE_CLOSED"
		evt, err := g.ParseIpnPayload(ctx, client, signNotify(t, key, params), http.Header{})
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, g.TranslateIpnStatus(evt.NativeStatus))
		assert.Equal(t, "closed", g.TranslateIpnStatusDetail(evt.NativeStatus, evt.NativeDetail).Code)
	})

	t.Run("tampered", func(t *testing.T) {
		body := signNotify(t, key, notifyParams())
		body = []byte(strings.Replace(string(body), "total_amount=88.80", "total_amount=0.01", 1))
		_, err := g.ParseIpnPayload(ctx, client, body, http.Header{})
		assert.ErrorIs(t, err, apperrors.ErrIpnAuthentication)
	})

	t.Run("other app", func(t *testing.T) {
		params := notifyParams()
		params["app_id"] = "2099"
		_, err := g.ParseIpnPayload(ctx, client, signNotify(t, key, params), http.Header{})
		assert.ErrorIs(t, err, apperrors.ErrIpnAuthentication)
	})

	t.Run("unsigned", func(t *testing.T) {
		_, err := g.ParseIpnPayload(ctx, client, []byte("out_trade_no=ref-1&trade_status=TRADE_SUCCESS"), http.Header{})
		assert.ErrorIs(t, err, apperrors.ErrIpnAuthentication)
	})

	t.Run("missing reference", func(t *testing.T) {
		params := notifyParams()
		delete(params, "out_trade_no")
		_, err := g.ParseIpnPayload(ctx, client, signNotify(t, key, params), http.Header{})
		assert.ErrorIs(t, err, apperrors.ErrIpnParse)
	})
}

func TestIpnResponses(t *testing.T) {
	g := New(zap.NewNop(), nil)
	ok := g.IpnSuccessResponse()
	assert.Equal(t, http.StatusOK, ok.StatusCode)
	assert.Equal(t, "success", string(ok.Body))

	fail := g.IpnFailResponse()
	assert.Equal(t, http.StatusInternalServerError, fail.StatusCode)
	assert.Equal(t, "fail", string(fail.Body))
}

func TestStatusTables(t *testing.T) {
	g := New(zap.NewNop(), nil)
	assert.Equal(t, model.StatusCaptured, g.TranslateIpnStatus("TRADE_FINISHED"))
	assert.Equal(t, model.StatusUnknown, g.TranslateIpnStatus("TRADE_PENDING"))
	assert.Equal(t, model.UnknownStatusDetail, g.TranslateAuthorizeStatusDetail("NOPE", ""))
}
