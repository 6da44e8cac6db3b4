package stripe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
	"github.com/paygate/server/internal/utils/requestctx"
)

const testWebhookSecret = "whsec_test"

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*Gateway, outbound.GatewayClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	g := New(server.Client(), zap.NewNop(), nil)
	client, err := g.GetClient(&model.GatewayCredentials{
		Gateway:       model.GatewayStripe,
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		BaseURL:       server.URL,
	})
	require.NoError(t, err)
	return g, client
}

func cardRequest() *model.PaymentRequest {
	return &model.PaymentRequest{
		TenantID:    "tenant-1",
		RequestID:   "req-1",
		Gateway:     model.GatewayStripe,
		Method:      model.MethodCreditCard,
		Amount:      decimal.RequireFromString("10.50"),
		Currency:    "USD",
		Description: "Order 42",
		Card:        &model.CardData{Token: "pm_card_visa", HolderName: "Ada Lovelace", Brand: "visa", LastFour: "4242"},
		Buyer:       model.Buyer{Name: "Ada Lovelace", Email: "ada@example.com"},
	}
}

func readForm(t *testing.T, r *http.Request) url.Values {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	form, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	return form
}

func TestGetClient(t *testing.T) {
	g := New(nil, zap.NewNop(), nil)

	_, err := g.GetClient(&model.GatewayCredentials{})
	assert.ErrorIs(t, err, apperrors.ErrAuthConfig)

	_, err = g.GetClient(&model.GatewayCredentials{SecretKey: "pk_live_wrong"})
	assert.ErrorIs(t, err, apperrors.ErrAuthConfig)

	c1, err := g.GetClient(&model.GatewayCredentials{SecretKey: "sk_test_1"})
	require.NoError(t, err)
	c2, err := g.GetClient(&model.GatewayCredentials{SecretKey: "sk_test_1"})
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, model.GatewayStripe, c1.Gateway())
}

func TestCreatePaymentData(t *testing.T) {
	g := New(nil, zap.NewNop(), nil)

	payload, err := g.CreatePaymentData(cardRequest())
	require.NoError(t, err)
	assert.Equal(t, "tenant-1:req-1", payload.IdempotencyKey)

	_, err = g.CreatePaymentData(&model.PaymentRequest{Amount: decimal.NewFromInt(1), Currency: "USD"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestPaymentRoundTrip(t *testing.T) {
	g, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payment_intents":
			form := readForm(t, r)
			assert.Equal(t, "1050", form.Get("amount"))
			assert.Equal(t, "usd", form.Get("currency"))
			assert.Equal(t, "manual", form.Get("capture_method"))
			assert.Equal(t, "true", form.Get("confirm"))
			assert.Equal(t, "pm_card_visa", form.Get("payment_method"))
			assert.Equal(t, "req-1", form.Get("metadata[request_id]"))
			assert.Equal(t, "tenant-1:req-1", r.Header.Get("Idempotency-Key"))
			_, _ = io.WriteString(w, `{"id":"pi_123","object":"payment_intent","status":"requires_capture","client_secret":"pi_123_secret_abc","latest_charge":"ch_1"}`)
		case "/v1/payment_intents/pi_123/capture":
			form := readForm(t, r)
			assert.Equal(t, "500", form.Get("amount_to_capture"))
			assert.Equal(t, "capture:pi_123", r.Header.Get("Idempotency-Key"))
			_, _ = io.WriteString(w, `{"id":"pi_123","object":"payment_intent","status":"succeeded"}`)
		case "/v1/payment_intents/pi_123/cancel":
			_, _ = io.WriteString(w, `{"id":"pi_123","object":"payment_intent","status":"canceled"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	req := cardRequest()
	payload, err := g.CreatePaymentData(req)
	require.NoError(t, err)

	resp, err := g.CreatePayment(context.Background(), client, payload)
	require.NoError(t, err)

	ref, err := g.ExtractGatewayReference(resp)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", ref)
	assert.Equal(t, model.StatusAuthorized, g.TranslateAuthorizeStatus(resp.NativeStatus))
	assert.Equal(t, "authorized", g.TranslateAuthorizeStatusDetail(resp.NativeStatus, resp.NativeDetail).Code)

	md := g.BuildMetadata(req, resp)
	assert.Equal(t, "pi_123", md["stripe_payment_intent"])
	assert.Equal(t, "ch_1", md["stripe_latest_charge"])
	assert.Equal(t, "4242", md["card_last_four"])
	assert.NotContains(t, md, "redirect_url")

	ctx := requestctx.WithIdempotencyKey(context.Background(), "capture:"+ref)
	amount := model.Money{Amount: decimal.NewFromInt(5), Currency: "USD"}
	captured, err := g.CapturePayment(ctx, client, ref, &amount)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCaptured, g.TranslateAuthorizeStatus(captured.NativeStatus))

	cancelled, err := g.CancelPayment(context.Background(), client, ref)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, g.TranslateAuthorizeStatus(cancelled.NativeStatus))
}

func TestCreatePayment_Errors(t *testing.T) {
	t.Run("card decline is a rejection", func(t *testing.T) {
		g, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = io.WriteString(w, `{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`)
		})
		payload, err := g.CreatePaymentData(cardRequest())
		require.NoError(t, err)

		_, err = g.CreatePayment(context.Background(), client, payload)
		require.ErrorIs(t, err, apperrors.ErrGatewayRejected)
		pe, _ := apperrors.AsPaymentError(err)
		assert.Equal(t, "insufficient_funds", pe.Code)
		assert.False(t, apperrors.IsRetryable(err))
	})

	t.Run("server error is retryable", func(t *testing.T) {
		g, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error":{"type":"api_error","message":"boom"}}`)
		})
		payload, err := g.CreatePaymentData(cardRequest())
		require.NoError(t, err)

		_, err = g.CreatePayment(context.Background(), client, payload)
		assert.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
		assert.True(t, apperrors.IsRetryable(err))
	})

	t.Run("foreign client is an auth config error", func(t *testing.T) {
		g := New(nil, zap.NewNop(), nil)
		_, err := g.CancelPayment(context.Background(), nil, "pi_1")
		assert.ErrorIs(t, err, apperrors.ErrAuthConfig)
	})
}

func TestExtractGatewayReference_Missing(t *testing.T) {
	g := New(nil, zap.NewNop(), nil)
	_, err := g.ExtractGatewayReference(&model.ProviderResponse{})
	assert.ErrorIs(t, err, apperrors.ErrMalformedResponse)
}

func signedHeaders(payload []byte, secret string) http.Header {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)
	return h
}

func TestParseIpnPayload(t *testing.T) {
	g, client := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {})

	t.Run("payment intent event", func(t *testing.T) {
		body := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.amount_capturable_updated","created":1700000000,"data":{"object":{"id":"pi_123","object":"payment_intent","status":"requires_capture"}}}`)

		evt, err := g.ParseIpnPayload(context.Background(), client, body, signedHeaders(body, testWebhookSecret))
		require.NoError(t, err)
		assert.Equal(t, "evt_1", evt.EventID)
		assert.Equal(t, "pi_123", evt.Reference)
		assert.Equal(t, model.StatusAuthorized, g.TranslateIpnStatus(evt.NativeStatus))
		assert.Equal(t, int64(1700000000), evt.OccurredAt.Unix())
	})

	t.Run("dispute event", func(t *testing.T) {
		body := []byte(`{"id":"evt_2","object":"event","type":"charge.dispute.created","created":1700000100,"data":{"object":{"id":"dp_1","object":"dispute","payment_intent":"pi_123","reason":"fraudulent"}}}`)

		evt, err := g.ParseIpnPayload(context.Background(), client, body, signedHeaders(body, testWebhookSecret))
		require.NoError(t, err)
		assert.Equal(t, "pi_123", evt.Reference)
		assert.Equal(t, model.StatusChargedBack, g.TranslateIpnStatus(evt.NativeStatus))
		assert.Equal(t, "dispute_fraudulent", g.TranslateIpnStatusDetail(evt.NativeStatus, evt.NativeDetail).Code)
	})

	refunds := []struct {
		name       string
		object     string
		wantStatus model.CanonicalStatus
		wantDetail string
	}{
		{"full refund", `{"id":"ch_1","object":"charge","payment_intent":"pi_123","amount":5000,"amount_refunded":5000,"refunded":true}`, model.StatusRefunded, "refunded"},
		{"partial refund", `{"id":"ch_1","object":"charge","payment_intent":"pi_123","amount":5000,"amount_refunded":1000,"refunded":false}`, model.StatusUnknown, "partially_refunded"},
		{"refund flag missing", `{"id":"ch_1","object":"charge","payment_intent":"pi_123","amount":5000}`, model.StatusUnknown, "partially_refunded"},
	}
	for _, tc := range refunds {
		t.Run(tc.name, func(t *testing.T) {
			body := []byte(`{"id":"evt_5","object":"event","type":"charge.refunded","created":1700000200,"data":{"object":` + tc.object + `}}`)

			evt, err := g.ParseIpnPayload(context.Background(), client, body, signedHeaders(body, testWebhookSecret))
			require.NoError(t, err)
			assert.Equal(t, "pi_123", evt.Reference)
			assert.Equal(t, tc.wantStatus, g.TranslateIpnStatus(evt.NativeStatus))
			assert.Equal(t, tc.wantDetail, g.TranslateIpnStatusDetail(evt.NativeStatus, evt.NativeDetail).Code)
		})
	}

	t.Run("wrong secret", func(t *testing.T) {
		body := []byte(`{"id":"evt_3","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
		_, err := g.ParseIpnPayload(context.Background(), client, body, signedHeaders(body, "whsec_other"))
		assert.ErrorIs(t, err, apperrors.ErrIpnAuthentication)
	})

	t.Run("missing signature", func(t *testing.T) {
		_, err := g.ParseIpnPayload(context.Background(), client, []byte(`{}`), http.Header{})
		assert.ErrorIs(t, err, apperrors.ErrIpnAuthentication)
	})

	t.Run("signed garbage", func(t *testing.T) {
		body := []byte(`not json`)
		_, err := g.ParseIpnPayload(context.Background(), client, body, signedHeaders(body, testWebhookSecret))
		assert.ErrorIs(t, err, apperrors.ErrIpnParse)
	})

	t.Run("event without payment intent", func(t *testing.T) {
		body := []byte(`{"id":"evt_4","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`)
		_, err := g.ParseIpnPayload(context.Background(), client, body, signedHeaders(body, testWebhookSecret))
		assert.ErrorIs(t, err, apperrors.ErrIpnParse)
	})
}

func TestIpnResponses(t *testing.T) {
	g := New(nil, zap.NewNop(), nil)
	ok := g.IpnSuccessResponse()
	assert.Equal(t, http.StatusOK, ok.StatusCode)
	assert.JSONEq(t, `{"received":true}`, string(ok.Body))

	fail := g.IpnFailResponse()
	assert.Equal(t, http.StatusBadRequest, fail.StatusCode)
}

func TestStatusTables(t *testing.T) {
	g := New(nil, zap.NewNop(), nil)
	assert.Equal(t, model.StatusUnknown, g.TranslateAuthorizeStatus("requires_something_new"))
	assert.Equal(t, model.StatusUnknown, g.TranslateIpnStatus("customer.created"))
	assert.Equal(t, model.StatusUnknown, g.TranslateIpnStatus("requires_capture"))
	assert.Equal(t, model.StatusRefunded, g.TranslateIpnStatus("charge.refunded"))
}
