package httpclient

import (
	"net"
	"net/http"

	"github.com/paygate/server/internal/infra/config"
	"github.com/paygate/server/internal/utils/requestctx"
)

// UserAgent is sent on every outbound gateway call.
const UserAgent = "paygate/1.0"

// New creates the HTTP client shared by the gateway adapters.
func New(cfg config.HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &http.Client{
		Transport: &tracingTransport{next: transport},
		Timeout:   cfg.ResponseTimeout,
	}
}

// tracingTransport stamps outbound requests with the user agent and the
// inbound request id so gateway logs can be correlated with ours.
type tracingTransport struct {
	next http.RoundTripper
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	requestID := requestctx.RequestID(req.Context())
	if req.Header.Get("User-Agent") != "" && requestID == "" {
		return t.next.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", UserAgent)
	}
	if requestID != "" && req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	return t.next.RoundTrip(req)
}
