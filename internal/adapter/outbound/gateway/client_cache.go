package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	"github.com/paygate/server/internal/utils/metrics"
)

// ClientCache reuses gateway clients per credential set.
type ClientCache struct {
	gateway model.GatewayType
	clients sync.Map // fingerprint -> outbound.GatewayClient
	metrics *metrics.Metrics
}

// NewClientCache creates an empty cache.
func NewClientCache(gateway model.GatewayType, m *metrics.Metrics) *ClientCache {
	return &ClientCache{gateway: gateway, metrics: m}
}

// GetOrCreate returns the cached client for creds or builds one.
// Concurrent misses may build twice; only one client is kept.
func (c *ClientCache) GetOrCreate(creds *model.GatewayCredentials, build func() (outbound.GatewayClient, error)) (outbound.GatewayClient, error) {
	key := Fingerprint(creds)
	if v, ok := c.clients.Load(key); ok {
		c.metrics.RecordCacheHit("gateway_client")
		return v.(outbound.GatewayClient), nil
	}
	c.metrics.RecordCacheMiss("gateway_client")

	client, err := build()
	if err != nil {
		return nil, err
	}
	v, _ := c.clients.LoadOrStore(key, client)
	return v.(outbound.GatewayClient), nil
}

// Fingerprint hashes every credential field so rotated secrets get a new client.
func Fingerprint(creds *model.GatewayCredentials) string {
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{
		string(creds.Gateway),
		creds.AppID,
		creds.MerchantID,
		creds.SecretKey,
		creds.WebhookSecret,
		creds.PrivateKey,
		creds.PublicKey,
		creds.PublicKeyID,
		creds.SerialNo,
		creds.APIKeyV3,
		creds.BaseURL,
		strconv.FormatBool(creds.IsProd),
	}, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}
