package config

import "github.com/paygate/server/internal/model"

// GatewayCredentials flattens the tenants section into per-gateway credentials.
// Empty sections are left out so missing accounts surface as AuthConfig errors.
func (c *Config) GatewayCredentials() map[string]map[model.GatewayType]*model.GatewayCredentials {
	out := make(map[string]map[model.GatewayType]*model.GatewayCredentials, len(c.Tenants))
	for tenantID, t := range c.Tenants {
		creds := t.credentials()
		if len(creds) > 0 {
			out[tenantID] = creds
		}
	}
	return out
}

func (t TenantConfig) credentials() map[model.GatewayType]*model.GatewayCredentials {
	creds := make(map[model.GatewayType]*model.GatewayCredentials)
	if t.Stripe != (StripeConfig{}) {
		creds[model.GatewayStripe] = &model.GatewayCredentials{
			Gateway:       model.GatewayStripe,
			SecretKey:     t.Stripe.SecretKey,
			WebhookSecret: t.Stripe.WebhookSecret,
			BaseURL:       t.Stripe.BaseURL,
		}
	}
	if t.MercadoPago != (MercadoPagoConfig{}) {
		creds[model.GatewayMercadoPago] = &model.GatewayCredentials{
			Gateway:       model.GatewayMercadoPago,
			SecretKey:     t.MercadoPago.AccessToken,
			WebhookSecret: t.MercadoPago.WebhookSecret,
			BaseURL:       t.MercadoPago.BaseURL,
		}
	}
	if t.Alipay != (AlipayConfig{}) {
		creds[model.GatewayAlipay] = &model.GatewayCredentials{
			Gateway:    model.GatewayAlipay,
			AppID:      t.Alipay.AppID,
			PrivateKey: t.Alipay.PrivateKey,
			PublicKey:  t.Alipay.AlipayPublicKey,
			IsProd:     t.Alipay.IsProd,
		}
	}
	if t.Wechat != (WechatConfig{}) {
		creds[model.GatewayWechat] = &model.GatewayCredentials{
			Gateway:     model.GatewayWechat,
			AppID:       t.Wechat.AppID,
			MerchantID:  t.Wechat.MchID,
			APIKeyV3:    t.Wechat.APIKeyV3,
			SerialNo:    t.Wechat.SerialNo,
			PrivateKey:  t.Wechat.PrivateKey,
			PublicKeyID: t.Wechat.WechatPublicKeySerial,
			PublicKey:   t.Wechat.WechatPublicKey,
			IsProd:      t.Wechat.IsProd,
		}
	}
	return creds
}
