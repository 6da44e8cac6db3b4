package requestctx

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	idempotencyKey
	tenantIDKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

func RequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithIdempotencyKey sets the key gateways send with capture and cancel calls.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return withString(ctx, idempotencyKey, key)
}

func IdempotencyKey(ctx context.Context) string {
	return stringValue(ctx, idempotencyKey)
}

func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return withString(ctx, tenantIDKey, tenantID)
}

func TenantID(ctx context.Context) string {
	return stringValue(ctx, tenantIDKey)
}

func withString(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(key); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
