package gateway

import (
	"strings"

	"github.com/google/uuid"
)

// TradeNo derives a 32-character merchant trade number from the tenant and
// request id. Gateways that take a merchant-chosen order number use it as the
// reference, so a retried create names the same trade.
func TradeNo(tenantID, requestID string) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(tenantID+":"+requestID))
	return strings.ReplaceAll(id.String(), "-", "")
}
