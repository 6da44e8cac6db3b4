// Package gateway holds the pieces shared by every payment gateway adapter:
// status translation, the gateway registry, the circuit breaker decorator
// and the credential-keyed client cache.
package gateway

import (
	"go.uber.org/zap"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/utils/metrics"
)

const (
	vocabularyAuthorize = "authorize"
	vocabularyIpn       = "ipn"
)

// Translator maps a gateway's native statuses to canonical ones.
// Adapters embed it. Tables are read-only after construction.
type Translator struct {
	gateway  model.GatewayType
	statuses model.StatusTable
	details  model.DetailTable
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewTranslator creates a translator over the gateway's tables.
func NewTranslator(gateway model.GatewayType, statuses model.StatusTable, details model.DetailTable, logger *zap.Logger, m *metrics.Metrics) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{
		gateway:  gateway,
		statuses: statuses,
		details:  details,
		logger:   logger.With(zap.String("gateway", string(gateway))),
		metrics:  m,
	}
}

// Type returns the gateway identifier.
func (t *Translator) Type() model.GatewayType {
	return t.gateway
}

// StatusMap returns the authorize and IPN status tables.
func (t *Translator) StatusMap() model.StatusTable {
	return t.statuses
}

// StatusDetailsMap returns the authorize and IPN detail tables.
func (t *Translator) StatusDetailsMap() model.DetailTable {
	return t.details
}

// TranslateAuthorizeStatus maps a status from a create, capture or cancel response.
func (t *Translator) TranslateAuthorizeStatus(native string) model.CanonicalStatus {
	return t.status(t.statuses.Authorize, vocabularyAuthorize, native)
}

// TranslateAuthorizeStatusDetail maps a detail from a create, capture or cancel response.
func (t *Translator) TranslateAuthorizeStatusDetail(native, detail string) model.StatusDetail {
	return t.detail(t.details.Authorize, vocabularyAuthorize, native, detail)
}

// TranslateIpnStatus maps a status from a notification.
func (t *Translator) TranslateIpnStatus(native string) model.CanonicalStatus {
	return t.status(t.statuses.Ipn, vocabularyIpn, native)
}

// TranslateIpnStatusDetail maps a detail from a notification.
func (t *Translator) TranslateIpnStatusDetail(native, detail string) model.StatusDetail {
	return t.detail(t.details.Ipn, vocabularyIpn, native, detail)
}

func (t *Translator) status(table model.StatusMap, vocabulary, native string) model.CanonicalStatus {
	if s, ok := table[native]; ok {
		return s
	}
	t.logger.Warn("unknown native status",
		zap.String("vocabulary", vocabulary),
		zap.String("native_status", native),
	)
	t.metrics.RecordUnknownStatus(string(t.gateway), vocabulary)
	return model.StatusUnknown
}

// detail looks up the detail code first, then the status itself.
func (t *Translator) detail(table model.StatusDetailMap, vocabulary, native, detail string) model.StatusDetail {
	if detail != "" {
		if d, ok := table[detail]; ok {
			return d
		}
	}
	if d, ok := table[native]; ok {
		return d
	}
	t.logger.Debug("unknown native status detail",
		zap.String("vocabulary", vocabulary),
		zap.String("native_status", native),
		zap.String("native_detail", detail),
	)
	return model.UnknownStatusDetail
}
