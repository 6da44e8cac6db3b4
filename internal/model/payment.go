package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// CanonicalStatus is the provider-agnostic payment lifecycle state.
type CanonicalStatus string

const (
	StatusCreated     CanonicalStatus = "created"
	StatusPending     CanonicalStatus = "pending"
	StatusAuthorized  CanonicalStatus = "authorized"
	StatusCaptured    CanonicalStatus = "captured"
	StatusCancelled   CanonicalStatus = "cancelled"
	StatusFailed      CanonicalStatus = "failed"
	StatusChargedBack CanonicalStatus = "charged_back"
	StatusRefunded    CanonicalStatus = "refunded"

	// StatusUnknown is only produced by translation. It is never stored.
	StatusUnknown CanonicalStatus = "unknown"
)

// IsTerminal returns true if no further transition is possible.
func (s CanonicalStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusFailed ||
		s == StatusChargedBack || s == StatusRefunded
}

// IsKnown returns true for every status except unknown and empty.
func (s CanonicalStatus) IsKnown() bool {
	return s != "" && s != StatusUnknown
}

// CanTransitionTo returns true if the status can move forward to target.
// Equal statuses are not transitions and return false.
func (s CanonicalStatus) CanTransitionTo(target CanonicalStatus) bool {
	switch s {
	case StatusCreated:
		return target == StatusPending || target == StatusAuthorized ||
			target == StatusCaptured || target == StatusCancelled || target == StatusFailed
	case StatusPending:
		return target == StatusAuthorized || target == StatusCaptured ||
			target == StatusCancelled || target == StatusFailed
	case StatusAuthorized:
		return target == StatusCaptured || target == StatusCancelled || target == StatusFailed
	case StatusCaptured:
		return target == StatusChargedBack || target == StatusRefunded
	default:
		return false
	}
}

// StatusDetail is a translated status detail.
type StatusDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UnknownStatusDetail is returned for undocumented detail codes.
var UnknownStatusDetail = StatusDetail{Code: "unknown", Message: "Unrecognized gateway status"}

// StatusMap maps native status codes to canonical statuses.
type StatusMap map[string]CanonicalStatus

// StatusDetailMap maps native detail codes to canonical details.
type StatusDetailMap map[string]StatusDetail

// StatusTable holds the two status vocabularies of a gateway.
type StatusTable struct {
	Authorize StatusMap
	Ipn       StatusMap
}

// DetailTable holds the two detail vocabularies of a gateway.
type DetailTable struct {
	Authorize StatusDetailMap
	Ipn       StatusDetailMap
}

// Metadata is audit data attached to a payment. It only grows.
type Metadata map[string]string

// Merge returns a new Metadata with other's entries added on top of m.
func (m Metadata) Merge(other Metadata) Metadata {
	out := make(Metadata, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		if v == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// CardData is a tokenized card. The token is never persisted.
type CardData struct {
	Token      string `json:"-"`
	HolderName string `json:"holder_name"`
	Brand      string `json:"brand,omitempty"`
	LastFour   string `json:"last_four,omitempty"`
}

// Buyer describes the paying customer.
type Buyer struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Document     string `json:"document,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	IP           string `json:"ip,omitempty"`
}

// CartItem is one shopping cart line.
type CartItem struct {
	SKU       string          `json:"sku"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// PaymentRequest is the immutable description of a payment to create.
type PaymentRequest struct {
	TenantID        string          `json:"tenant_id"`
	RequestID       string          `json:"request_id"`
	Gateway         GatewayType     `json:"gateway"`
	Method          MethodType      `json:"method"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description"`
	Installments    int             `json:"installments,omitempty"`
	Scene           PaymentScene    `json:"scene,omitempty"`
	Card            *CardData       `json:"card,omitempty"`
	Buyer           Buyer           `json:"buyer"`
	Items           []CartItem      `json:"items,omitempty"`
	NotificationURL string          `json:"notification_url,omitempty"`
	ReturnURL       string          `json:"return_url,omitempty"`
}

// Money returns the request amount with its currency.
func (r *PaymentRequest) Money() Money {
	return Money{Amount: r.Amount, Currency: r.Currency}
}

// Payment is the stored state of one payment.
type Payment struct {
	ID                   uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID             string          `json:"tenant_id" gorm:"not null;uniqueIndex:idx_tenant_request"`
	RequestID            string          `json:"request_id" gorm:"not null;uniqueIndex:idx_tenant_request"`
	Gateway              GatewayType     `json:"gateway" gorm:"not null;uniqueIndex:idx_gateway_reference"`
	Method               MethodType      `json:"method" gorm:"not null"`
	Reference            string          `json:"reference" gorm:"not null;uniqueIndex:idx_gateway_reference"`
	Status               CanonicalStatus `json:"status" gorm:"not null;default:created;index"`
	StatusDetail         string          `json:"status_detail,omitempty"`
	NativeStatus         string          `json:"native_status,omitempty"`
	Amount               decimal.Decimal `json:"amount" gorm:"type:numeric(20,4);not null"`
	CapturedAmount       decimal.Decimal `json:"captured_amount" gorm:"type:numeric(20,4);not null;default:0"`
	Currency             string          `json:"currency" gorm:"size:3;not null"`
	Request              *PaymentRequest `json:"-" gorm:"type:jsonb;serializer:json"`
	Metadata             Metadata        `json:"metadata" gorm:"type:jsonb;serializer:json"`
	StatusTrail          pq.StringArray  `json:"status_trail" gorm:"type:text[]"`
	NeedsReconciliation  bool            `json:"needs_reconciliation" gorm:"not null;default:false;index"`
	ReconciliationReason string          `json:"reconciliation_reason,omitempty"`
	Version              int64           `json:"-" gorm:"not null;default:1"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Payment) TableName() string {
	return "payments"
}

// AppendTrail records a status change in the trail.
func (p *Payment) AppendTrail(status CanonicalStatus, source string, at time.Time) {
	p.StatusTrail = append(p.StatusTrail, string(status)+"@"+source+"@"+at.UTC().Format(time.RFC3339))
}

// IpnOutcome is what happened to a received notification.
type IpnOutcome string

const (
	IpnOutcomeApplied           IpnOutcome = "applied"
	IpnOutcomeDuplicate         IpnOutcome = "duplicate"
	IpnOutcomeIllegalTransition IpnOutcome = "illegal_transition"
	IpnOutcomeUnknownStatus     IpnOutcome = "unknown_status"
	IpnOutcomeUnmatched         IpnOutcome = "unmatched"
	IpnOutcomeAuthFailed        IpnOutcome = "auth_failed"
	IpnOutcomeParseFailed       IpnOutcome = "parse_failed"
	IpnOutcomeError             IpnOutcome = "error"
)

// IpnAudit records one received notification.
type IpnAudit struct {
	ID           uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID     string      `json:"tenant_id" gorm:"index"`
	Gateway      GatewayType `json:"gateway" gorm:"not null;index"`
	EventID      string      `json:"event_id,omitempty"`
	Reference    string      `json:"reference,omitempty" gorm:"index"`
	NativeStatus string      `json:"native_status,omitempty"`
	Outcome      IpnOutcome  `json:"outcome" gorm:"not null;index"`
	Error        string      `json:"error,omitempty"`
	ArchiveKey   string      `json:"archive_key,omitempty"`
	ReceivedAt   time.Time   `json:"received_at"`
}

// TableName returns the table name for GORM.
func (IpnAudit) TableName() string {
	return "ipn_audits"
}

// PaymentResult is what the lifecycle operations return to callers.
type PaymentResult struct {
	PaymentID    uuid.UUID       `json:"payment_id"`
	Gateway      GatewayType     `json:"gateway"`
	Method       MethodType      `json:"method"`
	Reference    string          `json:"reference"`
	Status       CanonicalStatus `json:"status"`
	StatusDetail StatusDetail    `json:"status_detail"`
	Action       ActionType      `json:"action"`
	Metadata     Metadata        `json:"metadata"`
}

// NewPaymentResult builds a result from a stored payment.
func NewPaymentResult(p *Payment, action ActionType, detail StatusDetail) *PaymentResult {
	return &PaymentResult{
		PaymentID:    p.ID,
		Gateway:      p.Gateway,
		Method:       p.Method,
		Reference:    p.Reference,
		Status:       p.Status,
		StatusDetail: detail,
		Action:       action,
		Metadata:     p.Metadata,
	}
}
