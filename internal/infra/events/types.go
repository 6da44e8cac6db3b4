package events

// Payment event types.
const (
	PaymentStatusChangedType = "payment.status_changed"
	PaymentFlaggedType       = "payment.reconciliation_flagged"
)

// PaymentStatusChanged is published after a status transition is persisted.
type PaymentStatusChanged struct {
	BaseEvent

	TenantID  string `json:"tenant_id"`
	Gateway   string `json:"gateway"`
	Reference string `json:"reference"`
	From      string `json:"from"`
	To        string `json:"to"`
	// Source is what drove the change: create, capture, cancel, chargeback or ipn.
	Source string `json:"source"`
}

// PaymentFlagged is published when a payment is marked for manual reconciliation.
type PaymentFlagged struct {
	BaseEvent

	TenantID  string `json:"tenant_id"`
	Gateway   string `json:"gateway"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}
