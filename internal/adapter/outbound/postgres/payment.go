package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	"gorm.io/gorm"
)

// paymentAdapter implements outbound.PaymentDatabasePort.
type paymentAdapter struct {
	db *gorm.DB
}

// NewPaymentAdapter creates a new payment database adapter.
func NewPaymentAdapter(db *gorm.DB) outbound.PaymentDatabasePort {
	return &paymentAdapter{db: db}
}

func (a *paymentAdapter) Create(ctx context.Context, payment *model.Payment) error {
	if payment.Version == 0 {
		payment.Version = 1
	}
	if err := a.db.WithContext(ctx).Create(payment).Error; err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func (a *paymentAdapter) FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return a.first(ctx, "find payment by id", "id = ?", id)
}

func (a *paymentAdapter) FindByReference(ctx context.Context, gateway model.GatewayType, reference string) (*model.Payment, error) {
	return a.first(ctx, "find payment by reference", "gateway = ? AND reference = ?", gateway, reference)
}

func (a *paymentAdapter) FindByRequestID(ctx context.Context, tenantID, requestID string) (*model.Payment, error) {
	return a.first(ctx, "find payment by request id", "tenant_id = ? AND request_id = ?", tenantID, requestID)
}

func (a *paymentAdapter) first(ctx context.Context, op string, query string, args ...any) (*model.Payment, error) {
	var payment model.Payment
	err := a.db.WithContext(ctx).Where(query, args...).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &payment, nil
}

func (a *paymentAdapter) FindByFilter(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, int64, error) {
	var payments []*model.Payment
	var total int64

	query := a.db.WithContext(ctx).Model(&model.Payment{}).Where("tenant_id = ?", filter.TenantID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Gateway != "" {
		query = query.Where("gateway = ?", filter.Gateway)
	}
	if filter.NeedsReconciliation != nil {
		query = query.Where("needs_reconciliation = ?", *filter.NeedsReconciliation)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	filter.DefaultPagination()
	if err := query.Offset(filter.Offset()).Limit(filter.PageSize).Order("created_at DESC").Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("find payments: %w", err)
	}

	return payments, total, nil
}

// UpdateStatus is a compare-and-swap on version. Only the lifecycle columns
// are written; the request snapshot never changes after create.
func (a *paymentAdapter) UpdateStatus(ctx context.Context, payment *model.Payment, expectedVersion int64) error {
	metadata, err := json.Marshal(payment.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	now := time.Now()
	result := a.db.WithContext(ctx).
		Model(&model.Payment{}).
		Where("id = ? AND version = ?", payment.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":                payment.Status,
			"status_detail":         payment.StatusDetail,
			"native_status":         payment.NativeStatus,
			"captured_amount":       payment.CapturedAmount,
			"metadata":              string(metadata),
			"status_trail":          payment.StatusTrail,
			"needs_reconciliation":  payment.NeedsReconciliation,
			"reconciliation_reason": payment.ReconciliationReason,
			"version":               expectedVersion + 1,
			"updated_at":            now,
		})
	if result.Error != nil {
		return fmt.Errorf("update payment status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return outbound.ErrStaleUpdate
	}
	payment.Version = expectedVersion + 1
	payment.UpdatedAt = now
	return nil
}

// Compile-time check
var _ outbound.PaymentDatabasePort = (*paymentAdapter)(nil)
