package postgres

import (
	"context"
	"fmt"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	"gorm.io/gorm"
)

// ipnAuditAdapter implements outbound.IpnAuditDatabasePort.
type ipnAuditAdapter struct {
	db *gorm.DB
}

// NewIpnAuditAdapter creates a new IPN audit database adapter.
func NewIpnAuditAdapter(db *gorm.DB) outbound.IpnAuditDatabasePort {
	return &ipnAuditAdapter{db: db}
}

func (a *ipnAuditAdapter) Create(ctx context.Context, audit *model.IpnAudit) error {
	if err := a.db.WithContext(ctx).Create(audit).Error; err != nil {
		return fmt.Errorf("create ipn audit: %w", err)
	}
	return nil
}

func (a *ipnAuditAdapter) FindByReference(ctx context.Context, gateway model.GatewayType, reference string) ([]*model.IpnAudit, error) {
	var audits []*model.IpnAudit
	err := a.db.WithContext(ctx).
		Where("gateway = ? AND reference = ?", gateway, reference).
		Order("received_at DESC").
		Find(&audits).Error
	if err != nil {
		return nil, fmt.Errorf("find ipn audits: %w", err)
	}
	return audits, nil
}

// Compile-time check
var _ outbound.IpnAuditDatabasePort = (*ipnAuditAdapter)(nil)
