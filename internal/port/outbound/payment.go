package outbound

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/paygate/server/internal/model"
)

// ErrStaleUpdate is returned when a compare-and-swap update lost the race.
var ErrStaleUpdate = errors.New("payment changed since it was read")

// PaymentDatabasePort defines payment persistence operations.
type PaymentDatabasePort interface {
	// Create creates a new payment record.
	Create(ctx context.Context, payment *model.Payment) error

	// FindByID finds a payment by ID.
	FindByID(ctx context.Context, id uuid.UUID) (*model.Payment, error)

	// FindByReference finds a payment by gateway reference.
	FindByReference(ctx context.Context, gateway model.GatewayType, reference string) (*model.Payment, error)

	// FindByRequestID finds a payment by the caller's idempotency key.
	FindByRequestID(ctx context.Context, tenantID, requestID string) (*model.Payment, error)

	// FindByFilter finds payments by filter.
	FindByFilter(ctx context.Context, filter model.PaymentFilter) ([]*model.Payment, int64, error)

	// UpdateStatus writes the payment if its stored version still equals expectedVersion,
	// then bumps the version. Returns ErrStaleUpdate otherwise.
	UpdateStatus(ctx context.Context, payment *model.Payment, expectedVersion int64) error
}

// IpnAuditDatabasePort records received notifications.
type IpnAuditDatabasePort interface {
	// Create creates a new audit record.
	Create(ctx context.Context, audit *model.IpnAudit) error

	// FindByReference lists the notifications received for a payment, newest first.
	FindByReference(ctx context.Context, gateway model.GatewayType, reference string) ([]*model.IpnAudit, error)
}

// ReferenceLockerPort serializes work on one key across goroutines and processes.
type ReferenceLockerPort interface {
	// Lock blocks until the key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// IpnArchivePort stores raw notification payloads for later inspection.
type IpnArchivePort interface {
	// Archive stores the payload and returns its key.
	Archive(ctx context.Context, gateway model.GatewayType, body []byte, headers map[string][]string) (string, error)
}
