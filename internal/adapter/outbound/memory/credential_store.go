package memory

import (
	"context"
	"fmt"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
	apperrors "github.com/paygate/server/internal/utils/errors"
)

// credentialStore serves gateway credentials loaded at startup.
type credentialStore struct {
	tenants       map[string]map[model.GatewayType]*model.GatewayCredentials
	defaultTenant string
}

// NewCredentialStore creates a read-only credential store.
// Requests without a tenant resolve against defaultTenant.
func NewCredentialStore(tenants map[string]map[model.GatewayType]*model.GatewayCredentials, defaultTenant string) outbound.CredentialStorePort {
	return &credentialStore{tenants: tenants, defaultTenant: defaultTenant}
}

func (s *credentialStore) Credentials(_ context.Context, tenantID string, gateway model.GatewayType) (*model.GatewayCredentials, error) {
	if tenantID == "" {
		tenantID = s.defaultTenant
	}
	creds, ok := s.tenants[tenantID][gateway]
	if !ok {
		return nil, apperrors.AuthConfig(string(gateway), fmt.Errorf("no account for tenant %q", tenantID))
	}
	cp := *creds
	return &cp, nil
}

// Compile-time check
var _ outbound.CredentialStorePort = (*credentialStore)(nil)
