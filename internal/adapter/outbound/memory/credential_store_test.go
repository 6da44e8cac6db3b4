package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygate/server/internal/model"
	apperrors "github.com/paygate/server/internal/utils/errors"
)

func TestCredentialStore(t *testing.T) {
	ctx := context.Background()
	store := NewCredentialStore(map[string]map[model.GatewayType]*model.GatewayCredentials{
		"default":  {model.GatewayStripe: {Gateway: model.GatewayStripe, SecretKey: "sk_test_default"}},
		"tenant-a": {model.GatewayStripe: {Gateway: model.GatewayStripe, SecretKey: "sk_test_a"}},
	}, "default")

	t.Run("tenant account", func(t *testing.T) {
		creds, err := store.Credentials(ctx, "tenant-a", model.GatewayStripe)
		require.NoError(t, err)
		assert.Equal(t, "sk_test_a", creds.SecretKey)
	})

	t.Run("empty tenant uses the default", func(t *testing.T) {
		creds, err := store.Credentials(ctx, "", model.GatewayStripe)
		require.NoError(t, err)
		assert.Equal(t, "sk_test_default", creds.SecretKey)
	})

	t.Run("missing account", func(t *testing.T) {
		_, err := store.Credentials(ctx, "tenant-a", model.GatewayWechat)
		assert.ErrorIs(t, err, apperrors.ErrAuthConfig)

		_, err = store.Credentials(ctx, "tenant-b", model.GatewayStripe)
		assert.ErrorIs(t, err, apperrors.ErrAuthConfig)
	})

	t.Run("returns a copy", func(t *testing.T) {
		creds, err := store.Credentials(ctx, "tenant-a", model.GatewayStripe)
		require.NoError(t, err)
		creds.SecretKey = "changed"

		again, err := store.Credentials(ctx, "tenant-a", model.GatewayStripe)
		require.NoError(t, err)
		assert.Equal(t, "sk_test_a", again.SecretKey)
	})
}
