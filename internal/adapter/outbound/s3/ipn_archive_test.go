package s3

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paygate/server/internal/model"
)

type MockObjectPutter struct {
	mock.Mock
}

func (m *MockObjectPutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func TestIpnArchive_Archive(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)

	t.Run("stores body and headers", func(t *testing.T) {
		putter := new(MockObjectPutter)
		archive := newIpnArchive(putter, "ipn-bucket", "ipn")
		archive.now = func() time.Time { return fixed }

		var input *s3.PutObjectInput
		putter.On("PutObject", ctx, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			input = in
			return aws.ToString(in.Bucket) == "ipn-bucket" &&
				strings.HasPrefix(aws.ToString(in.Key), "ipn/stripe/2026/03/09/") &&
				strings.HasSuffix(aws.ToString(in.Key), ".json")
		})).Return(&s3.PutObjectOutput{}, nil)

		key, err := archive.Archive(ctx, model.GatewayStripe, []byte(`{"id":"evt_1"}`), map[string][]string{
			"Stripe-Signature": {"t=1,v1=abc"},
		})
		require.NoError(t, err)
		assert.Equal(t, key, aws.ToString(input.Key))

		data, err := io.ReadAll(input.Body)
		require.NoError(t, err)
		var stored archivedIpn
		require.NoError(t, json.Unmarshal(data, &stored))
		assert.Equal(t, `{"id":"evt_1"}`, stored.Body)
		assert.Equal(t, []string{"t=1,v1=abc"}, stored.Headers["Stripe-Signature"])
		assert.Equal(t, fixed, stored.ReceivedAt)
		putter.AssertExpectations(t)
	})

	t.Run("put failure", func(t *testing.T) {
		putter := new(MockObjectPutter)
		archive := newIpnArchive(putter, "ipn-bucket", "ipn")
		putter.On("PutObject", ctx, mock.Anything).Return(nil, errors.New("access denied"))

		_, err := archive.Archive(ctx, model.GatewayWechat, []byte("x"), nil)
		assert.ErrorContains(t, err, "access denied")
	})
}

func TestNewClient_IncompleteConfig(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{Bucket: "b"})
	assert.Error(t, err)
}
