package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
)

// Config holds object storage configuration. Any S3-compatible endpoint works.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
}

// objectPutter is the part of *s3.Client the archive uses.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// archivedIpn is the stored document.
type archivedIpn struct {
	Gateway    model.GatewayType   `json:"gateway"`
	ReceivedAt time.Time           `json:"received_at"`
	Headers    map[string][]string `json:"headers"`
	Body       string              `json:"body"`
}

// IpnArchive implements outbound.IpnArchivePort on S3.
type IpnArchive struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// NewClient creates an S3 client for the configured endpoint.
func NewClient(ctx context.Context, cfg *Config) (*s3.Client, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return nil, errors.New("incomplete storage configuration")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewIpnArchive creates an archive writing under prefix in bucket.
func NewIpnArchive(client *s3.Client, bucket, prefix string) *IpnArchive {
	return newIpnArchive(client, bucket, prefix)
}

func newIpnArchive(client objectPutter, bucket, prefix string) *IpnArchive {
	return &IpnArchive{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Archive stores one notification as JSON under prefix/gateway/date/id.json.
func (a *IpnArchive) Archive(ctx context.Context, gateway model.GatewayType, body []byte, headers map[string][]string) (string, error) {
	now := a.now().UTC()
	key := path.Join(a.prefix, string(gateway), now.Format("2006/01/02"), uuid.NewString()+".json")

	data, err := json.Marshal(archivedIpn{
		Gateway:    gateway,
		ReceivedAt: now,
		Headers:    headers,
		Body:       string(body),
	})
	if err != nil {
		return "", fmt.Errorf("encode ipn: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

// Compile-time check
var _ outbound.IpnArchivePort = (*IpnArchive)(nil)
