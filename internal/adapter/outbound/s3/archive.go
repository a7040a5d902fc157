package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/outbound"
)

// Config holds the archive bucket settings.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
}

// archive implements outbound.ArchivePort on an S3-compatible bucket.
type archive struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewClient creates an S3 client. A custom endpoint switches to path-style
// URLs as R2 and MinIO require.
func NewClient(ctx context.Context, cfg *Config) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("incomplete archive configuration")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
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

// NewArchive creates an archive adapter writing under prefix in bucket.
func NewArchive(client *s3.Client, bucket, prefix string) outbound.ArchivePort {
	return &archive{client: client, bucket: bucket, prefix: prefix}
}

// objectKey returns the key for a snapshot: <prefix><account>/<unix>.json.
func (a *archive) objectKey(snap *model.AccountSnapshot) string {
	return path.Join(a.prefix, fmt.Sprintf("%d", snap.Account.ID), fmt.Sprintf("%d.json", snap.TakenAt.Unix()))
}

func (a *archive) StoreSnapshot(ctx context.Context, snap *model.AccountSnapshot) (string, error) {
	if snap == nil || snap.Account == nil {
		return "", errors.New("empty snapshot")
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	key := a.objectKey(snap)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}

	return "s3://" + a.bucket + "/" + key, nil
}

// Compile-time check
var _ outbound.ArchivePort = (*archive)(nil)
