// Package archive keeps a copy of raw webhook payloads in object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the slice of the S3 client the archiver needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
}

func NewS3Archiver(client ObjectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// NewS3ArchiverFromSettings builds a client from the default AWS credential
// chain.
func NewS3ArchiverFromSettings(ctx context.Context, cfg config.ArchiveSettings) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is not configured")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3Archiver(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Prefix), nil
}

// Key is prefix/provider/eventID.json.
func (a *S3Archiver) Key(provider, eventID string) string {
	return path.Join(a.prefix, provider, eventID+".json")
}

func (a *S3Archiver) Archive(ctx context.Context, provider, eventID string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(provider, eventID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s event %s: %w", provider, eventID, err)
	}
	return nil
}
