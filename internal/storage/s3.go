package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	PublicURL string
	PathStyle bool
	// Credentials overrides the default provider chain.
	Credentials *credentials.Credentials
}

type S3Backend struct {
	cfg      S3Config
	client   *s3.S3
	uploader *s3manager.Uploader
}

func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg := aws.NewConfig().WithRegion(cfg.Region).WithS3ForcePathStyle(cfg.PathStyle)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	if cfg.Credentials != nil {
		awsCfg = awsCfg.WithCredentials(cfg.Credentials)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	client := s3.New(sess)
	return &S3Backend{
		cfg:      cfg,
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
	}, nil
}

func (b *S3Backend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return Object{}, err
	}

	input := &s3manager.UploadInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(cleaned),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := b.uploader.UploadWithContext(ctx, input); err != nil {
		return Object{}, fmt.Errorf("upload %s: %w", cleaned, err)
	}

	return Object{
		Key:         cleaned,
		Size:        size,
		ContentType: contentType,
		URL:         b.URL(cleaned),
	}, nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	_, err = b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(cleaned),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return fmt.Errorf("%w: %s", ErrNotFound, cleaned)
		}
		return fmt.Errorf("delete %s: %w", cleaned, err)
	}
	return nil
}

func (b *S3Backend) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	err := b.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.cfg.Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			objects = append(objects, Object{
				Key:          key,
				Size:         aws.Int64Value(obj.Size),
				URL:          b.URL(key),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return objects, nil
}

// URL is the public address of key: the configured public base, the
// custom endpoint, or the virtual-hosted AWS address.
func (b *S3Backend) URL(key string) string {
	escaped := escapeKey(key)
	switch {
	case b.cfg.PublicURL != "":
		return strings.TrimRight(b.cfg.PublicURL, "/") + "/" + escaped
	case b.cfg.Endpoint != "":
		return strings.TrimRight(b.cfg.Endpoint, "/") + "/" + b.cfg.Bucket + "/" + escaped
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.cfg.Bucket, b.cfg.Region, escaped)
	}
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
