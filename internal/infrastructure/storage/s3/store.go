package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kirillkom/renewal-tracker/internal/core/domain"
)

type Options struct {
	Region   string
	Bucket   string
	Prefix   string
	KMSKeyID string
	// Endpoint targets an S3-compatible server such as MinIO. Path-style
	// addressing is used when it is set.
	Endpoint string
}

// Store implements the blob store on Amazon S3.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	kmsKeyID  string
}

func New(ctx context.Context, opts Options) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithConfig(cfg, opts)
}

func NewWithConfig(cfg aws.Config, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    opts.Bucket,
		prefix:    normalizePrefix(opts.Prefix),
		kmsKeyID:  strings.TrimSpace(opts.KMSKeyID),
	}, nil
}

// Put uploads a new object. The write is conditional so an existing key is
// never replaced.
func (s *Store) Put(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	objectKey := applyPrefix(s.prefix, key)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        data,
		IfNoneMatch: aws.String("*"),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if s.kmsKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	} else {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", mapError("s3 put object", s.bucket, objectKey, err)
	}
	return key, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	objectKey := applyPrefix(s.prefix, key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, mapError("s3 get object", s.bucket, objectKey, err)
	}
	return out.Body, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	objectKey := applyPrefix(s.prefix, key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		mapped := mapError("s3 delete object", s.bucket, objectKey, err)
		if domain.IsKind(mapped, domain.ErrDocumentNotFound) {
			return nil
		}
		return mapped
	}
	return nil
}

func (s *Store) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	objectKey := applyPrefix(s.prefix, key)
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 presign bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return req.URL, nil
}

func mapError(op, bucket, key string, err error) error {
	wrapped := fmt.Errorf("%s bucket=%s key=%s: %w", op, bucket, key, err)

	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return domain.WrapError(domain.ErrDocumentNotFound, op, wrapped)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return domain.WrapError(domain.ErrDocumentNotFound, op, wrapped)
		case "PreconditionFailed", "ConditionalRequestConflict":
			return domain.WrapError(domain.ErrConflict, op, wrapped)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return domain.WrapError(domain.ErrTemporary, op, wrapped)
		}
	}
	return wrapped
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}
