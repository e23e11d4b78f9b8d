package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config points at an S3-compatible bucket (AWS, MinIO, R2...).
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string // optional; set for non-AWS hosts, enables path-style addressing
	AccessKey     string // optional; the default AWS credential chain is used when empty
	SecretKey     string
	PublicBaseURL string // optional; base of the URL objects are served from
	UploadTTL     time.Duration
}

type objectDeleter interface {
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type putPresigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store deletes objects and signs direct uploads.
type S3Store struct {
	client    objectDeleter
	presigner putPresigner
	bucket    string
	baseURL   string
	uploadTTL time.Duration
	now       func() time.Time
}

// NewS3Store loads AWS configuration and builds the client.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("media: S3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, s3.NewPresignClient(client), cfg), nil
}

func newS3Store(client objectDeleter, presigner putPresigner, cfg S3Config) *S3Store {
	ttl := cfg.UploadTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	base := cfg.PublicBaseURL
	if base == "" {
		switch {
		case cfg.Endpoint != "":
			base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
		default:
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &S3Store{
		client:    client,
		presigner: presigner,
		bucket:    cfg.Bucket,
		baseURL:   strings.TrimRight(base, "/"),
		uploadTTL: ttl,
		now:       time.Now,
	}
}

// Destroy implements Destroyer. Deleting a missing key succeeds on S3.
func (s *S3Store) Destroy(ctx context.Context, publicID string) error {
	if publicID == "" {
		return errors.New("media: empty public id")
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return fmt.Errorf("media: deleting %s: %w", publicID, err)
	}
	return nil
}

// PresignUpload reserves a fresh key under recipes/<ownerID>/ and signs a
// PUT for it.
func (s *S3Store) PresignUpload(ctx context.Context, ownerID string) (*Upload, error) {
	key := Key(ownerID, uuid.NewString())

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.uploadTTL))
	if err != nil {
		return nil, fmt.Errorf("media: presigning upload: %w", err)
	}

	return &Upload{
		PublicID:  key,
		UploadURL: req.URL,
		URL:       s.baseURL + "/" + key,
		ExpiresAt: s.now().Add(s.uploadTTL).UTC(),
	}, nil
}
