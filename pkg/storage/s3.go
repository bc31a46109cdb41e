package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the bucket holding avatars and chat media.
// Endpoint and UsePathStyle let it target MinIO.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	// PublicURL, when set, is where browsers reach the bucket. Read URLs are
	// built from it directly and upload URLs are signed against it.
	PublicURL string `mapstructure:"public_url"`
}

// S3Storage stores objects in an S3 compatible bucket.
type S3Storage struct {
	client    *s3.Client
	reads     *s3.PresignClient
	uploads   *s3.PresignClient
	bucket    string
	publicURL string
}

// NewS3Storage connects to the configured bucket.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := newS3Client(awsCfg, cfg.Endpoint, cfg.UsePathStyle)
	st := &S3Storage{
		client:    client,
		reads:     s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
	}
	st.uploads = st.reads
	if st.publicURL != "" {
		st.uploads = s3.NewPresignClient(newS3Client(awsCfg, st.publicURL, cfg.UsePathStyle))
	}
	return st, nil
}

func newS3Client(awsCfg aws.Config, endpoint string, pathStyle bool) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})
}

func (s *S3Storage) object(key string) (*string, *string) {
	return aws.String(s.bucket), aws.String(key)
}

// isMissing reports whether err is the bucket saying the key does not exist.
// HeadObject returns NotFound, GetObject returns NoSuchKey.
func isMissing(err error) bool {
	var notFound *types.NotFound
	var noKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noKey)
}

func (s *S3Storage) Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	bucket, k := s.object(key)
	in := &s3.PutObjectInput{Bucket: bucket, Key: k, Body: r}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	bucket, k := s.object(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: bucket, Key: k})
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes key. S3 reports success for keys that never existed.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	bucket, k := s.object(key)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: bucket, Key: k}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	bucket, k := s.object(key)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: bucket, Key: k})
	switch {
	case err == nil:
		return true, nil
	case isMissing(err):
		return false, nil
	default:
		return false, fmt.Errorf("head %s: %w", key, err)
	}
}

// GetURL returns the public URL when the bucket is exposed, otherwise a
// presigned GET valid for expires.
func (s *S3Storage) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if s.publicURL != "" {
		return s.publicURL + "/" + strings.TrimPrefix(key, "/"), nil
	}

	bucket, k := s.object(key)
	req, err := s.reads.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: bucket, Key: k},
		s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return req.URL, nil
}

// GetUploadURL presigns a PUT the browser sends the media bytes to. The
// signature covers contentType, so the client must send the same header.
func (s *S3Storage) GetUploadURL(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	bucket, k := s.object(key)
	in := &s3.PutObjectInput{Bucket: bucket, Key: k}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	req, err := s.uploads.PresignPutObject(ctx, in, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return req.URL, nil
}

// TagObject replaces the object's tag set with a single tag. Bucket
// lifecycle rules expire media tagged by deleted messages.
func (s *S3Storage) TagObject(ctx context.Context, key, tagKey, tagValue string) error {
	bucket, k := s.object(key)
	_, err := s.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  bucket,
		Key:     k,
		Tagging: &types.Tagging{TagSet: []types.Tag{{Key: aws.String(tagKey), Value: aws.String(tagValue)}}},
	})
	if err != nil {
		if isMissing(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("tag %s: %w", key, err)
	}
	return nil
}
