package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"pet-diary/internal/ports/blobstore"
)

type Options struct {
	Bucket          string
	Region          string
	Endpoint        string // S3 compatible / emulador; fuerza path-style
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
	MaxUploadBytes  int64
}

// Store implementa blobstore.Store sobre S3.
type Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
	maxSize int64
}

func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(strings.TrimRight(opts.Endpoint, "/"))
			o.UsePathStyle = true
			// emuladores S3 no siempre aceptan checksums por default del SDK
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		}
	})

	return newStore(client, opts, awsCfg.Region), nil
}

func newStore(client *s3.Client, opts Options, region string) *Store {
	base := strings.TrimRight(opts.PublicBaseURL, "/")
	if base == "" {
		if opts.Endpoint != "" {
			base = strings.TrimRight(opts.Endpoint, "/") + "/" + opts.Bucket
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, region)
		}
	}
	return &Store{client: client, bucket: opts.Bucket, baseURL: base, maxSize: opts.MaxUploadBytes}
}

var _ blobstore.Store = (*Store)(nil)

func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (blobstore.Object, error) {
	if !blobstore.ValidKey(key) {
		return blobstore.Object{}, blobstore.ErrInvalidKey
	}

	// body en memoria: el SDK necesita un stream con seek para firmar y calcular checksum
	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return blobstore.Object{}, fmt.Errorf("s3: read body: %w", err)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return blobstore.Object{}, blobstore.ErrTooLarge
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return blobstore.Object{}, fmt.Errorf("s3: put %s: %w", key, err)
	}

	return blobstore.Object{Key: key, URL: s.URL(key), ContentType: contentType, Size: int64(len(data))}, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if !blobstore.ValidKey(key) {
		return blobstore.ErrInvalidKey
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) URL(key string) string {
	return s.baseURL + "/" + key
}

func (s *Store) KeyFromURL(url string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	return key, key != ""
}
