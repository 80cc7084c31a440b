package yolomark

// S3 bucket output.

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// S3Options configures an S3Sink.
type S3Options struct {
	Endpoint        string // Empty uses the AWS endpoint for Region.
	AccessKeyID     string // Empty uses the default credential chain.
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Region          string
	Prefix          string // Key prefix that all names are written under.
}

// S3Sink writes objects into an S3 bucket. Directories do not exist in S3, so MkdirAll does
// nothing.
type S3Sink struct {
	client *s3.Client
	opts   S3Options
	log    *zap.Logger
}

// endpointURL returns the endpoint with a scheme, adding one from useSSL when missing.
func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// NewS3Sink creates the client and the bucket, if it does not exist yet.
func NewS3Sink(ctx context.Context, opts S3Options, log *zap.Logger) (*S3Sink, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("missing S3 bucket name")
	}
	if log == nil {
		log = zap.NewNop()
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load the AWS config: %w", err)
	}

	endpoint := endpointURL(opts.Endpoint, opts.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	sink := &S3Sink{client: client, opts: opts, log: log}
	if err := sink.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("bucket %q is not usable: %w", opts.Bucket, err)
	}

	return sink, nil
}

func (s *S3Sink) ensureBucketExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.opts.Bucket)})
	if err == nil {
		return nil
	}

	s.log.Info("Creating bucket", zap.String("bucket", s.opts.Bucket))
	input := &s3.CreateBucketInput{Bucket: aws.String(s.opts.Bucket)}
	// us-east-1 rejects an explicit location constraint.
	if s.opts.Region != "" && s.opts.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.opts.Region),
		}
	}
	_, err = s.client.CreateBucket(ctx, input)
	return err
}

// key returns the object key for name.
func (s *S3Sink) key(name string) string {
	return path.Join(s.opts.Prefix, name)
}

// MkdirAll implements Sink.
func (s *S3Sink) MkdirAll(context.Context, string) error {
	return nil
}

// WriteFile implements Sink.
func (s *S3Sink) WriteFile(ctx context.Context, name string, data []byte) error {
	key := s.key(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType(name)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %q: %w", key, err)
	}

	s.log.Debug("Object uploaded", zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

// CopyFile implements Sink.
func (s *S3Sink) CopyFile(ctx context.Context, name, src string) (err error) {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(f, &err)

	info, err := f.Stat()
	if err != nil {
		return err
	}

	key := s.key(name)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(name)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %q: %w", key, err)
	}

	s.log.Debug("Object uploaded", zap.String("key", key), zap.Int64("size", info.Size()))
	return nil
}

func (s *S3Sink) String() string {
	return "s3://" + path.Join(s.opts.Bucket, s.opts.Prefix)
}

// contentType guesses the object content type from the extension of name.
func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}
