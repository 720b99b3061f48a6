package storage

import (
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kbworks/docingest/internal/pkg/errs"
)

// s3Config covers the whole S3-compatible family: AWS proper, Cloudflare R2,
// and a local MinIO. BucketPrefix is prepended to every bucket name so one
// deployment project can namespace its buckets.
type s3Config struct {
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	BucketPrefix    string `json:"bucket_prefix"`
	UsePathStyle    bool   `json:"use_path_style"`
}

type s3Client struct {
	client       *s3.Client
	bucketPrefix string
}

func init() {
	Register("aws", createAWSClient)
	Register("r2", createR2Client)
	Register("local", createLocalClient)
}

func createAWSClient(ctx context.Context, args interface{}) (Client, error) {
	cfg := &s3Config{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		return nil, errs.New(errs.ErrConfiguration, "aws region is required")
	}
	return newS3Client(ctx, cfg)
}

func createR2Client(ctx context.Context, args interface{}) (Client, error) {
	cfg := &s3Config{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errs.New(errs.ErrConfiguration, "r2 endpoint/access_key_id/secret_access_key are required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	return newS3Client(ctx, cfg)
}

func createLocalClient(ctx context.Context, args interface{}) (Client, error) {
	cfg := &s3Config{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errs.New(errs.ErrConfiguration, "minio endpoint/access_key_id/secret_access_key are required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	// MinIO requires path-style addressing.
	cfg.UsePathStyle = true
	return newS3Client(ctx, cfg)
}

func newS3Client(ctx context.Context, cfg *s3Config) (Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "load aws config")
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &s3Client{client: client, bucketPrefix: cfg.BucketPrefix}, nil
}

func (c *s3Client) FetchObject(ctx context.Context, bucket string, key string) ([]byte, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketPrefix + bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errs.Wrapf(errs.ErrNotFound, err, "object %s/%s", bucket, key)
		}
		return nil, errs.Wrapf(errs.ErrBackend, err, "get object %s/%s", bucket, key)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrBackend, err, "read object %s/%s", bucket, key)
	}
	return data, nil
}

func (c *s3Client) DeleteObject(ctx context.Context, bucket string, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucketPrefix + bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errs.Wrapf(errs.ErrBackend, err, "delete object %s/%s", bucket, key)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var noSuchBucket *s3types.NoSuchBucket
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) || errors.As(err, &notFound)
}
