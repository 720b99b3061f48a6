package storage

import (
	"context"
	"errors"
	"io"

	gstorage "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/kbworks/docingest/internal/pkg/errs"
)

type gcsConfig struct {
	CredentialsFile string `json:"credentials_file"`
	BucketPrefix    string `json:"bucket_prefix"`
}

type gcsClient struct {
	client       *gstorage.Client
	bucketPrefix string
}

func init() {
	Register("gcloud", createGCSClient)
}

func createGCSClient(ctx context.Context, args interface{}) (Client, error) {
	cfg := &gcsConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errs.Wrap(errs.ErrConfiguration, err, "create gcs client")
	}
	return &gcsClient{client: client, bucketPrefix: cfg.BucketPrefix}, nil
}

func (c *gcsClient) FetchObject(ctx context.Context, bucket string, key string) ([]byte, error) {
	reader, err := c.client.Bucket(c.bucketPrefix + bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return nil, errs.Wrapf(errs.ErrNotFound, err, "object %s/%s", bucket, key)
		}
		return nil, errs.Wrapf(errs.ErrBackend, err, "open object %s/%s", bucket, key)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrBackend, err, "read object %s/%s", bucket, key)
	}
	return data, nil
}

func (c *gcsClient) DeleteObject(ctx context.Context, bucket string, key string) error {
	err := c.client.Bucket(c.bucketPrefix + bucket).Object(key).Delete(ctx)
	if err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return errs.Wrapf(errs.ErrNotFound, err, "object %s/%s", bucket, key)
		}
		return errs.Wrapf(errs.ErrBackend, err, "delete object %s/%s", bucket, key)
	}
	return nil
}
