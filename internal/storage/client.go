package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned by Get when the bucket holds no object under the key.
var ErrNotFound = errors.New("object not found")

const deletedMetadataKey = "deleted"

type Object struct {
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Deleted reports whether the object carries the deleted=true metadata flag.
func (o Object) Deleted() bool {
	for key, value := range o.Metadata {
		if strings.EqualFold(key, deletedMetadataKey) {
			return strings.EqualFold(strings.TrimSpace(value), "true")
		}
	}
	return false
}

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	UseSSL   bool
}

type Client struct {
	minio *minio.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("endpoint is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Client{minio: mc}, nil
}

func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.minio.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minio.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := c.minio.BucketExists(ctx, bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}

	return nil
}

func (c *Client) Get(ctx context.Context, bucket, key string) (Object, error) {
	obj, err := c.minio.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return Object{}, translateError(bucket, key, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return Object{}, translateError(bucket, key, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return Object{}, fmt.Errorf("read object %s/%s: %w", bucket, key, err)
	}

	return Object{
		Data:        data,
		ContentType: info.ContentType,
		Metadata:    info.UserMetadata,
	}, nil
}

func (c *Client) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := c.minio.PutObject(
		ctx,
		bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

func translateError(bucket, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject" {
		return fmt.Errorf("get object %s/%s: %w", bucket, key, ErrNotFound)
	}
	return fmt.Errorf("get object %s/%s: %w", bucket, key, err)
}
