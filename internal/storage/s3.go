package storage

import (
	"context"
	"encoding/json"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/skyfay/dbackup/internal/apperr"
)

// s3Config is the "config" JSON shape for the S3-compatible backend.
type s3Config struct {
	Endpoint   string `json:"endpoint"`
	Bucket     string `json:"bucket"`
	Region     string `json:"region"`
	UseSSL     bool   `json:"use_ssl"`
	PathPrefix string `json:"path_prefix"`
}

// s3Credentials is the "credentials" JSON shape for the S3-compatible backend.
type s3Credentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

type s3Adapter struct {
	client *minio.Client
	bucket string
	prefix string
}

func buildS3(cfg Config) (Adapter, error) {
	var sc s3Config
	if err := unmarshalConfig(cfg.ConfigJSON, &sc); err != nil {
		return nil, err
	}
	if sc.Endpoint == "" || sc.Bucket == "" {
		return nil, apperr.New(apperr.KindConfig, "storage.buildS3", "config.endpoint and config.bucket are required")
	}

	var creds s3Credentials
	if cfg.Credentials != "" {
		if err := json.Unmarshal([]byte(cfg.Credentials), &creds); err != nil {
			return nil, apperr.Wrap(apperr.KindConfig, "storage.buildS3", "invalid credentials JSON", err)
		}
	}

	client, err := minio.New(sc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKeyID, creds.SecretAccessKey, ""),
		Secure: sc.UseSSL,
		Region: sc.Region,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConfig, "storage.buildS3", "constructing minio client", err)
	}

	return &s3Adapter{client: client, bucket: sc.Bucket, prefix: sc.PathPrefix}, nil
}

func (a *s3Adapter) key(k string) string {
	if a.prefix == "" {
		return k
	}
	return path.Join(a.prefix, k)
}

func (a *s3Adapter) Upload(ctx context.Context, key string, r io.Reader) (int64, error) {
	info, err := a.client.PutObject(ctx, a.bucket, a.key(key), r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.KindConnection, "storage.s3.Upload", "PutObject failed", err)
	}
	return info.Size, nil
}

func (a *s3Adapter) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, a.key(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindConnection, "storage.s3.Download", "GetObject failed", err)
	}
	// GetObject does not itself error on a missing key — confirm with Stat so
	// callers see a clean not-found error rather than failing on first Read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, apperr.Wrap(apperr.KindIO, "storage.s3.Download", "object not found", err)
	}
	return obj, nil
}

func (a *s3Adapter) Delete(ctx context.Context, key string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, a.key(key), minio.RemoveObjectOptions{}); err != nil {
		return apperr.Wrap(apperr.KindConnection, "storage.s3.Delete", "RemoveObject failed", err)
	}
	return nil
}

func (a *s3Adapter) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objs []ObjectInfo
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    a.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, apperr.Wrap(apperr.KindConnection, "storage.s3.List", "ListObjects failed", obj.Err)
		}
		objs = append(objs, ObjectInfo{
			Key:          obj.Key,
			SizeBytes:    obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return objs, nil
}

func (a *s3Adapter) Test(ctx context.Context) error {
	ok, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return apperr.Wrap(apperr.KindConnection, "storage.s3.Test", "BucketExists failed", err)
	}
	if !ok {
		return apperr.New(apperr.KindConfig, "storage.s3.Test", "bucket does not exist")
	}
	return nil
}
