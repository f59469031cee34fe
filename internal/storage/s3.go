package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresuchdata/pricing-model/backend-go/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// S3Client implements ObjectStorage for any S3-compatible service.
type S3Client struct {
	client *minio.Client
	bucket string
}

// NewS3Client validates cfg and builds a minio client. It does not contact
// the endpoint.
func NewS3Client(cfg config.StorageConfig) (*S3Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint must be provided")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials must be provided")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket must be provided")
	}

	endpoint, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &S3Client{client: client, bucket: cfg.Bucket}, nil
}

// splitEndpoint strips an optional scheme; an explicit scheme wins over useSSL.
func splitEndpoint(raw string, useSSL bool) (string, bool) {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(raw, "https://"), "/"), true
	case strings.HasPrefix(raw, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(raw, "http://"), "/"), false
	}
	return strings.TrimSuffix(strings.TrimPrefix(raw, "//"), "/"), useSSL
}

// ListObjects lists every object under prefix, sorted by key.
func (c *S3Client) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var results []ObjectInfo
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		results = append(results, ObjectInfo{Key: obj.Key, Size: obj.Size})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

// DownloadObject downloads an object to the provided destination path.
func (c *S3Client) DownloadObject(ctx context.Context, key, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed creating directory for %s: %w", destPath, err)
	}
	if err := c.client.FGetObject(ctx, c.bucket, key, destPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("s3 download %s: %w", key, err)
	}
	return nil
}

func (c *S3Client) UploadObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	info, err := c.client.PutObject(ctx, c.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	log.Debug().Str("key", key).Int64("bytes", info.Size).Msg("storage: object uploaded")
	return nil
}

var _ ObjectStorage = (*S3Client)(nil)

// DownloadPrefix mirrors every CSV/XLSX object under prefix into dir, keeping
// only the base name, and returns the local paths.
func DownloadPrefix(ctx context.Context, store ObjectStorage, prefix, dir string) ([]string, error) {
	objects, err := store.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, obj := range objects {
		ext := strings.ToLower(path.Ext(obj.Key))
		if ext != ".csv" && ext != ".xlsx" {
			continue
		}
		dest := filepath.Join(dir, path.Base(obj.Key))
		if err := store.DownloadObject(ctx, obj.Key, dest); err != nil {
			return nil, err
		}
		paths = append(paths, dest)
	}

	log.Info().Str("prefix", prefix).Int("files", len(paths)).Msg("storage: snapshot downloaded")
	return paths, nil
}

// UploadFile stores a local file under prefix using its base name as key suffix.
func UploadFile(ctx context.Context, store ObjectStorage, prefix, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}

	key := path.Join(prefix, filepath.Base(localPath))
	if err := store.UploadObject(ctx, key, f, st.Size(), contentType); err != nil {
		return "", err
	}
	return key, nil
}
