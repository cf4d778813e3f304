package storage

import (
	"context"
	"fmt"
)

// Uploader 对象存储
type Uploader interface {
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Options 存储配置
type Options struct {
	Driver             string
	LocalPath          string
	S3Region           string
	S3Bucket           string
	GCSProjectID       string
	GCSBucketName      string
	GCSCredentialsFile string
}

// New 按驱动创建存储实现
func New(ctx context.Context, opts Options) (Uploader, error) {
	switch opts.Driver {
	case "", "local":
		return NewLocalStorage(opts.LocalPath)
	case "s3":
		return NewS3Client(opts.S3Region, opts.S3Bucket)
	case "gcs":
		return NewGCSClient(ctx, opts.GCSProjectID, opts.GCSBucketName, opts.GCSCredentialsFile)
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", opts.Driver)
	}
}
