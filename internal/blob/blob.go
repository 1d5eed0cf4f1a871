// Package blob selects the configured object store and adapts it to the
// property image uploader used by the core service.
package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"rentalcore/internal/blob/core"
	"rentalcore/internal/infra/blob/fs"
	"rentalcore/internal/infra/blob/memory"
	"rentalcore/internal/infra/blob/s3"
)

// Environment variables read by Open.
const (
	EnvDriver      = "RENTALCORE_BLOB_DRIVER"
	EnvFSRoot      = "RENTALCORE_BLOB_FS_ROOT"
	EnvBaseURL     = "RENTALCORE_BLOB_BASE_URL"
	EnvS3Bucket    = "RENTALCORE_BLOB_S3_BUCKET"
	EnvS3Region    = "RENTALCORE_BLOB_S3_REGION"
	EnvS3Endpoint  = "RENTALCORE_BLOB_S3_ENDPOINT"
	EnvS3PathStyle = "RENTALCORE_BLOB_S3_PATH_STYLE"
	EnvS3AccessKey = "RENTALCORE_BLOB_S3_ACCESS_KEY_ID"
	EnvS3SecretKey = "RENTALCORE_BLOB_S3_SECRET_ACCESS_KEY"
)

// Open constructs the store named by RENTALCORE_BLOB_DRIVER (default fs).
func Open(ctx context.Context) (core.Store, error) {
	driver := core.Driver(strings.ToLower(strings.TrimSpace(os.Getenv(EnvDriver))))
	if driver == "" {
		driver = core.DriverFilesystem
	}
	switch driver {
	case core.DriverFilesystem:
		store, err := fs.New(os.Getenv(EnvFSRoot))
		if err != nil {
			return nil, err
		}
		return store, nil
	case core.DriverMemory:
		return memory.New(), nil
	case core.DriverS3:
		bucket := os.Getenv(EnvS3Bucket)
		if bucket == "" {
			return nil, fmt.Errorf("%s required for s3 driver", EnvS3Bucket)
		}
		store, err := s3.New(ctx, s3.Config{
			Bucket:          bucket,
			Region:          os.Getenv(EnvS3Region),
			Endpoint:        os.Getenv(EnvS3Endpoint),
			PathStyle:       strings.EqualFold(os.Getenv(EnvS3PathStyle), "true"),
			AccessKeyID:     os.Getenv(EnvS3AccessKey),
			SecretAccessKey: os.Getenv(EnvS3SecretKey),
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

// BaseURLFromEnv returns RENTALCORE_BLOB_BASE_URL without a trailing slash.
func BaseURLFromEnv() string {
	return strings.TrimRight(os.Getenv(EnvBaseURL), "/")
}
