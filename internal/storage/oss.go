package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/hkloudou/odwatch/internal/encrypt"
)

// OSSStorage implements Storage for Aliyun OSS. Objects use the same
// gzip(+AES) envelope as file storage, so a bucket can be mirrored to disk.
type OSSStorage struct {
	bucket   *oss.Bucket
	endpoint string
	name     string
	prefix   string
	aesKey   []byte
}

// OSSConfig holds OSS configuration
type OSSConfig struct {
	Endpoint  string // OSS endpoint (e.g., "oss-cn-hangzhou")
	Bucket    string // Bucket name
	AccessKey string // Access key
	SecretKey string // Secret key
	Prefix    string // Object prefix inside the bucket (e.g., "odwatch/raw/")
	AESKey    string // Optional AES passphrase
	Internal  bool   // Use internal endpoint
}

// NewOSSStorage creates a new OSS storage instance
func NewOSSStorage(cfg OSSConfig) (*OSSStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("oss bucket is required")
	}

	endpoint := cfg.Endpoint
	if cfg.Internal {
		endpoint = endpoint + "-internal"
	}
	if !strings.HasPrefix(endpoint, "http") {
		endpoint = fmt.Sprintf("https://%s.aliyuncs.com", endpoint)
	}

	client, err := oss.New(endpoint, cfg.AccessKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &OSSStorage{
		bucket:   bucket,
		endpoint: endpoint,
		name:     cfg.Bucket,
		prefix:   cfg.Prefix,
		aesKey:   []byte(cfg.AESKey),
	}, nil
}

func (s *OSSStorage) objectKey(key string) string {
	return s.prefix + key
}

// Put compresses (and encrypts) data and uploads it
func (s *OSSStorage) Put(ctx context.Context, key string, data []byte) error {
	dataToWrite, err := encrypt.Pack(data, s.aesKey)
	if err != nil {
		return err
	}

	if err := s.bucket.PutObject(s.objectKey(key), bytes.NewReader(dataToWrite), oss.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// Get downloads the object and reverses the envelope
func (s *OSSStorage) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.bucket.GetObject(s.objectKey(key), oss.WithContext(ctx))
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	return encrypt.Unpack(data, s.aesKey)
}

// Delete removes data by key
func (s *OSSStorage) Delete(ctx context.Context, key string) error {
	return s.bucket.DeleteObject(s.objectKey(key), oss.WithContext(ctx))
}

// Exists checks if key exists
func (s *OSSStorage) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := s.bucket.IsObjectExist(s.objectKey(key), oss.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return exists, nil
}

// List pages through ListObjects; returned keys are relative to the prefix
func (s *OSSStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	marker := ""

	for {
		result, err := s.bucket.ListObjects(oss.Prefix(s.objectKey(prefix)), oss.Marker(marker), oss.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range result.Objects {
			keys = append(keys, strings.TrimPrefix(obj.Key, s.prefix))
		}

		if !result.IsTruncated {
			break
		}
		marker = result.NextMarker
	}

	return keys, nil
}

func (s *OSSStorage) Namespace() string {
	return fmt.Sprintf("oss:%s:%s", s.name, s.prefix)
}

func isNoSuchKey(err error) bool {
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.StatusCode == http.StatusNotFound
	}
	return false
}
