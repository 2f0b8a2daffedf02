package storage

/*
Directory layout (file storage):

Snapshots are few (one per scheduled run) and are listed in full on every
reconcile, so keys map one-to-one onto files under the base directory with
no sharding:

	{base}/2024-03-01T09:30:00.123456-05:00.json.gz
	{base}/2024-03-02T09:30:00.654321-05:00.json.gz
	{base}/latest.json.gz

Every file is gzip level 9, optionally sealed with AES-GCM, so the directory
stays readable with `zcat` when no key is configured.
*/

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hkloudou/odwatch/internal/encrypt"
)

// fileStorage implements Storage for the local file system
type fileStorage struct {
	name     string
	basePath string
	aesKey   []byte
}

// FileConfig holds file storage configuration
type FileConfig struct {
	Name     string // Storage name, used as cache namespace
	BasePath string // Base directory path (e.g., "./data/raw")
	AESKey   string // Optional AES passphrase
}

// NewFileStorage creates a new file storage instance
func NewFileStorage(cfg FileConfig) (*fileStorage, error) {
	basePath, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &fileStorage{
		name:     cfg.Name,
		basePath: basePath,
		aesKey:   []byte(cfg.AESKey),
	}, nil
}

// Put compresses (and encrypts) data, then writes it atomically
func (s *fileStorage) Put(ctx context.Context, key string, data []byte) error {
	dataToWrite, err := encrypt.Pack(data, s.aesKey)
	if err != nil {
		return err
	}

	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to temp file then rename, readers never see a partial blob
	tmpFile := fullPath + ".tmp"
	if err := os.WriteFile(tmpFile, dataToWrite, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmpFile, fullPath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Get reads, decrypts and decompresses the blob
func (s *fileStorage) Get(ctx context.Context, key string) ([]byte, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return encrypt.Unpack(data, s.aesKey)
}

// Delete removes data by key
func (s *fileStorage) Delete(ctx context.Context, key string) error {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists checks if key exists
func (s *fileStorage) Exists(ctx context.Context, key string) (bool, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	_, err := os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

// List walks the base directory and returns every key starting with prefix
func (s *fileStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Skip directories and in-flight temp files
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}

		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		// Normalize path separators to forward slashes (like OSS)
		key := filepath.ToSlash(relPath)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return keys, nil
}

func (s *fileStorage) Namespace() string {
	return fmt.Sprintf("file:%s", s.name)
}
