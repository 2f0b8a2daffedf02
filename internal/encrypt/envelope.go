package encrypt

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// ErrCorrupt marks blobs that cannot be opened or decompressed.
// Callers treat it as damaged storage, never as a transient failure.
var ErrCorrupt = errors.New("corrupt blob")

var gzipMagic = []byte{0x1f, 0x8b}

// Pack gzips data at level 9 (what `gzip -9` writes) and seals the
// stream with AES-GCM when aesKey is set.
func Pack(data []byte, aesKey []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to flush gzip stream: %w", err)
	}

	if len(aesKey) == 0 {
		return buf.Bytes(), nil
	}
	sealed, err := AesGcmEncrypt(buf.Bytes(), aesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to seal blob: %w", err)
	}
	return sealed, nil
}

// Unpack reverses Pack. Every failure wraps ErrCorrupt.
func Unpack(blob []byte, aesKey []byte) ([]byte, error) {
	if len(aesKey) > 0 {
		opened, err := AesGcmDecrypt(blob, aesKey)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot open sealed blob: %v", ErrCorrupt, err)
		}
		blob = opened
	}

	if !bytes.HasPrefix(blob, gzipMagic) {
		return nil, fmt.Errorf("%w: not a gzip stream", ErrCorrupt)
	}
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated gzip stream: %v", ErrCorrupt, err)
	}
	return out, nil
}
