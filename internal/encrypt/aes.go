package encrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"
)

// AesGcmEncrypt seals plaintext with AES-256-GCM.
// Output layout: nonce || ciphertext || tag
func AesGcmEncrypt(plaintext []byte, passphrase []byte) ([]byte, error) {
	gcm, err := newGCM(passphrase)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// AesGcmDecrypt opens data produced by AesGcmEncrypt.
func AesGcmDecrypt(sealed []byte, passphrase []byte) ([]byte, error) {
	gcm, err := newGCM(passphrase)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, io.ErrUnexpectedEOF
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// newGCM derives a 32-byte key from the passphrase (SHA-256) so operators
// can configure any string as ODWATCH_AES_KEY.
func newGCM(passphrase []byte) (cipher.AEAD, error) {
	key := sha256.Sum256(passphrase)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
