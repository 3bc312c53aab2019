package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrDecryptionFailed indicates ciphertext failed to authenticate.
var ErrDecryptionFailed = errors.New("credential: decryption failed")

// encryptorContext is the HKDF info string binding derived keys to this
// package's use, distinct from any other subsystem that might derive keys
// from the same master secret.
const encryptorContext = "adflow-credential-encryption"

// encryptor provides AES-256-GCM encryption for credential material at
// rest. Not mandated by spec.md, but every persistence path for session or
// token material in the codebase this was built from encrypts it; the
// ambient-stack rule carries that practice here.
type encryptor struct {
	aead cipher.AEAD
}

// newEncryptor derives a 256-bit AES-GCM key via HKDF-SHA256 from a
// configured master secret.
func newEncryptor(masterKey string) (*encryptor, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("credential: encryption key not configured")
	}

	secret := []byte(masterKey)
	if decoded, err := base64.StdEncoding.DecodeString(masterKey); err == nil && len(decoded) >= 16 {
		secret = decoded
	}

	derived := make([]byte, 32)
	reader := hkdf.New(sha256.New, secret, nil, []byte(encryptorContext))
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}
	return &encryptor{aead: aead}, nil
}

// encrypt returns base64(nonce || ciphertext).
func (e *encryptor) encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt reverses encrypt.
func (e *encryptor) decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(raw) < e.aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	nonce, ciphertext := raw[:e.aead.NonceSize()], raw[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}
