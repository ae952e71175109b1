// Package seal is the record encryption service. It owns exactly one
// process-lifetime 256-bit AES-GCM key, generates patient identifiers,
// and seals patient records to and from opaque portable blobs.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/linnemanlabs/fieldtriage/internal/patient"
)

// KeySize is the symmetric key length in bytes (AES-256).
const KeySize = 32

var (
	// ErrKeyUnavailable means the persisted key exists but cannot be
	// used: wrong size, corrupt file, or a failed passphrase unwrap.
	// The service never regenerates a key over an unreadable one, since
	// that would permanently strand every previously sealed record.
	ErrKeyUnavailable = errors.New("encryption key unavailable")

	// ErrDecryptFailed means a blob failed authentication or parsing.
	// Distinct from "not found": it signals tampering or corruption of
	// a record that is present.
	ErrDecryptFailed = errors.New("decryption failed")
)

// Service seals and unseals patient records with a single cached key.
type Service struct {
	aead cipher.AEAD
}

// New creates a Service from a raw 256-bit key.
func New(key []byte) (*Service, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", ErrKeyUnavailable, len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Service{aead: aead}, nil
}

// NewID returns a fresh random patient identifier (UUIDv4, backed by
// crypto/rand).
func (s *Service) NewID() string {
	return uuid.NewString()
}

// Encrypt serializes the record, seals it under a fresh random nonce,
// and returns base64(nonce || ciphertext). A new nonce is drawn on
// every call; nonce reuse under the same key must never happen.
func (s *Service) Encrypt(r *patient.Record) (string, error) {
	plaintext, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("serialize record: %w", err)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt splits nonce and ciphertext, verifies and decrypts, and
// deserializes the record. Date fields round-trip through RFC 3339.
// Every failure mode wraps ErrDecryptFailed.
func (s *Service) Decrypt(blob string) (*patient.Record, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: decode blob: %v", ErrDecryptFailed, err)
	}
	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("%w: blob shorter than nonce", ErrDecryptFailed)
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	var r patient.Record
	if err := json.Unmarshal(plaintext, &r); err != nil {
		return nil, fmt.Errorf("%w: deserialize record: %v", ErrDecryptFailed, err)
	}
	return &r, nil
}

// newKey returns KeySize cryptographically secure random bytes.
func newKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}
