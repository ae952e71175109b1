package seal

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

// Keyfile formats. Without a passphrase the key is stored hex-encoded.
// With a passphrase the key is wrapped under an argon2id-derived KEK
// and stored as a small JSON document.
const (
	wrappedVersion = 1

	defaultArgonMemory      = 64 * 1024 // KiB
	defaultArgonIterations  = 3
	defaultArgonParallelism = 4
	argonSaltSize           = 16
)

type wrappedKeyFile struct {
	Version     int    `json:"version"`
	KDF         string `json:"kdf"`
	Memory      uint32 `json:"memory"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
	Salt        string `json:"salt"`
	WrappedKey  string `json:"wrappedKey"`
}

// Open loads the key from path, generating and persisting a fresh one
// only when no keyfile exists yet. An existing but unreadable keyfile
// fails with ErrKeyUnavailable; it is never silently replaced.
func Open(path, passphrase string) (*Service, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator config
	switch {
	case errors.Is(err, fs.ErrNotExist):
		key, genErr := newKey()
		if genErr != nil {
			return nil, genErr
		}
		if writeErr := writeKeyFile(path, key, passphrase); writeErr != nil {
			return nil, writeErr
		}
		return New(key)
	case err != nil:
		return nil, fmt.Errorf("%w: read keyfile: %v", ErrKeyUnavailable, err)
	}

	key, err := decodeKeyFile(data, passphrase)
	if err != nil {
		return nil, err
	}
	return New(key)
}

func decodeKeyFile(data []byte, passphrase string) ([]byte, error) {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '{' {
		return unwrapKey(data, passphrase)
	}

	if passphrase != "" {
		return nil, fmt.Errorf("%w: passphrase set but keyfile is not passphrase-protected", ErrKeyUnavailable)
	}
	key, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: keyfile is not valid hex", ErrKeyUnavailable)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: keyfile holds %d bytes, want %d", ErrKeyUnavailable, len(key), KeySize)
	}
	return key, nil
}

func unwrapKey(data []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: keyfile is passphrase-protected but no passphrase configured", ErrKeyUnavailable)
	}

	var wf wrappedKeyFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: parse keyfile: %v", ErrKeyUnavailable, err)
	}
	if wf.Version != wrappedVersion || wf.KDF != "argon2id" {
		return nil, fmt.Errorf("%w: unsupported keyfile version %d kdf %q", ErrKeyUnavailable, wf.Version, wf.KDF)
	}

	salt, err := hex.DecodeString(wf.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: decode salt", ErrKeyUnavailable)
	}
	wrapped, err := hex.DecodeString(wf.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decode wrapped key", ErrKeyUnavailable)
	}

	kek := argon2.IDKey([]byte(passphrase), salt, wf.Iterations, wf.Memory, wf.Parallelism, KeySize)
	key, err := gcmOpen(kek, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap key (wrong passphrase or corrupt keyfile)", ErrKeyUnavailable)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: unwrapped key is %d bytes, want %d", ErrKeyUnavailable, len(key), KeySize)
	}
	return key, nil
}

func writeKeyFile(path string, key []byte, passphrase string) error {
	var data []byte

	if passphrase == "" {
		data = []byte(hex.EncodeToString(key) + "\n")
	} else {
		salt := make([]byte, argonSaltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}
		kek := argon2.IDKey([]byte(passphrase), salt, defaultArgonIterations, defaultArgonMemory, defaultArgonParallelism, KeySize)
		wrapped, err := gcmSeal(kek, key)
		if err != nil {
			return fmt.Errorf("wrap key: %w", err)
		}
		wf := wrappedKeyFile{
			Version:     wrappedVersion,
			KDF:         "argon2id",
			Memory:      defaultArgonMemory,
			Iterations:  defaultArgonIterations,
			Parallelism: defaultArgonParallelism,
			Salt:        hex.EncodeToString(salt),
			WrappedKey:  hex.EncodeToString(wrapped),
		}
		data, err = json.Marshal(wf)
		if err != nil {
			return fmt.Errorf("encode keyfile: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keyfile: %w", err)
	}
	return nil
}

func gcmSeal(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func gcmOpen(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("sealed data shorter than nonce")
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ct, nil)
}
