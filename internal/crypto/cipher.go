// Package crypto defines the encryption collaborator contract consumed by
// the memory store, plus the default AES-256-GCM implementation. The memory
// core itself never touches key material; it only moves envelopes around.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	// ErrKeyNotInitialized is returned when an operation runs before a
	// master key has been loaded or generated.
	ErrKeyNotInitialized = errors.New("crypto: master key not initialized")

	// ErrUnsupportedAlgorithm is returned when an envelope names an
	// algorithm this cipher cannot handle.
	ErrUnsupportedAlgorithm = errors.New("crypto: unsupported algorithm")
)

const (
	// AlgorithmAESGCM is the only algorithm the default cipher produces.
	AlgorithmAESGCM = "AES-256-GCM"

	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

// Envelope is the ciphertext bundle persisted alongside an encrypted memory
// item. KeyID records which item the payload was sealed for.
type Envelope struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	KeyID      string `json:"key_id"`
	Algorithm  string `json:"algorithm"`
	Tag        []byte `json:"tag"`
}

// Cipher is the encryption collaborator contract. Implementations must be
// safe for concurrent use.
type Cipher interface {
	Encrypt(plaintext []byte, keyID string) (*Envelope, error)
	Decrypt(env *Envelope) ([]byte, error)
}

// AESCipher seals and opens envelopes with AES-256-GCM under a single
// master key.
type AESCipher struct {
	master []byte
}

// NewAESCipher returns a cipher over the given 32-byte master key.
func NewAESCipher(masterKey []byte) (*AESCipher, error) {
	if len(masterKey) == 0 {
		return nil, ErrKeyNotInitialized
	}
	if len(masterKey) != keySize {
		return nil, fmt.Errorf("crypto: master key must be %d bytes, got %d", keySize, len(masterKey))
	}
	key := make([]byte, keySize)
	copy(key, masterKey)
	return &AESCipher{master: key}, nil
}

// GenerateKey returns a fresh random 32-byte master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate master key: %w", err)
	}
	return key, nil
}

// LoadOrCreateKey reads a hex-encoded master key from path, generating and
// persisting one (0600) if the file does not exist.
func LoadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, decErr := hex.DecodeString(string(data))
		if decErr != nil {
			return nil, fmt.Errorf("crypto: invalid key file %s: %w", path, decErr)
		}
		if len(key) != keySize {
			return nil, fmt.Errorf("crypto: key file %s holds %d bytes, want %d", path, len(key), keySize)
		}
		return key, nil
	case os.IsNotExist(err):
		key, genErr := GenerateKey()
		if genErr != nil {
			return nil, genErr
		}
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o700); mkErr != nil {
			return nil, fmt.Errorf("crypto: failed to create key directory: %w", mkErr)
		}
		if wrErr := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); wrErr != nil {
			return nil, fmt.Errorf("crypto: failed to persist master key: %w", wrErr)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("crypto: failed to read key file %s: %w", path, err)
	}
}

// Encrypt seals plaintext into an envelope keyed by keyID. The GCM tag is
// stored separately from the ciphertext body.
func (c *AESCipher) Encrypt(plaintext []byte, keyID string) (*Envelope, error) {
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	body, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return &Envelope{
		Ciphertext: body,
		Nonce:      nonce,
		KeyID:      keyID,
		Algorithm:  AlgorithmAESGCM,
		Tag:        tag,
	}, nil
}

// Decrypt opens an envelope. Tampered ciphertext, nonce, or tag fails
// authentication and returns an error without partial output.
func (c *AESCipher) Decrypt(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, errors.New("crypto: nil envelope")
	}
	if env.Algorithm != AlgorithmAESGCM {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, env.Algorithm)
	}

	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != nonceSize {
		return nil, fmt.Errorf("crypto: invalid nonce length %d", len(env.Nonce))
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.Tag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plaintext, err := gcm.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed: %w", err)
	}
	return plaintext, nil
}

func (c *AESCipher) gcm() (cipher.AEAD, error) {
	if len(c.master) != keySize {
		return nil, ErrKeyNotInitialized
	}
	block, err := aes.NewCipher(c.master)
	if err != nil {
		return nil, fmt.Errorf("crypto: cipher init failed: %w", err)
	}
	return cipher.NewGCM(block)
}
