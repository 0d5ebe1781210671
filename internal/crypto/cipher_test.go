package crypto

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestCipher(t *testing.T) *AESCipher {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	c, err := NewAESCipher(key)
	if err != nil {
		t.Fatalf("NewAESCipher failed: %v", err)
	}
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	payloads := [][]byte{
		[]byte("Buy milk"),
		[]byte(""),
		bytes.Repeat([]byte{0x00, 0xff}, 4096),
		[]byte("unicode: héllo wörld 你好"),
	}

	for _, p := range payloads {
		env, err := c.Encrypt(p, "mem-1")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if env.Algorithm != AlgorithmAESGCM {
			t.Errorf("unexpected algorithm %q", env.Algorithm)
		}
		if env.KeyID != "mem-1" {
			t.Errorf("unexpected key id %q", env.KeyID)
		}
		if len(env.Tag) != 16 {
			t.Errorf("unexpected tag length %d", len(env.Tag))
		}

		got, err := c.Decrypt(env)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(p))
		}
	}
}

func TestDecryptRejectsTamperedTag(t *testing.T) {
	c := newTestCipher(t)

	env, err := c.Encrypt([]byte("secret"), "mem-2")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	env.Tag[0] ^= 0x01

	if _, err := c.Decrypt(env); err == nil {
		t.Fatal("expected authentication failure for tampered tag")
	}
}

func TestDecryptRejectsUnsupportedAlgorithm(t *testing.T) {
	c := newTestCipher(t)

	env, err := c.Encrypt([]byte("secret"), "mem-3")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	env.Algorithm = "XCHACHA20"

	_, err = c.Decrypt(env)
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestNewAESCipherRequiresKey(t *testing.T) {
	if _, err := NewAESCipher(nil); !errors.Is(err, ErrKeyNotInitialized) {
		t.Fatalf("expected ErrKeyNotInitialized, got %v", err)
	}
	if _, err := NewAESCipher(make([]byte, 16)); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestLoadOrCreateKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "engram.key")

	key1, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey (create) failed: %v", err)
	}
	if len(key1) != 32 {
		t.Fatalf("unexpected key length %d", len(key1))
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("key file not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	key2, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey (load) failed: %v", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Error("reloaded key differs from generated key")
	}
}
