package chunking

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"

	"github.com/oksentinel/engine/internal/ocerrors"
)

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	return priv
}

func TestSplitEvenAndShortLast(t *testing.T) {
	data := []byte("hello bob") // 9 bytes
	chunks, err := Split(data, 4)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	sizes := []int{len(chunks[0]), len(chunks[1]), len(chunks[2])}
	if sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 1 {
		t.Errorf("chunk sizes = %v, want [4 4 1]", sizes)
	}

	var reassembled []byte
	for _, c := range chunks {
		reassembled = append(reassembled, c...)
	}
	if !bytes.Equal(reassembled, data) {
		t.Errorf("reassembled = %q, want %q", reassembled, data)
	}
}

func TestSplitRejectsNonPositiveChunkSize(t *testing.T) {
	if _, err := Split([]byte("x"), 0); !errors.Is(err, ocerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := Split([]byte("x"), -1); !errors.Is(err, ocerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEncryptDecryptChunkRoundTrip(t *testing.T) {
	priv := genKey(t)
	chunk := []byte("some plaintext chunk data")

	enc, err := Encrypt(chunk, &priv.PublicKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if len(enc.Ciphertext) != len(chunk) {
		t.Errorf("ciphertext length %d != plaintext length %d (CTR mode)", len(enc.Ciphertext), len(chunk))
	}

	decrypted, err := Decrypt(enc, priv)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, chunk) {
		t.Errorf("decrypted = %q, want %q", decrypted, chunk)
	}
}

func TestEncryptProducesDistinctKeysAndNonces(t *testing.T) {
	priv := genKey(t)
	chunk := []byte("same chunk twice")

	enc1, _ := Encrypt(chunk, &priv.PublicKey)
	enc2, _ := Encrypt(chunk, &priv.PublicKey)

	if bytes.Equal(enc1.Nonce, enc2.Nonce) {
		t.Error("expected distinct nonces across encryptions")
	}
	if bytes.Equal(enc1.WrappedKey, enc2.WrappedKey) {
		t.Error("expected distinct wrapped keys across encryptions")
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	priv := genKey(t)
	other := genKey(t)
	enc, err := Encrypt([]byte("secret"), &priv.PublicKey)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	_, err = Decrypt(enc, other)
	if !errors.Is(err, ocerrors.ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}

func TestHashIsPlaintextHash(t *testing.T) {
	chunk := []byte("integrity target")
	h1 := Hash(chunk)
	h2 := Hash(chunk)
	if h1 != h2 {
		t.Errorf("hash not deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64-char hex sha256, got %d chars", len(h1))
	}
}
