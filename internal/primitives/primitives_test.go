package primitives

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func TestEncryptDecryptCTRRoundTrip(t *testing.T) {
	key, err := NewAESKey()
	if err != nil {
		t.Fatalf("NewAESKey failed: %v", err)
	}
	nonce, err := NewNonce()
	if err != nil {
		t.Fatalf("NewNonce failed: %v", err)
	}

	plaintext := []byte("hello bob")
	ciphertext, err := EncryptCTR(key, nonce, plaintext)
	if err != nil {
		t.Fatalf("EncryptCTR failed: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatalf("ciphertext must not equal plaintext")
	}

	decrypted, err := DecryptCTR(key, nonce, ciphertext)
	if err != nil {
		t.Fatalf("DecryptCTR failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("decrypted mismatch:\ngot:  %q\nwant: %q", decrypted, plaintext)
	}
}

func TestEncryptCTRRejectsBadNonceSize(t *testing.T) {
	key, _ := NewAESKey()
	if _, err := EncryptCTR(key, []byte("too-short"), []byte("data")); err == nil {
		t.Fatal("expected error for short nonce")
	}
}

func TestWrapUnwrapKeyRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	aesKey, err := NewAESKey()
	if err != nil {
		t.Fatalf("NewAESKey failed: %v", err)
	}

	wrapped, err := WrapKey(&priv.PublicKey, aesKey)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}
	if len(wrapped) != RSAWrappedKeySize {
		t.Errorf("wrapped key length = %d, want %d", len(wrapped), RSAWrappedKeySize)
	}

	unwrapped, err := UnwrapKey(priv, wrapped)
	if err != nil {
		t.Fatalf("UnwrapKey failed: %v", err)
	}
	if !bytes.Equal(unwrapped, aesKey) {
		t.Errorf("unwrapped key mismatch")
	}
}

func TestUnwrapKeyWrongPrivateKeyFails(t *testing.T) {
	priv1, _ := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	priv2, _ := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	aesKey, _ := NewAESKey()

	wrapped, err := WrapKey(&priv1.PublicKey, aesKey)
	if err != nil {
		t.Fatalf("WrapKey failed: %v", err)
	}

	if _, err := UnwrapKey(priv2, wrapped); err == nil {
		t.Fatal("expected unwrap with wrong private key to fail")
	}
}

func TestHashSHA256HexDeterministic(t *testing.T) {
	data := []byte("hello bob")
	h1 := HashSHA256Hex(data)
	h2 := HashSHA256Hex(data)
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("hex sha256 should be 64 chars, got %d", len(h1))
	}
}

func TestConstantTimeHexEqual(t *testing.T) {
	a := HashSHA256Hex([]byte("x"))
	b := HashSHA256Hex([]byte("x"))
	c := HashSHA256Hex([]byte("y"))

	if !ConstantTimeHexEqual(a, b) {
		t.Error("expected equal hashes to compare equal")
	}
	if ConstantTimeHexEqual(a, c) {
		t.Error("expected different hashes to compare unequal")
	}
	if ConstantTimeHexEqual(a, "short") {
		t.Error("expected length mismatch to compare unequal")
	}
}

func TestDeriveKeyFromPINDeterministicPerSalt(t *testing.T) {
	salt, _ := NewSalt(PBKDF2SaltSize)
	k1 := DeriveKeyFromPIN("1234", salt)
	k2 := DeriveKeyFromPIN("1234", salt)
	if !bytes.Equal(k1, k2) {
		t.Error("same pin+salt must derive same key")
	}

	otherSalt, _ := NewSalt(PBKDF2SaltSize)
	k3 := DeriveKeyFromPIN("1234", otherSalt)
	if bytes.Equal(k1, k3) {
		t.Error("different salts must derive different keys")
	}
	if len(k1) != AESKeySize {
		t.Errorf("derived key length = %d, want %d", len(k1), AESKeySize)
	}
}
