// Package primitives wraps the fixed cryptographic parameters the rest of
// the engine builds on (spec §4.1). Every parameter here is non-negotiable:
// callers never choose a different cipher, hash, or padding scheme.
package primitives

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// AESKeySize is the key length for AES-256.
	AESKeySize = 32
	// NonceSize is the CTR nonce/IV length used everywhere a fresh nonce
	// is generated per encryption unit (chunk, metadata block).
	NonceSize = 16
	// RSAKeyBits is the mandated RSA modulus size.
	RSAKeyBits = 2048
	// RSAWrappedKeySize is the ciphertext length of an RSA-2048 OAEP wrap.
	RSAWrappedKeySize = RSAKeyBits / 8

	// PBKDF2Iterations is fixed at the NIST-recommended floor for
	// PIN-derived key material (spec §4.1).
	PBKDF2Iterations = 100_000
	// PBKDF2SaltSize is the random salt length for PIN sealing.
	PBKDF2SaltSize = 16
)

// NewAESKey returns a fresh random AES-256 key from the OS CSPRNG.
func NewAESKey() ([]byte, error) {
	key := make([]byte, AESKeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("primitives: generate aes key: %w", err)
	}
	return key, nil
}

// NewNonce returns a fresh random 128-bit CTR nonce.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("primitives: generate nonce: %w", err)
	}
	return nonce, nil
}

// NewSalt returns a fresh random salt of the given length.
func NewSalt(size int) ([]byte, error) {
	salt := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("primitives: generate salt: %w", err)
	}
	return salt, nil
}

// EncryptCTR encrypts plaintext with AES-256-CTR under key/nonce. Because
// every key in this system is freshly generated per encryption unit,
// nonce reuse under a given key is structurally avoided.
func EncryptCTR(key, nonce, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("primitives: new cipher: %w", err)
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("primitives: nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	stream := cipher.NewCTR(block, nonce)
	out := make([]byte, len(plaintext))
	stream.XORKeyStream(out, plaintext)
	return out, nil
}

// DecryptCTR decrypts ciphertext with AES-256-CTR under key/nonce. CTR mode
// decryption is identical to encryption (XOR against the keystream).
func DecryptCTR(key, nonce, ciphertext []byte) ([]byte, error) {
	return EncryptCTR(key, nonce, ciphertext)
}

// WrapKey wraps an AES key under the recipient's RSA-2048 public key using
// OAEP with MGF1+SHA-256, SHA-256 digest, empty label.
func WrapKey(pub *rsa.PublicKey, aesKey []byte) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
	if err != nil {
		return nil, fmt.Errorf("primitives: rsa-oaep wrap: %w", err)
	}
	return wrapped, nil
}

// UnwrapKey unwraps an RSA-OAEP wrapped AES key using the recipient's
// private key.
func UnwrapKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("primitives: rsa-oaep unwrap: %w", err)
	}
	return aesKey, nil
}

// HashSHA256Hex returns the lowercase hex-encoded SHA-256 digest of data.
func HashSHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ConstantTimeHexEqual compares two lowercase hex-encoded digests without
// leaking timing information proportional to the first mismatching byte
// (spec §9: manifest-hash and chunk-hash comparisons should be constant
// time).
func ConstantTimeHexEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// DeriveKeyFromPIN derives a 32-byte AES-256 key from a PIN using
// PBKDF2-HMAC-SHA256 with the fixed iteration count (spec §4.1).
func DeriveKeyFromPIN(pin string, salt []byte) []byte {
	return pbkdf2.Key([]byte(pin), salt, PBKDF2Iterations, AESKeySize, sha256.New)
}
