// Package identity manages RSA keypair generation and PIN-protected
// private-key sealing (spec §4.2). Private keys are never persisted in
// unsealed form; the sealed blob is opaque without the PIN.
package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/oksentinel/engine/internal/ocerrors"
	"github.com/oksentinel/engine/internal/primitives"
)

// User is the identity tuple from spec §3: (user_id, username, public_key,
// sealed_private_key). PublicKeyPEM is SPKI-DER wrapped in PEM; SealedKey
// is the opaque salt‖iv‖ciphertext blob described in §3/§6.
type User struct {
	ID           uuid.UUID
	Username     string
	PublicKeyPEM []byte
	SealedKey    []byte
}

const sealedKeyMinLen = primitives.PBKDF2SaltSize + primitives.NonceSize // salt(16) + iv(16)

// CreateUser generates an RSA-2048 keypair, seals the private key under
// pin, and assigns a random UUID. Username and pin must be non-empty;
// uniqueness is the registry's responsibility (spec §4.2, §6).
func CreateUser(username, pin string) (*User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("identity: create user: %w", ocerrors.ErrInvalidInput)
	}
	if pin == "" {
		return nil, fmt.Errorf("identity: create user: %w", ocerrors.ErrInvalidInput)
	}

	priv, err := rsa.GenerateKey(rand.Reader, primitives.RSAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("identity: generate rsa keypair: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	sealed, err := sealPrivateKey(privPEM, pin)
	if err != nil {
		return nil, fmt.Errorf("identity: seal private key: %w", err)
	}

	return &User{
		ID:           uuid.New(),
		Username:     username,
		PublicKeyPEM: pubPEM,
		SealedKey:    sealed,
	}, nil
}

// ParsePublicKeyPEM parses the SPKI-DER-in-PEM encoding produced by
// CreateUser back into an *rsa.PublicKey, for callers that only have a
// User's PublicKeyPEM (e.g. a sender encrypting to some other user's
// registry entry) rather than that user's private key.
func ParsePublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("identity: parse public key: %w", ocerrors.ErrInvalidInput)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: parse public key: %w", ocerrors.ErrInvalidInput)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("identity: parse public key: %w", ocerrors.ErrInvalidInput)
	}
	return rsaKey, nil
}

// VerifyPIN reports whether pin unseals sealed without error. It must not
// leak distinguishable timing behavior beyond what AES-CBC/PKCS7 unpadding
// inherently exposes (spec §4.2, §9).
func VerifyPIN(sealed []byte, pin string) bool {
	_, err := unsealPrivateKey(sealed, pin)
	return err == nil
}

// UnwrapPrivateKey unseals sealed under pin and parses the resulting PEM
// as a PKCS#8 RSA private key. Any failure — wrong PIN, truncation,
// tamper — collapses to ErrAuthFailed (spec §4.2, §7).
func UnwrapPrivateKey(sealed []byte, pin string) (*rsa.PrivateKey, error) {
	pemBytes, err := unsealPrivateKey(sealed, pin)
	if err != nil {
		return nil, fmt.Errorf("identity: unwrap private key: %w", ocerrors.ErrAuthFailed)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("identity: unwrap private key: %w", ocerrors.ErrAuthFailed)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("identity: unwrap private key: %w", ocerrors.ErrAuthFailed)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("identity: unwrap private key: %w", ocerrors.ErrAuthFailed)
	}
	return rsaKey, nil
}

// sealPrivateKey encrypts privateKeyPEM under a PIN-derived key with
// AES-256-CBC/PKCS7. Layout: salt(16) ‖ iv(16) ‖ ciphertext (spec §3, §6).
func sealPrivateKey(privateKeyPEM []byte, pin string) ([]byte, error) {
	salt, err := primitives.NewSalt(primitives.PBKDF2SaltSize)
	if err != nil {
		return nil, err
	}
	iv, err := primitives.NewNonce()
	if err != nil {
		return nil, err
	}

	key := primitives.DeriveKeyFromPIN(pin, salt)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}

	padded := pkcs7Pad(privateKeyPEM, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, len(salt)+len(iv)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return out, nil
}

// unsealPrivateKey reverses sealPrivateKey. Returns an error on short
// input, wrong PIN, or corrupted padding.
func unsealPrivateKey(sealed []byte, pin string) ([]byte, error) {
	if len(sealed) < sealedKeyMinLen || (len(sealed)-sealedKeyMinLen)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("sealed blob too short or misaligned")
	}

	salt := sealed[:primitives.PBKDF2SaltSize]
	iv := sealed[primitives.PBKDF2SaltSize:sealedKeyMinLen]
	ciphertext := sealed[sealedKeyMinLen:]
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("sealed blob missing ciphertext")
	}

	key := primitives.DeriveKeyFromPIN(pin, salt)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(padded, ciphertext)

	return pkcs7Unpad(padded)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// zero overwrites key material so it does not linger on the heap after
// use, mirroring the teacher's EncryptionService.Lock() wipe discipline.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

