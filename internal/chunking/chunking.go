// Package chunking splits a payload into fixed-size slices and provides
// per-chunk encryption, decryption, and integrity hashing (spec §4.3,
// §4.5).
package chunking

import (
	"crypto/rsa"
	"fmt"

	"github.com/oksentinel/engine/internal/ocerrors"
	"github.com/oksentinel/engine/internal/primitives"
)

// EncryptedChunk is the triple persisted per chunk: ciphertext, the
// RSA-wrapped AES key, and the CTR nonce (spec §3's chunk_i.enc/.key/
// .nonce).
type EncryptedChunk struct {
	Ciphertext []byte
	WrappedKey []byte
	Nonce      []byte
}

// Split partitions data into contiguous chunkSize slices; the last slice
// may be shorter (spec §4.3 step 2). chunkSize must be >= 1.
func Split(data []byte, chunkSize int) ([][]byte, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunking: chunk size must be >= 1: %w", ocerrors.ErrInvalidInput)
	}

	if len(data) == 0 {
		return [][]byte{}, nil
	}

	chunks := make([][]byte, 0, (len(data)+chunkSize-1)/chunkSize)
	for i := 0; i < len(data); i += chunkSize {
		end := i + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[i:end])
	}
	return chunks, nil
}

// Encrypt encrypts a single plaintext chunk with a fresh AES-256 key and
// fresh 128-bit nonce, then wraps the key under the recipient's RSA-OAEP
// public key (spec §4.3 step 3).
func Encrypt(chunk []byte, recipientPub *rsa.PublicKey) (*EncryptedChunk, error) {
	key, err := primitives.NewAESKey()
	if err != nil {
		return nil, fmt.Errorf("chunking: %w", err)
	}
	nonce, err := primitives.NewNonce()
	if err != nil {
		return nil, fmt.Errorf("chunking: %w", err)
	}

	ciphertext, err := primitives.EncryptCTR(key, nonce, chunk)
	if err != nil {
		return nil, fmt.Errorf("chunking: encrypt: %w", err)
	}

	wrappedKey, err := primitives.WrapKey(recipientPub, key)
	if err != nil {
		return nil, fmt.Errorf("chunking: wrap key: %w", err)
	}

	return &EncryptedChunk{Ciphertext: ciphertext, WrappedKey: wrappedKey, Nonce: nonce}, nil
}

// Decrypt unwraps the chunk's AES key with priv and decrypts the
// ciphertext. Integrity (hash comparison against the manifest) is the
// caller's responsibility — see spec §4.5 steps 4-5, implemented in
// internal/engine, because the expected hash lives in the manifest, not
// here.
func Decrypt(enc *EncryptedChunk, priv *rsa.PrivateKey) ([]byte, error) {
	key, err := primitives.UnwrapKey(priv, enc.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("chunking: decrypt: %w", ocerrors.ErrAuthFailed)
	}

	plaintext, err := primitives.DecryptCTR(key, enc.Nonce, enc.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("chunking: decrypt: %w", ocerrors.ErrAuthFailed)
	}
	return plaintext, nil
}

// Hash computes the hex-encoded SHA-256 digest of a plaintext chunk for
// integrity verification (spec §4.1, §4.3 step 3: hash is of plaintext,
// not ciphertext — see spec §9 Open Question on this tradeoff).
func Hash(chunk []byte) string {
	return primitives.HashSHA256Hex(chunk)
}
