// Package metadata handles the encrypted metadata block bound to each
// asset: creation/expiry timestamps, sender/recipient identity, and the
// manifest hash that cryptographically ties the metadata to the manifest
// (spec §3, §4.6).
package metadata

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"

	"github.com/oksentinel/engine/internal/ocerrors"
	"github.com/oksentinel/engine/internal/primitives"
)

// Version mirrors the manifest schema version carried in metadata.
const Version = "2.0"

// UnknownFilename is substituted when an asset's metadata omits filename
// (spec §9 Open Question, decided: older assets may lack it).
const UnknownFilename = "unknown.bin"

// Metadata is the plaintext shape encrypted into metadata.enc (spec §3).
type Metadata struct {
	CreatedAt    int64  `json:"created_at"`
	ExpiryAt     int64  `json:"expiry_at"`
	Version      string `json:"version"`
	SenderID     string `json:"sender_id"`
	RecipientID  string `json:"recipient_id"`
	Filename     string `json:"filename"`
	ManifestHash string `json:"manifest_hash"`
}

// DisplayFilename returns Filename, defaulting to UnknownFilename when
// absent (spec §9).
func (m *Metadata) DisplayFilename() string {
	if m.Filename == "" {
		return UnknownFilename
	}
	return m.Filename
}

// Sealed bundles the three on-disk artifacts for an encrypted metadata
// block: the ciphertext, the RSA-wrapped AES key, and the CTR nonce
// (spec §3's metadata.enc / metadata.key / metadata.nonce).
type Sealed struct {
	Ciphertext []byte
	WrappedKey []byte
	Nonce      []byte
}

// Encrypt serializes metadata to JSON (sorted keys, no required
// indentation — it is never hashed as a top-level artifact, spec §4.6),
// encrypts it with a fresh AES-256-CTR key/nonce, and wraps that key
// under the recipient's RSA-OAEP public key.
func Encrypt(m *Metadata, recipientPub *rsa.PublicKey) (*Sealed, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal: %w", err)
	}
	// Re-marshal through a map: encoding/json emits map keys sorted.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("metadata: marshal: %w", err)
	}
	plaintext, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal: %w", err)
	}

	aesKey, err := primitives.NewAESKey()
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	nonce, err := primitives.NewNonce()
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}

	ciphertext, err := primitives.EncryptCTR(aesKey, nonce, plaintext)
	if err != nil {
		return nil, fmt.Errorf("metadata: encrypt: %w", err)
	}

	wrappedKey, err := primitives.WrapKey(recipientPub, aesKey)
	if err != nil {
		return nil, fmt.Errorf("metadata: wrap key: %w", err)
	}

	return &Sealed{Ciphertext: ciphertext, WrappedKey: wrappedKey, Nonce: nonce}, nil
}

// Decrypt unwraps the AES key with priv, decrypts the ciphertext, and
// parses the resulting JSON. Any failure collapses to ErrAuthFailed per
// spec §4.4 step 2 / §7 (wrong recipient, tamper, and corruption are
// deliberately indistinguishable to the caller).
func Decrypt(sealed *Sealed, priv *rsa.PrivateKey) (*Metadata, error) {
	aesKey, err := primitives.UnwrapKey(priv, sealed.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("metadata: decrypt: %w", ocerrors.ErrAuthFailed)
	}

	plaintext, err := primitives.DecryptCTR(aesKey, sealed.Nonce, sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("metadata: decrypt: %w", ocerrors.ErrAuthFailed)
	}

	var m Metadata
	if err := json.Unmarshal(plaintext, &m); err != nil {
		return nil, fmt.Errorf("metadata: decrypt: %w", ocerrors.ErrAuthFailed)
	}

	return &m, nil
}
