// Package manifest defines the asset manifest type and its canonical,
// hashable JSON serialization (spec §3, §4.6).
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/oksentinel/engine/internal/ocerrors"
	"github.com/oksentinel/engine/internal/primitives"
)

// Version is the only manifest schema version this engine understands.
// A future revision would introduce a new constant and reject mismatches
// explicitly rather than silently merging unknown fields (spec §9).
const Version = "2.0"

// MetadataBlockName is the fixed filename the manifest points at.
const MetadataBlockName = "metadata.enc"

// ChunkEntry describes one chunk's placement and integrity hash within
// the manifest (spec §3).
type ChunkEntry struct {
	Index            uint32 `json:"index"`
	HashSHA256       string `json:"hash_sha256"`
	Size             uint32 `json:"size"`
	EncryptedKeyFile string `json:"encrypted_key_file"`
	NonceFile        string `json:"nonce_file"`
}

// Manifest is the plaintext, integrity-protected description of an
// asset's chunk layout (spec §3).
type Manifest struct {
	Version       string       `json:"version"`
	AssetID       string       `json:"asset_id"`
	ChunkSize     uint32       `json:"chunk_size"`
	TotalChunks   uint32       `json:"total_chunks"`
	TotalSize     uint64       `json:"total_size"`
	Chunks        []ChunkEntry `json:"chunks"`
	MetadataBlock string       `json:"metadata_block"`
}

// New assembles a manifest from chunk entries, computing total_size and
// total_chunks from the entries themselves so the two invariants below
// can never be violated by a caller forgetting to update a count:
//   - sum(chunk.size) == total_size
//   - every chunk but the last has size == chunkSize; the last has
//     size in [1, chunkSize]
func New(assetID string, chunkSize uint32, chunks []ChunkEntry) *Manifest {
	var totalSize uint64
	for _, c := range chunks {
		totalSize += uint64(c.Size)
	}
	return &Manifest{
		Version:       Version,
		AssetID:       assetID,
		ChunkSize:     chunkSize,
		TotalChunks:   uint32(len(chunks)),
		TotalSize:     totalSize,
		Chunks:        chunks,
		MetadataBlock: MetadataBlockName,
	}
}

// CanonicalJSON serializes the manifest as UTF-8 JSON with keys sorted
// lexicographically at every nesting level, 2-space indentation, and "\n"
// line separators — the bytestring that gets hashed (spec §4.6).
//
// Go's encoding/json sorts map keys alphabetically when marshaling a
// map[string]interface{}, so we round-trip the manifest through a generic
// representation to get sorted-keys-at-every-level for free while array
// order (chunks by index) is preserved by []interface{}.
func (m *Manifest) CanonicalJSON() ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("manifest: normalize: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("manifest: canonicalize: %w", err)
	}

	// json.Encoder.Encode appends a trailing newline; the spec's canonical
	// form is the object itself, so trim it for a stable hash input.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Hash returns the hex-encoded SHA-256 digest of the manifest's canonical
// JSON (spec §4.6).
func (m *Manifest) Hash() (string, error) {
	canonical, err := m.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return primitives.HashSHA256Hex(canonical), nil
}

// Parse deserializes a manifest from JSON bytes and validates structural
// completeness (spec §4.4 step 1).
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse: %w: %v", ocerrors.ErrMalformedAsset, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks structural completeness: every required top-level and
// per-chunk field is present and the chunk-size invariants hold (spec
// §3, §4.4 step 1).
func (m *Manifest) Validate() error {
	if m.Version == "" || m.AssetID == "" || m.MetadataBlock == "" {
		return fmt.Errorf("manifest: missing required field: %w", ocerrors.ErrMalformedAsset)
	}
	if m.Version != Version {
		return fmt.Errorf("manifest: unsupported version %q: %w", m.Version, ocerrors.ErrMalformedAsset)
	}
	if int(m.TotalChunks) != len(m.Chunks) {
		return fmt.Errorf("manifest: total_chunks %d does not match %d chunk entries: %w",
			m.TotalChunks, len(m.Chunks), ocerrors.ErrMalformedAsset)
	}

	var sum uint64
	for i, c := range m.Chunks {
		if c.HashSHA256 == "" || c.EncryptedKeyFile == "" || c.NonceFile == "" {
			return fmt.Errorf("manifest: chunk %d missing required field: %w", i, ocerrors.ErrMalformedAsset)
		}
		if c.Index != uint32(i) {
			return fmt.Errorf("manifest: chunk %d has out-of-order index %d: %w", i, c.Index, ocerrors.ErrMalformedAsset)
		}
		isLast := i == len(m.Chunks)-1
		if !isLast && c.Size != m.ChunkSize {
			return fmt.Errorf("manifest: chunk %d size %d != chunk_size %d: %w", i, c.Size, m.ChunkSize, ocerrors.ErrMalformedAsset)
		}
		if isLast && (c.Size == 0 || c.Size > m.ChunkSize) {
			return fmt.Errorf("manifest: last chunk size %d out of range (1..%d): %w", c.Size, m.ChunkSize, ocerrors.ErrMalformedAsset)
		}
		sum += uint64(c.Size)
	}
	if sum != m.TotalSize {
		return fmt.Errorf("manifest: sum of chunk sizes %d != total_size %d: %w", sum, m.TotalSize, ocerrors.ErrMalformedAsset)
	}

	return nil
}

// VerifyHash recomputes the manifest's canonical hash and compares it,
// constant-time, against expectedHash (spec §4.4 step 3).
func (m *Manifest) VerifyHash(expectedHash string) (bool, error) {
	actual, err := m.Hash()
	if err != nil {
		return false, err
	}
	return primitives.ConstantTimeHexEqual(actual, expectedHash), nil
}
