package manifest

import (
	"errors"
	"strings"
	"testing"

	"github.com/oksentinel/engine/internal/ocerrors"
)

func threeChunks() []ChunkEntry {
	return []ChunkEntry{
		{Index: 0, HashSHA256: "aa", Size: 4, EncryptedKeyFile: "chunk_0.key", NonceFile: "chunk_0.nonce"},
		{Index: 1, HashSHA256: "bb", Size: 4, EncryptedKeyFile: "chunk_1.key", NonceFile: "chunk_1.nonce"},
		{Index: 2, HashSHA256: "cc", Size: 1, EncryptedKeyFile: "chunk_2.key", NonceFile: "chunk_2.nonce"},
	}
}

func TestNewComputesTotals(t *testing.T) {
	m := New("asset-1", 4, threeChunks())
	if m.TotalChunks != 3 {
		t.Errorf("TotalChunks = %d, want 3", m.TotalChunks)
	}
	if m.TotalSize != 9 {
		t.Errorf("TotalSize = %d, want 9", m.TotalSize)
	}
	if m.Version != Version {
		t.Errorf("Version = %q, want %q", m.Version, Version)
	}
}

func TestCanonicalJSONSortedKeysAndIndent(t *testing.T) {
	m := New("asset-1", 4, threeChunks())
	canonical, err := m.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON failed: %v", err)
	}
	s := string(canonical)

	// Keys sorted lexicographically: asset_id before chunk_size before chunks ...
	assetIdx := strings.Index(s, `"asset_id"`)
	chunkSizeIdx := strings.Index(s, `"chunk_size"`)
	versionIdx := strings.Index(s, `"version"`)
	if assetIdx == -1 || chunkSizeIdx == -1 || versionIdx == -1 {
		t.Fatalf("expected fields missing from canonical JSON: %s", s)
	}
	if !(assetIdx < chunkSizeIdx && chunkSizeIdx < versionIdx) {
		t.Errorf("keys not sorted lexicographically: asset_id=%d chunk_size=%d version=%d", assetIdx, chunkSizeIdx, versionIdx)
	}
	if !strings.Contains(s, "\n  \"") {
		t.Errorf("expected 2-space indent, got: %s", s)
	}
}

func TestHashDeterministic(t *testing.T) {
	m1 := New("asset-1", 4, threeChunks())
	m2 := New("asset-1", 4, threeChunks())

	h1, err := m1.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, err := m2.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash not deterministic: %s != %s", h1, h2)
	}
}

func TestVerifyHash(t *testing.T) {
	m := New("asset-1", 4, threeChunks())
	h, err := m.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	ok, err := m.VerifyHash(h)
	if err != nil || !ok {
		t.Errorf("expected hash to verify, ok=%v err=%v", ok, err)
	}

	ok, err = m.VerifyHash("deadbeef")
	if err != nil || ok {
		t.Errorf("expected mismatched hash to fail, ok=%v err=%v", ok, err)
	}
}

func TestParseRoundTrip(t *testing.T) {
	m := New("asset-1", 4, threeChunks())
	canonical, err := m.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON failed: %v", err)
	}

	parsed, err := Parse(canonical)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.AssetID != m.AssetID || parsed.TotalChunks != m.TotalChunks {
		t.Errorf("round-tripped manifest mismatch: %+v vs %+v", parsed, m)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte("not json"))
	if !errors.Is(err, ocerrors.ErrMalformedAsset) {
		t.Errorf("expected ErrMalformedAsset, got %v", err)
	}
}

func TestValidateRejectsSizeMismatch(t *testing.T) {
	chunks := threeChunks()
	chunks[0].Size = 999 // violates "all but last == chunk_size"
	m := &Manifest{
		Version: Version, AssetID: "a", ChunkSize: 4,
		TotalChunks: 3, TotalSize: 9 + 999 - 4,
		Chunks: chunks, MetadataBlock: MetadataBlockName,
	}
	if err := m.Validate(); !errors.Is(err, ocerrors.ErrMalformedAsset) {
		t.Errorf("expected ErrMalformedAsset, got %v", err)
	}
}

func TestValidateRejectsMissingField(t *testing.T) {
	m := &Manifest{Version: Version, AssetID: "", MetadataBlock: MetadataBlockName}
	if err := m.Validate(); !errors.Is(err, ocerrors.ErrMalformedAsset) {
		t.Errorf("expected ErrMalformedAsset, got %v", err)
	}
}
