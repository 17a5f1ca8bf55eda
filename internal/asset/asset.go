// Package asset materializes and reads the on-disk asset directory
// structure (spec §3): manifest, encrypted metadata, and the chunks/
// subdirectory of per-chunk ciphertext/key/nonce triples.
package asset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oksentinel/engine/internal/chunking"
	"github.com/oksentinel/engine/internal/manifest"
	"github.com/oksentinel/engine/internal/metadata"
	"github.com/oksentinel/engine/internal/ocerrors"
)

const (
	chunksDirName   = "chunks"
	manifestName    = "manifest.json"
	metadataEncName = "metadata.enc"
	metadataKeyName = "metadata.key"
	metadataNonceN  = "metadata.nonce"

	dirPerm  = 0o755
	filePerm = 0o644
)

// Paths resolves every on-disk artifact path for an asset rooted at Dir
// (spec §3's directory layout).
type Paths struct {
	Dir string
}

func (p Paths) ManifestPath() string      { return filepath.Join(p.Dir, manifestName) }
func (p Paths) MetadataPath() string      { return filepath.Join(p.Dir, metadataEncName) }
func (p Paths) MetadataKeyPath() string   { return filepath.Join(p.Dir, metadataKeyName) }
func (p Paths) MetadataNoncePath() string { return filepath.Join(p.Dir, metadataNonceN) }
func (p Paths) ChunksDir() string         { return filepath.Join(p.Dir, chunksDirName) }
func (p Paths) ChunkPath(i uint32) string {
	return filepath.Join(p.ChunksDir(), fmt.Sprintf("chunk_%d.enc", i))
}
func (p Paths) ChunkKeyPath(i uint32) string {
	return filepath.Join(p.ChunksDir(), fmt.Sprintf("chunk_%d.key", i))
}
func (p Paths) ChunkNoncePath(i uint32) string {
	return filepath.Join(p.ChunksDir(), fmt.Sprintf("chunk_%d.nonce", i))
}

// Write materializes a new asset directory under outputDir/assetID (spec
// §4.3 step 6). Directory creation need not be crash-atomic: callers may
// retry, but a partial directory must be detected by readers as
// malformed (spec §3 Lifecycle), which Load's structural validation
// guarantees.
func Write(
	outputDir, assetID string,
	m *manifest.Manifest,
	sealedMeta *metadata.Sealed,
	chunks []chunking.EncryptedChunk,
) (string, error) {
	paths := Paths{Dir: filepath.Join(outputDir, assetID)}

	if err := os.MkdirAll(paths.ChunksDir(), dirPerm); err != nil {
		return "", fmt.Errorf("asset: create directory: %w", errIO(err))
	}

	canonical, err := m.CanonicalJSON()
	if err != nil {
		return "", fmt.Errorf("asset: serialize manifest: %w", err)
	}
	if err := os.WriteFile(paths.ManifestPath(), canonical, filePerm); err != nil {
		return "", fmt.Errorf("asset: write manifest: %w", errIO(err))
	}

	if err := os.WriteFile(paths.MetadataPath(), sealedMeta.Ciphertext, filePerm); err != nil {
		return "", fmt.Errorf("asset: write metadata: %w", errIO(err))
	}
	if err := os.WriteFile(paths.MetadataKeyPath(), sealedMeta.WrappedKey, filePerm); err != nil {
		return "", fmt.Errorf("asset: write metadata key: %w", errIO(err))
	}
	if err := os.WriteFile(paths.MetadataNoncePath(), sealedMeta.Nonce, filePerm); err != nil {
		return "", fmt.Errorf("asset: write metadata nonce: %w", errIO(err))
	}

	for i, c := range chunks {
		idx := uint32(i)
		if err := os.WriteFile(paths.ChunkPath(idx), c.Ciphertext, filePerm); err != nil {
			return "", fmt.Errorf("asset: write chunk %d: %w", idx, errIO(err))
		}
		if err := os.WriteFile(paths.ChunkKeyPath(idx), c.WrappedKey, filePerm); err != nil {
			return "", fmt.Errorf("asset: write chunk %d key: %w", idx, errIO(err))
		}
		if err := os.WriteFile(paths.ChunkNoncePath(idx), c.Nonce, filePerm); err != nil {
			return "", fmt.Errorf("asset: write chunk %d nonce: %w", idx, errIO(err))
		}
	}

	return paths.Dir, nil
}

// ReadManifest loads and parses manifest.json from an asset directory
// (spec §4.4 step 1).
func ReadManifest(assetDir string) (*manifest.Manifest, error) {
	paths := Paths{Dir: assetDir}

	if _, err := os.Stat(assetDir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("asset: %q: %w", assetDir, ocerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("asset: stat: %w", errIO(err))
	}

	data, err := os.ReadFile(paths.ManifestPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("asset: manifest missing: %w", ocerrors.ErrMalformedAsset)
		}
		return nil, fmt.Errorf("asset: read manifest: %w", errIO(err))
	}

	return manifest.Parse(data)
}

// ReadSealedMetadata loads the encrypted metadata triple from an asset
// directory (spec §4.4 step 2).
func ReadSealedMetadata(assetDir string) (*metadata.Sealed, error) {
	paths := Paths{Dir: assetDir}

	ciphertext, err := os.ReadFile(paths.MetadataPath())
	if err != nil {
		return nil, fmt.Errorf("asset: read metadata: %w", missingOrIO(err))
	}
	wrappedKey, err := os.ReadFile(paths.MetadataKeyPath())
	if err != nil {
		return nil, fmt.Errorf("asset: read metadata key: %w", missingOrIO(err))
	}
	nonce, err := os.ReadFile(paths.MetadataNoncePath())
	if err != nil {
		return nil, fmt.Errorf("asset: read metadata nonce: %w", missingOrIO(err))
	}

	return &metadata.Sealed{Ciphertext: ciphertext, WrappedKey: wrappedKey, Nonce: nonce}, nil
}

// ReadChunkTriple loads the ciphertext/key/nonce triple for chunk index
// from an asset directory (spec §4.5 step 4, glossary "chunk triple").
func ReadChunkTriple(assetDir string, index uint32) (*chunking.EncryptedChunk, error) {
	paths := Paths{Dir: assetDir}

	ciphertext, err := os.ReadFile(paths.ChunkPath(index))
	if err != nil {
		return nil, fmt.Errorf("asset: read chunk %d: %w", index, missingOrIO(err))
	}
	wrappedKey, err := os.ReadFile(paths.ChunkKeyPath(index))
	if err != nil {
		return nil, fmt.Errorf("asset: read chunk %d key: %w", index, missingOrIO(err))
	}
	nonce, err := os.ReadFile(paths.ChunkNoncePath(index))
	if err != nil {
		return nil, fmt.Errorf("asset: read chunk %d nonce: %w", index, missingOrIO(err))
	}

	return &chunking.EncryptedChunk{Ciphertext: ciphertext, WrappedKey: wrappedKey, Nonce: nonce}, nil
}

func missingOrIO(err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w", ocerrors.ErrMalformedAsset)
	}
	return errIO(err)
}

func errIO(err error) error {
	return fmt.Errorf("%w: %v", ocerrors.ErrIO, err)
}
