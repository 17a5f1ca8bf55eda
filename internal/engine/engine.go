// Package engine orchestrates identity, manifest, chunking, asset I/O,
// the two-tier cache, and the prefetch manager into the operations a
// caller actually needs: encrypt_bytes_to_asset, load_asset,
// decrypt_chunk, chunk_count (spec §2 Engine API, §4.3-§4.5).
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crypto/rsa"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/oksentinel/engine/internal/asset"
	"github.com/oksentinel/engine/internal/cache"
	"github.com/oksentinel/engine/internal/chunking"
	"github.com/oksentinel/engine/internal/identity"
	"github.com/oksentinel/engine/internal/manifest"
	"github.com/oksentinel/engine/internal/metadata"
	"github.com/oksentinel/engine/internal/ocerrors"
	"github.com/oksentinel/engine/internal/prefetch"
	"github.com/oksentinel/engine/internal/primitives"
)

// DefaultChunkSize is the spec's default chunk size (4 MiB), used by
// EncryptBytesToAsset when the caller passes 0.
const DefaultChunkSize uint32 = 4 << 20

// Config bundles the tunables a caller sets once at construction.
type Config struct {
	// OutputDir is where new asset directories are materialized.
	OutputDir string
	// DefaultChunkSize overrides DefaultChunkSize when nonzero.
	DefaultChunkSize uint32
	// DecryptedCacheCapacity overrides cache.DefaultDecryptedCapacity.
	DecryptedCacheCapacity int
	// EncryptedCacheCapacity overrides cache.DefaultEncryptedCapacity.
	EncryptedCacheCapacity int
	// Prefetch overrides the prefetch manager's defaults.
	Prefetch prefetch.Config
}

// Metrics bundles the cache and prefetch instrument sets; either may be
// nil, in which case metrics collection is a no-op (see cache.Metrics,
// prefetch.Metrics).
type Metrics struct {
	Decrypted *cache.Metrics
	Encrypted *cache.Metrics
	Prefetch  *prefetch.Metrics
}

// Engine is one explicitly-constructed orchestration instance (spec §9:
// "avoid process-wide singletons"). Callers own its lifetime: Start
// before serving traffic, Stop on shutdown.
type Engine struct {
	outputDir        string
	defaultChunkSize uint32

	decrypted *cache.DecryptedChunkCache
	encrypted *cache.EncryptedChunkCache
	prefetch  *prefetch.Manager

	clock  func() time.Time
	log    *logrus.Entry
	tracer trace.Tracer

	mu     sync.RWMutex
	assets map[string]*Asset
}

// New constructs an Engine wired to its cache tiers and prefetch
// manager. Call Start to begin background prefetch workers. A nil
// tracer falls back to the global otel TracerProvider (a no-op unless
// the caller has installed one via internal/telemetry), so spans are
// always safe to start.
func New(cfg Config, metrics Metrics, log *logrus.Entry, tracer trace.Tracer) *Engine {
	chunkSize := cfg.DefaultChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if tracer == nil {
		tracer = otel.Tracer("github.com/oksentinel/engine/internal/engine")
	}

	e := &Engine{
		outputDir:        cfg.OutputDir,
		defaultChunkSize: chunkSize,
		decrypted:        cache.NewDecryptedChunkCache(cfg.DecryptedCacheCapacity, nil, metrics.Decrypted),
		encrypted:        cache.NewEncryptedChunkCache(cfg.EncryptedCacheCapacity, metrics.Encrypted),
		clock:            time.Now,
		log:              log.WithField("component", "engine"),
		tracer:           tracer,
		assets:           make(map[string]*Asset),
	}
	e.prefetch = prefetch.NewManager(cfg.Prefetch, e.decrypted, e.encrypted, engineDecryptor{e}, engineFetcher{}, log, metrics.Prefetch)
	return e
}

// Start launches the background prefetch worker pool.
func (e *Engine) Start(ctx context.Context) { e.prefetch.Start(ctx) }

// Stop drains the background prefetch worker pool.
func (e *Engine) Stop() { e.prefetch.Stop() }

// EncryptBytesToAsset authenticates the sender, splits and encrypts
// payload, assembles and seals the manifest and metadata, and
// materializes the asset directory (spec §4.3). senderSealedKey/
// senderPIN are used only as a capability check: the sender's key is
// never used cryptographically here. chunkSize of 0 selects the
// engine's default.
func (e *Engine) EncryptBytesToAsset(
	ctx context.Context,
	payload []byte,
	senderSealedKey []byte,
	senderPIN string,
	senderID string,
	recipientPub *rsa.PublicKey,
	recipientID string,
	filename string,
	expiryHours float64,
	chunkSize uint32,
) (string, error) {
	_, span := e.tracer.Start(ctx, "EncryptBytesToAsset")
	defer span.End()

	if _, err := identity.UnwrapPrivateKey(senderSealedKey, senderPIN); err != nil {
		return "", fmt.Errorf("engine: sender authentication: %w", err)
	}

	if chunkSize == 0 {
		chunkSize = e.defaultChunkSize
	}

	plainChunks, err := chunking.Split(payload, int(chunkSize))
	if err != nil {
		return "", fmt.Errorf("engine: %w", err)
	}

	assetID := uuid.New().String()

	entries := make([]manifest.ChunkEntry, 0, len(plainChunks))
	encChunks := make([]chunking.EncryptedChunk, 0, len(plainChunks))
	for i, pc := range plainChunks {
		enc, err := chunking.Encrypt(pc, recipientPub)
		if err != nil {
			return "", fmt.Errorf("engine: encrypt chunk %d: %w", i, err)
		}
		encChunks = append(encChunks, *enc)
		entries = append(entries, manifest.ChunkEntry{
			Index:            uint32(i),
			HashSHA256:       chunking.Hash(pc),
			Size:             uint32(len(pc)),
			EncryptedKeyFile: fmt.Sprintf("chunk_%d.key", i),
			NonceFile:        fmt.Sprintf("chunk_%d.nonce", i),
		})
	}

	m := manifest.New(assetID, chunkSize, entries)
	manifestHash, err := m.Hash()
	if err != nil {
		return "", fmt.Errorf("engine: hash manifest: %w", err)
	}

	now := e.clock().Unix()
	md := &metadata.Metadata{
		CreatedAt:    now,
		ExpiryAt:     now + int64(expiryHours*3600),
		Version:      metadata.Version,
		SenderID:     senderID,
		RecipientID:  recipientID,
		Filename:     filename,
		ManifestHash: manifestHash,
	}
	sealedMeta, err := metadata.Encrypt(md, recipientPub)
	if err != nil {
		return "", fmt.Errorf("engine: encrypt metadata: %w", err)
	}

	assetPath, err := asset.Write(e.outputDir, assetID, m, sealedMeta, encChunks)
	if err != nil {
		return "", fmt.Errorf("engine: write asset: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"asset_id": assetID, "total_chunks": m.TotalChunks, "recipient_id": recipientID,
	}).Info("asset encrypted")

	return assetPath, nil
}

// LoadAsset authenticates the recipient by unwrapping their private key
// with the PIN, reads the manifest and encrypted metadata, decrypts the
// metadata, verifies the manifest hash, and (unless checkExpiry is
// false) checks expiry — in that order. A successful
// call registers the asset as Validated so decrypt_chunk and the
// prefetch manager can find it by id.
func (e *Engine) LoadAsset(ctx context.Context, assetPath string, recipientSealedKey []byte, recipientPIN string, checkExpiry bool) (*Asset, error) {
	_, span := e.tracer.Start(ctx, "LoadAsset")
	defer span.End()

	priv, err := identity.UnwrapPrivateKey(recipientSealedKey, recipientPIN)
	if err != nil {
		return nil, fmt.Errorf("engine: recipient authentication: %w", err)
	}

	m, err := asset.ReadManifest(assetPath)
	if err != nil {
		return nil, err
	}

	sealedMeta, err := asset.ReadSealedMetadata(assetPath)
	if err != nil {
		return nil, err
	}

	md, err := metadata.Decrypt(sealedMeta, priv)
	if err != nil {
		return nil, fmt.Errorf("engine: decrypt metadata: %w", err)
	}

	matched, err := m.VerifyHash(md.ManifestHash)
	if err != nil {
		return nil, fmt.Errorf("engine: verify manifest hash: %w", err)
	}
	if !matched {
		err := fmt.Errorf("engine: asset %s: manifest hash mismatch: %w", m.AssetID, ocerrors.ErrIntegrityFailure)
		e.prefetch.AbortAsset(m.AssetID)
		return nil, err
	}

	a := &Asset{id: m.AssetID, path: assetPath, manifest: m, meta: md, priv: priv, state: StateLoaded}

	if checkExpiry && e.clock().Unix() > md.ExpiryAt {
		a.state = StateExpired
		err := newExpiredError(m.AssetID)
		a.terminalErr = err
		e.prefetch.AbortAsset(m.AssetID)
		return nil, err
	}

	a.state = StateValidated
	e.mu.Lock()
	e.assets[a.id] = a
	e.mu.Unlock()

	e.log.WithField("asset_id", a.id).Info("asset loaded and validated")
	return a, nil
}

// ChunkCount returns the asset's total chunk count.
func (e *Engine) ChunkCount(a *Asset) uint32 { return a.ChunkCount() }

// DecryptChunk decrypts chunk index of a validated asset, consulting
// the decrypted cache first, verifying the plaintext hash against the
// manifest, and notifying the prefetch manager of the access (spec
// §4.5, §4.9). a must have come from LoadAsset; unvalidated decryption
// is forbidden by construction — there is no way to build an *Asset
// outside this package.
func (e *Engine) DecryptChunk(ctx context.Context, a *Asset, index uint32) ([]byte, error) {
	_, span := e.tracer.Start(ctx, "DecryptChunk")
	defer span.End()

	if data, ok := e.decrypted.Get(a.id, index); ok {
		e.notifyAccess(a, index)
		return data, nil
	}

	plaintext, err := e.decryptChunk(a, index)
	if err != nil {
		return nil, err
	}

	e.decrypted.Put(a.id, index, plaintext, a.meta.ExpiryAt)
	e.notifyAccess(a, index)
	return plaintext, nil
}

// decryptChunk is the shared core between the foreground DecryptChunk
// and the prefetch worker's short-range tasks (spec §4.5 steps 1-6).
func (e *Engine) decryptChunk(a *Asset, index uint32) ([]byte, error) {
	if err := a.beginRead(e.clock().Unix()); err != nil {
		if ocerrors.KindOf(err) == ocerrors.KindExpired {
			e.prefetch.AbortAsset(a.id)
		}
		return nil, err
	}

	if index >= a.manifest.TotalChunks {
		return nil, fmt.Errorf("engine: chunk %d: %w", index, ocerrors.ErrOutOfRange)
	}

	triple, err := asset.ReadChunkTriple(a.path, index)
	if err != nil {
		return nil, err
	}

	plaintext, err := chunking.Decrypt(triple, a.priv)
	if err != nil {
		return nil, err
	}

	want := a.manifest.Chunks[index].HashSHA256
	got := chunking.Hash(plaintext)
	if !primitives.ConstantTimeHexEqual(got, want) {
		err := fmt.Errorf("engine: chunk %d: %w", index, ocerrors.ErrIntegrityFailure)
		e.abortAsset(a, err)
		return nil, err
	}

	return plaintext, nil
}

// SweepExpired walks every asset this engine has loaded and forces the
// Expired transition (plus cache invalidation and prefetch abort) for
// any whose expiry has passed but which haven't been touched by a
// foreground read since (spec §5 "Expiry is enforced ... (d) on every
// decrypted-cache hit" — this is the periodic complement for assets
// that simply go idle). Returns the number of assets newly expired.
func (e *Engine) SweepExpired() int {
	e.mu.RLock()
	assets := make([]*Asset, 0, len(e.assets))
	for _, a := range e.assets {
		assets = append(assets, a)
	}
	e.mu.RUnlock()

	now := e.clock().Unix()
	swept := 0
	for _, a := range assets {
		if a.expireIfPast(now) {
			e.prefetch.AbortAsset(a.id)
			swept++
		}
	}
	return swept
}

func (e *Engine) abortAsset(a *Asset, err error) {
	a.markAborted(err)
	e.prefetch.AbortAsset(a.id)
}

func (e *Engine) notifyAccess(a *Asset, index uint32) {
	chunkSize := int64(a.manifest.ChunkSize)
	byteStart := int64(index) * chunkSize
	byteEnd := byteStart + int64(a.manifest.Chunks[index].Size)

	e.prefetch.OnChunkAccess(prefetch.AccessEvent{
		AssetID:      a.id,
		AssetPath:    a.path,
		CurrentChunk: index,
		ByteStart:    byteStart,
		ByteEnd:      byteEnd,
		TotalChunks:  a.manifest.TotalChunks,
		ExpiryAt:     a.meta.ExpiryAt,
	})
}

func (e *Engine) lookupAsset(assetID string) (*Asset, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.assets[assetID]
	return a, ok
}

func newExpiredError(assetID string) error {
	return fmt.Errorf("engine: asset %s: %w", assetID, ocerrors.ErrExpired)
}

// engineDecryptor adapts Engine to prefetch.Decryptor without the
// prefetch package importing engine (engine already imports prefetch).
type engineDecryptor struct{ e *Engine }

func (d engineDecryptor) DecryptChunk(assetID string, index uint32) ([]byte, error) {
	a, ok := d.e.lookupAsset(assetID)
	if !ok {
		return nil, fmt.Errorf("engine: prefetch: unknown asset %s", assetID)
	}
	return d.e.decryptChunk(a, index)
}

// engineFetcher adapts the asset package's raw chunk-triple reader to
// prefetch.ChunkFetcher for long-range (encrypted-only) cache warming.
type engineFetcher struct{}

func (engineFetcher) FetchEncryptedTriple(assetPath string, index uint32) (cache.EncryptedTriple, error) {
	triple, err := asset.ReadChunkTriple(assetPath, index)
	if err != nil {
		return cache.EncryptedTriple{}, err
	}
	return cache.EncryptedTriple{
		Ciphertext: triple.Ciphertext,
		WrappedKey: triple.WrappedKey,
		Nonce:      triple.Nonce,
	}, nil
}
