// Package cache provides the two-tier LRU cache sitting in front of
// chunk decryption (spec §4.7): a small decrypted-chunk cache with
// per-entry expiry, and a larger encrypted-chunk-triple cache with none
// (those bytes are useless without the private key).
//
// Both caches are built on container/list + map, the same structure the
// original Python implementation used via collections.OrderedDict — no
// example repo in the retrieval pack vendors a dedicated LRU library, so
// this stays on the standard library's list/map primitives rather than
// reaching for one (see DESIGN.md).
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultDecryptedCapacity is the default entry count for the decrypted
// cache (spec §4.7).
const DefaultDecryptedCapacity = 10

// DefaultEncryptedCapacity is the default entry count for the encrypted
// cache (spec §4.7).
const DefaultEncryptedCapacity = 30

// Clock abstracts wall-clock time so expiry can be tested deterministically.
type Clock func() time.Time

type decryptedKey struct {
	assetID string
	chunk   uint32
}

type decryptedEntry struct {
	key      decryptedKey
	data     []byte
	expiryAt int64 // unix seconds
}

// DecryptedChunkCache is an LRU cache keyed by (asset_id, chunk_index)
// holding plaintext with per-entry expiry (spec §4.7).
type DecryptedChunkCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List // front = most recent
	items    map[decryptedKey]*list.Element
	clock    Clock
	metrics  *Metrics
}

// NewDecryptedChunkCache constructs a cache with the given capacity. A
// nil clock defaults to time.Now.
func NewDecryptedChunkCache(capacity int, clock Clock, metrics *Metrics) *DecryptedChunkCache {
	if capacity <= 0 {
		capacity = DefaultDecryptedCapacity
	}
	if clock == nil {
		clock = time.Now
	}
	return &DecryptedChunkCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[decryptedKey]*list.Element),
		clock:    clock,
		metrics:  metrics,
	}
}

// Get returns the cached plaintext for (assetID, chunkIdx) if present and
// not expired, moving it to most-recently-used on a hit.
func (c *DecryptedChunkCache) Get(assetID string, chunkIdx uint32) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := decryptedKey{assetID, chunkIdx}
	el, ok := c.items[key]
	if !ok {
		c.metrics.observeMiss("decrypted")
		return nil, false
	}

	entry := el.Value.(*decryptedEntry)
	if c.clock().Unix() > entry.expiryAt {
		c.removeElement(el)
		c.metrics.observeMiss("decrypted")
		return nil, false
	}

	c.ll.MoveToFront(el)
	c.metrics.observeHit("decrypted")
	return entry.data, true
}

// Put inserts or updates the plaintext for (assetID, chunkIdx) with the
// given absolute expiry (unix seconds), evicting least-recently-used
// entries until the cache is back at capacity.
func (c *DecryptedChunkCache) Put(assetID string, chunkIdx uint32, data []byte, expiryAt int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := decryptedKey{assetID, chunkIdx}
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*decryptedEntry).data = data
		el.Value.(*decryptedEntry).expiryAt = expiryAt
		return
	}

	el := c.ll.PushFront(&decryptedEntry{key: key, data: data, expiryAt: expiryAt})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		c.removeElement(c.ll.Back())
	}
	c.metrics.setSize("decrypted", float64(c.ll.Len()))
}

// Invalidate removes every cached chunk for assetID (spec §4.7, used on
// BackwardJump and on abort).
func (c *DecryptedChunkCache) Invalidate(assetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.items {
		if key.assetID == assetID {
			c.removeElement(el)
		}
	}
}

// Clear empties the cache entirely.
func (c *DecryptedChunkCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[decryptedKey]*list.Element)
}

// Len reports the current entry count (for tests/metrics).
func (c *DecryptedChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *DecryptedChunkCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*decryptedEntry).key)
	c.metrics.setSize("decrypted", float64(c.ll.Len()))
}

// --- Encrypted-chunk-triple cache ---

type encryptedKey struct {
	assetPath string
	chunk     uint32
}

// EncryptedTriple is the cached ciphertext/wrapped-key/nonce for one
// chunk (spec §4.7).
type EncryptedTriple struct {
	Ciphertext []byte
	WrappedKey []byte
	Nonce      []byte
}

type encryptedEntry struct {
	key  encryptedKey
	data EncryptedTriple
}

// EncryptedChunkCache is an LRU cache keyed by (asset_path, chunk_index)
// with no per-entry expiry: the bytes are useless without the private
// key, so there is nothing to leak by keeping them past expiry (spec
// §4.7).
type EncryptedChunkCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[encryptedKey]*list.Element
	metrics  *Metrics
}

// NewEncryptedChunkCache constructs a cache with the given capacity.
func NewEncryptedChunkCache(capacity int, metrics *Metrics) *EncryptedChunkCache {
	if capacity <= 0 {
		capacity = DefaultEncryptedCapacity
	}
	return &EncryptedChunkCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[encryptedKey]*list.Element),
		metrics:  metrics,
	}
}

// Get returns the cached triple for (assetPath, chunkIdx) if present.
func (c *EncryptedChunkCache) Get(assetPath string, chunkIdx uint32) (EncryptedTriple, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := encryptedKey{assetPath, chunkIdx}
	el, ok := c.items[key]
	if !ok {
		c.metrics.observeMiss("encrypted")
		return EncryptedTriple{}, false
	}
	c.ll.MoveToFront(el)
	c.metrics.observeHit("encrypted")
	return el.Value.(*encryptedEntry).data, true
}

// Put inserts or updates the triple for (assetPath, chunkIdx), evicting
// least-recently-used entries past capacity.
func (c *EncryptedChunkCache) Put(assetPath string, chunkIdx uint32, triple EncryptedTriple) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := encryptedKey{assetPath, chunkIdx}
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*encryptedEntry).data = triple
		return
	}

	el := c.ll.PushFront(&encryptedEntry{key: key, data: triple})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		c.removeElement(c.ll.Back())
	}
	c.metrics.setSize("encrypted", float64(c.ll.Len()))
}

// Invalidate removes every cached chunk for assetPath.
func (c *EncryptedChunkCache) Invalidate(assetPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.items {
		if key.assetPath == assetPath {
			c.removeElement(el)
		}
	}
}

// Clear empties the cache entirely.
func (c *EncryptedChunkCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[encryptedKey]*list.Element)
}

// Len reports the current entry count (for tests/metrics).
func (c *EncryptedChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *EncryptedChunkCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*encryptedEntry).key)
	c.metrics.setSize("encrypted", float64(c.ll.Len()))
}

// Metrics bundles the Prometheus gauges/counters both caches report to
// (domain-stack wiring, see SPEC_FULL.md §4). A nil *Metrics is valid and
// makes every observation a no-op, so caches work fine unwired in tests.
type Metrics struct {
	Hits   *prometheus.CounterVec
	Misses *prometheus.CounterVec
	Size   *prometheus.GaugeVec
}

// NewMetrics registers the cache counters/gauges against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oksentinel",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by tier (decrypted|encrypted).",
		}, []string{"tier"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oksentinel",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses by tier (decrypted|encrypted).",
		}, []string{"tier"}),
		Size: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "oksentinel",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current entry count by tier (decrypted|encrypted).",
		}, []string{"tier"}),
	}
	reg.MustRegister(m.Hits, m.Misses, m.Size)
	return m
}

func (m *Metrics) observeHit(tier string) {
	if m == nil {
		return
	}
	m.Hits.WithLabelValues(tier).Inc()
}

func (m *Metrics) observeMiss(tier string) {
	if m == nil {
		return
	}
	m.Misses.WithLabelValues(tier).Inc()
}

func (m *Metrics) setSize(tier string, v float64) {
	if m == nil {
		return
	}
	m.Size.WithLabelValues(tier).Set(v)
}
