package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecryptedCacheGetAfterPut(t *testing.T) {
	c := NewDecryptedChunkCache(10, nil, nil)
	c.Put("asset-1", 0, []byte("abcd"), time.Now().Unix()+60)

	data, ok := c.Get("asset-1", 0)
	require.True(t, ok, "expected hit")
	assert.Equal(t, "abcd", string(data))
}

func TestDecryptedCacheMissOnUnknownKey(t *testing.T) {
	c := NewDecryptedChunkCache(10, nil, nil)
	_, ok := c.Get("asset-1", 0)
	assert.False(t, ok, "expected miss on empty cache")
}

func TestDecryptedCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewDecryptedChunkCache(2, nil, nil)
	future := time.Now().Unix() + 60

	c.Put("asset-1", 0, []byte("a"), future)
	c.Put("asset-1", 1, []byte("b"), future)
	// touch chunk 0 so chunk 1 becomes the least-recently-used entry
	c.Get("asset-1", 0)
	c.Put("asset-1", 2, []byte("c"), future)

	_, ok := c.Get("asset-1", 1)
	assert.False(t, ok, "expected chunk 1 to have been evicted")
	_, ok = c.Get("asset-1", 0)
	assert.True(t, ok, "expected chunk 0 to survive eviction")
	_, ok = c.Get("asset-1", 2)
	assert.True(t, ok, "expected chunk 2 to be present")
	assert.Equal(t, 2, c.Len())
}

func TestDecryptedCacheExpiredEntryIsMiss(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	clock := func() time.Time { return now }
	c := NewDecryptedChunkCache(10, clock, nil)

	c.Put("asset-1", 0, []byte("abcd"), now.Unix()-1) // already expired

	_, ok := c.Get("asset-1", 0)
	assert.False(t, ok, "expected expired entry to miss")
	assert.Equal(t, 0, c.Len(), "expected expired entry to be evicted on access")
}

func TestDecryptedCacheInvalidateByAsset(t *testing.T) {
	c := NewDecryptedChunkCache(10, nil, nil)
	future := time.Now().Unix() + 60

	c.Put("asset-1", 0, []byte("a"), future)
	c.Put("asset-1", 1, []byte("b"), future)
	c.Put("asset-2", 0, []byte("c"), future)

	c.Invalidate("asset-1")

	_, ok := c.Get("asset-1", 0)
	assert.False(t, ok, "expected asset-1 chunk 0 invalidated")
	_, ok = c.Get("asset-1", 1)
	assert.False(t, ok, "expected asset-1 chunk 1 invalidated")
	_, ok = c.Get("asset-2", 0)
	assert.True(t, ok, "expected asset-2 entry to survive invalidation of asset-1")
}

func TestDecryptedCacheClear(t *testing.T) {
	c := NewDecryptedChunkCache(10, nil, nil)
	future := time.Now().Unix() + 60
	c.Put("asset-1", 0, []byte("a"), future)
	c.Clear()
	assert.Equal(t, 0, c.Len(), "expected empty cache after Clear")
}

func TestEncryptedCacheGetAfterPutNoExpiry(t *testing.T) {
	c := NewEncryptedChunkCache(30, nil)
	triple := EncryptedTriple{Ciphertext: []byte("ct"), WrappedKey: []byte("wk"), Nonce: []byte("n")}
	c.Put("/assets/a1", 0, triple)

	got, ok := c.Get("/assets/a1", 0)
	require.True(t, ok, "expected hit")
	assert.Equal(t, "ct", string(got.Ciphertext))
}

func TestEncryptedCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewEncryptedChunkCache(2, nil)
	triple := EncryptedTriple{Ciphertext: []byte("x")}

	c.Put("/a", 0, triple)
	c.Put("/a", 1, triple)
	c.Get("/a", 0)
	c.Put("/a", 2, triple)

	_, ok := c.Get("/a", 1)
	assert.False(t, ok, "expected chunk 1 to have been evicted")
	assert.Equal(t, 2, c.Len())
}

func TestEncryptedCacheInvalidateByPath(t *testing.T) {
	c := NewEncryptedChunkCache(30, nil)
	triple := EncryptedTriple{Ciphertext: []byte("x")}
	c.Put("/a", 0, triple)
	c.Put("/b", 0, triple)

	c.Invalidate("/a")

	_, ok := c.Get("/a", 0)
	assert.False(t, ok, "expected /a invalidated")
	_, ok = c.Get("/b", 0)
	assert.True(t, ok, "expected /b to survive")
}

func TestEncryptedCacheClear(t *testing.T) {
	c := NewEncryptedChunkCache(30, nil)
	c.Put("/a", 0, EncryptedTriple{})
	c.Clear()
	assert.Equal(t, 0, c.Len(), "expected empty cache after Clear")
}

func TestDefaultCapacitiesAppliedWhenNonPositive(t *testing.T) {
	dc := NewDecryptedChunkCache(0, nil, nil)
	assert.Equal(t, DefaultDecryptedCapacity, dc.capacity)

	ec := NewEncryptedChunkCache(-1, nil)
	assert.Equal(t, DefaultEncryptedCapacity, ec.capacity)
}
