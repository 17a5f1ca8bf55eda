package prefetch

import (
	"testing"
	"time"
)

func TestAssetLimiterAllowsUpToBurstThenBlocks(t *testing.T) {
	al := newAssetLimiter(0.001, 3, time.Minute)
	defer al.close()

	for i := 0; i < 3; i++ {
		if !al.allow("asset-1") {
			t.Fatalf("expected call %d within burst to be allowed", i)
		}
	}
	if al.allow("asset-1") {
		t.Fatal("expected call beyond burst to be rate-limited")
	}
}

func TestAssetLimiterIsIndependentPerAsset(t *testing.T) {
	al := newAssetLimiter(0.001, 1, time.Minute)
	defer al.close()

	if !al.allow("asset-1") {
		t.Fatal("expected first call for asset-1 to be allowed")
	}
	if !al.allow("asset-2") {
		t.Fatal("expected asset-2's bucket to be independent of asset-1's")
	}
	if al.allow("asset-1") {
		t.Fatal("expected second call for asset-1 to be rate-limited")
	}
}

func TestAssetLimiterCleanupRemovesIdleEntries(t *testing.T) {
	al := newAssetLimiter(0.001, 1, time.Millisecond)
	defer al.close()

	al.allow("asset-1")
	time.Sleep(5 * time.Millisecond)
	al.cleanup()

	al.mu.RLock()
	_, exists := al.limiters["asset-1"]
	al.mu.RUnlock()
	if exists {
		t.Fatal("expected idle entry to be swept")
	}
}
